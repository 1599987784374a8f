// Package session tracks per-chat conversation state and short-lived
// download tokens in a key-value store.
package session

import (
	"encoding/json"
	"errors"
)

var (
	// ErrNotFound is returned when no session or token exists for the key.
	ErrNotFound = errors.New("session not found")
	// ErrLockHeld is returned when a single-flight lock is already taken.
	ErrLockHeld = errors.New("lock already held")
)

// Step is the position of a chat in the upload conversation. Steps only move
// forward; the only way back is deleting the session.
type Step string

const (
	StepAwaitingPackage Step = "awaiting_package"
	StepAwaitingIcon    Step = "awaiting_icon"
	StepAwaitingName    Step = "awaiting_name"
)

// Session is the per-chat conversation state. Fields past Step become valid
// as the corresponding step completes.
type Session struct {
	Step Step `json:"step"`

	// Package received at StepAwaitingPackage.
	PackageFileID string `json:"package_file_id,omitempty"`
	PackagePath   string `json:"package_path,omitempty"`
	PackageSize   int64  `json:"package_size,omitempty"`
	// StorageKey is set when an oversized package was parked in blob storage.
	StorageKey string `json:"storage_key,omitempty"`

	// Icon received at StepAwaitingIcon. Both may stay empty when the fetch
	// failed; the flow degrades instead of blocking.
	IconFileID string `json:"icon_file_id,omitempty"`
	IconPath   string `json:"icon_path,omitempty"`
	ThumbKey   string `json:"thumb_key,omitempty"`

	// Filename is the user-chosen name, set at the final transition.
	Filename string `json:"filename,omitempty"`
}

// New returns a fresh session at the first step.
func New() *Session {
	return &Session{Step: StepAwaitingPackage}
}

// Decode deserializes a stored session blob, defaulting unknown or missing
// step values to the first step rather than trusting arbitrary shape.
func Decode(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	switch s.Step {
	case StepAwaitingPackage, StepAwaitingIcon, StepAwaitingName:
	default:
		s.Step = StepAwaitingPackage
	}
	return &s, nil
}

// DownloadToken maps an opaque token to the material needed to serve a
// direct download: either a blob key or a Telegram file path, plus the
// user-chosen name.
type DownloadToken struct {
	StorageKey  string `json:"storage_key,omitempty"`
	PackagePath string `json:"package_path,omitempty"`
	Filename    string `json:"filename"`
}
