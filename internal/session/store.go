package session

import (
	"context"
	"time"
)

// Store persists sessions and download tokens. Each operation is
// independently atomic; a chat's session is the unit of isolation.
type Store interface {
	// Get returns the session for the chat, or ErrNotFound.
	Get(ctx context.Context, chatID int64) (*Session, error)
	// Put stores the session with the given TTL (0 means no expiry).
	Put(ctx context.Context, chatID int64, s *Session, ttl time.Duration) error
	// Delete removes the session. Deleting an absent session is not an error.
	Delete(ctx context.Context, chatID int64) error

	// PutToken stores a download token payload with the given TTL.
	PutToken(ctx context.Context, token string, payload DownloadToken, ttl time.Duration) error
	// GetToken returns the payload for the token, or ErrNotFound once it
	// expired or never existed.
	GetToken(ctx context.Context, token string) (DownloadToken, error)
}

// Locker is the single-flight guard for the final dispatch: put-if-absent
// with expiry, keyed by chat.
type Locker interface {
	// Acquire takes the lock for the chat. It returns ErrLockHeld when an
	// unexpired lock already exists.
	Acquire(ctx context.Context, chatID int64, ttl time.Duration) error
	// Release drops the lock early. Releasing an absent lock is not an error.
	Release(ctx context.Context, chatID int64) error
}
