// Package ids provides the identifier-generation capability used for
// download tokens, multipart boundaries, and blob keys. Production code uses
// the crypto-backed generator; tests inject a deterministic one.
package ids

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

type Generator interface {
	// Hex returns a 32-character lowercase hex string.
	Hex() string
	// UUID returns a random UUID string.
	UUID() string
}

// Crypto generates identifiers from crypto/rand.
type Crypto struct{}

func (Crypto) Hex() string {
	var b [16]byte
	// crypto/rand.Read never fails on supported platforms.
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func (Crypto) UUID() string {
	return uuid.NewString()
}

// Sequence is a deterministic generator for tests.
type Sequence struct {
	n atomic.Int64
}

func (s *Sequence) Hex() string {
	return fmt.Sprintf("%032x", s.n.Add(1))
}

func (s *Sequence) UUID() string {
	return fmt.Sprintf("00000000-0000-0000-0000-%012d", s.n.Add(1))
}
