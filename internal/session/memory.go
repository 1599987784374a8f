package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore is an in-process Store and Locker used in tests. It honors
// TTLs with wall-clock checks so expiry behavior matches the Redis store.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[int64]memoryEntry
	tokens   map[string]memoryEntry
	locks    map[int64]time.Time
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[int64]memoryEntry),
		tokens:   make(map[string]memoryEntry),
		locks:    make(map[int64]time.Time),
	}
}

func (s *MemoryStore) Get(_ context.Context, chatID int64) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[chatID]
	if !ok || entry.expired(time.Now()) {
		return nil, ErrNotFound
	}
	return Decode(entry.data)
}

func (s *MemoryStore) Put(_ context.Context, chatID int64, sess *Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	entry := memoryEntry{data: data}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[chatID] = entry
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, chatID)
	return nil
}

func (s *MemoryStore) PutToken(_ context.Context, token string, payload DownloadToken, ttl time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	entry := memoryEntry{data: data}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = entry
	return nil
}

func (s *MemoryStore) GetToken(_ context.Context, token string) (DownloadToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.tokens[token]
	if !ok || entry.expired(time.Now()) {
		return DownloadToken{}, ErrNotFound
	}
	var payload DownloadToken
	if err := json.Unmarshal(entry.data, &payload); err != nil {
		return DownloadToken{}, err
	}
	return payload, nil
}

func (s *MemoryStore) Acquire(_ context.Context, chatID int64, ttl time.Duration) error {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if until, ok := s.locks[chatID]; ok && now.Before(until) {
		return ErrLockHeld
	}
	s.locks[chatID] = now.Add(ttl)
	return nil
}

func (s *MemoryStore) Release(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, chatID)
	return nil
}

var (
	_ Store  = (*MemoryStore)(nil)
	_ Locker = (*MemoryStore)(nil)
)
