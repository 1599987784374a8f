package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key layout, kept short because every webhook invocation round-trips them:
//
//	state:<chat_id>  session JSON
//	dl:<token>       download token JSON
//	lock:<chat_id>   single-flight marker
const (
	stateKeyPrefix = "state:"
	tokenKeyPrefix = "dl:"
	lockKeyPrefix  = "lock:"
)

// RedisStore implements Store and Locker on a Redis client. The lock relies
// on SET NX with expiry, so concurrent invocations on different hosts
// coordinate through the store alone.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisStore(log *slog.Logger, client *redis.Client) *RedisStore {
	if log == nil {
		log = slog.Default()
	}
	return &RedisStore{
		client: client,
		logger: log.With(slog.String("service", "session")),
	}
}

func stateKey(chatID int64) string {
	return stateKeyPrefix + strconv.FormatInt(chatID, 10)
}

func lockKey(chatID int64) string {
	return lockKeyPrefix + strconv.FormatInt(chatID, 10)
}

func (s *RedisStore) Get(ctx context.Context, chatID int64) (*Session, error) {
	data, err := s.client.Get(ctx, stateKey(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return Decode(data)
}

func (s *RedisStore) Put(ctx context.Context, chatID int64, sess *Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, stateKey(chatID), data, ttl).Err(); err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, chatID int64) error {
	if err := s.client.Del(ctx, stateKey(chatID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *RedisStore) PutToken(ctx context.Context, token string, payload DownloadToken, ttl time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := s.client.Set(ctx, tokenKeyPrefix+token, data, ttl).Err(); err != nil {
		return fmt.Errorf("put token: %w", err)
	}
	return nil
}

func (s *RedisStore) GetToken(ctx context.Context, token string) (DownloadToken, error) {
	data, err := s.client.Get(ctx, tokenKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return DownloadToken{}, ErrNotFound
	}
	if err != nil {
		return DownloadToken{}, fmt.Errorf("get token: %w", err)
	}
	var payload DownloadToken
	if err := json.Unmarshal(data, &payload); err != nil {
		return DownloadToken{}, fmt.Errorf("decode token: %w", err)
	}
	return payload, nil
}

func (s *RedisStore) Acquire(ctx context.Context, chatID int64, ttl time.Duration) error {
	ok, err := s.client.SetNX(ctx, lockKey(chatID), "1", ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrLockHeld
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, chatID int64) error {
	if err := s.client.Del(ctx, lockKey(chatID)).Err(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

var (
	_ Store  = (*RedisStore)(nil)
	_ Locker = (*RedisStore)(nil)
)
