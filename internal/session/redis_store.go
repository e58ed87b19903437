package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists session state in Redis with a TTL so abandoned
// conversations expire on their own.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func sessionKey(senderID int64) string {
	return fmt.Sprintf("session:%d", senderID)
}

func (s *RedisStore) Get(ctx context.Context, senderID int64) (*State, error) {
	raw, err := s.client.Get(ctx, sessionKey(senderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session get: %w", err)
	}

	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("session decode: %w", err)
	}
	return &st, nil
}

func (s *RedisStore) Put(ctx context.Context, senderID int64, st *State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("session encode: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(senderID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("session put: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, senderID int64) error {
	if err := s.client.Del(ctx, sessionKey(senderID)).Err(); err != nil {
		return fmt.Errorf("session delete: %w", err)
	}
	return nil
}
