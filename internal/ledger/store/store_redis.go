package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "arbiter:ledger:ref:"

// Redis stores references in Redis so separate instances deduplicate against
// the same set. A zero TTL keeps references forever.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis creates a Redis-backed reference store.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (s *Redis) Save(ctx context.Context, ref Reference) error {
	payload, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("marshaling reference: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+ref.RequestID, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("storing reference: %w", err)
	}
	return nil
}

func (s *Redis) Find(ctx context.Context, requestID string) (Reference, error) {
	payload, err := s.client.Get(ctx, redisKeyPrefix+requestID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Reference{}, ErrNotFound
	}
	if err != nil {
		return Reference{}, fmt.Errorf("fetching reference: %w", err)
	}
	var ref Reference
	if err := json.Unmarshal(payload, &ref); err != nil {
		return Reference{}, fmt.Errorf("unmarshaling reference: %w", err)
	}
	return ref, nil
}
