package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/luknerlumina/patientflow/internal/domain/providers"
	redisclient "github.com/luknerlumina/patientflow/internal/infrastructure/clients/redis"
	apperrors "github.com/luknerlumina/patientflow/pkg/errors"
)

// DefaultKeyPrefix namespaces patientflow keys in shared Redis instances
const DefaultKeyPrefix = "patientflow:"

// RedisStore implements SnapshotStore using Redis strings
type RedisStore struct {
	client *redisclient.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis snapshot store. ttl of zero keeps keys forever.
func NewRedisStore(client *redisclient.Client, ttl time.Duration) providers.SnapshotStore {
	return &RedisStore{
		client: client,
		prefix: DefaultKeyPrefix,
		ttl:    ttl,
	}
}

// Get retrieves a snapshot blob
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.client.Client().Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.NewNotFoundError("snapshot not found: " + key)
	}
	if err != nil {
		return nil, apperrors.NewPersistError("failed to read snapshot from redis", err)
	}
	return result, nil
}

// Set stores a snapshot blob
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Client().Set(ctx, s.prefix+key, value, s.ttl).Err(); err != nil {
		return apperrors.NewPersistError("failed to write snapshot to redis", err)
	}
	return nil
}

// Delete removes a snapshot
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Client().Del(ctx, s.prefix+key).Err(); err != nil {
		return apperrors.NewPersistError("failed to delete snapshot from redis", err)
	}
	return nil
}

// Exists checks if a snapshot exists
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	result, err := s.client.Client().Exists(ctx, s.prefix+key).Result()
	if err != nil {
		return false, apperrors.NewPersistError("failed to check snapshot in redis", err)
	}
	return result > 0, nil
}
