package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"biom-sync/internal/domain"
	"biom-sync/internal/infra/metrics"
)

// RedisStore реализует domain.SnapshotStore через Redis.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ domain.SnapshotStore = (*RedisStore)(nil)

// NewRedis создаёт хранилище снимков; ttl ограничивает время жизни сессии.
func NewRedis(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Load возвращает значение или nil, если ключа нет.
func (s *RedisStore) Load(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.ObserveNetworkRequest("redis", "get", "snapshot", start, nil)
		return nil, nil
	}
	metrics.ObserveNetworkRequest("redis", "get", "snapshot", start, err)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Save задаёт значение.
func (s *RedisStore) Save(ctx context.Context, key string, data []byte) error {
	start := time.Now()
	err := s.client.Set(ctx, key, data, s.ttl).Err()
	metrics.ObserveNetworkRequest("redis", "set", "snapshot", start, err)
	return err
}

// Remove удаляет значение.
func (s *RedisStore) Remove(ctx context.Context, key string) error {
	start := time.Now()
	err := s.client.Del(ctx, key).Err()
	metrics.ObserveNetworkRequest("redis", "del", "snapshot", start, err)
	return err
}
