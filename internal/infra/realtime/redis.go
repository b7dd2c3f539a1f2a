package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"biom-sync/internal/domain"
	"biom-sync/internal/infra/metrics"
)

// RedisHub реализует domain.Realtime поверх Redis PUBLISH/SUBSCRIBE.
type RedisHub struct {
	client *redis.Client
	buffer int
	log    zerolog.Logger
}

var _ domain.Realtime = (*RedisHub)(nil)

// NewRedisHub создаёт хаб.
func NewRedisHub(client *redis.Client, buffer int, logger zerolog.Logger) *RedisHub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &RedisHub{client: client, buffer: buffer, log: logger}
}

// Subscribe подписывает на топик и ждёт подтверждения от Redis.
func (h *RedisHub) Subscribe(ctx context.Context, topic string) (<-chan domain.RealtimeEvent, func(), error) {
	start := time.Now()
	ps := h.client.Subscribe(ctx, topic)
	_, err := ps.Receive(ctx)
	metrics.ObserveNetworkRequest("redis", "subscribe", "realtime", start, err)
	if err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	out := make(chan domain.RealtimeEvent, h.buffer)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			var ev domain.RealtimeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				h.log.Warn().Err(err).Str("topic", topic).Msg("realtime: некорректное событие")
				continue
			}
			out <- ev
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			if err := ps.Close(); err != nil {
				h.log.Debug().Err(err).Str("topic", topic).Msg("realtime: ошибка отписки")
			}
		})
	}
	return out, cancel, nil
}

// Publish публикует событие в топик.
func (h *RedisHub) Publish(ctx context.Context, topic string, event domain.RealtimeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	start := time.Now()
	err = h.client.Publish(ctx, topic, payload).Err()
	metrics.ObserveNetworkRequest("redis", "publish", "realtime", start, err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}
