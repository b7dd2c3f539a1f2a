package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"biom-sync/internal/domain"
	"biom-sync/internal/infra/metrics"
)

// RabbitHub реализует domain.Realtime через topic exchange RabbitMQ.
// Каждый подписчик получает собственную эксклюзивную очередь.
type RabbitHub struct {
	conn     *amqp.Connection
	exchange string
	buffer   int
	log      zerolog.Logger

	mu  sync.Mutex
	pub *amqp.Channel
}

var _ domain.Realtime = (*RabbitHub)(nil)

// NewRabbitHub подключается к брокеру и объявляет exchange.
func NewRabbitHub(amqpURL, exchange string, buffer int, logger zerolog.Logger) (*RabbitHub, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if exchange == "" {
		return nil, errors.New("exchange name is empty")
	}
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	pub, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := pub.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &RabbitHub{conn: conn, exchange: exchange, buffer: buffer, log: logger, pub: pub}, nil
}

// Subscribe создаёт временную очередь, привязанную к топику.
func (h *RabbitHub) Subscribe(ctx context.Context, topic string) (<-chan domain.RealtimeEvent, func(), error) {
	start := time.Now()
	ch, deliveries, err := h.consume(topic)
	metrics.ObserveNetworkRequest("rabbitmq", "subscribe", "realtime", start, err)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan domain.RealtimeEvent, h.buffer)
	go func() {
		defer close(out)
		for d := range deliveries {
			var ev domain.RealtimeEvent
			if err := json.Unmarshal(d.Body, &ev); err != nil {
				h.log.Warn().Err(err).Str("topic", topic).Msg("realtime: некорректное событие")
				continue
			}
			out <- ev
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			if err := ch.Close(); err != nil {
				h.log.Debug().Err(err).Str("topic", topic).Msg("realtime: ошибка закрытия канала")
			}
		})
	}
	return out, cancel, nil
}

func (h *RabbitHub) consume(topic string) (*amqp.Channel, <-chan amqp.Delivery, error) {
	ch, err := h.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, topic, h.exchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("bind queue: %w", err)
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("consume: %w", err)
	}
	return ch, deliveries, nil
}

// Publish публикует событие с routing key, равным топику.
func (h *RabbitHub) Publish(ctx context.Context, topic string, event domain.RealtimeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	start := time.Now()
	h.mu.Lock()
	err = h.pub.PublishWithContext(ctx, h.exchange, topic, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now().UTC(),
		Body:        payload,
	})
	h.mu.Unlock()
	metrics.ObserveNetworkRequest("rabbitmq", "publish", "realtime", start, err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close закрывает соединение с брокером.
func (h *RabbitHub) Close() error {
	return h.conn.Close()
}
