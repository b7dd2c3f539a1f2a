package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"biom-sync/internal/domain"
)

const defaultBuffer = 64

// MemoryHub рассылает события подписчикам внутри процесса.
type MemoryHub struct {
	mu     sync.Mutex
	buffer int
	topics map[string]map[string]chan domain.RealtimeEvent
}

var _ domain.Realtime = (*MemoryHub)(nil)

// NewMemoryHub создаёт хаб с буфером buffer на подписчика.
func NewMemoryHub(buffer int) *MemoryHub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &MemoryHub{buffer: buffer, topics: make(map[string]map[string]chan domain.RealtimeEvent)}
}

// Subscribe подписывает на топик; вызов cancel закрывает канал.
func (h *MemoryHub) Subscribe(_ context.Context, topic string) (<-chan domain.RealtimeEvent, func(), error) {
	id := uuid.NewString()
	ch := make(chan domain.RealtimeEvent, h.buffer)

	h.mu.Lock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[string]chan domain.RealtimeEvent)
		h.topics[topic] = subs
	}
	subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if subs, ok := h.topics[topic]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(h.topics, topic)
				}
			}
			close(ch)
		})
	}
	return ch, cancel, nil
}

// Publish доставляет событие всем текущим подписчикам; переполненные буферы пропускаются.
func (h *MemoryHub) Publish(_ context.Context, topic string, event domain.RealtimeEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.topics[topic] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribers возвращает число подписчиков топика.
func (h *MemoryHub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}
