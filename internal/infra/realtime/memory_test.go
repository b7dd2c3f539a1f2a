package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"biom-sync/internal/domain"
)

func TestMemoryHubFanOutPerTopic(t *testing.T) {
	ctx := context.Background()
	hub := NewMemoryHub(4)

	first, cancelFirst, _ := hub.Subscribe(ctx, "messages:a")
	second, cancelSecond, _ := hub.Subscribe(ctx, "messages:a")
	other, cancelOther, _ := hub.Subscribe(ctx, "messages:b")
	defer cancelSecond()
	defer cancelOther()

	ev := domain.RealtimeEvent{Type: domain.RealtimeInsert, Payload: json.RawMessage(`{"id":"1"}`)}
	if err := hub.Publish(ctx, "messages:a", ev); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	for _, ch := range []<-chan domain.RealtimeEvent{first, second} {
		select {
		case got := <-ch:
			if got.Type != domain.RealtimeInsert {
				t.Fatalf("ожидали INSERT, получили %s", got.Type)
			}
		case <-time.After(time.Second):
			t.Fatalf("событие не доставлено")
		}
	}
	select {
	case <-other:
		t.Fatalf("событие чужого топика не должно доставляться")
	default:
	}

	cancelFirst()
	if _, ok := <-first; ok {
		t.Fatalf("после отписки канал должен быть закрыт")
	}
	if hub.Subscribers("messages:a") != 1 {
		t.Fatalf("ожидали одного подписчика после отписки")
	}
	cancelFirst()
}

func TestOpenSelectsBackend(t *testing.T) {
	hub, closeHub, err := Open(Options{Backend: "memory", Buffer: 2}, zerolog.Nop())
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	defer closeHub()
	if _, ok := hub.(*MemoryHub); !ok {
		t.Fatalf("ожидали MemoryHub, получили %T", hub)
	}
	if _, _, err := Open(Options{Backend: "redis"}, zerolog.Nop()); err == nil {
		t.Fatalf("redis без клиента должен вернуть ошибку")
	}
	if _, _, err := Open(Options{Backend: "kafka"}, zerolog.Nop()); err == nil {
		t.Fatalf("неизвестный backend должен вернуть ошибку")
	}
}
