package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"biom-sync/internal/domain"
	"biom-sync/internal/infra/metrics"
)

// TypingEvent — имя широковещательного события набора текста.
const TypingEvent = "typing"

// MessageHandlers получает изменения строк сообщений.
type MessageHandlers struct {
	OnInsert func(domain.Message)
	OnUpdate func(domain.Message)
}

// Watch описывает локального слушателя топика.
type Watch struct {
	id    string
	topic *topicSub
}

// Close отключает слушателя; последний слушатель закрывает подписку.
func (w *Watch) Close() {
	w.topic.detach(w.id)
}

// Channels держит по одной realtime-подписке на топик и раздаёт события слушателям.
type Channels struct {
	hub domain.Realtime
	log zerolog.Logger
	now func() time.Time

	mu     sync.Mutex
	topics map[string]*topicSub
}

// NewChannels создаёт менеджер подписок.
func NewChannels(hub domain.Realtime, logger zerolog.Logger) *Channels {
	return &Channels{hub: hub, log: logger, now: time.Now, topics: make(map[string]*topicSub)}
}

type topicSub struct {
	name  string
	kind  string
	owner *Channels
	// ready закрывается, когда удалённая подписка установлена или не удалась.
	ready  chan struct{}
	cancel func()

	mu      sync.Mutex
	targets map[string]func(domain.RealtimeEvent)
	closed  bool
}

// WatchMessages подписывает пользователя на все его переписки сразу.
func (c *Channels) WatchMessages(ctx context.Context, me string, h MessageHandlers) (*Watch, error) {
	if err := checkUser(me); err != nil {
		return nil, err
	}
	return c.attach(ctx, domain.MessagesTopic(me), "messages", func(ev domain.RealtimeEvent) {
		var msg domain.Message
		if err := json.Unmarshal(ev.Payload, &msg); err != nil {
			c.log.Warn().Err(err).Str("user", me).Msg("realtime: некорректная строка сообщения")
			return
		}
		switch ev.Type {
		case domain.RealtimeInsert:
			if h.OnInsert != nil {
				h.OnInsert(msg)
			}
		case domain.RealtimeUpdate:
			if h.OnUpdate != nil {
				h.OnUpdate(msg)
			}
		}
	})
}

// WatchTyping подписывает на сигналы набора текста от other к me.
func (c *Channels) WatchTyping(ctx context.Context, me, other string, fn func(domain.TypingSignal)) (*Watch, error) {
	if err := checkPair(me, other); err != nil {
		return nil, err
	}
	return c.attach(ctx, domain.ConversationKey(me, other), "typing", func(ev domain.RealtimeEvent) {
		if ev.Type != domain.RealtimeBroadcast || ev.Event != TypingEvent {
			return
		}
		var sig domain.TypingSignal
		if err := json.Unmarshal(ev.Payload, &sig); err != nil {
			return
		}
		if sig.From != other || sig.To != me {
			return
		}
		fn(sig)
	})
}

// SendTyping публикует сигнал набора текста без гарантии доставки.
func (c *Channels) SendTyping(ctx context.Context, me, other string, typing bool) error {
	if err := checkPair(me, other); err != nil {
		return err
	}
	payload, err := json.Marshal(domain.TypingSignal{From: me, To: other, Typing: typing, TS: c.now().UnixMilli()})
	if err != nil {
		return fmt.Errorf("marshal typing: %w", err)
	}
	err = c.hub.Publish(ctx, domain.ConversationKey(me, other), domain.RealtimeEvent{
		Type:    domain.RealtimeBroadcast,
		Event:   TypingEvent,
		Payload: payload,
	})
	if err != nil {
		c.log.Debug().Err(err).Str("from", me).Str("to", other).Msg("realtime: сигнал набора не отправлен")
		return err
	}
	return nil
}

// Active возвращает число открытых realtime-подписок.
func (c *Channels) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.topics)
}

// attach добавляет слушателя к топику. Удалённая подписка открывается вне c.mu;
// пока она устанавливается, остальные вызовы для того же топика ждут ready.
func (c *Channels) attach(ctx context.Context, topic, kind string, target func(domain.RealtimeEvent)) (*Watch, error) {
	for {
		c.mu.Lock()
		sub, ok := c.topics[topic]
		if !ok {
			sub = &topicSub{
				name:    topic,
				kind:    kind,
				owner:   c,
				ready:   make(chan struct{}),
				targets: make(map[string]func(domain.RealtimeEvent)),
			}
			c.topics[topic] = sub
			c.mu.Unlock()
			return c.open(ctx, sub, target)
		}
		select {
		case <-sub.ready:
			w := sub.add(target)
			c.mu.Unlock()
			return w, nil
		default:
		}
		c.mu.Unlock()

		select {
		case <-sub.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Channels) open(ctx context.Context, sub *topicSub, target func(domain.RealtimeEvent)) (*Watch, error) {
	events, cancel, err := c.hub.Subscribe(ctx, sub.name)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer close(sub.ready)
	if err != nil {
		delete(c.topics, sub.name)
		return nil, fmt.Errorf("подписка на %s: %w", sub.name, err)
	}
	sub.cancel = cancel
	w := sub.add(target)
	go sub.dispatch(events)
	c.log.Debug().Str("topic", sub.name).Msg("realtime: подписка открыта")
	return w, nil
}

func (s *topicSub) add(target func(domain.RealtimeEvent)) *Watch {
	id := uuid.NewString()
	s.mu.Lock()
	s.targets[id] = target
	s.mu.Unlock()
	return &Watch{id: id, topic: s}
}

func (s *topicSub) dispatch(events <-chan domain.RealtimeEvent) {
	for ev := range events {
		metrics.ObserveRealtimeEvent(s.kind, string(ev.Type))
		s.mu.Lock()
		targets := make([]func(domain.RealtimeEvent), 0, len(s.targets))
		for _, fn := range s.targets {
			targets = append(targets, fn)
		}
		s.mu.Unlock()
		for _, fn := range targets {
			fn(ev)
		}
	}
}

// detach убирает слушателя; последний слушатель закрывает удалённую подписку вне c.mu.
func (s *topicSub) detach(id string) {
	c := s.owner
	c.mu.Lock()
	s.mu.Lock()
	delete(s.targets, id)
	last := len(s.targets) == 0 && !s.closed
	if last {
		s.closed = true
	}
	s.mu.Unlock()
	if last && c.topics[s.name] == s {
		delete(c.topics, s.name)
	}
	c.mu.Unlock()

	if !last {
		return
	}
	s.cancel()
	c.log.Debug().Str("topic", s.name).Msg("realtime: подписка закрыта")
}
