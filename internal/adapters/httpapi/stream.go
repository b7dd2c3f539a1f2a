package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"biom-sync/internal/domain"
	httpinfra "biom-sync/internal/infra/http"
	"biom-sync/internal/usecase/messaging"
)

const streamKeepAlive = 25 * time.Second

type streamEvent struct {
	name string
	data any
}

// stream отдаёт server-sent events: сообщения, отметки о прочтении,
// набор текста собеседника из ?with= и счётчик непрочитанных.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	s, id, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpinfra.WriteError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	ctx := r.Context()
	me := id.UserID
	other := r.URL.Query().Get("with")

	out := make(chan streamEvent, 64)
	push := func(ev streamEvent) {
		select {
		case out <- ev:
		case <-ctx.Done():
		}
	}

	// Счётчик непрочитанных ведёт сессия: поток только читает его, иначе
	// каждая открытая вкладка добавляла бы единицу за одно и то же сообщение.
	if err := s.WatchUnread(ctx, h.channels); err != nil {
		h.fail(w, r, err)
		return
	}

	watch, err := h.channels.WatchMessages(ctx, me, messaging.MessageHandlers{
		OnInsert: func(m domain.Message) {
			push(streamEvent{name: "message", data: m})
		},
		OnUpdate: func(m domain.Message) {
			push(streamEvent{name: "message_update", data: m})
		},
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer watch.Close()

	if other != "" {
		typing, err := h.channels.WatchTyping(ctx, me, other, func(sig domain.TypingSignal) {
			push(streamEvent{name: "typing", data: sig})
		})
		if err != nil {
			h.fail(w, r, err)
			return
		}
		defer typing.Close()
	}

	counts, cancelCounts := s.Unread.Subscribe()
	defer cancelCounts()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := writeEvent(w, streamEvent{name: "unread", data: map[string]int{"unread": s.Unread.Value()}}); err != nil {
		return
	}
	flusher.Flush()

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			return
		case ev := <-out:
			err = writeEvent(w, ev)
		case n := <-counts:
			err = writeEvent(w, streamEvent{name: "unread", data: map[string]int{"unread": n}})
		case <-keepAlive.C:
			_, err = fmt.Fprint(w, ": ping\n\n")
		}
		if err != nil {
			h.log.Debug().Err(err).Str("user", me).Msg("stream: клиент отключился")
			return
		}
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, ev streamEvent) error {
	data, err := json.Marshal(ev.data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, data)
	return err
}
