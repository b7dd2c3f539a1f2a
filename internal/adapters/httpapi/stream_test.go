package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	httpinfra "biom-sync/internal/infra/http"
)

type sseEvent struct {
	name string
	data string
}

// openStream подключается к /stream без X-Session-ID: все вкладки пользователя делят одну сессию.
func openStream(t *testing.T, ctx context.Context, baseURL, user string) <-chan sseEvent {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/v1/stream", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set(httpinfra.HeaderUserID, user)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stream: ожидали 200, получили %d", resp.StatusCode)
	}

	out := make(chan sseEvent, 32)
	go func() {
		defer resp.Body.Close()
		defer close(out)
		sc := bufio.NewScanner(resp.Body)
		var ev sseEvent
		for sc.Scan() {
			line := sc.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.data = strings.TrimPrefix(line, "data: ")
			case line == "" && ev.name != "":
				out <- ev
				ev = sseEvent{}
			}
		}
	}()
	return out
}

func nextEvent(t *testing.T, events <-chan sseEvent, name string) sseEvent {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("поток закрыт до события %q", name)
			}
			if ev.name == name {
				return ev
			}
		case <-timeout:
			t.Fatalf("не дождались события %q", name)
		}
	}
}

func unreadOf(t *testing.T, ev sseEvent) int {
	t.Helper()
	var body map[string]int
	if err := json.Unmarshal([]byte(ev.data), &body); err != nil {
		t.Fatalf("unread: некорректные данные %q", ev.data)
	}
	return body["unread"]
}

func TestUnreadCountedOnceAcrossStreams(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(&fakeEvents{}, &fakeMessages{}))
	defer srv.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := openStream(t, ctx, srv.URL, bob)
	second := openStream(t, ctx, srv.URL, bob)
	for _, s := range []<-chan sseEvent{first, second} {
		if n := unreadOf(t, nextEvent(t, s, "unread")); n != 0 {
			t.Fatalf("начальный счётчик: ожидали 0, получили %d", n)
		}
	}

	rec, body := do(t, srv.Config.Handler, http.MethodPost, "/api/v1/conversations/"+bob+"/messages", alice, `{"body":"hi"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("send: ожидали 201, получили %d %v", rec.Code, body)
	}

	for i, s := range []<-chan sseEvent{first, second} {
		if last := settledUnread(t, s); last != 1 {
			t.Fatalf("поток %d: одно сообщение должно дать unread=1, получили %d", i+1, last)
		}
	}
}

// settledUnread ждёт событие message и возвращает последнее значение unread,
// пришедшее до того, как поток затих.
func settledUnread(t *testing.T, events <-chan sseEvent) int {
	t.Helper()
	last := -1
	deadline := time.After(2 * time.Second)
	var settle <-chan time.Time
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("поток закрыт раньше времени")
			}
			switch ev.name {
			case "message":
				if settle == nil {
					settle = time.After(150 * time.Millisecond)
				}
			case "unread":
				last = unreadOf(t, ev)
			}
		case <-settle:
			return last
		case <-deadline:
			t.Fatalf("не дождались сообщения в потоке")
		}
	}
}
