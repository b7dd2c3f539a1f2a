package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"biom-sync/internal/domain"
	"biom-sync/internal/infra/metrics"
	"biom-sync/internal/usecase/counters"
	"biom-sync/internal/usecase/feed"
	"biom-sync/internal/usecase/messaging"
	"biom-sync/internal/usecase/snapshot"
)

// Session хранит состояние одного клиента.
type Session struct {
	ID     string
	UserID string
	Loader *feed.Loader
	Unread *counters.Unread
	Cache  *snapshot.Cache

	mu       sync.Mutex
	lastSeen time.Time

	watchMu sync.Mutex
	watch   *messaging.Watch
	closed  bool
}

// LastSeen возвращает время последнего обращения.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) touch(at time.Time) {
	s.mu.Lock()
	s.lastSeen = at
	s.mu.Unlock()
}

// WatchUnread один раз на сессию подписывается на сообщения пользователя:
// каждое новое входящее увеличивает Unread ровно на единицу, сколько бы потоков ни читало счётчик.
func (s *Session) WatchUnread(ctx context.Context, channels *messaging.Channels) error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watch != nil || s.closed {
		return nil
	}
	me := s.UserID
	w, err := channels.WatchMessages(ctx, me, messaging.MessageHandlers{
		OnInsert: func(m domain.Message) {
			if m.ReceiverID == me && m.SenderID != me {
				s.Unread.Increment(1)
			}
		},
	})
	if err != nil {
		return err
	}
	s.watch = w
	return nil
}

// close останавливает подписку сессии и фоновые записи в снимок.
func (s *Session) close(ctx context.Context) {
	s.watchMu.Lock()
	s.closed = true
	w := s.watch
	s.watch = nil
	s.watchMu.Unlock()
	if w != nil {
		w.Close()
	}
	s.Loader.Photos().Reset()
	s.Cache.Close(ctx)
}

// Options задаёт параметры новых сессий.
type Options struct {
	PageSize     int
	PhotoTimeout time.Duration
	CacheKey     string
}

// Registry создаёт сессии по требованию и хранит их до Drop.
type Registry struct {
	repo  domain.EventRepo
	store domain.SnapshotStore
	opts  Options
	log   zerolog.Logger
	now   func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry создаёт реестр сессий; store может быть nil.
func NewRegistry(repo domain.EventRepo, store domain.SnapshotStore, logger zerolog.Logger, opts Options) *Registry {
	if opts.CacheKey == "" {
		opts.CacheKey = snapshot.DefaultKey
	}
	return &Registry{
		repo:     repo,
		store:    store,
		opts:     opts,
		log:      logger.With().Str("component", "session").Logger(),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Get возвращает сессию sessionID пользователя userID, создавая её при первом обращении.
// Новая сессия пытается восстановить ленту из снимка.
func (r *Registry) Get(ctx context.Context, userID, sessionID string) (*Session, error) {
	if userID == "" {
		return nil, domain.ErrNotAuthorized
	}
	if sessionID == "" {
		return nil, domain.ErrInvalidID
	}

	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if ok && s.UserID != userID {
		r.mu.Unlock()
		return nil, domain.ErrNotAuthorized
	}
	if !ok {
		s = r.newSession(userID, sessionID)
		r.sessions[sessionID] = s
		metrics.ActiveSessions.Set(float64(len(r.sessions)))
	}
	r.mu.Unlock()

	s.touch(r.now())
	if !ok && s.Loader.RestoreFromCache(ctx) {
		r.log.Debug().Str("session", sessionID).Int("events", s.Loader.EventsCount()).Msg("лента восстановлена из снимка")
	}
	return s, nil
}

// Drop забывает сессию и очищает её снимок.
func (r *Registry) Drop(ctx context.Context, sessionID string) bool {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
		metrics.ActiveSessions.Set(float64(len(r.sessions)))
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	s.close(ctx)
	return true
}

// Sweep закрывает сессии, к которым не обращались дольше idle, и возвращает их число.
func (r *Registry) Sweep(ctx context.Context, idle time.Duration) int {
	deadline := r.now().Add(-idle)

	r.mu.Lock()
	var stale []*Session
	for id, s := range r.sessions {
		if s.LastSeen().Before(deadline) {
			stale = append(stale, s)
			delete(r.sessions, id)
		}
	}
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	for _, s := range stale {
		s.close(ctx)
	}
	if len(stale) > 0 {
		r.log.Info().Int("sessions", len(stale)).Dur("idle", idle).Msg("неактивные сессии закрыты")
	}
	return len(stale)
}

// RunSweeper вызывает Sweep каждые interval до отмены ctx.
func (r *Registry) RunSweeper(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx, idle)
		}
	}
}

// Len возвращает число активных сессий.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) newSession(userID, sessionID string) *Session {
	logger := r.log.With().Str("session", sessionID).Logger()
	cache := snapshot.New(r.store, r.opts.CacheKey+":"+sessionID, logger)
	return &Session{
		ID:     sessionID,
		UserID: userID,
		Unread: counters.NewUnread(),
		Cache:  cache,
		Loader: feed.NewLoader(r.repo, logger, feed.Options{
			PageSize:     r.opts.PageSize,
			PhotoTimeout: r.opts.PhotoTimeout,
			Cache:        cache,
		}),
	}
}
