package feed

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"biom-sync/internal/domain"
	"biom-sync/internal/infra/metrics"
)

// LoadState — состояние загрузки фотографий одного мероприятия.
type LoadState int

const (
	NotRequested LoadState = iota
	Queued
	Loading
	Loaded
)

func (s LoadState) String() string {
	switch s {
	case Queued:
		return "queued"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	default:
		return "not_requested"
	}
}

// PhotoFetcher загружает фотографии по списку мероприятий.
type PhotoFetcher interface {
	ListEventPhotos(ctx context.Context, eventIDs []int64) ([]domain.EventPhoto, error)
}

// PhotoQueue загружает фотографии лениво, строго по одному и в порядке постановки.
type PhotoQueue struct {
	fetcher PhotoFetcher
	timeout time.Duration
	log     zerolog.Logger
	// onSettled вызывается после записи результата, вне блокировки.
	onSettled func(id int64)

	mu       sync.Mutex
	pending  []int64
	states   map[int64]LoadState
	photos   map[int64][]domain.EventPhoto
	draining bool
	idle     chan struct{}
	gen      uint64
}

// NewPhotoQueue создаёт очередь; timeout ограничивает одну загрузку.
func NewPhotoQueue(fetcher PhotoFetcher, timeout time.Duration, logger zerolog.Logger) *PhotoQueue {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PhotoQueue{
		fetcher: fetcher,
		timeout: timeout,
		log:     logger,
		states:  make(map[int64]LoadState),
		photos:  make(map[int64][]domain.EventPhoto),
	}
}

// Enqueue ставит мероприятие в очередь, если его фотографии ещё не загружены и не ожидают загрузки.
func (q *PhotoQueue) Enqueue(id int64) {
	if id <= 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	switch q.states[id] {
	case Loaded, Loading, Queued:
		return
	}
	q.states[id] = Queued
	q.pending = append(q.pending, id)
	metrics.PhotoQueueDepth.Inc()
	if q.draining {
		return
	}
	q.draining = true
	q.idle = make(chan struct{})
	go q.drain(q.idle)
}

func (q *PhotoQueue) drain(idle chan struct{}) {
	defer close(idle)
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}
		id := q.pending[0]
		q.pending = q.pending[1:]
		metrics.PhotoQueueDepth.Dec()
		if st := q.states[id]; st == Loaded || st == Loading {
			q.mu.Unlock()
			continue
		}
		q.states[id] = Loading
		gen := q.gen
		q.mu.Unlock()

		list := q.fetch(id)

		q.mu.Lock()
		if gen != q.gen {
			q.mu.Unlock()
			continue
		}
		q.photos[id] = list
		q.states[id] = Loaded
		q.mu.Unlock()

		if q.onSettled != nil {
			q.onSettled(id)
		}
	}
}

func (q *PhotoQueue) fetch(id int64) []domain.EventPhoto {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	rows, err := q.fetcher.ListEventPhotos(ctx, []int64{id})
	metrics.ObservePhotoFetch(err)
	if err != nil {
		q.log.Warn().Err(err).Int64("event_id", id).Msg("feed: не удалось загрузить фотографии")
		return []domain.EventPhoto{}
	}
	list := make([]domain.EventPhoto, 0, len(rows))
	for _, p := range rows {
		if p.EventID == id {
			list = append(list, p)
		}
	}
	return list
}

// IsLoading сообщает, идёт ли загрузка фотографий мероприятия.
func (q *PhotoQueue) IsLoading(id int64) bool {
	return q.State(id) == Loading
}

// IsLoaded сообщает, загружены ли фотографии мероприятия.
func (q *PhotoQueue) IsLoaded(id int64) bool {
	return q.State(id) == Loaded
}

// State возвращает состояние загрузки.
func (q *PhotoQueue) State(id int64) LoadState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.states[id]
}

// Photos возвращает копию загруженных фотографий или пустой список.
func (q *PhotoQueue) Photos(id int64) []domain.EventPhoto {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.EventPhoto{}, q.photos[id]...)
}

// All возвращает копию всех загруженных наборов фотографий.
func (q *PhotoQueue) All() map[int64][]domain.EventPhoto {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[int64][]domain.EventPhoto, len(q.photos))
	for id, list := range q.photos {
		out[id] = append([]domain.EventPhoto{}, list...)
	}
	return out
}

// Pending возвращает длину очереди ожидания.
func (q *PhotoQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Seed помечает наборы фотографий загруженными без обращения к сервису.
func (q *PhotoQueue) Seed(photos map[int64][]domain.EventPhoto) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id, list := range photos {
		if q.states[id] != NotRequested {
			continue
		}
		q.photos[id] = append([]domain.EventPhoto{}, list...)
		q.states[id] = Loaded
	}
}

// Reset забывает все состояния и очередь; текущая загрузка будет отброшена.
func (q *PhotoQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	metrics.PhotoQueueDepth.Sub(float64(len(q.pending)))
	q.pending = nil
	q.states = make(map[int64]LoadState)
	q.photos = make(map[int64][]domain.EventPhoto)
	q.gen++
}

// Wait блокируется, пока обработчик очереди не завершит работу.
func (q *PhotoQueue) Wait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()
	if idle == nil {
		return nil
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
