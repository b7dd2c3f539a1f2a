package feed

import (
	"context"
	"errors"
	"sync"

	"biom-sync/internal/domain"
)

type stubRepo struct {
	mu sync.Mutex

	rows       []domain.Event
	categories []domain.Category
	photos     map[int64][]domain.EventPhoto

	pageErr   error
	photoErr  map[int64]error
	pageGate  chan struct{}
	photoGate chan struct{}
	started   chan int64

	pageCalls     int
	categoryCalls int
	photoCalls    []int64
	inFlight      int
	maxInFlight   int
}

func newStubRepo(n int) *stubRepo {
	r := &stubRepo{photos: map[int64][]domain.EventPhoto{}, photoErr: map[int64]error{}}
	for i := 1; i <= n; i++ {
		r.rows = append(r.rows, domain.Event{ID: int64(i), Title: "event", IsPublished: true})
	}
	r.categories = []domain.Category{{ID: 1, Name: " Музыка "}, {ID: 2, Name: "Спорт"}}
	return r
}

func (r *stubRepo) ListEventsPage(ctx context.Context, from, to int) ([]domain.Event, error) {
	r.mu.Lock()
	r.pageCalls++
	gate := r.pageGate
	err := r.pageErr
	r.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	if from >= len(r.rows) {
		return nil, nil
	}
	if to >= len(r.rows) {
		to = len(r.rows) - 1
	}
	return append([]domain.Event{}, r.rows[from:to+1]...), nil
}

func (r *stubRepo) ListCategories(ctx context.Context) ([]domain.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.categoryCalls++
	return r.categories, nil
}

func (r *stubRepo) ListEventPhotos(ctx context.Context, ids []int64) ([]domain.EventPhoto, error) {
	if len(ids) != 1 {
		return nil, errors.New("ожидали ровно один id")
	}
	id := ids[0]
	r.mu.Lock()
	r.photoCalls = append(r.photoCalls, id)
	r.inFlight++
	if r.inFlight > r.maxInFlight {
		r.maxInFlight = r.inFlight
	}
	gate := r.photoGate
	started := r.started
	err := r.photoErr[id]
	list := r.photos[id]
	r.mu.Unlock()

	if started != nil {
		started <- id
	}
	if gate != nil {
		<-gate
	}

	r.mu.Lock()
	r.inFlight--
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (r *stubRepo) calls() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.photoCalls...)
}
