package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"biom-sync/internal/domain"
	"biom-sync/internal/infra/cache"
	"biom-sync/internal/usecase/snapshot"
)

func TestFetchNextPageExhaustion(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepo(25)
	l := NewLoader(repo, zerolog.Nop(), Options{PageSize: 10})

	for i, want := range []int{10, 20, 25} {
		if err := l.FetchNextPage(ctx); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
		if got := l.EventsCount(); got != want {
			t.Fatalf("вызов %d: ожидали %d событий, получили %d", i+1, want, got)
		}
	}
	if l.HasMore() {
		t.Fatalf("после неполной страницы hasMore должен быть false")
	}
	if err := l.FetchNextPage(ctx); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if repo.pageCalls != 3 {
		t.Fatalf("четвёртый вызов не должен обращаться к сервису, вызовов %d", repo.pageCalls)
	}
}

func TestFetchNextPageExactMultipleNeedsExtraFetch(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepo(20)
	l := NewLoader(repo, zerolog.Nop(), Options{PageSize: 10})

	_ = l.FetchNextPage(ctx)
	_ = l.FetchNextPage(ctx)
	if !l.HasMore() {
		t.Fatalf("после полной страницы hasMore остаётся true")
	}
	_ = l.FetchNextPage(ctx)
	if l.HasMore() || l.EventsCount() != 20 {
		t.Fatalf("пустая страница должна завершать ленту")
	}
}

func TestFetchNextPageErrorKeepsState(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepo(15)
	l := NewLoader(repo, zerolog.Nop(), Options{PageSize: 10})
	_ = l.FetchNextPage(ctx)

	repo.pageErr = errors.New("timeout")
	if err := l.FetchNextPage(ctx); err == nil {
		t.Fatalf("ожидали ошибку")
	}
	if l.EventsCount() != 10 || !l.HasMore() || l.LoadingPage() {
		t.Fatalf("ошибка не должна менять состояние ленты")
	}

	repo.pageErr = nil
	if err := l.FetchNextPage(ctx); err != nil {
		t.Fatalf("повтор должен пройти: %v", err)
	}
	if l.EventsCount() != 15 {
		t.Fatalf("ожидали 15 событий, получили %d", l.EventsCount())
	}
}

func TestFetchNextPageIsSelfExcluding(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepo(30)
	repo.pageGate = make(chan struct{})
	l := NewLoader(repo, zerolog.Nop(), Options{PageSize: 10})

	done := make(chan error, 1)
	go func() { done <- l.FetchNextPage(ctx) }()
	deadline := time.Now().Add(time.Second)
	for !l.LoadingPage() {
		if time.Now().After(deadline) {
			t.Fatalf("загрузка страницы не началась")
		}
		time.Sleep(time.Millisecond)
	}
	if err := l.FetchNextPage(ctx); err != nil {
		t.Fatalf("повторный вызов должен быть no-op: %v", err)
	}
	close(repo.pageGate)
	if err := <-done; err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if repo.pageCalls != 1 || l.EventsCount() != 10 {
		t.Fatalf("ожидали одну загрузку и 10 событий, получили %d и %d", repo.pageCalls, l.EventsCount())
	}
}

func TestInitFeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepo(12)
	l := NewLoader(repo, zerolog.Nop(), Options{})

	if err := l.InitFeed(ctx); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	first := l.Events()
	if err := l.InitFeed(ctx); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	second := l.Events()

	if len(first) != 10 || len(second) != len(first) {
		t.Fatalf("ожидали одинаковые ленты по 10 событий, получили %d и %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("порядок ленты изменился на позиции %d", i)
		}
	}
	if repo.categoryCalls != 1 {
		t.Fatalf("категории загружаются один раз, вызовов %d", repo.categoryCalls)
	}
	if l.LoadingFirst() {
		t.Fatalf("флаг первичной загрузки должен сброситься")
	}
}

func TestInitFeedResetsPhotosAndBuildsCategories(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepo(3)
	repo.photos[1] = []domain.EventPhoto{{ID: 1, EventID: 1}}
	l := NewLoader(repo, zerolog.Nop(), Options{})
	_ = l.InitFeed(ctx)

	l.EnqueuePhotosLoad(1)
	waitQueue(t, l.Photos())
	if len(l.PhotosForEvent(1)) != 1 {
		t.Fatalf("ожидали фотографии события 1")
	}

	_ = l.InitFeed(ctx)
	if len(l.PhotosForEvent(1)) != 0 || l.IsPhotosLoading(1) {
		t.Fatalf("initFeed должен сбрасывать фотографии")
	}
	if l.CategoryName("1") != "Музыка" || l.CategoryName("Спорт") != "Спорт" {
		t.Fatalf("неожиданный справочник категорий: %+v", l.CategoryMap())
	}
}

func TestLoaderWritesThroughAndRestoresFromCache(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory()
	repo := newStubRepo(12)
	repo.photos[2] = []domain.EventPhoto{{ID: 5, EventID: 2}}

	l := NewLoader(repo, zerolog.Nop(), Options{Cache: snapshot.New(store, "", zerolog.Nop())})
	_ = l.InitFeed(ctx)
	l.EnqueuePhotosLoad(2)
	waitQueue(t, l.Photos())

	restored := NewLoader(repo, zerolog.Nop(), Options{Cache: snapshot.New(store, "", zerolog.Nop())})
	if !restored.RestoreFromCache(ctx) {
		t.Fatalf("ожидали восстановление из снимка")
	}
	if restored.EventsCount() != 10 || !restored.HasMore() {
		t.Fatalf("ожидали 10 событий и продолжение ленты")
	}
	if len(restored.PhotosForEvent(2)) != 1 {
		t.Fatalf("фотографии должны восстановиться из снимка")
	}
	restored.EnqueuePhotosLoad(2)
	waitQueue(t, restored.Photos())
	if calls := repo.calls(); len(calls) != 1 {
		t.Fatalf("восстановленные фотографии не запрашиваются повторно, вызовы %v", calls)
	}

	_ = restored.FetchNextPage(ctx)
	if restored.EventsCount() != 12 || restored.HasMore() {
		t.Fatalf("после восстановления пагинация продолжается со смещения, получили %d", restored.EventsCount())
	}
}

func TestInitFeedDropsStalePhotosFromSnapshot(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory()
	repo := newStubRepo(3)
	repo.photos[1] = []domain.EventPhoto{{ID: 7, EventID: 1}}

	l := NewLoader(repo, zerolog.Nop(), Options{Cache: snapshot.New(store, "", zerolog.Nop())})
	_ = l.InitFeed(ctx)
	l.EnqueuePhotosLoad(1)
	waitQueue(t, l.Photos())
	if got := snapshot.New(store, "", zerolog.Nop()).Get(ctx).PhotosByEventID[1]; len(got) != 1 {
		t.Fatalf("фотографии должны попасть в снимок, получили %+v", got)
	}

	_ = l.InitFeed(ctx)
	snap := snapshot.New(store, "", zerolog.Nop()).Get(ctx)
	if len(snap.Events) != 3 {
		t.Fatalf("ожидали 3 события в снимке, получили %d", len(snap.Events))
	}
	if len(snap.PhotosByEventID) != 0 {
		t.Fatalf("после initFeed снимок не должен хранить прежние фотографии: %+v", snap.PhotosByEventID)
	}

	restored := NewLoader(repo, zerolog.Nop(), Options{Cache: snapshot.New(store, "", zerolog.Nop())})
	restored.RestoreFromCache(ctx)
	if len(restored.PhotosForEvent(1)) != 0 {
		t.Fatalf("восстановленная лента не должна видеть устаревшие фотографии")
	}
}
