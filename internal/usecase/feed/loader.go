package feed

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"biom-sync/internal/domain"
	"biom-sync/internal/infra/metrics"
	"biom-sync/internal/usecase/snapshot"
)

// DefaultPageSize задаёт размер страницы ленты по умолчанию.
const DefaultPageSize = 10

// Loader собирает ленту мероприятий постранично и лениво подгружает фотографии.
type Loader struct {
	repo     domain.EventRepo
	photos   *PhotoQueue
	cache    *snapshot.Cache
	log      zerolog.Logger
	pageSize int

	mu           sync.Mutex
	events       []domain.Event
	categories   map[string]string
	offset       int
	hasMore      bool
	loadingPage  bool
	loadingFirst bool
	gen          uint64
}

// Options задаёт необязательные параметры Loader.
type Options struct {
	PageSize     int
	PhotoTimeout time.Duration
	// Cache включает запись состояния ленты в снимок сессии.
	Cache *snapshot.Cache
}

// NewLoader создаёт загрузчик ленты.
func NewLoader(repo domain.EventRepo, logger zerolog.Logger, opts Options) *Loader {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	l := &Loader{
		repo:       repo,
		cache:      opts.Cache,
		log:        logger,
		pageSize:   pageSize,
		categories: map[string]string{},
		hasMore:    true,
	}
	l.photos = NewPhotoQueue(repo, opts.PhotoTimeout, logger)
	l.photos.onSettled = l.photosSettled
	return l
}

// InitFeed сбрасывает ленту, при необходимости загружает категории и первую страницу.
func (l *Loader) InitFeed(ctx context.Context) error {
	l.mu.Lock()
	l.loadingFirst = true
	l.events = nil
	l.offset = 0
	l.hasMore = true
	l.loadingPage = false
	l.gen++
	l.mu.Unlock()
	l.photos.Reset()

	defer func() {
		l.mu.Lock()
		l.loadingFirst = false
		l.mu.Unlock()
	}()

	l.ensureCategories(ctx)
	return l.FetchNextPage(ctx)
}

func (l *Loader) ensureCategories(ctx context.Context) {
	l.mu.Lock()
	loaded := len(l.categories) > 0
	l.mu.Unlock()
	if loaded {
		return
	}

	rows, err := l.repo.ListCategories(ctx)
	if err != nil {
		l.log.Warn().Err(err).Msg("feed: не удалось загрузить категории")
		return
	}
	categories := buildCategoryMap(rows)

	l.mu.Lock()
	l.categories = categories
	l.mu.Unlock()
}

func buildCategoryMap(rows []domain.Category) map[string]string {
	out := make(map[string]string, len(rows)*2)
	for _, c := range rows {
		name := strings.TrimSpace(c.Name)
		out[strconv.FormatInt(c.ID, 10)] = name
		if name != "" {
			out[name] = name
		}
	}
	return out
}

// FetchNextPage загружает следующую страницу; повторный вызов во время загрузки ничего не делает.
func (l *Loader) FetchNextPage(ctx context.Context) error {
	l.mu.Lock()
	if l.loadingPage || !l.hasMore {
		l.mu.Unlock()
		return nil
	}
	l.loadingPage = true
	from := l.offset
	to := l.offset + l.pageSize - 1
	gen := l.gen
	l.mu.Unlock()

	rows, err := l.repo.ListEventsPage(ctx, from, to)
	metrics.ObserveFeedPage(err)

	l.mu.Lock()
	if gen != l.gen {
		l.mu.Unlock()
		return nil
	}
	l.loadingPage = false
	if err != nil {
		l.mu.Unlock()
		return fmt.Errorf("загрузка страницы ленты: %w", err)
	}
	if len(rows) == 0 && from > 0 {
		l.hasMore = false
		l.mu.Unlock()
		return nil
	}
	l.events = append(l.events, rows...)
	l.offset += len(rows)
	if len(rows) < l.pageSize {
		l.hasMore = false
	}
	patch := snapshot.Patch{
		Events:      append([]domain.Event{}, l.events...),
		CategoryMap: copyMap(l.categories),
	}
	if from == 0 {
		// Первая страница после сброса: фото прежней ленты в снимке больше не действительны.
		patch.PhotosByEventID = map[int64][]domain.EventPhoto{}
	}
	l.mu.Unlock()

	l.log.Debug().Int("from", from).Int("rows", len(rows)).Msg("feed: страница загружена")
	if l.cache != nil {
		l.cache.Set(ctx, patch)
	}
	return nil
}

// RestoreFromCache поднимает ленту из снимка сессии; false, если снимок пуст.
func (l *Loader) RestoreFromCache(ctx context.Context) bool {
	if l.cache == nil {
		return false
	}
	snap := l.cache.Get(ctx)
	if len(snap.Events) == 0 {
		return false
	}

	l.mu.Lock()
	l.gen++
	l.loadingPage = false
	l.events = snap.Events
	l.offset = len(snap.Events)
	l.hasMore = len(snap.Events)%l.pageSize == 0
	if len(snap.CategoryMap) > 0 {
		l.categories = snap.CategoryMap
	}
	l.mu.Unlock()

	l.photos.Reset()
	l.photos.Seed(snap.PhotosByEventID)
	return true
}

func (l *Loader) photosSettled(int64) {
	if l.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	l.cache.Set(ctx, snapshot.Patch{PhotosByEventID: l.photos.All()})
}

// EnqueuePhotosLoad ставит загрузку фотографий мероприятия в очередь.
func (l *Loader) EnqueuePhotosLoad(id int64) {
	l.photos.Enqueue(id)
}

// PhotosForEvent возвращает загруженные фотографии или пустой список.
func (l *Loader) PhotosForEvent(id int64) []domain.EventPhoto {
	return l.photos.Photos(id)
}

// IsPhotosLoading сообщает, загружаются ли сейчас фотографии мероприятия.
func (l *Loader) IsPhotosLoading(id int64) bool {
	return l.photos.IsLoading(id)
}

// Photos возвращает очередь фотографий.
func (l *Loader) Photos() *PhotoQueue {
	return l.photos
}

// Events возвращает копию ленты.
func (l *Loader) Events() []domain.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Event{}, l.events...)
}

// EventsCount возвращает число загруженных мероприятий.
func (l *Loader) EventsCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// HasMore сообщает, есть ли ещё страницы.
func (l *Loader) HasMore() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hasMore
}

// LoadingPage сообщает, идёт ли загрузка страницы.
func (l *Loader) LoadingPage() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadingPage
}

// LoadingFirst сообщает, идёт ли первичная загрузка ленты.
func (l *Loader) LoadingFirst() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadingFirst
}

// CategoryMap возвращает копию справочника категорий.
func (l *Loader) CategoryMap() map[string]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return copyMap(l.categories)
}

// CategoryName возвращает название категории по id или имени.
func (l *Loader) CategoryName(key string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.categories[strings.TrimSpace(key)]
}

func copyMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
