package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"biom-sync/internal/domain"
)

// DefaultKey задаёт ключ снимка ленты в хранилище.
const DefaultKey = "biom_events_cache_v1"

// Patch перечисляет заменяемые поля снимка; nil означает «не менять».
type Patch struct {
	Events          []domain.Event
	PhotosByEventID map[int64][]domain.EventPhoto
	CategoryMap     map[string]string
}

// Cache хранит write-through снимок ленты, переживающий перезагрузку в рамках сессии.
type Cache struct {
	// io упорядочивает записи в хранилище, чтобы Close не обгоняла начатое сохранение.
	io    sync.Mutex
	mu    sync.Mutex
	store domain.SnapshotStore
	key   string
	log   zerolog.Logger
	now   func() time.Time

	events     []domain.Event
	photos     map[int64][]domain.EventPhoto
	categories map[string]string
	loadedAt   int64
	closed     bool
}

// New создаёт кэш; store может быть nil, тогда снимок живёт только в памяти.
func New(store domain.SnapshotStore, key string, logger zerolog.Logger) *Cache {
	if key == "" {
		key = DefaultKey
	}
	return &Cache{store: store, key: key, log: logger, now: time.Now}
}

// Key возвращает ключ хранилища.
func (c *Cache) Key() string {
	return c.key
}

// Set заменяет переданные поля, обновляет loadedAt и сохраняет снимок целиком.
// После Close вызов ничего не делает.
func (c *Cache) Set(ctx context.Context, patch Patch) {
	c.io.Lock()
	defer c.io.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if patch.Events != nil {
		c.events = patch.Events
	}
	if patch.PhotosByEventID != nil {
		c.photos = patch.PhotosByEventID
	}
	if patch.CategoryMap != nil {
		c.categories = patch.CategoryMap
	}
	c.loadedAt = c.now().UnixMilli()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.save(ctx, snap)
}

// Get возвращает снимок; пустой снимок в памяти поднимается из хранилища.
func (c *Cache) Get(ctx context.Context) domain.CacheSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 && !c.closed {
		c.loadLocked(ctx)
	}
	return c.snapshotLocked()
}

// Clear очищает снимок в памяти и удаляет сохранённую запись.
func (c *Cache) Clear(ctx context.Context) {
	c.reset(ctx, false)
}

// Close очищает снимок и запрещает дальнейшие записи: сессия больше не существует.
func (c *Cache) Close(ctx context.Context) {
	c.reset(ctx, true)
}

func (c *Cache) reset(ctx context.Context, closing bool) {
	c.io.Lock()
	defer c.io.Unlock()

	c.mu.Lock()
	if closing {
		c.closed = true
	}
	c.events = nil
	c.photos = nil
	c.categories = nil
	c.loadedAt = 0
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	if err := c.store.Remove(ctx, c.key); err != nil {
		c.log.Debug().Err(err).Str("key", c.key).Msg("snapshot: не удалось удалить запись")
	}
}

func (c *Cache) save(ctx context.Context, snap domain.CacheSnapshot) {
	if c.store == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		c.log.Debug().Err(err).Msg("snapshot: ошибка сериализации")
		return
	}
	if err := c.store.Save(ctx, c.key, data); err != nil {
		c.log.Debug().Err(err).Str("key", c.key).Msg("snapshot: не удалось сохранить")
	}
}

type storedSnapshot struct {
	Events          json.RawMessage               `json:"events"`
	PhotosByEventID map[int64][]domain.EventPhoto `json:"photosByEventId"`
	CategoryMap     map[string]string             `json:"categoryMap"`
	LoadedAt        int64                         `json:"loadedAt"`
}

func (c *Cache) loadLocked(ctx context.Context) bool {
	if c.store == nil {
		return false
	}
	raw, err := c.store.Load(ctx, c.key)
	if err != nil {
		c.log.Debug().Err(err).Str("key", c.key).Msg("snapshot: не удалось прочитать")
		return false
	}
	if len(raw) == 0 {
		return false
	}
	var stored storedSnapshot
	if err := json.Unmarshal(raw, &stored); err != nil {
		c.log.Debug().Err(err).Msg("snapshot: некорректные данные")
		return false
	}
	if !bytes.HasPrefix(bytes.TrimSpace(stored.Events), []byte("[")) {
		return false
	}
	var events []domain.Event
	if err := json.Unmarshal(stored.Events, &events); err != nil {
		c.log.Debug().Err(err).Msg("snapshot: некорректный список событий")
		return false
	}

	c.events = events
	c.photos = stored.PhotosByEventID
	if c.photos == nil {
		c.photos = map[int64][]domain.EventPhoto{}
	}
	c.categories = stored.CategoryMap
	if c.categories == nil {
		c.categories = map[string]string{}
	}
	c.loadedAt = stored.LoadedAt
	if c.loadedAt == 0 {
		c.loadedAt = c.now().UnixMilli()
	}
	return true
}

func (c *Cache) snapshotLocked() domain.CacheSnapshot {
	snap := domain.CacheSnapshot{LoadedAt: c.loadedAt}
	if c.events != nil {
		snap.Events = append([]domain.Event{}, c.events...)
	}
	if c.photos != nil {
		snap.PhotosByEventID = make(map[int64][]domain.EventPhoto, len(c.photos))
		for id, list := range c.photos {
			snap.PhotosByEventID[id] = append([]domain.EventPhoto{}, list...)
		}
	}
	if c.categories != nil {
		snap.CategoryMap = make(map[string]string, len(c.categories))
		for k, v := range c.categories {
			snap.CategoryMap[k] = v
		}
	}
	return snap
}
