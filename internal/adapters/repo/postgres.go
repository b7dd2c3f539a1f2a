package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"biom-sync/internal/domain"
	"biom-sync/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.EventRepo   = (*Postgres)(nil)
	_ domain.MessageRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// remoteError приводит ошибку Postgres к domain.RemoteError.
func remoteError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &domain.RemoteError{Code: pgErr.Code, Message: pgErr.Message}
	}
	return err
}

const eventColumns = `
id, title, COALESCE(description, ''), date_time_event, COALESCE(address, ''),
COALESCE(organizer, ''), COALESCE(price, 0)::float8, is_online, is_free,
COALESCE(user_id::text, ''), COALESCE("selectCategory", '{}'), is_published, created_at`

// ListEventsPage возвращает опубликованные мероприятия в диапазоне [from, to].
// Порядок от новых к старым: created_at DESC, id DESC. Ключ стабилен, поэтому
// смещения страниц не пересекаются, хотя сортировка и не по возрастанию.
func (p *Postgres) ListEventsPage(ctx context.Context, from, to int) ([]domain.Event, error) {
	if from < 0 || to < from {
		return nil, fmt.Errorf("некорректный диапазон %d..%d", from, to)
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+eventColumns+`
FROM events
WHERE is_published = true
ORDER BY created_at DESC, id DESC
LIMIT $1 OFFSET $2
`, to-from+1, from)
	metrics.ObserveNetworkRequest("postgres", "events_page", "events", start, err)
	if err != nil {
		return nil, remoteError(err)
	}
	defer rows.Close()

	events := make([]domain.Event, 0, to-from+1)
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.Title, &e.Description, &e.DateTimeEvent, &e.Address,
			&e.Organizer, &e.Price, &e.IsOnline, &e.IsFree,
			&e.UserID, &e.Categories, &e.IsPublished, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, remoteError(rows.Err())
}

// ListCategories возвращает справочник категорий.
func (p *Postgres) ListCategories(ctx context.Context) ([]domain.Category, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT id, name FROM category ORDER BY name ASC`)
	metrics.ObserveNetworkRequest("postgres", "categories_list", "category", start, err)
	if err != nil {
		return nil, remoteError(err)
	}
	defer rows.Close()
	var categories []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, remoteError(rows.Err())
}

// ListEventPhotos возвращает фотографии указанных мероприятий.
func (p *Postgres) ListEventPhotos(ctx context.Context, eventIDs []int64) ([]domain.EventPhoto, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, event_id, photo_url
FROM event_photos
WHERE event_id = ANY($1)
ORDER BY id ASC
`, eventIDs)
	metrics.ObserveNetworkRequest("postgres", "event_photos_list", "event_photos", start, err)
	if err != nil {
		return nil, remoteError(err)
	}
	defer rows.Close()
	var photos []domain.EventPhoto
	for rows.Next() {
		var ph domain.EventPhoto
		if err := rows.Scan(&ph.ID, &ph.EventID, &ph.PhotoURL); err != nil {
			return nil, err
		}
		photos = append(photos, ph)
	}
	return photos, remoteError(rows.Err())
}

const messageColumns = `id::text, sender_id::text, receiver_id::text, body, created_at, read_at`

func scanMessages(rows pgx.Rows) ([]domain.Message, error) {
	defer rows.Close()
	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Body, &m.CreatedAt, &m.ReadAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, remoteError(rows.Err())
}

// InsertMessage сохраняет сообщение.
func (p *Postgres) InsertMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	var out domain.Message
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO messages (id, sender_id, receiver_id, body, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+messageColumns,
		msg.ID, msg.SenderID, msg.ReceiverID, msg.Body, msg.CreatedAt,
	).Scan(&out.ID, &out.SenderID, &out.ReceiverID, &out.Body, &out.CreatedAt, &out.ReadAt)
	metrics.ObserveNetworkRequest("postgres", "messages_insert", "messages", start, err)
	return out, remoteError(err)
}

// ListRecentMessages возвращает последние сообщения пользователя, новые первыми.
func (p *Postgres) ListRecentMessages(ctx context.Context, userID string, limit int) ([]domain.Message, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+messageColumns+`
FROM messages
WHERE sender_id = $1 OR receiver_id = $1
ORDER BY created_at DESC
LIMIT $2
`, userID, limit)
	metrics.ObserveNetworkRequest("postgres", "messages_recent", "messages", start, err)
	if err != nil {
		return nil, remoteError(err)
	}
	return scanMessages(rows)
}

// ListConversation возвращает последние limit сообщений переписки по возрастанию времени.
func (p *Postgres) ListConversation(ctx context.Context, me, other string, limit int) ([]domain.Message, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT * FROM (
	SELECT `+messageColumns+`
	FROM messages
	WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
	ORDER BY created_at DESC
	LIMIT $3
) recent
ORDER BY created_at ASC
`, me, other, limit)
	metrics.ObserveNetworkRequest("postgres", "messages_conversation", "messages", start, err)
	if err != nil {
		return nil, remoteError(err)
	}
	return scanMessages(rows)
}

// MarkConversationRead проставляет read_at непрочитанным входящим от other.
func (p *Postgres) MarkConversationRead(ctx context.Context, me, other string, at time.Time) ([]domain.Message, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
UPDATE messages SET read_at = $3
WHERE receiver_id = $1 AND sender_id = $2 AND read_at IS NULL
RETURNING `+messageColumns,
		me, other, at)
	metrics.ObserveNetworkRequest("postgres", "messages_mark_read", "messages", start, err)
	if err != nil {
		return nil, remoteError(err)
	}
	return scanMessages(rows)
}

// CountUnread считает непрочитанные входящие.
func (p *Postgres) CountUnread(ctx context.Context, userID string) (int, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var count int
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE receiver_id = $1 AND read_at IS NULL`, userID).Scan(&count)
	metrics.ObserveNetworkRequest("postgres", "messages_count_unread", "messages", start, err)
	return count, remoteError(err)
}

// DeleteMessageRPC вызывает delete_my_message в транзакции с app.user_id = userID.
// false означает, что функция ничего не удалила.
func (p *Postgres) DeleteMessageRPC(ctx context.Context, messageID, userID string) (bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	var deleted *bool
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT set_config('app.user_id', $1, true)`, userID); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `SELECT delete_my_message($1::uuid)`, messageID).Scan(&deleted)
	})
	metrics.ObserveNetworkRequest("postgres", "rpc_delete_my_message", "messages", start, err)
	if err != nil {
		return false, remoteError(err)
	}
	return deleted != nil && *deleted, nil
}

// DeleteOwnMessage удаляет сообщение, только если его отправил senderID.
func (p *Postgres) DeleteOwnMessage(ctx context.Context, messageID, senderID string) (int64, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1 AND sender_id = $2`, messageID, senderID)
	metrics.ObserveNetworkRequest("postgres", "messages_delete_own", "messages", start, err)
	if err != nil {
		return 0, remoteError(err)
	}
	return tag.RowsAffected(), nil
}

// Ping проверяет соединение с БД.
func (p *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}
