package domain

import (
	"context"
	"time"
)

// EventRepo отдаёт ленту мероприятий, категории и фотографии.
type EventRepo interface {
	// ListEventsPage возвращает строки в диапазоне [from, to] включительно.
	ListEventsPage(ctx context.Context, from, to int) ([]Event, error)
	ListCategories(ctx context.Context) ([]Category, error)
	ListEventPhotos(ctx context.Context, eventIDs []int64) ([]EventPhoto, error)
}

// MessageRepo управляет личными сообщениями.
type MessageRepo interface {
	InsertMessage(ctx context.Context, msg Message) (Message, error)
	// ListRecentMessages возвращает последние сообщения пользователя, новые первыми.
	ListRecentMessages(ctx context.Context, userID string, limit int) ([]Message, error)
	ListConversation(ctx context.Context, me, other string, limit int) ([]Message, error)
	// MarkConversationRead проставляет read_at только непрочитанным входящим и возвращает их.
	MarkConversationRead(ctx context.Context, me, other string, at time.Time) ([]Message, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	// DeleteMessageRPC вызывает привилегированную функцию удаления от имени userID.
	DeleteMessageRPC(ctx context.Context, messageID, userID string) (bool, error)
	// DeleteOwnMessage удаляет строку по id и отправителю, возвращает число удалённых строк.
	DeleteOwnMessage(ctx context.Context, messageID, senderID string) (int64, error)
}

// Realtime реализует publish/subscribe по строковым топикам.
type Realtime interface {
	Subscribe(ctx context.Context, topic string) (<-chan RealtimeEvent, func(), error)
	Publish(ctx context.Context, topic string, event RealtimeEvent) error
}

// SnapshotStore хранит сериализованный снимок кэша ленты.
type SnapshotStore interface {
	// Load возвращает nil без ошибки, если ключа нет.
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Remove(ctx context.Context, key string) error
}
