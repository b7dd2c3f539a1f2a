package domain

import (
	"encoding/json"
	"time"
)

// Event описывает опубликованное мероприятие в ленте.
type Event struct {
	ID            int64      `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	DateTimeEvent *time.Time `json:"date_time_event"`
	Address       string     `json:"address"`
	Organizer     string     `json:"organizer"`
	Price         float64    `json:"price"`
	IsOnline      bool       `json:"is_online"`
	IsFree        bool       `json:"is_free"`
	UserID        string     `json:"user_id"`
	Categories    []string   `json:"selectCategory"`
	IsPublished   bool       `json:"is_published"`
	CreatedAt     time.Time  `json:"created_at"`
}

// EventPhoto описывает фотографию мероприятия.
type EventPhoto struct {
	ID       int64  `json:"id"`
	EventID  int64  `json:"event_id"`
	PhotoURL string `json:"photo_url"`
}

// Category описывает категорию мероприятий.
type Category struct {
	ID   int64
	Name string
}

// Message описывает личное сообщение между двумя пользователями.
type Message struct {
	ID         string     `json:"id"`
	SenderID   string     `json:"sender_id"`
	ReceiverID string     `json:"receiver_id"`
	Body       string     `json:"body"`
	CreatedAt  time.Time  `json:"created_at"`
	ReadAt     *time.Time `json:"read_at"`
}

// Counterpart возвращает собеседника относительно пользователя me.
func (m Message) Counterpart(me string) string {
	if m.SenderID == me {
		return m.ReceiverID
	}
	return m.SenderID
}

// Thread представляет переписку с одним собеседником через последнее сообщение.
type Thread struct {
	CounterpartID string  `json:"counterpart_id"`
	LastMessage   Message `json:"last_message"`
}

// TypingSignal — эфемерный сигнал набора текста.
type TypingSignal struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Typing bool   `json:"typing"`
	TS     int64  `json:"ts"`
}

// RealtimeEventType различает изменения строк и широковещательные сообщения.
type RealtimeEventType string

const (
	// RealtimeInsert — новая строка.
	RealtimeInsert RealtimeEventType = "INSERT"
	// RealtimeUpdate — изменённая строка.
	RealtimeUpdate RealtimeEventType = "UPDATE"
	// RealtimeBroadcast — произвольная полезная нагрузка без хранения.
	RealtimeBroadcast RealtimeEventType = "BROADCAST"
)

// RealtimeEvent доставляется подписчикам топика.
type RealtimeEvent struct {
	Type    RealtimeEventType `json:"type"`
	Event   string            `json:"event,omitempty"`
	Payload json.RawMessage   `json:"payload"`
}

// CacheSnapshot — снимок состояния ленты на момент времени.
type CacheSnapshot struct {
	Events          []Event                `json:"events"`
	PhotosByEventID map[int64][]EventPhoto `json:"photosByEventId"`
	CategoryMap     map[string]string      `json:"categoryMap"`
	LoadedAt        int64                  `json:"loadedAt"`
}
