package counters

import (
	"math"
	"sync"

	"github.com/google/uuid"
)

// Unread хранит количество непрочитанных сообщений одной сессии.
type Unread struct {
	mu        sync.Mutex
	value     float64
	listeners map[string]chan int
}

// NewUnread создаёт счётчик со значением 0.
func NewUnread() *Unread {
	return &Unread{listeners: make(map[string]chan int)}
}

// Value возвращает текущее значение.
func (u *Unread) Value() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return int(u.value)
}

// Set задаёт значение; отрицательные значения, NaN и бесконечности приводятся к 0.
func (u *Unread) Set(n float64) {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		n = 0
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.storeLocked(math.Max(0, n))
}

// Increment увеличивает счётчик; by == 0 означает шаг 1.
func (u *Unread) Increment(by float64) {
	u.add(step(by))
}

// Decrement уменьшает счётчик, не опуская его ниже нуля.
func (u *Unread) Decrement(by float64) {
	u.add(-step(by))
}

// Subscribe возвращает канал изменений и функцию отписки.
// Медленный подписчик пропускает промежуточные значения.
func (u *Unread) Subscribe() (<-chan int, func()) {
	id := uuid.NewString()
	ch := make(chan int, 1)
	u.mu.Lock()
	u.listeners[id] = ch
	u.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			u.mu.Lock()
			delete(u.listeners, id)
			u.mu.Unlock()
			close(ch)
		})
	}
}

func (u *Unread) add(delta float64) {
	if math.IsNaN(delta) {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.storeLocked(math.Max(0, u.value+delta))
}

func (u *Unread) storeLocked(v float64) {
	u.value = v
	for _, ch := range u.listeners {
		select {
		case <-ch:
		default:
		}
		ch <- int(v)
	}
}

func step(by float64) float64 {
	if math.IsNaN(by) || math.IsInf(by, 0) {
		return math.NaN()
	}
	if by == 0 {
		return 1
	}
	return by
}
