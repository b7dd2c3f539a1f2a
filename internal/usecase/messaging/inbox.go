package messaging

import (
	"context"
	"fmt"

	"biom-sync/internal/domain"
)

const (
	// DefaultInboxLimit — число диалогов по умолчанию.
	DefaultInboxLimit = 50
	minInboxWindow    = 300
)

// Inbox строит список диалогов по последним сообщениям.
type Inbox struct {
	repo         domain.MessageRepo
	defaultLimit int
}

// NewInbox создаёт агрегатор входящих.
func NewInbox(repo domain.MessageRepo, defaultLimit int) *Inbox {
	if defaultLimit <= 0 {
		defaultLimit = DefaultInboxLimit
	}
	return &Inbox{repo: repo, defaultLimit: defaultLimit}
}

// Threads возвращает не более limit диалогов, самый свежий первым.
// Диалоги, чьи сообщения не попали в окно выборки, не возвращаются.
func (i *Inbox) Threads(ctx context.Context, me string, limit int) ([]domain.Thread, error) {
	if err := checkUser(me); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = i.defaultLimit
	}
	window := max(minInboxWindow, 3*limit)

	msgs, err := i.repo.ListRecentMessages(ctx, me, window)
	if err != nil {
		return nil, fmt.Errorf("загрузка входящих: %w", err)
	}

	seen := make(map[string]struct{}, limit)
	threads := make([]domain.Thread, 0, limit)
	for _, msg := range msgs {
		other := msg.Counterpart(me)
		if other == "" {
			continue
		}
		if _, ok := seen[other]; ok {
			continue
		}
		seen[other] = struct{}{}
		threads = append(threads, domain.Thread{CounterpartID: other, LastMessage: msg})
		if len(threads) == limit {
			break
		}
	}
	return threads, nil
}
