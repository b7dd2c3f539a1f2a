package messaging

import (
	"context"
	"sync"
	"time"

	"biom-sync/internal/domain"
)

const (
	alice = "a1111111-1111-4111-8111-111111111111"
	bob   = "b2222222-2222-4222-8222-222222222222"
	carol = "c3333333-3333-4333-8333-333333333333"
	me    = "d4444444-4444-4444-8444-444444444444"
	userX = "e5555555-5555-4555-8555-555555555555"
	userY = "f6666666-6666-4666-8666-666666666666"
	userZ = "07777777-7777-4777-8777-777777777777"
)

type deleteCall struct {
	id     string
	sender string
}

type stubMessages struct {
	mu sync.Mutex

	recent      []domain.Message
	recentLimit int
	conv        []domain.Message
	flipped     []domain.Message
	unread      int

	inserted []domain.Message
	insertErr error

	rpcDeleted bool
	rpcErr     error
	rpcCalls   int

	directRows  int64
	directErr   error
	directCalls []deleteCall
}

func (s *stubMessages) InsertMessage(_ context.Context, msg domain.Message) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return domain.Message{}, s.insertErr
	}
	s.inserted = append(s.inserted, msg)
	return msg, nil
}

func (s *stubMessages) ListRecentMessages(_ context.Context, _ string, limit int) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recentLimit = limit
	return s.recent, nil
}

func (s *stubMessages) ListConversation(_ context.Context, _, _ string, _ int) ([]domain.Message, error) {
	return s.conv, nil
}

func (s *stubMessages) MarkConversationRead(_ context.Context, _, _ string, at time.Time) ([]domain.Message, error) {
	out := make([]domain.Message, 0, len(s.flipped))
	for _, m := range s.flipped {
		ts := at
		m.ReadAt = &ts
		out = append(out, m)
	}
	return out, nil
}

func (s *stubMessages) CountUnread(context.Context, string) (int, error) {
	return s.unread, nil
}

func (s *stubMessages) DeleteMessageRPC(context.Context, string, string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rpcCalls++
	return s.rpcDeleted, s.rpcErr
}

func (s *stubMessages) DeleteOwnMessage(_ context.Context, id, sender string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.directCalls = append(s.directCalls, deleteCall{id: id, sender: sender})
	return s.directRows, s.directErr
}

func msg(id, from, to string) domain.Message {
	return domain.Message{ID: id, SenderID: from, ReceiverID: to, Body: "hi"}
}
