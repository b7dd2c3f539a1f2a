package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"biom-sync/internal/domain"
	"biom-sync/internal/usecase/counters"
)

// DefaultConversationLimit задаёт глубину истории переписки по умолчанию.
const DefaultConversationLimit = 100

// Service объединяет запись сообщений и публикацию изменений.
type Service struct {
	repo    domain.MessageRepo
	hub     domain.Realtime
	deleter *Deleter
	log     zerolog.Logger
	now     func() time.Time
}

// NewService создаёт сервис сообщений.
func NewService(repo domain.MessageRepo, hub domain.Realtime, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		hub:     hub,
		deleter: NewDeleter(repo, logger),
		log:     logger,
		now:     time.Now,
	}
}

// Send сохраняет сообщение и публикует его обоим участникам.
func (s *Service) Send(ctx context.Context, me, to, body string) (domain.Message, error) {
	if err := checkUser(me); err != nil {
		return domain.Message{}, err
	}
	if strings.TrimSpace(body) == "" {
		return domain.Message{}, domain.ErrEmptyBody
	}
	if err := checkPair(me, to); err != nil {
		return domain.Message{}, err
	}

	msg, err := s.repo.InsertMessage(ctx, domain.Message{
		ID:         uuid.NewString(),
		SenderID:   me,
		ReceiverID: to,
		Body:       body,
		CreatedAt:  s.now().UTC(),
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("отправка сообщения: %w", err)
	}
	s.publish(ctx, domain.RealtimeInsert, msg)
	return msg, nil
}

// MarkConversationRead отмечает входящие от other прочитанными и уменьшает счётчик.
func (s *Service) MarkConversationRead(ctx context.Context, me, other string, unread *counters.Unread) (int, error) {
	if err := checkPair(me, other); err != nil {
		return 0, err
	}
	flipped, err := s.repo.MarkConversationRead(ctx, me, other, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("отметка прочтения: %w", err)
	}
	for _, msg := range flipped {
		s.publish(ctx, domain.RealtimeUpdate, msg)
	}
	if unread != nil && len(flipped) > 0 {
		unread.Decrement(float64(len(flipped)))
	}
	return len(flipped), nil
}

// Conversation возвращает историю переписки по возрастанию времени.
func (s *Service) Conversation(ctx context.Context, me, other string, limit int) ([]domain.Message, error) {
	if err := checkPair(me, other); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultConversationLimit
	}
	msgs, err := s.repo.ListConversation(ctx, me, other, limit)
	if err != nil {
		return nil, fmt.Errorf("загрузка переписки: %w", err)
	}
	return msgs, nil
}

// RefreshUnread пересчитывает непрочитанные и записывает их в счётчик.
func (s *Service) RefreshUnread(ctx context.Context, me string, unread *counters.Unread) (int, error) {
	if err := checkUser(me); err != nil {
		return 0, err
	}
	n, err := s.repo.CountUnread(ctx, me)
	if err != nil {
		return 0, fmt.Errorf("подсчёт непрочитанных: %w", err)
	}
	if unread != nil {
		unread.Set(float64(n))
	}
	return n, nil
}

// Delete удаляет собственное сообщение.
func (s *Service) Delete(ctx context.Context, me, messageID string) error {
	return s.deleter.Delete(ctx, me, messageID)
}

func (s *Service) publish(ctx context.Context, kind domain.RealtimeEventType, msg domain.Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		s.log.Error().Err(err).Str("message", msg.ID).Msg("realtime: не удалось сериализовать сообщение")
		return
	}
	ev := domain.RealtimeEvent{Type: kind, Payload: payload}
	for _, user := range []string{msg.SenderID, msg.ReceiverID} {
		if err := s.hub.Publish(ctx, domain.MessagesTopic(user), ev); err != nil {
			s.log.Warn().Err(err).Str("user", user).Str("message", msg.ID).Msg("realtime: публикация не удалась")
		}
	}
}

// checkUser отклоняет пустого или некорректного текущего пользователя до обращения к БД.
func checkUser(me string) error {
	if me == "" {
		return domain.ErrNotAuthorized
	}
	if !domain.ValidID(me) {
		return domain.ErrInvalidID
	}
	return nil
}

func checkPair(me, other string) error {
	if err := checkUser(me); err != nil {
		return err
	}
	if !domain.ValidID(other) || other == me {
		return domain.ErrInvalidID
	}
	return nil
}
