package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"biom-sync/internal/domain"
	"biom-sync/internal/infra/metrics"
)

// DeleteRPCName — имя серверной функции удаления.
const DeleteRPCName = "delete_my_message"

// Outcome описывает результат привилегированного удаления.
type Outcome int

const (
	OutcomeDeleted Outcome = iota
	OutcomeNotFound
	OutcomeUnavailable
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDeleted:
		return "deleted"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeUnavailable:
		return "unavailable"
	default:
		return "failed"
	}
}

var unavailableCodes = map[string]struct{}{
	"PGRST202": {},
	"42883":    {},
	"404":      {},
}

// Classify сопоставляет ответ функции удаления с исходом.
func Classify(deleted bool, err error) Outcome {
	if err == nil {
		if deleted {
			return OutcomeDeleted
		}
		return OutcomeNotFound
	}
	var remote *domain.RemoteError
	if !errors.As(err, &remote) {
		return OutcomeFailed
	}
	if remote.Status == http.StatusNotFound {
		return OutcomeUnavailable
	}
	if _, ok := unavailableCodes[remote.Code]; ok {
		return OutcomeUnavailable
	}
	msg := strings.ToLower(remote.Message)
	if strings.Contains(msg, DeleteRPCName) || strings.Contains(msg, "not found") {
		return OutcomeUnavailable
	}
	return OutcomeFailed
}

// Deleter удаляет сообщение через серверную функцию, а при её отсутствии напрямую.
type Deleter struct {
	repo domain.MessageRepo
	log  zerolog.Logger
}

// NewDeleter создаёт координатор удаления.
func NewDeleter(repo domain.MessageRepo, logger zerolog.Logger) *Deleter {
	return &Deleter{repo: repo, log: logger}
}

// Delete удаляет сообщение messageID, отправленное пользователем me.
func (d *Deleter) Delete(ctx context.Context, me, messageID string) error {
	if err := checkUser(me); err != nil {
		return err
	}
	if !domain.ValidID(messageID) {
		return domain.ErrInvalidID
	}

	deleted, err := d.repo.DeleteMessageRPC(ctx, messageID, me)
	outcome := Classify(deleted, err)
	switch outcome {
	case OutcomeDeleted:
		metrics.ObserveMessageDelete("rpc", nil)
		return nil
	case OutcomeNotFound:
		metrics.ObserveMessageDelete("rpc", domain.ErrMessageNotDeleted)
		return domain.ErrMessageNotDeleted
	case OutcomeFailed:
		metrics.ObserveMessageDelete("rpc", err)
		return fmt.Errorf("удаление сообщения: %w", err)
	}

	d.log.Info().Err(err).Str("message", messageID).Msg("функция удаления недоступна, удаляем напрямую")
	rows, err := d.repo.DeleteOwnMessage(ctx, messageID, me)
	if err != nil {
		metrics.ObserveMessageDelete("direct", err)
		return fmt.Errorf("прямое удаление сообщения: %w", err)
	}
	if rows == 0 {
		metrics.ObserveMessageDelete("direct", domain.ErrMessageNotDeletedInDB)
		return domain.ErrMessageNotDeletedInDB
	}
	metrics.ObserveMessageDelete("direct", nil)
	return nil
}
