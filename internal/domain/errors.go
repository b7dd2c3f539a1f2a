package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthorized возвращается, если текущий пользователь не определён.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrEmptyBody возвращается при попытке отправить пустое сообщение.
	ErrEmptyBody = errors.New("message body is empty")
	// ErrInvalidID возвращается при некорректном идентификаторе.
	ErrInvalidID = errors.New("invalid id")
	// ErrMessageNotDeleted — привилегированное удаление не нашло сообщение.
	ErrMessageNotDeleted = errors.New("Message was not deleted")
	// ErrMessageNotDeletedInDB — прямое удаление не затронуло ни одной строки.
	ErrMessageNotDeletedInDB = errors.New("Message was not deleted in database")
)

// RemoteError описывает ошибку удалённого сервиса данных.
type RemoteError struct {
	Status  int
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote error %s: %s", e.Code, e.Message)
	}
	if e.Status != 0 {
		return fmt.Sprintf("remote error status %d: %s", e.Status, e.Message)
	}
	return "remote error: " + e.Message
}
