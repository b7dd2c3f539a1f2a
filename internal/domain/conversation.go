package domain

import "github.com/google/uuid"

const conversationPrefix = "dm"

// ConversationKey строит имя топика переписки; порядок участников не важен.
func ConversationKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return conversationPrefix + ":" + a + ":" + b
}

// MessagesTopic возвращает топик изменений сообщений пользователя.
func MessagesTopic(userID string) string {
	return "messages:" + userID
}

// ValidID сообщает, является ли строка UUID пользователя или сообщения.
func ValidID(id string) bool {
	if id == "" {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
