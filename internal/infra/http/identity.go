package http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

const (
	HeaderUserID    = "X-User-ID"
	HeaderSessionID = "X-Session-ID"
	HeaderSignature = "X-Signature"
)

type identityKey struct{}

// Identity описывает пользователя и сессию запроса.
type Identity struct {
	UserID    string
	SessionID string
}

// Sign возвращает подпись пары пользователь/сессия.
func Sign(secret, userID, sessionID string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(userID + "\n" + sessionID))
	return hex.EncodeToString(h.Sum(nil))
}

// IdentityMiddleware извлекает пользователя из заголовков и проверяет подпись, если задан secret.
// Без X-Session-ID сессией считается сам пользователь.
func IdentityMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
			if userID == "" {
				WriteError(w, http.StatusUnauthorized, "not authorized")
				return
			}
			sessionID := strings.TrimSpace(r.Header.Get(HeaderSessionID))
			if sessionID == "" {
				sessionID = userID
			}
			if secret != "" && !validSignature(secret, userID, sessionID, r.Header.Get(HeaderSignature)) {
				WriteError(w, http.StatusUnauthorized, "подпись недействительна")
				return
			}
			ctx := context.WithValue(r.Context(), identityKey{}, Identity{UserID: userID, SessionID: sessionID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func validSignature(secret, userID, sessionID, signature string) bool {
	expected, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(expected) == 0 {
		return false
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(userID + "\n" + sessionID))
	return hmac.Equal(h.Sum(nil), expected)
}

// IdentityFrom возвращает личность, установленную IdentityMiddleware.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.UserID != ""
}

// RequestID возвращает request ID из контекста chi.
func RequestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

// ErrorResponse описывает ошибку.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteError отправляет JSON с ошибкой.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg})
}

// WriteJSON отправляет значение v как JSON.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
