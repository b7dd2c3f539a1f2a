package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"biom-sync/internal/domain"
	httpinfra "biom-sync/internal/infra/http"
	"biom-sync/internal/usecase/feed"
	"biom-sync/internal/usecase/messaging"
	"biom-sync/internal/usecase/session"
)

const requestTimeout = 60 * time.Second

// Handler обслуживает REST API ленты и сообщений.
type Handler struct {
	sessions *session.Registry
	messages *messaging.Service
	inbox    *messaging.Inbox
	channels *messaging.Channels
	log      zerolog.Logger
}

// NewHandler создаёт обработчик API.
func NewHandler(sessions *session.Registry, messages *messaging.Service, inbox *messaging.Inbox, channels *messaging.Channels, logger zerolog.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		messages: messages,
		inbox:    inbox,
		channels: channels,
		log:      logger.With().Str("component", "httpapi").Logger(),
	}
}

// Mount регистрирует маршруты /api/v1 на роутере.
func (h *Handler) Mount(r chi.Router, authSecret string) {
	r.Route("/api/v1", func(api chi.Router) {
		api.Use(httpinfra.IdentityMiddleware(authSecret))

		api.Get("/stream", h.stream)

		api.Group(func(g chi.Router) {
			g.Use(middleware.Timeout(requestTimeout))

			g.Post("/feed/init", h.initFeed)
			g.Post("/feed/next", h.nextPage)
			g.Get("/feed", h.feedState)
			g.Post("/feed/events/{id}/photos", h.enqueuePhotos)
			g.Get("/feed/events/{id}/photos", h.eventPhotos)
			g.Delete("/session", h.dropSession)

			g.Get("/inbox", h.threads)
			g.Get("/conversations/{other}", h.conversation)
			g.Post("/conversations/{other}/messages", h.send)
			g.Post("/conversations/{other}/read", h.markRead)
			g.Post("/conversations/{other}/typing", h.typing)
			g.Delete("/messages/{id}", h.deleteMessage)
			g.Get("/unread", h.unread)
		})
	})
}

type feedResponse struct {
	Events       []domain.Event    `json:"events"`
	HasMore      bool              `json:"has_more"`
	LoadingPage  bool              `json:"loading_page"`
	LoadingFirst bool              `json:"loading_first"`
	CategoryMap  map[string]string `json:"category_map"`
}

type photosResponse struct {
	EventID int64               `json:"event_id"`
	State   string              `json:"state"`
	Loading bool                `json:"loading"`
	Photos  []domain.EventPhoto `json:"photos"`
}

func (h *Handler) currentSession(w http.ResponseWriter, r *http.Request) (*session.Session, httpinfra.Identity, bool) {
	id, ok := httpinfra.IdentityFrom(r.Context())
	if !ok {
		h.fail(w, r, domain.ErrNotAuthorized)
		return nil, id, false
	}
	s, err := h.sessions.Get(r.Context(), id.UserID, id.SessionID)
	if err != nil {
		h.fail(w, r, err)
		return nil, id, false
	}
	return s, id, true
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (httpinfra.Identity, bool) {
	id, ok := httpinfra.IdentityFrom(r.Context())
	if !ok {
		h.fail(w, r, domain.ErrNotAuthorized)
	}
	return id, ok
}

func feedView(l *feed.Loader) feedResponse {
	return feedResponse{
		Events:       l.Events(),
		HasMore:      l.HasMore(),
		LoadingPage:  l.LoadingPage(),
		LoadingFirst: l.LoadingFirst(),
		CategoryMap:  l.CategoryMap(),
	}
}

func (h *Handler) initFeed(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	if err := s.Loader.InitFeed(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, feedView(s.Loader))
}

func (h *Handler) nextPage(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	if err := s.Loader.FetchNextPage(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, feedView(s.Loader))
}

func (h *Handler) feedState(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, feedView(s.Loader))
}

func (h *Handler) dropSession(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	if _, err := h.sessions.Get(r.Context(), id.UserID, id.SessionID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.sessions.Drop(r.Context(), id.SessionID)
	w.WriteHeader(http.StatusNoContent)
}

func eventID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func photosView(l *feed.Loader, id int64) photosResponse {
	return photosResponse{
		EventID: id,
		State:   l.Photos().State(id).String(),
		Loading: l.IsPhotosLoading(id),
		Photos:  l.PhotosForEvent(id),
	}
}

func (h *Handler) enqueuePhotos(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	id, err := eventID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s.Loader.EnqueuePhotosLoad(id)
	httpinfra.WriteJSON(w, http.StatusAccepted, photosView(s.Loader, id))
}

func (h *Handler) eventPhotos(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	id, err := eventID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, photosView(s.Loader, id))
}

func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return n
}

func (h *Handler) threads(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	threads, err := h.inbox.Threads(r.Context(), id.UserID, limitParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"threads": threads})
}

func (h *Handler) conversation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	msgs, err := h.messages.Conversation(r.Context(), id.UserID, chi.URLParam(r, "other"), limitParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

type sendRequest struct {
	Body string `json:"body"`
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	defer r.Body.Close()
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	msg, err := h.messages.Send(r.Context(), id.UserID, chi.URLParam(r, "other"), req.Body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusCreated, msg)
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	s, id, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	n, err := h.messages.MarkConversationRead(r.Context(), id.UserID, chi.URLParam(r, "other"), s.Unread)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]int{"marked": n, "unread": s.Unread.Value()})
}

type typingRequest struct {
	Typing bool `json:"typing"`
}

func (h *Handler) typing(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	defer r.Body.Close()
	var req typingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.channels.SendTyping(r.Context(), id.UserID, chi.URLParam(r, "other"), req.Typing); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	if err := h.messages.Delete(r.Context(), id.UserID, chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) unread(w http.ResponseWriter, r *http.Request) {
	s, id, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	if _, err := h.messages.RefreshUnread(r.Context(), id.UserID, s.Unread); err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]int{"unread": s.Unread.Value()})
}

// statusFor сопоставляет ошибку с HTTP статусом.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotAuthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrEmptyBody), errors.Is(err, domain.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrMessageNotDeleted), errors.Is(err, domain.ErrMessageNotDeletedInDB):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("request_id", httpinfra.RequestID(r)).Str("path", r.URL.Path).Msg("api: ошибка запроса")
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	httpinfra.WriteError(w, status, strings.TrimSpace(msg))
}
