package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"tapachat/internal/api/v1/dto"
	"tapachat/internal/middleware"
	"tapachat/internal/model"
	"tapachat/internal/service"
	"tapachat/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

type ChatHandler struct {
	chatService    service.ChatService
	profileService service.ProfileService
	validate       *validator.Validate
	logger         zerolog.Logger
}

func NewChatHandler(chatService service.ChatService, profileService service.ProfileService, validate *validator.Validate, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		chatService:    chatService,
		profileService: profileService,
		validate:       validate,
		logger:         logger,
	}
}

// RegisterRoutes mounts v1 chat session routes.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux, sessionMw func(http.Handler) http.Handler) {
	mux.Handle("/chats", sessionMw(http.HandlerFunc(h.handleChats)))
	mux.Handle("/chats/", sessionMw(http.HandlerFunc(h.handleChatByID)))
}

func (h *ChatHandler) handleChats(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/chats":
		h.createSession(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *ChatHandler) handleChatByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/chats/")
	if rest == "" {
		http.NotFound(w, r)
		return
	}

	sessionID, sub, _ := strings.Cut(rest, "/")

	switch {
	case sub == "" && r.Method == http.MethodGet:
		h.getSession(w, r, sessionID)
	case sub == "" && r.Method == http.MethodDelete:
		h.deleteSession(w, r, sessionID)
	case sub == "model" && r.Method == http.MethodPut:
		h.selectModel(w, r, sessionID)
	case sub == "messages" && r.Method == http.MethodPost:
		h.sendMessage(w, r, sessionID)
	default:
		http.NotFound(w, r)
	}
}

// createSession opens a fresh chat session bound to the caller's current
// identity. Guests get one too; the session ID is the handle for everything
// that follows.
func (h *ChatHandler) createSession(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())
	tier := h.profileService.TierFor(r.Context(), sess)

	chat, err := h.chatService.CreateSession(r.Context(), sess, tier)
	if err != nil {
		http.Error(w, "Failed to create chat session: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeSession(w, chat, http.StatusCreated)
}

func (h *ChatHandler) getSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	sess := middleware.SessionFromContext(r.Context())
	tier := h.profileService.TierFor(r.Context(), sess)

	chat, err := h.chatService.GetSession(r.Context(), sessionID, sess, tier)
	if err != nil {
		h.writeChatError(w, err)
		return
	}

	h.writeSession(w, chat, http.StatusOK)
}

func (h *ChatHandler) selectModel(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req dto.SelectModelRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	sess := middleware.SessionFromContext(r.Context())
	tier := h.profileService.TierFor(r.Context(), sess)

	chat, err := h.chatService.SelectModel(r.Context(), sessionID, req.ModelID, sess, tier)
	if err != nil {
		h.writeChatError(w, err)
		return
	}

	h.writeSession(w, chat, http.StatusOK)
}

// sendMessage dispatches a user message. Upstream failures still return 200:
// the error surfaces as an assistant message inside the transcript, so the
// conversation stays usable.
func (h *ChatHandler) sendMessage(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req dto.SendMessageRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	sess := middleware.SessionFromContext(r.Context())
	tier := h.profileService.TierFor(r.Context(), sess)

	chat, err := h.chatService.Send(r.Context(), sessionID, sess, tier, req.Content)
	if err != nil {
		h.writeChatError(w, err)
		return
	}

	h.writeSession(w, chat, http.StatusOK)
}

func (h *ChatHandler) deleteSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	sess := middleware.SessionFromContext(r.Context())

	if err := h.chatService.DeleteSession(r.Context(), sessionID, sess); err != nil {
		h.writeChatError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ChatHandler) writeSession(w http.ResponseWriter, chat model.ChatSession, status int) {
	resp := dto.SessionResponseDTO{
		ID:                chat.ID,
		Messages:          make([]dto.MessageResponseDTO, len(chat.Messages)),
		Guest:             chat.Identity.IsGuest(),
		GuestMessagesSent: chat.GuestSent,
		GuestMessageLimit: h.chatService.GuestLimit(),
		LimitReached:      chat.Identity.IsGuest() && chat.GuestSent >= h.chatService.GuestLimit(),
		CreatedAt:         chat.CreatedAt,
		UpdatedAt:         chat.UpdatedAt,
	}
	if chat.SelectedModel != nil {
		m := modelToDTO(*chat.SelectedModel, chat.Tier)
		resp.Model = &m
	}
	for i, msg := range chat.Messages {
		resp.Messages[i] = dto.MessageResponseDTO{
			ID:             msg.ID,
			Content:        msg.Content,
			IsUser:         msg.IsUser,
			Timestamp:      msg.Timestamp,
			TokensUsed:     msg.TokensUsed,
			ResponseTimeMs: msg.ResponseTimeMs,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *ChatHandler) writeChatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		http.Error(w, "Chat session not found", http.StatusNotFound)
	case errors.Is(err, service.ErrUnauthorized):
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	case errors.Is(err, service.ErrEmptyMessage):
		http.Error(w, "Message content is required", http.StatusBadRequest)
	case errors.Is(err, service.ErrRequestInFlight):
		http.Error(w, "A request is already in flight for this session", http.StatusConflict)
	case errors.Is(err, service.ErrNoModelSelected):
		http.Error(w, "No model selected", http.StatusConflict)
	case errors.Is(err, service.ErrModelNotFound):
		http.Error(w, "Model not found", http.StatusNotFound)
	case errors.Is(err, service.ErrModelNotAvailable):
		http.Error(w, "This model is not available on your plan", http.StatusForbidden)
	case errors.Is(err, service.ErrGuestLimitReached):
		http.Error(w, "Guest message limit reached. Sign in to continue chatting.", http.StatusForbidden)
	default:
		http.Error(w, "Chat request failed: "+err.Error(), http.StatusInternalServerError)
	}
}
