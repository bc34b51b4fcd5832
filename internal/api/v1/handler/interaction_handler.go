package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"tapachat/internal/api/v1/dto"
	"tapachat/internal/middleware"
	"tapachat/internal/service"

	"github.com/rs/zerolog"
)

type InteractionHandler struct {
	interactionService service.InteractionService
	logger             zerolog.Logger
}

func NewInteractionHandler(interactionService service.InteractionService, logger zerolog.Logger) *InteractionHandler {
	return &InteractionHandler{
		interactionService: interactionService,
		logger:             logger,
	}
}

// RegisterRoutes mounts the interaction history route and the Pub/Sub push
// sink. The sink sits behind its own middleware verifying the push identity
// token, not the user session.
func (h *InteractionHandler) RegisterRoutes(mux *http.ServeMux, sessionMw, pushMw func(http.Handler) http.Handler) {
	mux.Handle("/interactions", sessionMw(http.HandlerFunc(h.listInteractions)))
	mux.Handle("/internal/interactions", pushMw(http.HandlerFunc(h.recordInteraction)))
}

func (h *InteractionHandler) listInteractions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess := middleware.SessionFromContext(r.Context())

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	interactions, err := h.interactionService.History(r.Context(), sess, limit)
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			http.Error(w, "Sign in to view your interaction history", http.StatusUnauthorized)
			return
		}
		http.Error(w, "Failed to list interactions: "+err.Error(), http.StatusInternalServerError)
		return
	}

	resp := make([]dto.InteractionResponseDTO, len(interactions))
	for i, interaction := range interactions {
		resp[i] = dto.InteractionResponseDTO{
			ID:             interaction.ID,
			ModelName:      interaction.ModelName,
			Prompt:         interaction.Prompt,
			Response:       interaction.Response,
			TokensUsed:     interaction.TokensUsed,
			ResponseTimeMs: interaction.ResponseTimeMs,
			CreatedAt:      interaction.CreatedAt,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

// recordInteraction is the push endpoint the interaction subscription
// delivers to. Malformed events are acknowledged anyway: redelivering them
// would fail the same way every time.
func (h *InteractionHandler) recordInteraction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req dto.PubSubPushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid Pub/Sub push payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Message.MessageID == "" {
		http.Error(w, "Invalid Pub/Sub message format: missing message ID", http.StatusBadRequest)
		return
	}

	payload, err := base64.StdEncoding.DecodeString(req.Message.Data)
	if err != nil {
		payload = []byte(req.Message.Data)
	}

	if err := h.interactionService.RecordEvent(r.Context(), payload); err != nil {
		if errors.Is(err, service.ErrInvalidInteractionEvent) {
			h.logger.Warn().
				Str("messageId", req.Message.MessageID).
				Err(err).
				Msg("Dropping malformed interaction event")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.logger.Error().
			Str("messageId", req.Message.MessageID).
			Err(err).
			Msg("Failed to record interaction")
		http.Error(w, "Failed to record interaction", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
