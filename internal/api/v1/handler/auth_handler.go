package handler

import (
	"errors"
	"net/http"
	"strings"

	"tapachat/internal/service"

	"github.com/rs/zerolog"
)

type AuthHandler struct {
	authClient service.SupabaseAuthClient
	logger     zerolog.Logger
}

func NewAuthHandler(authClient service.SupabaseAuthClient, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		authClient: authClient,
		logger:     logger,
	}
}

// RegisterRoutes mounts v1 auth routes.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux, sessionMw func(http.Handler) http.Handler) {
	mux.Handle("/auth/signout", sessionMw(http.HandlerFunc(h.signOut)))
}

// signOut revokes the caller's refresh tokens upstream. The client drops its
// access token afterwards; subsequent requests fall back to a guest session.
func (h *AuthHandler) signOut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	accessToken := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	if err := h.authClient.SignOut(r.Context(), accessToken); err != nil {
		if errors.Is(err, service.ErrMissingAccessToken) {
			http.Error(w, "No access token to sign out", http.StatusBadRequest)
			return
		}
		h.logger.Error().Err(err).Msg("Failed to sign out")
		http.Error(w, "Failed to sign out: "+err.Error(), http.StatusBadGateway)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
