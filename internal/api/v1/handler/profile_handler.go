package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"tapachat/internal/api/v1/dto"
	"tapachat/internal/middleware"
	"tapachat/internal/model"
	"tapachat/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

type ProfileHandler struct {
	profileService service.ProfileService
	validate       *validator.Validate
	logger         zerolog.Logger
}

func NewProfileHandler(profileService service.ProfileService, validate *validator.Validate, logger zerolog.Logger) *ProfileHandler {
	return &ProfileHandler{
		profileService: profileService,
		validate:       validate,
		logger:         logger,
	}
}

// RegisterRoutes mounts v1 profile routes. Reads work for guests too, which
// is why these take the session middleware instead of a hard auth gate.
func (h *ProfileHandler) RegisterRoutes(mux *http.ServeMux, sessionMw func(http.Handler) http.Handler) {
	mux.Handle("/profile", sessionMw(http.HandlerFunc(h.handleProfile)))
	mux.Handle("/profile/avatar-upload", sessionMw(http.HandlerFunc(h.avatarUpload)))
}

func (h *ProfileHandler) handleProfile(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getProfile(w, r)
	case http.MethodPatch:
		h.updateProfile(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ProfileHandler) getProfile(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())

	profile, err := h.profileService.Get(r.Context(), sess)
	if err != nil {
		http.Error(w, "Failed to fetch profile: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeProfile(w, profile, sess.IsGuest())
}

func (h *ProfileHandler) updateProfile(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())

	var req dto.ProfileUpdateDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.FullName == nil && req.AvatarURL == nil {
		http.Error(w, "Nothing to update", http.StatusBadRequest)
		return
	}

	profile, err := h.profileService.Update(r.Context(), sess, model.ProfileUpdate{
		FullName:  req.FullName,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		if errors.Is(err, service.ErrGuestProfileReadOnly) {
			http.Error(w, "Guest profiles cannot be updated", http.StatusForbidden)
			return
		}
		http.Error(w, "Failed to update profile: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeProfile(w, profile, false)
}

// avatarUpload hands back a presigned PUT URL; the client uploads the image
// directly to storage and then patches the profile with the storage path.
func (h *ProfileHandler) avatarUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess := middleware.SessionFromContext(r.Context())

	uploadURL, storagePath, err := h.profileService.AvatarUploadURL(r.Context(), sess)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrGuestProfileReadOnly):
			http.Error(w, "Sign in to upload an avatar", http.StatusUnauthorized)
		case errors.Is(err, service.ErrAvatarStorageOff):
			http.Error(w, "Avatar storage is not configured", http.StatusNotImplemented)
		default:
			http.Error(w, "Failed to create upload URL: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	resp := dto.AvatarUploadResponseDTO{
		UploadURL:   uploadURL,
		StoragePath: storagePath,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *ProfileHandler) writeProfile(w http.ResponseWriter, profile *model.Profile, guest bool) {
	resp := dto.ProfileResponseDTO{
		UserID:             profile.UserID,
		FullName:           profile.FullName,
		AvatarURL:          profile.AvatarURL,
		SubscriptionStatus: string(profile.SubscriptionStatus),
		Guest:              guest,
		CreatedAt:          profile.CreatedAt,
		UpdatedAt:          profile.UpdatedAt,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}
