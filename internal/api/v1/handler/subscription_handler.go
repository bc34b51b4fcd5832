package handler

import (
	"encoding/json"
	"net/http"

	"tapachat/internal/api/v1/dto"
	"tapachat/internal/middleware"
	"tapachat/internal/model"
	"tapachat/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

type SubscriptionHandler struct {
	creemClient    service.CreemClient
	profileService service.ProfileService
	validate       *validator.Validate
	logger         zerolog.Logger
}

func NewSubscriptionHandler(creemClient service.CreemClient, profileService service.ProfileService, validate *validator.Validate, logger zerolog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		creemClient:    creemClient,
		profileService: profileService,
		validate:       validate,
		logger:         logger,
	}
}

// RegisterRoutes mounts v1 subscription routes. Both require a signed-in
// caller: a checkout has to land on a real account.
func (h *SubscriptionHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/subscriptions/checkout", authMw(http.HandlerFunc(h.createCheckout)))
	mux.Handle("/subscriptions/activate", authMw(http.HandlerFunc(h.activate)))
}

// createCheckout opens a hosted payment session and returns its URL. The
// upgrade itself happens in activate, after the payment provider redirects
// the user back.
func (h *SubscriptionHandler) createCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req dto.CheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	checkoutURL, err := h.creemClient.CreateCheckout(r.Context(), req.ProductID)
	if err != nil {
		h.logger.Error().Err(err).Str("product_id", req.ProductID).Msg("Failed to create checkout session")
		http.Error(w, "Failed to create checkout session: "+err.Error(), http.StatusBadGateway)
		return
	}

	resp := dto.CheckoutResponseDTO{CheckoutURL: checkoutURL}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

// activate marks the caller's account premium once a checkout completed. The
// redirect back from the payment page carries at least one of the checkout
// identifiers; an empty callback is rejected.
func (h *SubscriptionHandler) activate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req dto.ActivateRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	sess := middleware.SessionFromContext(r.Context())

	premium := model.TierPremium
	profile, err := h.profileService.Update(r.Context(), sess, model.ProfileUpdate{
		SubscriptionStatus: &premium,
	})
	if err != nil {
		http.Error(w, "Failed to activate subscription: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.logger.Info().
		Str("user_id", sess.UserID()).
		Str("subscription_id", req.SubscriptionID).
		Str("order_id", req.OrderID).
		Str("checkout_id", req.CheckoutID).
		Msg("Subscription activated")

	resp := dto.ProfileResponseDTO{
		UserID:             profile.UserID,
		FullName:           profile.FullName,
		AvatarURL:          profile.AvatarURL,
		SubscriptionStatus: string(profile.SubscriptionStatus),
		CreatedAt:          profile.CreatedAt,
		UpdatedAt:          profile.UpdatedAt,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}
