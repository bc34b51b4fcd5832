package handler

import (
	"encoding/json"
	"net/http"

	"tapachat/internal/api/v1/dto"
	"tapachat/internal/middleware"
	"tapachat/internal/model"
	"tapachat/internal/service"

	"github.com/rs/zerolog"
)

type ModelHandler struct {
	catalogService service.CatalogService
	profileService service.ProfileService
	logger         zerolog.Logger
}

func NewModelHandler(catalogService service.CatalogService, profileService service.ProfileService, logger zerolog.Logger) *ModelHandler {
	return &ModelHandler{
		catalogService: catalogService,
		profileService: profileService,
		logger:         logger,
	}
}

// RegisterRoutes mounts v1 model catalog routes.
func (h *ModelHandler) RegisterRoutes(mux *http.ServeMux, sessionMw func(http.Handler) http.Handler) {
	mux.Handle("/models", sessionMw(http.HandlerFunc(h.listModels)))
	mux.Handle("/models/refresh", sessionMw(http.HandlerFunc(h.refreshModels)))
}

// listModels returns the catalog snapshot with per-model entitlement flags
// together with the list of models available on the caller's tier. An empty
// snapshot with loaded=false means no fetch has succeeded yet.
func (h *ModelHandler) listModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.writeCatalog(w, r)
}

// refreshModels re-fetches the catalog from the upstream API. A failed fetch
// keeps the previous snapshot in place.
func (h *ModelHandler) refreshModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.catalogService.Refresh(r.Context()); err != nil {
		http.Error(w, "Failed to refresh model catalog: "+err.Error(), http.StatusBadGateway)
		return
	}

	h.writeCatalog(w, r)
}

func (h *ModelHandler) writeCatalog(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())
	tier := h.profileService.TierFor(r.Context(), sess)

	catalog, loaded := h.catalogService.Catalog()
	available := h.catalogService.AvailableModels(tier)

	resp := dto.CatalogResponseDTO{
		Models:     make([]dto.ModelResponseDTO, len(catalog.All)),
		Available:  make([]dto.ModelResponseDTO, len(available)),
		Categories: make(map[string][]dto.ModelResponseDTO, len(catalog.ByProvider)),
		Loaded:     loaded,
		LastError:  h.catalogService.LastError(),
	}
	for i, m := range catalog.All {
		resp.Models[i] = modelToDTO(m, tier)
	}
	for i, m := range available {
		resp.Available[i] = modelToDTO(m, tier)
	}
	for category, models := range catalog.ByProvider {
		entries := make([]dto.ModelResponseDTO, len(models))
		for i, m := range models {
			entries[i] = modelToDTO(m, tier)
		}
		resp.Categories[category] = entries
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func modelToDTO(m model.AIModel, tier model.Tier) dto.ModelResponseDTO {
	return dto.ModelResponseDTO{
		ID:            m.ID,
		Name:          m.Name,
		Description:   m.Description,
		ContextLength: m.ContextLength,
		Provider:      service.ProviderName(m),
		Free:          service.IsFreeModel(m),
		Entitled:      service.IsEntitled(m, tier),
	}
}
