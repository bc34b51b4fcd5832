package service

import (
	"context"
	"sync"

	"tapachat/internal/model"

	"github.com/rs/zerolog"
)

// CatalogService owns the shared model-catalog snapshot. Refreshes are not
// deduplicated: overlapping calls are safe because a refresh either replaces
// the snapshot wholesale or leaves the previous one in place, last write
// wins.
type CatalogService interface {
	// Refresh fetches the catalog. On failure the previously loaded
	// snapshot, if any, stays usable.
	Refresh(ctx context.Context) error
	// Catalog returns the current snapshot. Loaded reports whether any
	// fetch has succeeded yet.
	Catalog() (model.Catalog, bool)
	// AvailableModels returns the entries entitled under the tier.
	AvailableModels(tier model.Tier) []model.AIModel
	// FindModel looks an entry up by id in the current snapshot.
	FindModel(id string) (model.AIModel, bool)
	// FirstEntitled returns the auto-selection candidate for a tier: the
	// first free entry for non-paid tiers, the first entry overall for
	// paid ones.
	FirstEntitled(tier model.Tier) (model.AIModel, bool)
	// LastError returns the readable message of the most recent failed
	// refresh, or "" after a success.
	LastError() string
}

type catalogService struct {
	client OpenRouterClient
	logger zerolog.Logger

	mu      sync.RWMutex
	catalog model.Catalog
	loaded  bool
	lastErr string
}

func NewCatalogService(client OpenRouterClient, logger zerolog.Logger) CatalogService {
	return &catalogService{
		client: client,
		logger: logger.With().Str("service", "CatalogService").Logger(),
	}
}

func (s *catalogService) Refresh(ctx context.Context) error {
	models, err := s.client.ListModels(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to refresh model catalog")
		s.mu.Lock()
		s.lastErr = err.Error()
		s.mu.Unlock()
		return err
	}

	var free, premium []model.AIModel
	for _, m := range models {
		if IsFreeModel(m) {
			free = append(free, m)
		} else {
			premium = append(premium, m)
		}
	}

	snapshot := model.Catalog{
		All:        models,
		Free:       free,
		Premium:    premium,
		ByProvider: CategorizeModels(models),
	}

	s.mu.Lock()
	s.catalog = snapshot
	s.loaded = true
	s.lastErr = ""
	s.mu.Unlock()

	s.logger.Info().
		Int("models", len(models)).
		Int("free", len(free)).
		Int("premium", len(premium)).
		Msg("Model catalog refreshed")
	return nil
}

func (s *catalogService) Catalog() (model.Catalog, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog, s.loaded
}

func (s *catalogService) AvailableModels(tier model.Tier) []model.AIModel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return FilterEntitled(s.catalog.All, tier)
}

func (s *catalogService) FindModel(id string) (model.AIModel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.catalog.All {
		if m.ID == id {
			return m, true
		}
	}
	return model.AIModel{}, false
}

func (s *catalogService) FirstEntitled(tier model.Tier) (model.AIModel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return FirstEntitled(s.catalog.All, tier)
}

func (s *catalogService) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}
