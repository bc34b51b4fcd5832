package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"tapachat/internal/model"
	"tapachat/internal/repository"

	"github.com/rs/zerolog"
)

var ErrInvalidInteractionEvent = errors.New("invalid interaction event")

// InteractionService persists exchange records arriving on the telemetry
// side channel and serves the per-user history.
type InteractionService interface {
	// RecordEvent decodes an interaction payload published by the chat
	// service and appends it to the log.
	RecordEvent(ctx context.Context, payload []byte) error
	History(ctx context.Context, sess model.Session, limit int) ([]model.Interaction, error)
}

type interactionService struct {
	repo   repository.InteractionRepository
	logger zerolog.Logger
}

func NewInteractionService(repo repository.InteractionRepository, logger zerolog.Logger) InteractionService {
	return &interactionService{
		repo:   repo,
		logger: logger.With().Str("service", "InteractionService").Logger(),
	}
}

func (s *interactionService) RecordEvent(ctx context.Context, payload []byte) error {
	var in model.Interaction
	if err := json.Unmarshal(payload, &in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInteractionEvent, err)
	}
	if in.UserID == "" || in.ModelName == "" {
		return fmt.Errorf("%w: missing user or model", ErrInvalidInteractionEvent)
	}
	// The side channel only ever carries authenticated exchanges; a guest
	// event would be a producer bug, so refuse to persist it.
	if in.UserID == model.GuestUserID {
		return fmt.Errorf("%w: guest interactions are not recorded", ErrInvalidInteractionEvent)
	}

	if err := s.repo.CreateInteraction(ctx, &in); err != nil {
		s.logger.Error().Err(err).Str("user_id", in.UserID).Msg("Failed to persist interaction")
		return err
	}
	return nil
}

func (s *interactionService) History(ctx context.Context, sess model.Session, limit int) ([]model.Interaction, error) {
	if sess.IsGuest() {
		return nil, ErrUnauthorized
	}
	if limit <= 0 {
		limit = 50
	}
	interactions, err := s.repo.ListInteractionsByUserID(ctx, sess.UserID(), limit)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", sess.UserID()).Msg("Failed to list interactions")
		return nil, err
	}
	return interactions, nil
}
