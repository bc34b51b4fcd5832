package repository

import (
	"context"
	"database/sql"
	"fmt"

	"tapachat/internal/model"
)

// InteractionRepository is the append-only store of completed exchanges.
// Rows are only ever inserted and read; nothing in this service deletes them.
type InteractionRepository interface {
	CreateInteraction(ctx context.Context, in *model.Interaction) error
	ListInteractionsByUserID(ctx context.Context, userID string, limit int) ([]model.Interaction, error)
}

type interactionRepo struct {
	db *sql.DB
}

func NewInteractionRepo(db *sql.DB) InteractionRepository {
	return &interactionRepo{db: db}
}

func (r *interactionRepo) CreateInteraction(ctx context.Context, in *model.Interaction) error {
	query := `INSERT INTO interaction_logs (user_id, model_name, prompt, response, tokens_used, response_time_ms)
              VALUES ($1, $2, $3, $4, $5, $6)
              RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query,
		in.UserID, in.ModelName, in.Prompt, in.Response, in.TokensUsed, in.ResponseTimeMs,
	).Scan(&in.ID, &in.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating interaction log: %w", err)
	}
	return nil
}

func (r *interactionRepo) ListInteractionsByUserID(ctx context.Context, userID string, limit int) ([]model.Interaction, error) {
	query := `SELECT id, user_id, model_name, prompt, response, tokens_used, response_time_ms, created_at
              FROM interaction_logs
              WHERE user_id = $1
              ORDER BY created_at DESC
              LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing interactions: %w", err)
	}
	defer rows.Close()

	var interactions []model.Interaction
	for rows.Next() {
		var in model.Interaction
		if err := rows.Scan(&in.ID, &in.UserID, &in.ModelName, &in.Prompt, &in.Response,
			&in.TokensUsed, &in.ResponseTimeMs, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning interaction: %w", err)
		}
		interactions = append(interactions, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating interactions: %w", err)
	}
	return interactions, nil
}
