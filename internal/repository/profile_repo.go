package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tapachat/internal/model"
)

type ProfileRepository interface {
	CreateProfile(ctx context.Context, p *model.Profile) error
	GetProfileByUserID(ctx context.Context, userID string) (*model.Profile, error)
	UpdateProfile(ctx context.Context, userID string, patch model.ProfileUpdate) (*model.Profile, error)
}

type profileRepo struct {
	db *sql.DB
}

func NewProfileRepo(db *sql.DB) ProfileRepository {
	return &profileRepo{db: db}
}

func (r *profileRepo) CreateProfile(ctx context.Context, p *model.Profile) error {
	query := `INSERT INTO user_profiles (user_id, full_name, avatar_url, subscription_status)
              VALUES ($1, $2, $3, $4)
              RETURNING user_id, full_name, avatar_url, subscription_status, created_at, updated_at`
	var status string
	err := r.db.QueryRowContext(ctx, query, p.UserID, p.FullName, p.AvatarURL, string(p.SubscriptionStatus)).
		Scan(&p.UserID, &p.FullName, &p.AvatarURL, &status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating profile: %w", err)
	}
	p.SubscriptionStatus = model.ParseTier(status)
	return nil
}

func (r *profileRepo) GetProfileByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	var p model.Profile
	var status string
	query := `SELECT user_id, full_name, avatar_url, subscription_status, created_at, updated_at
              FROM user_profiles WHERE user_id=$1`
	row := r.db.QueryRowContext(ctx, query, userID)
	if err := row.Scan(&p.UserID, &p.FullName, &p.AvatarURL, &status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	p.SubscriptionStatus = model.ParseTier(status)
	return &p, nil
}

// UpdateProfile applies the non-nil fields of patch and returns the updated
// row. COALESCE keeps omitted columns untouched.
func (r *profileRepo) UpdateProfile(ctx context.Context, userID string, patch model.ProfileUpdate) (*model.Profile, error) {
	var statusArg *string
	if patch.SubscriptionStatus != nil {
		s := string(*patch.SubscriptionStatus)
		statusArg = &s
	}

	query := `UPDATE user_profiles
              SET full_name = COALESCE($2, full_name),
                  avatar_url = COALESCE($3, avatar_url),
                  subscription_status = COALESCE($4, subscription_status),
                  updated_at = NOW()
              WHERE user_id = $1
              RETURNING user_id, full_name, avatar_url, subscription_status, created_at, updated_at`

	var p model.Profile
	var status string
	row := r.db.QueryRowContext(ctx, query, userID, patch.FullName, patch.AvatarURL, statusArg)
	if err := row.Scan(&p.UserID, &p.FullName, &p.AvatarURL, &status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	p.SubscriptionStatus = model.ParseTier(status)
	return &p, nil
}
