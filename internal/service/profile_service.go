package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tapachat/internal/model"
	"tapachat/internal/repository"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrProfileNotFound      = errors.New("profile not found")
	ErrGuestProfileReadOnly = errors.New("guest profiles cannot be updated")
	ErrAvatarStorageOff     = errors.New("avatar storage is not configured")
)

// ProfileService resolves and updates the per-account profile. Guest sessions
// get a synthesized in-memory profile pinned to the free tier; it is never
// written to the database.
type ProfileService interface {
	Get(ctx context.Context, sess model.Session) (*model.Profile, error)
	Update(ctx context.Context, sess model.Session, patch model.ProfileUpdate) (*model.Profile, error)
	// TierFor resolves the subscription tier driving entitlement. Guests
	// are always free; a profile lookup failure degrades to free rather
	// than blocking the caller.
	TierFor(ctx context.Context, sess model.Session) model.Tier
	// AvatarUploadURL returns a presigned PUT URL for a new avatar object
	// plus its storage path.
	AvatarUploadURL(ctx context.Context, sess model.Session) (uploadURL, storagePath string, err error)
}

type profileService struct {
	repo          repository.ProfileRepository
	presignClient *s3.PresignClient
	bucketName    string
	logger        zerolog.Logger
}

// NewProfileService creates a ProfileService. s3Client may be nil when avatar
// storage is not configured.
func NewProfileService(repo repository.ProfileRepository, s3Client *s3.Client, bucketName string, logger zerolog.Logger) ProfileService {
	var presign *s3.PresignClient
	if s3Client != nil {
		presign = s3.NewPresignClient(s3Client)
	}
	return &profileService{
		repo:          repo,
		presignClient: presign,
		bucketName:    bucketName,
		logger:        logger.With().Str("service", "ProfileService").Logger(),
	}
}

// Get returns the caller's profile, creating the row lazily with tier free on
// first fetch for authenticated users.
func (s *profileService) Get(ctx context.Context, sess model.Session) (*model.Profile, error) {
	if sess.IsGuest() {
		return model.GuestProfile(), nil
	}

	p, err := s.repo.GetProfileByUserID(ctx, sess.UserID())
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", sess.UserID()).Msg("Failed to fetch profile")
		return nil, fmt.Errorf("fetching profile: %w", err)
	}
	if p != nil {
		return p, nil
	}

	p = &model.Profile{
		UserID:             sess.UserID(),
		FullName:           sess.Account.Name,
		SubscriptionStatus: model.TierFree,
	}
	if err := s.repo.CreateProfile(ctx, p); err != nil {
		s.logger.Error().Err(err).Str("user_id", sess.UserID()).Msg("Failed to create profile")
		return nil, fmt.Errorf("creating profile: %w", err)
	}
	return p, nil
}

func (s *profileService) Update(ctx context.Context, sess model.Session, patch model.ProfileUpdate) (*model.Profile, error) {
	if sess.IsGuest() {
		return nil, ErrGuestProfileReadOnly
	}

	// Lazy-create so a patch can land before the first profile fetch.
	if _, err := s.Get(ctx, sess); err != nil {
		return nil, err
	}

	p, err := s.repo.UpdateProfile(ctx, sess.UserID(), patch)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", sess.UserID()).Msg("Failed to update profile")
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	if p == nil {
		return nil, ErrProfileNotFound
	}
	return p, nil
}

func (s *profileService) TierFor(ctx context.Context, sess model.Session) model.Tier {
	if sess.IsGuest() {
		return model.TierFree
	}
	p, err := s.Get(ctx, sess)
	if err != nil {
		return model.TierFree
	}
	return p.SubscriptionStatus
}

func (s *profileService) AvatarUploadURL(ctx context.Context, sess model.Session) (string, string, error) {
	if sess.IsGuest() {
		return "", "", ErrGuestProfileReadOnly
	}
	if s.presignClient == nil {
		return "", "", ErrAvatarStorageOff
	}

	storagePath := fmt.Sprintf("avatars/%s/%s", sess.UserID(), uuid.NewString())
	request, err := s.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(storagePath),
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		s.logger.Error().Err(err).Str("object_key", storagePath).Msg("Failed to generate presigned PUT URL")
		return "", "", fmt.Errorf("failed to generate presigned PUT URL: %w", err)
	}
	return request.URL, storagePath, nil
}
