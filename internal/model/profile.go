package model

import "time"

// Tier is a subscription tier. The closed set is free, premium and the
// historical enterprise value; anything else parses to free.
type Tier string

const (
	TierFree       Tier = "free"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

// ParseTier maps arbitrary stored values onto the closed tier set.
// Unknown or empty values are treated as free.
func ParseTier(s string) Tier {
	switch Tier(s) {
	case TierPremium:
		return TierPremium
	case TierEnterprise:
		return TierEnterprise
	default:
		return TierFree
	}
}

// Paid reports whether the tier is above free.
func (t Tier) Paid() bool {
	return t == TierPremium || t == TierEnterprise
}

// Profile is the per-account record behind a session. Guest profiles are
// synthesized in memory and never persisted.
type Profile struct {
	UserID             string    `db:"user_id" json:"user_id"`
	FullName           string    `db:"full_name" json:"full_name"`
	AvatarURL          string    `db:"avatar_url" json:"avatar_url"`
	SubscriptionStatus Tier      `db:"subscription_status" json:"subscription_status"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// GuestProfile returns the synthetic profile for guest sessions.
// Its tier is always free.
func GuestProfile() *Profile {
	return &Profile{
		UserID:             GuestUserID,
		FullName:           "Guest",
		SubscriptionStatus: TierFree,
	}
}

// ProfileUpdate is a partial profile patch. Nil fields are left unchanged.
type ProfileUpdate struct {
	FullName           *string
	AvatarURL          *string
	SubscriptionStatus *Tier
}
