package dto

import "time"

// ProfileResponseDTO is the account profile as exposed to clients.
type ProfileResponseDTO struct {
	UserID             string    `json:"user_id"`
	FullName           string    `json:"full_name"`
	AvatarURL          string    `json:"avatar_url,omitempty"`
	SubscriptionStatus string    `json:"subscription_status"`
	Guest              bool      `json:"guest"`
	CreatedAt          time.Time `json:"created_at,omitempty"`
	UpdatedAt          time.Time `json:"updated_at,omitempty"`
}

// ProfileUpdateDTO is used for incoming profile patch requests.
type ProfileUpdateDTO struct {
	FullName  *string `json:"full_name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// AvatarUploadResponseDTO carries a presigned PUT URL for an avatar object.
type AvatarUploadResponseDTO struct {
	UploadURL   string `json:"upload_url"`
	StoragePath string `json:"storage_path"`
}
