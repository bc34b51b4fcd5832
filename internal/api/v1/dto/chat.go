package dto

import "time"

// MessageResponseDTO is one transcript entry.
type MessageResponseDTO struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	IsUser         bool      `json:"is_user"`
	Timestamp      time.Time `json:"timestamp"`
	TokensUsed     int       `json:"tokens_used,omitempty"`
	ResponseTimeMs int64     `json:"response_time_ms,omitempty"`
}

// SessionResponseDTO is the full state of a chat session.
type SessionResponseDTO struct {
	ID                string               `json:"id"`
	Model             *ModelResponseDTO    `json:"model,omitempty"`
	Messages          []MessageResponseDTO `json:"messages"`
	Guest             bool                 `json:"guest"`
	GuestMessagesSent int                  `json:"guest_messages_sent"`
	GuestMessageLimit int                  `json:"guest_message_limit"`
	LimitReached      bool                 `json:"limit_reached"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

// SendMessageRequestDTO is an incoming user message.
type SendMessageRequestDTO struct {
	Content string `json:"content" validate:"required"`
}

// SelectModelRequestDTO switches the session's active model.
type SelectModelRequestDTO struct {
	ModelID string `json:"model_id" validate:"required"`
}
