package dto

import "time"

// InteractionResponseDTO is one logged exchange.
type InteractionResponseDTO struct {
	ID             string    `json:"id"`
	ModelName      string    `json:"model_name"`
	Prompt         string    `json:"prompt"`
	Response       string    `json:"response"`
	TokensUsed     int       `json:"tokens_used"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// PubSubPushRequest is the request body for a Pub/Sub push notification.
type PubSubPushRequest struct {
	Message      PubSubMessage `json:"message"`
	Subscription string        `json:"subscription"`
}

// PubSubMessage is the actual message from Pub/Sub.
type PubSubMessage struct {
	Data       string            `json:"data"` // Base64-encoded
	MessageID  string            `json:"messageId"`
	Attributes map[string]string `json:"attributes"`
}
