package model

import "time"

// WelcomeMessageID marks the synthetic greeting seeded when a model is
// selected. Welcome messages never leave the process: they are excluded from
// upstream completion requests.
const WelcomeMessageID = "welcome"

// ChatMessage is one transcript entry. Token and latency metadata is only
// present on assistant messages that came back from the model.
type ChatMessage struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	IsUser         bool      `json:"is_user"`
	Timestamp      time.Time `json:"timestamp"`
	TokensUsed     int       `json:"tokens_used,omitempty"`
	ResponseTimeMs int64     `json:"response_time_ms,omitempty"`
}

// ChatSession is the in-memory state of one conversation: identity, tier,
// selected model, ordered transcript and the guest quota counter. None of it
// is persisted.
type ChatSession struct {
	ID            string
	Identity      Session
	Tier          Tier
	SelectedModel *AIModel
	Messages      []ChatMessage
	GuestSent     int
	InFlight      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Interaction is one append-only record of a completed exchange for an
// authenticated user.
type Interaction struct {
	ID             string    `db:"id" json:"id"`
	UserID         string    `db:"user_id" json:"user_id"`
	ModelName      string    `db:"model_name" json:"model_name"`
	Prompt         string    `db:"prompt" json:"prompt"`
	Response       string    `db:"response" json:"response"`
	TokensUsed     int       `db:"tokens_used" json:"tokens_used"`
	ResponseTimeMs int64     `db:"response_time_ms" json:"response_time_ms"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
