package config

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENV" default:"development"`

	DBConnectionString string `envconfig:"DB_CONNECTION_STRING" required:"true"`

	// Supabase auth settings
	SupabaseURL       string `envconfig:"SUPABASE_URL" required:"true"`
	SupabaseAnonKey   string `envconfig:"SUPABASE_ANON_KEY" required:"true"`
	SupabaseJWTSecret string `envconfig:"SUPABASE_JWT_SECRET" required:"true"`

	// Supabase storage (S3-compatible) settings for avatar uploads
	S3URL       string `envconfig:"SUPABASE_S3_URL"`
	S3Bucket    string `envconfig:"SUPABASE_S3_BUCKET" default:"avatars"`
	S3Region    string `envconfig:"SUPABASE_S3_REGION" default:"us-east-1"`
	S3AccessKey string `envconfig:"SUPABASE_S3_ACCESS_KEY"`
	S3SecretKey string `envconfig:"SUPABASE_S3_SECRET_KEY"`

	// OpenRouter settings. The API key may be left empty and resolved from
	// Secret Manager instead.
	OpenRouterBaseURL    string `envconfig:"OPENROUTER_BASE_URL" default:"https://openrouter.ai/api/v1"`
	OpenRouterAPIKey     string `envconfig:"OPENROUTER_API_KEY"`
	OpenRouterSecretName string `envconfig:"OPENROUTER_SECRET_NAME" default:"openrouter-api-key"`

	// Creem payment settings
	CreemBaseURL    string `envconfig:"CREEM_BASE_URL" default:"https://test-api.creem.io"`
	CreemAPIKey     string `envconfig:"CREEM_API_KEY"`
	CreemSecretName string `envconfig:"CREEM_SECRET_NAME" default:"creem-api-key"`

	// Chat settings
	GuestChatLimit  int     `envconfig:"GUEST_CHAT_LIMIT" default:"5"`
	ChatTemperature float64 `envconfig:"CHAT_TEMPERATURE" default:"0.7"`
	ChatMaxTokens   int     `envconfig:"CHAT_MAX_TOKENS" default:"1000"`

	// Interaction telemetry (Pub/Sub side channel)
	GCPProjectID                  string `envconfig:"GCP_PROJECT_ID"`
	InteractionTopic              string `envconfig:"INTERACTION_TOPIC" default:"interaction-events"`
	InteractionPushEndpointURL    string `envconfig:"INTERACTION_PUSH_ENDPOINT_URL"`
	PubSubPushServiceAccountEmail string `envconfig:"PUBSUB_PUSH_SERVICE_ACCOUNT_EMAIL"`
	PubSubEmulatorHost            string `envconfig:"PUBSUB_EMULATOR_HOST"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
