package router

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"time"

	"tapachat/internal/api/v1/handler"
	"tapachat/internal/config"
	"tapachat/internal/middleware"
	"tapachat/internal/pubsub"
	"tapachat/internal/repository"
	"tapachat/internal/service"
	"tapachat/internal/store"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awsmiddleware "github.com/aws/smithy-go/middleware"
	"github.com/go-playground/validator/v10"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// New wires the full request path: DB, upstream clients, repositories,
// services, handlers and middleware. It also returns the catalog service so
// the caller can schedule refreshes, and the DB handle for shutdown.
func New(cfg *config.Config, logger zerolog.Logger) (http.Handler, service.CatalogService, *sql.DB, error) {
	logger.Info().Str("environment", cfg.Environment).Msg("Router initialized")

	// Open DB connection (connection pooling)
	dsn := cfg.DBConnectionString
	// In a development environment, we want to ensure that SSL is disabled for
	// local testing. In production, the connection string should be provided
	// with the correct SSL settings.
	if cfg.Environment == "development" && !strings.Contains(dsn, "sslmode") {
		separator := " "
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			if strings.Contains(dsn, "?") {
				separator = "&"
			} else {
				separator = "?"
			}
		}
		dsn += separator + "sslmode=disable"
	}
	// For non-development environments that use a transaction pooler like pgbouncer,
	// we must use the simple query protocol to avoid issues with server-side prepared statements.
	if cfg.Environment != "development" {
		if !strings.Contains(dsn, "prefer_simple_protocol") {
			separator := "&"
			if !strings.Contains(dsn, "?") {
				separator = "?"
			}
			dsn += separator + "prefer_simple_protocol=true"
		}
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open DB connection")
		return nil, nil, nil, err
	}
	if err := db.Ping(); err != nil {
		logger.Error().Err(err).Msg("Failed to ping DB")
		return nil, nil, nil, err
	}
	logger.Info().Msg("Database connection successful")

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)

	// Resolve upstream API keys from Secret Manager when they are not in the
	// environment.
	openRouterKey := cfg.OpenRouterAPIKey
	creemKey := cfg.CreemAPIKey
	if (openRouterKey == "" || creemKey == "") && cfg.GCPProjectID != "" {
		resolver, err := service.NewSecretResolver(context.Background(), cfg.GCPProjectID)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create secret resolver")
			return nil, nil, nil, err
		}
		defer func() {
			if err := resolver.Close(); err != nil {
				logger.Warn().Err(err).Msg("Failed to close secret resolver")
			}
		}()

		if openRouterKey == "" {
			if openRouterKey, err = resolver.ResolveSecret(context.Background(), cfg.OpenRouterSecretName); err != nil {
				logger.Error().Err(err).Msg("Failed to resolve OpenRouter API key")
				return nil, nil, nil, err
			}
		}
		if creemKey == "" {
			if creemKey, err = resolver.ResolveSecret(context.Background(), cfg.CreemSecretName); err != nil {
				logger.Error().Err(err).Msg("Failed to resolve Creem API key")
				return nil, nil, nil, err
			}
		}
	}

	// S3-compatible storage for avatar uploads. Optional: without credentials
	// the profile endpoints still work, only avatar uploads are off.
	var s3Client *s3.Client
	if cfg.S3URL != "" && cfg.S3AccessKey != "" {
		s3Config, err := awsconfig.LoadDefaultConfig(context.TODO(),
			awsconfig.WithRegion(cfg.S3Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
			awsconfig.WithAPIOptions([]func(*awsmiddleware.Stack) error{removeDisableGzip()}),
		)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to load S3 config")
			return nil, nil, nil, err
		}
		s3Client = s3.NewFromConfig(s3Config, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.S3URL)
			o.UsePathStyle = true
		})
	} else {
		logger.Warn().Msg("S3 storage not configured, avatar uploads disabled")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	// Pub/Sub publisher for interaction telemetry. Optional as well.
	var publisher pubsub.Publisher
	if cfg.GCPProjectID != "" {
		p, err := pubsub.NewPublisher(context.Background(), cfg.GCPProjectID)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create Pub/Sub publisher")
			return nil, nil, nil, err
		}
		publisher = p
	} else {
		logger.Warn().Msg("GCP project not configured, interaction logging disabled")
	}

	// Repositories & services & handlers
	profileRepo := repository.NewProfileRepo(db)
	interactionRepo := repository.NewInteractionRepo(db)

	chatSessions := store.New()
	openRouterClient := service.NewOpenRouterClient(cfg.OpenRouterBaseURL, openRouterKey, cfg.ChatTemperature, cfg.ChatMaxTokens)
	catalogSvc := service.NewCatalogService(openRouterClient, logger)
	profileSvc := service.NewProfileService(profileRepo, s3Client, cfg.S3Bucket, logger)
	chatSvc := service.NewChatService(chatSessions, catalogSvc, openRouterClient, publisher, cfg.InteractionTopic, cfg.GuestChatLimit, logger)
	interactionSvc := service.NewInteractionService(interactionRepo, logger)
	creemClient := service.NewCreemClient(cfg.CreemBaseURL, creemKey)
	authClient := service.NewSupabaseAuthClient(cfg.SupabaseURL, cfg.SupabaseAnonKey)

	modelHandler := handler.NewModelHandler(catalogSvc, profileSvc, logger)
	chatHandler := handler.NewChatHandler(chatSvc, profileSvc, validate, logger)
	profileHandler := handler.NewProfileHandler(profileSvc, validate, logger)
	subscriptionHandler := handler.NewSubscriptionHandler(creemClient, profileSvc, validate, logger)
	interactionHandler := handler.NewInteractionHandler(interactionSvc, logger)
	authHandler := handler.NewAuthHandler(authClient, logger)

	// Middleware
	sessionMiddleware := middleware.SessionMiddleware(cfg.SupabaseJWTSecret, logger)
	requireAuth := func(next http.Handler) http.Handler {
		return sessionMiddleware(middleware.RequireAuth(next))
	}
	isLocalDev := cfg.PubSubEmulatorHost != ""
	pubsubAuthMiddleware := middleware.PubSubAuthMiddleware(isLocalDev, cfg.InteractionPushEndpointURL, cfg.PubSubPushServiceAccountEmail, logger)

	// Create ServeMux router with the API mounted under /v1
	mux := http.NewServeMux()
	apiV1Mux := http.NewServeMux()
	modelHandler.RegisterRoutes(apiV1Mux, sessionMiddleware)
	chatHandler.RegisterRoutes(apiV1Mux, sessionMiddleware)
	profileHandler.RegisterRoutes(apiV1Mux, sessionMiddleware)
	subscriptionHandler.RegisterRoutes(apiV1Mux, requireAuth)
	interactionHandler.RegisterRoutes(apiV1Mux, sessionMiddleware, pubsubAuthMiddleware)
	authHandler.RegisterRoutes(apiV1Mux, sessionMiddleware)

	mux.Handle("/v1/", http.StripPrefix("/v1", apiV1Mux))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return middleware.LoggerMiddleware(logger, c.Handler(mux)), catalogSvc, db, nil
}

// removeDisableGzip is a workaround for S3 signature errors with some S3-compatible services.
// See: https://github.com/supabase/storage/issues/577
func removeDisableGzip() func(*awsmiddleware.Stack) error {
	return func(stack *awsmiddleware.Stack) error {
		if _, ok := stack.Finalize.Get("DisableAcceptEncodingGzip"); ok {
			_, err := stack.Finalize.Remove("DisableAcceptEncodingGzip")
			return err
		}
		return nil
	}
}
