package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tapachat/internal/model"
	"tapachat/internal/pubsub"
	"tapachat/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrUnauthorized      = errors.New("unauthorized access")
	ErrEmptyMessage      = errors.New("message is empty")
	ErrRequestInFlight   = errors.New("a request is already in flight for this session")
	ErrNoModelSelected   = errors.New("no model selected")
	ErrModelNotFound     = errors.New("model not found in catalog")
	ErrModelNotAvailable = errors.New("this model is not available on your plan")
	ErrGuestLimitReached = errors.New("guest message limit reached")
)

// ChatService drives the per-session chat state machine: model selection,
// transcript, guest quota and dispatch to the model API.
type ChatService interface {
	CreateSession(ctx context.Context, identity model.Session, tier model.Tier) (model.ChatSession, error)
	GetSession(ctx context.Context, sessionID string, identity model.Session, tier model.Tier) (model.ChatSession, error)
	SelectModel(ctx context.Context, sessionID, modelID string, identity model.Session, tier model.Tier) (model.ChatSession, error)
	Send(ctx context.Context, sessionID string, identity model.Session, tier model.Tier, content string) (model.ChatSession, error)
	DeleteSession(ctx context.Context, sessionID string, identity model.Session) error
	GuestLimit() int
}

type chatService struct {
	sessions   *store.ChatStore
	catalogSvc CatalogService
	client     OpenRouterClient
	publisher  pubsub.Publisher
	topic      string
	guestLimit int
	logger     zerolog.Logger
}

// NewChatService creates a ChatService. publisher may be nil, in which case
// interaction telemetry is disabled.
func NewChatService(
	sessions *store.ChatStore,
	catalogSvc CatalogService,
	client OpenRouterClient,
	publisher pubsub.Publisher,
	topic string,
	guestLimit int,
	logger zerolog.Logger,
) ChatService {
	return &chatService{
		sessions:   sessions,
		catalogSvc: catalogSvc,
		client:     client,
		publisher:  publisher,
		topic:      topic,
		guestLimit: guestLimit,
		logger:     logger.With().Str("service", "ChatService").Logger(),
	}
}

func (s *chatService) GuestLimit() int {
	return s.guestLimit
}

func (s *chatService) CreateSession(ctx context.Context, identity model.Session, tier model.Tier) (model.ChatSession, error) {
	created := s.sessions.Create(identity, tier)
	return s.sessions.Mutate(created.ID, func(sess *model.ChatSession) error {
		s.ensureSelection(sess)
		return nil
	})
}

func (s *chatService) GetSession(ctx context.Context, sessionID string, identity model.Session, tier model.Tier) (model.ChatSession, error) {
	return s.sessions.Mutate(sessionID, func(sess *model.ChatSession) error {
		if err := s.syncIdentity(sess, identity, tier); err != nil {
			return err
		}
		s.ensureSelection(sess)
		return nil
	})
}

func (s *chatService) SelectModel(ctx context.Context, sessionID, modelID string, identity model.Session, tier model.Tier) (model.ChatSession, error) {
	return s.sessions.Mutate(sessionID, func(sess *model.ChatSession) error {
		if err := s.syncIdentity(sess, identity, tier); err != nil {
			return err
		}

		m, ok := s.catalogSvc.FindModel(modelID)
		if !ok {
			return ErrModelNotFound
		}
		if !IsEntitled(m, sess.Tier) {
			return ErrModelNotAvailable
		}

		sess.SelectedModel = &m
		resetTranscript(sess)
		return nil
	})
}

func (s *chatService) DeleteSession(ctx context.Context, sessionID string, identity model.Session) error {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	if !ownedBy(sess, identity) {
		return ErrUnauthorized
	}
	s.sessions.Delete(sessionID)
	return nil
}

// Send runs one exchange. Upstream failure is local to the exchange: the
// transcript gains a synthetic assistant error message and the returned error
// is nil, so the session, selection and prior messages stay intact.
func (s *chatService) Send(ctx context.Context, sessionID string, identity model.Session, tier model.Tier, content string) (model.ChatSession, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return model.ChatSession{}, ErrEmptyMessage
	}

	var (
		selected model.AIModel
		history  []ChatCompletionMessage
		isGuest  bool
	)

	snapshot, err := s.sessions.Mutate(sessionID, func(sess *model.ChatSession) error {
		if err := s.syncIdentity(sess, identity, tier); err != nil {
			return err
		}
		s.ensureSelection(sess)

		if sess.InFlight {
			return ErrRequestInFlight
		}
		if sess.SelectedModel == nil {
			return ErrNoModelSelected
		}
		if sess.Identity.IsGuest() && sess.GuestSent >= s.guestLimit {
			return ErrGuestLimitReached
		}

		sess.Messages = append(sess.Messages, model.ChatMessage{
			ID:        uuid.NewString(),
			Content:   content,
			IsUser:    true,
			Timestamp: time.Now(),
		})
		if sess.Identity.IsGuest() {
			sess.GuestSent++
		}
		sess.InFlight = true

		selected = *sess.SelectedModel
		history = completionHistory(sess.Messages)
		isGuest = sess.Identity.IsGuest()
		return nil
	})
	if err != nil {
		return snapshot, err
	}

	// The upstream call happens outside the store lock; InFlight blocks a
	// second concurrent send for this session in the meantime.
	result, sendErr := s.client.CreateChatCompletion(ctx, selected.ID, history)

	snapshot, err = s.sessions.Mutate(sessionID, func(sess *model.ChatSession) error {
		sess.InFlight = false

		if sendErr != nil {
			sess.Messages = append(sess.Messages, model.ChatMessage{
				ID:        uuid.NewString(),
				Content:   fmt.Sprintf("Sorry, I encountered an error: %s", sendErr.Error()),
				IsUser:    false,
				Timestamp: time.Now(),
			})
			return nil
		}

		sess.Messages = append(sess.Messages, model.ChatMessage{
			ID:             uuid.NewString(),
			Content:        result.Content,
			IsUser:         false,
			Timestamp:      time.Now(),
			TokensUsed:     result.TokensUsed,
			ResponseTimeMs: result.ResponseTimeMs,
		})
		return nil
	})
	if err != nil {
		return snapshot, err
	}

	if sendErr != nil {
		s.logger.Error().Err(sendErr).
			Str("session_id", sessionID).
			Str("model_id", selected.ID).
			Msg("Chat completion failed")
		return snapshot, nil
	}

	if !isGuest {
		s.publishInteraction(identity.UserID(), selected.ID, content, result)
	}

	return snapshot, nil
}

// publishInteraction records a completed exchange on the best-effort side
// channel. It is fire-and-forget: failures are logged and never reach the
// chat flow.
func (s *chatService) publishInteraction(userID, modelID, prompt string, result *ChatCompletionResult) {
	if s.publisher == nil {
		return
	}

	payload, err := json.Marshal(model.Interaction{
		UserID:         userID,
		ModelName:      modelID,
		Prompt:         prompt,
		Response:       result.Content,
		TokensUsed:     result.TokensUsed,
		ResponseTimeMs: result.ResponseTimeMs,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to marshal interaction event")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := s.publisher.Publish(ctx, s.topic, payload); err != nil {
			s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to publish interaction event")
		}
	}()
}

// syncIdentity re-binds the session when the caller's identity changed. The
// only rebind allowed is guest signing in mid-chat: once a session is bound
// to an authenticated account it stays pinned to that account, and neither
// another account nor a tokenless caller can touch it. Without the tokenless
// half of the guard, a guest access would unbind the account and let anyone
// re-bind and read the transcript. The guest counter resets on rebind.
func (s *chatService) syncIdentity(sess *model.ChatSession, identity model.Session, tier model.Tier) error {
	if sess.Identity.Kind == model.SessionAuthenticated {
		if identity.Kind != model.SessionAuthenticated ||
			sess.Identity.UserID() != identity.UserID() {
			return ErrUnauthorized
		}
	}

	if sess.Identity.Kind != identity.Kind {
		sess.Identity = identity
		sess.GuestSent = 0
	}
	sess.Tier = tier
	return nil
}

// ensureSelection enforces the invariant that the selected model, if any, is
// a member of the currently entitled set. A selection that dropped out of the
// catalog or out of entitlement is replaced by the first entitled entry, or
// cleared when none exists; replacement counts as a model change and resets
// the transcript and guest counter. A session with no selection gets the
// auto-selection candidate once the catalog is loaded.
func (s *chatService) ensureSelection(sess *model.ChatSession) {
	if _, loaded := s.catalogSvc.Catalog(); !loaded {
		return
	}

	if sess.SelectedModel != nil {
		current, ok := s.catalogSvc.FindModel(sess.SelectedModel.ID)
		if ok && IsEntitled(current, sess.Tier) {
			return
		}
		if replacement, found := s.catalogSvc.FirstEntitled(sess.Tier); found {
			sess.SelectedModel = &replacement
		} else {
			sess.SelectedModel = nil
		}
		resetTranscript(sess)
		return
	}

	if m, ok := s.catalogSvc.FirstEntitled(sess.Tier); ok {
		sess.SelectedModel = &m
		resetTranscript(sess)
	}
}

// resetTranscript clears the conversation for the current selection, reseeds
// the welcome message and zeroes the guest counter.
func resetTranscript(sess *model.ChatSession) {
	sess.Messages = nil
	sess.GuestSent = 0
	if sess.SelectedModel != nil {
		sess.Messages = []model.ChatMessage{{
			ID:        model.WelcomeMessageID,
			Content:   fmt.Sprintf("Hello! I'm %s. How can I help you today?", DisplayName(*sess.SelectedModel)),
			IsUser:    false,
			Timestamp: time.Now(),
		}}
	}
}

// completionHistory converts the transcript to the upstream request format,
// excluding the synthetic welcome message.
func completionHistory(messages []model.ChatMessage) []ChatCompletionMessage {
	out := make([]ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.ID == model.WelcomeMessageID {
			continue
		}
		role := "assistant"
		if msg.IsUser {
			role = "user"
		}
		out = append(out, ChatCompletionMessage{Role: role, Content: msg.Content})
	}
	return out
}

func ownedBy(sess model.ChatSession, identity model.Session) bool {
	if sess.Identity.Kind == model.SessionAuthenticated {
		return identity.Kind == model.SessionAuthenticated &&
			sess.Identity.UserID() == identity.UserID()
	}
	return true
}
