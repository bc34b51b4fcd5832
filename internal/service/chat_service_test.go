package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"tapachat/internal/model"
	"tapachat/internal/pubsub"
	"tapachat/internal/store"

	"github.com/rs/zerolog"
)

type fakePublisher struct {
	mu        sync.Mutex
	published [][]byte
	notify    chan struct{}
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{notify: make(chan struct{}, 8)}
}

func (f *fakePublisher) Publish(ctx context.Context, topic string, payload []byte) (string, error) {
	f.mu.Lock()
	f.published = append(f.published, payload)
	f.mu.Unlock()
	f.notify <- struct{}{}
	return "msg-1", nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func newTestChatService(t *testing.T, client *fakeOpenRouterClient, publisher *fakePublisher, guestLimit int) ChatService {
	t.Helper()

	catalogSvc := NewCatalogService(client, zerolog.Nop())
	if err := catalogSvc.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}

	return NewChatService(store.New(), catalogSvc, client, publisherOrNil(publisher), "interaction-events", guestLimit, zerolog.Nop())
}

func publisherOrNil(p *fakePublisher) pubsub.Publisher {
	if p == nil {
		return nil
	}
	return p
}

func okResult() *ChatCompletionResult {
	return &ChatCompletionResult{Content: "Sure, here you go.", TokensUsed: 42, ResponseTimeMs: 120}
}

func TestCreateSessionAutoSelectsEntitledModel(t *testing.T) {
	client := &fakeOpenRouterClient{models: testCatalogModels, result: okResult()}
	svc := newTestChatService(t, client, nil, 5)

	chat, err := svc.CreateSession(context.Background(), model.GuestSession(), model.TierFree)
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}

	if chat.SelectedModel == nil {
		t.Fatal("expected auto-selected model")
	}
	if chat.SelectedModel.ID != "meta-llama/llama-3-8b:free" {
		t.Fatalf("expected first free model selected, got %s", chat.SelectedModel.ID)
	}
	if len(chat.Messages) != 1 || chat.Messages[0].ID != model.WelcomeMessageID {
		t.Fatalf("expected a single welcome message, got %v", chat.Messages)
	}
	if !strings.Contains(chat.Messages[0].Content, "Llama 3 8B Instruct") {
		t.Fatalf("welcome message should name the model, got %q", chat.Messages[0].Content)
	}
}

func TestSendAppendsUserAndAssistantMessages(t *testing.T) {
	client := &fakeOpenRouterClient{models: testCatalogModels, result: okResult()}
	svc := newTestChatService(t, client, nil, 5)

	chat, err := svc.CreateSession(context.Background(), model.GuestSession(), model.TierFree)
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}

	chat, err = svc.Send(context.Background(), chat.ID, model.GuestSession(), model.TierFree, "Hello there")
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	// welcome + user + assistant
	if len(chat.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(chat.Messages))
	}
	user, assistant := chat.Messages[1], chat.Messages[2]
	if !user.IsUser || user.Content != "Hello there" {
		t.Fatalf("unexpected user message: %+v", user)
	}
	if assistant.IsUser || assistant.Content != "Sure, here you go." {
		t.Fatalf("unexpected assistant message: %+v", assistant)
	}
	if assistant.TokensUsed != 42 || assistant.ResponseTimeMs != 120 {
		t.Fatalf("usage not recorded on assistant message: %+v", assistant)
	}
	if chat.GuestSent != 1 {
		t.Fatalf("expected guest counter 1, got %d", chat.GuestSent)
	}

	// The welcome message must not reach the upstream request.
	if len(client.lastMsgs) != 1 || client.lastMsgs[0].Role != "user" {
		t.Fatalf("expected only the user message upstream, got %v", client.lastMsgs)
	}
	if client.lastModel != "meta-llama/llama-3-8b:free" {
		t.Fatalf("expected upstream call with selected model, got %s", client.lastModel)
	}
}

func TestSendGuestLimit(t *testing.T) {
	client := &fakeOpenRouterClient{models: testCatalogModels, result: okResult()}
	svc := newTestChatService(t, client, nil, 2)

	chat, err := svc.CreateSession(context.Background(), model.GuestSession(), model.TierFree)
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := svc.Send(context.Background(), chat.ID, model.GuestSession(), model.TierFree, "message"); err != nil {
			t.Fatalf("send %d returned error: %v", i+1, err)
		}
	}

	calls := client.sendCalls
	if _, err := svc.Send(context.Background(), chat.ID, model.GuestSession(), model.TierFree, "one too many"); !errors.Is(err, ErrGuestLimitReached) {
		t.Fatalf("expected ErrGuestLimitReached, got %v", err)
	}
	if client.sendCalls != calls {
		t.Fatal("over-limit send must not reach the upstream API")
	}

	// The rejected message must not linger in the transcript.
	got, err := svc.GetSession(context.Background(), chat.ID, model.GuestSession(), model.TierFree)
	if err != nil {
		t.Fatalf("GetSession returned error: %v", err)
	}
	for _, msg := range got.Messages {
		if msg.Content == "one too many" {
			t.Fatal("rejected message leaked into the transcript")
		}
	}
}

func TestSendUpstreamFailureStaysInTranscript(t *testing.T) {
	client := &fakeOpenRouterClient{models: testCatalogModels, sendErr: errors.New("service unavailable")}
	publisher := newFakePublisher()
	svc := newTestChatService(t, client, publisher, 5)

	chat, err := svc.CreateSession(context.Background(), model.GuestSession(), model.TierFree)
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}

	chat, err = svc.Send(context.Background(), chat.ID, model.GuestSession(), model.TierFree, "Hello")
	if err != nil {
		t.Fatalf("upstream failure must not fail the send, got %v", err)
	}

	last := chat.Messages[len(chat.Messages)-1]
	if last.IsUser {
		t.Fatal("expected a synthetic assistant message after the failure")
	}
	if last.Content != "Sorry, I encountered an error: service unavailable" {
		t.Fatalf("unexpected error message: %q", last.Content)
	}
	if chat.InFlight {
		t.Fatal("in-flight flag must clear after a failed exchange")
	}
	if publisher.count() != 0 {
		t.Fatal("failed exchanges must not be published")
	}

	// The session stays usable for the next send.
	client.sendErr = nil
	client.result = okResult()
	if _, err := svc.Send(context.Background(), chat.ID, model.GuestSession(), model.TierFree, "Again"); err != nil {
		t.Fatalf("follow-up send returned error: %v", err)
	}
}

func TestSendPublishesInteractionForAuthenticatedUser(t *testing.T) {
	client := &fakeOpenRouterClient{models: testCatalogModels, result: okResult()}
	publisher := newFakePublisher()
	svc := newTestChatService(t, client, publisher, 5)

	identity := model.AuthenticatedSession(model.Account{ID: "user-1", Email: "u@example.com"})
	chat, err := svc.CreateSession(context.Background(), identity, model.TierPremium)
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}

	if _, err := svc.Send(context.Background(), chat.ID, identity, model.TierPremium, "Hello"); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	select {
	case <-publisher.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for interaction publish")
	}

	var event model.Interaction
	if err := json.Unmarshal(publisher.published[0], &event); err != nil {
		t.Fatalf("invalid interaction payload: %v", err)
	}
	if event.UserID != "user-1" || event.Prompt != "Hello" || event.TokensUsed != 42 {
		t.Fatalf("unexpected interaction event: %+v", event)
	}
}

func TestSendDoesNotPublishForGuests(t *testing.T) {
	client := &fakeOpenRouterClient{models: testCatalogModels, result: okResult()}
	publisher := newFakePublisher()
	svc := newTestChatService(t, client, publisher, 5)

	chat, err := svc.CreateSession(context.Background(), model.GuestSession(), model.TierFree)
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}
	if _, err := svc.Send(context.Background(), chat.ID, model.GuestSession(), model.TierFree, "Hello"); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	select {
	case <-publisher.notify:
		t.Fatal("guest exchanges must not be published")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSendEmptyMessage(t *testing.T) {
	client := &fakeOpenRouterClient{models: testCatalogModels, result: okResult()}
	svc := newTestChatService(t, client, nil, 5)

	chat, err := svc.CreateSession(context.Background(), model.GuestSession(), model.TierFree)
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}

	if _, err := svc.Send(context.Background(), chat.ID, model.GuestSession(), model.TierFree, "   \n\t "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestSelectModelResetsTranscriptAndGuestCount(t *testing.T) {
	client := &fakeOpenRouterClient{models: testCatalogModels, result: okResult()}
	svc := newTestChatService(t, client, nil, 5)

	chat, err := svc.CreateSession(context.Background(), model.GuestSession(), model.TierFree)
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}
	if _, err := svc.Send(context.Background(), chat.ID, model.GuestSession(), model.TierFree, "Hello"); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	chat, err = svc.SelectModel(context.Background(), chat.ID, "google/gemma-7b:free", model.GuestSession(), model.TierFree)
	if err != nil {
		t.Fatalf("SelectModel returned error: %v", err)
	}

	if chat.SelectedModel == nil || chat.SelectedModel.ID != "google/gemma-7b:free" {
		t.Fatalf("expected new selection, got %v", chat.SelectedModel)
	}
	if len(chat.Messages) != 1 || chat.Messages[0].ID != model.WelcomeMessageID {
		t.Fatalf("expected transcript reset to a fresh welcome, got %v", chat.Messages)
	}
	if chat.GuestSent != 0 {
		t.Fatalf("expected guest counter reset, got %d", chat.GuestSent)
	}
}

func TestSelectModelRejections(t *testing.T) {
	client := &fakeOpenRouterClient{models: testCatalogModels, result: okResult()}
	svc := newTestChatService(t, client, nil, 5)

	chat, err := svc.CreateSession(context.Background(), model.GuestSession(), model.TierFree)
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}

	if _, err := svc.SelectModel(context.Background(), chat.ID, "missing/model", model.GuestSession(), model.TierFree); !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
	if _, err := svc.SelectModel(context.Background(), chat.ID, "openai/gpt-4o", model.GuestSession(), model.TierFree); !errors.Is(err, ErrModelNotAvailable) {
		t.Fatalf("expected ErrModelNotAvailable, got %v", err)
	}

	// The failed selections must not disturb the current one.
	got, err := svc.GetSession(context.Background(), chat.ID, model.GuestSession(), model.TierFree)
	if err != nil {
		t.Fatalf("GetSession returned error: %v", err)
	}
	if got.SelectedModel == nil || got.SelectedModel.ID != "meta-llama/llama-3-8b:free" {
		t.Fatalf("expected original selection intact, got %v", got.SelectedModel)
	}
}

func TestSignInRebindsSessionAndResetsGuestCount(t *testing.T) {
	client := &fakeOpenRouterClient{models: testCatalogModels, result: okResult()}
	svc := newTestChatService(t, client, nil, 5)

	chat, err := svc.CreateSession(context.Background(), model.GuestSession(), model.TierFree)
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}
	if _, err := svc.Send(context.Background(), chat.ID, model.GuestSession(), model.TierFree, "Hello"); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	identity := model.AuthenticatedSession(model.Account{ID: "user-1"})
	chat, err = svc.GetSession(context.Background(), chat.ID, identity, model.TierFree)
	if err != nil {
		t.Fatalf("GetSession returned error: %v", err)
	}

	if chat.Identity.IsGuest() || chat.Identity.UserID() != "user-1" {
		t.Fatalf("expected session rebound to user-1, got %+v", chat.Identity)
	}
	if chat.GuestSent != 0 {
		t.Fatalf("expected guest counter reset on sign-in, got %d", chat.GuestSent)
	}
	// The transcript survives the identity change.
	if len(chat.Messages) != 3 {
		t.Fatalf("expected transcript preserved across sign-in, got %d messages", len(chat.Messages))
	}
}

func TestSessionNotSharedBetweenAccounts(t *testing.T) {
	client := &fakeOpenRouterClient{models: testCatalogModels, result: okResult()}
	svc := newTestChatService(t, client, nil, 5)

	alice := model.AuthenticatedSession(model.Account{ID: "alice"})
	bob := model.AuthenticatedSession(model.Account{ID: "bob"})

	chat, err := svc.CreateSession(context.Background(), alice, model.TierFree)
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}

	if _, err := svc.GetSession(context.Background(), chat.ID, bob, model.TierFree); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := svc.DeleteSession(context.Background(), chat.ID, bob); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on delete, got %v", err)
	}
}

func TestAuthenticatedSessionRejectsGuestAccess(t *testing.T) {
	client := &fakeOpenRouterClient{models: testCatalogModels, result: okResult()}
	svc := newTestChatService(t, client, nil, 5)

	alice := model.AuthenticatedSession(model.Account{ID: "alice"})
	bob := model.AuthenticatedSession(model.Account{ID: "bob"})

	chat, err := svc.CreateSession(context.Background(), alice, model.TierFree)
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}
	if _, err := svc.Send(context.Background(), chat.ID, alice, model.TierFree, "my secret prompt"); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	// A tokenless access must not unbind the account: if it did, any other
	// account could re-bind the session and read alice's transcript.
	if _, err := svc.GetSession(context.Background(), chat.ID, model.GuestSession(), model.TierFree); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for guest access, got %v", err)
	}
	if _, err := svc.GetSession(context.Background(), chat.ID, bob, model.TierFree); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for bob after guest access, got %v", err)
	}
	if err := svc.DeleteSession(context.Background(), chat.ID, model.GuestSession()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for guest delete, got %v", err)
	}

	chat, err = svc.GetSession(context.Background(), chat.ID, alice, model.TierFree)
	if err != nil {
		t.Fatalf("GetSession returned error for the owner: %v", err)
	}
	if chat.Identity.UserID() != "alice" {
		t.Fatalf("expected session still bound to alice, got %+v", chat.Identity)
	}
}

func TestDowngradeReplacesUnentitledSelection(t *testing.T) {
	client := &fakeOpenRouterClient{models: testCatalogModels, result: okResult()}
	svc := newTestChatService(t, client, nil, 5)

	identity := model.AuthenticatedSession(model.Account{ID: "user-1"})
	chat, err := svc.CreateSession(context.Background(), identity, model.TierPremium)
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}
	chat, err = svc.SelectModel(context.Background(), chat.ID, "openai/gpt-4o", identity, model.TierPremium)
	if err != nil {
		t.Fatalf("SelectModel returned error: %v", err)
	}

	// Subscription lapsed: next access comes in on the free tier.
	chat, err = svc.GetSession(context.Background(), chat.ID, identity, model.TierFree)
	if err != nil {
		t.Fatalf("GetSession returned error: %v", err)
	}

	if chat.SelectedModel == nil {
		t.Fatal("expected a replacement selection")
	}
	if !IsEntitled(*chat.SelectedModel, model.TierFree) {
		t.Fatalf("replacement %s is not entitled on the free tier", chat.SelectedModel.ID)
	}
	if len(chat.Messages) != 1 || chat.Messages[0].ID != model.WelcomeMessageID {
		t.Fatal("replacement counts as a model change and must reset the transcript")
	}
}

func TestDeleteSession(t *testing.T) {
	client := &fakeOpenRouterClient{models: testCatalogModels, result: okResult()}
	svc := newTestChatService(t, client, nil, 5)

	chat, err := svc.CreateSession(context.Background(), model.GuestSession(), model.TierFree)
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}
	if err := svc.DeleteSession(context.Background(), chat.ID, model.GuestSession()); err != nil {
		t.Fatalf("DeleteSession returned error: %v", err)
	}
	if _, err := svc.GetSession(context.Background(), chat.ID, model.GuestSession(), model.TierFree); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
