package store

import (
	"errors"
	"sync"
	"time"

	"tapachat/internal/model"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("chat session not found")

// ChatStore holds live chat sessions in memory. Transcripts and guest quota
// counters share the lifetime of the process; nothing here is persisted.
type ChatStore struct {
	mu           sync.RWMutex
	sessionsByID map[string]*model.ChatSession
}

func New() *ChatStore {
	return &ChatStore{
		sessionsByID: make(map[string]*model.ChatSession),
	}
}

// Create registers a new session owned by the given identity and returns a
// snapshot of it.
func (s *ChatStore) Create(identity model.Session, tier model.Tier) model.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	sess := &model.ChatSession{
		ID:        uuid.NewString(),
		Identity:  identity,
		Tier:      tier,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessionsByID[sess.ID] = sess
	return cloneSession(sess)
}

// Get returns a snapshot of the session.
func (s *ChatStore) Get(id string) (model.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessionsByID[id]
	if !ok {
		return model.ChatSession{}, ErrSessionNotFound
	}
	return cloneSession(sess), nil
}

// Mutate applies fn to the session under the store lock and returns the
// resulting snapshot. If fn returns an error the mutation is still whatever
// fn left behind; callers use the error to abort handler flow, not to roll
// back.
func (s *ChatStore) Mutate(id string, fn func(*model.ChatSession) error) (model.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessionsByID[id]
	if !ok {
		return model.ChatSession{}, ErrSessionNotFound
	}
	err := fn(sess)
	sess.UpdatedAt = time.Now()
	return cloneSession(sess), err
}

// Delete removes a session. Reports whether it existed.
func (s *ChatStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessionsByID[id]
	delete(s.sessionsByID, id)
	return ok
}

func cloneSession(sess *model.ChatSession) model.ChatSession {
	out := *sess
	out.Messages = make([]model.ChatMessage, len(sess.Messages))
	copy(out.Messages, sess.Messages)
	if sess.SelectedModel != nil {
		m := *sess.SelectedModel
		out.SelectedModel = &m
	}
	return out
}
