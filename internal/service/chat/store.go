package chat

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/roundtable/backend/internal/model/chat"
)

var (
	ErrParticipantsRequired = errors.New("at least one participant is required")
	ErrSessionNotFound      = errors.New("session not found")
	ErrEmptyContent         = errors.New("message content is empty")
)

// Persister is the slice of the storage layer the session store needs.
// A nil Persister keeps the store purely in-memory.
type Persister interface {
	SaveSession(ctx context.Context, session chat.Session) error
	SaveMessage(ctx context.Context, message chat.Message) error
	DeleteSession(ctx context.Context, sessionID string) error
	LoadSessions(ctx context.Context) ([]chat.Session, error)
	ResetAll(ctx context.Context) error
}

// Store owns every chat session. One mutex serializes all mutation, so
// concurrent appends to the same session never interleave and readers always
// observe messages in exact append order.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*chat.Session
	persist  Persister
}

// NewStore bootstraps an empty session store.
func NewStore(persist Persister) *Store {
	return &Store{
		sessions: make(map[string]*chat.Session),
		persist:  persist,
	}
}

// Load restores persisted sessions. Call once at startup, before serving.
func (s *Store) Load(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}

	sessions, err := s.persist.LoadSessions(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range sessions {
		sess := sessions[i]
		s.sessions[sess.ID] = &sess
	}
	log.Printf("[chat] restored %d session(s)", len(sessions))
	return nil
}

// CreateSession provisions a new session. LastMessageAt starts at creation
// time and tracks the final message from then on.
func (s *Store) CreateSession(ctx context.Context, name string, participantIDs []string, isGroup bool) (chat.Session, error) {
	if len(participantIDs) == 0 {
		return chat.Session{}, ErrParticipantsRequired
	}

	now := time.Now().UTC()
	session := chat.Session{
		ID:             uuid.NewString(),
		Name:           name,
		IsGroup:        isGroup,
		ParticipantIDs: append([]string(nil), participantIDs...),
		Messages:       make([]chat.Message, 0, 16),
		CreatedAt:      now,
		LastMessageAt:  now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.persist != nil {
		if err := s.persist.SaveSession(ctx, session); err != nil {
			return chat.Session{}, err
		}
	}
	stored := session.Clone()
	s.sessions[session.ID] = &stored
	return session, nil
}

// AppendMessage adds a message to the session log, assigns its identity and
// timestamp, and recomputes LastMessageAt. Returns the stored message.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, message chat.Message) (chat.Message, error) {
	if message.Content == "" {
		return chat.Message{}, ErrEmptyContent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Message{}, ErrSessionNotFound
	}

	message.ID = uuid.NewString()
	message.SessionID = sessionID
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	if s.persist != nil {
		if err := s.persist.SaveMessage(ctx, message); err != nil {
			return chat.Message{}, err
		}
	}

	session.Messages = append(session.Messages, message)
	session.LastMessageAt = message.CreatedAt
	return message, nil
}

// GetSession retrieves a deep copy of a session.
func (s *Store) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session.Clone(), nil
}

// ListSessions returns copies of every session, most recently active first.
func (s *Store) ListSessions(_ context.Context) []chat.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chat.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].LastMessageAt.After(out[j].LastMessageAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// DeleteSession removes a session and its log.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	if s.persist != nil {
		if err := s.persist.DeleteSession(ctx, sessionID); err != nil {
			return err
		}
	}
	delete(s.sessions, sessionID)
	return nil
}

// Reset drops every session, in memory and on disk.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.persist != nil {
		if err := s.persist.ResetAll(ctx); err != nil {
			return err
		}
	}
	s.sessions = make(map[string]*chat.Session)
	return nil
}
