// Package inmem provides an in-memory implementation of conversation.Store
// for tests and single-process deployments that don't need the sqlite
// backend.
package inmem

import (
	"context"
	"sync"

	"github.com/stockbuddy/orchestrator/conversation"
	"github.com/stockbuddy/orchestrator/ident"
)

// Store is an in-memory implementation of conversation.Store, safe for
// concurrent use.
type Store struct {
	mu   sync.RWMutex
	byID map[ident.ConversationID]conversation.Conversation
}

// New returns an empty Store.
func New() *Store {
	return &Store{byID: make(map[ident.ConversationID]conversation.Conversation)}
}

// Create implements conversation.Store.
func (s *Store) Create(_ context.Context, c conversation.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[c.ID]; ok {
		return conversation.ErrAlreadyExists
	}
	if c.Status == "" {
		c.Status = conversation.StatusActive
	}
	s.byID[c.ID] = c
	return nil
}

// Load implements conversation.Store.
func (s *Store) Load(_ context.Context, id ident.ConversationID) (conversation.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return conversation.Conversation{}, conversation.ErrNotFound
	}
	return c, nil
}

// SetStatus implements conversation.Store.
func (s *Store) SetStatus(_ context.Context, id ident.ConversationID, status conversation.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return conversation.ErrNotFound
	}
	c.Status = status
	s.byID[id] = c
	return nil
}

// SetTitleOnce implements conversation.Store. Title assignment happens at
// most once, guarded by the same lock used for all other mutations so a
// concurrent cancel-endpoint read never observes a half-written title.
func (s *Store) SetTitleOnce(_ context.Context, id ident.ConversationID, title string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return "", conversation.ErrNotFound
	}
	if c.Title == "" && title != "" {
		c.Title = title
		s.byID[id] = c
	}
	return c.Title, nil
}
