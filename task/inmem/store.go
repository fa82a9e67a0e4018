// Package inmem provides an in-memory implementation of task.Store for
// tests and single-process deployments.
package inmem

import (
	"context"
	"sync"

	"github.com/stockbuddy/orchestrator/ident"
	"github.com/stockbuddy/orchestrator/task"
)

// Store is an in-memory, concurrency-safe implementation of task.Store.
type Store struct {
	mu   sync.RWMutex
	byID map[ident.TaskID]task.Task
}

// New returns an empty Store.
func New() *Store {
	return &Store{byID: make(map[ident.TaskID]task.Task)}
}

// Create implements task.Store.
func (s *Store) Create(_ context.Context, t task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Status == "" {
		t.Status = task.StatusPending
	}
	t.DependsOn = append([]ident.TaskID(nil), t.DependsOn...)
	t.RemoteTaskIDs = append([]string(nil), t.RemoteTaskIDs...)
	s.byID[t.ID] = t
	return nil
}

// Load implements task.Store.
func (s *Store) Load(_ context.Context, id ident.TaskID) (task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[id]
	if !ok {
		return task.Task{}, task.ErrNotFound
	}
	return cloneTask(t), nil
}

// SetStatus implements task.Store.
func (s *Store) SetStatus(_ context.Context, id ident.TaskID, status task.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return task.ErrNotFound
	}
	t.Status = status
	s.byID[id] = t
	return nil
}

// AppendRemoteTaskID implements task.Store.
func (s *Store) AppendRemoteTaskID(_ context.Context, id ident.TaskID, remoteTaskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return task.ErrNotFound
	}
	t.RemoteTaskIDs = append(t.RemoteTaskIDs, remoteTaskID)
	s.byID[id] = t
	return nil
}

// ListByConversation implements task.Store.
func (s *Store) ListByConversation(_ context.Context, conversationID ident.ConversationID) ([]task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []task.Task
	for _, t := range s.byID {
		if t.ConversationID == conversationID {
			out = append(out, cloneTask(t))
		}
	}
	sortByCreatedAt(out)
	return out, nil
}

func cloneTask(t task.Task) task.Task {
	t.DependsOn = append([]ident.TaskID(nil), t.DependsOn...)
	t.RemoteTaskIDs = append([]string(nil), t.RemoteTaskIDs...)
	return t
}

func sortByCreatedAt(tasks []task.Task) {
	for i := 1; i < len(tasks); i++ {
		for j := i; j > 0 && tasks[j].CreatedAt.Before(tasks[j-1].CreatedAt); j-- {
			tasks[j], tasks[j-1] = tasks[j-1], tasks[j]
		}
	}
}
