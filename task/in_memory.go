package task

import (
	"context"
	"sync"

	"github.com/agentharness/agentharness/a2a"
)

// InMemoryStore is a volatile Store implementation keeping tasks in a
// process local map. It is safe for concurrent access and best suited for
// tests or ephemeral demo servers. Tasks are cloned on save and retrieval to
// prevent external mutation of internal state.
type InMemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*a2a.Task
}

// NewInMemoryStore constructs an empty in-memory task store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{tasks: make(map[string]*a2a.Task)}
}

// Save stores a clone of the provided task snapshot.
func (s *InMemoryStore) Save(_ context.Context, task *a2a.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task.Clone()
	return nil
}

// Get returns a clone of the stored task or ErrNotFound.
func (s *InMemoryStore) Get(_ context.Context, taskID string) (*a2a.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	return task.Clone(), nil
}
