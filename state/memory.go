package state

import (
	"context"
	"sync"

	"github.com/hupe1980/agentloop/core"
)

// InMemoryStore is a volatile StateStore implementation keeping task state
// in a process local map. It is safe for concurrent access and best suited
// for tests or ephemeral runs. Stored and returned states are cloned to
// prevent external mutation of internal state.
type InMemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*core.TaskState
}

var _ core.StateStore = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory state store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{tasks: make(map[string]*core.TaskState)}
}

// Persist stores a clone of the given task state.
func (s *InMemoryStore) Persist(ctx context.Context, taskID string, state *core.TaskState) error {
	if err := ctx.Err(); err != nil {
		return core.NewStateStoreError("persist", taskID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[taskID] = state.Clone()
	return nil
}

// Load returns a clone of the stored task state, or found false when the
// task is unknown.
func (s *InMemoryStore) Load(ctx context.Context, taskID string) (*core.TaskState, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, core.NewStateStoreError("load", taskID, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.tasks[taskID]
	if !ok {
		return nil, false, nil
	}
	return state.Clone(), true, nil
}

// Delete removes the stored state for the task. Deleting an unknown task is
// a no-op.
func (s *InMemoryStore) Delete(ctx context.Context, taskID string) error {
	if err := ctx.Err(); err != nil {
		return core.NewStateStoreError("delete", taskID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, taskID)
	return nil
}
