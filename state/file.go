package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/hupe1980/agentloop/core"
)

// fileNamePattern restricts task IDs usable as file names. Anything outside
// it is rejected rather than escaped, keeping the directory listing legible.
var fileNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// FileStore is a StateStore writing one JSON document per task under a base
// directory. Persist writes to a temp file in the same directory and renames
// it over the target, so a crash mid-write leaves either the previous
// complete document or the new one, never a truncated mix.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

var _ core.StateStore = (*FileStore)(nil)

// NewFileStore creates the base directory if needed and returns the store.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Persist atomically replaces the stored document for the task.
func (s *FileStore) Persist(ctx context.Context, taskID string, state *core.TaskState) error {
	if err := ctx.Err(); err != nil {
		return core.NewStateStoreError("persist", taskID, err)
	}
	path, err := s.path(taskID)
	if err != nil {
		return core.NewStateStoreError("persist", taskID, err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return core.NewStateStoreError("persist", taskID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, taskID+".*.tmp")
	if err != nil {
		return core.NewStateStoreError("persist", taskID, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return core.NewStateStoreError("persist", taskID, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return core.NewStateStoreError("persist", taskID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return core.NewStateStoreError("persist", taskID, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return core.NewStateStoreError("persist", taskID, err)
	}
	return nil
}

// Load reads and decodes the stored document, or returns found false when
// the task has never been persisted.
func (s *FileStore) Load(ctx context.Context, taskID string) (*core.TaskState, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, core.NewStateStoreError("load", taskID, err)
	}
	path, err := s.path(taskID)
	if err != nil {
		return nil, false, core.NewStateStoreError("load", taskID, err)
	}

	s.mu.Lock()
	data, err := os.ReadFile(path)
	s.mu.Unlock()
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, core.NewStateStoreError("load", taskID, err)
	}

	var state core.TaskState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, false, core.NewStateStoreError("load", taskID, err)
	}
	return &state, true, nil
}

// Delete removes the stored document. Deleting an unknown task is a no-op.
func (s *FileStore) Delete(ctx context.Context, taskID string) error {
	if err := ctx.Err(); err != nil {
		return core.NewStateStoreError("delete", taskID, err)
	}
	path, err := s.path(taskID)
	if err != nil {
		return core.NewStateStoreError("delete", taskID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return core.NewStateStoreError("delete", taskID, err)
	}
	return nil
}

func (s *FileStore) path(taskID string) (string, error) {
	if !fileNamePattern.MatchString(taskID) {
		return "", fmt.Errorf("task id %q is not a valid file name", taskID)
	}
	return filepath.Join(s.dir, taskID+".json"), nil
}
