package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

type mapStore struct {
	tasks   map[string]*TaskState
	failing bool
}

func newMapStore() *mapStore { return &mapStore{tasks: map[string]*TaskState{}} }

func (s *mapStore) Persist(ctx context.Context, taskID string, state *TaskState) error {
	if s.failing {
		return errors.New("disk full")
	}
	s.tasks[taskID] = state
	return nil
}

func (s *mapStore) Load(ctx context.Context, taskID string) (*TaskState, bool, error) {
	state, ok := s.tasks[taskID]
	return state, ok, nil
}

func (s *mapStore) Delete(ctx context.Context, taskID string) error {
	delete(s.tasks, taskID)
	return nil
}

func newTestRunContext(store StateStore) *RunContext {
	frame := NewFrame("task-1", "root", "do it", "", 0)
	state := NewTaskState("task-1", "do it")
	state.Stack = Stack{frame}
	return NewRunContext(context.Background(), "task-1", "/tmp", frame, NewHistory(), NewActionCounter(10), state, store, nil)
}

func TestRunContextPersistSyncsFactHistory(t *testing.T) {
	store := newMapStore()
	rc := newTestRunContext(store)

	rc.History.Append(NewActionRecord(rc.History.NextSeq(), Action{Name: "echo"}, "hi"))
	if err := rc.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	persisted := store.tasks["task-1"]
	if persisted == nil {
		t.Fatal("nothing persisted")
	}
	if got := len(persisted.FactHistories[rc.Frame.ID]); got != 1 {
		t.Fatalf("persisted fact history length = %d, want 1", got)
	}

	// The persisted state is a clone: later in-memory mutation must not
	// leak into it.
	rc.History.Append(NewActionRecord(rc.History.NextSeq(), Action{Name: "echo"}, "again"))
	if got := len(persisted.FactHistories[rc.Frame.ID]); got != 1 {
		t.Fatalf("persisted clone mutated, fact length = %d", got)
	}
}

func TestRunContextPersistWrapsStoreError(t *testing.T) {
	store := newMapStore()
	store.failing = true
	rc := newTestRunContext(store)

	err := rc.Persist()
	var storeErr *StateStoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("error %v is not a StateStoreError", err)
	}
	if storeErr.Op != "persist" || storeErr.TaskID != "task-1" {
		t.Fatalf("unexpected store error fields: %+v", storeErr)
	}
}

func TestRunContextSetSnapshotMirrorsIntoState(t *testing.T) {
	rc := newTestRunContext(newMapStore())

	snap := &Snapshot{NextSteps: "carry on", UpToSeq: 3, Created: time.Now().UTC()}
	rc.SetSnapshot(snap)

	stored := rc.State.Snapshots[rc.Frame.ID]
	if stored == nil || stored.UpToSeq != 3 {
		t.Fatalf("snapshot not mirrored into state: %+v", stored)
	}

	// Mirrored copy is independent of the live snapshot.
	snap.NextSteps = "changed"
	if stored.NextSteps != "carry on" {
		t.Fatal("state snapshot aliased the live snapshot")
	}
}

func TestNewChildContextSharesStateNotHistory(t *testing.T) {
	rc := newTestRunContext(newMapStore())
	rc.History.Append(NewActionRecord(rc.History.NextSeq(), Action{Name: "echo"}, "parent"))

	child := NewFrame("task-1", "worker", "dig", rc.Frame.ID, 1)
	childRC := rc.NewChildContext(child, 5)

	if childRC.State != rc.State {
		t.Fatal("child must share the task state")
	}
	if childRC.History == rc.History {
		t.Fatal("child must get its own history")
	}
	if got := childRC.History.FactLen(); got != 0 {
		t.Fatalf("child history starts with %d records, want 0", got)
	}
	if got := childRC.Counter.Count(); got != 0 {
		t.Fatalf("child counter starts at %d, want 0", got)
	}
}
