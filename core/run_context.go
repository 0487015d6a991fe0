package core

import (
	"context"

	"github.com/hupe1980/agentloop/logging"
)

// RunContext carries the execution scope of one frame. It aggregates:
//
//   - The ambient cancellation Context
//   - Identifiers (TaskID, the owning Frame)
//   - The frame's dual-track History and action counter
//   - The shared TaskState plus the StateStore persisting it
//   - The workspace root handed to tool collaborators
//
// Within one task only the top-of-stack frame holds a live RunContext, so the
// shared TaskState is single-writer by construction. Child frames receive a
// derived context via NewChildContext with fresh history and counter but the
// same task-wide state and store.
type RunContext struct {
	Context       context.Context
	TaskID        string
	WorkspaceRoot string
	Frame         *Frame
	History       *History
	Counter       *ActionCounter
	Snapshot      *Snapshot
	State         *TaskState
	Store         StateStore

	*loggerAdapter
}

// NewRunContext constructs a run scope for a frame.
func NewRunContext(
	ctx context.Context,
	taskID, workspaceRoot string,
	frame *Frame,
	history *History,
	counter *ActionCounter,
	state *TaskState,
	store StateStore,
	logger logging.Logger,
) *RunContext {
	return &RunContext{
		Context:       ctx,
		TaskID:        taskID,
		WorkspaceRoot: workspaceRoot,
		Frame:         frame,
		History:       history,
		Counter:       counter,
		State:         state,
		Store:         store,
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// Done mirrors context.Context's Done.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// SetSnapshot installs the latest consolidation snapshot for this frame. The
// snapshot becomes part of the persisted state on the next Persist call.
func (rc *RunContext) SetSnapshot(s *Snapshot) {
	rc.Snapshot = s
	rc.State.Snapshots[rc.Frame.ID] = s.Clone()
}

// Persist syncs this frame's fact history into the shared task state and
// durably writes a clone of it. Every observable mutation of the stack,
// index or histories must be followed by a Persist before control returns
// to the caller.
func (rc *RunContext) Persist() error {
	rc.State.FactHistories[rc.Frame.ID] = rc.History.Fact()
	if err := rc.Store.Persist(rc.Context, rc.TaskID, rc.State.Clone()); err != nil {
		return NewStateStoreError("persist", rc.TaskID, err)
	}
	return nil
}

// NewChildContext derives the run scope for a spawned child frame: fresh
// history and counter, shared task state, store, workspace and logger.
func (rc *RunContext) NewChildContext(frame *Frame, interval int) *RunContext {
	return &RunContext{
		Context:       rc.Context,
		TaskID:        rc.TaskID,
		WorkspaceRoot: rc.WorkspaceRoot,
		Frame:         frame,
		History:       NewHistory(),
		Counter:       NewActionCounter(interval),
		State:         rc.State,
		Store:         rc.Store,
		loggerAdapter: rc.loggerAdapter,
	}
}
