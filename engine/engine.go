package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/executor"
	"github.com/hupe1980/agentloop/hierarchy"
	"github.com/hupe1980/agentloop/internal/util"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/state"
)

var (
	// ErrTaskNotFound is returned by Resume for a task that was never persisted.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskExists is returned by Start when the task identifier is already
	// persisted. An interrupted task is continued with Resume, not restarted.
	ErrTaskExists = errors.New("task already exists")
)

// Status tags an Outcome as completed or failed. There is no third state:
// a task either produced its terminal payload or a typed failure.
type Status string

const (
	// StatusCompleted means the root frame returned a terminal payload.
	StatusCompleted Status = "completed"
	// StatusFailed means the task terminated with a typed failure.
	StatusFailed Status = "failed"
)

// Outcome is the terminal result of a Start or Resume call.
type Outcome struct {
	// TaskID identifies the task, derived from the input when not given.
	TaskID string
	// Status tags the outcome.
	Status Status
	// Payload is the terminal payload on completion. On failure it carries
	// the latest snapshot rendering as progress so far, possibly empty.
	Payload string
	// Reason is the typed failure cause, nil on completion.
	Reason error
	// FrameID references the frame whose fact history holds the trajectory
	// behind this outcome, including the partial one of a failure.
	FrameID string
}

// Completed reports whether the task reached its terminal payload.
func (o Outcome) Completed() bool { return o.Status == StatusCompleted }

// Options configures an Engine.
type Options struct {
	// Store is the durable task state backend. Defaults to in-memory.
	Store core.StateStore

	// Logger receives structured lifecycle logging. Defaults to no-op.
	Logger logging.Logger

	// WorkspaceRoot is the directory handed to tools for side effects.
	// Defaults to the current directory.
	WorkspaceRoot string

	// RootAgentName names the level-0 frame of every task.
	RootAgentName string

	// Hooks are lifecycle hooks fired around Start, Resume and task finish.
	Hooks []Hook
}

// Engine runs tasks through the executor and owns their persisted lifecycle.
// A single Engine serves any number of independent tasks; per-task state
// lives entirely in the TaskState keyed by task identifier.
type Engine struct {
	exec    *executor.Executor
	manager *hierarchy.Manager
	store   core.StateStore
	logger  logging.Logger
	hooks   *hookSet

	workspaceRoot string
	rootName      string
}

// New creates an Engine over an executor and the hierarchy manager the
// executor was built with.
func New(exec *executor.Executor, manager *hierarchy.Manager, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Store:         state.NewInMemoryStore(),
		Logger:        logging.NoOpLogger{},
		WorkspaceRoot: ".",
		RootAgentName: "root",
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Engine{
		exec:          exec,
		manager:       manager,
		store:         opts.Store,
		logger:        opts.Logger,
		hooks:         newHookSet(opts.Hooks),
		workspaceRoot: opts.WorkspaceRoot,
		rootName:      opts.RootAgentName,
	}
}

// Start creates and runs a new task. An empty taskID derives a deterministic
// identifier from the input, so restarting the same input maps onto the same
// persisted task.
func (en *Engine) Start(ctx context.Context, taskID, input string) Outcome {
	if taskID == "" {
		taskID = core.TaskKey(input)
	}

	if _, found, err := en.store.Load(ctx, taskID); err != nil {
		return en.failed(taskID, "", fmt.Errorf("load task %s: %w", taskID, err))
	} else if found {
		return en.failed(taskID, "", fmt.Errorf("task %s: %w", taskID, ErrTaskExists))
	}

	if err := en.hooks.fire(ctx, HookTaskStart, &HookContext{TaskID: taskID, Input: input}); err != nil {
		return en.failed(taskID, "", fmt.Errorf("task start hook: %w", err))
	}

	// The run ID correlates every log line of this invocation; distinct from
	// the deterministic task ID, which survives across resumes.
	en.logger.Info("engine.start", "task_id", taskID, "run_id", util.NewID())

	taskState := core.NewTaskState(taskID, input)
	frame := core.NewFrame(taskID, en.rootName, input, "", 0)
	rc := core.NewRunContext(
		ctx,
		taskID, en.workspaceRoot,
		frame,
		core.NewHistory(),
		core.NewActionCounter(en.exec.Interval(0)),
		taskState,
		en.store,
		en.logger,
	)

	if err := en.manager.PushRoot(rc); err != nil {
		return en.failed(taskID, frame.ID, err)
	}

	payload, err := en.exec.Run(rc)
	out := en.outcome(taskID, frame.ID, payload, err)
	en.finish(ctx, &out)
	return out
}

// Resume continues an interrupted task from its last persisted state. Frames
// on the restored stack run innermost first; each finished frame's result is
// recorded on its parent before the parent continues, matching the order an
// uninterrupted run would have produced.
func (en *Engine) Resume(ctx context.Context, taskID string) Outcome {
	taskState, found, err := en.store.Load(ctx, taskID)
	if err != nil {
		return en.failed(taskID, "", fmt.Errorf("load task %s: %w", taskID, err))
	}
	if !found {
		return en.failed(taskID, "", fmt.Errorf("task %s: %w", taskID, ErrTaskNotFound))
	}
	if err := taskState.Stack.Validate(); err != nil {
		return en.failed(taskID, "", fmt.Errorf("persisted stack for task %s is corrupt: %w", taskID, err))
	}

	if len(taskState.Stack) == 0 {
		return en.finishedOutcome(taskID, taskState)
	}

	if err := en.hooks.fire(ctx, HookTaskResume, &HookContext{TaskID: taskID, Input: taskState.RootInput}); err != nil {
		return en.failed(taskID, "", fmt.Errorf("task resume hook: %w", err))
	}

	en.logger.Info("engine.resume", "task_id", taskID, "run_id", util.NewID(), "stack_depth", len(taskState.Stack))

	var (
		payload string
		runErr  error
		child   *core.Frame
	)

	for len(taskState.Stack) > 0 {
		frame := taskState.Stack.Top()
		rc := en.restore(ctx, taskID, taskState, frame)

		if child != nil {
			if err := en.exec.RecordSpawnResult(rc, child, payload, runErr); err != nil {
				out := en.outcome(taskID, frame.ID, "", err)
				en.finish(ctx, &out)
				return out
			}
		}

		payload, runErr = en.exec.Run(rc)
		if runErr != nil && !isFrameFailure(runErr) {
			// Store failure or cancellation: the stack stays as last
			// persisted so a later Resume picks it back up.
			out := en.outcome(taskID, frame.ID, "", runErr)
			en.finish(ctx, &out)
			return out
		}

		child = frame
	}

	out := en.outcome(taskID, child.ID, payload, runErr)
	en.finish(ctx, &out)
	return out
}

// State returns the persisted task state for inspection.
func (en *Engine) State(ctx context.Context, taskID string) (*core.TaskState, error) {
	taskState, found, err := en.store.Load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrTaskNotFound)
	}
	return taskState, nil
}

// Delete removes all persisted state for the task.
func (en *Engine) Delete(ctx context.Context, taskID string) error {
	return en.store.Delete(ctx, taskID)
}

// restore rebuilds the run scope of a persisted frame: fact history as
// persisted, rendered history as snapshot rendering plus the fact tail, the
// action counter resumed at the recorded count.
func (en *Engine) restore(ctx context.Context, taskID string, taskState *core.TaskState, frame *core.Frame) *core.RunContext {
	fact := taskState.FactHistories[frame.ID]
	history := core.RestoreHistory(fact, taskState.RenderedHistory(frame.ID))
	counter := core.RestoreActionCounter(en.exec.Interval(frame.Level), len(fact))

	rc := core.NewRunContext(ctx, taskID, en.workspaceRoot, frame, history, counter, taskState, en.store, en.logger)
	if snap := taskState.Snapshots[frame.ID]; snap != nil {
		rc.Snapshot = snap.Clone()
	}
	return rc
}

// finishedOutcome maps an already-terminal persisted task (empty stack) onto
// the outcome its run produced, read from the root's index entry.
func (en *Engine) finishedOutcome(taskID string, taskState *core.TaskState) Outcome {
	for id, entry := range taskState.Index {
		if entry.Level != 0 {
			continue
		}
		if entry.Status == core.FrameCompleted {
			return Outcome{TaskID: taskID, Status: StatusCompleted, Payload: entry.Output, FrameID: id}
		}
		return Outcome{
			TaskID:  taskID,
			Status:  StatusFailed,
			Payload: entry.Output,
			Reason:  fmt.Errorf("task %s already terminated as %s", taskID, entry.Status),
			FrameID: id,
		}
	}
	return en.failed(taskID, "", fmt.Errorf("task %s has no root frame on record", taskID))
}

// outcome maps the executor's result onto a tagged Outcome.
func (en *Engine) outcome(taskID, frameID, payload string, err error) Outcome {
	if err == nil {
		return Outcome{TaskID: taskID, Status: StatusCompleted, Payload: payload, FrameID: frameID}
	}

	var frameErr *core.FrameError
	if errors.As(err, &frameErr) {
		return Outcome{
			TaskID:  taskID,
			Status:  StatusFailed,
			Payload: frameErr.Output,
			Reason:  err,
			FrameID: frameErr.FrameID,
		}
	}

	return Outcome{TaskID: taskID, Status: StatusFailed, Reason: err, FrameID: frameID}
}

func (en *Engine) failed(taskID, frameID string, err error) Outcome {
	return Outcome{TaskID: taskID, Status: StatusFailed, Reason: err, FrameID: frameID}
}

// finish logs the outcome and fires finish hooks. Hook errors at this point
// cannot change the outcome and are only logged.
func (en *Engine) finish(ctx context.Context, out *Outcome) {
	if out.Completed() {
		en.logger.Info("engine.finished", "task_id", out.TaskID, "status", string(out.Status))
	} else {
		en.logger.Warn("engine.finished", "task_id", out.TaskID, "status", string(out.Status), "reason", fmt.Sprint(out.Reason))
	}

	if err := en.hooks.fire(ctx, HookTaskFinish, &HookContext{TaskID: out.TaskID, Outcome: out}); err != nil {
		en.logger.Warn("engine.finish_hook_failed", "task_id", out.TaskID, "error", err.Error())
	}
}

func isFrameFailure(err error) bool {
	var frameErr *core.FrameError
	return errors.As(err, &frameErr)
}
