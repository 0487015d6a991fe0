package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/capability"
	"github.com/hupe1980/agentloop/consolidate"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/executor"
	"github.com/hupe1980/agentloop/hierarchy"
	"github.com/hupe1980/agentloop/internal/testutil"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/prompt"
	"github.com/hupe1980/agentloop/state"
	"github.com/hupe1980/agentloop/tool"
)

type noopConsolidator struct{}

func (noopConsolidator) Consolidate(ctx context.Context, in consolidate.Input) (*core.Snapshot, error) {
	upTo := 0
	if in.Previous != nil {
		upTo = in.Previous.UpToSeq
	}
	if n := len(in.Tail); n > 0 {
		upTo = in.Tail[n-1].Seq
	}
	return &core.Snapshot{NextSteps: "keep going", UpToSeq: upTo, Created: time.Now().UTC()}, nil
}

func newEngine(t *testing.T, planner model.Planner, store core.StateStore, tools []tool.Tool, optFns ...func(o *Options)) *Engine {
	t.Helper()

	manager := hierarchy.NewManager()
	exec := executor.New(
		planner,
		noopConsolidator{},
		capability.AllowAll(),
		tools,
		manager,
		prompt.NewBuilder(),
		func(o *executor.Options) { o.InitialConsolidation = false },
	)

	opts := append([]func(o *Options){func(o *Options) {
		o.Store = store
		o.WorkspaceRoot = t.TempDir()
	}}, optFns...)

	return New(exec, manager, opts...)
}

func echoTool() tool.Tool {
	return tool.NewFunctionTool(
		"echo",
		"Echo the message back",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{"type": "string"},
			},
		},
		func(ctx context.Context, root string, args map[string]any) (any, error) {
			return args["message"], nil
		},
	)
}

func final(result string) core.Action {
	return core.Action{Name: tool.FinalOutputName, Arguments: `{"result":"` + result + `"}`}
}

func TestStartCompletesTask(t *testing.T) {
	planner := model.NewMock().
		AddDecision(core.Action{Name: "echo", Arguments: `{"message":"hi"}`}).
		AddDecision(final("answer"))

	store := state.NewInMemoryStore()
	en := newEngine(t, planner, store, []tool.Tool{echoTool()})

	out := en.Start(context.Background(), "task-1", "say hi")
	require.True(t, out.Completed())
	assert.Equal(t, "answer", out.Payload)
	assert.Equal(t, "task-1", out.TaskID)
	assert.NoError(t, out.Reason)

	// Terminal state persisted: empty stack, completed root entry.
	persisted, err := en.State(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Len(t, persisted.Stack, 0)
	assert.Equal(t, core.FrameCompleted, persisted.Index[out.FrameID].Status)
}

func TestStartDerivesTaskIDFromInput(t *testing.T) {
	planner := model.NewMock().AddDecision(final("done"))
	en := newEngine(t, planner, state.NewInMemoryStore(), nil)

	out := en.Start(context.Background(), "", "summarize the report")
	require.True(t, out.Completed())
	assert.Equal(t, core.TaskKey("summarize the report"), out.TaskID)
}

func TestStartRejectsExistingTask(t *testing.T) {
	planner := model.NewMock().AddDecision(final("done"))
	store := state.NewInMemoryStore()
	en := newEngine(t, planner, store, nil)

	out := en.Start(context.Background(), "task-1", "work")
	require.True(t, out.Completed())

	again := en.Start(context.Background(), "task-1", "work")
	assert.Equal(t, StatusFailed, again.Status)
	assert.ErrorIs(t, again.Reason, ErrTaskExists)
}

func TestStartFailedTaskOutcome(t *testing.T) {
	planner := model.NewMock().
		AddError(&model.MalformedError{Detail: "1"}).
		AddError(&model.MalformedError{Detail: "2"}).
		AddError(&model.MalformedError{Detail: "3"}).
		AddError(&model.MalformedError{Detail: "4"})

	en := newEngine(t, planner, state.NewInMemoryStore(), nil)

	out := en.Start(context.Background(), "task-1", "work")
	assert.Equal(t, StatusFailed, out.Status)
	assert.True(t, model.IsMalformed(out.Reason))
	assert.NotEmpty(t, out.FrameID)
}

func TestResumeUnknownTask(t *testing.T) {
	en := newEngine(t, model.NewMock(), state.NewInMemoryStore(), nil)

	out := en.Resume(context.Background(), "nope")
	assert.Equal(t, StatusFailed, out.Status)
	assert.ErrorIs(t, out.Reason, ErrTaskNotFound)
}

func TestResumeFinishedTaskReportsRecordedOutcome(t *testing.T) {
	planner := model.NewMock().AddDecision(final("answer"))
	store := state.NewInMemoryStore()
	en := newEngine(t, planner, store, nil)

	first := en.Start(context.Background(), "task-1", "work")
	require.True(t, first.Completed())

	again := en.Resume(context.Background(), "task-1")
	assert.True(t, again.Completed())
	assert.Equal(t, "answer", again.Payload)
	assert.Equal(t, first.FrameID, again.FrameID)
}

func TestResumeAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	// A tool that trips cancellation mid-run. Its own record can no longer be
	// persisted, so like any crash the action after the last durable write
	// is lost and replayed on resume.
	trip := tool.NewFunctionTool(
		"trip",
		"Interrupt the run",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(ctx context.Context, root string, args map[string]any) (any, error) {
			cancel()
			return "tripped", nil
		},
	)

	planner := model.NewMock().
		AddDecision(core.Action{Name: "trip", Arguments: `{}`}).
		AddDecision(final("resumed and done"))

	store := state.NewInMemoryStore()
	en := newEngine(t, planner, store, []tool.Tool{trip})

	interrupted := en.Start(ctx, "task-1", "long work")
	require.Equal(t, StatusFailed, interrupted.Status)
	assert.ErrorIs(t, interrupted.Reason, context.Canceled)

	// The frame stayed on the persisted stack at its last durable point.
	persisted, err := en.State(context.Background(), "task-1")
	require.NoError(t, err)
	require.Len(t, persisted.Stack, 1)
	assert.Len(t, persisted.FactHistories[persisted.Stack.Top().ID], 0)

	out := en.Resume(context.Background(), "task-1")
	require.True(t, out.Completed())
	assert.Equal(t, "resumed and done", out.Payload)

	fact := mustState(t, en, "task-1").FactHistories[out.FrameID]
	require.Len(t, fact, 1)
	assert.Equal(t, tool.FinalOutputName, fact[0].Name)
	assert.Equal(t, 1, fact[0].Seq)
}

func TestResumeNestedStackRunsInnermostFirst(t *testing.T) {
	taskID := "task-n"
	store := state.NewInMemoryStore()

	// Persisted mid-task state: the root spawned a researcher child and the
	// process died while the child was on top.
	builder := testutil.NewStateBuilder(taskID, "root work").
		Root("root").
		Child("researcher", "dig").
		Facts("root", testutil.NewRecordBuilder(1).Args(`{"message":"before"}`).Result("before").Build())
	require.NoError(t, store.Persist(context.Background(), taskID, builder.Build()))
	rootID := builder.FrameID("root")
	childID := builder.FrameID("researcher")

	planner := model.NewMock().
		AddDecision(final("X")).            // child's remaining turn
		AddDecision(final("root finished")) // root continues after the child

	en := newEngine(t, planner, store, []tool.Tool{echoTool()})

	out := en.Resume(context.Background(), taskID)
	require.True(t, out.Completed())
	assert.Equal(t, "root finished", out.Payload)
	assert.Equal(t, rootID, out.FrameID)

	persisted := mustState(t, en, taskID)
	assert.Len(t, persisted.Stack, 0)
	assert.Equal(t, core.FrameCompleted, persisted.Index[childID].Status)
	assert.Equal(t, "X", persisted.Index[childID].Output)

	// The child's payload was recorded on the root exactly as an inline
	// spawn would have: after the pre-crash record, before the terminal.
	rootFact := persisted.FactHistories[rootID]
	require.Len(t, rootFact, 3)
	assert.Equal(t, "echo", rootFact[0].Name)
	assert.Equal(t, tool.SpawnAgentName, rootFact[1].Name)
	assert.Equal(t, "X", rootFact[1].Result)
	assert.Equal(t, tool.FinalOutputName, rootFact[2].Name)
}

func TestResumeRecordsFailedChildOnParent(t *testing.T) {
	taskID := "task-f"
	store := state.NewInMemoryStore()

	builder := testutil.NewStateBuilder(taskID, "root work").
		Root("root").
		Child("worker", "grind")
	require.NoError(t, store.Persist(context.Background(), taskID, builder.Build()))

	planner := model.NewMock().
		// Child exhausts its repair budget and fails.
		AddError(&model.MalformedError{Detail: "1"}).
		AddError(&model.MalformedError{Detail: "2"}).
		AddError(&model.MalformedError{Detail: "3"}).
		AddError(&model.MalformedError{Detail: "4"}).
		// Root sees the failure record and completes anyway.
		AddDecision(final("recovered"))

	en := newEngine(t, planner, store, nil)

	out := en.Resume(context.Background(), taskID)
	require.True(t, out.Completed())
	assert.Equal(t, "recovered", out.Payload)

	persisted := mustState(t, en, taskID)
	assert.Equal(t, core.FrameFailed, persisted.Index[builder.FrameID("worker")].Status)

	rootFact := persisted.FactHistories[builder.FrameID("root")]
	require.Len(t, rootFact, 2)
	assert.Equal(t, tool.SpawnAgentName, rootFact[0].Name)
	assert.NotEmpty(t, rootFact[0].Error)
}

func TestStartHookAbortsTask(t *testing.T) {
	planner := model.NewMock().AddDecision(final("never"))

	abort := NewFunctionHook(HookTaskStart, func(ctx context.Context, hc *HookContext) error {
		return context.DeadlineExceeded
	})

	en := newEngine(t, planner, state.NewInMemoryStore(), nil, func(o *Options) {
		o.Hooks = []Hook{abort}
	})

	out := en.Start(context.Background(), "task-1", "work")
	assert.Equal(t, StatusFailed, out.Status)
	assert.ErrorIs(t, out.Reason, context.DeadlineExceeded)
	assert.Equal(t, 0, planner.Calls())
}

func TestFinishHookSeesOutcome(t *testing.T) {
	planner := model.NewMock().AddDecision(final("done"))

	var seen *Outcome
	observe := NewFunctionHook(HookTaskFinish, func(ctx context.Context, hc *HookContext) error {
		seen = hc.Outcome
		return nil
	})

	en := newEngine(t, planner, state.NewInMemoryStore(), nil, func(o *Options) {
		o.Hooks = []Hook{observe}
	})

	out := en.Start(context.Background(), "task-1", "work")
	require.True(t, out.Completed())
	require.NotNil(t, seen)
	assert.Equal(t, "done", seen.Payload)
}

func mustState(t *testing.T, en *Engine, taskID string) *core.TaskState {
	t.Helper()
	st, err := en.State(context.Background(), taskID)
	require.NoError(t, err)
	return st
}
