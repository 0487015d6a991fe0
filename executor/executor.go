// Package executor implements the per-frame turn loop: build the prompt,
// obtain a decision, execute the actions in order, consolidate at interval
// multiples and stop on the terminal action, the turn budget or a fatal
// error. Spawn actions recurse synchronously through the same executor, so a
// parent frame blocks until its child returns.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hupe1980/agentloop/capability"
	"github.com/hupe1980/agentloop/consolidate"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/dispatch"
	"github.com/hupe1980/agentloop/hierarchy"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/prompt"
	"github.com/hupe1980/agentloop/tool"
)

const (
	// DefaultMaxTurns bounds decision cycles per frame.
	DefaultMaxTurns = 50
	// DefaultConsolidationInterval triggers a consolidation every N executed
	// actions.
	DefaultConsolidationInterval = 10
	// DefaultRepairRetries is how many consecutive malformed planner replies
	// are repaired before the frame fails.
	DefaultRepairRetries = 3
)

// DefaultInstructions is the static system text used for agents without a
// dedicated entry in InstructionsByName.
const DefaultInstructions = `You are {{.AgentName}}, an autonomous agent working on one task.
Work step by step. Use the provided functions for every action. When the task
is complete, call final_output exactly once with the result.`

// Options configures an Executor.
type Options struct {
	MaxTurns              int
	ConsolidationInterval int
	// IntervalByLevel overrides the consolidation interval for specific
	// hierarchy levels.
	IntervalByLevel map[int]int
	RepairRetries   int
	// InitialConsolidation runs a planning consolidation before the first
	// turn of every frame, seeding the todo list from the bare input.
	InitialConsolidation bool
	// Instructions is the default static system text; it may use template
	// markers for AgentName, Level and Input.
	Instructions string
	// InstructionsByName overrides Instructions per agent name.
	InstructionsByName map[string]string
}

// Executor drives frames to a terminal state. One Executor serves a whole
// task tree: child frames run through the same instance via spawn actions.
type Executor struct {
	planner      model.Planner
	consolidator consolidate.Consolidator
	dispatcher   *dispatch.Dispatcher
	builder      *prompt.Builder
	hierarchy    *hierarchy.Manager
	opts         Options
}

// New wires an executor over its collaborators. The dispatcher is built
// internally so spawn actions can recurse back into this executor.
func New(
	planner model.Planner,
	consolidator consolidate.Consolidator,
	table *capability.Table,
	tools []tool.Tool,
	manager *hierarchy.Manager,
	builder *prompt.Builder,
	optFns ...func(o *Options),
) *Executor {
	opts := Options{
		MaxTurns:              DefaultMaxTurns,
		ConsolidationInterval: DefaultConsolidationInterval,
		RepairRetries:         DefaultRepairRetries,
		InitialConsolidation:  true,
		Instructions:          DefaultInstructions,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	e := &Executor{
		planner:      planner,
		consolidator: consolidator,
		builder:      builder,
		hierarchy:    manager,
		opts:         opts,
	}
	e.dispatcher = dispatch.NewDispatcher(table, e.spawn, tools)

	return e
}

// Interval returns the consolidation interval for a hierarchy level.
func (e *Executor) Interval(level int) int {
	if iv, ok := e.opts.IntervalByLevel[level]; ok {
		return iv
	}
	return e.opts.ConsolidationInterval
}

// Run executes the frame owned by rc until it completes or fails. The frame
// must already be on the stack; Run pops it with a finalized status before
// returning. The returned string is the terminal payload; a non-nil error is
// a *core.FrameError for typed frame failures or the raw error for
// task-fatal conditions (state store I/O, cancellation).
func (e *Executor) Run(rc *core.RunContext) (string, error) {
	frame := rc.Frame

	rc.LogInfo("executor.start", "frame_id", frame.ID, "level", frame.Level)

	if e.opts.InitialConsolidation && rc.Snapshot == nil && rc.History.FactLen() == 0 {
		if err := e.consolidate(rc); err != nil {
			return e.fail(rc, err)
		}
	}

	for turn := 1; turn <= e.opts.MaxTurns; turn++ {
		// Cancellation is cooperative: checked here, never mid-action.
		if err := rc.Err(); err != nil {
			return e.fail(rc, err)
		}

		actions, err := e.decide(rc)
		if err != nil {
			return e.fail(rc, err)
		}

		payload, done, err := e.executeBatch(rc, actions)
		if err != nil {
			return e.fail(rc, err)
		}
		if done {
			rc.LogInfo("executor.completed", "frame_id", frame.ID, "turns", turn)
			if _, err := e.hierarchy.Pop(rc, core.FrameCompleted, payload); err != nil {
				return "", err
			}
			return payload, nil
		}
	}

	return e.fail(rc, fmt.Errorf("no terminal action after %d turns: %w", e.opts.MaxTurns, core.ErrTurnBudgetExceeded))
}

// decide obtains a non-empty action list, repairing malformed replies up to
// the configured bound. Attempt counting follows the repair contract: with
// RepairRetries = 3, two malformed replies followed by a valid one proceed,
// a fourth consecutive malformed reply fails the frame.
func (e *Executor) decide(rc *core.RunContext) ([]core.Action, error) {
	req, dropped, err := e.buildRequest(rc)
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		// Keep the live rendered track in step with the capped view so the
		// next turn does not re-render the same dropped entries.
		rc.History.TrimRenderedOldest(dropped)
		rc.LogDebug("executor.rendered_capped", "frame_id", rc.Frame.ID, "dropped", dropped)
	}

	var lastErr error
	for attempt := 0; attempt <= e.opts.RepairRetries; attempt++ {
		actions, err := e.planner.Decide(rc.Context, req)
		if err == nil && len(actions) > 0 {
			return actions, nil
		}
		if err == nil {
			err = &model.MalformedError{Detail: "planner returned an empty action list"}
		}
		if !model.IsMalformed(err) {
			return nil, err
		}
		lastErr = err
		rc.LogWarn("executor.malformed_decision", "frame_id", rc.Frame.ID, "attempt", attempt+1, "error", err.Error())
	}

	return nil, fmt.Errorf("%d consecutive malformed decisions: %w: %w", e.opts.RepairRetries+1, core.ErrMalformedOutput, lastErr)
}

// buildRequest assembles the planner request for the current turn.
func (e *Executor) buildRequest(rc *core.RunContext) (model.Request, int, error) {
	frame := rc.Frame

	instructions := e.opts.Instructions
	if txt, ok := e.opts.InstructionsByName[frame.Name]; ok {
		instructions = txt
	}

	return e.builder.Build(prompt.Input{
		Frame:           frame,
		Instructions:    instructions,
		Snapshot:        rc.Snapshot,
		Rendered:        rc.History.Rendered(),
		HierarchyStatus: e.hierarchy.StatusContext(rc.State),
		Actions:         e.dispatcher.Schemas(frame.Level, frame.Name),
	})
}

// executeBatch runs the actions of one decision in order. It returns the
// terminal payload with done=true when final_output was reached; remaining
// actions after a terminal are not executed.
func (e *Executor) executeBatch(rc *core.RunContext, actions []core.Action) (string, bool, error) {
	for _, action := range actions {
		if action.Name == tool.FinalOutputName {
			payload, err := finalPayload(action)
			if err != nil {
				rec := core.NewErrorRecord(rc.History.NextSeq(), action, err)
				rc.History.Append(rec)
				if perr := rc.Persist(); perr != nil {
					return "", false, perr
				}
				continue
			}
			rec := core.NewActionRecord(rc.History.NextSeq(), action, payload)
			rc.History.Append(rec)
			if err := rc.Persist(); err != nil {
				return "", false, err
			}
			return payload, true, nil
		}

		record, err := e.dispatcher.Dispatch(rc, action)
		if err != nil {
			if record.Seq != 0 {
				rc.History.Append(record)
				if perr := rc.Persist(); perr != nil {
					return "", false, perr
				}
			}
			return "", false, err
		}

		rc.History.Append(record)

		_, due := rc.Counter.Increment()
		if err := rc.Persist(); err != nil {
			return "", false, err
		}

		if due {
			if err := e.consolidate(rc); err != nil {
				return "", false, err
			}
		}
	}

	return "", false, nil
}

// consolidate produces a fresh snapshot, resets the rendered track to exactly
// its rendering and persists. Only cancellation or a store failure can error.
func (e *Executor) consolidate(rc *core.RunContext) error {
	upTo := 0
	if rc.Snapshot != nil {
		upTo = rc.Snapshot.UpToSeq
	}

	snapshot, err := e.consolidator.Consolidate(rc.Context, consolidate.Input{
		Frame:    rc.Frame,
		Previous: rc.Snapshot,
		Tail:     rc.History.FactTail(upTo),
	})
	if err != nil {
		return err
	}

	rc.SetSnapshot(snapshot)
	rc.History.ResetRendered(core.SnapshotAsRecord(snapshot))

	rc.LogInfo("executor.consolidated", "frame_id", rc.Frame.ID, "up_to_seq", snapshot.UpToSeq, "degraded", snapshot.Degraded)

	return rc.Persist()
}

// spawn is the dispatcher callback running a child frame to completion. The
// parent's rc stays blocked for the duration of the child run.
func (e *Executor) spawn(rc *core.RunContext, agentName, input string) (string, error) {
	frame, err := e.hierarchy.Push(rc, agentName, input)
	if err != nil {
		return "", err
	}

	childRC := rc.NewChildContext(frame, e.Interval(frame.Level))

	return e.Run(childRC)
}

// RecordSpawnResult appends a child frame's terminal result to the parent's
// history, exactly as dispatch does when the spawn runs inline. A resume needs
// this because the parent's spawn record was never written before the crash:
// the child ran to its end on the restored stack and the parent picks up here.
func (e *Executor) RecordSpawnResult(rc *core.RunContext, child *core.Frame, payload string, childErr error) error {
	args, err := json.Marshal(map[string]string{"agent": child.Name, "input": child.Input})
	if err != nil {
		return err
	}
	action := core.Action{Name: tool.SpawnAgentName, Arguments: string(args)}

	seq := rc.History.NextSeq()
	var rec core.ActionRecord
	if childErr != nil {
		rec = core.NewErrorRecord(seq, action, childErr)
	} else {
		rec = core.NewActionRecord(seq, action, payload)
	}
	rc.History.Append(rec)

	_, due := rc.Counter.Increment()
	if err := rc.Persist(); err != nil {
		return err
	}
	if due {
		return e.consolidate(rc)
	}
	return nil
}

// fail finalizes the frame as Failed. The terminal output carries the latest
// snapshot rendering as progress so far. Typed frame failures come back as
// *core.FrameError; store and cancellation errors pass through untouched.
func (e *Executor) fail(rc *core.RunContext, cause error) (string, error) {
	progress := ""
	if rc.Snapshot != nil {
		progress = rc.Snapshot.Render()
	}

	rc.LogWarn("executor.failed", "frame_id", rc.Frame.ID, "error", cause.Error())

	var storeErr *core.StateStoreError
	if errors.As(cause, &storeErr) {
		// The store is unreachable; popping would require another persist.
		// Leave the stack as last persisted for a future resume.
		return "", cause
	}
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		// Popping would persist with a dead context. The persisted state is
		// intact; a resume picks the frame back up.
		return "", cause
	}

	if _, err := e.hierarchy.Pop(rc, core.FrameFailed, progress); err != nil {
		return "", err
	}

	return "", core.NewFrameError(rc.Frame.ID, cause, progress)
}

func finalPayload(action core.Action) (string, error) {
	args, err := action.ArgumentMap()
	if err != nil {
		return "", fmt.Errorf("malformed final_output arguments: %w", err)
	}
	result, ok := args["result"].(string)
	if !ok || result == "" {
		return "", fmt.Errorf("final_output requires a non-empty result")
	}
	return result, nil
}
