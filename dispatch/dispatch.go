// Package dispatch routes planner-emitted actions: capability enforcement
// first, then either an external tool call or a sub-agent spawn delegated
// back to the executor. The dispatcher produces one action record per action
// and never mutates histories itself.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/agentloop/capability"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/tool"
)

// DefaultViolationLimit is the number of consecutive capability violations a
// frame may accumulate before it fails.
const DefaultViolationLimit = 3

// SpawnFunc runs a child agent to completion and returns its terminal
// payload. The dispatcher calls it for spawn actions; the executor provides
// it so dispatch stays free of recursion concerns.
type SpawnFunc func(rc *core.RunContext, agentName, input string) (string, error)

// Options configures a Dispatcher.
type Options struct {
	// ViolationLimit caps consecutive capability violations per frame.
	ViolationLimit int
}

// Dispatcher resolves action names against the registered tools and the
// capability table. Safe for concurrent use across tasks; the consecutive
// violation streak is tracked per frame.
type Dispatcher struct {
	table *capability.Table
	spawn SpawnFunc
	tools map[string]tool.Tool
	opts  Options

	mu         sync.Mutex
	violations map[string]int
}

// NewDispatcher builds a dispatcher over the capability table and tool set.
func NewDispatcher(table *capability.Table, spawn SpawnFunc, tools []tool.Tool, optFns ...func(o *Options)) *Dispatcher {
	opts := Options{ViolationLimit: DefaultViolationLimit}
	for _, fn := range optFns {
		fn(&opts)
	}

	registry := make(map[string]tool.Tool, len(tools))
	for _, t := range tools {
		registry[t.Name()] = t
	}

	return &Dispatcher{
		table:      table,
		spawn:      spawn,
		tools:      registry,
		opts:       opts,
		violations: make(map[string]int),
	}
}

// Schemas returns the action schemas visible to a frame: every registered
// tool the capability table permits, the spawn declaration when permitted,
// and the terminal action, which is always offered so a frame can complete.
func (d *Dispatcher) Schemas(level int, name string) []model.ActionSchema {
	var schemas []model.ActionSchema
	for _, t := range d.tools {
		if t.Name() == tool.FinalOutputName {
			continue
		}
		if !d.table.Allows(level, name, t.Name()) {
			continue
		}
		schemas = append(schemas, model.ActionSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}

	final := tool.NewFinalOutputTool()
	schemas = append(schemas, model.ActionSchema{
		Name:        final.Name(),
		Description: final.Description(),
		Parameters:  final.Parameters(),
	})

	return schemas
}

// Dispatch executes one action for the frame owning rc and returns the
// resulting record. A returned error is fatal to the frame; recoverable
// failures (tool errors, rejected spawns, capability violations under the
// limit) come back as error records instead.
func (d *Dispatcher) Dispatch(rc *core.RunContext, action core.Action) (core.ActionRecord, error) {
	seq := rc.History.NextSeq()
	frame := rc.Frame

	if !d.table.Allows(frame.Level, frame.Name, action.Name) {
		streak := d.bumpViolations(frame.ID)
		violation := fmt.Errorf("capability violation: action %q is not permitted for %s at level %d", action.Name, frame.Name, frame.Level)

		rc.LogWarn("dispatch.capability_violation", "frame_id", frame.ID, "action", action.Name, "streak", streak)

		record := core.NewErrorRecord(seq, action, violation)
		if streak >= d.opts.ViolationLimit {
			return record, fmt.Errorf("%d consecutive capability violations: %w", streak, core.ErrCapabilityLimit)
		}
		return record, nil
	}
	d.resetViolations(frame.ID)

	if action.Name == tool.SpawnAgentName {
		return d.dispatchSpawn(rc, seq, action)
	}

	return d.dispatchTool(rc, seq, action)
}

// dispatchSpawn delegates a child run to the executor via the spawn
// callback. Rejected spawns and child failures become error records; state
// store failures stay fatal.
func (d *Dispatcher) dispatchSpawn(rc *core.RunContext, seq int, action core.Action) (core.ActionRecord, error) {
	args, err := action.ArgumentMap()
	if err != nil {
		return core.NewErrorRecord(seq, action, fmt.Errorf("malformed spawn arguments: %w", err)), nil
	}

	agentName, _ := args["agent"].(string)
	input, _ := args["input"].(string)
	if agentName == "" || input == "" {
		return core.NewErrorRecord(seq, action, fmt.Errorf("spawn requires non-empty agent and input")), nil
	}

	result, err := d.spawn(rc, agentName, input)
	if err != nil {
		var storeErr *core.StateStoreError
		if errors.As(err, &storeErr) {
			return core.ActionRecord{}, err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return core.ActionRecord{}, err
		}
		return core.NewErrorRecord(seq, action, err), nil
	}

	return core.NewActionRecord(seq, action, result), nil
}

// dispatchTool runs the named tool and records its outcome. Tool failures
// are recoverable; only cancellation propagates as an error.
func (d *Dispatcher) dispatchTool(rc *core.RunContext, seq int, action core.Action) (core.ActionRecord, error) {
	t, ok := d.tools[action.Name]
	if !ok {
		return core.NewErrorRecord(seq, action, fmt.Errorf("unknown tool %q", action.Name)), nil
	}

	args, err := action.ArgumentMap()
	if err != nil {
		return core.NewErrorRecord(seq, action, fmt.Errorf("malformed arguments: %w", err)), nil
	}

	result, err := t.Call(rc.Context, rc.WorkspaceRoot, args)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return core.ActionRecord{}, err
		}
		rc.LogWarn("dispatch.tool_failed", "frame_id", rc.Frame.ID, "tool", action.Name, "error", err.Error())
		return core.NewErrorRecord(seq, action, err), nil
	}

	rc.LogDebug("dispatch.tool_ok", "frame_id", rc.Frame.ID, "tool", action.Name, "seq", seq)

	return core.NewActionRecord(seq, action, result), nil
}

func (d *Dispatcher) bumpViolations(frameID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.violations[frameID]++
	return d.violations[frameID]
}

func (d *Dispatcher) resetViolations(frameID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.violations, frameID)
}
