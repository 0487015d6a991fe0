// Package agentloop provides a high-level façade over the task engine and its
// collaborators (planner, consolidation, capabilities, tools, state store &
// logging) for building hierarchical, resumable agent runtimes. Most
// applications interact with this package by:
//  1. Creating a Runtime via New() with a model.Planner (optionally overriding
//     the default in-memory state store, capability table and tools)
//  2. Starting a task with Run(), or continuing an interrupted one with Resume()
//
// The façade delegates orchestration to engine.Engine while keeping setup and
// usage ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply a durable state store and
// a structured logger.
package agentloop

import (
	"context"

	"github.com/hupe1980/agentloop/capability"
	"github.com/hupe1980/agentloop/consolidate"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/engine"
	"github.com/hupe1980/agentloop/executor"
	"github.com/hupe1980/agentloop/hierarchy"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/prompt"
	"github.com/hupe1980/agentloop/state"
	"github.com/hupe1980/agentloop/tool"
)

// Options configures the Runtime.
type Options struct {
	// Store persists task state. Defaults to an in-memory store; use
	// state.NewFileStore or state.OpenSQLiteStore for crash-safe resume
	// across processes.
	Store core.StateStore

	// Consolidator compresses history into snapshots. Defaults to the
	// model-backed consolidation agent when the planner implements
	// model.Summarizer, otherwise to consolidate.CarryForward.
	Consolidator consolidate.Consolidator

	// Capabilities restricts which actions each agent may take. Defaults to
	// a table permitting everything.
	Capabilities *capability.Table

	// Tools are the external actions available to agents.
	Tools []tool.Tool

	// WorkspaceRoot is the directory tools may touch. Defaults to the
	// current directory.
	WorkspaceRoot string

	// RootAgentName names the level-0 agent of every task.
	RootAgentName string

	// MaxDepth bounds frame nesting.
	MaxDepth int

	// MaxTurns bounds decision cycles per frame.
	MaxTurns int

	// ConsolidationInterval triggers a consolidation every N executed
	// actions; IntervalByLevel overrides it for specific hierarchy levels.
	ConsolidationInterval int
	IntervalByLevel       map[int]int

	// RepairRetries bounds consecutive malformed-output repairs per decision.
	RepairRetries int

	// InitialConsolidation runs a planning pass before a frame's first turn.
	InitialConsolidation bool

	// Instructions is the system text template for agents; InstructionsByName
	// overrides it per agent name.
	Instructions       string
	InstructionsByName map[string]string

	// Retry tunes the exponential-backoff policy applied to transient
	// planner failures (rate limits, 5xx, timeouts). Nil keeps
	// model.DefaultRetryOptions.
	Retry func(o *model.RetryOptions)

	// Hooks are engine lifecycle hooks (task start, resume, finish).
	Hooks []engine.Hook

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// Runtime is the high-level façade aggregating the engine and its collaborators.
type Runtime struct {
	opts   Options
	engine *engine.Engine
}

// New creates a Runtime around a planner with optional overrides. Any unset
// collaborator is initialized with a safe default.
func New(planner model.Planner, optFns ...func(o *Options)) *Runtime {
	opts := Options{
		Store:                 state.NewInMemoryStore(),
		Capabilities:          capability.AllowAll(),
		WorkspaceRoot:         ".",
		RootAgentName:         "root",
		MaxDepth:              hierarchy.DefaultMaxDepth,
		MaxTurns:              executor.DefaultMaxTurns,
		ConsolidationInterval: executor.DefaultConsolidationInterval,
		RepairRetries:         executor.DefaultRepairRetries,
		InitialConsolidation:  true,
		Instructions:          executor.DefaultInstructions,
		Logger:                logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Consolidator == nil {
		if summarizer, ok := planner.(model.Summarizer); ok {
			opts.Consolidator = consolidate.New(summarizer, func(o *consolidate.Options) {
				o.Logger = opts.Logger
			})
		} else {
			opts.Consolidator = consolidate.CarryForward{}
		}
	}

	manager := hierarchy.NewManager(func(o *hierarchy.Options) {
		o.MaxDepth = opts.MaxDepth
	})

	// Rate limits and server hiccups are retried before they can fail a
	// frame. Wrapped after the Summarizer probe above so the decorator does
	// not hide the planner's optional interfaces.
	var retryFns []func(o *model.RetryOptions)
	if opts.Retry != nil {
		retryFns = append(retryFns, opts.Retry)
	}

	exec := executor.New(
		model.WithRetry(planner, retryFns...),
		opts.Consolidator,
		opts.Capabilities,
		opts.Tools,
		manager,
		prompt.NewBuilder(),
		func(o *executor.Options) {
			o.MaxTurns = opts.MaxTurns
			o.ConsolidationInterval = opts.ConsolidationInterval
			o.IntervalByLevel = opts.IntervalByLevel
			o.RepairRetries = opts.RepairRetries
			o.InitialConsolidation = opts.InitialConsolidation
			o.Instructions = opts.Instructions
			o.InstructionsByName = opts.InstructionsByName
		},
	)

	en := engine.New(exec, manager, func(o *engine.Options) {
		o.Store = opts.Store
		o.Logger = opts.Logger
		o.WorkspaceRoot = opts.WorkspaceRoot
		o.RootAgentName = opts.RootAgentName
		o.Hooks = opts.Hooks
	})

	return &Runtime{opts: opts, engine: en}
}

// Run starts a new task and drives it to its terminal outcome. An empty
// taskID derives a deterministic identifier from the input.
func (r *Runtime) Run(ctx context.Context, taskID, input string) engine.Outcome {
	return r.engine.Start(ctx, taskID, input)
}

// Resume continues an interrupted task from its last persisted state.
func (r *Runtime) Resume(ctx context.Context, taskID string) engine.Outcome {
	return r.engine.Resume(ctx, taskID)
}

// State returns the persisted state of a task for inspection.
func (r *Runtime) State(ctx context.Context, taskID string) (*core.TaskState, error) {
	return r.engine.State(ctx, taskID)
}

// Delete removes all persisted state for a task.
func (r *Runtime) Delete(ctx context.Context, taskID string) error {
	return r.engine.Delete(ctx, taskID)
}
