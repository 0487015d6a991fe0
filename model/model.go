package model

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/agentloop/core"
)

// ActionSchema declaratively exposes one permitted action to the planner.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type ActionSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// Request captures the normalized planner input built once per turn.
type Request struct {
	Instructions string         `json:"instructions"` // Full system context from the prompt builder
	Prompt       string         `json:"prompt"`       // Per-turn nudge asking for the next action batch
	Actions      []ActionSchema `json:"actions"`      // Permitted action schema for this frame
}

// Info contains metadata about a planner implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}

// Planner is the model-invocation collaborator. One Decide call is one
// decision cycle: it must return an ordered, non-empty action list or a
// classified error.
//
// Error contract:
//   - *TransientError: rate limits, server errors, timeouts; the caller
//     retries with bounded exponential backoff (see WithRetry)
//   - *AuthError: authorization failures; fatal to the task, never retried
//   - *MalformedError: unparseable or empty output; repaired by the executor
//     with bounded repair retries, not by the transport
type Planner interface {
	Decide(ctx context.Context, req Request) ([]core.Action, error)

	// Info returns information about the planner implementation.
	Info() Info
}

// Summarizer produces plain text without any action schema. The consolidation
// agent uses it for snapshot generation; providers typically implement both
// Planner and Summarizer.
type Summarizer interface {
	Summarize(ctx context.Context, system, prompt string) (string, error)
}

// TransientError marks a transport failure worth retrying (rate limit,
// server error, timeout).
type TransientError struct {
	Cause error
}

// Error implements the error interface.
func (e *TransientError) Error() string { return fmt.Sprintf("transient model error: %v", e.Cause) }

// Unwrap exposes the underlying cause.
func (e *TransientError) Unwrap() error { return e.Cause }

// AuthError marks an authorization failure. It is surfaced as fatal to the
// task and never retried.
type AuthError struct {
	Cause error
}

// Error implements the error interface.
func (e *AuthError) Error() string { return fmt.Sprintf("model authorization failed: %v", e.Cause) }

// Unwrap exposes the underlying cause.
func (e *AuthError) Unwrap() error { return e.Cause }

// MalformedError marks planner output that could not be interpreted as a
// non-empty ordered action list.
type MalformedError struct {
	Detail string
}

// Error implements the error interface.
func (e *MalformedError) Error() string { return fmt.Sprintf("malformed planner output: %s", e.Detail) }

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsAuth reports whether err is (or wraps) an AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsMalformed reports whether err is (or wraps) a MalformedError.
func IsMalformed(err error) bool {
	var me *MalformedError
	return errors.As(err, &me)
}

// Mock is a lightweight in-memory Planner useful for tests & examples. Each
// Decide call consumes the next scripted step in order; an exhausted script
// yields a MalformedError so runaway loops fail fast in tests.
type Mock struct {
	mu    sync.Mutex
	steps []mockStep
	calls int
}

type mockStep struct {
	actions []core.Action
	err     error
}

// NewMock constructs an empty scripted planner.
func NewMock() *Mock {
	return &Mock{}
}

// AddDecision appends a scripted successful decision.
func (m *Mock) AddDecision(actions ...core.Action) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, mockStep{actions: actions})
	return m
}

// AddError appends a scripted failure.
func (m *Mock) AddError(err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, mockStep{err: err})
	return m
}

// Calls returns how many Decide calls the mock has served.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Decide implements Planner by replaying the scripted steps in order.
func (m *Mock) Decide(ctx context.Context, req Request) ([]core.Action, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls >= len(m.steps) {
		m.calls++
		return nil, &MalformedError{Detail: "mock script exhausted"}
	}
	step := m.steps[m.calls]
	m.calls++
	if step.err != nil {
		return nil, step.err
	}
	return append([]core.Action(nil), step.actions...), nil
}

// Info implements Planner.
func (m *Mock) Info() Info { return Info{Name: "mock", Provider: "mock"} }
