package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for spawn and budget enforcement.
var (
	// ErrDepthExceeded rejects a spawn that would grow the stack beyond the
	// configured maximum depth.
	ErrDepthExceeded = errors.New("maximum hierarchy depth exceeded")

	// ErrTurnBudgetExceeded marks a frame that consumed its turn budget
	// without reaching a terminal action.
	ErrTurnBudgetExceeded = errors.New("turn budget exceeded")

	// ErrMalformedOutput marks planner output that stayed unusable across the
	// configured repair retries.
	ErrMalformedOutput = errors.New("malformed model output")

	// ErrCapabilityLimit marks a frame that exceeded the consecutive
	// capability-violation limit.
	ErrCapabilityLimit = errors.New("consecutive capability violations exceeded limit")
)

// FrameError is the typed, non-fatal-to-the-process failure outcome of a
// frame. It propagates to the parent as a failed action record, never as an
// uncaught fault; the parent decides whether to retry, compensate or
// propagate.
type FrameError struct {
	FrameID string
	Reason  error  // One of the taxonomy sentinels or a wrapped cause
	Output  string // Progress carried out of the frame (latest snapshot text)
}

// Error implements the error interface.
func (e *FrameError) Error() string {
	return fmt.Sprintf("frame %s failed: %v", e.FrameID, e.Reason)
}

// Unwrap exposes the underlying reason for errors.Is / errors.As matching.
func (e *FrameError) Unwrap() error { return e.Reason }

// NewFrameError constructs a FrameError carrying progress output.
func NewFrameError(frameID string, reason error, output string) *FrameError {
	return &FrameError{FrameID: frameID, Reason: reason, Output: output}
}

// StateStoreError wraps a persistence failure. It is fatal to the task; the
// last successfully persisted state remains intact for a future resume.
type StateStoreError struct {
	Op     string // "persist", "load", "delete"
	TaskID string
	Err    error
}

// Error implements the error interface.
func (e *StateStoreError) Error() string {
	return fmt.Sprintf("state store %s failed for task %s: %v", e.Op, e.TaskID, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *StateStoreError) Unwrap() error { return e.Err }

// NewStateStoreError wraps err unless it already is a StateStoreError.
func NewStateStoreError(op, taskID string, err error) *StateStoreError {
	var sse *StateStoreError
	if errors.As(err, &sse) {
		return sse
	}
	return &StateStoreError{Op: op, TaskID: taskID, Err: err}
}
