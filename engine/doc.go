// Package engine implements the task lifecycle layer of agentloop.
//
// The Engine is the entry point for running tasks. It owns the outermost
// concerns the executor deliberately does not: creating and persisting fresh
// task state, rebuilding state after a crash, and mapping the executor's
// result into a tagged Outcome that is never silently partial.
//
// # Operations
//
// Start creates a new task: it derives a task identifier (or accepts one),
// seeds the task state with a level-0 root frame and runs the frame tree to
// completion. Starting a task whose identifier is already persisted fails;
// use Resume for that.
//
// Resume loads the persisted state of an interrupted task and continues it.
// The stack is replayed from the top down: the innermost frame runs to its
// terminal state first, its result is recorded on the parent exactly as an
// inline spawn would have recorded it, then the parent continues. Each
// frame's rendered history is reconstructed as the latest snapshot rendering
// followed by the fact entries recorded after it, so the resumed frame sees
// the same context it saw before the interruption.
//
// # Outcome
//
// Both operations return an Outcome tagged Completed or Failed. A failed
// outcome carries the typed reason and the identifier of the frame whose
// fact history holds the partial trajectory, plus whatever progress rendering
// the frame produced before failing.
//
// # Hooks
//
// Lifecycle hooks can be registered for task start, resume and finish. Hooks
// run synchronously; a failing start or resume hook aborts the operation,
// a failing finish hook is logged and ignored.
package engine
