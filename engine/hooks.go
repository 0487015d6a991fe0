package engine

import "context"

// HookType names the lifecycle points where hooks run.
type HookType string

const (
	// HookTaskStart fires before a new task's root frame begins. A hook
	// error aborts the start.
	HookTaskStart HookType = "task_start"

	// HookTaskResume fires before an interrupted task continues. A hook
	// error aborts the resume and leaves the persisted state untouched.
	HookTaskResume HookType = "task_resume"

	// HookTaskFinish fires after the task produced its outcome. Hook errors
	// are logged and ignored.
	HookTaskFinish HookType = "task_finish"
)

// HookContext carries the information available at the hook's lifecycle point.
type HookContext struct {
	// TaskID identifies the task.
	TaskID string

	// Input is the root task input. Set for start and resume hooks.
	Input string

	// Outcome is the terminal result. Set only for finish hooks.
	Outcome *Outcome
}

// Hook is a synchronous lifecycle extension point. Implementations should be
// fast; they run on the task's own goroutine.
type Hook interface {
	// Type returns the lifecycle point this hook handles.
	Type() HookType

	// Execute runs the hook. For start and resume hooks a returned error
	// aborts the operation.
	Execute(ctx context.Context, hc *HookContext) error
}

// FunctionHook wraps a plain function as a Hook.
type FunctionHook struct {
	hookType HookType
	fn       func(ctx context.Context, hc *HookContext) error
}

// NewFunctionHook creates a function-based hook for the given lifecycle point.
func NewFunctionHook(hookType HookType, fn func(ctx context.Context, hc *HookContext) error) *FunctionHook {
	return &FunctionHook{hookType: hookType, fn: fn}
}

// Type returns the lifecycle point this hook handles.
func (h *FunctionHook) Type() HookType { return h.hookType }

// Execute calls the wrapped function.
func (h *FunctionHook) Execute(ctx context.Context, hc *HookContext) error {
	return h.fn(ctx, hc)
}

var _ Hook = (*FunctionHook)(nil)

// hookSet routes hooks by type. Registration happens once at engine
// construction; firing is read-only and safe for concurrent tasks.
type hookSet struct {
	hooks map[HookType][]Hook
}

func newHookSet(hooks []Hook) *hookSet {
	hs := &hookSet{hooks: make(map[HookType][]Hook)}
	for _, h := range hooks {
		hs.hooks[h.Type()] = append(hs.hooks[h.Type()], h)
	}
	return hs
}

// fire runs every hook of the given type in registration order, stopping at
// the first error.
func (hs *hookSet) fire(ctx context.Context, hookType HookType, hc *HookContext) error {
	for _, h := range hs.hooks[hookType] {
		if err := h.Execute(ctx, hc); err != nil {
			return err
		}
	}
	return nil
}
