// Package hierarchy maintains the active frame stack and the hierarchy index
// of a task. Push and pop are the only ways frames enter or leave execution,
// and both persist the task state before returning so no reader ever sees an
// in-memory-only stack mutation.
package hierarchy

import (
	"fmt"

	"github.com/hupe1980/agentloop/core"
)

// DefaultMaxDepth bounds frame nesting unless configured otherwise.
const DefaultMaxDepth = 5

// Options configures a Manager.
type Options struct {
	// MaxDepth is the highest permitted frame level. A spawn that would
	// create a frame at MaxDepth or beyond is rejected with ErrDepthExceeded.
	MaxDepth int
}

// Manager mutates the stack and hierarchy index held in a task's state. It
// carries no task state of its own and a single Manager may serve any number
// of tasks.
type Manager struct {
	opts Options
}

// NewManager creates a Manager with the given options.
func NewManager(optFns ...func(o *Options)) *Manager {
	opts := Options{MaxDepth: DefaultMaxDepth}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Manager{opts: opts}
}

// MaxDepth returns the configured depth cap.
func (m *Manager) MaxDepth() int { return m.opts.MaxDepth }

// PushRoot places the run context's own frame onto the task's empty stack as
// the level-0 root and persists the result. It fails when the stack is not
// empty or the frame is not a root frame.
func (m *Manager) PushRoot(rc *core.RunContext) error {
	if len(rc.State.Stack) != 0 {
		return fmt.Errorf("push root: stack is not empty (depth %d)", len(rc.State.Stack))
	}
	if rc.Frame.Level != 0 || rc.Frame.ParentID != "" {
		return fmt.Errorf("push root: frame %s is not a root frame", rc.Frame.ID)
	}

	m.install(rc, rc.Frame)

	if err := rc.Persist(); err != nil {
		return err
	}

	rc.LogInfo("hierarchy.push", "frame_id", rc.Frame.ID, "level", 0)

	return nil
}

// Push creates a child frame under the current top of the stack, appends it
// and persists before returning. Exceeding the depth cap rejects the spawn
// with core.ErrDepthExceeded and leaves the stack untouched.
func (m *Manager) Push(rc *core.RunContext, name, input string) (*core.Frame, error) {
	parent := rc.State.Stack.Top()
	if parent == nil {
		return nil, fmt.Errorf("push %s: no active frame to spawn from", name)
	}

	level := parent.Level + 1
	if level >= m.opts.MaxDepth {
		return nil, fmt.Errorf("spawn %s at level %d (max %d): %w", name, level, m.opts.MaxDepth, core.ErrDepthExceeded)
	}

	frame := core.NewFrame(rc.TaskID, name, input, parent.ID, level)
	m.install(rc, frame)

	if entry, ok := rc.State.Index[parent.ID]; ok {
		entry.Children = append(entry.Children, frame.ID)
	}

	if err := rc.Persist(); err != nil {
		return nil, err
	}

	rc.LogInfo("hierarchy.push", "frame_id", frame.ID, "parent_id", parent.ID, "level", level)

	return frame, nil
}

// Pop removes the top frame, finalizes its status and output in the index
// and persists before returning the popped frame.
func (m *Manager) Pop(rc *core.RunContext, status core.FrameStatus, output string) (*core.Frame, error) {
	top := rc.State.Stack.Top()
	if top == nil {
		return nil, fmt.Errorf("pop: stack is empty")
	}

	rc.State.Stack = rc.State.Stack[:len(rc.State.Stack)-1]
	top.Status = status

	if entry, ok := rc.State.Index[top.ID]; ok {
		entry.Status = status
		entry.Output = output
	}

	if err := rc.Persist(); err != nil {
		return nil, err
	}

	rc.LogInfo("hierarchy.pop", "frame_id", top.ID, "status", string(status))

	return top, nil
}

// Top returns the currently executing frame or nil for an empty stack.
func (m *Manager) Top(state *core.TaskState) *core.Frame {
	return state.Stack.Top()
}

// StatusContext renders the hierarchy index as a compact listing for prompt
// inclusion: one line per known frame with level indentation and status.
// Completed children stay visible, which is what lets a parent reason about
// work already delegated.
func (m *Manager) StatusContext(state *core.TaskState) string {
	root := ""
	for _, f := range state.Stack {
		if f.Level == 0 {
			root = f.ID
			break
		}
	}
	if root == "" {
		for id, e := range state.Index {
			if e.Level == 0 {
				root = id
				break
			}
		}
	}
	if root == "" {
		return ""
	}

	var b []byte
	var walk func(id string, depth int)
	walk = func(id string, depth int) {
		entry, ok := state.Index[id]
		if !ok {
			return
		}
		for i := 0; i < depth; i++ {
			b = append(b, ' ', ' ')
		}
		b = append(b, fmt.Sprintf("- %s [%s]\n", entry.Name, entry.Status)...)
		for _, child := range entry.Children {
			walk(child, depth+1)
		}
	}
	walk(root, 0)

	return string(b)
}

// install appends the frame to the stack and registers its index entry.
func (m *Manager) install(rc *core.RunContext, frame *core.Frame) {
	rc.State.Stack = append(rc.State.Stack, frame)
	rc.State.Index[frame.ID] = &core.HierarchyEntry{
		Name:   frame.Name,
		Parent: frame.ParentID,
		Level:  frame.Level,
		Status: core.FrameRunning,
	}
}
