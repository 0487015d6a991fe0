package testutil

import (
	"github.com/hupe1980/agentloop/core"
)

// StateBuilder helps construct persisted task states with fluent chaining for
// tests, keeping the stack, hierarchy index and fact histories consistent.
// Example:
//
//	st := NewStateBuilder("task-1", "root work").
//		Root("root").
//		Child("researcher", "dig").
//		Facts("root", rec1, rec2).
//		Build()
type StateBuilder struct {
	state  *core.TaskState
	frames map[string]*core.Frame // by agent name
}

// NewStateBuilder creates a builder for the given task.
func NewStateBuilder(taskID, rootInput string) *StateBuilder {
	return &StateBuilder{
		state:  core.NewTaskState(taskID, rootInput),
		frames: map[string]*core.Frame{},
	}
}

// Root pushes the level-0 frame onto the stack (chainable). Its input is the
// task's root input.
func (b *StateBuilder) Root(name string) *StateBuilder {
	frame := core.NewFrame(b.state.TaskID, name, b.state.RootInput, "", 0)
	b.push(frame)
	return b
}

// Child pushes a frame under the current top of the stack (chainable).
func (b *StateBuilder) Child(name, input string) *StateBuilder {
	parent := b.state.Stack.Top()
	frame := core.NewFrame(b.state.TaskID, name, input, parent.ID, parent.Level+1)
	b.push(frame)
	if entry, ok := b.state.Index[parent.ID]; ok {
		entry.Children = append(entry.Children, frame.ID)
	}
	return b
}

// Facts sets the fact history of the named frame (chainable).
func (b *StateBuilder) Facts(name string, records ...core.ActionRecord) *StateBuilder {
	b.state.FactHistories[b.frames[name].ID] = records
	return b
}

// Snapshot installs a consolidation snapshot for the named frame (chainable).
func (b *StateBuilder) Snapshot(name string, snap *core.Snapshot) *StateBuilder {
	b.state.Snapshots[b.frames[name].ID] = snap
	return b
}

// FrameID returns the deterministic identifier of a frame added earlier.
func (b *StateBuilder) FrameID(name string) string {
	return b.frames[name].ID
}

// Build returns the assembled *core.TaskState.
func (b *StateBuilder) Build() *core.TaskState {
	return b.state
}

func (b *StateBuilder) push(frame *core.Frame) {
	b.state.Stack = append(b.state.Stack, frame)
	b.state.Index[frame.ID] = &core.HierarchyEntry{
		Name:   frame.Name,
		Parent: frame.ParentID,
		Level:  frame.Level,
		Status: core.FrameRunning,
	}
	b.frames[frame.Name] = frame
}
