package core

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// FrameStatus describes the lifecycle state of an agent frame.
type FrameStatus string

const (
	// FrameRunning marks a frame that is on the active stack.
	FrameRunning FrameStatus = "running"
	// FrameCompleted marks a frame that returned a terminal payload.
	FrameCompleted FrameStatus = "completed"
	// FrameFailed marks a frame that terminated with a typed failure.
	FrameFailed FrameStatus = "failed"
)

// Frame represents one level of a nested agent invocation. A frame is created
// on spawn, executes exclusively while it is the top of the stack, and keeps
// its identity in the hierarchy index after it has been popped.
//
// Frames own their histories exclusively; a parent never mutates a child's
// history and only observes the child's terminal result as an action record
// in its own stream.
type Frame struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	ParentID string      `json:"parent_id,omitempty"`
	Level    int         `json:"level"`
	Input    string      `json:"input"`
	Status   FrameStatus `json:"status"`
	Started  time.Time   `json:"started"`
}

// NewFrame constructs a running frame. The frame ID is a deterministic
// content hash of name, task and input so an identical spawn after a resume
// maps onto the same identity.
func NewFrame(taskID, name, input, parentID string, level int) *Frame {
	return &Frame{
		ID:       FrameID(taskID, name, input),
		Name:     name,
		ParentID: parentID,
		Level:    level,
		Input:    input,
		Status:   FrameRunning,
		Started:  time.Now().UTC(),
	}
}

// FrameID derives the deterministic frame identifier used across the stack,
// the hierarchy index and persisted histories.
func FrameID(taskID, name, input string) string {
	sum := md5.Sum([]byte(name + "|" + taskID + "|" + input))
	return fmt.Sprintf("%s_%s", name, hex.EncodeToString(sum[:])[:12])
}

// TaskKey derives a stable task identifier from the raw task input. Inputs
// that look like paths keep their last element as a readable suffix.
func TaskKey(input string) string {
	sum := md5.Sum([]byte(input))
	name := input
	if strings.ContainsAny(input, `/\`) {
		name = filepath.Base(filepath.ToSlash(input))
	}
	name = sanitizeKey(name)
	if name == "" {
		return hex.EncodeToString(sum[:])[:8]
	}
	return hex.EncodeToString(sum[:])[:8] + "_" + name
}

// sanitizeKey keeps a short filesystem and SQL friendly subset of the input.
func sanitizeKey(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ', r == '.':
			b.WriteRune('_')
		}
		if b.Len() >= 24 {
			break
		}
	}
	return strings.Trim(b.String(), "_")
}

// Stack is the ordered chain of active frames from the root to the currently
// executing frame. Only the last element executes at any instant.
type Stack []*Frame

// Top returns the currently executing frame or nil for an empty stack.
func (s Stack) Top() *Frame {
	if len(s) == 0 {
		return nil
	}
	return s[len(s)-1]
}

// Validate checks the parent/level chain invariant: for every i>0,
// stack[i].ParentID == stack[i-1].ID and stack[i].Level == stack[i-1].Level+1.
func (s Stack) Validate() error {
	for i, f := range s {
		if i == 0 {
			if f.Level != 0 {
				return fmt.Errorf("root frame %s has level %d, want 0", f.ID, f.Level)
			}
			continue
		}
		prev := s[i-1]
		if f.ParentID != prev.ID {
			return fmt.Errorf("frame %s parent %s does not match stack predecessor %s", f.ID, f.ParentID, prev.ID)
		}
		if f.Level != prev.Level+1 {
			return fmt.Errorf("frame %s level %d does not follow predecessor level %d", f.ID, f.Level, prev.Level)
		}
	}
	return nil
}

// Clone returns a deep copy of the stack safe for independent mutation.
func (s Stack) Clone() Stack {
	out := make(Stack, len(s))
	for i, f := range s {
		cp := *f
		out[i] = &cp
	}
	return out
}

// HierarchyEntry is the audit view of a frame kept in the hierarchy index.
// Unlike stack frames, entries survive a pop so parent/child relations and
// final statuses remain queryable after completion.
type HierarchyEntry struct {
	Name     string      `json:"name"`
	Parent   string      `json:"parent,omitempty"`
	Children []string    `json:"children,omitempty"`
	Level    int         `json:"level"`
	Status   FrameStatus `json:"status"`
	Output   string      `json:"output,omitempty"`
}

// Clone returns a deep copy of the entry.
func (e *HierarchyEntry) Clone() *HierarchyEntry {
	cp := *e
	cp.Children = append([]string(nil), e.Children...)
	return &cp
}
