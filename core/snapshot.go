package core

import (
	"strconv"
	"strings"
	"time"
)

// TodoStatus tracks the progress of one todo item inside a snapshot.
type TodoStatus string

const (
	// TodoDone marks a finished item.
	TodoDone TodoStatus = "done"
	// TodoOngoing marks an item in progress; Text may carry interim notes.
	TodoOngoing TodoStatus = "ongoing"
	// TodoWaiting marks an item not yet started.
	TodoWaiting TodoStatus = "waiting"
)

// TodoItem is one entry of the snapshot's task breakdown.
type TodoItem struct {
	Text   string     `json:"text"`
	Status TodoStatus `json:"status"`
}

// Snapshot is the structured compressed state produced by the consolidation
// agent. Immediately after a consolidation event it becomes the sole rendered
// history content of the frame.
//
// UpToSeq records the highest fact-history sequence number the snapshot
// covers; on resume the rendered view is reconstructed as the snapshot plus
// all fact entries with Seq > UpToSeq.
type Snapshot struct {
	Todo         []TodoItem `json:"todo,omitempty"`
	DurableFacts string     `json:"durable_facts,omitempty"`
	NextSteps    string     `json:"next_steps,omitempty"`
	UpToSeq      int        `json:"up_to_seq"`
	Degraded     bool       `json:"degraded,omitempty"`
	Created      time.Time  `json:"created"`
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Todo = append([]TodoItem(nil), s.Todo...)
	return &cp
}

// Render produces the tagged-section text form injected into the prompt and
// used as the sole rendered-history entry after consolidation.
func (s *Snapshot) Render() string {
	var b strings.Builder
	b.WriteString("<todo_list>\n")
	for i, item := range s.Todo {
		b.WriteString(strconv.Itoa(i+1) + ". " + item.Text + " [" + string(item.Status) + "]\n")
	}
	b.WriteString("</todo_list>\n")
	b.WriteString("<durable_facts>\n")
	if s.DurableFacts != "" {
		b.WriteString(s.DurableFacts)
		if !strings.HasSuffix(s.DurableFacts, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("</durable_facts>\n")
	b.WriteString("<next_steps>\n")
	if s.NextSteps != "" {
		b.WriteString(s.NextSteps)
		if !strings.HasSuffix(s.NextSteps, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("</next_steps>")
	return b.String()
}
