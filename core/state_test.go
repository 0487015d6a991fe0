package core

import (
	"strings"
	"testing"
)

func TestTaskState_Clone(t *testing.T) {
	st := NewTaskState("t1", "do things")
	frame := NewFrame("t1", "root", "do things", "", 0)
	st.Stack = Stack{frame}
	st.Index[frame.ID] = &HierarchyEntry{Name: "root", Level: 0, Status: FrameRunning}
	st.FactHistories[frame.ID] = []ActionRecord{NewActionRecord(1, Action{Name: "a"}, "r")}
	st.Snapshots[frame.ID] = &Snapshot{NextSteps: "plan", UpToSeq: 1}

	cp := st.Clone()
	cp.Stack[0].Status = FrameFailed
	cp.Index[frame.ID].Status = FrameFailed
	cp.FactHistories[frame.ID][0].Name = "mutated"
	cp.Snapshots[frame.ID].NextSteps = "mutated"

	if st.Stack[0].Status != FrameRunning {
		t.Error("clone aliases stack frames")
	}
	if st.Index[frame.ID].Status != FrameRunning {
		t.Error("clone aliases index entries")
	}
	if st.FactHistories[frame.ID][0].Name != "a" {
		t.Error("clone aliases fact histories")
	}
	if st.Snapshots[frame.ID].NextSteps != "plan" {
		t.Error("clone aliases snapshots")
	}
}

func TestTaskState_RenderedHistory(t *testing.T) {
	st := NewTaskState("t1", "input")
	const frameID = "root_abc"

	st.FactHistories[frameID] = []ActionRecord{
		NewActionRecord(1, Action{Name: "a"}, nil),
		NewActionRecord(2, Action{Name: "b"}, nil),
		NewActionRecord(3, Action{Name: "c"}, nil),
	}

	// Without a snapshot the full fact history is the rendered view.
	if got := st.RenderedHistory(frameID); len(got) != 3 {
		t.Fatalf("expected 3 rendered entries, got %d", len(got))
	}

	st.Snapshots[frameID] = &Snapshot{NextSteps: "finish c", UpToSeq: 2}
	rendered := st.RenderedHistory(frameID)
	if len(rendered) != 2 {
		t.Fatalf("expected snapshot + 1 tail entry, got %d", len(rendered))
	}
	if rendered[0].Name != SnapshotRecordName {
		t.Errorf("first rendered entry should be the snapshot, got %s", rendered[0].Name)
	}
	if s, ok := rendered[0].Result.(string); !ok || !strings.Contains(s, "finish c") {
		t.Error("snapshot record should carry the snapshot rendering")
	}
	if rendered[1].Seq != 3 {
		t.Errorf("tail should start after the snapshot, got seq %d", rendered[1].Seq)
	}
}

func TestSnapshot_Render(t *testing.T) {
	s := &Snapshot{
		Todo: []TodoItem{
			{Text: "summarize paper one", Status: TodoDone},
			{Text: "summarize paper two", Status: TodoOngoing},
		},
		DurableFacts: "summary.md holds partial results",
		NextSteps:    "1. read summary.md\n2. write outline.md",
	}
	out := s.Render()
	for _, want := range []string{
		"<todo_list>", "[done]", "[ongoing]", "</todo_list>",
		"<durable_facts>", "summary.md holds partial results",
		"<next_steps>", "write outline.md", "</next_steps>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendering missing %q:\n%s", want, out)
		}
	}
}

func TestActionCounter(t *testing.T) {
	c := NewActionCounter(3)
	for i := 1; i <= 6; i++ {
		count, due := c.Increment()
		if count != i {
			t.Fatalf("count = %d, want %d", count, i)
		}
		if wantDue := i%3 == 0; due != wantDue {
			t.Errorf("at count %d consolidate = %v, want %v", i, due, wantDue)
		}
	}

	unlimited := NewActionCounter(0)
	if _, due := unlimited.Increment(); due {
		t.Error("interval 0 should never trigger consolidation")
	}

	resumed := RestoreActionCounter(3, 2)
	if _, due := resumed.Increment(); !due {
		t.Error("restored counter should keep interval phase")
	}
}
