package core

import "context"

// TaskState is the durable snapshot of one task: the active stack, the
// hierarchy index, every frame's fact history and the latest consolidation
// snapshot per frame. Loading a persisted TaskState must reconstruct an
// equivalent in-memory state.
type TaskState struct {
	TaskID        string                     `json:"task_id"`
	RootInput     string                     `json:"root_input"`
	Stack         Stack                      `json:"stack"`
	Index         map[string]*HierarchyEntry `json:"index"`
	FactHistories map[string][]ActionRecord  `json:"fact_histories"`
	Snapshots     map[string]*Snapshot       `json:"snapshots"`
}

// NewTaskState constructs an empty state for the given task.
func NewTaskState(taskID, rootInput string) *TaskState {
	return &TaskState{
		TaskID:        taskID,
		RootInput:     rootInput,
		Stack:         Stack{},
		Index:         map[string]*HierarchyEntry{},
		FactHistories: map[string][]ActionRecord{},
		Snapshots:     map[string]*Snapshot{},
	}
}

// Clone returns a deep copy safe for persistence while the task keeps running.
func (t *TaskState) Clone() *TaskState {
	cp := &TaskState{
		TaskID:        t.TaskID,
		RootInput:     t.RootInput,
		Stack:         t.Stack.Clone(),
		Index:         make(map[string]*HierarchyEntry, len(t.Index)),
		FactHistories: make(map[string][]ActionRecord, len(t.FactHistories)),
		Snapshots:     make(map[string]*Snapshot, len(t.Snapshots)),
	}
	for id, e := range t.Index {
		cp.Index[id] = e.Clone()
	}
	for id, recs := range t.FactHistories {
		cp.FactHistories[id] = append([]ActionRecord(nil), recs...)
	}
	for id, s := range t.Snapshots {
		cp.Snapshots[id] = s.Clone()
	}
	return cp
}

// RenderedHistory reconstructs the rendered view for a frame from persisted
// state: the latest snapshot rendering (if any) followed by all fact entries
// recorded after it. This guarantees a resume produces the same rendered view
// the frame saw before the crash.
func (t *TaskState) RenderedHistory(frameID string) []ActionRecord {
	fact := t.FactHistories[frameID]
	snap := t.Snapshots[frameID]
	if snap == nil {
		return append([]ActionRecord(nil), fact...)
	}
	rendered := []ActionRecord{snapshotRecord(snap)}
	for _, rec := range fact {
		if rec.Seq > snap.UpToSeq {
			rendered = append(rendered, rec)
		}
	}
	return rendered
}

// snapshotRecord wraps a snapshot rendering as the pseudo action record that
// seeds a rendered track after consolidation or resume.
func snapshotRecord(s *Snapshot) ActionRecord {
	return ActionRecord{
		Seq:       s.UpToSeq,
		Name:      SnapshotRecordName,
		Result:    s.Render(),
		Timestamp: s.Created,
	}
}

// SnapshotRecordName is the reserved action name of the rendered-track entry
// that carries a consolidation snapshot.
const SnapshotRecordName = "progress_snapshot"

// SnapshotAsRecord exposes the snapshot pseudo record for callers that reset
// rendered history after a consolidation event.
func SnapshotAsRecord(s *Snapshot) ActionRecord { return snapshotRecord(s) }

// StateStore is the durable, crash-safe persistence contract keyed by task
// identifier. Persist must be atomic with respect to crashes: a reader must
// never observe a state that is neither the previous nor the new value.
// Within one task writes are single-writer by construction (only the active
// frame persists); across tasks implementations must tolerate concurrent use.
type StateStore interface {
	// Persist durably writes the full task state.
	Persist(ctx context.Context, taskID string, state *TaskState) error

	// Load returns the persisted state, reporting found=false when the task
	// has never been persisted.
	Load(ctx context.Context, taskID string) (state *TaskState, found bool, err error)

	// Delete removes all persisted state for the task.
	Delete(ctx context.Context, taskID string) error
}
