package core

import "sync"

// History is a frame's dual-track action record. The fact track is the
// canonical, append-only trajectory; the rendered track is the context-visible
// copy that consolidation truncates and the prompt size cap may trim.
//
// Contract:
//   - Append adds to both tracks; nothing else ever adds to the fact track
//   - ResetRendered replaces the rendered track with exactly the given entries
//   - Fact entries are never removed, including across consolidation failures
//   - Readers receive defensive copies to avoid external mutation
//
// History is safe for concurrent access, although within one task only the
// owning frame's executor ever writes.
type History struct {
	mu       sync.RWMutex
	rendered []ActionRecord
	fact     []ActionRecord
	seq      int
}

// NewHistory constructs an empty history.
func NewHistory() *History {
	return &History{}
}

// RestoreHistory rebuilds a history from persisted fact entries and a rendered
// view reconstructed by the caller. The internal sequence counter continues
// after the highest restored fact sequence.
func RestoreHistory(fact, rendered []ActionRecord) *History {
	h := &History{
		fact:     append([]ActionRecord(nil), fact...),
		rendered: append([]ActionRecord(nil), rendered...),
	}
	if n := len(h.fact); n > 0 {
		h.seq = h.fact[n-1].Seq
	}
	return h
}

// NextSeq reserves and returns the next monotone sequence number.
func (h *History) NextSeq() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	return h.seq
}

// Append adds the record to both tracks.
func (h *History) Append(rec ActionRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fact = append(h.fact, rec)
	h.rendered = append(h.rendered, rec)
}

// Rendered returns a copy of the rendered track.
func (h *History) Rendered() []ActionRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]ActionRecord, len(h.rendered))
	copy(out, h.rendered)
	return out
}

// Fact returns a copy of the append-only fact track.
func (h *History) Fact() []ActionRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]ActionRecord, len(h.fact))
	copy(out, h.fact)
	return out
}

// FactLen reports the fact track length without copying.
func (h *History) FactLen() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.fact)
}

// RenderedLen reports the rendered track length without copying.
func (h *History) RenderedLen() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rendered)
}

// FactTail returns a copy of the fact entries with Seq greater than after.
func (h *History) FactTail(after int) []ActionRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []ActionRecord
	for _, rec := range h.fact {
		if rec.Seq > after {
			out = append(out, rec)
		}
	}
	return out
}

// ResetRendered replaces the rendered track with exactly the given entries.
// The fact track is untouched.
func (h *History) ResetRendered(entries ...ActionRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rendered = append([]ActionRecord(nil), entries...)
}

// TrimRenderedOldest drops the n oldest rendered action entries, used by the
// prompt size cap. Snapshot pseudo-records and the fact track are untouched.
func (h *History) TrimRenderedOldest(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n <= 0 {
		return
	}
	kept := make([]ActionRecord, 0, len(h.rendered))
	for _, rec := range h.rendered {
		if n > 0 && rec.Name != SnapshotRecordName {
			n--
			continue
		}
		kept = append(kept, rec)
	}
	h.rendered = kept
}

// LastSeq returns the highest sequence number appended so far.
func (h *History) LastSeq() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}
