package core

import "testing"

func TestHistory_AppendBothTracks(t *testing.T) {
	h := NewHistory()

	for i := 0; i < 3; i++ {
		seq := h.NextSeq()
		h.Append(NewActionRecord(seq, Action{Name: "file_read"}, "ok"))
	}

	if h.FactLen() != 3 || h.RenderedLen() != 3 {
		t.Fatalf("expected 3/3 entries, got fact=%d rendered=%d", h.FactLen(), h.RenderedLen())
	}

	// Readers must get copies.
	fact := h.Fact()
	fact[0].Name = "mutated"
	if h.Fact()[0].Name != "file_read" {
		t.Error("fact slice should be copied on read")
	}
}

func TestHistory_ResetRenderedPreservesFact(t *testing.T) {
	h := NewHistory()
	for i := 0; i < 5; i++ {
		h.Append(NewActionRecord(h.NextSeq(), Action{Name: "web_search"}, i))
	}

	snap := &Snapshot{NextSteps: "continue", UpToSeq: h.LastSeq()}
	h.ResetRendered(SnapshotAsRecord(snap))

	if h.RenderedLen() != 1 {
		t.Fatalf("rendered should contain only the snapshot, got %d", h.RenderedLen())
	}
	if h.FactLen() != 5 {
		t.Fatalf("fact track must never shrink, got %d", h.FactLen())
	}
}

func TestHistory_FactTail(t *testing.T) {
	h := NewHistory()
	for i := 0; i < 4; i++ {
		h.Append(NewActionRecord(h.NextSeq(), Action{Name: "dir_list"}, i))
	}

	tail := h.FactTail(2)
	if len(tail) != 2 {
		t.Fatalf("expected 2 tail entries, got %d", len(tail))
	}
	if tail[0].Seq != 3 || tail[1].Seq != 4 {
		t.Errorf("unexpected tail sequence numbers: %d, %d", tail[0].Seq, tail[1].Seq)
	}
}

func TestHistory_TrimRenderedOldest(t *testing.T) {
	h := NewHistory()
	for i := 0; i < 4; i++ {
		h.Append(NewActionRecord(h.NextSeq(), Action{Name: "file_write"}, i))
	}

	h.TrimRenderedOldest(2)
	if h.RenderedLen() != 2 {
		t.Fatalf("expected 2 rendered entries after trim, got %d", h.RenderedLen())
	}
	if h.Rendered()[0].Seq != 3 {
		t.Errorf("trim should drop the oldest entries, first seq = %d", h.Rendered()[0].Seq)
	}
	if h.FactLen() != 4 {
		t.Error("trim must not touch the fact track")
	}

	h.TrimRenderedOldest(10)
	if h.RenderedLen() != 0 {
		t.Error("over-trim should empty the rendered track")
	}
}

func TestHistory_TrimRenderedOldestKeepsSnapshot(t *testing.T) {
	h := NewHistory()
	for i := 0; i < 2; i++ {
		h.Append(NewActionRecord(h.NextSeq(), Action{Name: "file_write"}, i))
	}
	h.ResetRendered(NewActionRecord(2, Action{Name: SnapshotRecordName}, "progress"))
	for i := 0; i < 3; i++ {
		h.Append(NewActionRecord(h.NextSeq(), Action{Name: "file_write"}, i))
	}

	h.TrimRenderedOldest(2)
	rendered := h.Rendered()
	if len(rendered) != 2 {
		t.Fatalf("expected snapshot plus one entry, got %d", len(rendered))
	}
	if rendered[0].Name != SnapshotRecordName {
		t.Errorf("snapshot record must survive trimming, got %q", rendered[0].Name)
	}
	if rendered[1].Seq != 5 {
		t.Errorf("trim should drop the oldest action entries, kept seq = %d", rendered[1].Seq)
	}
}

func TestHistory_RestoreContinuesSequence(t *testing.T) {
	fact := []ActionRecord{
		NewActionRecord(1, Action{Name: "a"}, nil),
		NewActionRecord(2, Action{Name: "b"}, nil),
	}
	h := RestoreHistory(fact, fact)

	if got := h.NextSeq(); got != 3 {
		t.Fatalf("restored sequence should continue at 3, got %d", got)
	}
}
