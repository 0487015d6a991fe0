package testutil

import (
	"errors"
	"time"

	"github.com/hupe1980/agentloop/core"
)

// RecordBuilder provides a fluent helper for constructing action records in
// tests. Example:
//
//	rec := NewRecordBuilder(1).Name("read_file").Args(`{"path":"a.txt"}`).Result("contents").Build()
//
// Chain only the parts you need; sensible defaults are applied.
type RecordBuilder struct {
	seq       int
	name      string
	args      string
	result    any
	err       string
	timestamp time.Time
}

// NewRecordBuilder creates a builder for a record with the given sequence
// number and default name "echo".
func NewRecordBuilder(seq int) *RecordBuilder {
	return &RecordBuilder{seq: seq, name: "echo", timestamp: time.Now().UTC()}
}

// Name sets the action name (chainable).
func (b *RecordBuilder) Name(name string) *RecordBuilder { b.name = name; return b }

// Args sets the serialized argument payload (chainable).
func (b *RecordBuilder) Args(args string) *RecordBuilder { b.args = args; return b }

// Result sets the action outcome (chainable).
func (b *RecordBuilder) Result(result any) *RecordBuilder { b.result = result; return b }

// Error marks the record as failed with the given message (chainable).
func (b *RecordBuilder) Error(msg string) *RecordBuilder { b.err = msg; return b }

// At overrides the record timestamp for determinism-sensitive tests (chainable).
func (b *RecordBuilder) At(ts time.Time) *RecordBuilder { b.timestamp = ts; return b }

// Build constructs the core.ActionRecord value.
func (b *RecordBuilder) Build() core.ActionRecord {
	action := core.Action{Name: b.name, Arguments: b.args}
	var rec core.ActionRecord
	if b.err != "" {
		rec = core.NewErrorRecord(b.seq, action, errors.New(b.err))
	} else {
		rec = core.NewActionRecord(b.seq, action, b.result)
	}
	rec.Timestamp = b.timestamp
	return rec
}

// Records builds n sequential echo records starting at seq 1, a shorthand for
// history-length oriented tests.
func Records(n int) []core.ActionRecord {
	out := make([]core.ActionRecord, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, NewRecordBuilder(i).Result("ok").Build())
	}
	return out
}
