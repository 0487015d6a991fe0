package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// Action is a single decision emitted by the planner: an action name plus a
// serialized argument payload (JSON). Actions are executed strictly in the
// order the planner returned them.
type Action struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"` // Serialized argument payload (JSON)
}

// ArgumentMap parses the serialized arguments into a generic map. An empty
// payload yields an empty map rather than an error.
func (a Action) ArgumentMap() (map[string]any, error) {
	if a.Arguments == "" {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(a.Arguments), &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal arguments for %s: %w", a.Name, err)
	}
	return m, nil
}

// ActionRecord captures one executed action: the decision, its outcome and a
// frame-scoped monotone sequence number. Records are appended to both history
// tracks; the fact track never loses them.
type ActionRecord struct {
	Seq       int       `json:"seq"`
	Name      string    `json:"name"`
	Arguments string    `json:"arguments,omitempty"`
	Result    any       `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewActionRecord builds a record for a successfully executed action.
func NewActionRecord(seq int, action Action, result any) ActionRecord {
	return ActionRecord{
		Seq:       seq,
		Name:      action.Name,
		Arguments: action.Arguments,
		Result:    result,
		Timestamp: time.Now().UTC(),
	}
}

// NewErrorRecord builds a record for an action whose execution failed. The
// failure is carried as data; whether it fails the frame is the caller's call.
func NewErrorRecord(seq int, action Action, err error) ActionRecord {
	return ActionRecord{
		Seq:       seq,
		Name:      action.Name,
		Arguments: action.Arguments,
		Error:     err.Error(),
		Timestamp: time.Now().UTC(),
	}
}

// Render produces the single-line prompt rendition of the record used by the
// context builder.
func (r ActionRecord) Render() string {
	out := r.Error
	if out == "" {
		switch v := r.Result.(type) {
		case nil:
			out = ""
		case string:
			out = v
		default:
			if b, err := json.Marshal(v); err == nil {
				out = string(b)
			} else {
				out = fmt.Sprintf("%v", v)
			}
		}
	}
	status := "ok"
	if r.Error != "" {
		status = "error"
	}
	return fmt.Sprintf("%d. %s(%s) [%s] -> %s", r.Seq, r.Name, r.Arguments, status, out)
}
