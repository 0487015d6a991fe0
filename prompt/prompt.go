// Package prompt assembles the per-turn planner input. The builder is a pure
// function of its inputs: static instructions, the latest consolidation
// snapshot, the rendered history and the hierarchy status listing. It never
// touches runtime state, which keeps every built prompt reproducible from a
// persisted task state.
package prompt

import (
	"strings"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/util"
	"github.com/hupe1980/agentloop/model"
)

// DefaultMaxRenderedBytes caps the rendered-history share of a prompt. When
// the rendered records exceed it before a scheduled consolidation, the
// oldest entries are dropped from the rendered view; fact history is never
// touched.
const DefaultMaxRenderedBytes = 32 * 1024

// Options configures a Builder.
type Options struct {
	MaxRenderedBytes int
}

// Builder turns frame state into a model.Request. Safe for concurrent use.
type Builder struct {
	opts Options
}

// NewBuilder creates a Builder with the given options.
func NewBuilder(optFns ...func(o *Options)) *Builder {
	opts := Options{MaxRenderedBytes: DefaultMaxRenderedBytes}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Builder{opts: opts}
}

// Input collects everything a prompt is built from.
type Input struct {
	Frame *core.Frame
	// Instructions is the static system text. It may contain Go template
	// markers referring to AgentName, Level and Input.
	Instructions string
	// Snapshot is the latest consolidation snapshot, nil before the first
	// consolidation.
	Snapshot *core.Snapshot
	// Rendered is the frame's current rendered history.
	Rendered []core.ActionRecord
	// HierarchyStatus is the indented frame listing from the hierarchy
	// manager, empty for single-frame tasks.
	HierarchyStatus string
	// Actions is the permitted action schema forwarded to the planner.
	Actions []model.ActionSchema
}

// Build assembles the planner request. Dropped reports how many of the
// oldest rendered entries were excluded to honor the byte cap; the caller
// applies the same trim to the live rendered track so the next turn does not
// re-render them.
func (b *Builder) Build(in Input) (req model.Request, dropped int, err error) {
	instructions, err := util.RenderTemplate(in.Instructions, map[string]any{
		"AgentName": in.Frame.Name,
		"Level":     in.Frame.Level,
		"Input":     in.Frame.Input,
	})
	if err != nil {
		return model.Request{}, 0, err
	}

	rendered, dropped := b.fitRendered(in.Rendered)

	var sb strings.Builder

	sb.WriteString("<task>\n")
	sb.WriteString(in.Frame.Input)
	sb.WriteString("\n</task>\n")

	if in.HierarchyStatus != "" {
		sb.WriteString("\n<agent_hierarchy>\n")
		sb.WriteString(strings.TrimRight(in.HierarchyStatus, "\n"))
		sb.WriteString("\n</agent_hierarchy>\n")
	}

	if in.Snapshot != nil {
		sb.WriteString("\n")
		sb.WriteString(in.Snapshot.Render())
	}

	if len(rendered) > 0 {
		sb.WriteString("\n<recent_actions>\n")
		for _, rec := range rendered {
			sb.WriteString(rec.Render())
			sb.WriteString("\n")
		}
		sb.WriteString("</recent_actions>\n")
	}

	sb.WriteString("\nDecide the next action or actions toward completing the task. ")
	sb.WriteString("Respond only by calling the provided functions.")

	return model.Request{
		Instructions: instructions,
		Prompt:       sb.String(),
		Actions:      in.Actions,
	}, dropped, nil
}

// fitRendered drops snapshot pseudo-records (the snapshot arrives separately)
// and then oldest entries until the remaining records fit the byte cap. At
// least the latest record is always kept.
func (b *Builder) fitRendered(in []core.ActionRecord) ([]core.ActionRecord, int) {
	var records []core.ActionRecord
	for _, rec := range in {
		if rec.Name == core.SnapshotRecordName {
			continue
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return records, 0
	}

	total := 0
	sizes := make([]int, len(records))
	for i, rec := range records {
		sizes[i] = len(rec.Render()) + 1
		total += sizes[i]
	}

	dropped := 0
	for total > b.opts.MaxRenderedBytes && dropped < len(records)-1 {
		total -= sizes[dropped]
		dropped++
	}

	return records[dropped:], dropped
}
