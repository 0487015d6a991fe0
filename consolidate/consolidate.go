// Package consolidate implements periodic history compression. Every
// consolidation turns the fact-history tail since the previous snapshot into
// a fresh structured snapshot via a summarizing model; on repeated malformed
// output it degrades to carrying the previous snapshot forward together with
// the raw unconsolidated tail. Consolidation never fails a frame and never
// touches fact history.
package consolidate

import (
	"context"
	"strings"
	"time"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
)

// DefaultMaxRetries bounds summarizer attempts before the degraded fallback.
const DefaultMaxRetries = 3

// Input collects what one consolidation works on.
type Input struct {
	Frame *core.Frame
	// Previous is the snapshot being replaced, nil for the first
	// consolidation of a frame.
	Previous *core.Snapshot
	// Tail holds the fact records not yet covered by Previous, oldest first.
	Tail []core.ActionRecord
}

// Consolidator produces a new snapshot from the current one and the
// unconsolidated tail. Implementations must return a usable snapshot for
// every non-cancelled call; quality may degrade, availability may not.
type Consolidator interface {
	Consolidate(ctx context.Context, in Input) (*core.Snapshot, error)
}

// Options configures the model-backed Agent.
type Options struct {
	MaxRetries int
	Logger     logging.Logger
}

// Agent is the model-backed Consolidator. It prompts a Summarizer for the
// tagged-section snapshot format and parses the reply; malformed replies are
// retried up to MaxRetries before the degraded carry-forward kicks in.
type Agent struct {
	summarizer model.Summarizer
	opts       Options
}

var _ Consolidator = (*Agent)(nil)

// New creates a consolidation agent on the given summarizer.
func New(summarizer model.Summarizer, optFns ...func(o *Options)) *Agent {
	opts := Options{MaxRetries: DefaultMaxRetries}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Agent{summarizer: summarizer, opts: opts}
}

const systemPrompt = `You compress an agent's recent action log into a compact working state.
Reply with exactly three tagged sections and nothing else:

<todo_list>
1. <item text> [done|ongoing|waiting]
</todo_list>
<durable_facts>
<facts worth keeping verbatim across the whole task>
</durable_facts>
<next_steps>
<the concrete plan for the next few actions>
</next_steps>`

// Consolidate implements Consolidator. The returned snapshot's UpToSeq is
// the highest sequence number in the tail (or the previous snapshot's when
// the tail is empty), so resume can reconstruct the rendered view.
func (a *Agent) Consolidate(ctx context.Context, in Input) (*core.Snapshot, error) {
	upToSeq := 0
	if in.Previous != nil {
		upToSeq = in.Previous.UpToSeq
	}
	if n := len(in.Tail); n > 0 {
		upToSeq = in.Tail[n-1].Seq
	}

	prompt := buildPrompt(in)

	var lastErr error
	for attempt := 1; attempt <= a.opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, err := a.summarizer.Summarize(ctx, systemPrompt, prompt)
		if err != nil {
			if model.IsAuth(err) {
				// Authorization failures will not heal with retries; degrade
				// immediately so the task keeps its snapshot discipline.
				lastErr = err
				break
			}
			lastErr = err
			continue
		}

		snapshot, err := parseSnapshot(text)
		if err != nil {
			lastErr = err
			a.opts.Logger.Warn("consolidate.parse_failed", "frame_id", in.Frame.ID, "attempt", attempt, "error", err.Error())
			continue
		}

		snapshot.UpToSeq = upToSeq
		snapshot.Created = time.Now().UTC()
		return snapshot, nil
	}

	a.opts.Logger.Warn("consolidate.degraded", "frame_id", in.Frame.ID, "error", errString(lastErr))

	return degradedSnapshot(in, upToSeq), nil
}

// buildPrompt renders the previous snapshot and the unconsolidated tail as
// the summarizer input.
func buildPrompt(in Input) string {
	var sb strings.Builder

	sb.WriteString("<task>\n")
	sb.WriteString(in.Frame.Input)
	sb.WriteString("\n</task>\n")

	if in.Previous != nil {
		sb.WriteString("\nPrevious working state:\n")
		sb.WriteString(in.Previous.Render())
		sb.WriteString("\n")
	}

	sb.WriteString("\nActions since the previous state:\n")
	for _, rec := range in.Tail {
		sb.WriteString(rec.Render())
		sb.WriteString("\n")
	}

	sb.WriteString("\nProduce the updated working state.")

	return sb.String()
}

// degradedSnapshot carries the previous snapshot forward with the raw tail
// appended to the durable facts. Nothing is lost; the next successful
// consolidation cleans it up.
func degradedSnapshot(in Input, upToSeq int) *core.Snapshot {
	snapshot := in.Previous.Clone()
	if snapshot == nil {
		snapshot = &core.Snapshot{}
	}

	var sb strings.Builder
	if snapshot.DurableFacts != "" {
		sb.WriteString(snapshot.DurableFacts)
		if !strings.HasSuffix(snapshot.DurableFacts, "\n") {
			sb.WriteString("\n")
		}
	}
	sb.WriteString("<unconsolidated_actions>\n")
	for _, rec := range in.Tail {
		sb.WriteString(rec.Render())
		sb.WriteString("\n")
	}
	sb.WriteString("</unconsolidated_actions>")

	snapshot.DurableFacts = sb.String()
	snapshot.UpToSeq = upToSeq
	snapshot.Degraded = true
	snapshot.Created = time.Now().UTC()

	return snapshot
}

// CarryForward is a model-free Consolidator. Every consolidation carries the
// previous snapshot forward with the raw tail appended to the durable facts,
// so the rendered track still collapses at each interval without a summarizer.
type CarryForward struct{}

var _ Consolidator = CarryForward{}

// Consolidate implements Consolidator.
func (CarryForward) Consolidate(ctx context.Context, in Input) (*core.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	upToSeq := 0
	if in.Previous != nil {
		upToSeq = in.Previous.UpToSeq
	}
	if n := len(in.Tail); n > 0 {
		upToSeq = in.Tail[n-1].Seq
	}

	snapshot := degradedSnapshot(in, upToSeq)
	snapshot.Degraded = false
	return snapshot, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
