package consolidate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hupe1980/agentloop/core"
)

var todoLinePattern = regexp.MustCompile(`^(?:\d+[.)]|[-*])\s*(.+?)(?:\s*\[(done|ongoing|waiting)\])?$`)

// parseSnapshot reads the tagged-section snapshot format back out of a model
// reply. Replies without any recognized section are malformed; individual
// sections may be empty.
func parseSnapshot(text string) (*core.Snapshot, error) {
	todoSection, todoOK := section(text, "todo_list")
	facts, factsOK := section(text, "durable_facts")
	next, nextOK := section(text, "next_steps")

	if !todoOK && !factsOK && !nextOK {
		return nil, fmt.Errorf("no tagged sections found in consolidation reply")
	}

	snapshot := &core.Snapshot{
		DurableFacts: strings.TrimSpace(facts),
		NextSteps:    strings.TrimSpace(next),
	}

	for _, line := range strings.Split(todoSection, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := todoLinePattern.FindStringSubmatch(line)
		if m == nil {
			snapshot.Todo = append(snapshot.Todo, core.TodoItem{Text: line, Status: core.TodoWaiting})
			continue
		}
		status := core.TodoStatus(m[2])
		if m[2] == "" {
			status = core.TodoWaiting
		}
		snapshot.Todo = append(snapshot.Todo, core.TodoItem{Text: m[1], Status: status})
	}

	return snapshot, nil
}

// section extracts the text between <tag> and </tag>, reporting whether the
// tag pair was present.
func section(text, tag string) (string, bool) {
	open := "<" + tag + ">"
	closing := "</" + tag + ">"

	start := strings.Index(text, open)
	if start < 0 {
		return "", false
	}
	rest := text[start+len(open):]
	end := strings.Index(rest, closing)
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}
