// Package capability implements the per-frame permitted-action tables that
// gate dispatch. A table is loaded once per task, is read-only afterwards
// and maps (hierarchy level, agent name) to the set of action names the
// frame may emit.
package capability

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Wildcard matches any agent name in a rule, or any action when it appears
// in a rule's action list.
const Wildcard = "*"

// Rule grants a set of actions to agents matched by name and level.
// A nil Level matches every level; a Wildcard name matches every agent.
type Rule struct {
	Name    string   `yaml:"name"`
	Level   *int     `yaml:"level,omitempty"`
	Actions []string `yaml:"actions"`
}

// matches reports whether the rule applies to the given frame identity.
func (r Rule) matches(level int, name string) bool {
	if r.Name != Wildcard && r.Name != name {
		return false
	}
	if r.Level != nil && *r.Level != level {
		return false
	}
	return true
}

// Table is an immutable permitted-action table. The zero value permits
// nothing; use New, Parse or LoadFile.
type Table struct {
	rules []compiledRule
}

type compiledRule struct {
	rule    Rule
	actions map[string]struct{}
	allAll  bool
}

// New builds a table from explicit rules. Rule order matters: the first rule
// matching a frame decides its permitted set.
func New(rules ...Rule) (*Table, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		if r.Name == "" {
			return nil, fmt.Errorf("capability rule %d: name must not be empty", i)
		}
		if len(r.Actions) == 0 {
			return nil, fmt.Errorf("capability rule %d (%s): actions must not be empty", i, r.Name)
		}
		cr := compiledRule{rule: r, actions: make(map[string]struct{}, len(r.Actions))}
		for _, a := range r.Actions {
			if a == Wildcard {
				cr.allAll = true
				continue
			}
			cr.actions[a] = struct{}{}
		}
		compiled = append(compiled, cr)
	}
	return &Table{rules: compiled}, nil
}

// fileConfig is the YAML document shape accepted by Parse and LoadFile.
type fileConfig struct {
	Rules []Rule `yaml:"rules"`
}

// Parse decodes a YAML capability document.
//
//	rules:
//	  - name: researcher
//	    level: 1
//	    actions: [workspace, final_output]
//	  - name: "*"
//	    actions: ["*"]
func Parse(data []byte) (*Table, error) {
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse capability config: %w", err)
	}
	if len(cfg.Rules) == 0 {
		return nil, fmt.Errorf("capability config contains no rules")
	}
	return New(cfg.Rules...)
}

// LoadFile reads and parses a YAML capability file.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read capability config: %w", err)
	}
	return Parse(data)
}

// AllowAll returns a table permitting every action for every frame. Useful
// for tests and single-agent setups without an allow-list.
func AllowAll() *Table {
	t, _ := New(Rule{Name: Wildcard, Actions: []string{Wildcard}})
	return t
}

// Allows reports whether the frame identified by level and name may emit the
// given action. Frames with no matching rule are permitted nothing.
func (t *Table) Allows(level int, name, action string) bool {
	for _, cr := range t.rules {
		if !cr.rule.matches(level, name) {
			continue
		}
		if cr.allAll {
			return true
		}
		_, ok := cr.actions[action]
		return ok
	}
	return false
}

// Permitted returns the action names granted to the frame, or nil when no
// rule matches. A wildcard grant returns nil with ok true since the set is
// unbounded.
func (t *Table) Permitted(level int, name string) (actions []string, ok bool) {
	for _, cr := range t.rules {
		if !cr.rule.matches(level, name) {
			continue
		}
		if cr.allAll {
			return nil, true
		}
		out := make([]string, 0, len(cr.actions))
		for a := range cr.actions {
			out = append(out, a)
		}
		return out, true
	}
	return nil, false
}
