package tool

import (
	"context"
	"fmt"
)

// SpawnAgentName is the reserved action name for delegating a subtask to a
// child agent. The dispatcher intercepts it before tool lookup.
const SpawnAgentName = "spawn_agent"

// FinalOutputName is the reserved action name that completes the current
// frame. The executor intercepts it before dispatch.
const FinalOutputName = "final_output"

// spawnAgentTool declares the schema for sub-agent delegation. It exists so
// the planner sees spawn_agent alongside regular tools; the runtime handles
// the action itself and Call is never reached through normal dispatch.
type spawnAgentTool struct{}

// NewSpawnAgentTool constructs the spawn declaration instance.
func NewSpawnAgentTool() Tool { return &spawnAgentTool{} }

func (t *spawnAgentTool) Name() string { return SpawnAgentName }

func (t *spawnAgentTool) Description() string {
	return "Delegate a subtask to a child agent by name. Use when a subtask needs focused, separate context."
}

func (t *spawnAgentTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"agent": map[string]any{"type": "string", "description": "Target agent name"},
			"input": map[string]any{"type": "string", "description": "Subtask description for the child agent"},
		},
		"required": []string{"agent", "input"},
	}
}

func (t *spawnAgentTool) Call(ctx context.Context, workspaceRoot string, args map[string]any) (any, error) {
	return nil, fmt.Errorf("%s is handled by the runtime, not dispatched as a tool", SpawnAgentName)
}

// finalOutputTool declares the schema for frame completion. Like spawn_agent
// it is intercepted by the runtime before dispatch.
type finalOutputTool struct{}

// NewFinalOutputTool constructs the final output declaration instance.
func NewFinalOutputTool() Tool { return &finalOutputTool{} }

func (t *finalOutputTool) Name() string { return FinalOutputName }

func (t *finalOutputTool) Description() string {
	return "Complete the current task and return the final result. Call this exactly once, when the task is done."
}

func (t *finalOutputTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"result": map[string]any{"type": "string", "description": "The final result of the task"},
		},
		"required": []string{"result"},
	}
}

func (t *finalOutputTool) Call(ctx context.Context, workspaceRoot string, args map[string]any) (any, error) {
	return nil, fmt.Errorf("%s is handled by the runtime, not dispatched as a tool", FinalOutputName)
}
