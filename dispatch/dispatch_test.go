package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/capability"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/state"
	"github.com/hupe1980/agentloop/tool"
)

func echoTool() tool.Tool {
	return tool.NewFunctionTool(
		"echo",
		"Echo the message back",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{"type": "string"},
			},
			"required": []string{"message"},
		},
		func(ctx context.Context, root string, args map[string]any) (any, error) {
			return args["message"], nil
		},
	)
}

func failingTool() tool.Tool {
	return tool.NewFunctionTool(
		"broken",
		"Always fails",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(ctx context.Context, root string, args map[string]any) (any, error) {
			return nil, errors.New("broken pipe")
		},
	)
}

func testContext(t *testing.T) *core.RunContext {
	t.Helper()

	taskState := core.NewTaskState("task-1", "run tools")
	frame := core.NewFrame("task-1", "worker", "run tools", "", 0)
	taskState.Stack = core.Stack{frame}

	return core.NewRunContext(
		context.Background(),
		"task-1", t.TempDir(),
		frame,
		core.NewHistory(),
		core.NewActionCounter(10),
		taskState,
		state.NewInMemoryStore(),
		nil,
	)
}

func noSpawn(rc *core.RunContext, agentName, input string) (string, error) {
	return "", errors.New("spawn not expected in this test")
}

func TestDispatchPermittedTool(t *testing.T) {
	d := NewDispatcher(capability.AllowAll(), noSpawn, []tool.Tool{echoTool()})
	rc := testContext(t)

	record, err := d.Dispatch(rc, core.Action{Name: "echo", Arguments: `{"message":"hi"}`})
	require.NoError(t, err)

	assert.Equal(t, 1, record.Seq)
	assert.Equal(t, "hi", record.Result)
	assert.Empty(t, record.Error)
}

func TestDispatchToolFailureIsRecoverable(t *testing.T) {
	d := NewDispatcher(capability.AllowAll(), noSpawn, []tool.Tool{failingTool()})
	rc := testContext(t)

	record, err := d.Dispatch(rc, core.Action{Name: "broken"})
	require.NoError(t, err)

	assert.Contains(t, record.Error, "broken pipe")
}

func TestDispatchUnknownToolIsRecoverable(t *testing.T) {
	d := NewDispatcher(capability.AllowAll(), noSpawn, nil)
	rc := testContext(t)

	record, err := d.Dispatch(rc, core.Action{Name: "no_such_tool"})
	require.NoError(t, err)

	assert.Contains(t, record.Error, "unknown tool")
}

func TestDispatchCapabilityViolation(t *testing.T) {
	table, err := capability.New(capability.Rule{Name: "worker", Actions: []string{"echo"}})
	require.NoError(t, err)

	d := NewDispatcher(table, noSpawn, []tool.Tool{echoTool(), failingTool()})
	rc := testContext(t)

	// First two violations are recorded but non-fatal.
	for i := 0; i < 2; i++ {
		record, err := d.Dispatch(rc, core.Action{Name: "broken"})
		require.NoError(t, err)
		assert.Contains(t, record.Error, "capability violation")
	}

	// A permitted action resets the streak.
	_, err = d.Dispatch(rc, core.Action{Name: "echo", Arguments: `{"message":"ok"}`})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = d.Dispatch(rc, core.Action{Name: "broken"})
		require.NoError(t, err)
	}

	// Third consecutive violation trips the limit.
	record, err := d.Dispatch(rc, core.Action{Name: "broken"})
	assert.ErrorIs(t, err, core.ErrCapabilityLimit)
	assert.Contains(t, record.Error, "capability violation")
}

func TestDispatchViolationNeverReachesTool(t *testing.T) {
	called := false
	spy := tool.NewFunctionTool(
		"spy",
		"Records invocations",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(ctx context.Context, root string, args map[string]any) (any, error) {
			called = true
			return "ok", nil
		},
	)

	table, err := capability.New(capability.Rule{Name: "worker", Actions: []string{"echo"}})
	require.NoError(t, err)

	d := NewDispatcher(table, noSpawn, []tool.Tool{spy})
	rc := testContext(t)

	_, err = d.Dispatch(rc, core.Action{Name: "spy"})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestDispatchSpawnDelegates(t *testing.T) {
	var gotAgent, gotInput string
	spawn := func(rc *core.RunContext, agentName, input string) (string, error) {
		gotAgent, gotInput = agentName, input
		return "child says done", nil
	}

	d := NewDispatcher(capability.AllowAll(), spawn, nil)
	rc := testContext(t)

	record, err := d.Dispatch(rc, core.Action{
		Name:      tool.SpawnAgentName,
		Arguments: `{"agent":"researcher","input":"dig deeper"}`,
	})
	require.NoError(t, err)

	assert.Equal(t, "researcher", gotAgent)
	assert.Equal(t, "dig deeper", gotInput)
	assert.Equal(t, "child says done", record.Result)
}

func TestDispatchSpawnChildFailureBecomesRecord(t *testing.T) {
	spawn := func(rc *core.RunContext, agentName, input string) (string, error) {
		return "", core.NewFrameError("child_abc", core.ErrTurnBudgetExceeded, "")
	}

	d := NewDispatcher(capability.AllowAll(), spawn, nil)
	rc := testContext(t)

	record, err := d.Dispatch(rc, core.Action{
		Name:      tool.SpawnAgentName,
		Arguments: `{"agent":"child","input":"try"}`,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, record.Error)
}

func TestDispatchSpawnDepthExceededIsRecoverable(t *testing.T) {
	spawn := func(rc *core.RunContext, agentName, input string) (string, error) {
		return "", core.ErrDepthExceeded
	}

	d := NewDispatcher(capability.AllowAll(), spawn, nil)
	rc := testContext(t)

	record, err := d.Dispatch(rc, core.Action{
		Name:      tool.SpawnAgentName,
		Arguments: `{"agent":"child","input":"too deep"}`,
	})
	require.NoError(t, err)
	assert.Contains(t, record.Error, core.ErrDepthExceeded.Error())
}

func TestDispatchSpawnStoreFailureIsFatal(t *testing.T) {
	spawn := func(rc *core.RunContext, agentName, input string) (string, error) {
		return "", core.NewStateStoreError("persist", "task-1", errors.New("disk full"))
	}

	d := NewDispatcher(capability.AllowAll(), spawn, nil)
	rc := testContext(t)

	_, err := d.Dispatch(rc, core.Action{
		Name:      tool.SpawnAgentName,
		Arguments: `{"agent":"child","input":"x"}`,
	})
	var storeErr *core.StateStoreError
	assert.ErrorAs(t, err, &storeErr)
}

func TestDispatchSpawnMissingArgsIsRecoverable(t *testing.T) {
	d := NewDispatcher(capability.AllowAll(), noSpawn, nil)
	rc := testContext(t)

	record, err := d.Dispatch(rc, core.Action{Name: tool.SpawnAgentName, Arguments: `{"agent":"x"}`})
	require.NoError(t, err)
	assert.Contains(t, record.Error, "non-empty agent and input")
}

func TestSchemasFilterByCapability(t *testing.T) {
	table, err := capability.New(capability.Rule{Name: "worker", Actions: []string{"echo"}})
	require.NoError(t, err)

	d := NewDispatcher(table, noSpawn, []tool.Tool{echoTool(), failingTool(), tool.NewSpawnAgentTool()})

	schemas := d.Schemas(0, "worker")

	names := make([]string, 0, len(schemas))
	for _, s := range schemas {
		names = append(names, s.Name)
	}

	assert.Contains(t, names, "echo")
	assert.NotContains(t, names, "broken")
	assert.NotContains(t, names, tool.SpawnAgentName)
	// The terminal action is always offered.
	assert.Contains(t, names, tool.FinalOutputName)
}
