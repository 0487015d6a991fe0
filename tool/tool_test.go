package tool

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/internal/util"
)

// -------------------- Schema & Validation Tests --------------------

type sampleSchema struct {
	A string `json:"a" description:"Field A"`
	B *int   `json:"b" description:"Optional pointer field"`
	C int    `json:"c,omitempty" description:"Omit empty field"`
}

func TestCreateSchema(t *testing.T) {
	schema := util.CreateSchema(sampleSchema{})
	props, ok := schema["properties"].(map[string]any)
	assert.True(t, ok)
	// Properties present
	assert.Contains(t, props, "a")
	assert.Contains(t, props, "b")
	assert.Contains(t, props, "c")
	// Required only includes non-pointer, non-omitempty exported fields
	req, _ := schema["required"].([]string)
	if req == nil { // reflection may produce []any
		ifaceReq, _ := schema["required"].([]any)
		for _, v := range ifaceReq {
			req = append(req, v.(string))
		}
	}
	assert.ElementsMatch(t, []string{"a"}, req)
}

func TestValidateParameters(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x": map[string]any{"type": "integer"},
		},
		// Use []any to mirror possible JSON decoded schema shape
		"required": []any{"x"},
	}

	// Success
	err := util.ValidateParameters(map[string]any{"x": 5}, schema)
	assert.NoError(t, err)

	// Missing required
	err = util.ValidateParameters(map[string]any{}, schema)
	assert.Error(t, err)
	var vErr *ValidationError
	assert.True(t, errors.As(err, &vErr))
}

func TestValidateParametersRequiredFromStructSchema(t *testing.T) {
	// CreateSchema emits required as []string; validation must enforce it
	// the same as the JSON-decoded []any shape.
	schema := util.CreateSchema(sampleSchema{})

	err := util.ValidateParameters(map[string]any{"a": "hello"}, schema)
	assert.NoError(t, err)

	err = util.ValidateParameters(map[string]any{"b": 1}, schema)
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "a", vErr.Field)
}

// -------------------- FunctionTool Tests --------------------

func TestFunctionToolCall(t *testing.T) {
	sum := NewFunctionTool(
		"calculate_sum",
		"Calculate the sum of two numbers",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
			"required": []string{"a", "b"},
		},
		func(ctx context.Context, root string, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		},
	)

	result, err := sum.Call(context.Background(), t.TempDir(), map[string]any{"a": 2.0, "b": 3.0})
	require.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionToolValidationError(t *testing.T) {
	tl := NewFunctionTool(
		"needs_arg",
		"Requires x",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"x": map[string]any{"type": "string"},
			},
			"required": []string{"x"},
		},
		func(ctx context.Context, root string, args map[string]any) (any, error) {
			return nil, nil
		},
	)

	_, err := tl.Call(context.Background(), t.TempDir(), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "VALIDATION_ERROR", toolErr.Code)
	assert.Equal(t, "needs_arg", toolErr.Tool)
}

func TestFunctionToolExecutionErrorWrapping(t *testing.T) {
	failing := NewFunctionTool(
		"always_fails",
		"Fails every time",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(ctx context.Context, root string, args map[string]any) (any, error) {
			return nil, errors.New("boom")
		},
	)

	_, err := failing.Call(context.Background(), t.TempDir(), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "EXECUTION_ERROR", toolErr.Code)
	assert.Equal(t, "boom", toolErr.Message)
}

func TestFunctionToolPassesThroughToolError(t *testing.T) {
	custom := NewToolError("custom", "not found", "NOT_FOUND")
	tl := NewFunctionTool(
		"custom",
		"Returns a custom ToolError",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(ctx context.Context, root string, args map[string]any) (any, error) {
			return nil, custom
		},
	)

	_, err := tl.Call(context.Background(), t.TempDir(), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "NOT_FOUND", toolErr.Code)
}

// -------------------- WorkspaceTool Tests --------------------

func TestWorkspaceToolWriteReadList(t *testing.T) {
	root := t.TempDir()
	ws := NewWorkspaceTool()
	ctx := context.Background()

	_, err := ws.Call(ctx, root, map[string]any{
		"operation": "write_file",
		"path":      "notes/plan.txt",
		"content":   "step one",
	})
	require.NoError(t, err)

	result, err := ws.Call(ctx, root, map[string]any{
		"operation": "read_file",
		"path":      "notes/plan.txt",
	})
	require.NoError(t, err)
	assert.Equal(t, "step one", result)

	_, err = ws.Call(ctx, root, map[string]any{
		"operation": "append_file",
		"path":      "notes/plan.txt",
		"content":   "\nstep two",
	})
	require.NoError(t, err)

	result, err = ws.Call(ctx, root, map[string]any{
		"operation": "read_file",
		"path":      "notes/plan.txt",
	})
	require.NoError(t, err)
	assert.Equal(t, "step one\nstep two", result)

	listing, err := ws.Call(ctx, root, map[string]any{
		"operation": "list_dir",
		"path":      "notes",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"plan.txt"}, listing)
}

func TestWorkspaceToolDelete(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "gone.txt"), []byte("x"), 0o644))

	ws := NewWorkspaceTool()
	_, err := ws.Call(context.Background(), root, map[string]any{
		"operation": "delete_file",
		"path":      "gone.txt",
	})
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(root, "gone.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestWorkspaceToolRejectsEscapes(t *testing.T) {
	root := t.TempDir()
	ws := NewWorkspaceTool()
	ctx := context.Background()

	for _, path := range []string{"../outside.txt", "a/../../outside.txt", "/etc/passwd"} {
		_, err := ws.Call(ctx, root, map[string]any{
			"operation": "read_file",
			"path":      path,
		})
		var toolErr *ToolError
		require.ErrorAs(t, err, &toolErr, "path %q must be rejected", path)
		assert.Equal(t, "VALIDATION_ERROR", toolErr.Code)
	}
}

func TestWorkspaceToolUnknownOperation(t *testing.T) {
	ws := NewWorkspaceTool()
	_, err := ws.Call(context.Background(), t.TempDir(), map[string]any{
		"operation": "format_disk",
		"path":      "x",
	})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "VALIDATION_ERROR", toolErr.Code)
}

// -------------------- Reserved Action Declarations --------------------

func TestReservedDeclarationsRefuseDirectCall(t *testing.T) {
	for _, tl := range []Tool{NewSpawnAgentTool(), NewFinalOutputTool()} {
		_, err := tl.Call(context.Background(), t.TempDir(), map[string]any{})
		assert.Error(t, err, "tool %s", tl.Name())
		assert.NotEmpty(t, tl.Description())
		assert.Contains(t, tl.Parameters(), "properties")
	}
}
