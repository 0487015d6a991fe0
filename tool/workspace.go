package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// WorkspaceTool provides file operations confined to the task workspace.
//
// It demonstrates the operation-dispatch style for multi-purpose tools: one
// schema with an operation enum, one Call that routes to the matching
// handler. Every path argument is resolved against the workspace root and
// rejected if it escapes it.
type WorkspaceTool struct {
	name        string
	description string
}

// NewWorkspaceTool creates a workspace file tool.
//
// Supported operations:
//   - read_file: return the content of a file
//   - write_file: create or overwrite a file (parent dirs created)
//   - append_file: append to a file, creating it if absent
//   - list_dir: list directory entries, directories suffixed with /
//   - delete_file: remove a single file
func NewWorkspaceTool() *WorkspaceTool {
	return &WorkspaceTool{
		name: "workspace",
		description: "Performs file operations inside the task workspace. " +
			"Supports operations: read_file, write_file, append_file, list_dir, delete_file. " +
			"All paths are relative to the workspace root.",
	}
}

// Name returns the tool identifier.
func (t *WorkspaceTool) Name() string {
	return t.name
}

// Description returns the tool description.
func (t *WorkspaceTool) Description() string {
	return t.description
}

// Parameters returns the JSON schema for tool parameters.
func (t *WorkspaceTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"operation": map[string]interface{}{
				"type": "string",
				"enum": []string{
					"read_file", "write_file", "append_file", "list_dir", "delete_file",
				},
				"description": "The file operation to perform",
			},
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path relative to the workspace root",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "File content for write_file/append_file operations",
			},
		},
		"required": []string{"operation", "path"},
	}
}

// Call routes to the requested operation after confining the path to the
// workspace root.
func (t *WorkspaceTool) Call(ctx context.Context, workspaceRoot string, args map[string]interface{}) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	operation, _ := args["operation"].(string)
	relPath, _ := args["path"].(string)

	path, err := t.resolve(workspaceRoot, relPath)
	if err != nil {
		return nil, err
	}

	switch operation {
	case "read_file":
		return t.readFile(path)
	case "write_file":
		content, _ := args["content"].(string)
		return t.writeFile(path, content, false)
	case "append_file":
		content, _ := args["content"].(string)
		return t.writeFile(path, content, true)
	case "list_dir":
		return t.listDir(path)
	case "delete_file":
		return t.deleteFile(path)
	default:
		return nil, NewToolError(t.name, fmt.Sprintf("unknown operation: %s", operation), "VALIDATION_ERROR")
	}
}

// resolve joins relPath onto root and rejects escapes via .. or absolute paths.
func (t *WorkspaceTool) resolve(root, relPath string) (string, error) {
	if relPath == "" {
		return "", NewToolError(t.name, "path must not be empty", "VALIDATION_ERROR")
	}
	if filepath.IsAbs(relPath) {
		return "", NewToolError(t.name, "path must be relative to the workspace", "VALIDATION_ERROR")
	}
	joined := filepath.Join(root, relPath)
	rel, err := filepath.Rel(root, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", NewToolError(t.name, fmt.Sprintf("path escapes the workspace: %s", relPath), "VALIDATION_ERROR")
	}
	return joined, nil
}

func (t *WorkspaceTool) readFile(path string) (interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewToolError(t.name, err.Error(), "EXECUTION_ERROR")
	}
	return string(data), nil
}

func (t *WorkspaceTool) writeFile(path, content string, appendMode bool) (interface{}, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, NewToolError(t.name, err.Error(), "EXECUTION_ERROR")
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, NewToolError(t.name, err.Error(), "EXECUTION_ERROR")
	}
	defer f.Close()

	n, err := f.WriteString(content)
	if err != nil {
		return nil, NewToolError(t.name, err.Error(), "EXECUTION_ERROR")
	}

	return map[string]interface{}{"written": n}, nil
}

func (t *WorkspaceTool) listDir(path string) (interface{}, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, NewToolError(t.name, err.Error(), "EXECUTION_ERROR")
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)

	return names, nil
}

func (t *WorkspaceTool) deleteFile(path string) (interface{}, error) {
	if err := os.Remove(path); err != nil {
		return nil, NewToolError(t.name, err.Error(), "EXECUTION_ERROR")
	}
	return map[string]interface{}{"deleted": true}, nil
}
