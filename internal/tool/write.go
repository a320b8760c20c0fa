package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type writeArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

var writeSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "path": {"type": "string", "minLength": 1},
    "content": {"type": "string"}
  },
  "required": ["path", "content"],
  "additionalProperties": false
}`)

// NewWriteTool returns the built-in file-write tool.
func NewWriteTool() Spec {
	return Spec{
		Name:        "write",
		Description: "Write a file within the configured workspace roots, creating parent directories as needed.",
		Schema:      writeSchema,
		Invoke:      invokeWrite,
	}
}

func invokeWrite(_ context.Context, raw json.RawMessage, policy Policy) (Result, error) {
	var args writeArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorResult("arguments are not valid JSON"), nil
	}

	if int64(policy.MaxFileWriteBytes) > 0 && int64(len(args.Content)) > int64(policy.MaxFileWriteBytes) {
		return errorResult("content is too large"), nil
	}

	resolved, err := resolveWithinRoots(policy, args.Path)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	if policy.EnforceRegularFiles {
		if info, statErr := os.Lstat(resolved); statErr == nil && !info.Mode().IsRegular() {
			return errorResult("refusing to write a non-regular file"), nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return errorResult(fmt.Sprintf("cannot create directory: %s", err)), nil
	}
	if err := os.WriteFile(resolved, []byte(args.Content), 0o644); err != nil {
		return errorResult(fmt.Sprintf("cannot write %s: %s", args.Path, err)), nil
	}
	return okResult(fmt.Sprintf("wrote %d bytes to %s", len(args.Content), args.Path)), nil
}
