package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

type readArgs struct {
	Path string `json:"path"`
}

var readSchema = json.RawMessage(`{
  "type": "object",
  "properties": {"path": {"type": "string", "minLength": 1}},
  "required": ["path"],
  "additionalProperties": false
}`)

// NewReadTool returns the built-in file-read tool.
func NewReadTool() Spec {
	return Spec{
		Name:        "read",
		Description: "Read a file within the configured workspace roots.",
		Schema:      readSchema,
		Invoke:      invokeRead,
	}
}

func invokeRead(_ context.Context, raw json.RawMessage, policy Policy) (Result, error) {
	var args readArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorResult("arguments are not valid JSON"), nil
	}

	resolved, err := resolveWithinRoots(policy, args.Path)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	info, err := os.Lstat(resolved)
	if err != nil {
		return errorResult(fmt.Sprintf("cannot stat %s: %s", args.Path, err)), nil
	}
	if policy.EnforceRegularFiles && !info.Mode().IsRegular() {
		return errorResult("refusing to read a non-regular file"), nil
	}
	if int64(policy.MaxFileReadBytes) > 0 && info.Size() > int64(policy.MaxFileReadBytes) {
		return errorResult("content is too large"), nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return errorResult(fmt.Sprintf("cannot read %s: %s", args.Path, err)), nil
	}
	return okResult(string(data)), nil
}
