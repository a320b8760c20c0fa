// Package tool implements the built-in tool registry and the bounded
// execution policy described in spec §4.4 (C4 Tool Registry & Policy):
// bash/read/write built-ins, path containment, and the enumerated
// policy fields every invocation is checked against.
package tool

import (
	"context"
	"encoding/json"
)

// Result is what a tool invocation returns to the Agent Turn Engine. A
// policy violation is reported as IsError=true with a terminal,
// human-readable Payload — the turn continues so the model can react;
// it is never a Go error.
type Result struct {
	OK      bool
	Payload string
	IsError bool
}

func errorResult(reason string) Result {
	return Result{OK: false, IsError: true, Payload: reason}
}

func okResult(payload string) Result {
	return Result{OK: true, Payload: payload}
}

// InvokeFunc is a registered tool's implementation.
type InvokeFunc func(ctx context.Context, args json.RawMessage, policy Policy) (Result, error)

// Spec is one registered tool: a name, a JSON schema describing its
// arguments, and its invocation function.
type Spec struct {
	Name        string
	Description string
	Schema      json.RawMessage
	Invoke      InvokeFunc
}
