// Package llm defines the capability boundary the Agent Turn Engine
// consumes. Concrete provider HTTP bindings are out of scope for this
// module (see SPEC_FULL.md §1); callers plug in a Client implementation
// backed by whichever provider SDK they choose.
package llm

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/njfio/tau-agent/pkg/convo"
)

// ToolSpec describes one tool the model may call, in the shape every
// mainstream provider SDK expects: a name, a human description, and a
// JSON-schema for arguments.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`
}

// ChatRequest is a provider-agnostic chat completion request.
type ChatRequest struct {
	Model       string          `json:"model"`
	System      string          `json:"system,omitempty"`
	Messages    []convo.Message `json:"messages"`
	Tools       []ToolSpec      `json:"tools,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
	Stream      bool            `json:"-"`
}

// Usage reports token accounting for a single chat response.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ChatResponse is a provider-agnostic chat completion response.
type ChatResponse struct {
	Message      convo.Message `json:"message"`
	FinishReason string        `json:"finish_reason,omitempty"`
	Usage        Usage         `json:"usage"`
}

// Delta is one incremental unit of a streamed response.
type Delta struct {
	Text     string         `json:"text,omitempty"`
	ToolCall *convo.ToolCall `json:"tool_call,omitempty"`
}

// DeltaSink receives streamed deltas as they arrive. Implementations must
// not block the caller for long; the engine has no rollback for deltas
// already delivered (see spec §5).
type DeltaSink interface {
	OnDelta(d Delta)
}

// DeltaSinkFunc adapts a function to a DeltaSink.
type DeltaSinkFunc func(d Delta)

// OnDelta implements DeltaSink.
func (f DeltaSinkFunc) OnDelta(d Delta) { f(d) }

// Client is the capability the Agent Turn Engine consumes. A real
// deployment backs this with a concrete provider SDK — for example
// github.com/anthropics/anthropic-sdk-go or github.com/openai/openai-go —
// behind an adapter that is not part of this module; no such adapter or
// example package ships here.
type Client interface {
	// Name identifies the provider/model combination for logging and
	// fallback-routing events.
	Name() string

	// Complete issues one (possibly streamed) chat request. When
	// req.Stream is true and sink is non-nil, Complete calls sink.OnDelta
	// for every incremental chunk before returning the final response.
	Complete(ctx context.Context, req ChatRequest, sink DeltaSink) (ChatResponse, error)
}

// StatusError carries an HTTP status code from a provider response,
// matching the HttpStatus(code, body) error kind in spec §7.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return httpStatusMessage(e.Code)
	}
	return httpStatusMessage(e.Code) + ": " + e.Body
}

func httpStatusMessage(code int) string {
	return "llm provider returned status " + strconv.Itoa(code)
}
