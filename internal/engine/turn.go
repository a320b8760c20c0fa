package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/njfio/tau-agent/internal/tool"
	"github.com/njfio/tau-agent/pkg/convo"
	"github.com/njfio/tau-agent/pkg/llm"
)

// Request is one agent run's input: the model, system prompt, and the
// lineage of messages built by the session store.
type Request struct {
	Model    string
	Provider string
	System   string
	Messages []convo.Message

	// Tools advertised to the model this turn.
	Registry *tool.Registry
	Policy   tool.Policy

	// Sink receives streaming deltas, if non-nil. When set, the request
	// is issued with streaming enabled.
	Sink llm.DeltaSink

	// StructuredSchema, when non-empty, switches the run into
	// prompt_json mode: the model's final text must parse as JSON, or
	// Run fails with a StructuredOutputError. The schema itself is not
	// validated against; RunStructured embeds it, with the parse error,
	// in the prompt when it retries (spec §4.5).
	StructuredSchema json.RawMessage
}

// Outcome is what a completed run produced.
type Outcome struct {
	NewMessages  []convo.Message
	FinishReason string
	Turns        int
	StructuredOutput json.RawMessage
}

// Engine runs the bounded multi-turn agent loop described in spec §4.5:
// budget gate, retrying dispatch with full jitter, optional streaming
// with prefix-replay buffering, cost accounting, tool dispatch with
// per-call timeouts, and structured-output retries — all observed
// through an event stream.
type Engine struct {
	cfg    Config
	client llm.Client
	runID  string
	sink   Sink

	cost  *costAccountant
	cache map[string]llm.ChatResponse
}

// New returns an Engine bound to one LLM client for the lifetime of
// runID (a single agent run). The cost accountant and response cache
// are scoped to the Engine instance, matching the spec's "fires at most
// once over the agent's lifetime" alert semantics.
func New(client llm.Client, cfg Config, runID string, sink Sink) *Engine {
	if sink == nil {
		sink = NopSink{}
	}
	return &Engine{
		cfg:    cfg,
		client: client,
		runID:  runID,
		sink:   sink,
		cost:   newCostAccountant(cfg),
		cache:  make(map[string]llm.ChatResponse),
	}
}

// Run executes the bounded turn loop until the model stops requesting
// tools, max_turns is reached, or an unrecoverable error occurs.
func (e *Engine) Run(ctx context.Context, req Request) (Outcome, error) {
	em := newEmitter(e.runID, e.sink)
	em.agentStart(req.Model, req.Provider)

	messages := append([]convo.Message(nil), req.Messages...)
	var newMessages []convo.Message
	finishReason := ""

	maxTurns := e.cfg.maxTurns()
	turnsTaken := 0
	for turn := 0; turn < maxTurns; turn++ {
		em.setTurn(turn)

		if err := checkBudget(e.cfg, messages); err != nil {
			return Outcome{NewMessages: newMessages, Turns: turnsTaken}, err
		}

		chatReq := llm.ChatRequest{
			Model:     req.Model,
			System:    req.System,
			Messages:  messages,
			MaxTokens: e.cfg.MaxTokens,
			Stream:    req.Sink != nil,
		}
		if req.Registry != nil {
			chatReq.Tools = toolSpecs(req.Registry)
		}

		start := time.Now()
		resp, err := e.dispatch(ctx, chatReq, req.Sink)
		duration := time.Since(start)
		if err != nil {
			return Outcome{NewMessages: newMessages, Turns: turnsTaken}, err
		}

		cumulative, crossed := e.cost.add(resp.Usage.InputTokens, resp.Usage.OutputTokens)
		em.costUpdated(cumulative)
		for _, t := range crossed {
			em.costBudgetAlert(t, cumulative)
		}

		messages = append(messages, resp.Message)
		newMessages = append(newMessages, resp.Message)
		finishReason = resp.FinishReason

		toolCalls := resp.Message.ToolCalls()
		var toolResults []convo.ToolResult
		if len(toolCalls) > 0 && req.Registry != nil {
			toolResults = e.dispatchTools(ctx, em, req.Registry, req.Policy, toolCalls)
			resultMsg := convo.Message{Role: convo.RoleTool}
			for _, tr := range toolResults {
				resultMsg = resultMsg.WithToolResult(tr)
			}
			messages = append(messages, resultMsg)
			newMessages = append(newMessages, resultMsg)
		}

		em.turnEnd(resp.Usage, duration.Milliseconds(), resp.FinishReason, toolResults)
		turnsTaken++

		if len(toolCalls) == 0 {
			break
		}
	}

	outcome := Outcome{NewMessages: newMessages, FinishReason: finishReason, Turns: turnsTaken}

	if len(req.StructuredSchema) > 0 {
		structured, err := e.extractStructured(newMessages, req.StructuredSchema)
		if err != nil {
			em.agentEnd(newMessages)
			return outcome, err
		}
		outcome.StructuredOutput = structured
	}

	em.agentEnd(newMessages)
	return outcome, nil
}

// dispatch issues one chat request, retrying retryable failures with
// full-jitter exponential backoff (spec §4.5 step 3). Streaming
// responses bypass the response cache entirely; non-streaming
// responses are cached by request fingerprint.
func (e *Engine) dispatch(ctx context.Context, req llm.ChatRequest, sink llm.DeltaSink) (llm.ChatResponse, error) {
	var fp string
	if !req.Stream {
		fp = fingerprint(req)
		if cached, ok := e.cache[fp]; ok {
			return cached, nil
		}
	}

	var buf *streamBuffer
	var effectiveSink llm.DeltaSink
	if req.Stream && sink != nil {
		if e.cfg.StreamRetryWithBuffering {
			buf = newStreamBuffer(sink)
			effectiveSink = buf
		} else {
			effectiveSink = sink
		}
	}

	maxRetries := e.cfg.maxRetries()
	var lastErr error
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		if buf != nil {
			buf.NewAttempt()
		}

		reqCtx, cancel := context.WithTimeout(ctx, e.cfg.requestTimeout())
		resp, err := e.client.Complete(reqCtx, req, effectiveSink)
		cancel()
		if err == nil {
			if fp != "" {
				e.cache[fp] = resp
			}
			return resp, nil
		}
		lastErr = err
		if attempt > maxRetries || !llm.Retryable(err) {
			return llm.ChatResponse{}, err
		}

		delay := llm.FullJitterBackoff(attempt, e.cfg.initialBackoff(), e.cfg.maxBackoff())
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return llm.ChatResponse{}, ctx.Err()
		}
	}
	return llm.ChatResponse{}, lastErr
}

// dispatchTools runs every model-requested tool call in order, each
// bounded by the engine's tool timeout, and returns one ToolResult per
// call (spec §4.5 step 5).
func (e *Engine) dispatchTools(ctx context.Context, em *emitter, registry *tool.Registry, policy tool.Policy, calls []convo.ToolCall) []convo.ToolResult {
	results := make([]convo.ToolResult, 0, len(calls))
	for _, call := range calls {
		em.toolExecutionStart(call.ID, call.Name, len(call.Arguments))

		toolCtx, cancel := context.WithTimeout(ctx, e.cfg.toolTimeout())
		result, err := registry.Invoke(toolCtx, call.Name, call.Arguments, policy)
		timedOut := errors.Is(toolCtx.Err(), context.DeadlineExceeded)
		cancel()

		var tr convo.ToolResult
		switch {
		case timedOut && err != nil:
			tr = convo.ToolResult{
				ToolCallID: call.ID,
				Content:    fmt.Sprintf("timed out after %dms", e.cfg.toolTimeout().Milliseconds()),
				IsError:    true,
			}
		case err != nil:
			tr = convo.ToolResult{ToolCallID: call.ID, Content: err.Error(), IsError: true}
		default:
			tr = convo.ToolResult{ToolCallID: call.ID, Content: result.Payload, IsError: result.IsError}
		}

		em.toolExecutionEnd(call.ID, call.Name, tr.IsError, len(tr.Content))
		results = append(results, tr)
	}
	return results
}

// RunStructured drives prompt_json mode: it calls Run, and if the final
// text does not parse as JSON, appends a user message embedding
// the schema and the parse error and retries, up to
// StructuredOutputMaxRetries additional attempts, failing closed with a
// StructuredOutputError once exhausted (spec §4.5 structured output).
func (e *Engine) RunStructured(ctx context.Context, req Request, schema json.RawMessage) (Outcome, error) {
	req.StructuredSchema = schema
	maxAttempts := e.cfg.StructuredOutputMaxRetries + 1
	if e.cfg.StructuredOutputMaxRetries < 0 {
		maxAttempts = 1
	}

	var lastErr error
	messages := append([]convo.Message(nil), req.Messages...)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptReq := req
		attemptReq.Messages = messages

		outcome, err := e.Run(ctx, attemptReq)
		if err == nil {
			return outcome, nil
		}
		var structErr *StructuredOutputError
		if !errors.As(err, &structErr) {
			return outcome, err
		}
		lastErr = err
		messages = append(messages, outcome.NewMessages...)
		messages = append(messages, convo.Text(convo.RoleUser, fmt.Sprintf(
			"Your previous response did not match the required JSON schema %s: %v. Reply again with JSON matching the schema exactly.",
			string(schema), structErr.LastError,
		)))
	}
	return Outcome{}, &StructuredOutputError{Attempts: maxAttempts, LastError: lastErr}
}

// extractStructured parses the final assistant message's text as JSON.
// Callers in prompt_json mode are expected to retry the whole Run with
// the parse error embedded in a follow-up user message; this helper
// only performs the terminal parse check for the last attempt.
func (e *Engine) extractStructured(messages []convo.Message, schema json.RawMessage) (json.RawMessage, error) {
	var lastText string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == convo.RoleAssistant {
			lastText = messages[i].TextContent()
			break
		}
	}
	var doc any
	if err := json.Unmarshal([]byte(lastText), &doc); err != nil {
		return nil, &StructuredOutputError{Attempts: 1, LastError: err}
	}
	return json.RawMessage(lastText), nil
}

func toolSpecs(registry *tool.Registry) []llm.ToolSpec {
	specs := registry.Specs()
	out := make([]llm.ToolSpec, 0, len(specs))
	for _, s := range specs {
		out = append(out, llm.ToolSpec{Name: s.Name, Description: s.Description, Schema: s.Schema})
	}
	return out
}

// fingerprint derives a stable cache key from a non-streaming request.
func fingerprint(req llm.ChatRequest) string {
	b, err := json.Marshal(req)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
