package runner

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/njfio/tau-agent/internal/engine"
	"github.com/njfio/tau-agent/internal/session"
	"github.com/njfio/tau-agent/pkg/convo"
	"github.com/njfio/tau-agent/pkg/llm"
)

// sleepyClient blocks until its context is cancelled or sleepFor elapses,
// whichever comes first, then either returns a canned response or the
// context's error.
type sleepyClient struct {
	sleepFor int
	response llm.ChatResponse
}

func (c *sleepyClient) Name() string { return "sleepy" }

func (c *sleepyClient) Complete(ctx context.Context, req llm.ChatRequest, sink llm.DeltaSink) (llm.ChatResponse, error) {
	select {
	case <-time.After(time.Duration(c.sleepFor) * time.Millisecond):
		return c.response, nil
	case <-ctx.Done():
		return llm.ChatResponse{}, ctx.Err()
	}
}

func newTestStore(t *testing.T) *session.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.jsonl")
	store, err := session.Load(path, session.Options{})
	if err != nil {
		t.Fatalf("session.Load: %v", err)
	}
	return store
}

func finalResponse(text string) llm.ChatResponse {
	return llm.ChatResponse{
		Message:      convo.Text(convo.RoleAssistant, text),
		FinishReason: "stop",
		Usage:        llm.Usage{InputTokens: 1, OutputTokens: 1},
	}
}

func TestRunPromptWithCancellationCompletesAndPersists(t *testing.T) {
	store := newTestStore(t)
	client := &sleepyClient{sleepFor: 1, response: finalResponse("hi there")}
	r := New(store, client, engine.DefaultConfig(), nil)

	status, outcome, err := r.RunPromptWithCancellation(
		context.Background(), "hello", 0, nil, RenderOptions{Model: "m", System: "sys"},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusCompleted {
		t.Fatalf("status = %v, want Completed", status)
	}
	if outcome.Turns != 1 {
		t.Fatalf("Turns = %d, want 1", outcome.Turns)
	}

	// root (system) + user prompt + assistant reply = 3 entries
	if store.Len() != 3 {
		t.Fatalf("store.Len() = %d, want 3", store.Len())
	}
}

func TestRunPromptWithCancellationPreservesSessionOnCancel(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.EnsureInitialized(context.Background(), "sys"); err != nil {
		t.Fatalf("EnsureInitialized: %v", err)
	}
	before := store.Len()

	client := &sleepyClient{sleepFor: 5000, response: finalResponse("too slow")}
	r := New(store, client, engine.DefaultConfig(), nil)

	readyCancel := make(chan struct{})
	close(readyCancel)

	status, outcome, err := r.RunPromptWithCancellation(
		context.Background(), "hello", 0, readyCancel, RenderOptions{Model: "m", System: "sys"},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusCancelled {
		t.Fatalf("status = %v, want Cancelled", status)
	}
	if outcome.Turns != 0 {
		t.Fatalf("outcome should be empty on cancel, got Turns=%d", outcome.Turns)
	}
	if store.Len() != before {
		t.Fatalf("store.Len() = %d, want unchanged %d", store.Len(), before)
	}
}

func TestRunPromptWithCancellationTimesOutAndPreservesSession(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.EnsureInitialized(context.Background(), "sys"); err != nil {
		t.Fatalf("EnsureInitialized: %v", err)
	}
	before := store.Len()

	client := &sleepyClient{sleepFor: 5000, response: finalResponse("too slow")}
	r := New(store, client, engine.DefaultConfig(), nil)

	status, _, err := r.RunPromptWithCancellation(
		context.Background(), "hello", 20, nil, RenderOptions{Model: "m", System: "sys"},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusTimedOut {
		t.Fatalf("status = %v, want TimedOut", status)
	}
	if store.Len() != before {
		t.Fatalf("store.Len() = %d, want unchanged %d", store.Len(), before)
	}
}

func TestParsePlanStepsExtractsNumberedLines(t *testing.T) {
	text := "Here is my plan:\n1. Read the file\n2. Edit it\n3. Run tests\nThanks!"
	steps := parsePlanSteps(text)
	if len(steps) != 3 {
		t.Fatalf("len(steps) = %d, want 3", len(steps))
	}
	if steps[0].Text != "Read the file" || steps[2].Text != "Run tests" {
		t.Fatalf("unexpected step text: %+v", steps)
	}
}

func TestRunPlanFirstPromptRejectsOverlongPlan(t *testing.T) {
	store := newTestStore(t)
	client := &sleepyClient{sleepFor: 1, response: finalResponse("1. one\n2. two\n3. three\n4. four")}
	r := New(store, client, engine.DefaultConfig(), nil)

	_, _, err := r.RunPlanFirstPrompt(context.Background(), "do the thing", 0, 2, nil, RenderOptions{Model: "m", System: "sys"})
	if err == nil {
		t.Fatal("expected PlanTooLongError")
	}
	planErr, ok := err.(*PlanTooLongError)
	if !ok {
		t.Fatalf("err type = %T, want *PlanTooLongError", err)
	}
	if planErr.Steps != 4 || planErr.Limit != 2 {
		t.Fatalf("planErr = %+v, want Steps=4 Limit=2", planErr)
	}
}
