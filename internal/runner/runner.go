package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/njfio/tau-agent/internal/engine"
	"github.com/njfio/tau-agent/internal/session"
	"github.com/njfio/tau-agent/pkg/convo"
	"github.com/njfio/tau-agent/pkg/llm"
)

// Runner wraps the Agent Turn Engine with cancellation/timeout handling
// and the session-persistence atomicity contract (spec §4.6): the
// engine mutates an in-memory message list, and the runner persists to
// the session store only after the engine returns Completed.
type Runner struct {
	store  *session.Store
	client llm.Client
	cfg    engine.Config
	sink   engine.Sink
}

// New returns a Runner driving store via client under cfg. sink may be
// nil, in which case every run's event stream is discarded.
func New(store *session.Store, client llm.Client, cfg engine.Config, sink engine.Sink) *Runner {
	return &Runner{store: store, client: client, cfg: cfg, sink: sink}
}

// runOutcome carries an Engine.Run result across the goroutine boundary.
type runOutcome struct {
	outcome engine.Outcome
	err     error
}

// RunPromptWithCancellation drives one user prompt through the engine,
// racing completion against cancelSignal and turn_timeout_ms. On
// Cancelled or TimedOut the session file is left exactly as it was
// before the call: the runner never persists a partial turn (spec §4.6
// atomicity contract, tested by asserting on-disk entry count is
// unchanged).
func (r *Runner) RunPromptWithCancellation(
	ctx context.Context,
	prompt string,
	turnTimeoutMs int,
	cancelSignal <-chan struct{},
	opts RenderOptions,
) (PromptRunStatus, engine.Outcome, error) {
	head, err := r.store.EnsureInitialized(ctx, opts.System)
	if err != nil {
		return "", engine.Outcome{}, fmt.Errorf("runner: initialize session: %w", err)
	}

	lineage, err := r.store.LineageMessages(head)
	if err != nil {
		return "", engine.Outcome{}, fmt.Errorf("runner: load lineage: %w", err)
	}

	userMsg := convo.Text(convo.RoleUser, prompt)
	messages := append(append([]convo.Message(nil), lineage...), userMsg)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var timeoutC <-chan time.Time
	if turnTimeoutMs > 0 {
		timer := time.NewTimer(time.Duration(turnTimeoutMs) * time.Millisecond)
		defer timer.Stop()
		timeoutC = timer.C
	}

	resultC := make(chan runOutcome, 1)
	eng := engine.New(r.client, r.cfg, runID(), r.sink)
	go func() {
		outcome, err := eng.Run(runCtx, engine.Request{
			Model:    opts.Model,
			Provider: opts.Provider,
			System:   opts.System,
			Messages: messages,
			Registry: opts.Registry,
			Policy:   opts.Policy,
		})
		resultC <- runOutcome{outcome: outcome, err: err}
	}()

	select {
	case res := <-resultC:
		if res.err != nil {
			return "", res.outcome, res.err
		}
		newHead, err := r.store.AppendMessages(ctx, &head, append([]convo.Message{userMsg}, res.outcome.NewMessages...))
		if err != nil {
			return "", res.outcome, fmt.Errorf("runner: persist turn: %w", err)
		}
		_ = newHead
		return StatusCompleted, res.outcome, nil

	case <-cancelSignal:
		cancel()
		<-resultC // let the engine goroutine unwind before returning
		return StatusCancelled, engine.Outcome{}, nil

	case <-timeoutC:
		cancel()
		<-resultC
		return StatusTimedOut, engine.Outcome{}, nil
	}
}

// RunPlanFirstPrompt splits the run into a planner phase (the model
// produces a numbered plan) and an executor phase fed the validated
// plan. A plan exceeding maxPlanSteps is rejected before the executor
// phase ever runs (spec §4.6 run_plan_first_prompt).
func (r *Runner) RunPlanFirstPrompt(
	ctx context.Context,
	prompt string,
	turnTimeoutMs, maxPlanSteps int,
	cancelSignal <-chan struct{},
	opts RenderOptions,
) (PromptRunStatus, engine.Outcome, error) {
	planPrompt := fmt.Sprintf(
		"%s\n\nRespond with only a numbered plan (one step per line, \"1. ...\", \"2. ...\") for how you will address this request. Do not start executing yet.",
		prompt,
	)
	status, planOutcome, err := r.RunPromptWithCancellation(ctx, planPrompt, turnTimeoutMs, cancelSignal, opts)
	if err != nil || status != StatusCompleted {
		return status, planOutcome, err
	}

	steps := parsePlanSteps(lastAssistantText(planOutcome.NewMessages))
	if maxPlanSteps > 0 && len(steps) > maxPlanSteps {
		return "", engine.Outcome{}, &PlanTooLongError{Steps: len(steps), Limit: maxPlanSteps}
	}

	const execPrompt = "Execute the plan above now, step by step."
	return r.RunPromptWithCancellation(ctx, execPrompt, turnTimeoutMs, cancelSignal, opts)
}

func lastAssistantText(messages []convo.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == convo.RoleAssistant {
			return messages[i].TextContent()
		}
	}
	return ""
}
