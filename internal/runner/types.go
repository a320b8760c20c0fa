// Package runner implements the Prompt Runner described in spec §4.6
// (C6): it wraps the Agent Turn Engine with cancellation/timeout
// handling and the atomicity contract that keeps the session file free
// of partial turns.
package runner

import "github.com/njfio/tau-agent/internal/tool"

// PromptRunStatus is the terminal outcome of one prompt run.
type PromptRunStatus string

const (
	StatusCompleted PromptRunStatus = "completed"
	StatusCancelled PromptRunStatus = "cancelled"
	StatusTimedOut  PromptRunStatus = "timed_out"
)

// RenderOptions carries the model/system-prompt/tooling configuration a
// prompt run is issued with.
type RenderOptions struct {
	Model    string
	Provider string
	System   string
	Registry *tool.Registry
	Policy   tool.Policy
}

// PlanStep is one numbered step of a validated plan (spec §4.6
// run_plan_first_prompt).
type PlanStep struct {
	Index int
	Text  string
}
