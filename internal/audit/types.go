// Package audit records what an agent run actually did, in a form an
// operator can replay without trusting the run's own narration: one
// JSONL line per tool call and one per prompt run, written as the
// engine's event stream produces them.
//
// Prompt content is never recorded. Every prompt_run record carries a
// fixed RedactionPolicy documenting that omission so a reader of the
// file doesn't have to infer it.
package audit

import "time"

// RecordKind discriminates the two record shapes that share one audit
// file.
type RecordKind string

const (
	KindToolCall  RecordKind = "tool_call"
	KindPromptRun RecordKind = "prompt_run"
)

// RunStatus is the terminal state of a prompt_run record.
type RunStatus string

const (
	StatusCompleted   RunStatus = "completed"
	StatusInterrupted RunStatus = "interrupted"
)

// RedactionPolicy documents what was deliberately left out of a
// record. Only PromptContent exists today; the field is a struct
// rather than a bare string so future omissions (e.g. tool arguments)
// have somewhere to go without changing the record shape again.
type RedactionPolicy struct {
	PromptContent string `json:"prompt_content"`
}

// defaultRedactionPolicy is attached to every prompt_run record.
func defaultRedactionPolicy() RedactionPolicy {
	return RedactionPolicy{PromptContent: "omitted"}
}

// ToolCallRecord is one line of the audit file: the full lifecycle of
// a single tool invocation, written once its result is known.
type ToolCallRecord struct {
	Kind        RecordKind `json:"kind"`
	RunID       string     `json:"run_id"`
	ToolCallID  string     `json:"tool_call_id"`
	ToolName    string     `json:"tool_name"`
	StartedAt   time.Time  `json:"started_at"`
	DurationMs  int64      `json:"duration_ms"`
	ArgBytes    int        `json:"arg_bytes"`
	ResultBytes int        `json:"result_bytes"`
	IsError     bool       `json:"is_error"`
}

// PromptRunRecord is one line of the audit file: the lifecycle of a
// single engine run, from agent_start to its terminal state.
type PromptRunRecord struct {
	Kind            RecordKind      `json:"kind"`
	RunID           string          `json:"run_id"`
	Provider        string          `json:"provider,omitempty"`
	Model           string          `json:"model,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	EndedAt         time.Time       `json:"ended_at"`
	Turns           int             `json:"turns"`
	InputTokens     int             `json:"input_tokens"`
	OutputTokens    int             `json:"output_tokens"`
	Status          RunStatus       `json:"status"`
	Success         bool            `json:"success"`
	RedactionPolicy RedactionPolicy `json:"redaction_policy"`
}

// Config configures both the tool-call and prompt-run loggers. They
// are expected to share one audit file (Path) so summarize_audit_file
// only has to open one thing, but a caller that wants them split can
// construct two Configs with different paths.
type Config struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Path is the JSONL file records are appended to. Created if it
	// does not exist.
	Path string `json:"path" yaml:"path"`

	// BufferSize is the depth of the async write queue.
	BufferSize int `json:"buffer_size" yaml:"buffer_size"`

	// FlushInterval bounds how long a buffered record can sit
	// unwritten when no new record arrives to push it out.
	FlushInterval time.Duration `json:"flush_interval" yaml:"flush_interval"`
}

// DefaultConfig returns sane defaults for an enabled audit trail
// writing to auditPath.
func DefaultConfig(auditPath string) Config {
	return Config{
		Enabled:       true,
		Path:          auditPath,
		BufferSize:    256,
		FlushInterval: 2 * time.Second,
	}
}
