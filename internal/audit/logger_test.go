package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/njfio/tau-agent/internal/engine"
	"github.com/njfio/tau-agent/pkg/llm"
)

func readRecords(t *testing.T, path string) []map[string]any {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	var recs []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(b))
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal(line, &rec); err != nil {
			t.Fatalf("unmarshal line %q: %v", line, err)
		}
		recs = append(recs, rec)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan %s: %v", path, err)
	}
	return recs
}

func TestToolAuditLoggerPairsStartAndEnd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")
	l, err := NewToolAuditLogger(Config{Enabled: true, Path: path, BufferSize: 4, FlushInterval: time.Hour})
	if err != nil {
		t.Fatalf("NewToolAuditLogger: %v", err)
	}

	start := time.Now()
	l.Emit(engine.Event{Type: engine.EventToolExecutionStart, RunID: "run-1", ToolCallID: "call-1", ToolName: "bash", ArgBytes: 42, Time: start})
	l.Emit(engine.Event{Type: engine.EventToolExecutionEnd, RunID: "run-1", ToolCallID: "call-1", ToolName: "bash", ResultBytes: 128, ToolError: false, Time: start.Add(50 * time.Millisecond)})

	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	recs := readRecords(t, path)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	rec := recs[0]
	if rec["kind"] != "tool_call" {
		t.Fatalf("unexpected kind: %v", rec["kind"])
	}
	if rec["tool_name"] != "bash" {
		t.Fatalf("unexpected tool_name: %v", rec["tool_name"])
	}
	if rec["arg_bytes"].(float64) != 42 {
		t.Fatalf("expected arg_bytes=42, got %v", rec["arg_bytes"])
	}
	if rec["result_bytes"].(float64) != 128 {
		t.Fatalf("expected result_bytes=128, got %v", rec["result_bytes"])
	}
	if rec["duration_ms"].(float64) < 40 {
		t.Fatalf("expected duration_ms >= 40, got %v", rec["duration_ms"])
	}
	if rec["is_error"] != false {
		t.Fatalf("expected is_error=false, got %v", rec["is_error"])
	}
}

func TestToolAuditLoggerRecordsErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")
	l, err := NewToolAuditLogger(Config{Enabled: true, Path: path, BufferSize: 4, FlushInterval: time.Hour})
	if err != nil {
		t.Fatalf("NewToolAuditLogger: %v", err)
	}

	now := time.Now()
	l.Emit(engine.Event{Type: engine.EventToolExecutionStart, RunID: "run-1", ToolCallID: "call-1", ToolName: "write_file", Time: now})
	l.Emit(engine.Event{Type: engine.EventToolExecutionEnd, RunID: "run-1", ToolCallID: "call-1", ToolName: "write_file", ToolError: true, Time: now.Add(time.Millisecond)})
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	recs := readRecords(t, path)
	if len(recs) != 1 || recs[0]["is_error"] != true {
		t.Fatalf("expected one errored record, got %+v", recs)
	}
}

func TestToolAuditLoggerDistinguishesConcurrentCallsByRunAndCallID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")
	l, err := NewToolAuditLogger(Config{Enabled: true, Path: path, BufferSize: 8, FlushInterval: time.Hour})
	if err != nil {
		t.Fatalf("NewToolAuditLogger: %v", err)
	}

	now := time.Now()
	l.Emit(engine.Event{Type: engine.EventToolExecutionStart, RunID: "run-a", ToolCallID: "call-1", ToolName: "bash", Time: now})
	l.Emit(engine.Event{Type: engine.EventToolExecutionStart, RunID: "run-b", ToolCallID: "call-1", ToolName: "bash", Time: now})
	l.Emit(engine.Event{Type: engine.EventToolExecutionEnd, RunID: "run-a", ToolCallID: "call-1", ToolName: "bash", Time: now.Add(time.Millisecond)})
	l.Emit(engine.Event{Type: engine.EventToolExecutionEnd, RunID: "run-b", ToolCallID: "call-1", ToolName: "bash", Time: now.Add(time.Millisecond)})
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	recs := readRecords(t, path)
	if len(recs) != 2 {
		t.Fatalf("expected 2 records for two distinct runs sharing a tool_call_id, got %d", len(recs))
	}
}

func TestPromptTelemetryLoggerCompletedRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")
	l, err := NewPromptTelemetryLogger(Config{Enabled: true, Path: path, BufferSize: 4, FlushInterval: time.Hour})
	if err != nil {
		t.Fatalf("NewPromptTelemetryLogger: %v", err)
	}

	start := time.Now()
	l.Emit(engine.Event{Type: engine.EventAgentStart, RunID: "run-1", Model: "gpt-4o", Provider: "openai", Time: start})
	l.Emit(engine.Event{Type: engine.EventTurnEnd, RunID: "run-1", Usage: llm.Usage{InputTokens: 100, OutputTokens: 50}, Time: start.Add(time.Millisecond)})
	l.Emit(engine.Event{Type: engine.EventTurnEnd, RunID: "run-1", Usage: llm.Usage{InputTokens: 20, OutputTokens: 10}, Time: start.Add(2 * time.Millisecond)})
	l.Emit(engine.Event{Type: engine.EventAgentEnd, RunID: "run-1", Time: start.Add(10 * time.Millisecond)})
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	recs := readRecords(t, path)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	rec := recs[0]
	if rec["status"] != "completed" || rec["success"] != true {
		t.Fatalf("expected completed/success, got %+v", rec)
	}
	if rec["turns"].(float64) != 2 {
		t.Fatalf("expected turns=2, got %v", rec["turns"])
	}
	if rec["input_tokens"].(float64) != 120 || rec["output_tokens"].(float64) != 60 {
		t.Fatalf("unexpected token totals: %+v", rec)
	}
	if rec["provider"] != "openai" || rec["model"] != "gpt-4o" {
		t.Fatalf("unexpected provider/model: %+v", rec)
	}
	policy, ok := rec["redaction_policy"].(map[string]any)
	if !ok || policy["prompt_content"] != "omitted" {
		t.Fatalf("expected redaction_policy.prompt_content=omitted, got %+v", rec["redaction_policy"])
	}
}

func TestPromptTelemetryLoggerSecondAgentStartFinalizesPriorAsInterrupted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")
	l, err := NewPromptTelemetryLogger(Config{Enabled: true, Path: path, BufferSize: 4, FlushInterval: time.Hour})
	if err != nil {
		t.Fatalf("NewPromptTelemetryLogger: %v", err)
	}

	start := time.Now()
	l.Emit(engine.Event{Type: engine.EventAgentStart, RunID: "run-1", Model: "gpt-4o", Time: start})
	l.Emit(engine.Event{Type: engine.EventTurnEnd, RunID: "run-1", Usage: llm.Usage{InputTokens: 10, OutputTokens: 5}, Time: start.Add(time.Millisecond)})
	// Crashed or resumed before agent_end: a second agent_start for the
	// same run_id arrives.
	l.Emit(engine.Event{Type: engine.EventAgentStart, RunID: "run-1", Model: "gpt-4o", Time: start.Add(5 * time.Second)})
	l.Emit(engine.Event{Type: engine.EventAgentEnd, RunID: "run-1", Time: start.Add(6 * time.Second)})
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	recs := readRecords(t, path)
	if len(recs) != 2 {
		t.Fatalf("expected 2 records (interrupted + completed), got %d: %+v", len(recs), recs)
	}
	if recs[0]["status"] != "interrupted" || recs[0]["success"] != false {
		t.Fatalf("expected first record interrupted, got %+v", recs[0])
	}
	if recs[0]["turns"].(float64) != 1 {
		t.Fatalf("expected the interrupted record to carry its one turn, got %+v", recs[0])
	}
	if recs[1]["status"] != "completed" {
		t.Fatalf("expected second record completed, got %+v", recs[1])
	}
}

func TestPromptTelemetryLoggerCloseFinalizesStillPendingRunsAsInterrupted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")
	l, err := NewPromptTelemetryLogger(Config{Enabled: true, Path: path, BufferSize: 4, FlushInterval: time.Hour})
	if err != nil {
		t.Fatalf("NewPromptTelemetryLogger: %v", err)
	}

	l.Emit(engine.Event{Type: engine.EventAgentStart, RunID: "run-1", Model: "gpt-4o", Time: time.Now()})
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	recs := readRecords(t, path)
	if len(recs) != 1 || recs[0]["status"] != "interrupted" {
		t.Fatalf("expected one interrupted record on shutdown, got %+v", recs)
	}
}

func TestPromptTelemetryLoggerIgnoresUnknownRunID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")
	l, err := NewPromptTelemetryLogger(Config{Enabled: true, Path: path, BufferSize: 4, FlushInterval: time.Hour})
	if err != nil {
		t.Fatalf("NewPromptTelemetryLogger: %v", err)
	}

	// turn_end/agent_end with no matching agent_start must not panic or
	// synthesize a record.
	l.Emit(engine.Event{Type: engine.EventTurnEnd, RunID: "ghost", Usage: llm.Usage{InputTokens: 1, OutputTokens: 1}, Time: time.Now()})
	l.Emit(engine.Event{Type: engine.EventAgentEnd, RunID: "ghost", Time: time.Now()})
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	recs := readRecords(t, path)
	if len(recs) != 0 {
		t.Fatalf("expected no records for an unknown run_id, got %+v", recs)
	}
}
