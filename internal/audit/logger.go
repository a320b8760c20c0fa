package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/njfio/tau-agent/internal/engine"
)

// jsonlWriter appends JSON lines to a file from a single background
// goroutine, so concurrent Emit calls from the engine's turn loop
// never interleave partial writes. Buffered with the same
// drain-on-Close discipline as the rest of the runtime's async
// writers: nothing queued is ever silently dropped.
type jsonlWriter struct {
	file   *os.File
	buffer chan []byte
	done   chan struct{}
	wg     sync.WaitGroup
}

func newJSONLWriter(cfg Config) (*jsonlWriter, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("audit: config path is empty")
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", cfg.Path, err)
	}
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 256
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 2 * time.Second
	}
	w := &jsonlWriter{
		file:   f,
		buffer: make(chan []byte, bufferSize),
		done:   make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run(flushInterval)
	return w, nil
}

func (w *jsonlWriter) run(flushInterval time.Duration) {
	defer w.wg.Done()
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case line := <-w.buffer:
			w.writeLine(line)
		case <-ticker.C:
			w.drain()
		case <-w.done:
			w.drain()
			return
		}
	}
}

func (w *jsonlWriter) drain() {
	for {
		select {
		case line := <-w.buffer:
			w.writeLine(line)
		default:
			return
		}
	}
}

func (w *jsonlWriter) writeLine(line []byte) {
	line = append(line, '\n')
	if _, err := w.file.Write(line); err != nil {
		fmt.Fprintf(os.Stderr, "audit: write failed: %v\n", err)
	}
}

// enqueue appends a record, writing synchronously if the buffer is
// full rather than dropping it.
func (w *jsonlWriter) enqueue(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit: marshal failed: %v\n", err)
		return
	}
	select {
	case w.buffer <- b:
	default:
		w.writeLine(b)
	}
}

func (w *jsonlWriter) Close() error {
	close(w.done)
	w.wg.Wait()
	return w.file.Close()
}

// pendingToolCall tracks a tool_execution_start until its matching end
// event arrives.
type pendingToolCall struct {
	toolName  string
	argBytes  int
	startedAt time.Time
}

// ToolAuditLogger is an engine.Sink that pairs tool_execution_start
// and tool_execution_end events into one ToolCallRecord per call, with
// argument/result byte sizes and wall-clock duration (spec §4.11).
type ToolAuditLogger struct {
	writer *jsonlWriter

	mu      sync.Mutex
	pending map[string]pendingToolCall
}

// NewToolAuditLogger opens cfg.Path for append and returns a logger
// ready to receive engine events. Callers must call Close to flush
// and release the file handle.
func NewToolAuditLogger(cfg Config) (*ToolAuditLogger, error) {
	w, err := newJSONLWriter(cfg)
	if err != nil {
		return nil, err
	}
	return &ToolAuditLogger{writer: w, pending: make(map[string]pendingToolCall)}, nil
}

// Emit implements engine.Sink.
func (l *ToolAuditLogger) Emit(e engine.Event) {
	key := e.RunID + "/" + e.ToolCallID
	switch e.Type {
	case engine.EventToolExecutionStart:
		l.mu.Lock()
		l.pending[key] = pendingToolCall{toolName: e.ToolName, argBytes: e.ArgBytes, startedAt: e.Time}
		l.mu.Unlock()

	case engine.EventToolExecutionEnd:
		l.mu.Lock()
		start, ok := l.pending[key]
		delete(l.pending, key)
		l.mu.Unlock()
		if !ok {
			// No matching start: the logger was attached mid-run.
			// Record what we know rather than drop the call.
			start = pendingToolCall{toolName: e.ToolName, startedAt: e.Time}
		}
		l.writer.enqueue(ToolCallRecord{
			Kind:        KindToolCall,
			RunID:       e.RunID,
			ToolCallID:  e.ToolCallID,
			ToolName:    e.ToolName,
			StartedAt:   start.startedAt,
			DurationMs:  e.Time.Sub(start.startedAt).Milliseconds(),
			ArgBytes:    start.argBytes,
			ResultBytes: e.ResultBytes,
			IsError:     e.ToolError,
		})
	}
}

// Close flushes any buffered records and closes the audit file.
func (l *ToolAuditLogger) Close() error {
	return l.writer.Close()
}

// PromptTelemetryLogger is an engine.Sink driving a small state
// machine per run_id: agent_start opens a PromptRunRecord, turn_end
// accumulates usage into it, and agent_end finalizes it as completed.
// A second agent_start for a run_id still pending finalizes the prior
// record as interrupted first (spec §4.11) — the run_id was reused
// without the original run ever reaching agent_end, which only
// happens when it was cut off mid-flight.
type PromptTelemetryLogger struct {
	writer *jsonlWriter

	mu      sync.Mutex
	pending map[string]*PromptRunRecord
}

// NewPromptTelemetryLogger opens cfg.Path for append. Callers must
// call Close to finalize any still-pending records and release the
// file handle.
func NewPromptTelemetryLogger(cfg Config) (*PromptTelemetryLogger, error) {
	w, err := newJSONLWriter(cfg)
	if err != nil {
		return nil, err
	}
	return &PromptTelemetryLogger{writer: w, pending: make(map[string]*PromptRunRecord)}, nil
}

// Emit implements engine.Sink.
func (l *PromptTelemetryLogger) Emit(e engine.Event) {
	switch e.Type {
	case engine.EventAgentStart:
		l.mu.Lock()
		if prior, ok := l.pending[e.RunID]; ok {
			l.finalizeLocked(prior, e.Time, StatusInterrupted, false)
		}
		l.pending[e.RunID] = &PromptRunRecord{
			Kind:      KindPromptRun,
			RunID:     e.RunID,
			Provider:  e.Provider,
			Model:     e.Model,
			StartedAt: e.Time,
		}
		l.mu.Unlock()

	case engine.EventTurnEnd:
		l.mu.Lock()
		if rec, ok := l.pending[e.RunID]; ok {
			rec.Turns++
			rec.InputTokens += e.Usage.InputTokens
			rec.OutputTokens += e.Usage.OutputTokens
		}
		l.mu.Unlock()

	case engine.EventAgentEnd:
		l.mu.Lock()
		if rec, ok := l.pending[e.RunID]; ok {
			l.finalizeLocked(rec, e.Time, StatusCompleted, true)
			delete(l.pending, e.RunID)
		}
		l.mu.Unlock()
	}
}

// finalizeLocked writes rec as a terminal record. Callers hold l.mu.
func (l *PromptTelemetryLogger) finalizeLocked(rec *PromptRunRecord, endedAt time.Time, status RunStatus, success bool) {
	rec.EndedAt = endedAt
	rec.Status = status
	rec.Success = success
	rec.RedactionPolicy = defaultRedactionPolicy()
	l.writer.enqueue(*rec)
}

// Close finalizes any run that never reached agent_end as interrupted,
// flushes buffered records, and closes the audit file.
func (l *PromptTelemetryLogger) Close() error {
	l.mu.Lock()
	now := time.Now()
	for runID, rec := range l.pending {
		l.finalizeLocked(rec, now, StatusInterrupted, false)
		delete(l.pending, runID)
	}
	l.mu.Unlock()
	return l.writer.Close()
}
