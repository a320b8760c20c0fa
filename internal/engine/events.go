package engine

import (
	"sync/atomic"
	"time"

	"github.com/njfio/tau-agent/pkg/convo"
	"github.com/njfio/tau-agent/pkg/llm"
)

// EventType tags the kind of Event emitted by the turn loop.
type EventType string

const (
	EventAgentStart        EventType = "agent_start"
	EventTurnEnd           EventType = "turn_end"
	EventToolExecutionStart EventType = "tool_execution_start"
	EventToolExecutionEnd   EventType = "tool_execution_end"
	EventCostUpdated       EventType = "cost_updated"
	EventCostBudgetAlert   EventType = "cost_budget_alert"
	EventAgentEnd          EventType = "agent_end"
)

// Event is one point on the engine's event stream. Exactly the fields
// relevant to Type are populated.
type Event struct {
	Sequence uint64    `json:"sequence"`
	Time     time.Time `json:"time"`
	Type     EventType `json:"type"`
	RunID    string    `json:"run_id"`
	Turn     int       `json:"turn"`

	// AgentStart
	Model    string `json:"model,omitempty"`
	Provider string `json:"provider,omitempty"`

	// TurnEnd
	Usage             llm.Usage `json:"usage,omitzero"`
	RequestDurationMs int64     `json:"request_duration_ms,omitempty"`
	FinishReason      string    `json:"finish_reason,omitempty"`
	ToolResults       []convo.ToolResult `json:"tool_results,omitempty"`

	// ToolExecutionStart/End
	ToolCallID  string `json:"tool_call_id,omitempty"`
	ToolName    string `json:"tool_name,omitempty"`
	ToolError   bool   `json:"tool_error,omitempty"`
	ArgBytes    int    `json:"arg_bytes,omitempty"`
	ResultBytes int    `json:"result_bytes,omitempty"`

	// CostUpdated
	CumulativeCostUSD float64 `json:"cumulative_cost_usd,omitempty"`

	// CostBudgetAlert
	ThresholdPercent int `json:"threshold_percent,omitempty"`

	// AgentEnd
	NewMessages []convo.Message `json:"new_messages,omitempty"`
}

// Sink receives Events as the turn loop produces them. Implementations
// must not block the loop for long.
type Sink interface {
	Emit(e Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(e Event)

// Emit implements Sink.
func (f SinkFunc) Emit(e Event) { f(e) }

// NopSink discards every event.
type NopSink struct{}

// Emit implements Sink.
func (NopSink) Emit(Event) {}

// MultiSink fans one event stream out to several sinks in order, so a
// run can be observed by, for example, an audit logger and a caller's
// own streaming sink at once.
type MultiSink []Sink

// Emit implements Sink.
func (m MultiSink) Emit(e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(e)
		}
	}
}

// emitter assigns monotonic sequence numbers to events and dispatches
// them to a Sink, tracking the current turn for convenience.
type emitter struct {
	runID    string
	sequence uint64
	turn     int
	sink     Sink
}

func newEmitter(runID string, sink Sink) *emitter {
	if sink == nil {
		sink = NopSink{}
	}
	return &emitter{runID: runID, sink: sink}
}

func (e *emitter) setTurn(turn int) { e.turn = turn }

func (e *emitter) nextSeq() uint64 { return atomic.AddUint64(&e.sequence, 1) }

func (e *emitter) base(t EventType) Event {
	return Event{
		Sequence: e.nextSeq(),
		Time:     time.Now(),
		Type:     t,
		RunID:    e.runID,
		Turn:     e.turn,
	}
}

func (e *emitter) agentStart(model, provider string) {
	ev := e.base(EventAgentStart)
	ev.Model = model
	ev.Provider = provider
	e.sink.Emit(ev)
}

func (e *emitter) turnEnd(usage llm.Usage, durationMs int64, finishReason string, toolResults []convo.ToolResult) {
	ev := e.base(EventTurnEnd)
	ev.Usage = usage
	ev.RequestDurationMs = durationMs
	ev.FinishReason = finishReason
	ev.ToolResults = toolResults
	e.sink.Emit(ev)
}

func (e *emitter) toolExecutionStart(callID, name string, argBytes int) {
	ev := e.base(EventToolExecutionStart)
	ev.ToolCallID = callID
	ev.ToolName = name
	ev.ArgBytes = argBytes
	e.sink.Emit(ev)
}

func (e *emitter) toolExecutionEnd(callID, name string, isError bool, resultBytes int) {
	ev := e.base(EventToolExecutionEnd)
	ev.ToolCallID = callID
	ev.ToolName = name
	ev.ToolError = isError
	ev.ResultBytes = resultBytes
	e.sink.Emit(ev)
}

func (e *emitter) costUpdated(cumulativeUSD float64) {
	ev := e.base(EventCostUpdated)
	ev.CumulativeCostUSD = cumulativeUSD
	e.sink.Emit(ev)
}

func (e *emitter) costBudgetAlert(thresholdPercent int, cumulativeUSD float64) {
	ev := e.base(EventCostBudgetAlert)
	ev.ThresholdPercent = thresholdPercent
	ev.CumulativeCostUSD = cumulativeUSD
	e.sink.Emit(ev)
}

func (e *emitter) agentEnd(newMessages []convo.Message) {
	ev := e.base(EventAgentEnd)
	ev.NewMessages = newMessages
	e.sink.Emit(ev)
}
