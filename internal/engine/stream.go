package engine

import (
	"sync"

	"github.com/njfio/tau-agent/pkg/llm"
)

// streamBuffer implements llm.DeltaSink with prefix-replay buffering
// across retry attempts. A streamed request that fails mid-stream and is
// retried starts a fresh attempt at the provider, but the caller has
// already delivered a prefix of text downstream; streamBuffer replays
// only the NEW suffix of each attempt's accumulated text so the caller
// never sees duplicated or rolled-back output (spec §4.5 streaming
// retry / §5).
type streamBuffer struct {
	mu sync.Mutex

	downstream llm.DeltaSink

	// highestDelivered is the length, in runes of accumulated text, that
	// has already been handed to downstream across all attempts so far.
	highestDelivered int

	// attemptText accumulates the current attempt's full text so far;
	// it resets to empty on NewAttempt.
	attemptText []rune
}

func newStreamBuffer(downstream llm.DeltaSink) *streamBuffer {
	return &streamBuffer{downstream: downstream}
}

// NewAttempt resets the per-attempt accumulator at the start of each
// retry. highestDelivered is untouched: it tracks what downstream has
// already seen, independent of how many attempts it took to get there.
func (b *streamBuffer) NewAttempt() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attemptText = nil
}

// OnDelta implements llm.DeltaSink. Tool-call deltas pass straight
// through since they are never replayed across attempts; text deltas
// are buffered and only the unseen suffix is forwarded.
func (b *streamBuffer) OnDelta(d llm.Delta) {
	if d.ToolCall != nil {
		b.downstream.OnDelta(d)
		return
	}
	if d.Text == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attemptText = append(b.attemptText, []rune(d.Text)...)
	if len(b.attemptText) <= b.highestDelivered {
		// This attempt has not yet caught up to what was already
		// delivered by a prior attempt; nothing new to forward.
		return
	}
	suffix := string(b.attemptText[b.highestDelivered:])
	b.highestDelivered = len(b.attemptText)
	b.downstream.OnDelta(llm.Delta{Text: suffix})
}
