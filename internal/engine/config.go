// Package engine implements the Agent Turn Engine described in spec
// §4.5 (C5): the bounded turn loop with budget gating, retry with full
// jitter, streaming prefix-replay, cost accounting, tool dispatch, and
// the event stream consumed by the prompt-telemetry logger.
package engine

import "time"

// Config bounds a single agent run. Every field has a sanitized
// default so a zero-value Config is never used directly (the
// DefaultConfig/sanitize idiom the teacher applies throughout
// internal/config).
type Config struct {
	MaxEstimatedInputTokens int
	MaxEstimatedTotalTokens int
	MaxTokens               int

	RequestTimeoutMs  int
	RequestMaxRetries int
	InitialBackoffMs  int
	MaxBackoffMs      int

	StreamRetryWithBuffering bool

	CostBudgetUSD       float64
	CostAlertThresholds []int
	InputRatePerMillion  float64
	OutputRatePerMillion float64

	ToolTimeoutMs int
	MaxTurns      int

	PromptJSON                 bool
	StructuredOutputMaxRetries int
}

// DefaultConfig returns the engine's baseline bounds.
func DefaultConfig() Config {
	return Config{
		MaxEstimatedInputTokens: 180_000,
		MaxEstimatedTotalTokens: 200_000,
		MaxTokens:               4_096,

		RequestTimeoutMs:  120_000,
		RequestMaxRetries: 3,
		InitialBackoffMs:  250,
		MaxBackoffMs:      10_000,

		StreamRetryWithBuffering: true,

		CostAlertThresholds: []int{80, 100},

		ToolTimeoutMs: 60_000,
		MaxTurns:      25,

		StructuredOutputMaxRetries: 2,
	}
}

func (c Config) requestTimeout() time.Duration {
	if c.RequestTimeoutMs <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

func (c Config) toolTimeout() time.Duration {
	if c.ToolTimeoutMs <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.ToolTimeoutMs) * time.Millisecond
}

func (c Config) initialBackoff() time.Duration {
	if c.InitialBackoffMs <= 0 {
		return 250 * time.Millisecond
	}
	return time.Duration(c.InitialBackoffMs) * time.Millisecond
}

func (c Config) maxBackoff() time.Duration {
	if c.MaxBackoffMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.MaxBackoffMs) * time.Millisecond
}

func (c Config) maxRetries() int {
	if c.RequestMaxRetries < 0 {
		return 0
	}
	return c.RequestMaxRetries
}

func (c Config) maxTurns() int {
	if c.MaxTurns <= 0 {
		return 25
	}
	return c.MaxTurns
}
