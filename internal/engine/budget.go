package engine

import "github.com/njfio/tau-agent/pkg/convo"

// charsPerToken is the heuristic the budget gate uses to estimate token
// counts without invoking a real tokenizer (spec §4.5 step 2).
const charsPerToken = 4

// EstimateTokens approximates the token count of messages using the
// 4-chars-per-token heuristic over every text block, tool call
// argument blob, and tool result payload.
func EstimateTokens(messages []convo.Message) int {
	chars := 0
	for _, m := range messages {
		for _, b := range m.Content {
			switch b.Type {
			case convo.BlockText:
				chars += len(b.Text)
			case convo.BlockToolCall:
				if b.ToolCall != nil {
					chars += len(b.ToolCall.Name) + len(b.ToolCall.Arguments)
				}
			case convo.BlockToolResult:
				if b.ToolResult != nil {
					chars += len(b.ToolResult.Content)
				}
			}
		}
	}
	return (chars + charsPerToken - 1) / charsPerToken
}

// checkBudget implements spec §4.5 step 2: estimate input tokens plus
// configured max_tokens headroom, and fail closed before dispatch if
// either ceiling is exceeded.
func checkBudget(cfg Config, messages []convo.Message) error {
	estimatedInput := EstimateTokens(messages)
	if cfg.MaxEstimatedInputTokens > 0 && estimatedInput > cfg.MaxEstimatedInputTokens {
		return &TokenBudgetExceededError{Estimated: estimatedInput, Limit: cfg.MaxEstimatedInputTokens, Kind: "input"}
	}
	estimatedTotal := estimatedInput + cfg.MaxTokens
	if cfg.MaxEstimatedTotalTokens > 0 && estimatedTotal > cfg.MaxEstimatedTotalTokens {
		return &TokenBudgetExceededError{Estimated: estimatedTotal, Limit: cfg.MaxEstimatedTotalTokens, Kind: "total"}
	}
	return nil
}
