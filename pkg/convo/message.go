// Package convo defines the provider-agnostic message and content-block
// types shared by the session store, the agent turn engine, and the
// channel bridges.
package convo

import "encoding/json"

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// BlockType tags the kind of content carried by a Block.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolCall   BlockType = "tool_call"
	BlockToolResult BlockType = "tool_result"
)

// Block is one tagged unit of message content. Exactly one of the typed
// fields is populated, matching the Type tag.
type Block struct {
	Type BlockType `json:"type"`

	// Text carries BlockText content.
	Text string `json:"text,omitempty"`

	// ToolCall carries BlockToolCall content: a model-requested invocation.
	ToolCall *ToolCall `json:"tool_call,omitempty"`

	// ToolResult carries BlockToolResult content: the outcome of a call.
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// ToolCall represents the model's request to execute a named tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult represents the recorded outcome of a tool invocation.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Message is one turn in a conversation: a role and an ordered sequence
// of content blocks.
type Message struct {
	Role       Role    `json:"role"`
	Content    []Block `json:"content"`
	ToolCallID string  `json:"tool_call_id,omitempty"`
	IsError    bool    `json:"is_error,omitempty"`
}

// Text returns a new text-only message for the given role.
func Text(role Role, text string) Message {
	return Message{Role: role, Content: []Block{{Type: BlockText, Text: text}}}
}

// TextContent concatenates every text block in the message. Tool-call and
// tool-result blocks are ignored.
func (m Message) TextContent() string {
	var out string
	for _, b := range m.Content {
		if b.Type == BlockText {
			out += b.Text
		}
	}
	return out
}

// ToolCalls returns every tool-call block's payload, in order.
func (m Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, b := range m.Content {
		if b.Type == BlockToolCall && b.ToolCall != nil {
			calls = append(calls, *b.ToolCall)
		}
	}
	return calls
}

// ToolResults returns every tool-result block's payload, in order.
func (m Message) ToolResults() []ToolResult {
	var results []ToolResult
	for _, b := range m.Content {
		if b.Type == BlockToolResult && b.ToolResult != nil {
			results = append(results, *b.ToolResult)
		}
	}
	return results
}

// WithToolCall appends a tool-call block and returns the message.
func (m Message) WithToolCall(tc ToolCall) Message {
	m.Content = append(m.Content, Block{Type: BlockToolCall, ToolCall: &tc})
	return m
}

// WithToolResult appends a tool-result block and returns the message.
func (m Message) WithToolResult(tr ToolResult) Message {
	m.Content = append(m.Content, Block{Type: BlockToolResult, ToolResult: &tr})
	return m
}
