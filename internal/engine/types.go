package engine

import (
	"context"
	"fmt"
)

// MessageRole represents the role of a chat message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// ChatMessage is the provider-agnostic message we pass around.
type ChatMessage struct {
	Role    MessageRole
	Content string
	// Name carries the tool call ID for tool messages (providers use it to
	// match tool results to the originating call).
	Name string
	// ToolCalls stores the calls made by an assistant message; providers
	// require them when reconstructing assistant turns.
	ToolCalls []ToolCall
}

// Validate checks if the ChatMessage is valid.
func (m ChatMessage) Validate() error {
	switch m.Role {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
	default:
		return fmt.Errorf("invalid message role: %s", m.Role)
	}
	if m.Role == RoleTool && m.Name == "" {
		return fmt.Errorf("tool messages must have a Name field")
	}
	return nil
}

// Usage holds token accounting returned by providers.
type Usage struct {
	Prompt     int
	Completion int
	Total      int
}

// ToolCall represents a function/tool the assistant requested.
type ToolCall struct {
	ID   string // provider-issued tool call ID
	Name string
	Args map[string]any
}

// StreamEvent is one event from a streaming LLM call.
//
// The stream contract: zero or more "text_delta" events carry the visible
// token stream; "tool_call" events arrive as the provider completes each
// call block; an optional "usage" event reports token accounting. Tool
// calls are not acted on until the event channel closes, so buffering them
// until close yields the round's complete tool-call set.
type StreamEvent struct {
	Type     string // "text_delta" | "tool_call" | "usage"
	Text     string
	ToolCall ToolCall
	Usage    Usage
}

// ChatOptions keeps knobs forwarded to the provider SDK.
type ChatOptions struct {
	Temperature     float32
	MaxOutputTokens int
}

// ToolSchema is the JSON schema the provider expects for function calling.
type ToolSchema struct {
	Name        string
	Description string
	JSONSchema  string
}

// LLMClient abstracts the chosen SDK (OpenAI, Anthropic, ...).
//
// Stream issues one streaming chat call. Both channels are closed when the
// call settles; a non-nil value on the error channel aborts the round and
// must already be classified (FatalError for auth/4xx, TransientError for
// 429/5xx/network) so the retry policy can discriminate without inspecting
// provider-specific detail.
type LLMClient interface {
	Stream(ctx context.Context, model string, messages []ChatMessage, toolSchemas []ToolSchema, opts ChatOptions) (<-chan StreamEvent, <-chan error)
}
