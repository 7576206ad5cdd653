// Package providers adapts vendor SDKs to the engine.LLMClient contract.
// Each client converts the engine's neutral message format to the vendor's
// wire shapes and classifies errors so the run-loop can retry sensibly.
package providers

import (
	"context"
	"encoding/json"
	"fmt"

	anthropic "github.com/liushuangls/go-anthropic/v2"

	"github.com/ChamsBouzaiene/tern/internal/engine"
)

// AnthropicClient implements engine.LLMClient via the Anthropic SDK.
type AnthropicClient struct {
	client *anthropic.Client
}

// NewAnthropicClient creates an Anthropic-backed client.
func NewAnthropicClient(apiKey string) *AnthropicClient {
	return &AnthropicClient{client: anthropic.NewClient(apiKey)}
}

// convertMessages maps the engine's neutral history to Anthropic's format.
// Tool results become user messages carrying tool_result blocks, and they
// are only valid directly after an assistant message with tool_use blocks.
func convertMessages(messages []engine.ChatMessage) ([]anthropic.MessageSystemPart, []anthropic.Message) {
	var systemParts []anthropic.MessageSystemPart
	var msgs []anthropic.Message
	var prevAssistantHadToolCalls bool

	for i, msg := range messages {
		switch msg.Role {
		case engine.RoleSystem:
			systemParts = append(systemParts, anthropic.MessageSystemPart{
				Type: "text",
				Text: msg.Content,
			})
			prevAssistantHadToolCalls = false

		case engine.RoleUser:
			msgs = append(msgs, anthropic.Message{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(msg.Content)},
			})
			prevAssistantHadToolCalls = false

		case engine.RoleAssistant:
			var content []anthropic.MessageContent
			if msg.Content != "" {
				content = append(content, anthropic.NewTextMessageContent(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				argsJSON, _ := json.Marshal(tc.Args)
				content = append(content, anthropic.NewToolUseMessageContent(tc.ID, tc.Name, json.RawMessage(argsJSON)))
			}
			msgs = append(msgs, anthropic.Message{
				Role:    anthropic.RoleAssistant,
				Content: content,
			})
			prevAssistantHadToolCalls = len(msg.ToolCalls) > 0

		case engine.RoleTool:
			// Skip orphaned tool results to avoid API rejection.
			if !prevAssistantHadToolCalls {
				continue
			}
			content := msg.Content
			if content == "" {
				content = "{}"
			}
			// msg.Name carries the tool_use_id.
			msgs = append(msgs, anthropic.Message{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewToolResultMessageContent(msg.Name, content, false)},
			})
			if i+1 < len(messages) && messages[i+1].Role == engine.RoleAssistant {
				prevAssistantHadToolCalls = false
			}
		}
	}
	return systemParts, msgs
}

func convertToolDefs(toolSchemas []engine.ToolSchema) ([]anthropic.ToolDefinition, error) {
	var defs []anthropic.ToolDefinition
	for _, ts := range toolSchemas {
		var schemaObj map[string]any
		if err := json.Unmarshal([]byte(ts.JSONSchema), &schemaObj); err != nil {
			return nil, fmt.Errorf("invalid tool schema JSON for %s: %w", ts.Name, err)
		}
		defs = append(defs, anthropic.ToolDefinition{
			Name:        ts.Name,
			Description: ts.Description,
			InputSchema: schemaObj,
		})
	}
	return defs, nil
}

// Stream implements engine.LLMClient.Stream. The SDK uses callback-based
// streaming, adapted here to channels.
func (c *AnthropicClient) Stream(ctx context.Context, modelName string, messages []engine.ChatMessage, toolSchemas []engine.ToolSchema, opts engine.ChatOptions) (<-chan engine.StreamEvent, <-chan error) {
	eventCh := make(chan engine.StreamEvent, 10)
	errCh := make(chan error, 1)

	go func() {
		defer close(eventCh)
		defer close(errCh)

		systemParts, msgs := convertMessages(messages)
		toolDefs, err := convertToolDefs(toolSchemas)
		if err != nil {
			errCh <- &engine.FatalError{Err: err}
			return
		}

		maxTokens := 4096
		if opts.MaxOutputTokens > 0 {
			maxTokens = opts.MaxOutputTokens
		}
		temperature := float32(0.1)
		if opts.Temperature > 0 {
			temperature = opts.Temperature
		}

		req := anthropic.MessagesStreamRequest{
			MessagesRequest: anthropic.MessagesRequest{
				Model:       anthropic.Model(modelName),
				Messages:    msgs,
				MaxTokens:   maxTokens,
				Temperature: &temperature,
			},
		}
		if len(systemParts) > 0 {
			req.MultiSystem = systemParts
		}
		if len(toolDefs) > 0 {
			req.Tools = toolDefs
		}

		req.OnError = func(errResp anthropic.ErrorResponse) {
			select {
			case errCh <- engine.ClassifyProviderError(fmt.Errorf("anthropic streaming error: %s", errResp.Error.Message), 0):
			case <-ctx.Done():
			}
		}

		req.OnContentBlockDelta = func(delta anthropic.MessagesEventContentBlockDeltaData) {
			if delta.Delta.Type == "text_delta" && delta.Delta.Text != nil {
				select {
				case eventCh <- engine.StreamEvent{Type: "text_delta", Text: *delta.Delta.Text}:
				case <-ctx.Done():
				}
			}
		}

		req.OnContentBlockStop = func(_ anthropic.MessagesEventContentBlockStopData, content anthropic.MessageContent) {
			if content.Type != "tool_use" || content.MessageContentToolUse == nil {
				return
			}
			tc := content.MessageContentToolUse
			args := make(map[string]any)
			if len(tc.Input) > 0 {
				if err := json.Unmarshal(tc.Input, &args); err != nil {
					args = make(map[string]any)
				}
			}
			select {
			case eventCh <- engine.StreamEvent{
				Type:     "tool_call",
				ToolCall: engine.ToolCall{ID: tc.ID, Name: tc.Name, Args: args},
			}:
			case <-ctx.Done():
			}
		}

		resp, err := c.client.CreateMessagesStream(ctx, req)
		if err != nil {
			errCh <- engine.ClassifyProviderError(err, extractHTTPStatus(err))
			return
		}

		if resp.Usage.InputTokens > 0 {
			select {
			case eventCh <- engine.StreamEvent{
				Type: "usage",
				Usage: engine.Usage{
					Prompt:     resp.Usage.InputTokens,
					Completion: resp.Usage.OutputTokens,
					Total:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
				},
			}:
			case <-ctx.Done():
			}
		}
	}()

	return eventCh, errCh
}
