package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/ChamsBouzaiene/tern/internal/engine"
)

// OpenAIClient implements engine.LLMClient for OpenAI and any
// OpenAI-compatible endpoint (custom base URL).
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates an OpenAI-backed client. baseURL may be empty for
// the default endpoint.
func NewOpenAIClient(apiKey, baseURL string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg)}
}

// convertOpenAIMessages maps the engine's neutral history to OpenAI's
// format. Tool messages are only valid after an assistant message carrying
// tool_calls; orphans (e.g. left over after context trimming) are skipped
// to avoid API rejection.
func convertOpenAIMessages(messages []engine.ChatMessage) []openai.ChatCompletionMessage {
	var msgs []openai.ChatCompletionMessage
	var prevAssistantHadToolCalls bool
	for _, msg := range messages {
		switch msg.Role {
		case engine.RoleSystem:
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: msg.Content,
			})
			prevAssistantHadToolCalls = false
		case engine.RoleUser:
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})
			prevAssistantHadToolCalls = false
		case engine.RoleAssistant:
			m := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			for _, tc := range msg.ToolCalls {
				argsJSON, _ := json.Marshal(tc.Args)
				m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(argsJSON),
					},
				})
			}
			msgs = append(msgs, m)
			prevAssistantHadToolCalls = len(msg.ToolCalls) > 0
		case engine.RoleTool:
			if !prevAssistantHadToolCalls {
				continue
			}
			content := msg.Content
			if content == "" {
				content = "{}"
			}
			// msg.Name carries the tool call id.
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: msg.Name,
				Content:    content,
			})
		}
	}
	return msgs
}

func convertOpenAITools(toolSchemas []engine.ToolSchema) ([]openai.Tool, error) {
	var tools []openai.Tool
	for _, ts := range toolSchemas {
		var schemaObj map[string]any
		if err := json.Unmarshal([]byte(ts.JSONSchema), &schemaObj); err != nil {
			return nil, fmt.Errorf("invalid tool schema JSON for %s: %w", ts.Name, err)
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ts.Name,
				Description: ts.Description,
				Parameters:  schemaObj,
			},
		})
	}
	return tools, nil
}

// toolCallAccumulator collects a tool call spread across stream deltas.
// OpenAI sends the id and name once and the arguments as JSON fragments.
type toolCallAccumulator struct {
	call     engine.ToolCall
	argsJSON strings.Builder
	index    int
}

// Stream implements engine.LLMClient.Stream. Tool calls are accumulated
// across deltas and emitted in declaration order once the stream ends.
func (c *OpenAIClient) Stream(ctx context.Context, modelName string, messages []engine.ChatMessage, toolSchemas []engine.ToolSchema, opts engine.ChatOptions) (<-chan engine.StreamEvent, <-chan error) {
	eventCh := make(chan engine.StreamEvent, 10)
	errCh := make(chan error, 1)

	go func() {
		defer close(eventCh)
		defer close(errCh)

		tools, err := convertOpenAITools(toolSchemas)
		if err != nil {
			errCh <- &engine.FatalError{Err: err}
			return
		}

		req := openai.ChatCompletionRequest{
			Model:    modelName,
			Messages: convertOpenAIMessages(messages),
			Stream:   true,
			StreamOptions: &openai.StreamOptions{
				IncludeUsage: true,
			},
		}
		if len(tools) > 0 {
			req.Tools = tools
			req.ToolChoice = "auto"
		}
		if opts.MaxOutputTokens > 0 {
			req.MaxTokens = opts.MaxOutputTokens
		}
		if opts.Temperature > 0 {
			req.Temperature = &opts.Temperature
		}

		stream, err := c.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			errCh <- engine.ClassifyProviderError(err, extractHTTPStatus(err))
			return
		}
		defer stream.Close()

		accum := make(map[int]*toolCallAccumulator)
		var usage engine.Usage

		for {
			response, err := stream.Recv()
			if err != nil {
				if !errors.Is(err, io.EOF) && !strings.Contains(err.Error(), "EOF") {
					errCh <- engine.ClassifyProviderError(err, extractHTTPStatus(err))
					return
				}
				break
			}

			if response.Usage != nil {
				usage = engine.Usage{
					Prompt:     response.Usage.PromptTokens,
					Completion: response.Usage.CompletionTokens,
					Total:      response.Usage.TotalTokens,
				}
			}
			if len(response.Choices) == 0 {
				continue
			}
			delta := response.Choices[0].Delta

			if delta.Content != "" {
				select {
				case eventCh <- engine.StreamEvent{Type: "text_delta", Text: delta.Content}:
				case <-ctx.Done():
					return
				}
			}

			for _, tcDelta := range delta.ToolCalls {
				idx := 0
				if tcDelta.Index != nil {
					idx = *tcDelta.Index
				}
				acc, ok := accum[idx]
				if !ok {
					acc = &toolCallAccumulator{index: idx}
					acc.call.Args = make(map[string]any)
					accum[idx] = acc
				}
				if tcDelta.ID != "" {
					acc.call.ID = tcDelta.ID
				}
				if tcDelta.Function.Name != "" {
					acc.call.Name = tcDelta.Function.Name
				}
				if tcDelta.Function.Arguments != "" {
					acc.argsJSON.WriteString(tcDelta.Function.Arguments)
				}
			}
		}

		// Emit accumulated tool calls in declaration order.
		ordered := make([]*toolCallAccumulator, 0, len(accum))
		for _, acc := range accum {
			ordered = append(ordered, acc)
		}
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].index < ordered[j].index })

		for _, acc := range ordered {
			if acc.argsJSON.Len() > 0 {
				var args map[string]any
				if err := json.Unmarshal([]byte(acc.argsJSON.String()), &args); err != nil {
					log.Printf("WARN: tool call %s (%s) carried unparseable arguments: %v", acc.call.Name, acc.call.ID, err)
					args = make(map[string]any)
				}
				acc.call.Args = args
			}
			select {
			case eventCh <- engine.StreamEvent{Type: "tool_call", ToolCall: acc.call}:
			case <-ctx.Done():
				return
			}
		}

		if usage.Total > 0 {
			select {
			case eventCh <- engine.StreamEvent{Type: "usage", Usage: usage}:
			case <-ctx.Done():
			}
		}
	}()

	return eventCh, errCh
}
