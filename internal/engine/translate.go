package engine

// TranslateHistory converts the history item sequence into the
// provider-facing message format. The translation is pure and idempotent:
// the same history always yields the same messages.
//
// Mapping:
//   - user         -> user message
//   - assistant    -> assistant message
//   - tool-request -> assistant message carrying the tool-call descriptors
//   - tool-result  -> tool message with the textual output
//   - tool-failure -> tool message with an "Error: <message>" marker
func TranslateHistory(items []HistoryItem) []ChatMessage {
	msgs := make([]ChatMessage, 0, len(items))
	for _, item := range items {
		switch it := item.(type) {
		case *UserItem:
			msgs = append(msgs, ChatMessage{Role: RoleUser, Content: it.Content})
		case *AssistantItem:
			msgs = append(msgs, ChatMessage{Role: RoleAssistant, Content: it.Content})
		case *ToolRequestItem:
			msgs = append(msgs, ChatMessage{
				Role:      RoleAssistant,
				ToolCalls: append([]ToolCall(nil), it.Calls...),
			})
		case *ToolResultItem:
			msgs = append(msgs, ChatMessage{
				Role:    RoleTool,
				Name:    it.ToolCallID,
				Content: it.Output,
			})
		case *ToolFailureItem:
			msgs = append(msgs, ChatMessage{
				Role:    RoleTool,
				Name:    it.ToolCallID,
				Content: "Error: " + it.Error,
			})
		}
	}
	return msgs
}
