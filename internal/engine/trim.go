// Package engine trim.go contains token estimation and context-window
// trimming applied to the message list before each LLM call.
package engine

import "strings"

// EstimateTokens provides a rough token count estimation.
// Uses a simple heuristic: ~4 characters per token for English/code,
// discounted for whitespace-heavy text. Approximate but cheap, which is
// what a trimming pass needs.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}

	charCount := len([]rune(text))
	whitespaceCount := strings.Count(text, " ") + strings.Count(text, "\n") + strings.Count(text, "\t")

	estimated := (charCount / 4) + (whitespaceCount / 6)
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}

// estimateMessageTokens counts one message including its tool-call payload.
func estimateMessageTokens(m ChatMessage) int {
	n := EstimateTokens(m.Content) + 4 // small per-message overhead
	for _, tc := range m.ToolCalls {
		n += EstimateTokens(tc.Name)
		for k, v := range tc.Args {
			n += EstimateTokens(k)
			if s, ok := v.(string); ok {
				n += EstimateTokens(s)
			} else {
				n += 4
			}
		}
	}
	return n
}

// TrimToBudget returns a subset of msgs whose estimated token count fits
// budget. The leading system message (if present) is always preserved, and
// the newest suffix of the remaining messages is kept, so the model sees
// the instructions plus the most recent conversation. A budget <= 0
// disables trimming. Pure function: the input slice is never mutated.
func TrimToBudget(msgs []ChatMessage, budget int) []ChatMessage {
	if budget <= 0 || len(msgs) == 0 {
		return msgs
	}

	var system *ChatMessage
	rest := msgs
	if msgs[0].Role == RoleSystem {
		system = &msgs[0]
		rest = msgs[1:]
	}

	remaining := budget
	if system != nil {
		remaining -= estimateMessageTokens(*system)
	}

	// Walk backwards keeping the newest messages that fit.
	start := len(rest)
	for i := len(rest) - 1; i >= 0; i-- {
		cost := estimateMessageTokens(rest[i])
		if cost > remaining {
			break
		}
		remaining -= cost
		start = i
	}

	// Never drop the newest message entirely, even if oversized: the round
	// would otherwise send nothing new.
	if start == len(rest) && len(rest) > 0 {
		start = len(rest) - 1
	}

	out := make([]ChatMessage, 0, len(rest)-start+1)
	if system != nil {
		out = append(out, *system)
	}
	out = append(out, rest[start:]...)
	return out
}
