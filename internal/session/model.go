// Package session persists conversation transcripts under the user's
// config directory, scoped per repository.
package session

import (
	"fmt"
	"time"

	"github.com/ChamsBouzaiene/tern/internal/engine"
)

// Session represents a persistent user session.
type Session struct {
	ID        string       `json:"id"`
	RepoPath  string       `json:"repo_path"`
	RepoHash  string       `json:"repo_hash"` // Used for directory scoping
	Title     string       `json:"title"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	History   []ItemRecord `json:"history"`
}

// SessionMeta is a lightweight representation for listing in the UI.
type SessionMeta struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ItemRecord is the kind-tagged on-disk form of one history item.
type ItemRecord struct {
	Kind       string            `json:"kind"`
	ID         string            `json:"id"`
	Content    string            `json:"content,omitempty"`
	Calls      []engine.ToolCall `json:"calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	ToolName   string            `json:"tool_name,omitempty"`
	Output     string            `json:"output,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// EncodeHistory converts live history items to their on-disk records.
func EncodeHistory(items []engine.HistoryItem) []ItemRecord {
	records := make([]ItemRecord, 0, len(items))
	for _, item := range items {
		switch it := item.(type) {
		case *engine.UserItem:
			records = append(records, ItemRecord{Kind: "user", ID: it.ID, Content: it.Content})
		case *engine.AssistantItem:
			records = append(records, ItemRecord{Kind: "assistant", ID: it.ID, Content: it.Content})
		case *engine.ToolRequestItem:
			records = append(records, ItemRecord{Kind: "tool-request", ID: it.ID, Calls: it.Calls})
		case *engine.ToolResultItem:
			records = append(records, ItemRecord{
				Kind: "tool-result", ID: it.ID,
				ToolCallID: it.ToolCallID, ToolName: it.ToolName, Output: it.Output,
			})
		case *engine.ToolFailureItem:
			records = append(records, ItemRecord{
				Kind: "tool-failure", ID: it.ID,
				ToolCallID: it.ToolCallID, ToolName: it.ToolName, Error: it.Error,
			})
		}
	}
	return records
}

// DecodeHistory converts on-disk records back to live history items.
func DecodeHistory(records []ItemRecord) ([]engine.HistoryItem, error) {
	items := make([]engine.HistoryItem, 0, len(records))
	for _, r := range records {
		switch r.Kind {
		case "user":
			items = append(items, &engine.UserItem{ID: r.ID, Content: r.Content})
		case "assistant":
			items = append(items, &engine.AssistantItem{ID: r.ID, Content: r.Content})
		case "tool-request":
			items = append(items, &engine.ToolRequestItem{ID: r.ID, Calls: r.Calls})
		case "tool-result":
			items = append(items, &engine.ToolResultItem{
				ID: r.ID, ToolCallID: r.ToolCallID, ToolName: r.ToolName, Output: r.Output,
			})
		case "tool-failure":
			items = append(items, &engine.ToolFailureItem{
				ID: r.ID, ToolCallID: r.ToolCallID, ToolName: r.ToolName, Error: r.Error,
			})
		default:
			return nil, fmt.Errorf("unknown history item kind %q", r.Kind)
		}
	}
	return items, nil
}
