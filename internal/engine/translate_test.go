package engine

import (
	"reflect"
	"testing"
)

func TestTranslateHistoryMapping(t *testing.T) {
	items := []HistoryItem{
		&UserItem{ID: "u1", Content: "fix it"},
		&AssistantItem{ID: "a1", Content: "reading the file"},
		&ToolRequestItem{ID: "r1", Calls: []ToolCall{
			{ID: "c1", Name: "read_file", Args: map[string]any{"path": "x.go"}},
		}},
		&ToolResultItem{ID: "t1", ToolCallID: "c1", ToolName: "read_file", Output: "contents"},
		&ToolFailureItem{ID: "f1", ToolCallID: "c2", ToolName: "edit", Error: "file must be re-read"},
	}

	msgs := TranslateHistory(items)
	if len(msgs) != 5 {
		t.Fatalf("got %d messages, want 5", len(msgs))
	}

	if msgs[0].Role != RoleUser || msgs[0].Content != "fix it" {
		t.Fatalf("msg 0 = %+v", msgs[0])
	}
	if msgs[1].Role != RoleAssistant {
		t.Fatalf("msg 1 = %+v", msgs[1])
	}
	if msgs[2].Role != RoleAssistant || len(msgs[2].ToolCalls) != 1 || msgs[2].ToolCalls[0].Name != "read_file" {
		t.Fatalf("msg 2 = %+v", msgs[2])
	}
	if msgs[3].Role != RoleTool || msgs[3].Name != "c1" || msgs[3].Content != "contents" {
		t.Fatalf("msg 3 = %+v", msgs[3])
	}
	if msgs[4].Role != RoleTool || msgs[4].Name != "c2" || msgs[4].Content != "Error: file must be re-read" {
		t.Fatalf("msg 4 = %+v", msgs[4])
	}
}

func TestTranslateHistoryIsIdempotent(t *testing.T) {
	items := []HistoryItem{
		&UserItem{ID: "u1", Content: "hello"},
		&ToolRequestItem{ID: "r1", Calls: []ToolCall{{ID: "c1", Name: "grep", Args: map[string]any{"pattern": "x"}}}},
		&ToolResultItem{ID: "t1", ToolCallID: "c1", ToolName: "grep", Output: "{}"},
	}

	first := TranslateHistory(items)
	second := TranslateHistory(items)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("translation not idempotent:\n%+v\n%+v", first, second)
	}
}

func TestTranslateHistoryCopiesToolCalls(t *testing.T) {
	req := &ToolRequestItem{ID: "r1", Calls: []ToolCall{{ID: "c1", Name: "grep"}}}
	msgs := TranslateHistory([]HistoryItem{req})

	msgs[0].ToolCalls[0].Name = "mutated"
	if req.Calls[0].Name != "grep" {
		t.Fatal("translation aliases the history item's call slice")
	}
}

func TestTranslateEmptyHistory(t *testing.T) {
	if msgs := TranslateHistory(nil); len(msgs) != 0 {
		t.Fatalf("got %d messages for empty history", len(msgs))
	}
}
