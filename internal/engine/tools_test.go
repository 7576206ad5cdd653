package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func testRegistry() ToolRegistry {
	return ToolRegistry{
		"echo": {
			Name:       "echo",
			SchemaJSON: `{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`,
			Fn: func(ctx context.Context, args map[string]any) (string, error) {
				return args["text"].(string), nil
			},
		},
		"fail": {
			Name:       "fail",
			SchemaJSON: `{"type":"object"}`,
			Fn: func(ctx context.Context, args map[string]any) (string, error) {
				return "", errors.New("it broke")
			},
		},
		"panics": {
			Name:       "panics",
			SchemaJSON: `{"type":"object"}`,
			Fn: func(ctx context.Context, args map[string]any) (string, error) {
				panic("tool bug")
			},
		},
	}
}

func TestDispatchSuccess(t *testing.T) {
	reg := testRegistry()
	out, err := reg.Dispatch(context.Background(), ToolCall{
		ID: "c1", Name: "echo", Args: map[string]any{"text": "hi"},
	})
	if err != nil || out != "hi" {
		t.Fatalf("Dispatch = (%q, %v)", out, err)
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	reg := testRegistry()
	_, err := reg.Dispatch(context.Background(), ToolCall{ID: "c1", Name: "nope", Args: map[string]any{}})

	var te *ToolError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want ToolError", err)
	}
	if te.Tool != "nope" || !strings.Contains(te.Error(), "unknown tool") {
		t.Fatalf("ToolError = %+v", te)
	}
}

func TestDispatchValidatesArgs(t *testing.T) {
	reg := testRegistry()
	_, err := reg.Dispatch(context.Background(), ToolCall{
		ID: "c1", Name: "echo", Args: map[string]any{"wrong": 42},
	})
	var te *ToolError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want ToolError from schema validation", err)
	}
}

func TestDispatchWrapsToolFailures(t *testing.T) {
	reg := testRegistry()
	_, err := reg.Dispatch(context.Background(), ToolCall{ID: "c1", Name: "fail", Args: map[string]any{}})
	var te *ToolError
	if !errors.As(err, &te) || te.Tool != "fail" {
		t.Fatalf("err = %v, want ToolError{fail}", err)
	}
}

func TestDispatchRecoversPanics(t *testing.T) {
	reg := testRegistry()
	_, err := reg.Dispatch(context.Background(), ToolCall{ID: "c1", Name: "panics", Args: map[string]any{}})
	var te *ToolError
	if !errors.As(err, &te) || !strings.Contains(te.Error(), "panic") {
		t.Fatalf("err = %v, want recovered panic ToolError", err)
	}
}

func TestSchemasCoverRegistry(t *testing.T) {
	reg := testRegistry()
	schemas := reg.Schemas()
	if len(schemas) != len(reg) {
		t.Fatalf("got %d schemas for %d tools", len(schemas), len(reg))
	}
	seen := make(map[string]bool)
	for _, s := range schemas {
		seen[s.Name] = true
	}
	for name := range reg {
		if !seen[name] {
			t.Fatalf("missing schema for %s", name)
		}
	}
}

func TestClassifyProviderError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		transient bool
	}{
		{"429 status", errors.New("request failed"), 429, true},
		{"503 status", errors.New("request failed"), 503, true},
		{"401 status", errors.New("request failed"), 401, false},
		{"rate limit text", errors.New("rate limit exceeded, retry later"), 0, true},
		{"timeout text", errors.New("context deadline exceeded"), 0, true},
		{"overloaded text", errors.New("Overloaded"), 0, true},
		{"auth text", errors.New("invalid api key provided"), 0, false},
		{"unknown is fatal", errors.New("something odd"), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyProviderError(tt.err, tt.status)
			if IsTransient(got) != tt.transient {
				t.Fatalf("IsTransient = %v, want %v (err %v)", IsTransient(got), tt.transient, got)
			}
			if !tt.transient && !IsFatal(got) {
				t.Fatalf("non-transient error not fatal: %v", got)
			}
		})
	}

	pre := Transientf("already classified")
	if got := ClassifyProviderError(pre, 401); got != pre {
		t.Fatal("pre-classified error was rewrapped")
	}
	if got := ClassifyProviderError(nil, 500); got != nil {
		t.Fatalf("nil in, %v out", got)
	}
}
