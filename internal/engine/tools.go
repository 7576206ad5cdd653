package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ToolFunc is a tool implementation. It receives schema-validated args.
type ToolFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool is one registered capability the model may call.
type Tool struct {
	Name        string
	Description string
	SchemaJSON  string
	Fn          ToolFunc
	// ReadOnly marks tools without side effects; only read-only tools are
	// eligible for the auto-execution allow-list.
	ReadOnly bool
	Category string // "filesystem", "search", "editing", "execution"
}

// ValidateArgs validates the provided arguments against the tool's JSON schema.
func (t Tool) ValidateArgs(args map[string]any) error {
	schemaLoader := gojsonschema.NewStringLoader(t.SchemaJSON)
	documentLoader := gojsonschema.NewGoLoader(args)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("invalid arguments: %s", strings.Join(msgs, "; "))
	}

	return nil
}

// ToolRegistry maps tool names to implementations. It is the single
// dispatch point for both auto-executed and user-confirmed calls.
type ToolRegistry map[string]Tool

// Schemas returns the provider-facing schema list.
func (r ToolRegistry) Schemas() []ToolSchema {
	s := make([]ToolSchema, 0, len(r))
	for _, t := range r {
		s = append(s, ToolSchema{
			Name:        t.Name,
			Description: t.Description,
			JSONSchema:  t.SchemaJSON,
		})
	}
	return s
}

// Dispatch resolves the tool by name, validates args against its declared
// schema, and invokes it. Every failure path comes back as a *ToolError so
// the run-loop only ever sees one error family from tool execution; a
// panicking tool is recovered and wrapped the same way.
func (r ToolRegistry) Dispatch(ctx context.Context, call ToolCall) (out string, err error) {
	t, ok := r[call.Name]
	if !ok {
		return "", &ToolError{Tool: call.Name, Err: errors.New("unknown tool")}
	}

	if verr := t.ValidateArgs(call.Args); verr != nil {
		return "", &ToolError{Tool: call.Name, Err: verr}
	}

	defer func() {
		if rec := recover(); rec != nil {
			out = ""
			err = &ToolError{Tool: call.Name, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	out, err = t.Fn(ctx, call.Args)
	if err != nil {
		var te *ToolError
		if errors.As(err, &te) {
			return "", err
		}
		return "", &ToolError{Tool: call.Name, Err: err}
	}
	return out, nil
}
