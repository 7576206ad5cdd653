// Package editing implements the write-side file tools. Every mutation is
// gated by the staleness tracker: creates require the path to be absent
// and edits require a fresh read.
package editing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/tern/internal/engine"
	"github.com/ChamsBouzaiene/tern/internal/tools/filesystem"
	"github.com/ChamsBouzaiene/tern/internal/tracker"
)

// NewCreateTool creates the create tool for new files.
func NewCreateTool(repoRoot string, tr *tracker.Tracker) engine.Tool {
	return engine.Tool{
		Name:        "create",
		Description: "Creates a new file with the given content. Fails if the file already exists; use edit to change an existing file.",
		SchemaJSON: `{"type":"object","properties":{
			"path":{"type":"string","description":"Path for the new file, relative to the repository root"},
			"content":{"type":"string","description":"Full content of the new file"}
		},"required":["path","content"]}`,
		Category: "editing",
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			path, ok := args["path"].(string)
			if !ok {
				return "", fmt.Errorf("path must be a string")
			}
			content, ok := args["content"].(string)
			if !ok {
				return "", fmt.Errorf("content must be a string")
			}
			full, err := filesystem.ResolvePath(repoRoot, path)
			if err != nil {
				return "", err
			}
			if err := tr.AssertCanCreate(full); err != nil {
				return "", err
			}
			if err := tr.Write(full, content); err != nil {
				return "", err
			}
			out, _ := json.Marshal(map[string]any{
				"path":       path,
				"created":    true,
				"line_count": strings.Count(content, "\n") + 1,
			})
			return string(out), nil
		},
	}
}
