package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/tern/internal/engine"
	"github.com/ChamsBouzaiene/tern/internal/tracker"
)

// NewReadFileTool creates the read_file tool. Reads go through the
// staleness tracker so the file becomes editable afterwards.
func NewReadFileTool(repoRoot string, tr *tracker.Tracker) engine.Tool {
	return engine.Tool{
		Name:        "read_file",
		Description: "Reads the content of a file from the repository. Provide the file path relative to the repo root. A file must be read before it can be edited.",
		SchemaJSON:  `{"type":"object","properties":{"path":{"type":"string","description":"Path to the file relative to the repository root"}},"required":["path"]}`,
		ReadOnly:    true,
		Category:    "filesystem",
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			path, ok := args["path"].(string)
			if !ok {
				return "", fmt.Errorf("path must be a string")
			}
			full, err := ResolvePath(repoRoot, path)
			if err != nil {
				return "", err
			}
			content, err := tr.Read(full)
			if err != nil {
				return "", err
			}
			result := map[string]any{
				"path":       path,
				"content":    content,
				"line_count": strings.Count(content, "\n") + 1,
			}
			out, err := json.Marshal(result)
			if err != nil {
				return "", err
			}
			return string(out), nil
		},
	}
}
