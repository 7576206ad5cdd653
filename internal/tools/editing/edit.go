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

// applyEdit computes the new content for one edit action.
func applyEdit(current string, edit map[string]any) (string, error) {
	editType, _ := edit["type"].(string)
	switch editType {
	case "overwrite":
		content, ok := edit["content"].(string)
		if !ok {
			return "", fmt.Errorf("overwrite edit requires a content string")
		}
		return content, nil

	case "replace":
		oldStr, ok := edit["old_string"].(string)
		if !ok || oldStr == "" {
			return "", fmt.Errorf("replace edit requires a non-empty old_string")
		}
		newStr, ok := edit["new_string"].(string)
		if !ok {
			return "", fmt.Errorf("replace edit requires a new_string")
		}
		switch n := strings.Count(current, oldStr); n {
		case 0:
			return "", fmt.Errorf("old_string not found in file")
		case 1:
			return strings.Replace(current, oldStr, newStr, 1), nil
		default:
			return "", fmt.Errorf("old_string matches %d locations; provide more surrounding context to make it unique", n)
		}

	default:
		return "", fmt.Errorf("unknown edit type %q (want overwrite or replace)", editType)
	}
}

// NewEditTool creates the edit tool for existing files. The staleness
// tracker rejects edits to files that were never read or that changed on
// disk since the last read.
func NewEditTool(repoRoot string, tr *tracker.Tracker) engine.Tool {
	return engine.Tool{
		Name:        "edit",
		Description: "Edits an existing file. The file must have been read first. Supports 'overwrite' (replace whole file) and 'replace' (swap one unique old_string for new_string).",
		SchemaJSON: `{"type":"object","properties":{
			"path":{"type":"string","description":"Path to the file relative to the repository root"},
			"edit":{"type":"object","properties":{
				"type":{"type":"string","enum":["overwrite","replace"]},
				"content":{"type":"string","description":"Full new content (overwrite)"},
				"old_string":{"type":"string","description":"Exact text to replace, must match exactly once (replace)"},
				"new_string":{"type":"string","description":"Replacement text (replace)"}
			},"required":["type"]}
		},"required":["path","edit"]}`,
		Category: "editing",
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			path, ok := args["path"].(string)
			if !ok {
				return "", fmt.Errorf("path must be a string")
			}
			edit, ok := args["edit"].(map[string]any)
			if !ok {
				return "", fmt.Errorf("edit must be an object")
			}
			full, err := filesystem.ResolvePath(repoRoot, path)
			if err != nil {
				return "", err
			}
			if err := tr.AssertCanEdit(full); err != nil {
				return "", err
			}
			current, err := tr.Read(full)
			if err != nil {
				return "", err
			}
			updated, err := applyEdit(current, edit)
			if err != nil {
				return "", err
			}
			if err := tr.Write(full, updated); err != nil {
				return "", err
			}
			out, _ := json.Marshal(map[string]any{
				"path":       path,
				"edited":     true,
				"line_count": strings.Count(updated, "\n") + 1,
			})
			return string(out), nil
		},
	}
}
