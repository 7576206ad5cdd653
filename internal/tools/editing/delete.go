package editing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ChamsBouzaiene/tern/internal/engine"
	"github.com/ChamsBouzaiene/tern/internal/tools/filesystem"
	"github.com/ChamsBouzaiene/tern/internal/tracker"
)

// NewDeleteFileTool creates the delete_file tool. Deletion requires the
// same freshness as an edit: the agent must have seen what it is removing.
func NewDeleteFileTool(repoRoot string, tr *tracker.Tracker) engine.Tool {
	fileSys := filesystem.NewOSFileSystem()
	return engine.Tool{
		Name:        "delete_file",
		Description: "Deletes a file. The file must have been read first so the deletion is informed.",
		SchemaJSON:  `{"type":"object","properties":{"path":{"type":"string","description":"Path to the file relative to the repository root"}},"required":["path"]}`,
		Category:    "editing",
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			path, ok := args["path"].(string)
			if !ok {
				return "", fmt.Errorf("path must be a string")
			}
			full, err := filesystem.ResolvePath(repoRoot, path)
			if err != nil {
				return "", err
			}
			if err := tr.AssertCanEdit(full); err != nil {
				return "", err
			}
			if err := fileSys.Remove(full); err != nil {
				return "", err
			}
			tr.Invalidate(full)
			out, _ := json.Marshal(map[string]any{"path": path, "deleted": true})
			return string(out), nil
		},
	}
}
