package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/ChamsBouzaiene/tern/internal/engine"
)

// NewFileStatusTool creates the file_status tool: a cheap existence and
// metadata probe the model can use before deciding between create and edit.
func NewFileStatusTool(repoRoot string) engine.Tool {
	fileSys := NewOSFileSystem()
	return engine.Tool{
		Name:        "file_status",
		Description: "Reports whether a path exists and its size, type and modification time. Use this before choosing between creating a new file and editing an existing one.",
		SchemaJSON:  `{"type":"object","properties":{"path":{"type":"string","description":"Path relative to the repository root"}},"required":["path"]}`,
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

			info, err := fileSys.Stat(full)
			if errors.Is(err, fs.ErrNotExist) {
				out, _ := json.Marshal(map[string]any{"path": path, "exists": false})
				return string(out), nil
			}
			if err != nil {
				return "", err
			}

			out, err := json.Marshal(map[string]any{
				"path":     path,
				"exists":   true,
				"is_dir":   info.IsDir(),
				"size":     info.Size(),
				"modified": info.ModTime().UTC().Format("2006-01-02T15:04:05Z"),
			})
			if err != nil {
				return "", err
			}
			return string(out), nil
		},
	}
}
