package filesystem

import (
	"context"
	"encoding/json"
	"io/fs"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/ChamsBouzaiene/tern/internal/engine"
)

const defaultListLimit = 1000

func listFilesImpl(fileSys FileSystem, repoRoot, path string, recursive bool, maxDepth, limit int, ignorePatterns []string) (string, error) {
	dirPath, err := ResolvePath(repoRoot, path)
	if err != nil {
		return "", err
	}

	var matcher *gitignore.GitIgnore
	if len(ignorePatterns) > 0 {
		matcher = gitignore.CompileIgnoreLines(ignorePatterns...)
	}

	shouldIgnore := func(relPath string) bool {
		// .git is never interesting to the model.
		if relPath == ".git" || strings.HasPrefix(relPath, ".git"+string(filepath.Separator)) {
			return true
		}
		return matcher != nil && matcher.MatchesPath(relPath)
	}

	files := make([]string, 0)
	truncated := false

	if recursive {
		err := fileSys.WalkDir(dirPath, func(walkPath string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // unreadable entries are skipped, not fatal
			}
			if walkPath == dirPath {
				return nil
			}
			relFromRoot, err := filepath.Rel(repoRoot, walkPath)
			if err != nil {
				return nil
			}
			if shouldIgnore(relFromRoot) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if maxDepth >= 0 {
				relFromStart, err := filepath.Rel(dirPath, walkPath)
				if err == nil && strings.Count(relFromStart, string(filepath.Separator)) > maxDepth {
					if d.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}
			}
			files = append(files, relFromRoot)
			if len(files) >= limit {
				truncated = true
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil {
			return "", err
		}
	} else {
		entries, err := fileSys.ReadDir(dirPath)
		if err != nil {
			return "", err
		}
		for _, entry := range entries {
			name := entry.Name()
			relPath := name
			if path != "" {
				relPath = filepath.Join(path, name)
			}
			if shouldIgnore(relPath) {
				continue
			}
			files = append(files, relPath)
			if len(files) >= limit {
				truncated = true
				break
			}
		}
	}

	out, err := json.Marshal(map[string]any{
		"path":      path,
		"files":     files,
		"recursive": recursive,
		"truncated": truncated,
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// NewListFilesTool creates the list_files tool.
func NewListFilesTool(repoRoot string) engine.Tool {
	fileSys := NewOSFileSystem()
	return engine.Tool{
		Name:        "list_files",
		Description: "Lists files in the repository. Use this to discover which files exist before reading them. Supports recursive listing and gitignore-style ignore patterns.",
		SchemaJSON: `{"type":"object","properties":{
			"path":{"type":"string","description":"Optional: subdirectory path relative to repository root (empty string for root)"},
			"recursive":{"type":"boolean","description":"If true, list files recursively. Default: false"},
			"max_depth":{"type":"integer","description":"Maximum depth for recursive listing. Default: -1 (unlimited)"},
			"limit":{"type":"integer","description":"Maximum number of files to return. Default: 1000"},
			"ignore_patterns":{"type":"array","items":{"type":"string"},"description":"List of gitignore-style patterns to ignore. Default: ['node_modules','vendor','dist']"}
		},"required":[]}`,
		ReadOnly: true,
		Category: "filesystem",
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			path, _ := args["path"].(string)
			recursive, _ := args["recursive"].(bool)
			maxDepth := -1
			if d, ok := args["max_depth"].(float64); ok {
				maxDepth = int(d)
			}
			limit := defaultListLimit
			if l, ok := args["limit"].(float64); ok && l > 0 {
				limit = int(l)
			}
			var ignorePatterns []string
			if patterns, ok := args["ignore_patterns"].([]any); ok {
				for _, p := range patterns {
					if s, ok := p.(string); ok {
						ignorePatterns = append(ignorePatterns, s)
					}
				}
			}
			if len(ignorePatterns) == 0 {
				ignorePatterns = []string{"node_modules", "vendor", "dist"}
			}
			return listFilesImpl(fileSys, repoRoot, path, recursive, maxDepth, limit, ignorePatterns)
		},
	}
}
