// Package search implements code search tools backed by ripgrep.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/tern/internal/engine"
	"github.com/ChamsBouzaiene/tern/internal/tools/execution"
)

const maxGrepResults = 100

func grepImpl(ctx context.Context, runner execution.Runner, repoRoot, pattern, path, globs string, caseInsensitive bool) (string, error) {
	args := []string{"--json"}
	if caseInsensitive {
		args = append(args, "-i")
	}
	if globs != "" {
		for _, part := range strings.Split(globs, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				args = append(args, "-g", trimmed)
			}
		}
	}
	args = append(args, "-e", pattern)
	if path != "" {
		args = append(args, path)
	} else {
		args = append(args, ".")
	}

	res, err := runner.RunCmd(ctx, repoRoot, "rg", args, 10*time.Second)
	if err != nil {
		// rg exits 1 on no matches; that is an empty result, not a failure.
		if res.Code == 1 {
			out, _ := json.Marshal(map[string]any{"pattern": pattern, "results": []any{}, "count": 0})
			return string(out), nil
		}
		return "", fmt.Errorf("grep failed: %v, stderr: %s", err, res.Stderr)
	}

	// rg --json emits one JSON object per line.
	type rgMessage struct {
		Type string `json:"type"`
		Data struct {
			Path struct {
				Text string `json:"text"`
			} `json:"path"`
			Lines struct {
				Text string `json:"text"`
			} `json:"lines"`
			LineNumber int `json:"line_number"`
		} `json:"data"`
	}

	type grepResult struct {
		Path    string `json:"path"`
		Line    int    `json:"line"`
		Content string `json:"content"`
	}

	results := make([]grepResult, 0)
	for _, line := range strings.Split(res.Stdout, "\n") {
		if line == "" {
			continue
		}
		var msg rgMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			continue
		}
		if msg.Type == "match" {
			results = append(results, grepResult{
				Path:    msg.Data.Path.Text,
				Line:    msg.Data.LineNumber,
				Content: strings.TrimSpace(msg.Data.Lines.Text),
			})
		}
	}

	truncated := false
	if len(results) > maxGrepResults {
		results = results[:maxGrepResults]
		truncated = true
	}

	out, err := json.Marshal(map[string]any{
		"pattern":   pattern,
		"results":   results,
		"count":     len(results),
		"truncated": truncated,
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// NewGrepTool creates the grep tool.
func NewGrepTool(repoRoot string) engine.Tool {
	runner := execution.NewHostRunner()
	return engine.Tool{
		Name:        "grep",
		Description: "Fast, regex-based code search using ripgrep. Use this to find code patterns, function definitions, or references. Supports case-insensitive search and glob patterns.",
		SchemaJSON:  `{"type":"object","properties":{"pattern":{"type":"string","description":"Regex pattern to search for"},"path":{"type":"string","description":"Optional: specific file or directory path"},"globs":{"type":"string","description":"Optional: comma-separated file patterns"},"case_insensitive":{"type":"boolean","description":"Optional: case-insensitive search"}},"required":["pattern"]}`,
		ReadOnly:    true,
		Category:    "search",
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			pattern, ok := args["pattern"].(string)
			if !ok {
				return "", fmt.Errorf("pattern must be a string")
			}
			path, _ := args["path"].(string)
			globs, _ := args["globs"].(string)
			caseInsensitive, _ := args["case_insensitive"].(bool)
			return grepImpl(ctx, runner, repoRoot, pattern, path, globs, caseInsensitive)
		},
	}
}
