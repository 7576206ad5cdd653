package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/tern/internal/engine"
)

const (
	defaultRunCmdTimeout = 60 * time.Second
	maxRunCmdTimeout     = 5 * time.Minute
	minRunCmdTimeout     = 5 * time.Second
	defaultRunCmdLines   = 40
	minRunCmdLines       = 5
	maxRunCmdLines       = 200
	maxRunCmdChars       = 4000
)

var runCmdAllowedCommands = []string{
	// Build tools
	"go", "gofmt", "goimports",
	"npm", "npx", "yarn", "pnpm", "bun",
	"python", "python3", "pip", "pip3", "pytest", "uv",
	"cargo", "rustc", "rustfmt",
	"make", "cmake",

	// Linters & formatters
	"eslint", "prettier", "biome",
	"ruff", "black", "mypy",
	"tsc", "node",
	"golangci-lint",
	"shellcheck",

	// File operations
	"mkdir", "touch", "rm", "cp", "mv",
	"cat", "head", "tail",
	"ls", "find", "tree",
	"wc", "grep", "awk", "sed", "sort", "uniq", "diff",

	// Version control
	"git",

	// Network
	"curl", "wget",

	// Shell
	"sh", "bash",

	// Utilities
	"echo", "printf", "date", "which", "env",
	"tar", "zip", "unzip", "gzip", "gunzip",
	"jq", "yq",
}

// cmdResult is the JSON shape returned to the model.
type cmdResult struct {
	Cmd             string `json:"cmd"`
	ExitCode        int    `json:"exit_code"`
	Stdout          string `json:"stdout"`
	Stderr          string `json:"stderr"`
	StdoutTruncated bool   `json:"stdout_truncated,omitempty"`
	StderrTruncated bool   `json:"stderr_truncated,omitempty"`
	TimedOut        bool   `json:"timed_out,omitempty"`
	Status          string `json:"status"`
}

func runCmdImpl(ctx context.Context, runner Runner, repoRoot, cmd, argsStr string, timeout time.Duration, maxLines int) (string, error) {
	allowed := false
	for _, name := range runCmdAllowedCommands {
		if cmd == name {
			allowed = true
			break
		}
	}
	if !allowed {
		out, _ := json.Marshal(cmdResult{
			Cmd:      cmd,
			ExitCode: 1,
			Stderr:   fmt.Sprintf("Command '%s' is not in allowlist. Allowed commands: %s", cmd, strings.Join(runCmdAllowedCommands, ", ")),
			Status:   "failed",
		})
		return string(out), nil
	}

	var args []string
	if argsStr != "" {
		args = parseArgs(argsStr)
	}

	if timeout <= 0 {
		timeout = defaultRunCmdTimeout
	}
	if timeout > maxRunCmdTimeout {
		timeout = maxRunCmdTimeout
	}

	result, err := runner.RunCmd(ctx, repoRoot, cmd, args, timeout)

	cmdStr := cmd
	if len(args) > 0 {
		cmdStr += " " + strings.Join(args, " ")
	}

	if maxLines <= 0 {
		maxLines = defaultRunCmdLines
	} else if maxLines > maxRunCmdLines {
		maxLines = maxRunCmdLines
	}

	stdout, stdoutTruncated := truncateOutput(result.Stdout, maxLines)
	stderr, stderrTruncated := truncateOutput(result.Stderr, maxLines)

	res := cmdResult{
		Cmd:             cmdStr,
		ExitCode:        result.Code,
		Stdout:          stdout,
		Stderr:          stderr,
		StdoutTruncated: stdoutTruncated,
		StderrTruncated: stderrTruncated,
		Status:          "ok",
	}
	if result.TimedOut || errors.Is(err, context.DeadlineExceeded) {
		res.TimedOut = true
		res.Status = "failed"
	}
	if result.Code != 0 {
		res.Status = "failed"
	}

	out, marshalErr := json.Marshal(res)
	if marshalErr != nil {
		return "", marshalErr
	}
	return string(out), nil
}

// parseArgs splits a space-separated argument string, honoring single and
// double quotes.
func parseArgs(argsStr string) []string {
	var args []string
	var current strings.Builder
	inQuotes := false
	quoteChar := byte(0)

	for i := 0; i < len(argsStr); i++ {
		char := argsStr[i]
		switch {
		case char == '"' || char == '\'':
			if !inQuotes {
				inQuotes = true
				quoteChar = char
			} else if char == quoteChar {
				inQuotes = false
				quoteChar = 0
			} else {
				current.WriteByte(char)
			}
		case char == ' ' && !inQuotes:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		default:
			current.WriteByte(char)
		}
	}
	if current.Len() > 0 {
		args = append(args, current.String())
	}
	return args
}

func parseTimeoutArg(value any) time.Duration {
	var seconds float64
	switch v := value.(type) {
	case float64:
		seconds = v
	case int:
		seconds = float64(v)
	default:
		return defaultRunCmdTimeout
	}
	if seconds <= 0 {
		return defaultRunCmdTimeout
	}
	timeout := time.Duration(seconds) * time.Second
	if timeout < minRunCmdTimeout {
		timeout = minRunCmdTimeout
	}
	if timeout > maxRunCmdTimeout {
		timeout = maxRunCmdTimeout
	}
	return timeout
}

func parseMaxOutputLinesArg(value any) int {
	var lines int
	switch v := value.(type) {
	case float64:
		lines = int(v)
	case int:
		lines = v
	default:
		return defaultRunCmdLines
	}
	if lines < minRunCmdLines {
		return defaultRunCmdLines
	}
	if lines > maxRunCmdLines {
		return maxRunCmdLines
	}
	return lines
}

func truncateOutput(output string, maxLines int) (string, bool) {
	if output == "" {
		return "", false
	}
	truncated := false
	lines := strings.Split(output, "\n")
	if len(lines) > maxLines {
		lines = lines[:maxLines]
		truncated = true
	}
	joined := strings.Join(lines, "\n")
	if len(joined) > maxRunCmdChars {
		joined = joined[:maxRunCmdChars]
		truncated = true
	}
	return joined, truncated
}

// NewRunCmdTool creates the run_cmd tool. Destructive command patterns are
// surfaced to the user through the risk gate before this tool ever runs.
func NewRunCmdTool(repoRoot string) engine.Tool {
	runner := NewHostRunner()
	return engine.Tool{
		Name:        "run_cmd",
		Description: "Runs a command with strict allowlist enforcement. Allowed: build tools (go, npm, python, cargo, make), linters, file ops (ls, cat, grep, find, mkdir, rm, cp), git, curl/wget, shells (sh, bash), and utilities (jq, tar, zip). Supports optional timeout and output truncation.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"cmd": {"type":"string","description":"Command name (must be in allowlist)"},
				"args": {"type":"string","description":"Command arguments as space-separated string"},
				"timeout_seconds": {"type":"integer","minimum":5,"maximum":300,"description":"Maximum seconds to allow the command to run (default: 60)"},
				"max_output_lines": {"type":"integer","minimum":5,"maximum":200,"description":"Maximum stdout/stderr lines to return (default: 40)"}
			},
			"required": ["cmd"]
		}`,
		Category: "execution",
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			cmd, ok := args["cmd"].(string)
			if !ok {
				return "", fmt.Errorf("cmd must be a string")
			}
			argsStr, _ := args["args"].(string)
			timeout := parseTimeoutArg(args["timeout_seconds"])
			maxLines := parseMaxOutputLinesArg(args["max_output_lines"])
			return runCmdImpl(ctx, runner, repoRoot, cmd, argsStr, timeout, maxLines)
		},
	}
}
