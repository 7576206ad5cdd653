// Package tools assembles the full tool registry for a repository.
package tools

import (
	"github.com/ChamsBouzaiene/tern/internal/engine"
	"github.com/ChamsBouzaiene/tern/internal/tools/editing"
	"github.com/ChamsBouzaiene/tern/internal/tools/execution"
	"github.com/ChamsBouzaiene/tern/internal/tools/filesystem"
	"github.com/ChamsBouzaiene/tern/internal/tools/search"
	"github.com/ChamsBouzaiene/tern/internal/tracker"
)

// NewToolRegistry builds the registry rooted at repoRoot. All read and
// write tools share one staleness tracker so reads unlock edits.
func NewToolRegistry(repoRoot string, tr *tracker.Tracker) engine.ToolRegistry {
	reg := make(engine.ToolRegistry)

	for _, t := range []engine.Tool{
		filesystem.NewReadFileTool(repoRoot, tr),
		filesystem.NewListFilesTool(repoRoot),
		filesystem.NewFileStatusTool(repoRoot),
		search.NewGrepTool(repoRoot),
		editing.NewCreateTool(repoRoot, tr),
		editing.NewEditTool(repoRoot, tr),
		editing.NewDeleteFileTool(repoRoot, tr),
		execution.NewRunCmdTool(repoRoot),
	} {
		reg[t.Name] = t
	}
	return reg
}
