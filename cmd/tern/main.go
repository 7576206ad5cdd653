package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/ChamsBouzaiene/tern/internal/config"
	"github.com/ChamsBouzaiene/tern/internal/engine"
	"github.com/ChamsBouzaiene/tern/internal/providers"
	"github.com/ChamsBouzaiene/tern/internal/session"
	"github.com/ChamsBouzaiene/tern/internal/tools"
	"github.com/ChamsBouzaiene/tern/internal/tracker"
)

func main() {
	// Load .env if present; real env vars win.
	_ = godotenv.Load()

	repoFlag := flag.String("repo", "", "Path to repository root (default: current directory)")
	modelFlag := flag.String("model", "", "Model name override")
	maxSteps := flag.Int("max-steps", 0, "Maximum agent rounds per session (0 = default)")
	flag.Parse()

	if err := run(context.Background(), *repoFlag, *modelFlag, *maxSteps); err != nil {
		log.Fatalf("tern failed: %v", err)
	}
}

func run(ctx context.Context, repoFlag, modelFlag string, maxSteps int) error {
	repoRoot := repoFlag
	if repoRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to determine working directory: %w", err)
		}
		repoRoot = wd
	}
	repoRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return err
	}

	cfgMgr, err := config.NewManager()
	if err != nil {
		return err
	}
	cfg, err := cfgMgr.Load()
	if err != nil {
		return err
	}
	applyConfigToEnv(cfg)

	llm, modelName, err := providers.NewLLMClientFromEnv()
	if err != nil {
		return err
	}
	if modelFlag != "" {
		modelName = modelFlag
	} else if cfg.Model != "" {
		modelName = cfg.Model
	}

	tr := tracker.New()
	watcher, err := tracker.NewWatcher(tr)
	if err != nil {
		log.Printf("WARN: file watching disabled: %v", err)
	} else {
		defer watcher.Close()
		if err := watcher.WatchDir(repoRoot); err != nil {
			log.Printf("WARN: failed to watch %s: %v", repoRoot, err)
		}
	}

	registry := tools.NewToolRegistry(repoRoot, tr)

	stopCfg := engine.DefaultStopConfig()
	if maxSteps > 0 {
		stopCfg.MaxSteps = maxSteps
	} else if cfg.MaxSteps > 0 {
		stopCfg.MaxSteps = cfg.MaxSteps
	}
	if cfg.MaxCostUSD > 0 {
		stopCfg.MaxCostUSD = cfg.MaxCostUSD
	}

	sessCfg := engine.DefaultSessionConfig()
	sessCfg.Model = modelName
	sessCfg.SystemPrompt = buildSystemPrompt(repoRoot)
	sessCfg.BreakerName = cfg.BreakerName

	gate := newReplGate()
	sess := engine.NewSession(llm, registry, sessCfg,
		engine.WithGate(gate),
		engine.WithStopManager(engine.NewStopManager(stopCfg)),
	)

	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	ternDir := filepath.Join(home, ".tern")
	store := session.NewStore(ternDir)

	repl := &repl{
		sess:        sess,
		gate:        gate,
		store:       store,
		repoRoot:    repoRoot,
		sessionID:   engine.NewItemID(),
		startedAt:   time.Now(),
		historyPath: filepath.Join(ternDir, "history"),
	}
	log.Printf("tern ready (model: %s, repo: %s)", modelName, repoRoot)
	return repl.loop(ctx)
}

// applyConfigToEnv lets the persisted config stand in for unset env vars
// so the provider factory sees one source of truth.
func applyConfigToEnv(cfg *config.Config) {
	setIfEmpty := func(key, val string) {
		if val != "" && os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
	setIfEmpty("LLM_PROVIDER", cfg.LLMProvider)
	setIfEmpty("OPENAI_BASE_URL", cfg.BaseURL)
	switch cfg.LLMProvider {
	case "anthropic":
		setIfEmpty("ANTHROPIC_API_KEY", cfg.APIKey)
	case "openai":
		setIfEmpty("OPENAI_API_KEY", cfg.APIKey)
	}
}

func buildSystemPrompt(repoRoot string) string {
	return fmt.Sprintf(`You are tern, a coding assistant working in the repository at %s.

Use the available tools to inspect and modify the codebase. Read files
before editing them. Prefer small, focused edits. When a task is done,
summarize what changed.`, repoRoot)
}
