package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/tern/internal/engine"
	"github.com/ChamsBouzaiene/tern/internal/session"
)

// replGate asks the user to approve critical operations. The run-loop
// blocks in RequestApproval until the user answers /confirm or /reject.
type replGate struct {
	decide chan engine.Decision
}

func newReplGate() *replGate {
	return &replGate{decide: make(chan engine.Decision)}
}

func (g *replGate) RequestApproval(ctx context.Context, req engine.ApprovalRequest) (engine.Decision, error) {
	fmt.Printf("\n⚠ CHECKPOINT: %s (risk: %s", req.Operation, req.Risk)
	if req.FilePath != "" {
		fmt.Printf(", path: %s", req.FilePath)
	}
	fmt.Printf(")\n  %s\n  Type /confirm to approve or /reject to deny.\n", req.Description)

	select {
	case d := <-g.decide:
		return d, nil
	case <-ctx.Done():
		return engine.Decision{}, ctx.Err()
	}
}

// resolve answers a pending checkpoint. Returns false if nothing waits.
func (g *replGate) resolve(approved bool, reason string) bool {
	select {
	case g.decide <- engine.Decision{Approved: approved, Reason: reason}:
		return true
	default:
		return false
	}
}

type repl struct {
	sess        *engine.Session
	gate        *replGate
	store       *session.Store
	repoRoot    string
	sessionID   string
	startedAt   time.Time
	historyPath string
}

func (r *repl) loop(ctx context.Context) error {
	go r.printEvents(ctx)

	fmt.Println("Commands: /confirm /reject /stop /clear /metrics /save /quit")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Print("you> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Print("you> ")
			continue
		}

		switch line {
		case "/quit", "/exit":
			r.saveSession()
			return nil

		case "/stop":
			r.sess.Stop()
			fmt.Println("stop requested; finishing current work")

		case "/confirm":
			if r.gate.resolve(true, "approved by user") {
				break
			}
			if err := r.sess.ConfirmTools(ctx); err != nil {
				fmt.Printf("cannot confirm: %v\n", err)
			}

		case "/reject":
			if r.gate.resolve(false, "rejected by user") {
				break
			}
			if err := r.sess.RejectTools(ctx); err != nil {
				fmt.Printf("cannot reject: %v\n", err)
			}

		case "/clear":
			if err := r.sess.ClearError(); err != nil {
				fmt.Printf("cannot clear: %v\n", err)
			}

		case "/metrics":
			r.printMetrics()

		case "/save":
			r.saveSession()

		default:
			r.appendInputHistory(line)
			if err := r.sess.Start(ctx, line); err != nil {
				fmt.Printf("cannot start: %v\n", err)
			}
		}
		fmt.Print("you> ")
	}
	r.saveSession()
	return scanner.Err()
}

// printEvents renders the session's notification stream. Deltas print
// inline; everything else gets its own line.
func (r *repl) printEvents(ctx context.Context) {
	streaming := false
	for {
		select {
		case ev, ok := <-r.sess.Events():
			if !ok {
				return
			}
			switch ev.Kind {
			case "delta":
				if txt, ok := ev.Data.(string); ok {
					fmt.Print(txt)
					streaming = true
				}
			case "status":
				if streaming {
					fmt.Println()
					streaming = false
				}
				r.printStatus(ev.Data)
			case "tool_start":
				fmt.Printf("⚙ running %v\n", ev.Data)
			case "retry_attempt":
				fmt.Printf("↻ retrying after transient error: %v\n", ev.Data)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (r *repl) printStatus(data any) {
	st, ok := data.(engine.AgentStatus)
	if !ok {
		return
	}
	switch st {
	case engine.StatusIdle:
		r.saveSession()
	case engine.StatusToolRequest:
		fmt.Println("pending tool calls:")
		for _, c := range r.sess.PendingCalls() {
			fmt.Printf("  - %s %v\n", c.Name, c.Args)
		}
		fmt.Println("type /confirm to run them or /reject to decline")
	case engine.StatusError:
		fmt.Printf("✗ error: %s (type /clear to acknowledge)\n", r.sess.ErrorMessage())
	case engine.StatusInterrupted:
		fmt.Println("⏹ interrupted")
	}
}

func (r *repl) printMetrics() {
	m := r.sess.Metrics()
	fmt.Printf("requests: %d\n", m.Requests)
	for name, n := range m.ToolSuccess {
		fmt.Printf("  %s: %d ok, %d failed\n", name, n, m.ToolFailure[name])
	}
	for model, u := range m.UsageByModel {
		fmt.Printf("  %s: %d prompt + %d completion = %d tokens\n", model, u.Prompt, u.Completion, u.Total)
	}
}

func (r *repl) saveSession() {
	items := r.sess.History()
	if len(items) == 0 {
		return
	}
	title := ""
	for _, item := range items {
		if u, ok := item.(*engine.UserItem); ok {
			title = u.Content
			break
		}
	}
	if len(title) > 60 {
		title = title[:60]
	}
	err := r.store.Save(&session.Session{
		ID:        r.sessionID,
		RepoPath:  r.repoRoot,
		Title:     title,
		CreatedAt: r.startedAt,
		UpdatedAt: time.Now(),
		History:   session.EncodeHistory(items),
	})
	if err != nil {
		log.Printf("WARN: failed to save session: %v", err)
	}
}

// appendInputHistory records the line in the newline-delimited input
// history file, shared across sessions.
func (r *repl) appendInputHistory(line string) {
	if err := os.MkdirAll(filepath.Dir(r.historyPath), 0755); err != nil {
		return
	}
	f, err := os.OpenFile(r.historyPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintln(f, line)
}
