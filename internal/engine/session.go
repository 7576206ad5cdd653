package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ChamsBouzaiene/tern/internal/breaker"
)

// SessionConfig holds all run-loop knobs.
type SessionConfig struct {
	Model        string
	SystemPrompt string

	// TokenBudget bounds the message list sent each round (0 = no trimming).
	TokenBudget int

	// Retry policy for transient round failures.
	MaxRetries     int
	InitialBackoff time.Duration

	// MaxConsecutiveErrors is the fail-fast ceiling: a new round refuses to
	// start once this many rounds in a row have ended in error.
	MaxConsecutiveErrors int

	// StreamTimeout is the rolling inactivity window: every received chunk
	// resets it, and a silent stream fails the round as transient.
	StreamTimeout time.Duration

	// RunLockTimeout force-releases a wedged run lock so a stuck prior
	// round cannot deadlock the session permanently.
	RunLockTimeout time.Duration

	// BreakerName, when set, routes provider calls through a shared named
	// circuit breaker.
	BreakerName string

	// CostPerTokenUSD feeds the stopping-condition cost counter (0 = off).
	CostPerTokenUSD float64

	Temperature     float32
	MaxOutputTokens int
}

// DefaultSessionConfig returns sensible defaults for an interactive session.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		TokenBudget:          100000,
		MaxRetries:           3,
		InitialBackoff:       1 * time.Second,
		MaxConsecutiveErrors: 5,
		StreamTimeout:        60 * time.Second,
		RunLockTimeout:       5 * time.Minute,
		Temperature:          0.1,
		MaxOutputTokens:      4096,
	}
}

// autoExecTools is the fixed allow-list of tools safe to run without
// confirmation: reads, listings, search and status queries only. Writes,
// deletes and shell execution always require confirmation.
var autoExecTools = map[string]bool{
	"read_file":   true,
	"list_files":  true,
	"file_status": true,
	"grep":        true,
}

// Session owns one conversation: the history, the status enum, the
// run-lock and stop flags. History and status are mutated only by the
// session's own methods, never concurrently from outside.
type Session struct {
	cfg     SessionConfig
	llm     LLMClient
	tools   ToolRegistry
	gate    Gate
	stops   *StopManager
	metrics *Metrics
	brk     *breaker.Breaker

	events chan Event

	mu           sync.Mutex
	history      []HistoryItem
	status       AgentStatus
	errMsg       string
	pendingCalls []ToolCall

	running       bool
	runStarted    time.Time
	stopFlag      bool
	retryCount    int
	consecErrors  int
}

// SessionOption customizes a session at construction time.
type SessionOption func(*Session)

// WithGate installs an approval gate for checkpoint requests.
func WithGate(g Gate) SessionOption {
	return func(s *Session) { s.gate = g }
}

// WithStopManager attaches an advisory stopping-condition manager.
func WithStopManager(m *StopManager) SessionOption {
	return func(s *Session) { s.stops = m }
}

// NewSession creates an idle session.
func NewSession(llm LLMClient, tools ToolRegistry, cfg SessionConfig, opts ...SessionOption) *Session {
	s := &Session{
		cfg:     cfg,
		llm:     llm,
		tools:   tools,
		metrics: NewMetrics(),
		events:  make(chan Event, 256),
		status:  StatusInitializing,
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.BreakerName != "" {
		// Timeout stays disabled on the breaker: the rolling inactivity
		// timer already bounds stream liveness.
		s.brk = breaker.Get(cfg.BreakerName, breaker.Config{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			ResetTimeout:     30 * time.Second,
		})
	}
	s.status = StatusIdle
	return s
}

// Events exposes the UI notification stream.
func (s *Session) Events() <-chan Event { return s.events }

// Status returns the current agent status.
func (s *Session) Status() AgentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ErrorMessage returns the message carried by the error status, if any.
func (s *Session) ErrorMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// History returns a snapshot of the conversation for rendering.
func (s *Session) History() []HistoryItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

// PendingCalls returns the confirm-required tool calls awaiting a decision.
func (s *Session) PendingCalls() []ToolCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ToolCall(nil), s.pendingCalls...)
}

// Metrics returns a copy of the session's in-memory counters.
func (s *Session) Metrics() MetricsSnapshot { return s.metrics.Snapshot() }

// Start submits user input and begins a round. It fails if the session is
// not idle or another round is already in flight.
func (s *Session) Start(ctx context.Context, text string) error {
	s.mu.Lock()
	if s.status != StatusIdle {
		s.mu.Unlock()
		return fmt.Errorf("agent is busy (status %s)", s.status)
	}
	if err := s.acquireRunLockLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.history = append(s.history, &UserItem{ID: NewItemID(), Content: text})
	s.setStatusLocked(StatusResponding)
	s.mu.Unlock()

	s.emit("history_changed", len(s.History()))
	go s.runLoop(ctx)
	return nil
}

// Stop requests cooperative cancellation. The loop stops initiating new
// work; anything already running completes on its own. With no round in
// flight and no batch awaiting confirmation there is nothing to cancel,
// so the flag is not set and a future Start is unaffected.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running && s.status != StatusToolRequest {
		return
	}
	s.stopFlag = true
}

// ConfirmTools executes the pending confirm-required batch and resumes
// the loop.
func (s *Session) ConfirmTools(ctx context.Context) error {
	s.mu.Lock()
	if s.status != StatusToolRequest {
		s.mu.Unlock()
		return fmt.Errorf("no pending tool request (status %s)", s.status)
	}
	if err := s.acquireRunLockLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	calls := s.pendingCalls
	s.pendingCalls = nil
	s.setStatusLocked(StatusExecutingTool)
	s.mu.Unlock()

	go s.executeConfirmed(ctx, calls)
	return nil
}

// RejectTools declines the pending batch. A synthetic user message asks
// the model to reconsider, and the loop resumes without executing anything.
func (s *Session) RejectTools(ctx context.Context) error {
	s.mu.Lock()
	if s.status != StatusToolRequest {
		s.mu.Unlock()
		return fmt.Errorf("no pending tool request (status %s)", s.status)
	}
	if err := s.acquireRunLockLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.pendingCalls = nil
	s.history = append(s.history, &UserItem{
		ID:      NewItemID(),
		Content: "The requested tool calls were rejected by the user. Do not retry the same calls; reconsider the approach or ask for clarification.",
	})
	s.setStatusLocked(StatusResponding)
	s.mu.Unlock()

	go s.runLoop(ctx)
	return nil
}

// ClearError acknowledges an error and returns the session to idle. The
// error status never auto-clears, so the user always sees what broke.
func (s *Session) ClearError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusError {
		return fmt.Errorf("nothing to clear (status %s)", s.status)
	}
	s.errMsg = ""
	s.setStatusLocked(StatusIdle)
	return nil
}

// acquireRunLockLocked takes the re-entrancy lock. A lock held longer than
// RunLockTimeout is considered wedged and force-released so the session
// can recover instead of deadlocking permanently.
func (s *Session) acquireRunLockLocked() error {
	if s.running {
		if time.Since(s.runStarted) < s.cfg.RunLockTimeout {
			return fmt.Errorf("another agent round is already running")
		}
		log.Printf("run lock held for %s; force-releasing wedged round", time.Since(s.runStarted).Round(time.Second))
	}
	s.running = true
	s.runStarted = time.Now()
	return nil
}

func (s *Session) releaseRunLock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

func (s *Session) setStatusLocked(st AgentStatus) {
	s.status = st
	select {
	case s.events <- Event{Kind: "status", Data: st}:
	default:
	}
}

func (s *Session) setStatus(st AgentStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setStatusLocked(st)
}

func (s *Session) stopRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopFlag
}

func (s *Session) clearStopFlag() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopFlag = false
}

func (s *Session) historyLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

func (s *Session) rollbackTo(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < len(s.history) {
		s.history = s.history[:n]
	}
}

func (s *Session) appendItem(item HistoryItem) {
	s.mu.Lock()
	s.history = append(s.history, item)
	s.mu.Unlock()
	s.emit("history_changed", item)
}

func (s *Session) setError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = err.Error()
	s.setStatusLocked(StatusError)
}
