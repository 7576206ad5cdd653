package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// StopConfig holds the limits the StopManager evaluates. A zero value
// disables that condition.
type StopConfig struct {
	MaxSteps    int
	MaxTokens   int
	MaxCostUSD  float64
	MaxErrors   int
	MaxDuration time.Duration
}

// DefaultStopConfig returns limits suitable for an interactive session.
func DefaultStopConfig() StopConfig {
	return StopConfig{
		MaxSteps:    100,
		MaxTokens:   500000,
		MaxCostUSD:  10.0,
		MaxErrors:   10,
		MaxDuration: 30 * time.Minute,
	}
}

// StopDecision is the result of evaluating the stopping conditions.
type StopDecision struct {
	Stop   bool
	Reason string
}

// StopManager tracks cumulative steps, tokens, cost and errors across a
// multi-round session and decides when to force termination. Pure counters
// plus a decision function; no I/O. Advisory: callers consult it, nothing
// forces them to each round.
type StopManager struct {
	mu        sync.Mutex
	cfg       StopConfig
	steps     int
	tokens    int
	cost      float64
	errs      int
	startTime time.Time
	now       func() time.Time
}

// NewStopManager creates a manager with the given limits.
func NewStopManager(cfg StopConfig) *StopManager {
	m := &StopManager{cfg: cfg, now: time.Now}
	m.startTime = m.now()
	return m
}

// IncrementStep records one completed round.
func (m *StopManager) IncrementStep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps++
}

// AddTokens records n tokens of usage.
func (m *StopManager) AddTokens(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens += n
}

// AddCost records usd of estimated spend.
func (m *StopManager) AddCost(usd float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cost += usd
}

// IncrementError records one failed round.
func (m *StopManager) IncrementError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs++
}

// ElapsedTime returns the time since creation or the last Reset.
func (m *StopManager) ElapsedTime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now().Sub(m.startTime)
}

// Reset zeroes all counters and restarts the clock.
func (m *StopManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = 0
	m.tokens = 0
	m.cost = 0
	m.errs = 0
	m.startTime = m.now()
}

// ShouldStop evaluates the conditions in fixed priority order: steps,
// tokens, cost, errors, elapsed time. The first violated condition's
// reason is reported.
func (m *StopManager) ShouldStop() StopDecision {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.MaxSteps > 0 && m.steps >= m.cfg.MaxSteps {
		return StopDecision{Stop: true, Reason: fmt.Sprintf("step limit reached (%d steps)", m.steps)}
	}
	if m.cfg.MaxTokens > 0 && m.tokens >= m.cfg.MaxTokens {
		return StopDecision{Stop: true, Reason: fmt.Sprintf("token limit reached (%d tokens)", m.tokens)}
	}
	if m.cfg.MaxCostUSD > 0 && m.cost >= m.cfg.MaxCostUSD {
		return StopDecision{Stop: true, Reason: fmt.Sprintf("cost budget reached ($%.2f)", m.cost)}
	}
	if m.cfg.MaxErrors > 0 && m.errs >= m.cfg.MaxErrors {
		return StopDecision{Stop: true, Reason: fmt.Sprintf("error threshold reached (%d errors)", m.errs)}
	}
	if m.cfg.MaxDuration > 0 {
		if elapsed := m.now().Sub(m.startTime); elapsed >= m.cfg.MaxDuration {
			return StopDecision{Stop: true, Reason: fmt.Sprintf("time limit reached (%s elapsed)", elapsed.Round(time.Second))}
		}
	}
	return StopDecision{}
}

// SuccessCriteria is an optional user-supplied predicate, e.g. "did a
// validation tool report success this round".
type SuccessCriteria func(ctx context.Context) (bool, error)

// CheckSuccessCriteria evaluates the predicate and reports met/not-met.
// A predicate error or panic is reported as not met rather than propagated.
func (m *StopManager) CheckSuccessCriteria(ctx context.Context, criteria SuccessCriteria) (met bool) {
	if criteria == nil {
		return false
	}
	defer func() {
		if recover() != nil {
			met = false
		}
	}()
	ok, err := criteria(ctx)
	if err != nil {
		return false
	}
	return ok
}
