// Package breaker implements a three-state circuit breaker with a
// process-wide named registry, so independent components calling the same
// downstream share one failure budget.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the breaker's position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrOpen is returned when the breaker rejects a call without running it.
var ErrOpen = errors.New("circuit breaker is open")

// ErrTimeout is returned when an operation exceeds the breaker's timeout.
// It counts as a failure like any other error.
var ErrTimeout = errors.New("circuit breaker: operation timed out")

// Config tunes one breaker.
type Config struct {
	// FailureThreshold is the consecutive-failure count that trips the
	// breaker from CLOSED to OPEN.
	FailureThreshold int

	// SuccessThreshold is the consecutive-success count in HALF_OPEN
	// required to close the breaker again.
	SuccessThreshold int

	// ResetTimeout is how long the breaker stays OPEN before letting a
	// probe through in HALF_OPEN.
	ResetTimeout time.Duration

	// Timeout bounds each operation. Zero disables the per-call timeout.
	Timeout time.Duration
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		ResetTimeout:     30 * time.Second,
	}
}

// Breaker guards calls to one downstream dependency.
type Breaker struct {
	cfg Config

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time

	now func() time.Time
}

// New creates a breaker in the CLOSED state. Zero thresholds fall back to
// the defaults.
func New(cfg Config) *Breaker {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	return &Breaker{cfg: cfg, state: StateClosed, now: time.Now}
}

// State reports the current state, promoting OPEN to HALF_OPEN once the
// reset timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked()
	return b.state
}

// Do runs op through the breaker. An OPEN breaker fails fast with ErrOpen.
// When a timeout is configured, op keeps its own context but the breaker
// settles the call as ErrTimeout once the deadline passes; a late result
// from an abandoned call is discarded rather than double-counted.
func (b *Breaker) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	if b.cfg.Timeout <= 0 {
		err := op(ctx)
		b.settleUnlessCanceled(ctx, err)
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- op(opCtx) }()

	select {
	case err := <-done:
		if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = ErrTimeout
		}
		b.settleUnlessCanceled(ctx, err)
		return err
	case <-opCtx.Done():
		// A caller-side cancel says nothing about the dependency's health;
		// only the breaker's own deadline counts as a failure.
		if err := ctx.Err(); err != nil {
			return err
		}
		b.settle(ErrTimeout)
		return ErrTimeout
	}
}

// settleUnlessCanceled records the outcome, except when the error is the
// caller's own cancellation propagating back through op.
func (b *Breaker) settleUnlessCanceled(ctx context.Context, err error) {
	if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return
	}
	b.settle(err)
}

// Execute runs a value-returning operation through the breaker.
func Execute[T any](ctx context.Context, b *Breaker, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := b.Do(ctx, func(ctx context.Context) error {
		var opErr error
		out, opErr = op(ctx)
		return opErr
	})
	return out, err
}

// Reset forces the breaker back to CLOSED with counters cleared.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked()
	if b.state == StateOpen {
		return ErrOpen
	}
	return nil
}

func (b *Breaker) maybeHalfOpenLocked() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		b.state = StateHalfOpen
		b.successes = 0
	}
}

func (b *Breaker) settle(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailureLocked()
	} else {
		b.onSuccessLocked()
	}
}

func (b *Breaker) onSuccessLocked() {
	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
		}
	}
}

func (b *Breaker) onFailureLocked() {
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.trip()
		}
	case StateHalfOpen:
		// Any probe failure reopens immediately.
		b.trip()
	}
}

func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.successes = 0
}

var (
	registryMu sync.Mutex
	registry   = make(map[string]*Breaker)
)

// Get returns the named breaker, creating it with cfg on first use. Later
// callers share the existing breaker; their cfg is ignored.
func Get(name string, cfg Config) *Breaker {
	registryMu.Lock()
	defer registryMu.Unlock()
	if b, ok := registry[name]; ok {
		return b
	}
	b := New(cfg)
	registry[name] = b
	return b
}

// ResetAll resets every registered breaker to CLOSED.
func ResetAll() {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, b := range registry {
		b.Reset()
	}
}
