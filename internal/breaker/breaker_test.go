package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func failN(b *Breaker, n int) {
	for i := 0; i < n; i++ {
		_ = b.Do(context.Background(), func(ctx context.Context) error { return errBoom })
	}
}

func succeed(b *Breaker) error {
	return b.Do(context.Background(), func(ctx context.Context) error { return nil })
}

func TestTripsAfterFailureThreshold(t *testing.T) {
	b := New(Config{FailureThreshold: 3, SuccessThreshold: 1, ResetTimeout: time.Minute})

	failN(b, 2)
	if got := b.State(); got != StateClosed {
		t.Fatalf("state after 2 failures = %v, want CLOSED", got)
	}

	failN(b, 1)
	if got := b.State(); got != StateOpen {
		t.Fatalf("state after 3 failures = %v, want OPEN", got)
	}

	err := b.Do(context.Background(), func(ctx context.Context) error {
		t.Fatal("operation ran while breaker open")
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("err = %v, want ErrOpen", err)
	}
}

func TestSuccessResetsFailureCountWhileClosed(t *testing.T) {
	b := New(Config{FailureThreshold: 3, SuccessThreshold: 1, ResetTimeout: time.Minute})

	failN(b, 2)
	if err := succeed(b); err != nil {
		t.Fatalf("success: %v", err)
	}
	failN(b, 2)
	if got := b.State(); got != StateClosed {
		t.Fatalf("state = %v, want CLOSED (counter should reset on success)", got)
	}
}

func TestHalfOpenRecovery(t *testing.T) {
	b := New(Config{FailureThreshold: 2, SuccessThreshold: 2, ResetTimeout: time.Minute})
	clock := time.Now()
	b.now = func() time.Time { return clock }

	failN(b, 2)
	if got := b.State(); got != StateOpen {
		t.Fatalf("state = %v, want OPEN", got)
	}

	clock = clock.Add(time.Minute)
	if got := b.State(); got != StateHalfOpen {
		t.Fatalf("state after reset timeout = %v, want HALF_OPEN", got)
	}

	if err := succeed(b); err != nil {
		t.Fatalf("probe 1: %v", err)
	}
	if got := b.State(); got != StateHalfOpen {
		t.Fatalf("state after 1 probe success = %v, want HALF_OPEN", got)
	}
	if err := succeed(b); err != nil {
		t.Fatalf("probe 2: %v", err)
	}
	if got := b.State(); got != StateClosed {
		t.Fatalf("state after %d probe successes = %v, want CLOSED", 2, got)
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b := New(Config{FailureThreshold: 2, SuccessThreshold: 2, ResetTimeout: time.Minute})
	clock := time.Now()
	b.now = func() time.Time { return clock }

	failN(b, 2)
	clock = clock.Add(time.Minute)
	if got := b.State(); got != StateHalfOpen {
		t.Fatalf("state = %v, want HALF_OPEN", got)
	}

	failN(b, 1)
	if got := b.State(); got != StateOpen {
		t.Fatalf("state after probe failure = %v, want OPEN", got)
	}
}

func TestTimeoutCountsAsFailure(t *testing.T) {
	b := New(Config{FailureThreshold: 1, SuccessThreshold: 1, ResetTimeout: time.Minute, Timeout: 10 * time.Millisecond})

	err := b.Do(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if got := b.State(); got != StateOpen {
		t.Fatalf("state = %v, want OPEN after timeout failure", got)
	}
}

func TestCallerCancelNotCountedAsFailure(t *testing.T) {
	b := New(Config{FailureThreshold: 1, SuccessThreshold: 1, ResetTimeout: time.Minute, Timeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Do(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if got := b.State(); got != StateClosed {
		t.Fatalf("state = %v, want CLOSED (caller cancel is not a dependency failure)", got)
	}
}

func TestExecuteReturnsValue(t *testing.T) {
	b := New(DefaultConfig())
	got, err := Execute(context.Background(), b, func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Fatalf("Execute = (%q, %v), want (ok, nil)", got, err)
	}
}

func TestRegistrySharesInstances(t *testing.T) {
	a := Get("test-shared", DefaultConfig())
	b := Get("test-shared", Config{FailureThreshold: 99})
	if a != b {
		t.Fatal("Get returned distinct breakers for the same name")
	}
	if a.cfg.FailureThreshold == 99 {
		t.Fatal("second Get overwrote the existing config")
	}

	failN(a, a.cfg.FailureThreshold)
	if got := b.State(); got != StateOpen {
		t.Fatalf("shared breaker state = %v, want OPEN", got)
	}

	ResetAll()
	if got := a.State(); got != StateClosed {
		t.Fatalf("state after ResetAll = %v, want CLOSED", got)
	}
}
