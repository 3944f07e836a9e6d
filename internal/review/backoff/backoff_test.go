package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDelayForAttempt_NoJitter_ConstantFactorOne(t *testing.T) {
	p := Policy{InitialDelay: 10 * time.Millisecond, MaxDelay: time.Second}
	for attempt := 1; attempt <= 3; attempt++ {
		got := DelayForAttempt(attempt, p, "seed")
		want := 10 * time.Millisecond * time.Duration(1<<uint(attempt-1))
		if got != want {
			t.Fatalf("attempt %d: got %v want %v", attempt, got, want)
		}
	}
}

func TestDelayForAttempt_CapsAtMaxDelay(t *testing.T) {
	p := Policy{InitialDelay: 50 * time.Millisecond, MaxDelay: 200 * time.Millisecond}
	if got := DelayForAttempt(1, p, "seed"); got != 50*time.Millisecond {
		t.Fatalf("attempt 1: got %v", got)
	}
	if got := DelayForAttempt(3, p, "seed"); got != 200*time.Millisecond {
		t.Fatalf("attempt 3: got %v want 200ms cap", got)
	}
	if got := DelayForAttempt(10, p, "seed"); got != 200*time.Millisecond {
		t.Fatalf("attempt 10: got %v want 200ms cap", got)
	}
}

func TestDelayForAttempt_JitterDeterministicAndBounded(t *testing.T) {
	p := Policy{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Jitter: true}
	d1 := DelayForAttempt(1, p, "seed-a")
	d2 := DelayForAttempt(1, p, "seed-a")
	if d1 != d2 {
		t.Fatalf("expected deterministic delay for the same seed: %v vs %v", d1, d2)
	}
	min := 80 * time.Millisecond
	max := 120 * time.Millisecond
	if d1 < min || d1 > max {
		t.Fatalf("delay %v outside jitter range [%v,%v]", d1, min, max)
	}
}

func TestDelayForAttempt_JitterNeverBelowFloor(t *testing.T) {
	p := Policy{InitialDelay: 1 * time.Millisecond, MaxDelay: time.Second, Jitter: true}
	got := DelayForAttempt(1, p, "any-seed")
	if got < 100*time.Millisecond {
		t.Fatalf("jittered delay %v below 100ms floor", got)
	}
}

func TestRun_MaxAttemptsOneNeverSleeps(t *testing.T) {
	calls := 0
	start := time.Now()
	err := Run(context.Background(), "seed", Policy{MaxAttempts: 1, InitialDelay: time.Hour}, func(context.Context) error {
		calls++
		return errors.New("boom")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 call, got %d", calls)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Fatalf("max_attempts=1 should never sleep, took %v", time.Since(start))
	}
}

func TestRun_RetriesUntilSuccess(t *testing.T) {
	attempts := 0
	err := Run(context.Background(), "seed", Policy{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
	}, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRun_NonRetryableFailsImmediately(t *testing.T) {
	attempts := 0
	sentinel := errors.New("fatal")
	err := Run(context.Background(), "seed", Policy{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		Retryable:    func(e error) bool { return !errors.Is(e, sentinel) },
	}, func(context.Context) error {
		attempts++
		return sentinel
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for non-retryable error, got %d", attempts)
	}
	if !errors.Is(err, ErrNonRetryable) {
		t.Fatalf("expected ErrNonRetryable wrapping, got %v", err)
	}
}

func TestRun_HonorsCancellationDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	attempts := 0
	err := Run(ctx, "seed", Policy{
		MaxAttempts:  10,
		InitialDelay: time.Second,
	}, func(context.Context) error {
		attempts++
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt before cancellation, got %d", attempts)
	}
}
