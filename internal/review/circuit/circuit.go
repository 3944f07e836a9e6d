// Package circuit implements the circuit breaker that guards calls to
// degraded external services (search providers, LLM backends, PDF
// retrieval) so repeated failures stop hammering a provider that is down.
package circuit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// State mirrors spec.md §4.2's three-state model.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// ErrCircuitOpen is returned by Call when the breaker is open and the
// wrapped operation was never invoked.
var ErrCircuitOpen = errors.New("circuit breaker: open")

// Breaker wraps gobreaker.CircuitBreaker to expose the exact vocabulary
// spec.md §4.2 specifies: failure_threshold consecutive failures trip the
// breaker closed->open; after timeout the first call attempted is let
// through as a half-open probe; success_threshold consecutive successes in
// half-open close the breaker; any half-open failure reopens it.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[any]

	mu           sync.Mutex
	lastFailure  time.Time
	failureCount int
}

// NewBreaker builds a breaker with the given name and spec-level knobs.
func NewBreaker(name string, failureThreshold, successThreshold int, timeout time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = 1
	}
	if successThreshold <= 0 {
		successThreshold = 1
	}

	b := &Breaker{name: name}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(successThreshold),
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failureThreshold)
		},
		OnStateChange: func(_ string, from gobreaker.State, to gobreaker.State) {
			b.mu.Lock()
			defer b.mu.Unlock()
			if to == gobreaker.StateOpen {
				b.lastFailure = time.Now()
			}
			if from == gobreaker.StateOpen || to == gobreaker.StateClosed {
				b.failureCount = 0
			}
		},
	}
	b.cb = gobreaker.NewCircuitBreaker[any](settings)
	return b
}

// State returns the breaker's current state.
func (b *Breaker) State() State {
	switch b.cb.State() {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Call invokes op under the breaker. If the breaker is open, op is never
// invoked and ErrCircuitOpen is returned immediately. State transitions and
// counters are mutex-guarded inside gobreaker; the lock is held only for
// state bookkeeping, not for the duration of op.
func (b *Breaker) Call(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := b.cb.Execute(func() (any, error) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, op(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

// LastFailure returns the timestamp of the most recent trip to open, or the
// zero Time if the breaker has never opened.
func (b *Breaker) LastFailure() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastFailure
}

// Counts exposes the raw gobreaker counters for diagnostics/observability.
func (b *Breaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}
