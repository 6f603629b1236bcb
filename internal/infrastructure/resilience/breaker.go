package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/sisirapr/doc-qa-system/internal/core/domain"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

type BreakerConfig struct {
	Name             string
	FailureThreshold uint32
	RecoveryTimeout  time.Duration
	// IsFailure decides whether an error counts against the breaker.
	// Nil counts everything except caller cancellation.
	IsFailure     func(error) bool
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker guards one external dependency. It is safe for concurrent
// use; gobreaker serializes every state transition behind its own mutex.
type CircuitBreaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[any]
}

func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	def := DefaultConfig()
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.BreakerFailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = def.BreakerRecoveryTimeout
	}
	isFailure := cfg.IsFailure
	if isFailure == nil {
		isFailure = defaultIsFailure
	}
	threshold := cfg.FailureThreshold

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isFailure(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change", "dependency", name, "from", stateOf(from), "to", stateOf(to))
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(name, stateOf(from), stateOf(to))
			}
		},
	}

	return &CircuitBreaker{
		name: cfg.Name,
		cb:   gobreaker.NewCircuitBreaker[any](settings),
	}
}

// Execute runs fn unless the breaker is open, in which case fn is skipped and
// a CIRCUIT_OPEN error is returned.
func (b *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	if IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrCircuitOpen, b.name, err)
	}
	return err
}

func (b *CircuitBreaker) Name() string { return b.name }

func (b *CircuitBreaker) State() State {
	return stateOf(b.cb.State())
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func stateOf(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

func defaultIsFailure(err error) bool {
	var ignored *ignoredFailure
	if errors.As(err, &ignored) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// ignoredFailure carries an error through the breaker without counting it.
type ignoredFailure struct{ err error }

func (e *ignoredFailure) Error() string { return e.err.Error() }
func (e *ignoredFailure) Unwrap() error { return e.err }
