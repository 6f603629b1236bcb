package resilience

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sisirapr/doc-qa-system/internal/core/domain"
)

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// Observer receives resilience events, typically for metrics.
type Observer interface {
	ObserveRetry(dependency, operation string)
	ObserveBreakerState(dependency string, state State)
}

// Executor applies retry inside a circuit breaker for one external dependency.
// A call rejected by an open breaker is never retried.
type Executor struct {
	dependency string
	policy     RetryPolicy
	breaker    *CircuitBreaker
	observer   Observer
}

func NewExecutor(dependency string, cfg Config, observer Observer) *Executor {
	n := cfg.normalize()
	e := &Executor{
		dependency: dependency,
		policy:     n.RetryPolicy(),
		observer:   observer,
	}
	if n.BreakerEnabled {
		e.breaker = NewCircuitBreaker(BreakerConfig{
			Name:             dependency,
			FailureThreshold: n.BreakerFailureThreshold,
			RecoveryTimeout:  n.BreakerRecoveryTimeout,
			OnStateChange: func(name string, _, to State) {
				if observer != nil {
					observer.ObserveBreakerState(name, to)
				}
			},
		})
	}
	return e
}

// WithRetryPolicy returns a copy of e sharing the breaker but retrying per p.
func (e *Executor) WithRetryPolicy(p RetryPolicy) *Executor {
	clone := *e
	clone.policy = p
	return &clone
}

func (e *Executor) Dependency() string { return e.dependency }

func (e *Executor) State() State {
	if e.breaker == nil {
		return StateClosed
	}
	return e.breaker.State()
}

func (e *Executor) Execute(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classifier == nil {
		classifier = DefaultClassifier
	}

	policy := e.policy
	policy.ShouldRetry = func(err error) bool {
		return classifier(err).Retryable
	}
	prevOnRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, wait time.Duration, err error) {
		if e.observer != nil {
			e.observer.ObserveRetry(e.dependency, op)
		}
		if prevOnRetry != nil {
			prevOnRetry(attempt, wait, err)
		}
	}

	if e.breaker == nil {
		return Retry(ctx, policy, fn)
	}

	err := e.breaker.Execute(ctx, func(ctx context.Context) error {
		err := Retry(ctx, policy, fn)
		if err != nil && !classifier(err).RecordFailure {
			return &ignoredFailure{err: err}
		}
		return err
	})
	var ignored *ignoredFailure
	if errors.As(err, &ignored) {
		return ignored.err
	}
	return err
}

// Call is Execute for operations that return a value.
func Call[T any](
	ctx context.Context,
	e *Executor,
	operation string,
	fn func(context.Context) (T, error),
	classifier ErrorClassifier,
) (T, error) {
	var out T
	err := e.Execute(ctx, operation, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, classifier)
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// DefaultClassifier retries transient and rate-limited failures and lets
// caller mistakes through without tripping the breaker.
func DefaultClassifier(err error) ErrorClassification {
	switch {
	case errors.Is(err, context.Canceled):
		return ErrorClassification{Retryable: false, RecordFailure: false}
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrDocumentNotFound):
		return ErrorClassification{Retryable: false, RecordFailure: false}
	case errors.Is(err, domain.ErrTemporary), errors.Is(err, domain.ErrRateLimited):
		return ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return ErrorClassification{Retryable: false, RecordFailure: true}
	}
}
