package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sisirapr/doc-qa-system/internal/core/domain"
)

type countingObserver struct {
	retries int
	states  []State
}

func (o *countingObserver) ObserveRetry(string, string) { o.retries++ }
func (o *countingObserver) ObserveBreakerState(_ string, s State) {
	o.states = append(o.states, s)
}

func TestExecuteRetriesTemporaryFailure(t *testing.T) {
	obs := &countingObserver{}
	exec := NewExecutor("ollama", Config{
		RetryMaxAttempts: 3,
		RetryBaseDelay:   1 * time.Millisecond,
		RetryMaxDelay:    2 * time.Millisecond,
		RetryMultiplier:  2,
		BreakerEnabled:   false,
	}, obs)

	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, func(err error) ErrorClassification {
		return ErrorClassification{
			Retryable:     errors.Is(err, errTemp),
			RecordFailure: true,
		}
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if obs.retries != 2 {
		t.Fatalf("expected 2 observed retries, got %d", obs.retries)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor("ollama", Config{
		RetryMaxAttempts: 3,
		RetryBaseDelay:   1 * time.Millisecond,
		RetryMaxDelay:    2 * time.Millisecond,
		RetryMultiplier:  2,
		BreakerEnabled:   false,
	}, nil)

	attempts := 0
	errPermanent := errors.New("permanent")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errPermanent
	}, func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	obs := &countingObserver{}
	exec := NewExecutor("qdrant", Config{
		RetryMaxAttempts:        1,
		RetryBaseDelay:          1 * time.Millisecond,
		RetryMaxDelay:           1 * time.Millisecond,
		BreakerEnabled:          true,
		BreakerFailureThreshold: 2,
		BreakerRecoveryTimeout:  time.Minute,
	}, obs)

	errDown := errors.New("down")
	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "op", func(context.Context) error {
			return errDown
		}, nil)
		if !errors.Is(err, errDown) {
			t.Fatalf("expected dependency error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, nil)
	if !errors.Is(err, domain.ErrCircuitOpen) {
		t.Fatalf("expected circuit open error, got %v", err)
	}
	if exec.State() != StateOpen {
		t.Fatalf("expected open state, got %s", exec.State())
	}
	if len(obs.states) != 1 || obs.states[0] != StateOpen {
		t.Fatalf("expected one open transition, got %v", obs.states)
	}
}

func TestExecuteUnrecordedFailureKeepsCircuitClosed(t *testing.T) {
	exec := NewExecutor("qdrant", Config{
		RetryMaxAttempts:        1,
		BreakerEnabled:          true,
		BreakerFailureThreshold: 1,
	}, nil)

	for i := 0; i < 3; i++ {
		err := exec.Execute(context.Background(), "op", func(context.Context) error {
			return domain.WrapError(domain.ErrInvalidInput, "op", errors.New("bad filter"))
		}, nil)
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("expected invalid input to pass through, got %v", err)
		}
	}
	if exec.State() != StateClosed {
		t.Fatalf("expected closed, got %s", exec.State())
	}
}

func TestCallReturnsValue(t *testing.T) {
	exec := NewExecutor("llm", Config{RetryMaxAttempts: 2, RetryBaseDelay: time.Millisecond, BreakerEnabled: true}, nil)

	calls := 0
	got, err := Call(context.Background(), exec, "generate", func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", domain.ErrTemporary
		}
		return "ok", nil
	}, nil)
	if err != nil || got != "ok" {
		t.Fatalf("expected ok, got %q err=%v", got, err)
	}
}
