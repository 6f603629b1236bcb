package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sisirapr/doc-qa-system/internal/core/domain"
)

type recordedSleeps struct {
	waits []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func TestRetrySleepsOncePerFailureBeforeSuccess(t *testing.T) {
	rec := &recordedSleeps{}
	policy := RetryPolicy{
		MaxAttempts:    5,
		BaseDelay:      10 * time.Millisecond,
		MaxDelay:       time.Second,
		Multiplier:     2,
		RetryableKinds: []error{domain.ErrTemporary},
		Sleep:          rec.sleep,
	}

	attempts := 0
	err := Retry(context.Background(), policy, func(context.Context) error {
		attempts++
		if attempts <= 2 {
			return domain.WrapError(domain.ErrTemporary, "op", errors.New("flaky"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if len(rec.waits) != 2 {
		t.Fatalf("expected 2 delays, got %d", len(rec.waits))
	}
}

func TestRetryAlwaysFailingReturnsLastError(t *testing.T) {
	rec := &recordedSleeps{}
	policy := RetryPolicy{
		MaxAttempts:    4,
		BaseDelay:      time.Millisecond,
		MaxDelay:       time.Millisecond,
		RetryableKinds: []error{domain.ErrTemporary},
		Sleep:          rec.sleep,
	}

	attempts := 0
	var last error
	err := Retry(context.Background(), policy, func(context.Context) error {
		attempts++
		last = domain.WrapError(domain.ErrTemporary, "op", errors.New("down"))
		return last
	})
	if err != last {
		t.Fatalf("expected last error to be returned, got %v", err)
	}
	if attempts != 4 {
		t.Fatalf("expected 4 attempts, got %d", attempts)
	}
	if len(rec.waits) != 3 {
		t.Fatalf("expected no delay after final attempt, got %d delays", len(rec.waits))
	}
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	rec := &recordedSleeps{}
	policy := RetryPolicy{
		MaxAttempts:    3,
		RetryableKinds: []error{domain.ErrTemporary},
		Sleep:          rec.sleep,
	}

	attempts := 0
	err := Retry(context.Background(), policy, func(context.Context) error {
		attempts++
		return domain.ErrAuthenticationFailed
	})
	if !errors.Is(err, domain.ErrAuthenticationFailed) {
		t.Fatalf("expected auth failure, got %v", err)
	}
	if attempts != 1 || len(rec.waits) != 0 {
		t.Fatalf("expected single attempt without delay, got attempts=%d delays=%d", attempts, len(rec.waits))
	}
}

func TestRetryNeverRetriesOpenCircuit(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts:    3,
		RetryableKinds: []error{domain.ErrCircuitOpen},
		Sleep:          (&recordedSleeps{}).sleep,
	}

	attempts := 0
	_ = Retry(context.Background(), policy, func(context.Context) error {
		attempts++
		return domain.ErrCircuitOpen
	})
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetryBackoffIsExponentialAndCapped(t *testing.T) {
	rec := &recordedSleeps{}
	policy := RetryPolicy{
		MaxAttempts:    5,
		BaseDelay:      100 * time.Millisecond,
		MaxDelay:       300 * time.Millisecond,
		Multiplier:     2,
		RetryableKinds: []error{domain.ErrTemporary},
		Sleep:          rec.sleep,
	}

	_ = Retry(context.Background(), policy, func(context.Context) error {
		return domain.ErrTemporary
	})

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	if len(rec.waits) != len(want) {
		t.Fatalf("expected %d delays, got %v", len(want), rec.waits)
	}
	for i := range want {
		if rec.waits[i] != want[i] {
			t.Fatalf("delay %d: expected %s, got %s", i, want[i], rec.waits[i])
		}
	}
}

func TestRetryJitterStaysWithinBounds(t *testing.T) {
	p := RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
		Multiplier:  2,
		Jitter:      0.15,
	}.normalize()

	for i := 0; i < 1000; i++ {
		d := p.delay(2)
		if d < 1700*time.Millisecond || d > 2300*time.Millisecond {
			t.Fatalf("jittered delay out of bounds: %s", d)
		}
	}
}

func TestRetryCancelledDuringPauseReturnsAttemptError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{
		MaxAttempts:    3,
		BaseDelay:      time.Hour,
		MaxDelay:       time.Hour,
		RetryableKinds: []error{domain.ErrTemporary},
	}

	attempts := 0
	errFlaky := domain.WrapError(domain.ErrTemporary, "op", errors.New("flaky"))
	err := Retry(ctx, policy, func(context.Context) error {
		attempts++
		cancel()
		return errFlaky
	})
	if err != errFlaky {
		t.Fatalf("expected attempt error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetryValueReturnsResult(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts:    2,
		RetryableKinds: []error{domain.ErrRateLimited},
		Sleep:          (&recordedSleeps{}).sleep,
	}

	calls := 0
	got, err := RetryValue(context.Background(), policy, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, domain.ErrRateLimited
		}
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Fatalf("expected 42, got %d err=%v", got, err)
	}
}

func TestRetryCountsAttemptTimeoutAsFailedAttempt(t *testing.T) {
	rec := &recordedSleeps{}
	policy := RetryPolicy{
		MaxAttempts:    3,
		RetryableKinds: []error{domain.ErrTemporary},
		Sleep:          rec.sleep,
	}

	attempts := 0
	err := Retry(context.Background(), policy, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("request: %w", context.DeadlineExceeded)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after timed-out attempts, got %v", err)
	}
	if attempts != 3 || len(rec.waits) != 2 {
		t.Fatalf("expected 3 attempts and 2 delays, got attempts=%d delays=%d", attempts, len(rec.waits))
	}
}

func TestRetryStopsWhenCallerDeadlinePassed(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	<-ctx.Done()

	policy := RetryPolicy{
		MaxAttempts:    3,
		RetryableKinds: []error{domain.ErrTemporary},
		Sleep:          (&recordedSleeps{}).sleep,
	}
	attempts := 0
	err := Retry(ctx, policy, func(context.Context) error {
		attempts++
		return domain.WrapError(domain.ErrTemporary, "op", errors.New("flaky"))
	})
	if !errors.Is(err, context.DeadlineExceeded) || attempts != 0 {
		t.Fatalf("expected caller deadline without attempts, got attempts=%d err=%v", attempts, err)
	}
}

func TestAttemptTimedOutIgnoresExpiredCallerContext(t *testing.T) {
	if !AttemptTimedOut(context.Background(), fmt.Errorf("x: %w", context.DeadlineExceeded)) {
		t.Fatalf("expected attempt timeout with live caller context")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if AttemptTimedOut(ctx, context.DeadlineExceeded) {
		t.Fatalf("expected no attempt timeout once caller context is done")
	}
	if AttemptTimedOut(context.Background(), errors.New("boom")) {
		t.Fatalf("expected plain error not to count as timeout")
	}
}
