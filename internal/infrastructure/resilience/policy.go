package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net"
	"time"

	"github.com/sisirapr/doc-qa-system/internal/core/domain"
)

// RetryPolicy bounds how an operation is re-attempted.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	// Jitter is the relative spread applied to every delay (0.15 = ±15%).
	Jitter float64

	// RetryableKinds lists error kinds worth another attempt; anything else
	// is returned immediately.
	RetryableKinds []error
	// ShouldRetry overrides RetryableKinds when set.
	ShouldRetry func(error) bool

	// Sleep pauses between attempts. Nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called before each pause.
	OnRetry func(attempt int, wait time.Duration, err error)
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		BaseDelay:      1 * time.Second,
		MaxDelay:       10 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.15,
		RetryableKinds: []error{domain.ErrTemporary, domain.ErrRateLimited},
	}
}

// FixedRetryPolicy waits the same delay between every attempt.
func FixedRetryPolicy(attempts int, delay time.Duration, kinds ...error) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    attempts,
		BaseDelay:      delay,
		MaxDelay:       delay,
		Multiplier:     1.0,
		RetryableKinds: kinds,
	}
}

func (p RetryPolicy) normalize() RetryPolicy {
	out := p
	def := DefaultRetryPolicy()

	if out.MaxAttempts <= 0 {
		out.MaxAttempts = def.MaxAttempts
	}
	if out.BaseDelay < 0 {
		out.BaseDelay = 0
	}
	if out.MaxDelay < out.BaseDelay {
		out.MaxDelay = out.BaseDelay
	}
	if out.Multiplier < 1.0 {
		out.Multiplier = 1.0
	}
	if out.Jitter < 0 || out.Jitter >= 1 {
		out.Jitter = 0
	}
	if out.Sleep == nil {
		out.Sleep = sleepContext
	}
	return out
}

// retryable stops on the caller's own cancellation or deadline. A timeout of a
// single attempt while ctx is still live counts as a failed attempt.
func (p RetryPolicy) retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, domain.ErrCircuitOpen) {
		return false
	}
	if AttemptTimedOut(ctx, err) {
		return true
	}
	if p.ShouldRetry != nil {
		return p.ShouldRetry(err)
	}
	for _, kind := range p.RetryableKinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// AttemptTimedOut reports whether err is a timeout of one call (client or
// per-request timeout) while the caller's ctx has not expired.
func AttemptTimedOut(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// delay returns min(maxDelay, base*multiplier^(attempt-1)) with jitter applied.
func (p RetryPolicy) delay(attempt int) time.Duration {
	raw := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if raw > float64(p.MaxDelay) {
		raw = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		raw *= 1 + p.Jitter*(2*rand.Float64()-1)
	}
	return time.Duration(raw)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Config is the env-facing shape of one dependency's resilience settings.
type Config struct {
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	RetryMultiplier  float64
	RetryJitter      float64

	BreakerEnabled          bool
	BreakerFailureThreshold uint32
	BreakerRecoveryTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts: 3,
		RetryBaseDelay:   1 * time.Second,
		RetryMaxDelay:    10 * time.Second,
		RetryMultiplier:  2.0,
		RetryJitter:      0.15,

		BreakerEnabled:          true,
		BreakerFailureThreshold: 5,
		BreakerRecoveryTimeout:  30 * time.Second,
	}
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if out.RetryBaseDelay <= 0 {
		out.RetryBaseDelay = def.RetryBaseDelay
	}
	if out.RetryMaxDelay <= 0 {
		out.RetryMaxDelay = def.RetryMaxDelay
	}
	if out.RetryMaxDelay < out.RetryBaseDelay {
		out.RetryMaxDelay = out.RetryBaseDelay
	}
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.RetryMultiplier
	}
	if out.RetryJitter < 0 || out.RetryJitter >= 1 {
		out.RetryJitter = def.RetryJitter
	}
	if out.BreakerFailureThreshold == 0 {
		out.BreakerFailureThreshold = def.BreakerFailureThreshold
	}
	if out.BreakerRecoveryTimeout <= 0 {
		out.BreakerRecoveryTimeout = def.BreakerRecoveryTimeout
	}
	return out
}

// RetryPolicy derives the policy for the given retryable kinds.
func (c Config) RetryPolicy(kinds ...error) RetryPolicy {
	n := c.normalize()
	if len(kinds) == 0 {
		kinds = DefaultRetryPolicy().RetryableKinds
	}
	return RetryPolicy{
		MaxAttempts:    n.RetryMaxAttempts,
		BaseDelay:      n.RetryBaseDelay,
		MaxDelay:       n.RetryMaxDelay,
		Multiplier:     n.RetryMultiplier,
		Jitter:         n.RetryJitter,
		RetryableKinds: kinds,
	}
}
