package resilience

import (
	"context"
	"log/slog"
)

// Retry runs op until it succeeds, fails with a non-retryable error, or the
// policy's attempts are exhausted. The final error is returned unchanged.
func Retry(ctx context.Context, policy RetryPolicy, op func(context.Context) error) error {
	_, err := RetryValue(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func RetryValue[T any](ctx context.Context, policy RetryPolicy, op func(context.Context) (T, error)) (T, error) {
	p := policy.normalize()
	var zero T

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		value, err := op(ctx)
		if err == nil {
			return value, nil
		}
		if !p.retryable(ctx, err) || attempt >= p.MaxAttempts {
			return zero, err
		}

		wait := p.delay(attempt)
		slog.Warn("retry_attempt",
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"backoff_ms", float64(wait.Microseconds())/1000.0,
			"error", err,
		)
		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, err)
		}

		// An interrupted pause still reports the attempt's own failure.
		if sleepErr := p.Sleep(ctx, wait); sleepErr != nil {
			return zero, err
		}
	}
}
