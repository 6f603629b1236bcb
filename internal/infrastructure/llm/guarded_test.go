package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sisirapr/doc-qa-system/internal/core/domain"
	"github.com/sisirapr/doc-qa-system/internal/infrastructure/resilience"
)

type flakyGenerator struct {
	calls int
	err   error
}

func (g *flakyGenerator) GenerateAnswer(context.Context, string, string) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return "ok", nil
}

func TestGuardedGeneratorOpensBreakerAfterFailures(t *testing.T) {
	next := &flakyGenerator{err: domain.WrapError(domain.ErrTemporary, "generate", errors.New("503"))}
	exec := resilience.NewExecutor("generation", resilience.Config{
		RetryMaxAttempts:        1,
		RetryBaseDelay:          time.Nanosecond,
		RetryMaxDelay:           time.Nanosecond,
		BreakerEnabled:          true,
		BreakerFailureThreshold: 2,
		BreakerRecoveryTimeout:  time.Hour,
	}, nil)
	g := NewGuardedGenerator(next, exec)

	for i := 0; i < 2; i++ {
		if _, err := g.GenerateAnswer(context.Background(), "q", ""); !domain.IsKind(err, domain.ErrTemporary) {
			t.Fatalf("call %d: expected ErrTemporary, got %v", i, err)
		}
	}
	if _, err := g.GenerateAnswer(context.Background(), "q", ""); !resilience.IsCircuitOpen(err) {
		t.Fatalf("expected open circuit, got %v", err)
	}
	if next.calls != 2 {
		t.Fatalf("expected open breaker to skip the provider, got %d calls", next.calls)
	}
}

func TestGuardedGeneratorWithoutExecutorCallsThrough(t *testing.T) {
	g := NewGuardedGenerator(&flakyGenerator{}, nil)
	out, err := g.GenerateAnswer(context.Background(), "q", "")
	if err != nil || out != "ok" {
		t.Fatalf("unexpected result %q err=%v", out, err)
	}
}
