package llm

import (
	"context"

	"github.com/sisirapr/doc-qa-system/internal/core/ports"
	"github.com/sisirapr/doc-qa-system/internal/infrastructure/resilience"
)

// GuardedGenerator runs a generator behind the generation executor, so a
// failing model trips its own breaker independently of embeddings.
type GuardedGenerator struct {
	next     ports.AnswerGenerator
	executor *resilience.Executor
}

func NewGuardedGenerator(next ports.AnswerGenerator, executor *resilience.Executor) *GuardedGenerator {
	return &GuardedGenerator{next: next, executor: executor}
}

func (g *GuardedGenerator) GenerateAnswer(ctx context.Context, question, passages string) (string, error) {
	if g.executor == nil {
		return g.next.GenerateAnswer(ctx, question, passages)
	}
	return resilience.Call(ctx, g.executor, "generate_answer", func(ctx context.Context) (string, error) {
		return g.next.GenerateAnswer(ctx, question, passages)
	}, nil)
}
