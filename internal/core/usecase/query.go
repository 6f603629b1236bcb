package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sisirapr/doc-qa-system/internal/core/domain"
	"github.com/sisirapr/doc-qa-system/internal/core/ports"
)

const (
	DefaultAnswerThreshold  = 0.3
	DefaultMaxContextLength = 4000
	DefaultResultLimit      = 5
)

type AnswerPolicy struct {
	RelevanceThreshold float64
	MaxContextLength   int
	DefaultLimit       int
}

func DefaultAnswerPolicy() AnswerPolicy {
	return AnswerPolicy{
		RelevanceThreshold: DefaultAnswerThreshold,
		MaxContextLength:   DefaultMaxContextLength,
		DefaultLimit:       DefaultResultLimit,
	}
}

// QueryObserver receives one observation per answered question.
type QueryObserver interface {
	ObserveAnswer(sources int, fallback bool, duration time.Duration)
	ObserveGenerationFallback(reason string)
}

type QueryUseCase struct {
	embedder  ports.Embedder
	index     ports.VectorIndex
	generator ports.AnswerGenerator
	fallback  ports.AnswerGenerator
	policy    AnswerPolicy
	observer  QueryObserver
}

// NewQueryUseCase builds the answerer. generator may be nil, in which case
// every answer comes from fallback.
func NewQueryUseCase(
	embedder ports.Embedder,
	index ports.VectorIndex,
	generator ports.AnswerGenerator,
	fallback ports.AnswerGenerator,
	policy AnswerPolicy,
	observer QueryObserver,
) *QueryUseCase {
	if policy.MaxContextLength <= 0 {
		policy.MaxContextLength = DefaultMaxContextLength
	}
	if policy.DefaultLimit <= 0 {
		policy.DefaultLimit = DefaultResultLimit
	}
	return &QueryUseCase{
		embedder:  embedder,
		index:     index,
		generator: generator,
		fallback:  fallback,
		policy:    policy,
		observer:  observer,
	}
}

func (uc *QueryUseCase) Answer(
	ctx context.Context,
	question string,
	limit int,
	filter domain.SearchFilter,
) (*domain.Answer, error) {
	start := time.Now()
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer", errors.New("question is required"))
	}
	if limit <= 0 {
		limit = uc.policy.DefaultLimit
	}

	queryVector, err := uc.embedder.Embed(ctx, question)
	if err != nil {
		return nil, domain.WrapError(domain.ErrDocumentQA, "embed query", err)
	}

	hits, err := uc.index.Search(ctx, queryVector, limit, filter)
	if err != nil {
		return nil, domain.WrapError(domain.ErrDocumentQA, "search vector index", err)
	}
	sources := FilterByScore(hits, uc.policy.RelevanceThreshold)

	passages, truncated := BuildContext(sources, uc.policy.MaxContextLength)
	text, usedFallback, err := uc.generate(ctx, question, passages)
	if err != nil {
		return nil, domain.WrapError(domain.ErrDocumentQA, "generate answer", err)
	}

	confidence := domain.ConfidenceLow
	if len(sources) > 0 {
		confidence = domain.ConfidenceHigh
	}
	if uc.observer != nil {
		uc.observer.ObserveAnswer(len(sources), usedFallback, time.Since(start))
	}
	return &domain.Answer{
		Text:             text,
		Sources:          sources,
		Confidence:       confidence,
		ContextTruncated: truncated,
		Fallback:         usedFallback,
	}, nil
}

// generate degrades to the fallback generator when the provider is absent
// or fails. Only a missing fallback surfaces an error.
func (uc *QueryUseCase) generate(ctx context.Context, question, passages string) (string, bool, error) {
	reason := "no_provider"
	if uc.generator != nil {
		text, err := uc.generator.GenerateAnswer(ctx, question, passages)
		if err == nil {
			return text, false, nil
		}
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		if uc.fallback == nil {
			return "", false, err
		}
		reason = "provider_error"
		if domain.IsKind(err, domain.ErrCircuitOpen) {
			reason = "circuit_open"
		}
		slog.Warn("generation_fallback", "reason", reason, "error", err)
	} else if uc.fallback == nil {
		return "", false, errors.New("no answer generator configured")
	}

	if uc.observer != nil {
		uc.observer.ObserveGenerationFallback(reason)
	}
	text, err := uc.fallback.GenerateAnswer(ctx, question, passages)
	if err != nil {
		return "", true, fmt.Errorf("fallback generator: %w", err)
	}
	return text, true, nil
}

// FilterByScore keeps hits scoring at least threshold, preserving order.
func FilterByScore(hits []domain.SearchHit, threshold float64) []domain.SearchHit {
	out := make([]domain.SearchHit, 0, len(hits))
	for _, h := range hits {
		if h.Score >= threshold {
			out = append(out, h)
		}
	}
	return out
}

// BuildContext joins hit contents as "[rank] content" blocks separated by
// domain.ContextDelimiter. Once maxLen runes are reached the text is cut
// and domain.ContextTruncationMarker appended.
func BuildContext(hits []domain.SearchHit, maxLen int) (string, bool) {
	var b strings.Builder
	length := 0
	for i, h := range hits {
		sep := ""
		if i > 0 {
			sep = domain.ContextDelimiter
		}
		block := fmt.Sprintf("[%d] %s", i+1, strings.TrimSpace(h.Point.Payload.Content))
		need := utf8.RuneCountInString(sep) + utf8.RuneCountInString(block)
		if length+need > maxLen {
			remaining := maxLen - length
			piece := []rune(sep + block)
			if remaining > 0 {
				b.WriteString(string(piece[:remaining]))
			}
			b.WriteString(domain.ContextTruncationMarker)
			return b.String(), true
		}
		b.WriteString(sep)
		b.WriteString(block)
		length += need
	}
	return b.String(), false
}
