package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/sisirapr/doc-qa-system/internal/core/domain"
	"github.com/sisirapr/doc-qa-system/internal/core/ports"
	"github.com/sisirapr/doc-qa-system/internal/infrastructure/resilience"
	"github.com/sisirapr/doc-qa-system/internal/infrastructure/vector"
)

var errNoProvider = errors.New("embedding provider not configured")

type Options struct {
	// Dimension every returned vector must have.
	Dimension int
	// Workers bounds concurrent provider calls in EmbedChunks.
	Workers int
	// BatchSize is the number of chunk texts sent per provider call.
	BatchSize int
	// Fallback serves requests when the provider is absent or failing.
	// Nil disables fallback and surfaces provider failures.
	Fallback ports.EmbeddingProvider
	// Executor guards provider calls. Nil calls the provider directly.
	Executor   *resilience.Executor
	Classifier resilience.ErrorClassifier
	OnFallback func(reason string)
}

// Service turns text into normalized, dimension-checked vectors. It is safe
// for concurrent use and is built once per process.
type Service struct {
	provider ports.EmbeddingProvider
	opts     Options
}

func NewService(provider ports.EmbeddingProvider, opts Options) *Service {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 16
	}
	return &Service{provider: provider, opts: opts}
}

func (s *Service) Dimension() int { return s.opts.Dimension }

func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.embedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedChunks embeds chunk contents in bounded-concurrency batches. The
// result keeps the input order regardless of completion order.
func (s *Service) EmbedChunks(ctx context.Context, chunks []domain.Chunk) ([]domain.EmbeddedChunk, error) {
	out := make([]domain.EmbeddedChunk, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)

	for start := 0; start < len(chunks); start += s.opts.BatchSize {
		end := min(start+s.opts.BatchSize, len(chunks))
		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, c := range chunks[start:end] {
				texts = append(texts, c.Content)
			}
			vectors, err := s.embedTexts(gctx, texts)
			if err != nil {
				return err
			}
			for i, v := range vectors {
				out[start+i] = domain.EmbeddedChunk{Chunk: chunks[start+i], Vector: v}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateDimension checks the configured dimension against the index and
// embeds one sample through the provider so a mismatched model fails at startup.
func (s *Service) ValidateDimension(ctx context.Context, indexDimension int) error {
	if s.opts.Dimension != indexDimension {
		return domain.WrapError(domain.ErrDimensionMismatch, "embedding.validate",
			fmt.Errorf("embedding dimension %d, index dimension %d", s.opts.Dimension, indexDimension))
	}
	if s.provider == nil {
		return nil
	}

	raw, err := s.callProvider(ctx, []string{"dimension check"})
	if err != nil {
		slog.Warn("embedding_dimension_check_failed", "error", err)
		return nil
	}
	return s.checkDimension(raw[0])
}

func (s *Service) embedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	raw, err := s.callProvider(ctx, texts)
	if err != nil {
		if errors.Is(err, domain.ErrDimensionMismatch) || ctx.Err() != nil {
			return nil, err
		}
		if s.opts.Fallback == nil {
			return nil, domain.WrapError(domain.ErrEmbedding, "embed", err)
		}
		reason := fallbackReason(err)
		if reason == "no_provider" {
			slog.Debug("embedding_fallback", "texts", len(texts), "reason", reason)
		} else {
			slog.Warn("embedding_fallback", "texts", len(texts), "reason", reason, "error", err)
		}
		if s.opts.OnFallback != nil {
			s.opts.OnFallback(reason)
		}
		raw, err = s.opts.Fallback.EmbedTexts(ctx, texts)
		if err != nil {
			return nil, domain.WrapError(domain.ErrEmbedding, "embed.fallback", err)
		}
		if len(raw) != len(texts) {
			return nil, domain.WrapError(domain.ErrEmbedding, "embed.fallback",
				fmt.Errorf("got %d vectors for %d texts", len(raw), len(texts)))
		}
	}

	out := make([][]float32, len(raw))
	for i, v := range raw {
		if err := s.checkDimension(v); err != nil {
			return nil, err
		}
		out[i] = vector.Normalize(v)
	}
	return out, nil
}

func (s *Service) callProvider(ctx context.Context, texts []string) ([][]float32, error) {
	if s.provider == nil {
		return nil, errNoProvider
	}

	call := func(ctx context.Context) ([][]float32, error) {
		raw, err := s.provider.EmbedTexts(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(raw) != len(texts) {
			return nil, fmt.Errorf("provider returned %d vectors for %d texts", len(raw), len(texts))
		}
		return raw, nil
	}
	if s.opts.Executor == nil {
		return call(ctx)
	}
	return resilience.Call(ctx, s.opts.Executor, "embed", call, s.opts.Classifier)
}

func (s *Service) checkDimension(v []float32) error {
	if s.opts.Dimension > 0 && len(v) != s.opts.Dimension {
		return domain.WrapError(domain.ErrDimensionMismatch, "embed",
			fmt.Errorf("got %d, want %d", len(v), s.opts.Dimension))
	}
	return nil
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, errNoProvider):
		return "no_provider"
	case errors.Is(err, domain.ErrCircuitOpen):
		return "circuit_open"
	default:
		return "provider_error"
	}
}
