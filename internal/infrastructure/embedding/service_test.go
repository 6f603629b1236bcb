package embedding

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/sisirapr/doc-qa-system/internal/core/domain"
	"github.com/sisirapr/doc-qa-system/internal/infrastructure/resilience"
	"github.com/sisirapr/doc-qa-system/internal/infrastructure/vector"
)

type fakeProvider struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, texts []string) ([][]float32, error)
}

func (f *fakeProvider) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.fn(call, texts)
}

func constVectors(dim int, value float32, n int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = value
		}
		out[i] = v
	}
	return out
}

func assertUnit(t *testing.T, v []float32) {
	t.Helper()
	if n := vector.Norm(v); math.Abs(n-1) > 1e-6 {
		t.Fatalf("expected unit norm, got %f", n)
	}
}

func TestHashEmbedderIsDeterministic(t *testing.T) {
	h := NewHashEmbedder(64)
	a, _ := h.EmbedTexts(context.Background(), []string{"The cat sat on the mat."})
	b, _ := h.EmbedTexts(context.Background(), []string{"The cat sat on the mat."})
	if len(a[0]) != 64 {
		t.Fatalf("expected dimension 64, got %d", len(a[0]))
	}
	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatalf("expected identical vectors")
		}
	}
}

func TestHashEmbedderRanksSharedVocabularyHigher(t *testing.T) {
	h := NewHashEmbedder(256)
	vs, _ := h.EmbedTexts(context.Background(), []string{
		"refund policy for damaged goods",
		"what is the refund policy",
		"quarterly revenue grew in europe",
	})
	related := vector.Cosine(vs[0], vs[1])
	unrelated := vector.Cosine(vs[0], vs[2])
	if related <= unrelated {
		t.Fatalf("expected related %f > unrelated %f", related, unrelated)
	}
}

func TestEmbedWithoutProviderUsesFallback(t *testing.T) {
	var reasons []string
	svc := NewService(nil, Options{
		Dimension:  32,
		Fallback:   NewHashEmbedder(32),
		OnFallback: func(reason string) { reasons = append(reasons, reason) },
	})

	v, err := svc.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertUnit(t, v)
	if len(reasons) != 1 || reasons[0] != "no_provider" {
		t.Fatalf("expected no_provider fallback, got %v", reasons)
	}
}

func TestEmbedNormalizesProviderOutput(t *testing.T) {
	provider := &fakeProvider{fn: func(_ int, texts []string) ([][]float32, error) {
		return constVectors(8, 3, len(texts)), nil
	}}
	svc := NewService(provider, Options{Dimension: 8})

	v, err := svc.Embed(context.Background(), "anything")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertUnit(t, v)
}

func TestEmbedKeepsZeroVector(t *testing.T) {
	provider := &fakeProvider{fn: func(_ int, texts []string) ([][]float32, error) {
		return constVectors(4, 0, len(texts)), nil
	}}
	svc := NewService(provider, Options{Dimension: 4})

	v, err := svc.Embed(context.Background(), "anything")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, x := range v {
		if x != 0 {
			t.Fatalf("expected zero vector, got %v", v)
		}
	}
}

func TestEmbedFallsBackWhenProviderFails(t *testing.T) {
	provider := &fakeProvider{fn: func(int, []string) ([][]float32, error) {
		return nil, errors.New("connection refused")
	}}
	fallback := NewHashEmbedder(16)
	svc := NewService(provider, Options{Dimension: 16, Fallback: fallback})

	got, err := svc.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	raw, _ := fallback.EmbedTexts(context.Background(), []string{"hello"})
	want := vector.Normalize(raw[0])
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected fallback vector")
		}
	}
}

func TestEmbedWithoutFallbackSurfacesEmbeddingError(t *testing.T) {
	provider := &fakeProvider{fn: func(int, []string) ([][]float32, error) {
		return nil, domain.WrapError(domain.ErrAuthenticationFailed, "embed", errors.New("401"))
	}}
	svc := NewService(provider, Options{Dimension: 16})

	_, err := svc.Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrEmbedding) {
		t.Fatalf("expected EMBEDDING_ERROR, got %v", err)
	}
	if !errors.Is(err, domain.ErrAuthenticationFailed) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}
}

func TestEmbedDimensionMismatchIsFatal(t *testing.T) {
	provider := &fakeProvider{fn: func(_ int, texts []string) ([][]float32, error) {
		return constVectors(12, 1, len(texts)), nil
	}}
	svc := NewService(provider, Options{Dimension: 16, Fallback: NewHashEmbedder(16)})

	_, err := svc.Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected DIMENSION_MISMATCH, got %v", err)
	}
}

func TestEmbedRetriesThroughExecutor(t *testing.T) {
	provider := &fakeProvider{fn: func(call int, texts []string) ([][]float32, error) {
		if call < 3 {
			return nil, domain.WrapError(domain.ErrTemporary, "embed", errors.New("503"))
		}
		return constVectors(4, 1, len(texts)), nil
	}}
	exec := resilience.NewExecutor("embedding", resilience.Config{
		RetryMaxAttempts: 3,
		RetryBaseDelay:   time.Millisecond,
		RetryMaxDelay:    time.Millisecond,
		BreakerEnabled:   true,
	}, nil)
	svc := NewService(provider, Options{Dimension: 4, Executor: exec})

	if _, err := svc.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.calls != 3 {
		t.Fatalf("expected 3 provider calls, got %d", provider.calls)
	}
}

func TestEmbedChunksPreservesOrder(t *testing.T) {
	// Later batches finish first; each vector encodes its chunk index.
	provider := &fakeProvider{fn: func(_ int, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			idx := float32(text[0] - 'a')
			time.Sleep(time.Duration(26-idx) * time.Millisecond)
			out[i] = []float32{idx + 1, 0}
		}
		return out, nil
	}}
	svc := NewService(provider, Options{Dimension: 2, Workers: 4, BatchSize: 1})

	chunks := make([]domain.Chunk, 6)
	for i := range chunks {
		chunks[i] = domain.Chunk{Index: i, Content: string(rune('a' + i))}
	}
	embedded, err := svc.EmbedChunks(context.Background(), chunks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, ec := range embedded {
		if ec.Index != i || ec.Content != chunks[i].Content {
			t.Fatalf("chunk %d out of order: %+v", i, ec.Chunk)
		}
		assertUnit(t, ec.Vector)
	}
}

func TestValidateDimension(t *testing.T) {
	svc := NewService(nil, Options{Dimension: 384, Fallback: NewHashEmbedder(384)})
	if err := svc.ValidateDimension(context.Background(), 384); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.ValidateDimension(context.Background(), 768); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected DIMENSION_MISMATCH, got %v", err)
	}
}
