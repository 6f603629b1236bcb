package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sisirapr/doc-qa-system/internal/core/domain"
	"github.com/sisirapr/doc-qa-system/internal/infrastructure/vector"
)

// Index is an in-process brute-force cosine index used when no vector
// database is configured and in tests.
type Index struct {
	dim int

	mu     sync.RWMutex
	points map[uint64]domain.IndexedPoint
	// order keeps first-insertion order so equal scores rank stably.
	order []uint64
}

func NewIndex(dim int) *Index {
	return &Index{dim: dim, points: make(map[uint64]domain.IndexedPoint)}
}

func (ix *Index) Dimension() int { return ix.dim }

func (ix *Index) EnsureCollection(context.Context) error { return nil }

func (ix *Index) Upsert(_ context.Context, points []domain.IndexedPoint) (domain.UpsertReport, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	report := domain.UpsertReport{Items: make([]domain.PointStatus, len(points))}
	for i, p := range points {
		item := domain.PointStatus{PointID: p.ID, ChunkIndex: p.Payload.ChunkIndex}
		if len(p.Vector) != ix.dim {
			item.Error = domain.WrapError(domain.ErrDimensionMismatch, "memory.upsert",
				fmt.Errorf("got %d, want %d", len(p.Vector), ix.dim)).Error()
			report.Items[i] = item
			continue
		}
		if _, exists := ix.points[p.ID]; !exists {
			ix.order = append(ix.order, p.ID)
		}
		p.Vector = vector.Normalize(p.Vector)
		ix.points[p.ID] = p
		item.Stored = true
		report.Items[i] = item
		report.Upserted++
	}
	if report.Upserted == 0 && len(points) > 0 {
		return report, domain.WrapError(domain.ErrVectorDB, "memory.upsert", errors.New(report.Items[0].Error))
	}
	return report, nil
}

func (ix *Index) Search(_ context.Context, query []float32, limit int, filter domain.SearchFilter) ([]domain.SearchHit, error) {
	if len(query) != ix.dim {
		return nil, domain.WrapError(domain.ErrDimensionMismatch, "memory.search",
			fmt.Errorf("got %d, want %d", len(query), ix.dim))
	}
	if limit <= 0 {
		limit = 5
	}
	q := vector.Normalize(query)

	ix.mu.RLock()
	hits := make([]domain.SearchHit, 0, len(ix.order))
	for _, id := range ix.order {
		p := ix.points[id]
		if !matchesFilter(p.Payload, filter) {
			continue
		}
		hits = append(hits, domain.SearchHit{Score: vector.Cosine(q, p.Vector), Point: p})
	}
	ix.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (ix *Index) DeleteDocument(_ context.Context, documentID string) (int, error) {
	if strings.TrimSpace(documentID) == "" {
		return 0, domain.WrapError(domain.ErrInvalidInput, "memory.delete", errors.New("document id is required"))
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()

	removed := 0
	kept := ix.order[:0]
	for _, id := range ix.order {
		if ix.points[id].Payload.DocumentID == documentID {
			delete(ix.points, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	ix.order = kept
	return removed, nil
}

func (ix *Index) Reset(context.Context) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	removed := len(ix.points)
	ix.points = make(map[uint64]domain.IndexedPoint)
	ix.order = nil
	return removed, nil
}

func matchesFilter(p domain.PointPayload, filter domain.SearchFilter) bool {
	for key, want := range filter {
		got, ok := p.Field(key)
		if !ok || got != want {
			return false
		}
	}
	return true
}
