package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sisirapr/doc-qa-system/internal/core/domain"
)

// Registry keeps document records in process memory. It backs offline
// mode when no database is configured.
type Registry struct {
	mu      sync.RWMutex
	records map[string]domain.DocumentRecord
	now     func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		records: make(map[string]domain.DocumentRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *Registry) Upsert(_ context.Context, rec *domain.DocumentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if prev, ok := r.records[rec.ID]; ok && rec.CreatedAt.IsZero() {
		rec.CreatedAt = prev.CreatedAt
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	r.records[rec.ID] = *rec
	return nil
}

func (r *Registry) GetByID(_ context.Context, id string) (*domain.DocumentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
	}
	return &rec, nil
}

func (r *Registry) List(_ context.Context, limit int) ([]domain.DocumentRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	r.mu.RLock()
	out := make([]domain.DocumentRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Registry) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "delete document", fmt.Errorf("id=%s", id))
	}
	delete(r.records, id)
	return nil
}

func (r *Registry) DeleteAll(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.records)
	r.records = make(map[string]domain.DocumentRecord)
	return n, nil
}
