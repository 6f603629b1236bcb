package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sisirapr/doc-qa-system/internal/core/domain"
	"github.com/sisirapr/doc-qa-system/internal/core/ports"
)

type IndexAdminUseCase struct {
	index    ports.VectorIndex
	registry ports.DocumentRegistry
}

func NewIndexAdminUseCase(index ports.VectorIndex, registry ports.DocumentRegistry) *IndexAdminUseCase {
	return &IndexAdminUseCase{index: index, registry: registry}
}

// ResetIndex drops every vector and every registry row.
func (uc *IndexAdminUseCase) ResetIndex(ctx context.Context) (*domain.ResetResult, error) {
	removedVectors, err := uc.index.Reset(ctx)
	if err != nil {
		return nil, fmt.Errorf("reset vector index: %w", err)
	}
	removedDocs, err := uc.registry.DeleteAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("clear document registry: %w", err)
	}
	slog.Warn("index_reset", "removed_documents", removedDocs, "removed_vectors", removedVectors)
	return &domain.ResetResult{RemovedDocuments: removedDocs, RemovedVectors: removedVectors}, nil
}

// DeleteDocument purges one document. It reports not found only when
// neither the index nor the registry knew the id.
func (uc *IndexAdminUseCase) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return 0, domain.WrapError(domain.ErrInvalidInput, "delete document", errors.New("document id is required"))
	}
	removed, err := uc.index.DeleteDocument(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete document vectors: %w", err)
	}
	if err := uc.registry.Delete(ctx, documentID); err != nil {
		if !domain.IsKind(err, domain.ErrDocumentNotFound) || removed == 0 {
			return removed, err
		}
	}
	return removed, nil
}
