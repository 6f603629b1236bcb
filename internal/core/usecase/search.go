package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/sisirapr/doc-qa-system/internal/core/domain"
	"github.com/sisirapr/doc-qa-system/internal/core/ports"
)

// DefaultSearchThreshold applies to direct search. The answerer keeps its
// own DefaultAnswerThreshold.
const DefaultSearchThreshold = 0.7

type SearchUseCase struct {
	embedder     ports.Embedder
	index        ports.VectorIndex
	threshold    float64
	defaultLimit int
}

func NewSearchUseCase(embedder ports.Embedder, index ports.VectorIndex, threshold float64) *SearchUseCase {
	return &SearchUseCase{
		embedder:     embedder,
		index:        index,
		threshold:    threshold,
		defaultLimit: DefaultResultLimit,
	}
}

func (uc *SearchUseCase) Search(
	ctx context.Context,
	query string,
	limit int,
	filter domain.SearchFilter,
) ([]domain.SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", errors.New("query is required"))
	}
	if limit <= 0 {
		limit = uc.defaultLimit
	}

	vec, err := uc.embedder.Embed(ctx, query)
	if err != nil {
		return nil, domain.WrapError(domain.ErrDocumentQA, "embed query", err)
	}
	hits, err := uc.index.Search(ctx, vec, limit, filter)
	if err != nil {
		return nil, domain.WrapError(domain.ErrDocumentQA, "search vector index", err)
	}
	return FilterByScore(hits, uc.threshold), nil
}
