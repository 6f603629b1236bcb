package usecase

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sisirapr/doc-qa-system/internal/core/domain"
	"github.com/sisirapr/doc-qa-system/internal/core/ports"
)

type ChunkDefaults struct {
	Size    int
	Overlap int
}

// IngestObserver receives one observation per finished ingestion.
type IngestObserver interface {
	ObserveIngest(status domain.DocumentStatus, chunks int, duration time.Duration)
}

type IngestUseCase struct {
	extractor ports.TextExtractor
	chunker   ports.Chunker
	embedder  ports.Embedder
	index     ports.VectorIndex
	registry  ports.DocumentRegistry
	storage   ports.ObjectStorage
	defaults  ChunkDefaults
	observer  IngestObserver
}

// NewIngestUseCase wires the ingestion pipeline. storage and observer may
// be nil.
func NewIngestUseCase(
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	index ports.VectorIndex,
	registry ports.DocumentRegistry,
	storage ports.ObjectStorage,
	defaults ChunkDefaults,
	observer IngestObserver,
) *IngestUseCase {
	if defaults.Size <= 0 {
		defaults.Size = 1000
	}
	if defaults.Overlap < 0 {
		defaults.Overlap = 200
	}
	return &IngestUseCase{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		registry:  registry,
		storage:   storage,
		defaults:  defaults,
		observer:  observer,
	}
}

// Ingest chunks, embeds and stores one document version. The previous
// version's points are removed only once the new embeddings are ready.
// Partial upserts succeed with status "partial" and per-chunk items.
func (uc *IngestUseCase) Ingest(ctx context.Context, req ports.IngestRequest) (*domain.IngestResult, error) {
	start := time.Now()
	docID := strings.TrimSpace(req.DocumentID)
	if docID == "" {
		docID = uuid.NewString()
	}
	mimeType := uc.extractor.DetectMimeType(req.Name, req.MimeType)

	record := &domain.DocumentRecord{
		ID:       docID,
		Name:     req.Name,
		MimeType: mimeType,
		SourceID: req.SourceID,
		Size:     int64(len(req.Content)),
		Status:   domain.StatusProcessing,
	}

	// Rejected input leaves no registry row behind.
	chunks, err := uc.prepare(ctx, req, record)
	if err != nil {
		uc.observe(domain.StatusFailed, 0, start)
		return nil, err
	}
	record.TotalChunks = len(chunks)

	if err := uc.registry.Upsert(ctx, record); err != nil {
		return nil, fmt.Errorf("register document: %w", err)
	}

	result, err := uc.run(ctx, req, record, chunks)
	if err != nil {
		record.Status = domain.StatusFailed
		record.Error = err.Error()
		if regErr := uc.registry.Upsert(ctx, record); regErr != nil {
			slog.Error("document_status_update_failed", "document_id", docID, "error", regErr)
		}
		uc.observe(domain.StatusFailed, record.TotalChunks, start)
		return nil, err
	}

	record.TotalChunks = result.TotalChunks
	record.StoredChunks = result.StoredChunks
	record.Status = result.Status
	record.Error = failedItemsSummary(result.Items)
	if err := uc.registry.Upsert(ctx, record); err != nil {
		return nil, fmt.Errorf("update document status: %w", err)
	}

	slog.Info("document_ingested",
		"document_id", docID,
		"status", result.Status,
		"total_chunks", result.TotalChunks,
		"stored_chunks", result.StoredChunks,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	uc.observe(result.Status, result.TotalChunks, start)
	return result, nil
}

// prepare extracts and chunks the content without touching any store.
func (uc *IngestUseCase) prepare(ctx context.Context, req ports.IngestRequest, record *domain.DocumentRecord) ([]domain.Chunk, error) {
	text, err := uc.extractor.Extract(ctx, record.MimeType, req.Content)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}

	size, overlap := uc.defaults.Size, uc.defaults.Overlap
	if req.ChunkSize != nil {
		size = *req.ChunkSize
	}
	if req.ChunkOverlap != nil {
		overlap = *req.ChunkOverlap
	}
	return uc.chunker.Chunk(record.ID, text, size, overlap)
}

func (uc *IngestUseCase) run(ctx context.Context, req ports.IngestRequest, record *domain.DocumentRecord, chunks []domain.Chunk) (*domain.IngestResult, error) {
	if uc.storage != nil && len(req.Content) > 0 {
		key := fmt.Sprintf("%s_%s", record.ID, sanitizeFilename(req.Name))
		if err := uc.storage.Save(ctx, key, bytes.NewReader(req.Content)); err != nil {
			return nil, fmt.Errorf("save original: %w", err)
		}
	}

	embedded, err := uc.embedder.EmbedChunks(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(embedded) != len(chunks) {
		return nil, domain.WrapError(domain.ErrEmbedding, "embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(embedded), len(chunks)))
	}

	if _, err := uc.index.DeleteDocument(ctx, record.ID); err != nil {
		return nil, fmt.Errorf("remove previous version: %w", err)
	}

	now := time.Now().UTC()
	points := make([]domain.IndexedPoint, len(embedded))
	for i, ec := range embedded {
		points[i] = domain.IndexedPoint{
			ID:     domain.PointID(record.ID, ec.Index),
			Vector: ec.Vector,
			Payload: domain.PointPayload{
				DocumentID:   record.ID,
				DocumentName: record.Name,
				ChunkIndex:   ec.Index,
				TotalChunks:  ec.TotalChunks,
				Start:        ec.Start,
				End:          ec.End,
				Content:      ec.Content,
				MimeType:     record.MimeType,
				SourceID:     record.SourceID,
				Size:         record.Size,
				CreatedAt:    now,
			},
		}
	}

	report, err := uc.index.Upsert(ctx, points)
	if err != nil {
		return nil, fmt.Errorf("store vectors: %w", err)
	}

	status := domain.StatusReady
	if report.Upserted < len(points) {
		status = domain.StatusPartial
	}
	return &domain.IngestResult{
		DocumentID:   record.ID,
		Chunks:       chunks,
		TotalChunks:  len(chunks),
		StoredChunks: report.Upserted,
		Status:       status,
		Items:        report.Items,
	}, nil
}

func (uc *IngestUseCase) observe(status domain.DocumentStatus, chunks int, start time.Time) {
	if uc.observer != nil {
		uc.observer.ObserveIngest(status, chunks, time.Since(start))
	}
}

func failedItemsSummary(items []domain.PointStatus) string {
	failed := 0
	first := ""
	for _, it := range items {
		if it.Stored {
			continue
		}
		if failed == 0 {
			first = it.Error
		}
		failed++
	}
	if failed == 0 {
		return ""
	}
	return fmt.Sprintf("%d chunk(s) not stored; first error: %s", failed, first)
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
