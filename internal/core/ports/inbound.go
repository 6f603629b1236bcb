package ports

import (
	"context"

	"github.com/sisirapr/doc-qa-system/internal/core/domain"
)

// IngestRequest carries one document version into the pipeline.
// Nil ChunkSize/ChunkOverlap select the configured defaults. An empty
// DocumentID gets a generated one.
type IngestRequest struct {
	DocumentID   string
	Name         string
	Content      []byte
	MimeType     string
	SourceID     string
	ChunkSize    *int
	ChunkOverlap *int
}

// DocumentIngestor is the inbound contract for chunk/embed/store.
type DocumentIngestor interface {
	Ingest(ctx context.Context, req IngestRequest) (*domain.IngestResult, error)
}

// DocumentQueryService is the inbound contract for retrieval-augmented answers.
type DocumentQueryService interface {
	Answer(ctx context.Context, question string, maxResults int, filter domain.SearchFilter) (*domain.Answer, error)
}

// DocumentSearcher returns thresholded hits without generation.
type DocumentSearcher interface {
	Search(ctx context.Context, query string, limit int, filter domain.SearchFilter) ([]domain.SearchHit, error)
}

// IndexAdmin covers destructive index maintenance.
type IndexAdmin interface {
	ResetIndex(ctx context.Context) (*domain.ResetResult, error)
	DeleteDocument(ctx context.Context, documentID string) (int, error)
}

// DocumentReader is the inbound read model for document state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.DocumentRecord, error)
	List(ctx context.Context, limit int) ([]domain.DocumentRecord, error)
}

// DocumentImporter pulls a file from the storage provider and ingests it.
type DocumentImporter interface {
	Async() bool
	RequestImport(ctx context.Context, fileID string) error
	ImportByID(ctx context.Context, fileID string) (*domain.IngestResult, error)
}
