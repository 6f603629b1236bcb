package ports

import (
	"context"
	"io"

	"github.com/sisirapr/doc-qa-system/internal/core/domain"
)

// EmbeddingProvider is an external model turning text into raw vectors.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Embedder produces normalized, dimension-checked vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedChunks(ctx context.Context, chunks []domain.Chunk) ([]domain.EmbeddedChunk, error)
	Dimension() int
}

// Chunker splits document text into overlapping chunks.
type Chunker interface {
	Chunk(documentID, text string, chunkSize, chunkOverlap int) ([]domain.Chunk, error)
}

// VectorIndex stores and searches indexed points.
type VectorIndex interface {
	Dimension() int
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, points []domain.IndexedPoint) (domain.UpsertReport, error)
	Search(ctx context.Context, vector []float32, limit int, filter domain.SearchFilter) ([]domain.SearchHit, error)
	DeleteDocument(ctx context.Context, documentID string) (int, error)
	Reset(ctx context.Context) (int, error)
}

// AnswerGenerator creates the final user-facing answer from assembled context.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question, passages string) (string, error)
}

// TextExtractor turns raw document bytes into plain text.
type TextExtractor interface {
	DetectMimeType(filename, declared string) string
	Extract(ctx context.Context, mimeType string, content []byte) (string, error)
}

// DocumentRegistry persists per-document ingestion state.
type DocumentRegistry interface {
	Upsert(ctx context.Context, record *domain.DocumentRecord) error
	GetByID(ctx context.Context, id string) (*domain.DocumentRecord, error)
	List(ctx context.Context, limit int) ([]domain.DocumentRecord, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) (int, error)
}

// DocumentSource supplies raw files from an already-authenticated storage provider.
type DocumentSource interface {
	Fetch(ctx context.Context, fileID string) (*domain.SourceFile, error)
}

// ObjectStorage keeps uploaded originals.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes import events.
type MessageQueue interface {
	PublishImportRequested(ctx context.Context, fileID string) error
	SubscribeImportRequested(ctx context.Context, handler func(context.Context, string) error) error
}
