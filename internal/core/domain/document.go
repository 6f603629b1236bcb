package domain

import "time"

type DocumentStatus string

const (
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusPartial    DocumentStatus = "partial"
	StatusFailed     DocumentStatus = "failed"
)

// Document is the caller-owned source text. Re-ingesting the same ID
// supersedes every chunk stored for the previous version.
type Document struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Text     string `json:"-"`
	MimeType string `json:"mime_type"`
	SourceID string `json:"source_id,omitempty"`
	Size     int64  `json:"size"`
}

// DocumentRecord is the registry view of an ingested document.
type DocumentRecord struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	MimeType     string         `json:"mime_type"`
	SourceID     string         `json:"source_id,omitempty"`
	Size         int64          `json:"size"`
	TotalChunks  int            `json:"total_chunks"`
	StoredChunks int            `json:"stored_chunks"`
	Status       DocumentStatus `json:"status"`
	Error        string         `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// SourceFile is raw content handed over by the file-storage provider.
type SourceFile struct {
	ID         string
	Name       string
	MimeType   string
	Size       int64
	ModifiedAt time.Time
	Content    []byte
}

type Chunk struct {
	DocumentID  string `json:"document_id"`
	Index       int    `json:"index"`
	Start       int    `json:"start"`
	End         int    `json:"end"`
	Content     string `json:"content"`
	TotalChunks int    `json:"total_chunks"`
}

type EmbeddedChunk struct {
	Chunk
	Vector []float32 `json:"-"`
}
