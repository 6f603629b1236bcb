package domain

import (
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// SearchFilter is an equality filter over payload fields; keys are ANDed.
type SearchFilter map[string]string

// PointPayload mirrors chunk and document metadata stored next to a vector.
type PointPayload struct {
	DocumentID   string    `json:"document_id"`
	DocumentName string    `json:"document_name"`
	ChunkIndex   int       `json:"chunk_index"`
	TotalChunks  int       `json:"total_chunks"`
	Start        int       `json:"start"`
	End          int       `json:"end"`
	Content      string    `json:"content"`
	MimeType     string    `json:"mime_type"`
	SourceID     string    `json:"source_id,omitempty"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"created_at"`
}

// Field returns the string form of a filterable payload field.
func (p PointPayload) Field(key string) (string, bool) {
	switch key {
	case "document_id":
		return p.DocumentID, true
	case "document_name":
		return p.DocumentName, true
	case "chunk_index":
		return strconv.Itoa(p.ChunkIndex), true
	case "total_chunks":
		return strconv.Itoa(p.TotalChunks), true
	case "mime_type":
		return p.MimeType, true
	case "source_id":
		return p.SourceID, true
	default:
		return "", false
	}
}

// PointID derives the stable index id for one chunk of a document.
// Re-ingesting the same (documentID, chunkIndex) overwrites the same point.
func PointID(documentID string, chunkIndex int) uint64 {
	return xxhash.Sum64String(documentID + "_" + strconv.Itoa(chunkIndex))
}

type IndexedPoint struct {
	ID      uint64       `json:"id"`
	Vector  []float32    `json:"-"`
	Payload PointPayload `json:"payload"`
}

type SearchHit struct {
	Score float64      `json:"score"`
	Point IndexedPoint `json:"point"`
}

type PointStatus struct {
	PointID    uint64 `json:"point_id"`
	ChunkIndex int    `json:"chunk_index"`
	Stored     bool   `json:"stored"`
	Error      string `json:"error,omitempty"`
}

type UpsertReport struct {
	Upserted int           `json:"upserted"`
	Items    []PointStatus `json:"items"`
}

// ContextDelimiter separates ranked passages in an assembled answer context.
const ContextDelimiter = "\n\n---\n\n"

// ContextTruncationMarker ends an assembled context that hit its length cap.
const ContextTruncationMarker = "\n[... context truncated ...]"

type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceLow  Confidence = "low"
)

type Answer struct {
	Text             string      `json:"text"`
	Sources          []SearchHit `json:"sources"`
	Confidence       Confidence  `json:"confidence"`
	ContextTruncated bool        `json:"context_truncated,omitempty"`
	Fallback         bool        `json:"fallback,omitempty"`
}

type IngestResult struct {
	DocumentID   string         `json:"document_id"`
	Chunks       []Chunk        `json:"chunks"`
	TotalChunks  int            `json:"total_chunks"`
	StoredChunks int            `json:"stored_chunks"`
	Status       DocumentStatus `json:"status"`
	Items        []PointStatus  `json:"items"`
}

type ResetResult struct {
	RemovedDocuments int `json:"removed_documents"`
	RemovedVectors   int `json:"removed_vectors"`
}
