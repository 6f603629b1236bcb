package chunking

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/sisirapr/doc-qa-system/internal/core/domain"
)

const (
	DefaultMinChunkSize = 100
	DefaultMaxChunkSize = 10000

	// boundaryRadius is how far either side of a window edge a sentence end is searched for.
	boundaryRadius = 100
)

// Splitter cuts text into overlapping, sentence-aligned chunks. Offsets count runes.
type Splitter struct {
	MinChunkSize int
	MaxChunkSize int
}

func NewSplitter(minChunkSize, maxChunkSize int) *Splitter {
	if minChunkSize <= 0 {
		minChunkSize = DefaultMinChunkSize
	}
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	if maxChunkSize < minChunkSize {
		maxChunkSize = minChunkSize
	}
	return &Splitter{
		MinChunkSize: minChunkSize,
		MaxChunkSize: maxChunkSize,
	}
}

func (s *Splitter) Chunk(documentID, text string, chunkSize, chunkOverlap int) ([]domain.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrEmptyDocument
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, domain.WrapError(domain.ErrInvalidChunkOverlap, "chunk",
			fmt.Errorf("overlap %d must be in [0, %d)", chunkOverlap, chunkSize))
	}
	if chunkSize < s.MinChunkSize || chunkSize > s.MaxChunkSize {
		return nil, domain.WrapError(domain.ErrInvalidChunkSize, "chunk",
			fmt.Errorf("size %d outside [%d, %d]", chunkSize, s.MinChunkSize, s.MaxChunkSize))
	}

	runes := []rune(text)
	if len(runes) <= chunkSize {
		return []domain.Chunk{{
			DocumentID:  documentID,
			Index:       0,
			Start:       0,
			End:         len(runes),
			Content:     strings.TrimSpace(text),
			TotalChunks: 1,
		}}, nil
	}

	out := make([]domain.Chunk, 0, len(runes)/(chunkSize-chunkOverlap)+1)
	start := 0
	for start < len(runes) {
		end := start + chunkSize
		cut := len(runes)
		if end < len(runes) {
			cut = sentenceCut(runes, start, end, chunkOverlap)
		}

		content := strings.TrimSpace(string(runes[start:cut]))
		switch {
		case content != "":
			out = append(out, domain.Chunk{
				DocumentID: documentID,
				Index:      len(out),
				Start:      start,
				End:        cut,
				Content:    content,
			})
		case len(out) > 0:
			// Whitespace-only tail folds into the previous chunk's span.
			out[len(out)-1].End = cut
		}

		if cut >= len(runes) {
			break
		}
		next := cut - chunkOverlap
		if next <= start {
			next = cut
		}
		start = next
	}

	for i := range out {
		out[i].TotalChunks = len(out)
	}
	return out, nil
}

// sentenceCut returns the sentence end nearest to end within boundaryRadius,
// or end itself when none qualifies. A cut must leave room for the overlap
// so the next window still starts further along.
func sentenceCut(runes []rune, start, end, overlap int) int {
	for d := 0; d <= boundaryRadius; d++ {
		if p := end - d; p > start+overlap && isSentenceEnd(runes, p) {
			return p
		}
		if d == 0 {
			continue
		}
		if p := end + d; p <= len(runes) && isSentenceEnd(runes, p) {
			return p
		}
	}
	return end
}

// isSentenceEnd reports whether a cut at p follows a terminal mark and precedes whitespace or the end.
func isSentenceEnd(runes []rune, p int) bool {
	if p <= 0 || p > len(runes) {
		return false
	}
	switch runes[p-1] {
	case '.', '!', '?':
	default:
		return false
	}
	return p == len(runes) || unicode.IsSpace(runes[p])
}
