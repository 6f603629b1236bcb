package extractor

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/sisirapr/doc-qa-system/internal/core/domain"
)

const (
	MimePlain    = "text/plain"
	MimeMarkdown = "text/markdown"
	MimeCSV      = "text/csv"
	MimeJSON     = "application/json"
	MimeHTML     = "text/html"
	MimePDF      = "application/pdf"
	MimeXLSX     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type formatFunc func(ctx context.Context, content []byte) (string, error)

// Extractor dispatches raw bytes to a format-specific text extractor.
type Extractor struct {
	formats map[string]formatFunc
}

func New() *Extractor {
	return &Extractor{
		formats: map[string]formatFunc{
			MimePlain:    extractPlainText,
			MimeMarkdown: extractPlainText,
			MimeCSV:      extractPlainText,
			MimeJSON:     extractPlainText,
			MimeHTML:     extractHTML,
			MimePDF:      extractPDF,
			MimeXLSX:     extractXLSX,
		},
	}
}

func (e *Extractor) Supports(mimeType string) bool {
	_, ok := e.formats[baseMime(mimeType)]
	return ok
}

func (e *Extractor) Extract(ctx context.Context, mimeType string, content []byte) (string, error) {
	mt := baseMime(mimeType)
	fn, ok := e.formats[mt]
	if !ok {
		return "", domain.WrapError(domain.ErrUnsupportedFormat, "extract", fmt.Errorf("mime type %q", mimeType))
	}
	text, err := fn(ctx, content)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (e *Extractor) DetectMimeType(filename, declared string) string {
	return DetectMimeType(filename, declared)
}

// DetectMimeType prefers the declared type and falls back to the file
// extension when the declared type is empty or generic.
func DetectMimeType(filename, declared string) string {
	mt := baseMime(declared)
	if mt != "" && mt != "application/octet-stream" {
		return mt
	}
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".md", ".markdown":
		return MimeMarkdown
	case ".txt", ".text", ".log":
		return MimePlain
	case ".xlsx":
		return MimeXLSX
	}
	if byExt := baseMime(mime.TypeByExtension(ext)); byExt != "" {
		return byExt
	}
	return MimePlain
}

func baseMime(mimeType string) string {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(mimeType))
	}
	return mt
}
