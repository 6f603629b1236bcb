package domain

import (
	"errors"
	"fmt"
)

// Kind is a stable, caller-visible error category.
type Kind struct {
	Code    string
	message string
}

func (k *Kind) Error() string { return k.message }

func newKind(code, message string) *Kind {
	return &Kind{Code: code, message: message}
}

var (
	ErrEmptyDocument       = newKind("EMPTY_DOCUMENT", "document is empty")
	ErrInvalidChunkSize    = newKind("INVALID_CHUNK_SIZE", "invalid chunk size")
	ErrInvalidChunkOverlap = newKind("INVALID_CHUNK_OVERLAP", "invalid chunk overlap")

	ErrEmbedding  = newKind("EMBEDDING_ERROR", "embedding failure")
	ErrVectorDB   = newKind("VECTOR_DB_ERROR", "vector database failure")
	ErrDocumentQA = newKind("DOCUMENT_QA_ERROR", "document qa failure")

	ErrCircuitOpen          = newKind("CIRCUIT_OPEN", "circuit open")
	ErrRateLimited          = newKind("RATE_LIMITED", "rate limited")
	ErrAuthenticationFailed = newKind("AUTHENTICATION_FAILED", "authentication failed")

	ErrDimensionMismatch = newKind("DIMENSION_MISMATCH", "vector dimension mismatch")
	ErrDocumentNotFound  = newKind("DOCUMENT_NOT_FOUND", "document not found")
	ErrInvalidInput      = newKind("INVALID_INPUT", "invalid input")
	ErrUnsupportedFormat = newKind("UNSUPPORTED_FORMAT", "unsupported document format")
	ErrTemporary         = newKind("TEMPORARY_FAILURE", "temporary failure")
)

// Order matters: the most specific kind wins when an error carries several.
var kinds = []*Kind{
	ErrCircuitOpen,
	ErrEmptyDocument,
	ErrInvalidChunkSize,
	ErrInvalidChunkOverlap,
	ErrDimensionMismatch,
	ErrAuthenticationFailed,
	ErrRateLimited,
	ErrDocumentNotFound,
	ErrUnsupportedFormat,
	ErrInvalidInput,
	ErrDocumentQA,
	ErrVectorDB,
	ErrEmbedding,
	ErrTemporary,
}

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// Code returns the stable kind code carried by err, or "INTERNAL" when none.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k.Code
		}
	}
	return "INTERNAL"
}
