package extractor

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/sisirapr/doc-qa-system/internal/core/domain"
)

func extractPlainText(_ context.Context, raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", domain.WrapError(domain.ErrUnsupportedFormat, "extract plain text", errors.New("content is not valid UTF-8"))
	}
	return string(raw), nil
}
