package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sisirapr/doc-qa-system/internal/core/domain"
	"github.com/sisirapr/doc-qa-system/internal/core/ports"
)

// ImportUseCase pulls files from the file-storage provider. Requests are
// either queued for the worker or ingested inline.
type ImportUseCase struct {
	source   ports.DocumentSource
	queue    ports.MessageQueue
	ingestor ports.DocumentIngestor
}

func NewImportUseCase(source ports.DocumentSource, queue ports.MessageQueue, ingestor ports.DocumentIngestor) *ImportUseCase {
	return &ImportUseCase{source: source, queue: queue, ingestor: ingestor}
}

func (uc *ImportUseCase) Async() bool { return uc.queue != nil }

func (uc *ImportUseCase) RequestImport(ctx context.Context, fileID string) error {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "request import", errors.New("file id is required"))
	}
	if uc.queue == nil {
		return domain.WrapError(domain.ErrInvalidInput, "request import", errors.New("import queue is not configured"))
	}
	if err := uc.queue.PublishImportRequested(ctx, fileID); err != nil {
		return fmt.Errorf("publish import request: %w", err)
	}
	return nil
}

// ImportByID fetches and ingests one file. The source file id doubles as
// the document id so a re-import supersedes the previous version.
func (uc *ImportUseCase) ImportByID(ctx context.Context, fileID string) (*domain.IngestResult, error) {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "import", errors.New("file id is required"))
	}
	if uc.source == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "import", errors.New("document source is not configured"))
	}
	file, err := uc.source.Fetch(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("fetch source file: %w", err)
	}
	return uc.ingestor.Ingest(ctx, ports.IngestRequest{
		DocumentID: file.ID,
		Name:       file.Name,
		Content:    file.Content,
		MimeType:   file.MimeType,
		SourceID:   file.ID,
	})
}
