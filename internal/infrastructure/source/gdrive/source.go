package gdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/sisirapr/doc-qa-system/internal/core/domain"
	"github.com/sisirapr/doc-qa-system/internal/infrastructure/resilience"
)

// Google Workspace MIME types and the plain formats they export to.
const (
	MimeTypeGoogleDoc    = "application/vnd.google-apps.document"
	MimeTypeGoogleSheet  = "application/vnd.google-apps.spreadsheet"
	MimeTypeGoogleSlides = "application/vnd.google-apps.presentation"
	MimeTypeFolder       = "application/vnd.google-apps.folder"

	ExportMimeText = "text/plain"
	ExportMimeCSV  = "text/csv"
)

// MaxExportSize is the maximum size read for a single file (5MB).
const MaxExportSize = 5 * 1024 * 1024

type Config struct {
	// AccessToken is a ready OAuth2 bearer token. CredentialsFile is used
	// when it is empty.
	AccessToken     string
	CredentialsFile string
	// Endpoint overrides the Drive API base URL.
	Endpoint          string
	RequestsPerSecond float64
	Burst             int
}

// Source fetches documents from Google Drive. Authentication is handled
// by the configured credentials; no OAuth flow runs here.
type Source struct {
	svc      *drive.Service
	limiter  *rate.Limiter
	executor *resilience.Executor
}

func New(ctx context.Context, cfg Config, executor *resilience.Executor) (*Source, error) {
	opts := make([]option.ClientOption, 0, 2)
	switch {
	case strings.TrimSpace(cfg.AccessToken) != "":
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken, TokenType: "Bearer"})
		opts = append(opts, option.WithTokenSource(ts))
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	default:
		opts = append(opts, option.WithoutAuthentication())
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return newWithService(svc, cfg, executor), nil
}

func newWithService(svc *drive.Service, cfg Config, executor *resilience.Executor) *Source {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 8
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if executor == nil {
		executor = resilience.NewExecutor("gdrive", resilience.DefaultConfig(), nil)
	}
	return &Source{
		svc:      svc,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		executor: executor,
	}
}

func (s *Source) Fetch(ctx context.Context, fileID string) (*domain.SourceFile, error) {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "gdrive.fetch", errors.New("file id is required"))
	}

	meta, err := resilience.Call(ctx, s.executor, "get_metadata", func(ctx context.Context) (*drive.File, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		f, err := s.svc.Files.Get(fileID).
			Fields("id", "name", "mimeType", "size", "modifiedTime").
			SupportsAllDrives(true).
			Context(ctx).
			Do()
		return f, classifyError(ctx, "gdrive.get_metadata", err)
	}, nil)
	if err != nil {
		return nil, err
	}

	if meta.MimeType == MimeTypeFolder {
		return nil, domain.WrapError(domain.ErrUnsupportedFormat, "gdrive.fetch", fmt.Errorf("%s is a folder", fileID))
	}
	if exportMimeFor(meta.MimeType) == "" && meta.Size > MaxExportSize {
		return nil, domain.WrapError(domain.ErrInvalidInput, "gdrive.fetch",
			fmt.Errorf("%s is %d bytes, limit %d", fileID, meta.Size, MaxExportSize))
	}

	body, err := resilience.Call(ctx, s.executor, "download", func(ctx context.Context) (downloaded, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return downloaded{}, err
		}
		return s.download(ctx, meta)
	}, nil)
	if err != nil {
		return nil, err
	}

	out := &domain.SourceFile{
		ID:       meta.Id,
		Name:     meta.Name,
		MimeType: body.mimeType,
		Size:     int64(len(body.content)),
		Content:  body.content,
	}
	if t, err := time.Parse(time.RFC3339, meta.ModifiedTime); err == nil {
		out.ModifiedAt = t.UTC()
	}
	return out, nil
}

type downloaded struct {
	content  []byte
	mimeType string
}

func (s *Source) download(ctx context.Context, meta *drive.File) (downloaded, error) {
	var (
		resp     *http.Response
		err      error
		mimeType = meta.MimeType
	)
	if export := exportMimeFor(meta.MimeType); export != "" {
		resp, err = s.svc.Files.Export(meta.Id, export).Context(ctx).Download()
		mimeType = export
	} else {
		resp, err = s.svc.Files.Get(meta.Id).SupportsAllDrives(true).Context(ctx).Download()
	}
	if err != nil {
		return downloaded{}, classifyError(ctx, "gdrive.download", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxExportSize+1))
	if err != nil {
		return downloaded{}, domain.WrapError(domain.ErrTemporary, "gdrive.download", fmt.Errorf("read body: %w", err))
	}
	if len(data) > MaxExportSize {
		return downloaded{}, domain.WrapError(domain.ErrInvalidInput, "gdrive.download",
			fmt.Errorf("%s exceeds %d bytes", meta.Id, MaxExportSize))
	}
	return downloaded{content: data, mimeType: mimeType}, nil
}

func exportMimeFor(mimeType string) string {
	switch mimeType {
	case MimeTypeGoogleDoc, MimeTypeGoogleSlides:
		return ExportMimeText
	case MimeTypeGoogleSheet:
		return ExportMimeCSV
	default:
		return ""
	}
}
