package gdrive

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sisirapr/doc-qa-system/internal/core/domain"
	"github.com/sisirapr/doc-qa-system/internal/infrastructure/resilience"
)

type fakeDrive struct {
	files     map[string]map[string]any
	content   map[string]string
	exports   map[string]string
	failFirst int32
	calls     atomic.Int32
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := f.calls.Add(1)
	if n <= f.failFirst {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":503,"message":"backend error"}}`))
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/")
	path = strings.TrimPrefix(path, "drive/v3/")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] != "files" {
		http.NotFound(w, r)
		return
	}
	id := parts[1]
	meta, ok := f.files[id]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"File not found"}}`))
		return
	}

	switch {
	case len(parts) == 3 && parts[2] == "export":
		_, _ = w.Write([]byte(f.exports[id+"|"+r.URL.Query().Get("mimeType")]))
	case r.URL.Query().Get("alt") == "media":
		_, _ = w.Write([]byte(f.content[id]))
	default:
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(meta)
	}
}

func newTestSource(t *testing.T, h http.Handler) *Source {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	exec := resilience.NewExecutor("gdrive", resilience.Config{
		RetryMaxAttempts: 3,
		RetryBaseDelay:   1,
		RetryMaxDelay:    1,
	}, nil)
	src, err := New(context.Background(), Config{Endpoint: srv.URL + "/", RequestsPerSecond: 1000, Burst: 100}, exec)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return src
}

func TestFetchDownloadsRegularFile(t *testing.T) {
	fake := &fakeDrive{
		files: map[string]map[string]any{
			"f1": {"id": "f1", "name": "notes.txt", "mimeType": "text/plain", "size": "11", "modifiedTime": "2026-10-01T10:00:00Z"},
		},
		content: map[string]string{"f1": "hello drive"},
	}
	src := newTestSource(t, fake)

	file, err := src.Fetch(context.Background(), "f1")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if file.Name != "notes.txt" || string(file.Content) != "hello drive" || file.MimeType != "text/plain" {
		t.Fatalf("unexpected file: %+v", file)
	}
	if file.ModifiedAt.IsZero() {
		t.Fatalf("expected modified time to be parsed")
	}
}

func TestFetchExportsGoogleDocAsText(t *testing.T) {
	fake := &fakeDrive{
		files: map[string]map[string]any{
			"doc": {"id": "doc", "name": "Plan", "mimeType": MimeTypeGoogleDoc},
		},
		exports: map[string]string{"doc|" + ExportMimeText: "exported plan"},
	}
	src := newTestSource(t, fake)

	file, err := src.Fetch(context.Background(), "doc")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if file.MimeType != ExportMimeText || string(file.Content) != "exported plan" {
		t.Fatalf("unexpected export: %+v", file)
	}
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	fake := &fakeDrive{
		files:     map[string]map[string]any{"f1": {"id": "f1", "name": "a.txt", "mimeType": "text/plain"}},
		content:   map[string]string{"f1": "ok"},
		failFirst: 2,
	}
	src := newTestSource(t, fake)

	if _, err := src.Fetch(context.Background(), "f1"); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got := fake.calls.Load(); got != 4 {
		t.Fatalf("expected 2 failed + 2 successful calls, got %d", got)
	}
}

func TestFetchMapsNotFoundAndFolders(t *testing.T) {
	fake := &fakeDrive{
		files: map[string]map[string]any{"dir": {"id": "dir", "name": "Folder", "mimeType": MimeTypeFolder}},
	}
	src := newTestSource(t, fake)

	if _, err := src.Fetch(context.Background(), "missing"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if _, err := src.Fetch(context.Background(), "dir"); !domain.IsKind(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if _, err := src.Fetch(context.Background(), " "); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
