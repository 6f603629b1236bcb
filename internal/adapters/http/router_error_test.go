package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sisirapr/doc-qa-system/internal/core/domain"
	"github.com/sisirapr/doc-qa-system/internal/core/ports"
)

type ingestFake struct {
	err error
	req ports.IngestRequest
}

func (f *ingestFake) Ingest(_ context.Context, req ports.IngestRequest) (*domain.IngestResult, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &domain.IngestResult{DocumentID: "doc-1", TotalChunks: 1, StoredChunks: 1, Status: domain.StatusReady}, nil
}

type queryFake struct {
	err      error
	question string
	limit    int
	filter   domain.SearchFilter
}

func (f *queryFake) Answer(_ context.Context, question string, limit int, filter domain.SearchFilter) (*domain.Answer, error) {
	f.question, f.limit, f.filter = question, limit, filter
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Answer{Text: "ok", Confidence: domain.ConfidenceLow}, nil
}

type searchFake struct {
	err error
}

func (f *searchFake) Search(context.Context, string, int, domain.SearchFilter) ([]domain.SearchHit, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.SearchHit{{Score: 0.9}}, nil
}

type adminFake struct {
	err error
}

func (f *adminFake) ResetIndex(context.Context) (*domain.ResetResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ResetResult{RemovedDocuments: 2, RemovedVectors: 7}, nil
}

func (f *adminFake) DeleteDocument(context.Context, string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return 3, nil
}

type docsFake struct {
	err error
}

func (f *docsFake) GetByID(_ context.Context, id string) (*domain.DocumentRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.DocumentRecord{ID: id, Name: "a.txt", Status: domain.StatusReady}, nil
}

func (f *docsFake) List(context.Context, int) ([]domain.DocumentRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.DocumentRecord{{ID: "doc-1"}}, nil
}

func newTestServices() Services {
	return Services{
		Ingestor:  &ingestFake{},
		Query:     &queryFake{},
		Searcher:  &searchFake{},
		Admin:     &adminFake{},
		Documents: &docsFake{},
	}
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestQueryRagMapsDomainInvalidInputTo400(t *testing.T) {
	svc := newTestServices()
	svc.Query = &queryFake{err: domain.WrapError(domain.ErrInvalidInput, "answer", errors.New("bad query"))}
	handler := NewRouter(Options{}, svc).Handler()

	res := postJSON(t, handler, "/v1/rag/query", map[string]any{"question": "test"})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}

	var body errorResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Code != "INVALID_INPUT" || body.RequestID == "" {
		t.Fatalf("unexpected error body: %+v", body)
	}
}

func TestGetDocumentByIDReturns404ForNotFound(t *testing.T) {
	svc := newTestServices()
	svc.Documents = &docsFake{err: domain.WrapError(domain.ErrDocumentNotFound, "get", errors.New("id=missing"))}
	handler := NewRouter(Options{}, svc).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/missing", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestErrorKindsMapToStatus(t *testing.T) {
	cases := []struct {
		kind error
		want int
	}{
		{domain.ErrEmptyDocument, http.StatusBadRequest},
		{domain.ErrInvalidChunkOverlap, http.StatusBadRequest},
		{domain.ErrUnsupportedFormat, http.StatusUnsupportedMediaType},
		{domain.ErrAuthenticationFailed, http.StatusUnauthorized},
		{domain.ErrRateLimited, http.StatusTooManyRequests},
		{domain.ErrCircuitOpen, http.StatusServiceUnavailable},
		{domain.ErrEmbedding, http.StatusBadGateway},
		{domain.ErrDocumentQA, http.StatusBadGateway},
		{domain.ErrDimensionMismatch, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		err := domain.WrapError(tc.kind, "op", errors.New("cause"))
		if got := mapErrorToHTTPStatus(err); got != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.kind, tc.want, got)
		}
	}
}

func TestOpenCircuitInsideDocumentQAErrorIs503(t *testing.T) {
	open := domain.WrapError(domain.ErrCircuitOpen, "embed", errors.New("ollama"))
	err := domain.WrapError(domain.ErrDocumentQA, "answer", open)
	if got := mapErrorToHTTPStatus(err); got != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", got)
	}
}

func TestInternalErrorsHideDetails(t *testing.T) {
	svc := newTestServices()
	svc.Admin = &adminFake{err: errors.New("pq: password authentication failed for user")}
	handler := NewRouter(Options{}, svc).Handler()

	res := postJSON(t, handler, "/v1/index/reset", map[string]any{})
	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
	var body errorResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Error != "internal error" || body.Code != "INTERNAL" {
		t.Fatalf("unexpected error body: %+v", body)
	}
}
