package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sisirapr/doc-qa-system/internal/core/domain"
	"github.com/sisirapr/doc-qa-system/internal/core/ports"
)

// Options tunes the traffic controls in front of the API routes.
type Options struct {
	DefaultLimit    int
	MaxUploadBytes  int64
	RateLimitRPS    float64
	RateLimitBurst  int
	MaxInFlight     int
	BackpressureTTL time.Duration
}

// Services are the inbound ports the router serves. Importer may be nil.
type Services struct {
	Ingestor  ports.DocumentIngestor
	Query     ports.DocumentQueryService
	Searcher  ports.DocumentSearcher
	Admin     ports.IndexAdmin
	Documents ports.DocumentReader
	Importer  ports.DocumentImporter
}

type Router struct {
	opts    Options
	svc     Services
	metrics Metrics
}

// Metrics is the optional Prometheus surface of the API process.
type Metrics interface {
	Handler() http.Handler
	Middleware(next http.Handler) http.Handler
}

func NewRouter(opts Options, svc Services) *Router {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 5
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	if opts.BackpressureTTL <= 0 {
		opts.BackpressureTTL = 250 * time.Millisecond
	}
	return &Router{opts: opts, svc: svc}
}

func (rt *Router) WithMetrics(m Metrics) *Router {
	rt.metrics = m
	return rt
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/documents", rt.ingestDocument)
	api.HandleFunc("GET /v1/documents", rt.listDocuments)
	api.HandleFunc("POST /v1/documents/import", rt.importDocument)
	api.HandleFunc("GET /v1/documents/{id}", rt.getDocument)
	api.HandleFunc("DELETE /v1/documents/{id}", rt.deleteDocument)
	api.HandleFunc("POST /v1/rag/query", rt.queryRAG)
	api.HandleFunc("POST /v1/search", rt.search)
	api.HandleFunc("POST /v1/index/reset", rt.resetIndex)

	var limited http.Handler = api
	limited = backpressureMiddleware(limited, rt.opts.MaxInFlight, rt.opts.BackpressureTTL)
	limited = rateLimitMiddleware(limited, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		root.Handle("GET /metrics", rt.metrics.Handler())
	}
	root.Handle("/", limited)

	var h http.Handler = root
	if rt.metrics != nil {
		h = rt.metrics.Middleware(h)
	}
	return requestIDMiddleware(accessLogMiddleware(h))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ingestRequest struct {
	DocumentID   string `json:"document_id"`
	Name         string `json:"name"`
	Content      string `json:"content"`
	MimeType     string `json:"mime_type"`
	ChunkSize    *int   `json:"chunk_size"`
	ChunkOverlap *int   `json:"chunk_overlap"`
}

// ingestDocument accepts a multipart upload (field "file") or a JSON body
// carrying the text inline.
func (rt *Router) ingestDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.opts.MaxUploadBytes)

	var (
		req ports.IngestRequest
		err error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		req, err = decodeJSONIngest(r)
	case "multipart/form-data":
		req, err = rt.decodeMultipartIngest(r)
	default:
		err = domain.WrapError(domain.ErrInvalidInput, "ingest",
			errors.New("multipart field 'file' or a JSON body is required"))
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := rt.svc.Ingestor.Ingest(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func decodeJSONIngest(r *http.Request) (ports.IngestRequest, error) {
	var body ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return ports.IngestRequest{}, invalidJSON("ingest", err)
	}
	return ports.IngestRequest{
		DocumentID:   strings.TrimSpace(body.DocumentID),
		Name:         body.Name,
		Content:      []byte(body.Content),
		MimeType:     body.MimeType,
		ChunkSize:    body.ChunkSize,
		ChunkOverlap: body.ChunkOverlap,
	}, nil
}

func (rt *Router) decodeMultipartIngest(r *http.Request) (ports.IngestRequest, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return ports.IngestRequest{}, err
		}
		return ports.IngestRequest{}, domain.WrapError(domain.ErrInvalidInput, "ingest",
			errors.New("multipart field 'file' is required"))
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return ports.IngestRequest{}, fmt.Errorf("read upload: %w", err)
	}
	size, err := optionalInt(r.FormValue("chunk_size"), "chunk_size")
	if err != nil {
		return ports.IngestRequest{}, err
	}
	overlap, err := optionalInt(r.FormValue("chunk_overlap"), "chunk_overlap")
	if err != nil {
		return ports.IngestRequest{}, err
	}
	return ports.IngestRequest{
		DocumentID:   strings.TrimSpace(r.FormValue("document_id")),
		Name:         header.Filename,
		Content:      content,
		MimeType:     header.Header.Get("Content-Type"),
		ChunkSize:    size,
		ChunkOverlap: overlap,
	}, nil
}

func optionalInt(raw, field string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ingest", fmt.Errorf("%s must be an integer", field))
	}
	return &n, nil
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	limit, err := optionalInt(r.URL.Query().Get("limit"), "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	n := 0
	if limit != nil {
		n = *limit
	}
	docs, err := rt.svc.Documents.List(r.Context(), n)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.svc.Documents.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	removed, err := rt.svc.Admin.DeleteDocument(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_id": id, "removed_vectors": removed})
}

// importDocument queues the import when a broker is configured and runs it
// inline otherwise.
func (rt *Router) importDocument(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Importer == nil {
		writeErrorMessage(w, r, http.StatusNotImplemented, "NOT_CONFIGURED", "document import is not configured")
		return
	}
	var req struct {
		FileID string `json:"file_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, invalidJSON("import", err))
		return
	}

	if rt.svc.Importer.Async() {
		if err := rt.svc.Importer.RequestImport(r.Context(), req.FileID); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"file_id": strings.TrimSpace(req.FileID), "status": "queued"})
		return
	}

	res, err := rt.svc.Importer.ImportByID(r.Context(), req.FileID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type retrievalRequest struct {
	Question string            `json:"question"`
	Query    string            `json:"query"`
	Limit    int               `json:"limit"`
	Filter   map[string]string `json:"filter"`
}

func (rt *Router) decodeRetrieval(r *http.Request, op string) (retrievalRequest, error) {
	var req retrievalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, invalidJSON(op, err)
	}
	if req.Limit <= 0 {
		req.Limit = rt.opts.DefaultLimit
	}
	return req, nil
}

func (rt *Router) queryRAG(w http.ResponseWriter, r *http.Request) {
	req, err := rt.decodeRetrieval(r, "query")
	if err != nil {
		writeError(w, r, err)
		return
	}
	question := req.Question
	if question == "" {
		question = req.Query
	}

	answer, err := rt.svc.Query.Answer(r.Context(), question, req.Limit, domain.SearchFilter(req.Filter))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	req, err := rt.decodeRetrieval(r, "search")
	if err != nil {
		writeError(w, r, err)
		return
	}
	query := req.Query
	if query == "" {
		query = req.Question
	}

	hits, err := rt.svc.Searcher.Search(r.Context(), query, req.Limit, domain.SearchFilter(req.Filter))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": hits})
}

func (rt *Router) resetIndex(w http.ResponseWriter, r *http.Request) {
	res, err := rt.svc.Admin.ResetIndex(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func invalidJSON(op string, err error) error {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return err
	}
	return domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("invalid json: %w", err))
}
