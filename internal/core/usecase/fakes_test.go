package usecase

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/sisirapr/doc-qa-system/internal/core/domain"
)

type extractorFake struct {
	text string
	err  error
}

func (f *extractorFake) DetectMimeType(_, declared string) string {
	if declared == "" {
		return "text/plain"
	}
	return declared
}

func (f *extractorFake) Extract(context.Context, string, []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type chunkerFake struct {
	chunks       []domain.Chunk
	err          error
	size         int
	overlap      int
	chunkedDocID string
}

func (f *chunkerFake) Chunk(documentID, _ string, size, overlap int) ([]domain.Chunk, error) {
	f.size, f.overlap, f.chunkedDocID = size, overlap, documentID
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Chunk, len(f.chunks))
	for i, c := range f.chunks {
		c.DocumentID = documentID
		out[i] = c
	}
	return out, nil
}

type embedderFake struct {
	vector []float32
	err    error
	calls  int
}

func (f *embedderFake) Dimension() int { return len(f.vector) }

func (f *embedderFake) Embed(context.Context, string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func (f *embedderFake) EmbedChunks(_ context.Context, chunks []domain.Chunk) ([]domain.EmbeddedChunk, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.EmbeddedChunk, len(chunks))
	for i, c := range chunks {
		out[i] = domain.EmbeddedChunk{Chunk: c, Vector: f.vector}
	}
	return out, nil
}

type indexFake struct {
	hits      []domain.SearchHit
	searchErr error
	upsertErr error
	// failPoints lists chunk indexes whose upsert is reported as failed.
	failPoints map[int]bool

	deleted     []string
	upserted    []domain.IndexedPoint
	searchLimit int
	resetCount  int
}

func (f *indexFake) Dimension() int { return 1 }

func (f *indexFake) EnsureCollection(context.Context) error { return nil }

func (f *indexFake) Upsert(_ context.Context, points []domain.IndexedPoint) (domain.UpsertReport, error) {
	if f.upsertErr != nil {
		return domain.UpsertReport{}, f.upsertErr
	}
	report := domain.UpsertReport{Items: make([]domain.PointStatus, len(points))}
	for i, p := range points {
		item := domain.PointStatus{PointID: p.ID, ChunkIndex: p.Payload.ChunkIndex, Stored: true}
		if f.failPoints[p.Payload.ChunkIndex] {
			item.Stored = false
			item.Error = "VECTOR_DB_ERROR: write not verified"
		} else {
			report.Upserted++
			f.upserted = append(f.upserted, p)
		}
		report.Items[i] = item
	}
	return report, nil
}

func (f *indexFake) Search(_ context.Context, _ []float32, limit int, _ domain.SearchFilter) ([]domain.SearchHit, error) {
	f.searchLimit = limit
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.hits, nil
}

func (f *indexFake) DeleteDocument(_ context.Context, documentID string) (int, error) {
	f.deleted = append(f.deleted, documentID)
	return 2, nil
}

func (f *indexFake) Reset(context.Context) (int, error) { return f.resetCount, nil }

type registryFake struct {
	statuses []domain.DocumentStatus
	records  map[string]domain.DocumentRecord
	err      error
}

func newRegistryFake() *registryFake {
	return &registryFake{records: make(map[string]domain.DocumentRecord)}
}

func (f *registryFake) Upsert(_ context.Context, rec *domain.DocumentRecord) error {
	if f.err != nil {
		return f.err
	}
	f.statuses = append(f.statuses, rec.Status)
	f.records[rec.ID] = *rec
	return nil
}

func (f *registryFake) GetByID(_ context.Context, id string) (*domain.DocumentRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get", errors.New(id))
	}
	return &rec, nil
}

func (f *registryFake) List(context.Context, int) ([]domain.DocumentRecord, error) { return nil, nil }

func (f *registryFake) Delete(_ context.Context, id string) error {
	if _, ok := f.records[id]; !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "delete", errors.New(id))
	}
	delete(f.records, id)
	return nil
}

func (f *registryFake) DeleteAll(context.Context) (int, error) {
	n := len(f.records)
	f.records = make(map[string]domain.DocumentRecord)
	return n, nil
}

type storageFake struct {
	savedKey  string
	savedBody string
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.savedKey = key
	f.savedBody = string(raw)
	return nil
}

func (f *storageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

type generatorFake struct {
	text     string
	err      error
	passages string
	calls    int
}

func (f *generatorFake) GenerateAnswer(_ context.Context, _, passages string) (string, error) {
	f.calls++
	f.passages = passages
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func hit(docID string, idx int, score float64, content string) domain.SearchHit {
	return domain.SearchHit{
		Score: score,
		Point: domain.IndexedPoint{
			ID:      domain.PointID(docID, idx),
			Payload: domain.PointPayload{DocumentID: docID, ChunkIndex: idx, Content: content},
		},
	}
}

func intPtr(v int) *int { return &v }
