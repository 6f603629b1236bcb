package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sisirapr/doc-qa-system/internal/core/domain"
	"github.com/sisirapr/doc-qa-system/internal/infrastructure/resilience"
	"github.com/sisirapr/doc-qa-system/internal/infrastructure/vector"
)

const distanceCosine = "Cosine"

var errPointNotPersisted = errors.New("point not found after write")

type Config struct {
	BaseURL    string
	APIKey     string
	Collection string
	Dimension  int
	Timeout    time.Duration

	// UpsertWorkers bounds concurrent point writes.
	UpsertWorkers int
	// UpsertAttempts and UpsertDelay drive the per-point write+verify retry.
	UpsertAttempts int
	UpsertDelay    time.Duration
}

// Client is the vector index adapter over Qdrant's REST API.
// One Client is shared per process; it is safe for concurrent use.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
	upsertExec *resilience.Executor

	ensureMu sync.Mutex
	ensured  bool
}

func New(cfg Config, executor *resilience.Executor) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UpsertWorkers <= 0 {
		cfg.UpsertWorkers = 8
	}
	if cfg.UpsertAttempts <= 0 {
		cfg.UpsertAttempts = 3
	}
	if cfg.UpsertDelay <= 0 {
		cfg.UpsertDelay = time.Second
	}
	if executor == nil {
		executor = resilience.NewExecutor("qdrant", resilience.DefaultConfig(), nil)
	}
	return &Client{
		cfg:        cfg,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		executor:   executor,
		upsertExec: executor.WithRetryPolicy(resilience.FixedRetryPolicy(
			cfg.UpsertAttempts, cfg.UpsertDelay, domain.ErrTemporary, domain.ErrRateLimited,
		)),
	}
}

func (c *Client) Dimension() int { return c.cfg.Dimension }

// EnsureCollection creates the collection when missing and otherwise checks
// that its vector size and distance match the configuration.
func (c *Client) EnsureCollection(ctx context.Context) error {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	if c.ensured {
		return nil
	}

	err := c.executor.Execute(ctx, "qdrant.ensure_collection", func(ctx context.Context) error {
		var info collectionInfo
		err := c.doJSON(ctx, http.MethodGet, c.collectionPath(""), nil, &info, "get collection")
		if isNotFound(err) {
			return c.createCollection(ctx)
		}
		if err != nil {
			return err
		}
		params := info.Result.Config.Params.Vectors
		if params.Size != c.cfg.Dimension {
			return domain.WrapError(domain.ErrDimensionMismatch, "qdrant.ensure_collection",
				fmt.Errorf("collection %q has size %d, configured %d", c.cfg.Collection, params.Size, c.cfg.Dimension))
		}
		if params.Distance != "" && params.Distance != distanceCosine {
			return fmt.Errorf("collection %q uses %s distance, want %s", c.cfg.Collection, params.Distance, distanceCosine)
		}
		return nil
	}, nil)
	if err != nil {
		return wrapVectorError("qdrant.ensure_collection", err)
	}
	c.ensured = true
	return nil
}

func (c *Client) createCollection(ctx context.Context) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     c.cfg.Dimension,
			"distance": distanceCosine,
		},
	}
	err := c.doJSON(ctx, http.MethodPut, c.collectionPath(""), body, nil, "create collection")
	if isStatus(err, http.StatusConflict) {
		return nil
	}
	if err == nil {
		slog.Info("qdrant_collection_created", "collection", c.cfg.Collection, "size", c.cfg.Dimension)
	}
	return err
}

// Upsert writes every point with its own write-then-verify retry loop. Points
// proceed concurrently; per-point outcomes are reported in order. The error
// is non-nil only when no point could be stored.
func (c *Client) Upsert(ctx context.Context, points []domain.IndexedPoint) (domain.UpsertReport, error) {
	report := domain.UpsertReport{Items: make([]domain.PointStatus, len(points))}
	if len(points) == 0 {
		return report, nil
	}
	if err := c.EnsureCollection(ctx); err != nil {
		return report, err
	}

	var g errgroup.Group
	g.SetLimit(c.cfg.UpsertWorkers)
	errs := make([]error, len(points))
	for i := range points {
		g.Go(func() error {
			p := points[i]
			item := domain.PointStatus{PointID: p.ID, ChunkIndex: p.Payload.ChunkIndex}
			if err := c.upsertPoint(ctx, p); err != nil {
				errs[i] = err
				item.Error = err.Error()
			} else {
				item.Stored = true
			}
			report.Items[i] = item
			return nil
		})
	}
	_ = g.Wait()

	var firstErr error
	for i, item := range report.Items {
		if item.Stored {
			report.Upserted++
		} else if firstErr == nil {
			firstErr = errs[i]
		}
	}
	if report.Upserted == 0 {
		return report, firstErr
	}
	return report, nil
}

func (c *Client) upsertPoint(ctx context.Context, p domain.IndexedPoint) error {
	if len(p.Vector) != c.cfg.Dimension {
		return domain.WrapError(domain.ErrDimensionMismatch, "qdrant.upsert",
			fmt.Errorf("point %d has size %d, want %d", p.ID, len(p.Vector), c.cfg.Dimension))
	}
	body := map[string]any{
		"points": []qdrantPoint{{
			ID:      p.ID,
			Vector:  vector.Normalize(p.Vector),
			Payload: p.Payload,
		}},
	}

	err := c.upsertExec.Execute(ctx, "qdrant.upsert", func(ctx context.Context) error {
		if err := c.doJSON(ctx, http.MethodPut, c.collectionPath("/points?wait=true"), body, nil, "upsert"); err != nil {
			return err
		}
		return c.verifyPoint(ctx, p.ID)
	}, nil)
	if err != nil {
		return wrapVectorError("qdrant.upsert", err)
	}
	return nil
}

func (c *Client) verifyPoint(ctx context.Context, id uint64) error {
	var resp struct {
		Result *struct {
			ID uint64 `json:"id"`
		} `json:"result"`
	}
	err := c.doJSON(ctx, http.MethodGet, c.collectionPath(fmt.Sprintf("/points/%d", id)), nil, &resp, "verify")
	if isNotFound(err) || (err == nil && resp.Result == nil) {
		return domain.WrapError(domain.ErrTemporary, "qdrant.verify", fmt.Errorf("%w: id=%d", errPointNotPersisted, id))
	}
	return err
}

// Search returns up to limit hits in descending score order. No relevance
// threshold is applied here.
func (c *Client) Search(ctx context.Context, query []float32, limit int, filter domain.SearchFilter) ([]domain.SearchHit, error) {
	if len(query) != c.cfg.Dimension {
		return nil, domain.WrapError(domain.ErrDimensionMismatch, "qdrant.search",
			fmt.Errorf("query has size %d, want %d", len(query), c.cfg.Dimension))
	}
	if limit <= 0 {
		limit = 5
	}
	if err := c.EnsureCollection(ctx); err != nil {
		return nil, err
	}

	reqBody := map[string]any{
		"vector":       vector.Normalize(query),
		"limit":        limit,
		"with_payload": true,
	}
	if f := buildFilter(filter); f != nil {
		reqBody["filter"] = f
	}

	resp, err := resilience.Call(ctx, c.executor, "qdrant.search", func(ctx context.Context) (searchResponse, error) {
		var resp searchResponse
		err := c.doJSON(ctx, http.MethodPost, c.collectionPath("/points/search"), reqBody, &resp, "search")
		return resp, err
	}, nil)
	if err != nil {
		return nil, wrapVectorError("qdrant.search", err)
	}

	out := make([]domain.SearchHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		out = append(out, domain.SearchHit{
			Score: r.Score,
			Point: domain.IndexedPoint{ID: r.ID, Payload: r.Payload},
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// DeleteDocument removes every point of documentID and reports how many were removed.
func (c *Client) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	if strings.TrimSpace(documentID) == "" {
		return 0, domain.WrapError(domain.ErrInvalidInput, "qdrant.delete", errors.New("document id is required"))
	}
	if err := c.EnsureCollection(ctx); err != nil {
		return 0, err
	}
	filter := buildFilter(domain.SearchFilter{"document_id": documentID})

	removed, err := resilience.Call(ctx, c.executor, "qdrant.delete", func(ctx context.Context) (int, error) {
		n, err := c.count(ctx, filter)
		if err != nil || n == 0 {
			return n, err
		}
		err = c.doJSON(ctx, http.MethodPost, c.collectionPath("/points/delete?wait=true"), map[string]any{"filter": filter}, nil, "delete")
		return n, err
	}, nil)
	if err != nil {
		return 0, wrapVectorError("qdrant.delete", err)
	}
	return removed, nil
}

// Reset drops and recreates the collection, returning the number of points dropped.
func (c *Client) Reset(ctx context.Context) (int, error) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()

	removed, err := resilience.Call(ctx, c.executor, "qdrant.reset", func(ctx context.Context) (int, error) {
		n, err := c.count(ctx, nil)
		if isNotFound(err) {
			n, err = 0, nil
		}
		if err != nil {
			return 0, err
		}
		err = c.doJSON(ctx, http.MethodDelete, c.collectionPath(""), nil, nil, "drop collection")
		if err != nil && !isNotFound(err) {
			return 0, err
		}
		return n, c.createCollection(ctx)
	}, nil)
	if err != nil {
		c.ensured = false
		return 0, wrapVectorError("qdrant.reset", err)
	}
	c.ensured = true
	return removed, nil
}

func (c *Client) count(ctx context.Context, filter map[string]any) (int, error) {
	body := map[string]any{"exact": true}
	if filter != nil {
		body["filter"] = filter
	}
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.collectionPath("/points/count"), body, &resp, "count"); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

func (c *Client) collectionPath(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", c.baseURL, c.cfg.Collection, suffix)
}

type qdrantPoint struct {
	ID      uint64              `json:"id"`
	Vector  []float32           `json:"vector"`
	Payload domain.PointPayload `json:"payload"`
}

type searchResponse struct {
	Result []struct {
		ID      uint64              `json:"id"`
		Score   float64             `json:"score"`
		Payload domain.PointPayload `json:"payload"`
	} `json:"result"`
}

type collectionInfo struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

func wrapVectorError(operation string, err error) error {
	if domain.IsKind(err, domain.ErrVectorDB) || domain.IsKind(err, domain.ErrDimensionMismatch) || domain.IsKind(err, domain.ErrInvalidInput) {
		return err
	}
	return domain.WrapError(domain.ErrVectorDB, operation, err)
}
