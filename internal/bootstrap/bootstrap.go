package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sisirapr/doc-qa-system/internal/config"
	"github.com/sisirapr/doc-qa-system/internal/core/ports"
	"github.com/sisirapr/doc-qa-system/internal/core/usecase"
	"github.com/sisirapr/doc-qa-system/internal/infrastructure/chunking"
	"github.com/sisirapr/doc-qa-system/internal/infrastructure/embedding"
	"github.com/sisirapr/doc-qa-system/internal/infrastructure/extractor"
	"github.com/sisirapr/doc-qa-system/internal/infrastructure/llm"
	"github.com/sisirapr/doc-qa-system/internal/infrastructure/llm/offline"
	"github.com/sisirapr/doc-qa-system/internal/infrastructure/llm/ollama"
	"github.com/sisirapr/doc-qa-system/internal/infrastructure/llm/openai"
	"github.com/sisirapr/doc-qa-system/internal/infrastructure/queue/nats"
	registrymem "github.com/sisirapr/doc-qa-system/internal/infrastructure/repository/memory"
	"github.com/sisirapr/doc-qa-system/internal/infrastructure/repository/postgres"
	"github.com/sisirapr/doc-qa-system/internal/infrastructure/resilience"
	"github.com/sisirapr/doc-qa-system/internal/infrastructure/source/gdrive"
	"github.com/sisirapr/doc-qa-system/internal/infrastructure/source/localfs"
	vectormem "github.com/sisirapr/doc-qa-system/internal/infrastructure/vector/memory"
	"github.com/sisirapr/doc-qa-system/internal/infrastructure/vector/qdrant"
)

// Observers receive runtime signals from the wired components. Any field
// may be nil.
type Observers struct {
	Resilience        resilience.Observer
	Query             usecase.QueryObserver
	Ingest            usecase.IngestObserver
	EmbeddingFallback func(reason string)
	QueueLag          func(time.Duration)
}

type App struct {
	Config config.Config

	Queue    ports.MessageQueue
	Registry ports.DocumentRegistry
	Index    ports.VectorIndex

	IngestUC *usecase.IngestUseCase
	QueryUC  *usecase.QueryUseCase
	SearchUC *usecase.SearchUseCase
	AdminUC  *usecase.IndexAdminUseCase
	ImportUC *usecase.ImportUseCase

	closers []func()
}

func New(ctx context.Context, cfg config.Config, obs Observers) (*App, error) {
	app := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	registry, err := app.openRegistry(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.Registry = registry

	index := app.openIndex(cfg, obs)
	embedder := newEmbedder(cfg, obs)
	if err := prepareIndex(ctx, embedder, index); err != nil {
		return nil, err
	}
	app.Index = index

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}
	source, err := newSource(ctx, cfg, obs)
	if err != nil {
		return nil, err
	}

	if cfg.NATSURL != "" {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor("nats", cfg.QueueResilience, obs.Resilience),
			OnQueueLag:         obs.QueueLag,
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.closers = append(app.closers, queue.Close)
		app.Queue = queue
	}

	chunker := chunking.NewSplitter(cfg.ChunkMinSize, cfg.ChunkMaxSize)
	app.IngestUC = usecase.NewIngestUseCase(
		extractor.New(), chunker, embedder, index, registry, storage,
		usecase.ChunkDefaults{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap},
		obs.Ingest,
	)
	app.QueryUC = usecase.NewQueryUseCase(
		embedder, index, newGenerator(cfg, obs), offline.NewGenerator(),
		usecase.AnswerPolicy{
			RelevanceThreshold: cfg.AnswerThreshold,
			MaxContextLength:   cfg.MaxContextLength,
			DefaultLimit:       cfg.RAGTopK,
		},
		obs.Query,
	)
	app.SearchUC = usecase.NewSearchUseCase(embedder, index, cfg.SearchThreshold)
	app.AdminUC = usecase.NewIndexAdminUseCase(index, registry)
	app.ImportUC = usecase.NewImportUseCase(source, app.Queue, app.IngestUC)

	ok = true
	return app, nil
}

// prepareIndex fails startup when the embedder and the index disagree on the
// vector size, then creates or validates the collection.
func prepareIndex(ctx context.Context, embedder *embedding.Service, index ports.VectorIndex) error {
	if err := embedder.ValidateDimension(ctx, index.Dimension()); err != nil {
		return fmt.Errorf("validate embedding dimension: %w", err)
	}
	if err := index.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("ensure vector collection: %w", err)
	}
	return nil
}

func (a *App) openRegistry(ctx context.Context, cfg config.Config) (ports.DocumentRegistry, error) {
	if cfg.PostgresDSN == "" {
		slog.Info("registry_in_memory")
		return registrymem.NewRegistry(), nil
	}
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	a.closers = append(a.closers, func() { _ = db.Close() })

	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return repo, nil
}

func (a *App) openIndex(cfg config.Config, obs Observers) ports.VectorIndex {
	if cfg.QdrantURL == "" {
		slog.Info("vector_index_in_memory", "dimension", cfg.EmbeddingDimension)
		return vectormem.NewIndex(cfg.EmbeddingDimension)
	}
	return qdrant.New(qdrant.Config{
		BaseURL:       cfg.QdrantURL,
		APIKey:        cfg.QdrantAPIKey,
		Collection:    cfg.QdrantCollection,
		Dimension:     cfg.EmbeddingDimension,
		UpsertWorkers: cfg.QdrantUpsertWorkers,
	}, resilience.NewExecutor("qdrant", cfg.VectorResilience, obs.Resilience))
}

func newEmbedder(cfg config.Config, obs Observers) *embedding.Service {
	var provider ports.EmbeddingProvider
	switch cfg.LLMProvider {
	case "ollama":
		provider = ollama.NewEmbedder(ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, cfg.OllamaTimeout))
	case "openai":
		provider = newOpenAIClient(cfg)
	}

	opts := embedding.Options{
		Dimension:  cfg.EmbeddingDimension,
		Workers:    cfg.EmbeddingWorkers,
		BatchSize:  cfg.EmbeddingBatchSize,
		Executor:   resilience.NewExecutor("embedding", cfg.EmbeddingResilience, obs.Resilience),
		OnFallback: obs.EmbeddingFallback,
	}
	if cfg.EmbeddingFallback {
		opts.Fallback = embedding.NewHashEmbedder(cfg.EmbeddingDimension)
	}
	return embedding.NewService(provider, opts)
}

// newGenerator returns nil when no provider is configured; the query use
// case then answers with the offline generator.
func newGenerator(cfg config.Config, obs Observers) ports.AnswerGenerator {
	var next ports.AnswerGenerator
	switch cfg.LLMProvider {
	case "ollama":
		next = ollama.NewGenerator(ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, cfg.OllamaTimeout))
	case "openai":
		next = newOpenAIClient(cfg)
	default:
		return nil
	}
	return llm.NewGuardedGenerator(next, resilience.NewExecutor("generation", cfg.GenerationResilience, obs.Resilience))
}

func newOpenAIClient(cfg config.Config) *openai.Client {
	return openai.New(openai.Config{
		APIKey:     cfg.OpenAIAPIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		EmbedModel: cfg.OpenAIEmbedModel,
		ChatModel:  cfg.OpenAIChatModel,
		Dimensions: cfg.EmbeddingDimension,
		Timeout:    cfg.OpenAITimeout,
	})
}

func newSource(ctx context.Context, cfg config.Config, obs Observers) (ports.DocumentSource, error) {
	if !cfg.GDriveEnabled() {
		src, err := localfs.New(cfg.ImportPath)
		if err != nil {
			return nil, fmt.Errorf("init import directory: %w", err)
		}
		return src, nil
	}
	src, err := gdrive.New(ctx, gdrive.Config{
		AccessToken:       cfg.GDriveAccessToken,
		CredentialsFile:   cfg.GDriveCredentialsFile,
		Endpoint:          cfg.GDriveEndpoint,
		RequestsPerSecond: cfg.GDriveRPS,
		Burst:             cfg.GDriveBurst,
	}, resilience.NewExecutor("gdrive", cfg.SourceResilience, obs.Resilience))
	if err != nil {
		return nil, fmt.Errorf("init google drive source: %w", err)
	}
	return src, nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
