package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sisirapr/doc-qa-system/internal/infrastructure/resilience"
)

// Config is read from the environment. When CONFIG_FILE names a YAML file,
// its keys (the same names as the environment variables) supply defaults
// that the environment still overrides.
type Config struct {
	APIPort           string
	WorkerMetricsPort string
	LogLevel          string

	// Empty PostgresDSN keeps the document registry in memory.
	PostgresDSN string

	// Empty NATSURL makes imports synchronous.
	NATSURL     string
	NATSSubject string

	// LLMProvider is "ollama", "openai" or "none".
	LLMProvider string

	OllamaURL        string
	OllamaGenModel   string
	OllamaEmbedModel string
	OllamaTimeout    time.Duration

	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIEmbedModel string
	OpenAIChatModel  string
	OpenAITimeout    time.Duration

	EmbeddingDimension int
	EmbeddingFallback  bool
	EmbeddingWorkers   int
	EmbeddingBatchSize int

	// Empty QdrantURL keeps the vector index in memory.
	QdrantURL           string
	QdrantAPIKey        string
	QdrantCollection    string
	QdrantUpsertWorkers int

	StoragePath string
	// ImportPath is the local import directory used when Google Drive is
	// not configured.
	ImportPath string

	GDriveAccessToken     string
	GDriveCredentialsFile string
	GDriveEndpoint        string
	GDriveRPS             float64
	GDriveBurst           int

	ChunkSize    int
	ChunkOverlap int
	ChunkMinSize int
	ChunkMaxSize int

	RAGTopK          int
	AnswerThreshold  float64
	SearchThreshold  float64
	MaxContextLength int

	EmbeddingResilience  resilience.Config
	GenerationResilience resilience.Config
	VectorResilience     resilience.Config
	SourceResilience     resilience.Config
	QueueResilience      resilience.Config

	APIRateLimitRPS     float64
	APIRateLimitBurst   int
	APIMaxInFlight      int
	APIBackpressureWait time.Duration
	MaxUploadBytes      int64

	MCPServerName string
}

// GDriveEnabled reports whether a Google Drive credential is configured.
func (c Config) GDriveEnabled() bool {
	return c.GDriveAccessToken != "" || c.GDriveCredentialsFile != ""
}

// ProcessLocalStores lists the env keys whose absence leaves the vector index
// or the document registry in this process's memory.
func (c Config) ProcessLocalStores() []string {
	var missing []string
	if c.QdrantURL == "" {
		missing = append(missing, "QDRANT_URL")
	}
	if c.PostgresDSN == "" {
		missing = append(missing, "POSTGRES_DSN")
	}
	return missing
}

func Load() (Config, error) {
	file, err := readFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return Config{}, err
	}
	e := env{file: file}

	return Config{
		APIPort:           e.mustEnv("API_PORT", "8080"),
		WorkerMetricsPort: e.mustEnv("WORKER_METRICS_PORT", "9090"),
		LogLevel:          e.mustEnv("LOG_LEVEL", "info"),

		PostgresDSN: e.mustEnv("POSTGRES_DSN", ""),

		NATSURL:     e.mustEnv("NATS_URL", ""),
		NATSSubject: e.mustEnv("NATS_SUBJECT", "documents.import"),

		LLMProvider: strings.ToLower(e.mustEnv("LLM_PROVIDER", "ollama")),

		OllamaURL:        e.mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaGenModel:   e.mustEnv("OLLAMA_GEN_MODEL", "llama3.1:8b"),
		OllamaEmbedModel: e.mustEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
		OllamaTimeout:    e.mustEnvDuration("OLLAMA_TIMEOUT", 120*time.Second),

		OpenAIAPIKey:     e.mustEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    e.mustEnv("OPENAI_BASE_URL", ""),
		OpenAIEmbedModel: e.mustEnv("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		OpenAIChatModel:  e.mustEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		OpenAITimeout:    e.mustEnvDuration("OPENAI_TIMEOUT", 60*time.Second),

		EmbeddingDimension: e.mustEnvInt("EMBEDDING_DIMENSION", 768),
		EmbeddingFallback:  e.mustEnvBool("EMBEDDING_FALLBACK", true),
		EmbeddingWorkers:   e.mustEnvInt("EMBEDDING_WORKERS", 4),
		EmbeddingBatchSize: e.mustEnvInt("EMBEDDING_BATCH_SIZE", 16),

		QdrantURL:           e.mustEnv("QDRANT_URL", ""),
		QdrantAPIKey:        e.mustEnv("QDRANT_API_KEY", ""),
		QdrantCollection:    e.mustEnv("QDRANT_COLLECTION", "documents"),
		QdrantUpsertWorkers: e.mustEnvInt("QDRANT_UPSERT_WORKERS", 8),

		StoragePath: e.mustEnv("STORAGE_PATH", "./data/storage"),
		ImportPath:  e.mustEnv("IMPORT_PATH", "./data/import"),

		GDriveAccessToken:     e.mustEnv("GDRIVE_ACCESS_TOKEN", ""),
		GDriveCredentialsFile: e.mustEnv("GDRIVE_CREDENTIALS_FILE", ""),
		GDriveEndpoint:        e.mustEnv("GDRIVE_ENDPOINT", ""),
		GDriveRPS:             e.mustEnvFloat("GDRIVE_RPS", 8),
		GDriveBurst:           e.mustEnvInt("GDRIVE_BURST", 10),

		ChunkSize:    e.mustEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap: e.mustEnvInt("CHUNK_OVERLAP", 200),
		ChunkMinSize: e.mustEnvInt("CHUNK_MIN_SIZE", 100),
		ChunkMaxSize: e.mustEnvInt("CHUNK_MAX_SIZE", 10000),

		RAGTopK:          e.mustEnvInt("RAG_TOP_K", 5),
		AnswerThreshold:  e.mustEnvFloat("RAG_ANSWER_THRESHOLD", 0.3),
		SearchThreshold:  e.mustEnvFloat("RAG_SEARCH_THRESHOLD", 0.7),
		MaxContextLength: e.mustEnvInt("RAG_MAX_CONTEXT_LENGTH", 4000),

		EmbeddingResilience:  e.resilience("EMBEDDING"),
		GenerationResilience: e.resilience("GENERATION"),
		VectorResilience:     e.resilience("QDRANT"),
		SourceResilience:     e.resilience("GDRIVE"),
		QueueResilience:      e.resilience("NATS"),

		APIRateLimitRPS:     e.mustEnvFloat("API_RATE_LIMIT_RPS", 0),
		APIRateLimitBurst:   e.mustEnvInt("API_RATE_LIMIT_BURST", 20),
		APIMaxInFlight:      e.mustEnvInt("API_MAX_IN_FLIGHT", 64),
		APIBackpressureWait: e.mustEnvDuration("API_BACKPRESSURE_WAIT", 250*time.Millisecond),
		MaxUploadBytes:      int64(e.mustEnvInt("API_MAX_UPLOAD_BYTES", 32<<20)),

		MCPServerName: e.mustEnv("MCP_SERVER_NAME", "doc-qa-system"),
	}, nil
}

// resilience reads <PREFIX>_RETRY_* and <PREFIX>_BREAKER_* for one dependency.
func (e env) resilience(prefix string) resilience.Config {
	def := resilience.DefaultConfig()
	return resilience.Config{
		RetryMaxAttempts: e.mustEnvInt(prefix+"_RETRY_MAX_ATTEMPTS", def.RetryMaxAttempts),
		RetryBaseDelay:   e.mustEnvDuration(prefix+"_RETRY_BASE_DELAY", def.RetryBaseDelay),
		RetryMaxDelay:    e.mustEnvDuration(prefix+"_RETRY_MAX_DELAY", def.RetryMaxDelay),
		RetryMultiplier:  e.mustEnvFloat(prefix+"_RETRY_MULTIPLIER", def.RetryMultiplier),
		RetryJitter:      e.mustEnvFloat(prefix+"_RETRY_JITTER", def.RetryJitter),

		BreakerEnabled:          e.mustEnvBool(prefix+"_BREAKER_ENABLED", def.BreakerEnabled),
		BreakerFailureThreshold: uint32(e.mustEnvInt(prefix+"_BREAKER_FAILURE_THRESHOLD", int(def.BreakerFailureThreshold))),
		BreakerRecoveryTimeout:  e.mustEnvDuration(prefix+"_BREAKER_RECOVERY_TIMEOUT", def.BreakerRecoveryTimeout),
	}
}

type env struct {
	file map[string]string
}

func readFile(path string) (map[string]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		out[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return out, nil
}

func (e env) lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return e.file[key]
}

func (e env) mustEnv(key, fallback string) string {
	v := e.lookup(key)
	if v == "" {
		return fallback
	}
	return v
}

func (e env) mustEnvInt(key string, fallback int) int {
	v := e.lookup(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func (e env) mustEnvBool(key string, fallback bool) bool {
	v := e.lookup(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func (e env) mustEnvFloat(key string, fallback float64) float64 {
	v := e.lookup(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func (e env) mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := e.lookup(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}
