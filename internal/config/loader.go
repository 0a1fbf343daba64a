package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/arkoroy05/contextmemory/internal/apperr"
)

// Load reads configuration from the process environment, optionally
// overlaid by a .env file in the working directory. Required fields with
// no sensible default (EMBEDDING_DIM, EMBEDDING_MODEL_VERSION) cause Load
// to fail fast with InvalidInput, per §9.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{}

	cfg.ListenAddr = firstNonEmpty(os.Getenv("LISTEN_ADDR"), ":8080")

	cfg.Obs.ServiceName = firstNonEmpty(os.Getenv("OTEL_SERVICE_NAME"), "contextmemory")
	cfg.Obs.ServiceVersion = firstNonEmpty(os.Getenv("SERVICE_VERSION"), "dev")
	cfg.Obs.Environment = firstNonEmpty(os.Getenv("ENVIRONMENT"), "dev")
	cfg.Obs.OTLP = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	cfg.LogLevel = firstNonEmpty(os.Getenv("LOG_LEVEL"), "info")
	cfg.LogFormat = firstNonEmpty(os.Getenv("LOG_FORMAT"), "json")

	cfg.MaxChunkTokens = intFromEnv("MAX_CHUNK_TOKENS", 4000)
	cfg.TargetChunkTokens = intFromEnv("TARGET_CHUNK_TOKENS", int(0.75*float64(cfg.MaxChunkTokens)))

	cfg.SimilarityThreshold = floatFromEnv("SIMILARITY_THRESHOLD", 0.62)
	cfg.EdgesPerNodeK = intFromEnv("EDGES_PER_NODE_K", 16)
	cfg.LSHHyperplanes = intFromEnv("LSH_HYPERPLANES", 12)
	cfg.LSHNeighborBuckets = intFromEnv("LSH_NEIGHBOR_BUCKETS", 8)

	cfg.PEnrich = intFromEnv("P_ENRICH", 8)
	cfg.MaxEnrichQueue = intFromEnv("MAX_ENRICH_QUEUE", 10000)

	cfg.EmbeddingDim = intFromEnv("EMBEDDING_DIM", 0)
	cfg.EmbeddingModelVersion = strings.TrimSpace(os.Getenv("EMBEDDING_MODEL_VERSION"))
	cfg.GeneratorModel = firstNonEmpty(os.Getenv("GENERATOR_MODEL"), "claude-sonnet-4-5")

	cfg.Timeouts = TimeoutsConfig{
		Chunk:    secondsFromEnv("CHUNK_TIMEOUT_SECONDS", 2*time.Second),
		Embed:    secondsFromEnv("EMBED_TIMEOUT_SECONDS", 15*time.Second),
		Analyze:  secondsFromEnv("ANALYZE_TIMEOUT_SECONDS", 15*time.Second),
		Generate: secondsFromEnv("GENERATE_TIMEOUT_SECONDS", 30*time.Second),
		GraphAdd: secondsFromEnv("GRAPH_ADD_TIMEOUT_SECONDS", 5*time.Second),
	}

	cfg.RRFK = intFromEnv("RRF_K", 60)

	cfg.Embedding = EmbeddingConfig{
		BaseURL:   firstNonEmpty(os.Getenv("EMBED_BASE_URL"), "https://api.openai.com"),
		Model:     firstNonEmpty(os.Getenv("EMBED_MODEL"), "text-embedding-3-small"),
		APIKey:    strings.TrimSpace(os.Getenv("EMBED_API_KEY")),
		APIHeader: firstNonEmpty(os.Getenv("EMBED_API_HEADER"), "Authorization"),
		Path:      firstNonEmpty(os.Getenv("EMBED_PATH"), "/v1/embeddings"),
		Timeout:   intFromEnv("EMBED_TIMEOUT", 30),
	}

	cfg.Anthropic = AnthropicConfig{
		APIKey:  strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
		Model:   firstNonEmpty(os.Getenv("ANTHROPIC_MODEL"), cfg.GeneratorModel),
		BaseURL: strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL")),
	}

	cfg.Databases.DefaultDSN = firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("DB_URL"), os.Getenv("POSTGRES_DSN"))
	cfg.Databases.Search = backendFromEnv("SEARCH", cfg.Databases.DefaultDSN)
	cfg.Databases.Vector = backendFromEnv("VECTOR", cfg.Databases.DefaultDSN)
	cfg.Databases.Graph = backendFromEnv("GRAPH", cfg.Databases.DefaultDSN)

	if cfg.EmbeddingDim <= 0 {
		return Config{}, apperr.New(apperr.InvalidInput, "EMBEDDING_DIM is required and must be positive")
	}
	cfg.Databases.EmbeddingDim = cfg.EmbeddingDim
	if cfg.EmbeddingModelVersion == "" {
		return Config{}, apperr.New(apperr.InvalidInput, "EMBEDDING_MODEL_VERSION is required")
	}

	return cfg, nil
}

func backendFromEnv(prefix, defaultDSN string) BackendConfig {
	backend := strings.TrimSpace(os.Getenv(prefix + "_BACKEND"))
	dsn := firstNonEmpty(os.Getenv(prefix+"_DSN"), defaultDSN)
	if backend == "" {
		if dsn != "" {
			backend = "auto"
		} else {
			backend = "memory"
		}
	}
	return BackendConfig{
		Backend: backend,
		DSN:     dsn,
		Index:   strings.TrimSpace(os.Getenv(prefix + "_INDEX")),
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}

func intFromEnv(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func secondsFromEnv(key string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}
