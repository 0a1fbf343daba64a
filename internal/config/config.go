// Package config defines the environment-overridable configuration surface
// of the context memory backend.
package config

import "time"

// Config is the fully resolved, validated runtime configuration.
type Config struct {
	// HTTP server
	ListenAddr string

	// Observability
	Obs ObsConfig
	LogLevel  string
	LogFormat string

	// Chunking (§4.2)
	MaxChunkTokens    int
	TargetChunkTokens int

	// Graph (§4.4)
	SimilarityThreshold float64
	EdgesPerNodeK       int
	LSHHyperplanes      int
	LSHNeighborBuckets  int

	// Enrichment (§4.3, §5)
	PEnrich        int
	MaxEnrichQueue int

	// Embedding / generation (§9 Open Questions: EmbeddingDim and
	// EmbeddingModelVersion are required with no default; GeneratorModel
	// has a default)
	EmbeddingDim          int
	EmbeddingModelVersion string
	GeneratorModel        string

	// Per-stage timeouts (§5)
	Timeouts TimeoutsConfig

	// Search (§4.5)
	RRFK int

	Embedding  EmbeddingConfig
	Anthropic  AnthropicConfig
	Databases  DatabasesConfig
}

// ObsConfig configures tracing/metrics export.
type ObsConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLP           string
}

// TimeoutsConfig holds the per-stage wall-clock defaults from §5.
type TimeoutsConfig struct {
	Chunk    time.Duration
	Embed    time.Duration
	Analyze  time.Duration
	Generate time.Duration
	GraphAdd time.Duration
}

// EmbeddingConfig describes the embedding provider HTTP contract, mirrored
// on the teacher's internal/embedding.EmbeddingConfig shape.
type EmbeddingConfig struct {
	BaseURL   string
	Model     string
	APIKey    string
	APIHeader string
	Path      string
	Timeout   int // seconds
}

// AnthropicConfig configures the generator provider used by internal/enrich.
type AnthropicConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// BackendConfig selects and configures a pluggable store backend.
type BackendConfig struct {
	Backend string // "memory", "postgres", "qdrant", "auto"
	DSN     string
	Index   string
}

// DatabasesConfig mirrors §6 "Persisted layout": one logical config per
// record family / index kind, same shape as the teacher's
// internal/config.DatabasesConfig.
type DatabasesConfig struct {
	DefaultDSN string
	Search     BackendConfig
	Vector     BackendConfig
	Graph      BackendConfig
	// EmbeddingDim sizes the pgvector column / Qdrant collection created by
	// the postgres and qdrant vector backends. Mirrors the top-level
	// Config.EmbeddingDim.
	EmbeddingDim int
}
