// Package embed implements the embedding half of the AI Enricher (C3,
// §4.3): EmbedOne/EmbedBatch against a provider, with a deterministic
// hashed-feature fallback vector when the provider is unavailable.
package embed

import (
	"context"
	"sync"
	"time"

	"github.com/arkoroy05/contextmemory/internal/config"
)

// Embedder converts text to fixed-dimension embedding vectors.
type Embedder interface {
	// EmbedBatch returns one vector per input, preserving order. Entries
	// that fail the provider call are replaced with the deterministic
	// fallback and reported in failedIdx.
	EmbedBatch(ctx context.Context, texts []string) (vectors [][]float32, failedIdx []int, err error)
	Name() string
	Dimension() int
	Ping(ctx context.Context) error
}

// clientEmbedder calls a configured HTTP embedding provider, falling back
// to the deterministic hash embedder per input on failure rather than
// failing the whole batch (§4.3 "partial failures return fallbacks for
// failed entries").
type clientEmbedder struct {
	cfg      config.EmbeddingConfig
	dim      int
	fallback *hashEmbedder

	mu       sync.Mutex
	lastCall time.Time
}

// NewClient constructs an Embedder backed by the configured embedding
// provider, with the deterministic fallback embedder wired in for partial
// or total failure.
func NewClient(cfg config.EmbeddingConfig, dim int) Embedder {
	return &clientEmbedder{
		cfg:      cfg,
		dim:      dim,
		fallback: newHashEmbedder(dim, 0),
	}
}

func (c *clientEmbedder) Name() string   { return c.cfg.Model }
func (c *clientEmbedder) Dimension() int { return c.dim }

func (c *clientEmbedder) Ping(ctx context.Context) error {
	return checkReachability(ctx, c.cfg)
}

func (c *clientEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, []int, error) {
	if len(texts) == 0 {
		return nil, nil, nil
	}
	vectors, err := embedText(ctx, c.cfg, texts)
	if err != nil {
		// Total provider failure: every entry falls back.
		out := make([][]float32, len(texts))
		failed := make([]int, len(texts))
		for i, t := range texts {
			out[i] = c.fallback.embedOne(t)
			failed[i] = i
		}
		return out, failed, nil
	}
	var failed []int
	for i, v := range vectors {
		if len(v) == 0 {
			vectors[i] = c.fallback.embedOne(texts[i])
			failed = append(failed, i)
		}
	}
	return vectors, failed, nil
}

// EmbedOne embeds a single text, returning the fallback flag alongside the
// vector.
func EmbedOne(ctx context.Context, e Embedder, text string) (vector []float32, isFallback bool, err error) {
	vectors, failed, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, false, err
	}
	if len(vectors) == 0 {
		return nil, false, nil
	}
	return vectors[0], len(failed) > 0, nil
}
