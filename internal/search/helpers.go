package search

import (
	"context"
	"math"

	"github.com/arkoroy05/contextmemory/internal/embed"
)

func embedOneSafe(ctx context.Context, e *Engine, query string) ([]float32, bool, error) {
	return embed.EmbedOne(ctx, e.Embedder, query)
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
