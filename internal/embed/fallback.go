package embed

import (
	"hash/fnv"
	"math"

	"github.com/arkoroy05/contextmemory/internal/model"
)

// hashEmbedder produces a deterministic, content-derived, unit-normalized
// embedding by hashing byte trigrams into a fixed-dimension vector. This
// is the Fallback vector of the GLOSSARY: never mixed with provider
// vectors without the FallbackModelSuffix marker.
type hashEmbedder struct {
	dim  int
	seed uint64
}

func newHashEmbedder(dim int, seed uint64) *hashEmbedder {
	if dim <= 0 {
		dim = 64
	}
	return &hashEmbedder{dim: dim, seed: seed}
}

// embedOne computes the fallback vector for s.
func (h *hashEmbedder) embedOne(s string) []float32 {
	v := make([]float32, h.dim)
	b := []byte(s)
	if len(b) == 0 {
		return v
	}
	if len(b) < 3 {
		addGram(h.seed, b, v)
	} else {
		for i := 0; i <= len(b)-3; i++ {
			addGram(h.seed, b[i:i+3], v)
		}
	}
	normalize(v)
	return v
}

func addGram(seed uint64, gram []byte, v []float32) {
	hasher := fnv.New64a()
	if seed != 0 {
		var tmp [8]byte
		for i := 0; i < 8; i++ {
			tmp[i] = byte(seed >> (8 * i))
		}
		_, _ = hasher.Write(tmp[:])
	}
	_, _ = hasher.Write(gram)
	hv := hasher.Sum64()
	idx := int(hv % uint64(len(v)))
	w := float32(int32(hv>>32)) / float32(1<<31)
	v[idx] += w
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum <= 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

// FallbackVector computes the deterministic fallback embedding for text at
// the given dimension, for use when a provider is fully unavailable (e.g.
// backpressure shedding in internal/enrich).
func FallbackVector(text string, dim int) []float32 {
	return newHashEmbedder(dim, 0).embedOne(text)
}

// MarkFallback returns the embeddingModelVersion string that flags an
// embedding as hash-derived rather than a provider result.
func MarkFallback(modelVersion string) string {
	return modelVersion + model.FallbackModelSuffix
}
