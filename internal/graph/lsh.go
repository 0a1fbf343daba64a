package graph

import (
	"hash/fnv"
	"math"
	"math/bits"
	"math/rand"
)

// signature is a k-bit random-hyperplane LSH fingerprint, k <= 32.
type signature uint32

// hyperplanes holds k deterministic unit vectors used to bucket embeddings
// of a fixed dimension. Seeded from the scope id so rebuilds are
// reproducible (§4.4 "Determinism"), in the same spirit as the
// FNV-seeded deterministic embedder's fallback vectors.
type hyperplanes struct {
	vectors [][]float32
	dim     int
}

func newHyperplanes(scopeKey string, k, dim int) *hyperplanes {
	if k <= 0 {
		k = 12
	}
	if k > 32 {
		k = 32
	}
	seed := scopeSeed(scopeKey)
	rng := rand.New(rand.NewSource(int64(seed)))
	vectors := make([][]float32, k)
	for i := range vectors {
		v := make([]float32, dim)
		var sum float64
		for j := range v {
			x := rng.NormFloat64()
			v[j] = float32(x)
			sum += x * x
		}
		if sum > 0 {
			inv := float32(1.0 / math.Sqrt(sum))
			for j := range v {
				v[j] *= inv
			}
		}
		vectors[i] = v
	}
	return &hyperplanes{vectors: vectors, dim: dim}
}

func scopeSeed(scopeKey string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(scopeKey))
	return h.Sum64()
}

// sign computes the k-bit signature of vec: bit i is 1 when vec is on the
// positive side of hyperplane i.
func (h *hyperplanes) sign(vec []float32) signature {
	var sig signature
	n := len(h.vectors)
	for i := 0; i < n; i++ {
		if dot(h.vectors[i], vec) >= 0 {
			sig |= 1 << uint(i)
		}
	}
	return sig
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s float64
	for i := 0; i < n; i++ {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func hamming(a, b signature) int {
	return bits.OnesCount32(uint32(a ^ b))
}
