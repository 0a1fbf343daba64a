package databases

import (
	"context"
	"math"
	"sort"
	"sync"
)

// memoryVector is the in-process VectorStore used by default and by tests:
// a flat map of node embeddings searched by brute-force cosine similarity.
// Fine for the node counts a single context/project graph accumulates;
// postgres (pgvector) and Qdrant take over once that stops being true.
type memoryVector struct {
	mu         sync.RWMutex
	embeddings map[string]nodeEmbedding
}

type nodeEmbedding struct {
	vector   []float32
	metadata map[string]string
}

// NewMemoryVector constructs an empty in-memory vector store.
func NewMemoryVector() VectorStore {
	return &memoryVector{embeddings: make(map[string]nodeEmbedding)}
}

func (m *memoryVector) Upsert(_ context.Context, nodeID string, vector []float32, metadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]float32, len(vector))
	copy(cp, vector)
	m.embeddings[nodeID] = nodeEmbedding{vector: cp, metadata: copyMap(metadata)}
	return nil
}

func (m *memoryVector) Delete(_ context.Context, nodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.embeddings, nodeID)
	return nil
}

func (m *memoryVector) SimilaritySearch(_ context.Context, query []float32, k int, filter map[string]string) ([]VectorResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 {
		k = 10
	}
	qnorm := norm(query)
	scores := make([]VectorResult, 0, len(m.embeddings))
	for nodeID, e := range m.embeddings {
		if !matchesFilter(e.metadata, filter) {
			continue
		}
		scores = append(scores, VectorResult{ID: nodeID, Score: cosine(query, e.vector, qnorm), Metadata: copyMap(e.metadata)})
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	if len(scores) > k {
		scores = scores[:k]
	}
	return scores, nil
}

// matchesFilter requires every key in f to be present and equal in md; an
// empty filter (the unscoped case) matches everything. Used to scope a
// similarity search to a userId/projectId/contextId the way §4.5 requires.
func matchesFilter(md map[string]string, f map[string]string) bool {
	if len(f) == 0 {
		return true
	}
	for k, v := range f {
		if md[k] != v {
			return false
		}
	}
	return true
}

func norm(a []float32) float64 {
	var s float64
	for _, x := range a {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
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

func cosine(a, b []float32, anorm float64) float64 {
	if anorm == 0 {
		anorm = norm(a)
	}
	bnorm := norm(b)
	if anorm == 0 || bnorm == 0 {
		return 0
	}
	return dot(a, b) / (anorm * bnorm)
}
