package graph

import (
	"math"
	"sort"
	"strings"

	"github.com/arkoroy05/contextmemory/internal/model"
)

// similarity weights are the contract of §4.4; they must sum to 1.
const (
	weightCosine   = 0.55
	weightTagJac   = 0.15
	weightTypeEq   = 0.10
	weightShingle  = 0.10
	weightKeyword  = 0.10
)

// score computes the weighted similarity between two nodes.
func score(a, b *nodeEntry) float64 {
	s := weightCosine * cosine(a.embedding, b.embedding)
	s += weightTagJac * jaccard(a.tagSet, b.tagSet)
	if a.contextType != "" && a.contextType == b.contextType {
		s += weightTypeEq
	}
	s += weightShingle * jaccard(a.shingleSet, b.shingleSet)
	s += weightKeyword * jaccard(a.keywordSet, b.keywordSet)
	return s
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dotp, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dotp += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dotp / (math.Sqrt(na) * math.Sqrt(nb))
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func toSet(items []string) map[string]struct{} {
	if len(items) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(items))
	for _, it := range items {
		out[strings.ToLower(strings.TrimSpace(it))] = struct{}{}
	}
	return out
}

// shingles computes the 4-gram shingle set over lowercased whitespace
// tokens, used for the shingled content overlap term.
func shingles(content string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(content))
	if len(fields) < 4 {
		if len(fields) == 0 {
			return nil
		}
		return map[string]struct{}{strings.Join(fields, " "): {}}
	}
	out := make(map[string]struct{}, len(fields)-3)
	for i := 0; i+4 <= len(fields); i++ {
		out[strings.Join(fields[i:i+4], " ")] = struct{}{}
	}
	return out
}

// sortEdgesByWeight orders candidate edges by descending weight, breaking
// ties by lower target id, per §4.4 step 4.
func sortEdgesByWeight(edges []model.GraphEdge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Weight != edges[j].Weight {
			return edges[i].Weight > edges[j].Weight
		}
		return edges[i].TargetID < edges[j].TargetID
	})
}
