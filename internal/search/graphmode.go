package search

import (
	"context"
	"sort"

	"github.com/arkoroy05/contextmemory/internal/apperr"
	"github.com/arkoroy05/contextmemory/internal/model"
)

// Graph computes a seed set via Semantic over a seed context's nodes (or
// uses opts.SeedNodeID when given), expands via BFS over the graph edges
// up to maxDepth, and scores each reachable node as
// relevance = alpha*semantic(query,node) + beta*edgeWeightProduct (§4.5).
// Degrades to Semantic when the scope's graph is Rebuilding.
func (e *Engine) Graph(ctx context.Context, scope model.Scope, query, seedContextID string, opts Options) (model.SearchResult, error) {
	limit := clampLimit(opts.Limit)
	query = normalizeQuery(query)
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultGraphMaxDepth
	}

	if e.GraphBuilder == nil || e.GraphBuilder.State(scope) == model.GraphRebuilding {
		res, err := e.Semantic(ctx, scope, query, opts)
		if err != nil {
			return model.SearchResult{}, err
		}
		res.Degraded = "graph_rebuilding_used_semantic"
		return res, nil
	}

	seedID := opts.SeedNodeID
	if seedID == "" {
		seedOpts := opts
		seedOpts.Limit = 1
		seedOpts.Filters.ContextID = seedContextID
		seedRes, err := e.Semantic(ctx, scope, query, seedOpts)
		if err != nil {
			return model.SearchResult{}, err
		}
		if len(seedRes.Results) == 0 {
			return model.SearchResult{Mode: model.ModeGraph}, nil
		}
		seedID = seedRes.Results[0].Node.ID
	}

	snap, err := e.GraphBuilder.Snapshot(scope)
	if err != nil {
		if apperr.Is(err, apperr.Unavailable) {
			res, serr := e.Semantic(ctx, scope, query, opts)
			if serr != nil {
				return model.SearchResult{}, serr
			}
			res.Degraded = "graph_unavailable_used_semantic"
			return res, nil
		}
		return model.SearchResult{}, err
	}

	weight, reached := weightedBFS(snap, seedID, maxDepth)

	qvec, _, embErr := embedQueryIfNeeded(ctx, e, query)
	scored := make([]model.ScoredNode, 0, len(reached))
	for id := range reached {
		n, ok := e.Store.GetNode(ctx, id)
		if !ok {
			continue
		}
		semScore := 0.0
		if embErr == nil {
			semScore = cosine(qvec, n.Embedding)
		}
		relevance := graphAlpha*semScore + graphBeta*weight[id]
		scored = append(scored, model.ScoredNode{Node: n, Score: relevance})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Node.ID < scored[j].Node.ID
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return model.SearchResult{Results: scored, Mode: model.ModeGraph}, nil
}

// weightedBFS explores snap's edges from seed up to maxDepth hops,
// tracking for every reached node the maximum cumulative edge-weight
// product over any path from seed (the "edgeWeightProduct" term of §4.5's
// Graph relevance formula).
func weightedBFS(snap model.Snapshot, seed string, maxDepth int) (map[string]float64, map[string]struct{}) {
	adj := map[string][]model.GraphEdge{}
	for _, e := range snap.Edges {
		adj[e.SourceID] = append(adj[e.SourceID], e)
	}

	type frontierNode struct {
		id     string
		weight float64
		depth  int
	}
	best := map[string]float64{seed: 1.0}
	reached := map[string]struct{}{seed: {}}
	queue := []frontierNode{{id: seed, weight: 1.0, depth: 0}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}
		for _, edge := range adj[cur.id] {
			w := cur.weight * edge.Weight
			if prev, ok := best[edge.TargetID]; !ok || w > prev {
				best[edge.TargetID] = w
				reached[edge.TargetID] = struct{}{}
				queue = append(queue, frontierNode{id: edge.TargetID, weight: w, depth: cur.depth + 1})
			}
		}
	}
	delete(best, seed)
	delete(reached, seed)
	return best, reached
}

func embedQueryIfNeeded(ctx context.Context, e *Engine, query string) ([]float32, bool, error) {
	return embedOneSafe(ctx, e, query)
}
