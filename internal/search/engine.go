package search

import (
	"context"
	"sort"
	"strings"

	"github.com/arkoroy05/contextmemory/internal/apperr"
	"github.com/arkoroy05/contextmemory/internal/ctxstore"
	"github.com/arkoroy05/contextmemory/internal/embed"
	"github.com/arkoroy05/contextmemory/internal/enrich"
	"github.com/arkoroy05/contextmemory/internal/graph"
	"github.com/arkoroy05/contextmemory/internal/model"
	"github.com/arkoroy05/contextmemory/internal/obsmetrics"
	"github.com/arkoroy05/contextmemory/internal/persistence/databases"
)

// Engine dispatches the four C5 query modes and drives RAG generation. It
// composes the other components by their narrow interfaces rather than
// concrete types, in the style of the teacher's retrieve package taking
// databases.FullTextSearch/VectorStore/GraphFacade.
type Engine struct {
	Store        ctxstore.Store
	DB           databases.Manager
	Embedder     embed.Embedder
	GraphBuilder *graph.Builder
	Enricher     *enrich.Enricher
	Metrics      obsmetrics.Sink
	RRFK         int
}

// New constructs an Engine from its component dependencies.
func New(store ctxstore.Store, db databases.Manager, embedder embed.Embedder, g *graph.Builder, enricher *enrich.Enricher, metrics obsmetrics.Sink, rrfK int) *Engine {
	if rrfK <= 0 {
		rrfK = RRFK
	}
	return &Engine{Store: store, DB: db, Embedder: embedder, GraphBuilder: g, Enricher: enricher, Metrics: metrics, RRFK: rrfK}
}

// Text ranks nodes by the naive BM25-style term-count score of the
// full-text backend over content+title+keywords(+tags, indexed at ingest
// time), tie-broken by newer-first (§4.5).
func (e *Engine) Text(ctx context.Context, scope model.Scope, query string, opts Options) (model.SearchResult, error) {
	limit := clampLimit(opts.Limit)
	query = normalizeQuery(query)
	scored, err := e.Store.SearchNodesText(ctx, scope.UserID, query, opts.Filters, limit)
	if err != nil {
		return model.SearchResult{}, apperr.Wrap(apperr.Unavailable, "text search unavailable", err)
	}
	scored = filterByScope(scored, scope)
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Node.CreatedAt.After(scored[j].Node.CreatedAt)
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return model.SearchResult{Results: scored, Mode: model.ModeText}, nil
}

// Semantic embeds the query and ranks candidates by cosine similarity
// against the vector backend, degrading to Text if the embedding call
// itself fails (§4.5 Failure semantics).
func (e *Engine) Semantic(ctx context.Context, scope model.Scope, query string, opts Options) (model.SearchResult, error) {
	limit := clampLimit(opts.Limit)
	query = normalizeQuery(query)
	qvec, _, err := embed.EmbedOne(ctx, e.Embedder, query)
	if err != nil {
		res, terr := e.Text(ctx, scope, query, opts)
		if terr != nil {
			return model.SearchResult{}, terr
		}
		res.Degraded = "embedding_unavailable_used_text"
		return res, nil
	}

	filter := scopeFilter(scope, opts.Filters)
	vrs, err := e.DB.Vector.SimilaritySearch(ctx, qvec, limit, filter)
	if err != nil {
		return model.SearchResult{}, apperr.Wrap(apperr.Unavailable, "vector search unavailable", err)
	}
	scored := make([]model.ScoredNode, 0, len(vrs))
	for _, r := range vrs {
		n, ok := e.Store.GetNode(ctx, r.ID)
		if !ok {
			continue
		}
		scored = append(scored, model.ScoredNode{Node: n, Score: r.Score})
	}
	return model.SearchResult{Results: scored, Mode: model.ModeSemantic}, nil
}

// Hybrid fuses Text and Semantic rankings via Reciprocal Rank Fusion with
// the configured k (default 60): sum(1/(k+rank_i)) across participating
// rankers (§4.5).
func (e *Engine) Hybrid(ctx context.Context, scope model.Scope, query string, opts Options) (model.SearchResult, error) {
	limit := clampLimit(opts.Limit)
	wide := opts
	wide.Limit = limit * 3
	if wide.Limit < 50 {
		wide.Limit = 50
	}

	textRes, err := e.Text(ctx, scope, query, wide)
	if err != nil {
		return model.SearchResult{}, err
	}
	semRes, err := e.Semantic(ctx, scope, query, wide)
	if err != nil {
		return model.SearchResult{}, err
	}

	fused := fuseRRF(textRes.Results, semRes.Results, e.RRFK)
	if len(fused) > limit {
		fused = fused[:limit]
	}
	degraded := ""
	if semRes.Degraded != "" {
		degraded = semRes.Degraded
	}
	return model.SearchResult{Results: fused, Mode: model.ModeHybrid, Degraded: degraded}, nil
}

// fuseRRF implements Reciprocal Rank Fusion over two already-ranked
// ScoredNode lists, matching the teacher's FuseRRF shape but over node
// rankings instead of raw backend rows.
func fuseRRF(a, b []model.ScoredNode, k int) []model.ScoredNode {
	if k <= 0 {
		k = RRFK
	}
	rank := func(list []model.ScoredNode) map[string]int {
		m := make(map[string]int, len(list))
		for i, s := range list {
			m[s.Node.ID] = i + 1
		}
		return m
	}
	ra, rb := rank(a), rank(b)
	byID := map[string]model.ContextNode{}
	for _, s := range a {
		byID[s.Node.ID] = s.Node
	}
	for _, s := range b {
		byID[s.Node.ID] = s.Node
	}

	fused := make(map[string]float64, len(byID))
	for id := range byID {
		score := 0.0
		if r, ok := ra[id]; ok {
			score += 1.0 / float64(k+r)
		}
		if r, ok := rb[id]; ok {
			score += 1.0 / float64(k+r)
		}
		fused[id] = score
	}

	out := make([]model.ScoredNode, 0, len(fused))
	for id, score := range fused {
		out = append(out, model.ScoredNode{Node: byID[id], Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Node.ID < out[j].Node.ID
	})
	return out
}

func scopeFilter(scope model.Scope, f model.SearchFilters) map[string]string {
	m := map[string]string{"userId": scope.UserID}
	if scope.ProjectID != "" {
		m["projectId"] = scope.ProjectID
	}
	if f.ContextID != "" {
		m["contextId"] = f.ContextID
	}
	return m
}

func filterByScope(scored []model.ScoredNode, scope model.Scope) []model.ScoredNode {
	out := scored[:0]
	for _, s := range scored {
		if scope.ProjectID != "" && s.Node.ProjectID != scope.ProjectID {
			continue
		}
		out = append(out, s)
	}
	return out
}

func normalizeQuery(q string) string {
	return strings.TrimSpace(q)
}
