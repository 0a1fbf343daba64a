// Package ingest composes the Smart Chunker (C2), AI Enricher (C3), Context
// Store (C1), and Graph Builder (C4) into the single ingestion pipeline
// described in §2: a caller submits raw content once, and the pipeline
// chunks it, enriches/embeds each chunk, persists the resulting nodes, and
// incrementally integrates them into the similarity graph.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"
	"time"

	"github.com/arkoroy05/contextmemory/internal/apperr"
	"github.com/arkoroy05/contextmemory/internal/chunk"
	"github.com/arkoroy05/contextmemory/internal/ctxstore"
	"github.com/arkoroy05/contextmemory/internal/enrich"
	"github.com/arkoroy05/contextmemory/internal/graph"
	"github.com/arkoroy05/contextmemory/internal/model"
	"github.com/arkoroy05/contextmemory/internal/obslog"
	"github.com/arkoroy05/contextmemory/internal/obsmetrics"
)

// Stats summarizes one ingestion run for observability, mirroring the
// teacher's IngestStats shape.
type Stats struct {
	NumChunks         int
	TotalTokens       int
	EnrichedCount     int
	FallbackEmbedding int
	Duration          time.Duration
}

// Result is returned by Ingest.
type Result struct {
	Context model.Context
	Nodes   []model.ContextNode
	Stats   Stats
}

// Pipeline wires the four ingestion-time components together under one
// API, equivalent in shape to the teacher's rag/ingest orchestration but
// scoped to this system's single-document-at-a-time ingestion model (§2
// has no multi-document batch endpoint).
type Pipeline struct {
	Store    ctxstore.Store
	Chunker  *chunk.Chunker
	Enricher *enrich.Enricher
	Graph    *graph.Builder
	Metrics  obsmetrics.Sink

	ChunkOptions chunk.Options
	ModelVersion string
}

// New constructs a Pipeline from its component dependencies.
func New(store ctxstore.Store, chunker *chunk.Chunker, enricher *enrich.Enricher, g *graph.Builder, metrics obsmetrics.Sink, chunkOpts chunk.Options, modelVersion string) *Pipeline {
	return &Pipeline{
		Store:        store,
		Chunker:      chunker,
		Enricher:     enricher,
		Graph:        g,
		Metrics:      metrics,
		ChunkOptions: chunkOpts,
		ModelVersion: modelVersion,
	}
}

// Ingest runs the full pipeline for one context: create → chunk → enrich →
// persist nodes atomically → integrate into the graph (§2).
func (p *Pipeline) Ingest(ctx context.Context, userID string, in model.CreateContextInput) (Result, error) {
	start := time.Now()
	log := obslog.FromContext(ctx)

	c, err := p.Store.CreateContext(ctx, userID, in)
	if err != nil {
		return Result{}, err
	}
	if in.IdempotencyKey != "" && c.HasNodes {
		// Replayed create whose first delivery already persisted its nodes:
		// return those instead of re-chunking under fresh node IDs.
		existing, err := p.Store.GetNodes(ctx, c.ID)
		if err != nil {
			return Result{}, err
		}
		return Result{Context: c, Nodes: existing, Stats: Stats{NumChunks: len(existing)}}, nil
	}

	chunks := p.Chunker.Chunk(c.Content, p.ChunkOptions)
	nodes := make([]model.ContextNode, 0, len(chunks))
	stats := Stats{NumChunks: len(chunks)}

	for i, ch := range chunks {
		node := model.ContextNode{
			ID:         model.NewNodeID(),
			ContextID:  c.ID,
			Content:    ch.Content,
			TokenCount: ch.TokenCount,
			ChunkType:  ch.ChunkType,
			ChunkIndex: i,
			Importance: ch.Importance,
			UserID:     c.UserID,
			ProjectID:  c.ProjectID,
			CreatedAt:  time.Now(),
		}
		stats.TotalTokens += ch.TokenCount

		if p.Enricher != nil {
			enriched := p.Enricher.Enrich(ctx, ch.Content, c.Type, p.ModelVersion)
			node.Summary = enriched.Summary
			node.Title = firstNonEmpty(enriched.Title, ch.HeadingPath)
			node.Keywords = enriched.Keywords
			node.Embedding = enriched.Embedding
			node.EmbeddingModel = enriched.EmbeddingModel
			node.NeedsReenrichment = enriched.NeedsReenrichment
			if enriched.Importance != nil {
				node.Importance = *enriched.Importance
			}
			stats.EnrichedCount++
			if node.IsFallbackEmbedding() {
				stats.FallbackEmbedding++
			}
		}
		nodes = append(nodes, node)
	}

	key := nodesIdempotencyKey(c.ID, p.ModelVersion, nodes)
	if err := p.upsertNodesWithRetry(ctx, c.ID, nodes, key); err != nil {
		return Result{}, apperr.Wrap(apperr.Internal, "persist nodes", err)
	}

	if p.Graph != nil {
		scope := model.ScopeOf(c)
		for _, n := range nodes {
			in := graph.NodeInput{
				ID:           n.ID,
				ContextID:    n.ContextID,
				ParentNodeID: n.ParentNodeID,
				ChunkIndex:   n.ChunkIndex,
				ContextType:  c.Type,
				Content:      n.Content,
				Keywords:     n.Keywords,
				Tags:         c.Tags,
				Embedding:    n.Embedding,
				ModelVersion: n.EmbeddingModel,
			}
			if err := p.Graph.AddNode(scope, in); err != nil {
				log.Warn().Err(err).Str("nodeId", n.ID).Msg("graph integration deferred")
			}
		}
	}

	stats.Duration = time.Since(start)
	if p.Metrics != nil {
		p.Metrics.ObserveHistogram("ingest_duration_seconds", stats.Duration.Seconds(), map[string]string{"contextType": string(c.Type)})
		p.Metrics.IncCounter("ingest_total", map[string]string{"contextType": string(c.Type)})
	}

	c.ChunkCount = len(nodes)
	c.HasNodes = len(nodes) > 0
	return Result{Context: c, Nodes: nodes, Stats: stats}, nil
}

// Reanalyze re-runs enrichment for an existing context's nodes in place,
// backing the POST /contexts/:id/analyze endpoint (§6). It does not
// re-chunk: chunk boundaries are stable once persisted (§4.2).
func (p *Pipeline) Reanalyze(ctx context.Context, userID, contextID string) (Result, error) {
	c, nodes, err := p.Store.GetContext(ctx, userID, contextID, ctxstore.GetOptions{IncludeNodes: true})
	if err != nil {
		return Result{}, err
	}
	if p.Enricher == nil {
		return Result{Context: c, Nodes: nodes}, nil
	}

	scope := model.ScopeOf(c)
	stats := Stats{NumChunks: len(nodes)}
	for i := range nodes {
		n := &nodes[i]
		enriched := p.Enricher.Enrich(ctx, n.Content, c.Type, p.ModelVersion)
		n.Summary = enriched.Summary
		if enriched.Title != "" {
			n.Title = enriched.Title
		}
		n.Keywords = enriched.Keywords
		n.Embedding = enriched.Embedding
		n.EmbeddingModel = enriched.EmbeddingModel
		n.NeedsReenrichment = enriched.NeedsReenrichment
		if enriched.Importance != nil {
			n.Importance = *enriched.Importance
		}
		stats.EnrichedCount++
		if n.IsFallbackEmbedding() {
			stats.FallbackEmbedding++
		}

		if p.Graph != nil {
			_ = p.Graph.UpdateNode(scope, graph.NodeInput{
				ID:           n.ID,
				ContextID:    n.ContextID,
				ParentNodeID: n.ParentNodeID,
				ChunkIndex:   n.ChunkIndex,
				ContextType:  c.Type,
				Content:      n.Content,
				Keywords:     n.Keywords,
				Tags:         c.Tags,
				Embedding:    n.Embedding,
				ModelVersion: n.EmbeddingModel,
			})
		}
	}

	key := nodesIdempotencyKey(c.ID, p.ModelVersion, nodes)
	if err := p.upsertNodesWithRetry(ctx, c.ID, nodes, key); err != nil {
		return Result{}, apperr.Wrap(apperr.Internal, "persist reanalyzed nodes", err)
	}
	return Result{Context: c, Nodes: nodes, Stats: stats}, nil
}

// nodesIdempotencyKey derives a deterministic hash key for a node set so
// a retried UpsertNodes call (same contextID, same node content and
// enrichment) is recognized by the store as a redelivery rather than a new
// write, while a Reanalyze that changed the enrichment gets a new key
// (§7 "at-least-once semantics with idempotency keys for node upserts").
func nodesIdempotencyKey(contextID, modelVersion string, nodes []model.ContextNode) string {
	h := sha256.New()
	h.Write([]byte(contextID))
	h.Write([]byte(modelVersion))
	for _, n := range nodes {
		h.Write([]byte(n.Content))
		h.Write([]byte(n.Title + "\x00" + n.Summary + "\x00" + strings.Join(n.Keywords, "\x00") + "\x00" + n.EmbeddingModel))
		for _, x := range n.Embedding {
			bits := math.Float32bits(x)
			h.Write([]byte{byte(bits), byte(bits >> 8), byte(bits >> 16), byte(bits >> 24)})
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// upsertNodesWithRetry retries a transient (Unavailable) store failure
// once with backoff, reusing the same idempotency key so a successful
// retry after a partially-applied first attempt doesn't re-index twice.
func (p *Pipeline) upsertNodesWithRetry(ctx context.Context, contextID string, nodes []model.ContextNode, key string) error {
	err := p.Store.UpsertNodes(ctx, contextID, nodes, key)
	if err == nil || apperr.KindOf(err) != apperr.Unavailable {
		return err
	}
	select {
	case <-time.After(200 * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}
	return p.Store.UpsertNodes(ctx, contextID, nodes, key)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
