package ingest

import (
	"context"
	"testing"

	"github.com/arkoroy05/contextmemory/internal/chunk"
	"github.com/arkoroy05/contextmemory/internal/config"
	"github.com/arkoroy05/contextmemory/internal/ctxstore"
	"github.com/arkoroy05/contextmemory/internal/embed"
	"github.com/arkoroy05/contextmemory/internal/enrich"
	"github.com/arkoroy05/contextmemory/internal/graph"
	"github.com/arkoroy05/contextmemory/internal/model"
	"github.com/arkoroy05/contextmemory/internal/persistence/databases"
)

func newTestPipeline() *Pipeline {
	store := ctxstore.NewMemoryStore(databases.Manager{
		Search: databases.NewMemorySearch(),
		Vector: databases.NewMemoryVector(),
	}, nil)
	g := graph.New(config.Config{
		SimilarityThreshold: 0.5,
		EdgesPerNodeK:       4,
		LSHHyperplanes:      4,
		LSHNeighborBuckets:  4,
	})
	gen := &stubGenerator{}
	enricher := enrich.NewEnricher(gen, embed.NewClient(config.EmbeddingConfig{BaseURL: "http://127.0.0.1:0"}, 8), config.Config{
		PEnrich:        2,
		MaxEnrichQueue: 1000,
		EmbeddingDim:   8,
	}, nil)
	return New(store, chunk.New(), enricher, g, nil, chunk.Options{}, "test-v1")
}

type stubGenerator struct{}

func (stubGenerator) AnalyzeNode(ctx context.Context, content string, ctxType model.ContextType) (enrich.NodeAnalysis, error) {
	return enrich.NodeAnalysis{Summary: "summary", Keywords: []string{"k1"}}, nil
}

func (stubGenerator) AnalyzePrompt(ctx context.Context, prompt string) (model.PromptAnalysis, error) {
	return model.PromptAnalysis{}, nil
}

func (stubGenerator) GenerateAnswer(ctx context.Context, query, assembledContext string, limits enrich.AnswerLimits) (enrich.Answer, error) {
	return enrich.Answer{}, nil
}

func (stubGenerator) ModelVersion() string { return "stub-v1" }

func TestIngest_CreatesNodesAndIntegratesGraph(t *testing.T) {
	p := newTestPipeline()
	res, err := p.Ingest(context.Background(), "u1", model.CreateContextInput{
		Title:   "doc",
		Content: "First paragraph of meaningful content.\n\nSecond paragraph with different words entirely.",
		Type:    model.ContextNote,
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(res.Nodes) == 0 {
		t.Fatalf("expected at least one node")
	}
	for _, n := range res.Nodes {
		if n.Summary == "" {
			t.Fatalf("expected enrichment to populate summary on node %s", n.ID)
		}
	}

	snap, err := p.Graph.Snapshot(model.ScopeOf(res.Context))
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Nodes) != len(res.Nodes) {
		t.Fatalf("expected graph to contain all ingested nodes, got %d want %d", len(snap.Nodes), len(res.Nodes))
	}
}

func TestIngest_RejectsEmptyContent(t *testing.T) {
	p := newTestPipeline()
	_, err := p.Ingest(context.Background(), "u1", model.CreateContextInput{Content: ""})
	if err == nil {
		t.Fatalf("expected error for empty content")
	}
}

func TestIngest_IdempotencyKeyDedupesRetry(t *testing.T) {
	p := newTestPipeline()
	in := model.CreateContextInput{
		Content:        "First paragraph of meaningful content.\n\nSecond paragraph with different words entirely.",
		Type:           model.ContextNote,
		IdempotencyKey: "retry-1",
	}
	first, err := p.Ingest(context.Background(), "u1", in)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	retried, err := p.Ingest(context.Background(), "u1", in)
	if err != nil {
		t.Fatalf("retried ingest: %v", err)
	}
	if retried.Context.ID != first.Context.ID {
		t.Fatalf("expected retried ingest to resolve to the same context")
	}
	if len(retried.Nodes) != len(first.Nodes) {
		t.Fatalf("expected retried ingest not to change node count, got %d want %d", len(retried.Nodes), len(first.Nodes))
	}
	for i := range retried.Nodes {
		if retried.Nodes[i].ID != first.Nodes[i].ID {
			t.Fatalf("expected redelivery to leave the originally persisted nodes untouched")
		}
	}
}

func TestReanalyze_UpdatesExistingNodes(t *testing.T) {
	p := newTestPipeline()
	res, err := p.Ingest(context.Background(), "u1", model.CreateContextInput{
		Content: "Some content to chunk and enrich for the test.",
		Type:    model.ContextNote,
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	re, err := p.Reanalyze(context.Background(), "u1", res.Context.ID)
	if err != nil {
		t.Fatalf("reanalyze: %v", err)
	}
	if len(re.Nodes) != len(res.Nodes) {
		t.Fatalf("expected same node count after reanalyze")
	}
}
