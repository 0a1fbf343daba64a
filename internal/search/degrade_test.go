package search

import (
	"context"
	"errors"
	"testing"

	"github.com/arkoroy05/contextmemory/internal/config"
	"github.com/arkoroy05/contextmemory/internal/ctxstore"
	"github.com/arkoroy05/contextmemory/internal/enrich"
	"github.com/arkoroy05/contextmemory/internal/graph"
	"github.com/arkoroy05/contextmemory/internal/model"
	"github.com/arkoroy05/contextmemory/internal/persistence/databases"
)

// failingEmbedder always errors, unlike embed.clientEmbedder's
// always-falls-back-never-errors behavior, so it actually exercises the
// Semantic -> Text degrade path.
type failingEmbedder struct{}

func (failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, []int, error) {
	return nil, nil, errors.New("embedding provider down")
}
func (failingEmbedder) Name() string            { return "failing" }
func (failingEmbedder) Dimension() int          { return 4 }
func (failingEmbedder) Ping(ctx context.Context) error { return errors.New("down") }

func TestSemantic_DegradesToTextOnEmbedFailure(t *testing.T) {
	e, scope := newTestEngine(t)
	e.Embedder = failingEmbedder{}

	res, err := e.Semantic(context.Background(), scope, "fox", Options{Limit: 5})
	if err != nil {
		t.Fatalf("semantic: %v", err)
	}
	if res.Degraded != "embedding_unavailable_used_text" {
		t.Fatalf("expected degrade marker, got %q", res.Degraded)
	}
	if res.Mode != model.ModeText {
		t.Fatalf("expected degraded result to report text mode, got %v", res.Mode)
	}
}

func TestGraph_DegradesToSemanticWhenBuilderMissing(t *testing.T) {
	e, scope := newTestEngine(t)
	e.GraphBuilder = nil

	res, err := e.Graph(context.Background(), scope, "fox", "", Options{Limit: 5})
	if err != nil {
		t.Fatalf("graph: %v", err)
	}
	if res.Degraded != "graph_rebuilding_used_semantic" {
		t.Fatalf("expected degrade marker, got %q", res.Degraded)
	}
}

func TestGenerateRAG_DegradesWhenEnricherMissing(t *testing.T) {
	db := databases.Manager{Search: databases.NewMemorySearch(), Vector: databases.NewMemoryVector()}
	store := ctxstore.NewMemoryStore(db, nil)
	g := graph.New(config.Config{SimilarityThreshold: 0.5, EdgesPerNodeK: 4, LSHHyperplanes: 4, LSHNeighborBuckets: 4})
	e := New(store, db, failingEmbedder{}, g, nil, nil, 60)

	resp, err := e.GenerateRAG(context.Background(), model.Scope{UserID: "u1"}, RAGRequest{Query: "anything", MaxTokens: 500})
	if err != nil {
		t.Fatalf("rag: %v", err)
	}
	if resp.Answer != nil {
		t.Fatalf("expected nil answer when no enricher is configured")
	}
	if resp.Reason != "generator_unavailable" {
		t.Fatalf("expected generator_unavailable reason, got %q", resp.Reason)
	}
}

func TestGenerateRAG_DegradesWhenGenerateAnswerFails(t *testing.T) {
	db := databases.Manager{Search: databases.NewMemorySearch(), Vector: databases.NewMemoryVector()}
	store := ctxstore.NewMemoryStore(db, nil)
	g := graph.New(config.Config{SimilarityThreshold: 0.5, EdgesPerNodeK: 4, LSHHyperplanes: 4, LSHNeighborBuckets: 4})
	enricher := enrich.NewEnricher(failingGenerator{}, failingEmbedder{}, config.Config{PEnrich: 2, MaxEnrichQueue: 10, EmbeddingDim: 4}, nil)
	e := New(store, db, failingEmbedder{}, g, enricher, nil, 60)

	resp, err := e.GenerateRAG(context.Background(), model.Scope{UserID: "u1"}, RAGRequest{Query: "anything", MaxTokens: 500})
	if err != nil {
		t.Fatalf("rag: %v", err)
	}
	if resp.Answer != nil {
		t.Fatalf("expected nil answer when generation fails after retries")
	}
	if resp.Reason != "generator_unavailable" {
		t.Fatalf("expected generator_unavailable reason, got %q", resp.Reason)
	}
}

type failingGenerator struct{}

func (failingGenerator) AnalyzeNode(ctx context.Context, content string, ctxType model.ContextType) (enrich.NodeAnalysis, error) {
	return enrich.NodeAnalysis{}, errors.New("analysis unavailable")
}
func (failingGenerator) AnalyzePrompt(ctx context.Context, prompt string) (model.PromptAnalysis, error) {
	return model.PromptAnalysis{}, errors.New("analysis unavailable")
}
func (failingGenerator) GenerateAnswer(ctx context.Context, query, assembledContext string, limits enrich.AnswerLimits) (enrich.Answer, error) {
	return enrich.Answer{}, errors.New("generation unavailable")
}
func (failingGenerator) ModelVersion() string { return "failing-v1" }

func TestValidateAnswer_FlagsHallucinationBelowThreshold(t *testing.T) {
	window := "the quick brown fox jumps over the lazy dog near the riverbank"
	answer := "unicorns discovered orbiting jupiter today according to nobody"
	validation := validateAnswer(answer, window, nil, nil, "general")
	if !validation.HallucinationDetected {
		t.Fatalf("expected low-overlap answer to be flagged as a hallucination, got grounding=%f", validation.FactualGrounding)
	}
}

func TestValidateAnswer_GroundedAnswerNotFlagged(t *testing.T) {
	window := "the quick brown fox jumps over the lazy dog near the riverbank"
	answer := "the quick brown fox jumps over the lazy dog"
	validation := validateAnswer(answer, window, nil, nil, "general")
	if validation.HallucinationDetected {
		t.Fatalf("expected high-overlap answer to not be flagged, got grounding=%f", validation.FactualGrounding)
	}
}

func TestFuseRRF_HybridMonotonicity(t *testing.T) {
	n1 := model.ContextNode{ID: "n1"}
	n2 := model.ContextNode{ID: "n2"}
	n3 := model.ContextNode{ID: "n3"}

	text := []model.ScoredNode{{Node: n1, Score: 0.9}, {Node: n2, Score: 0.5}, {Node: n3, Score: 0.1}}
	semantic := []model.ScoredNode{{Node: n1, Score: 0.8}, {Node: n3, Score: 0.6}, {Node: n2, Score: 0.2}}

	fused := fuseRRF(text, semantic, RRFK)
	if len(fused) == 0 || fused[0].Node.ID != "n1" {
		t.Fatalf("expected n1 (first in both rankings) to rank first in the fusion, got %+v", fused)
	}
}
