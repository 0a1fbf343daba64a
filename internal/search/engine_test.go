package search

import (
	"context"
	"testing"
	"time"

	"github.com/arkoroy05/contextmemory/internal/config"
	"github.com/arkoroy05/contextmemory/internal/ctxstore"
	"github.com/arkoroy05/contextmemory/internal/embed"
	"github.com/arkoroy05/contextmemory/internal/enrich"
	"github.com/arkoroy05/contextmemory/internal/graph"
	"github.com/arkoroy05/contextmemory/internal/model"
	"github.com/arkoroy05/contextmemory/internal/persistence/databases"
)

func newTestEngine(t *testing.T) (*Engine, model.Scope) {
	t.Helper()
	db := databases.Manager{Search: databases.NewMemorySearch(), Vector: databases.NewMemoryVector()}
	store := ctxstore.NewMemoryStore(db, nil)
	g := graph.New(config.Config{SimilarityThreshold: 0.3, EdgesPerNodeK: 4, LSHHyperplanes: 4, LSHNeighborBuckets: 4})
	embedder := embed.NewClient(config.EmbeddingConfig{BaseURL: "http://127.0.0.1:0"}, 4)

	scope := model.Scope{UserID: "u1"}
	ctx := context.Background()
	c, err := store.CreateContext(ctx, "u1", model.CreateContextInput{Content: "parent content", Type: model.ContextNote})
	if err != nil {
		t.Fatalf("create context: %v", err)
	}

	nodes := []model.ContextNode{
		{ID: "n1", ContextID: c.ID, Content: "the quick brown fox jumps", Title: "Fox Story", UserID: "u1", ChunkIndex: 0, TokenCount: 5, Embedding: []float32{1, 0, 0, 0}, CreatedAt: time.Now()},
		{ID: "n2", ContextID: c.ID, Content: "a lazy dog sleeps all day", Title: "Dog Tale", UserID: "u1", ChunkIndex: 1, TokenCount: 6, Embedding: []float32{0, 1, 0, 0}, CreatedAt: time.Now().Add(-time.Hour)},
	}
	if err := store.UpsertNodes(ctx, c.ID, nodes, ""); err != nil {
		t.Fatalf("upsert nodes: %v", err)
	}
	for _, n := range nodes {
		_ = g.AddNode(scope, graph.NodeInput{ID: n.ID, ContextID: n.ContextID, Embedding: n.Embedding, ContextType: model.ContextNote})
	}

	gen := fakeGenerator{}
	enricher := enrich.NewEnricher(gen, embedder, config.Config{PEnrich: 2, MaxEnrichQueue: 1000, EmbeddingDim: 4}, nil)
	return New(store, db, embedder, g, enricher, nil, 60), scope
}

type fakeGenerator struct{}

func (fakeGenerator) AnalyzeNode(ctx context.Context, content string, ctxType model.ContextType) (enrich.NodeAnalysis, error) {
	return enrich.NodeAnalysis{Summary: "s"}, nil
}
func (fakeGenerator) AnalyzePrompt(ctx context.Context, prompt string) (model.PromptAnalysis, error) {
	return model.PromptAnalysis{Intent: "general"}, nil
}
func (fakeGenerator) GenerateAnswer(ctx context.Context, query, assembledContext string, limits enrich.AnswerLimits) (enrich.Answer, error) {
	return enrich.Answer{Text: "The fox jumps, see n1 for details.", ModelVersion: "fake-v1"}, nil
}
func (fakeGenerator) ModelVersion() string { return "fake-v1" }

func TestText_RanksByTermMatch(t *testing.T) {
	e, scope := newTestEngine(t)
	res, err := e.Text(context.Background(), scope, "fox", Options{Limit: 5})
	if err != nil {
		t.Fatalf("text: %v", err)
	}
	if len(res.Results) == 0 || res.Results[0].Node.ID != "n1" {
		t.Fatalf("expected n1 to rank first for 'fox', got %+v", res.Results)
	}
}

func TestSemantic_RanksByCosine(t *testing.T) {
	e, scope := newTestEngine(t)
	// no manual seeding: ctxstore indexes into the vector backend on
	// UpsertNodes when nodes carry embeddings, which newTestEngine's do.
	res, err := e.Semantic(context.Background(), scope, "anything", Options{Limit: 5})
	if err != nil {
		t.Fatalf("semantic: %v", err)
	}
	if len(res.Results) == 0 {
		t.Fatalf("expected semantic results")
	}
	for i := 1; i < len(res.Results); i++ {
		if res.Results[i-1].Score < res.Results[i].Score {
			t.Fatalf("expected results in descending cosine order, got %+v", res.Results)
		}
	}
}

func TestHybrid_FusesBothModes(t *testing.T) {
	e, scope := newTestEngine(t)
	res, err := e.Hybrid(context.Background(), scope, "fox", Options{Limit: 5})
	if err != nil {
		t.Fatalf("hybrid: %v", err)
	}
	if len(res.Results) == 0 {
		t.Fatalf("expected fused results")
	}
}

func TestBuildContextWindow_RespectsTokenBudget(t *testing.T) {
	nodes := []model.ScoredNode{
		{Node: model.ContextNode{ID: "a", ContextID: "c1", Content: "alpha beta", TokenCount: 100, ChunkIndex: 0, CreatedAt: time.Now()}, Score: 0.9},
		{Node: model.ContextNode{ID: "b", ContextID: "c1", Content: "gamma delta", TokenCount: 100, ChunkIndex: 1, CreatedAt: time.Now()}, Score: 0.8},
	}
	win := BuildContextWindow(nodes, WindowOptions{MaxTokens: 150})
	if win.TotalTokens > 150 {
		t.Fatalf("expected totalTokens <= 150, got %d", win.TotalTokens)
	}
	if win.Coverage < 0 || win.Coverage > 1 {
		t.Fatalf("expected coverage in [0,1], got %f", win.Coverage)
	}
	if len(win.NodeIDs) != 1 {
		t.Fatalf("expected exactly one node to fit the budget, got %v", win.NodeIDs)
	}
}

func TestGenerateRAG_ProducesValidatedAnswer(t *testing.T) {
	e, scope := newTestEngine(t)
	resp, err := e.GenerateRAG(context.Background(), scope, RAGRequest{Query: "tell me about the fox", MaxTokens: 2000})
	if err != nil {
		t.Fatalf("rag: %v", err)
	}
	if resp.Answer == nil {
		t.Fatalf("expected a generated answer")
	}
}
