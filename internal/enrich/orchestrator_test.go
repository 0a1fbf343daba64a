package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/arkoroy05/contextmemory/internal/config"
	"github.com/arkoroy05/contextmemory/internal/embed"
	"github.com/arkoroy05/contextmemory/internal/model"
)

type stubGenerator struct {
	failAnalyze int
	calls       int
}

func (s *stubGenerator) AnalyzeNode(ctx context.Context, content string, ctxType model.ContextType) (NodeAnalysis, error) {
	s.calls++
	if s.calls <= s.failAnalyze {
		return NodeAnalysis{}, errors.New("boom")
	}
	return NodeAnalysis{Summary: "ok summary", Title: "ok title", Keywords: []string{"ok"}}, nil
}

func (s *stubGenerator) AnalyzePrompt(ctx context.Context, prompt string) (model.PromptAnalysis, error) {
	return model.PromptAnalysis{Intent: "factual"}, nil
}

func (s *stubGenerator) GenerateAnswer(ctx context.Context, query, assembledContext string, limits AnswerLimits) (Answer, error) {
	return Answer{Text: "answer", ModelVersion: "stub"}, nil
}

func (s *stubGenerator) ModelVersion() string { return "stub" }

// fakeEmbedder always succeeds, isolating tests that only care about
// AnalyzeNode behavior from the embedding fallback path.
type fakeEmbedder struct{ dim int }

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, []int, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil, nil
}
func (f *fakeEmbedder) Name() string               { return "fake" }
func (f *fakeEmbedder) Dimension() int             { return f.dim }
func (f *fakeEmbedder) Ping(context.Context) error { return nil }

func testConfig() config.Config {
	return config.Config{
		PEnrich:        4,
		MaxEnrichQueue: 10000,
		EmbeddingDim:   16,
		Timeouts:       config.TimeoutsConfig{},
	}
}

func TestEnrich_SucceedsWithoutFallback(t *testing.T) {
	gen := &stubGenerator{}
	e := NewEnricher(gen, &fakeEmbedder{dim: 16}, testConfig(), nil)
	res := e.Enrich(context.Background(), "hello world content", model.ContextNote, "v1")
	if res.NeedsReenrichment {
		t.Fatalf("did not expect fallback flag when analyze and embedding both succeed: %+v", res)
	}
	if res.Summary != "ok summary" {
		t.Fatalf("expected generator summary, got %q", res.Summary)
	}
}

func TestEnrich_FlagsNeedsReenrichmentOnAnalyzeExhaustion(t *testing.T) {
	gen := &stubGenerator{failAnalyze: 10}
	e := NewEnricher(gen, embed.NewClient(config.EmbeddingConfig{BaseURL: "http://127.0.0.1:0", Path: "/"}, 16), testConfig(), nil)
	res := e.Enrich(context.Background(), "hello world content", model.ContextNote, "v1")
	if !res.NeedsReenrichment {
		t.Fatalf("expected needsReenrichment after repeated analyze failure")
	}
	if len(res.Embedding) != 16 {
		t.Fatalf("expected fallback embedding of dim 16, got %d", len(res.Embedding))
	}
}

func TestEnrich_BackpressureShedsImmediately(t *testing.T) {
	gen := &stubGenerator{}
	cfg := testConfig()
	cfg.MaxEnrichQueue = 1
	e := NewEnricher(gen, embed.NewClient(config.EmbeddingConfig{}, 16), cfg, nil)
	e.trackQueue(1)
	res := e.Enrich(context.Background(), "content", model.ContextNote, "v1")
	if !res.NeedsReenrichment {
		t.Fatalf("expected immediate fallback under backpressure")
	}
	if gen.calls != 0 {
		t.Fatalf("expected generator not called under backpressure, got %d calls", gen.calls)
	}
}

func TestEnrich_CancelledContextYieldsFallback(t *testing.T) {
	gen := &stubGenerator{}
	e := NewEnricher(gen, embed.NewClient(config.EmbeddingConfig{}, 16), testConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := e.Enrich(ctx, "content", model.ContextNote, "v1")
	if !res.NeedsReenrichment {
		t.Fatalf("expected fallback on cancelled context")
	}
}

func TestEnrichBatch_ConcurrentEnrichment(t *testing.T) {
	gen := &stubGenerator{}
	e := NewEnricher(gen, embed.NewClient(config.EmbeddingConfig{}, 16), testConfig(), nil)
	contents := []string{"one", "two", "three", "four"}
	out := e.EnrichBatch(context.Background(), contents, model.ContextNote, "v1")
	if len(out) != 4 {
		t.Fatalf("expected 4 results, got %d", len(out))
	}
}
