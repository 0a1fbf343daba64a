package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arkoroy05/contextmemory/internal/config"
)

func TestEmbedText_BearerAuthorization(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Fatalf("expected Authorization header Bearer secret, got %q", got)
		}
		resp := map[string]any{"data": []map[string]any{{"embedding": []float32{0.1, 0.2}}}}
		b, _ := json.Marshal(resp)
		_, _ = w.Write(b)
	}))
	defer ts.Close()

	cfg := config.EmbeddingConfig{BaseURL: ts.URL, Path: "/", Model: "m", APIHeader: "Authorization", APIKey: "secret"}
	vecs, err := embedText(context.Background(), cfg, []string{"x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 1 || len(vecs[0]) != 2 {
		t.Fatalf("unexpected vectors: %v", vecs)
	}
}

func TestClientEmbedder_FallsBackOnProviderError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	cfg := config.EmbeddingConfig{BaseURL: ts.URL, Path: "/", Model: "m"}
	e := NewClient(cfg, 32)
	vecs, failed, err := e.EmbedBatch(context.Background(), []string{"hello world"})
	if err != nil {
		t.Fatalf("EmbedBatch should never surface a hard error, got: %v", err)
	}
	if len(vecs) != 1 || len(vecs[0]) != 32 {
		t.Fatalf("expected one fallback vector of dim 32, got %v", vecs)
	}
	if len(failed) != 1 {
		t.Fatalf("expected entry 0 marked as fallback, got %v", failed)
	}
}

func TestFallbackVector_DeterministicAndNormalized(t *testing.T) {
	a := FallbackVector("the quick brown fox", 64)
	b := FallbackVector("the quick brown fox", 64)
	if len(a) != 64 {
		t.Fatalf("expected dim 64, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected deterministic output at index %d: %v != %v", i, a[i], b[i])
		}
	}
	var sum float64
	for _, x := range a {
		sum += float64(x) * float64(x)
	}
	if sum < 0.99 || sum > 1.01 {
		t.Fatalf("expected unit-normalized vector, got squared sum %f", sum)
	}
}

func TestFallbackVector_DifferentTextsDiffer(t *testing.T) {
	a := FallbackVector("alpha", 64)
	b := FallbackVector("beta", 64)
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("expected different texts to produce different vectors")
	}
}
