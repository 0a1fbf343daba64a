package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arkoroy05/contextmemory/internal/chunk"
	"github.com/arkoroy05/contextmemory/internal/config"
	"github.com/arkoroy05/contextmemory/internal/ctxstore"
	"github.com/arkoroy05/contextmemory/internal/embed"
	"github.com/arkoroy05/contextmemory/internal/enrich"
	"github.com/arkoroy05/contextmemory/internal/graph"
	"github.com/arkoroy05/contextmemory/internal/ingest"
	"github.com/arkoroy05/contextmemory/internal/model"
	"github.com/arkoroy05/contextmemory/internal/persistence/databases"
	"github.com/arkoroy05/contextmemory/internal/search"
)

type stubGenerator struct{}

func (stubGenerator) AnalyzeNode(ctx context.Context, content string, ctxType model.ContextType) (enrich.NodeAnalysis, error) {
	return enrich.NodeAnalysis{Summary: "summary", Keywords: []string{"k1"}}, nil
}
func (stubGenerator) AnalyzePrompt(ctx context.Context, prompt string) (model.PromptAnalysis, error) {
	return model.PromptAnalysis{Intent: "general"}, nil
}
func (stubGenerator) GenerateAnswer(ctx context.Context, query, assembledContext string, limits enrich.AnswerLimits) (enrich.Answer, error) {
	return enrich.Answer{Text: "a generated answer", ModelVersion: "stub-v1"}, nil
}
func (stubGenerator) ModelVersion() string { return "stub-v1" }

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	db := databases.Manager{Search: databases.NewMemorySearch(), Vector: databases.NewMemoryVector()}
	store := ctxstore.NewMemoryStore(db, nil)
	g := graph.New(config.Config{SimilarityThreshold: 0.5, EdgesPerNodeK: 4, LSHHyperplanes: 4, LSHNeighborBuckets: 4})
	embedder := embed.NewClient(config.EmbeddingConfig{BaseURL: "http://127.0.0.1:0"}, 8)
	enricher := enrich.NewEnricher(stubGenerator{}, embedder, config.Config{PEnrich: 2, MaxEnrichQueue: 1000, EmbeddingDim: 8}, nil)
	pipeline := ingest.New(store, chunk.New(), enricher, g, nil, chunk.Options{}, "stub-v1")
	engine := search.New(store, db, embedder, g, enricher, nil, 60)
	return NewServer(store, pipeline, g, engine, "test-v1")
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Success bool `json:"success"`
		Data    struct {
			Status    string `json:"status"`
			Version   string `json:"version"`
			Store     string `json:"store"`
			Embedding string `json:"embedding"`
			Generator string `json:"generator"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	require.True(t, envelope.Success)
	require.Equal(t, "test-v1", envelope.Data.Version)
	require.Equal(t, "ok", envelope.Data.Store)
	require.Equal(t, "configured", envelope.Data.Generator)
}

func TestCreateContext_RequiresUserHeader(t *testing.T) {
	srv := newTestServer(t)
	body, _ := json.Marshal(map[string]any{"title": "t", "content": "hello world", "type": "note"})
	req := httptest.NewRequest(http.MethodPost, "/contexts", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateContext_ReturnsCreatedContext(t *testing.T) {
	srv := newTestServer(t)
	body, _ := json.Marshal(map[string]any{"title": "t", "content": "hello world this is a test", "type": "note"})
	req := httptest.NewRequest(http.MethodPost, "/contexts", bytes.NewReader(body))
	req.Header.Set("X-User-Id", "u1")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var envelope struct {
		Success bool `json:"success"`
		Data    struct {
			ID         string `json:"id"`
			ChunkCount int    `json:"chunkCount"`
			HasNodes   bool   `json:"hasNodes"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	require.True(t, envelope.Success)
	require.NotEmpty(t, envelope.Data.ID)
	require.True(t, envelope.Data.HasNodes)
	require.Equal(t, 1, envelope.Data.ChunkCount)
}

func TestGetContext_NotFoundMapsTo404(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/contexts/ctx_missing", nil)
	req.Header.Set("X-User-Id", "u1")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchText_EndToEnd(t *testing.T) {
	srv := newTestServer(t)

	createBody, _ := json.Marshal(map[string]any{"title": "t", "content": "the quick brown fox jumps over the lazy dog", "type": "note"})
	createReq := httptest.NewRequest(http.MethodPost, "/contexts", bytes.NewReader(createBody))
	createReq.Header.Set("X-User-Id", "u1")
	createRec := httptest.NewRecorder()
	srv.ServeHTTP(createRec, createReq)
	require.Equal(t, http.StatusCreated, createRec.Code)

	searchBody, _ := json.Marshal(map[string]any{"query": "fox"})
	searchReq := httptest.NewRequest(http.MethodPost, "/search/text", bytes.NewReader(searchBody))
	searchReq.Header.Set("X-User-Id", "u1")
	searchRec := httptest.NewRecorder()
	srv.ServeHTTP(searchRec, searchReq)
	require.Equal(t, http.StatusOK, searchRec.Code)

	var envelope struct {
		Success bool `json:"success"`
		Data    struct {
			Results []map[string]any `json:"results"`
			Mode    string           `json:"mode"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(searchRec.Body).Decode(&envelope))
	require.True(t, envelope.Success)
	require.Equal(t, "text", envelope.Data.Mode)
	require.NotEmpty(t, envelope.Data.Results)
}
