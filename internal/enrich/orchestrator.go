package enrich

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/arkoroy05/contextmemory/internal/apperr"
	"github.com/arkoroy05/contextmemory/internal/config"
	"github.com/arkoroy05/contextmemory/internal/embed"
	"github.com/arkoroy05/contextmemory/internal/model"
	"github.com/arkoroy05/contextmemory/internal/obslog"
	"github.com/arkoroy05/contextmemory/internal/obsmetrics"
)

const maxAttempts = 3

// Enricher bounds enrichment calls (AnalyzeNode + EmbedOne) to P_ENRICH
// concurrent in-flight requests per process, retries transient provider
// failures with exponential backoff and jitter, and degrades to the
// deterministic fallback when retries are exhausted or the queue is
// overloaded (backpressure shedding, §5).
type Enricher struct {
	gen      Generator
	embedder embed.Embedder
	sem      *semaphore.Weighted
	cfg      config.Config
	metrics  obsmetrics.Sink

	mu        sync.Mutex
	queueSize int
}

// NewEnricher constructs an Enricher bounded by cfg.PEnrich concurrent
// calls, backed by gen for analysis/generation and embedder for vectors.
func NewEnricher(gen Generator, embedder embed.Embedder, cfg config.Config, metrics obsmetrics.Sink) *Enricher {
	p := cfg.PEnrich
	if p <= 0 {
		p = 8
	}
	return &Enricher{
		gen:      gen,
		embedder: embedder,
		sem:      semaphore.NewWeighted(int64(p)),
		cfg:      cfg,
		metrics:  metrics,
	}
}

// EnrichedNode is the outcome of enriching a single node.
type EnrichedNode struct {
	Summary           string
	Keywords          []string
	Title             string
	Categories        []string
	Importance        *float64
	Embedding         []float32
	EmbeddingModel    string
	NeedsReenrichment bool
}

// Enrich analyzes and embeds a single node's content. It never returns an
// error to the caller: on provider exhaustion it returns a fallback result
// with NeedsReenrichment set, per §4.3's "never a hidden failure" contract.
// The request context is honored at every suspension point: a cancelled
// ctx aborts remaining retries and yields a fallback result immediately.
func (e *Enricher) Enrich(ctx context.Context, content string, ctxType model.ContextType, modelVersion string) EnrichedNode {
	if e.overBackpressureLimit() {
		e.recordGauge("enrich_queue_depth", int64(e.currentQueueSize()))
		return e.fallbackResult(content, modelVersion)
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return e.fallbackResult(content, modelVersion)
	}
	e.trackQueue(1)
	defer func() {
		e.sem.Release(1)
		e.trackQueue(-1)
	}()

	log := obslog.FromContext(ctx)

	analysis, err := retry(ctx, maxAttempts, func(ctx context.Context) (NodeAnalysis, error) {
		return e.gen.AnalyzeNode(ctx, content, ctxType)
	})
	needsReenrichment := false
	if err != nil {
		log.Warn().Err(err).Msg("enrich_analyze_exhausted")
		analysis = fallbackNodeAnalysis(content)
		needsReenrichment = true
	}

	vectors, failedIdx, err := e.embedder.EmbedBatch(ctx, []string{content})
	var vector []float32
	embModel := modelVersion
	if err != nil || len(vectors) == 0 {
		vector = embed.FallbackVector(content, e.cfg.EmbeddingDim)
		embModel = embed.MarkFallback(modelVersion)
		needsReenrichment = true
	} else {
		vector = vectors[0]
		if len(failedIdx) > 0 {
			embModel = embed.MarkFallback(modelVersion)
			needsReenrichment = true
		}
	}

	if e.metrics != nil {
		e.metrics.IncCounter("enrich_requests_total", map[string]string{"needs_reenrichment": boolLabel(needsReenrichment)})
	}

	return EnrichedNode{
		Summary:           analysis.Summary,
		Keywords:          analysis.Keywords,
		Title:             analysis.Title,
		Categories:        analysis.Categories,
		Importance:        analysis.Importance,
		Embedding:         vector,
		EmbeddingModel:    embModel,
		NeedsReenrichment: needsReenrichment,
	}
}

// EnrichBatch enriches nodes concurrently, bounded by the shared semaphore.
// Cancellation mid-batch aborts remaining calls; nodes already enriched
// keep their results (§5: "nodes already persisted remain persisted but
// flagged needsReenrichment=true").
func (e *Enricher) EnrichBatch(ctx context.Context, contents []string, ctxType model.ContextType, modelVersion string) []EnrichedNode {
	out := make([]EnrichedNode, len(contents))
	var wg sync.WaitGroup
	for i, c := range contents {
		wg.Add(1)
		go func(i int, c string) {
			defer wg.Done()
			if ctx.Err() != nil {
				out[i] = e.fallbackResult(c, modelVersion)
				return
			}
			out[i] = e.Enrich(ctx, c, ctxType, modelVersion)
		}(i, c)
	}
	wg.Wait()
	return out
}

// AnalyzePrompt delegates to the generator with a single retry sequence and
// a deterministic fallback on exhaustion.
func (e *Enricher) AnalyzePrompt(ctx context.Context, prompt string) model.PromptAnalysis {
	analysis, err := retry(ctx, maxAttempts, func(ctx context.Context) (model.PromptAnalysis, error) {
		return e.gen.AnalyzePrompt(ctx, prompt)
	})
	if err != nil {
		return fallbackPromptAnalysis(prompt)
	}
	return analysis
}

// GenerateAnswer delegates to the generator with retries. Unlike Enrich,
// exhaustion here is surfaced to the caller (the RAG pipeline degrades to
// a verbatim window with answer=null rather than a synthetic answer, §4.5).
func (e *Enricher) GenerateAnswer(ctx context.Context, query, assembledContext string, limits AnswerLimits) (Answer, error) {
	return retry(ctx, maxAttempts, func(ctx context.Context) (Answer, error) {
		return e.gen.GenerateAnswer(ctx, query, assembledContext, limits)
	})
}

func (e *Enricher) fallbackResult(content, modelVersion string) EnrichedNode {
	analysis := fallbackNodeAnalysis(content)
	return EnrichedNode{
		Summary:           analysis.Summary,
		Keywords:          analysis.Keywords,
		Title:             analysis.Title,
		Embedding:         embed.FallbackVector(content, e.cfg.EmbeddingDim),
		EmbeddingModel:    embed.MarkFallback(modelVersion),
		NeedsReenrichment: true,
	}
}

func (e *Enricher) overBackpressureLimit() bool {
	limit := e.cfg.MaxEnrichQueue
	if limit <= 0 {
		limit = 10000
	}
	return e.currentQueueSize() >= limit
}

func (e *Enricher) trackQueue(delta int) {
	e.mu.Lock()
	e.queueSize += delta
	e.mu.Unlock()
}

func (e *Enricher) currentQueueSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queueSize
}

func (e *Enricher) recordGauge(name string, v int64) {
	if e.metrics != nil {
		e.metrics.SetGauge(name, v, nil)
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// retry runs fn up to attempts times with exponential backoff and full
// jitter between attempts, honoring ctx cancellation between retries.
func retry[T any](ctx context.Context, attempts int, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			var z T
			return z, ctx.Err()
		}
		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		backoff := time.Duration(math.Pow(2, float64(i))) * 200 * time.Millisecond
		jittered := time.Duration(rand.Int63n(int64(backoff) + 1))
		select {
		case <-time.After(jittered):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	return zero, apperr.Wrap(apperr.Unavailable, "provider exhausted retries", lastErr)
}
