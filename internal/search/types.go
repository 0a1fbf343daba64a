// Package search implements the Search & Retrieval Engine (C5, §4.5):
// Text/Semantic/Hybrid/Graph query modes, bounded context-window assembly,
// and a RAG pipeline with hallucination validation.
package search

import (
	"github.com/arkoroy05/contextmemory/internal/model"
)

// Options narrows a query to a scope and bounds its result set.
type Options struct {
	Limit      int
	Filters    model.SearchFilters
	MaxDepth   int    // Graph mode only; default 2
	SeedNodeID string // Graph mode: explicit seed node; otherwise derived via Semantic
}

// WindowOptions configures ContextWindow assembly (§4.5).
type WindowOptions struct {
	MaxTokens         int
	IncludeMetadata   bool
	PreserveStructure bool
	AddSeparators     bool
	Priority          model.WindowPriority
}

// RRFK is the default Reciprocal Rank Fusion constant (§4.5).
const RRFK = 60

// DefaultGraphMaxDepth is the default BFS depth for Graph mode.
const DefaultGraphMaxDepth = 2

// graphAlpha/graphBeta weight Graph mode's relevance formula:
// relevance = alpha*semantic(query,node) + beta*edgeWeightProduct (§4.5).
const (
	graphAlpha = 0.7
	graphBeta  = 0.3
)

func clampLimit(n int) int {
	if n <= 0 {
		return 10
	}
	return n
}
