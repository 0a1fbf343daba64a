// Package ctxstore implements the Context Store (C1, §4.1): context and
// node persistence with the required indexes, cursor pagination, and
// cascading delete.
package ctxstore

import (
	"context"

	"github.com/arkoroy05/contextmemory/internal/model"
)

// ListOptions filters and paginates ListContexts.
type ListOptions struct {
	ProjectID string
	Limit     int
	Cursor    string
}

// Page is a cursor-paginated page of contexts, ordered by updatedAt desc.
type Page struct {
	Items      []model.Context
	NextCursor string
}

// GetOptions controls whether GetContext eagerly loads nodes.
type GetOptions struct {
	IncludeNodes bool
}

// Store is the Context Store contract (§4.1).
type Store interface {
	CreateContext(ctx context.Context, userID string, in model.CreateContextInput) (model.Context, error)
	GetContext(ctx context.Context, userID, id string, opts GetOptions) (model.Context, []model.ContextNode, error)
	ListContexts(ctx context.Context, userID string, opts ListOptions) (Page, error)
	DeleteContext(ctx context.Context, userID, id string) error

	// UpsertNodes atomically replaces every node of contextID: either all
	// nodes are visible to a subsequent reader or none are (§3, §5).
	// idempotencyKey, when non-empty, makes the replacement a no-op if the
	// same key was already applied to contextID — a retried ingest call
	// after a network timeout does not re-run indexing twice (§7
	// "at-least-once semantics with idempotency keys for node upserts").
	UpsertNodes(ctx context.Context, contextID string, nodes []model.ContextNode, idempotencyKey string) error
	GetNodes(ctx context.Context, contextID string) ([]model.ContextNode, error)
	GetNode(ctx context.Context, id string) (model.ContextNode, bool)

	SearchNodesText(ctx context.Context, userID, query string, filters model.SearchFilters, limit int) ([]model.ScoredNode, error)
}
