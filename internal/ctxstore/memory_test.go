package ctxstore

import (
	"context"
	"testing"

	"github.com/arkoroy05/contextmemory/internal/apperr"
	"github.com/arkoroy05/contextmemory/internal/model"
	"github.com/arkoroy05/contextmemory/internal/persistence/databases"
)

func newTestStore() *MemoryStore {
	return NewMemoryStore(databases.Manager{
		Search: databases.NewMemorySearch(),
		Vector: databases.NewMemoryVector(),
		Graph:  databases.NewMemoryGraph(),
	}, nil)
}

func TestCreateContext_RejectsEmptyContent(t *testing.T) {
	s := newTestStore()
	_, err := s.CreateContext(context.Background(), "u1", model.CreateContextInput{Content: "   "})
	if !apperr.Is(err, apperr.InvalidInput) {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
}

func TestGetContext_ForbiddenForOtherUser(t *testing.T) {
	s := newTestStore()
	c, err := s.CreateContext(context.Background(), "u1", model.CreateContextInput{Content: "hello"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, _, err = s.GetContext(context.Background(), "u2", c.ID, GetOptions{})
	if !apperr.Is(err, apperr.Forbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
}

func TestUpsertNodes_AtomicReplace(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	c, _ := s.CreateContext(ctx, "u1", model.CreateContextInput{Content: "hello world"})

	first := []model.ContextNode{
		{ID: "n1", ContextID: c.ID, Content: "a", ChunkIndex: 0},
		{ID: "n2", ContextID: c.ID, Content: "b", ChunkIndex: 1},
	}
	if err := s.UpsertNodes(ctx, c.ID, first, ""); err != nil {
		t.Fatalf("upsert first: %v", err)
	}
	nodes, _ := s.GetNodes(ctx, c.ID)
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(nodes))
	}

	second := []model.ContextNode{
		{ID: "n3", ContextID: c.ID, Content: "c", ChunkIndex: 0},
	}
	if err := s.UpsertNodes(ctx, c.ID, second, ""); err != nil {
		t.Fatalf("upsert second: %v", err)
	}
	nodes, _ = s.GetNodes(ctx, c.ID)
	if len(nodes) != 1 || nodes[0].ID != "n3" {
		t.Fatalf("expected replacement to leave exactly n3, got %+v", nodes)
	}
	if _, ok := s.GetNode(ctx, "n1"); ok {
		t.Fatalf("expected n1 to be gone after replace")
	}
}

func TestListContexts_CursorPagination(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := s.CreateContext(ctx, "u1", model.CreateContextInput{Content: "item"}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	page, err := s.ListContexts(ctx, "u1", ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("expected a first page of 2 with a cursor, got %+v", page)
	}

	seen := map[string]bool{}
	for _, it := range page.Items {
		seen[it.ID] = true
	}
	cursor := page.NextCursor
	for {
		next, err := s.ListContexts(ctx, "u1", ListOptions{Limit: 2, Cursor: cursor})
		if err != nil {
			t.Fatalf("list page: %v", err)
		}
		for _, it := range next.Items {
			if seen[it.ID] {
				t.Fatalf("duplicate item %s across pages", it.ID)
			}
			seen[it.ID] = true
		}
		if next.NextCursor == "" {
			break
		}
		cursor = next.NextCursor
	}
	if len(seen) != 5 {
		t.Fatalf("expected to see all 5 contexts across pages, saw %d", len(seen))
	}
}

func TestDeleteContext_CascadesNodes(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	c, _ := s.CreateContext(ctx, "u1", model.CreateContextInput{Content: "hello"})
	_ = s.UpsertNodes(ctx, c.ID, []model.ContextNode{{ID: "n1", ContextID: c.ID, Content: "a"}}, "")

	if err := s.DeleteContext(ctx, "u1", c.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := s.GetContext(ctx, "u1", c.ID, GetOptions{}); !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("expected NotFound after delete, got %v", err)
	}
	if _, ok := s.GetNode(ctx, "n1"); ok {
		t.Fatalf("expected cascaded node to be gone")
	}
}

func TestCreateContext_IdempotencyKeyReturnsExisting(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	first, err := s.CreateContext(ctx, "u1", model.CreateContextInput{Content: "hello", IdempotencyKey: "req-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := s.CreateContext(ctx, "u1", model.CreateContextInput{Content: "hello retried", IdempotencyKey: "req-1"})
	if err != nil {
		t.Fatalf("retried create: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected retried create to return the original context, got a new one")
	}
	if second.Content != "hello" {
		t.Fatalf("expected retried create not to apply the retried body, got content %q", second.Content)
	}
}

func TestUpsertNodes_MirrorsNodeIntoGraphBackend(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	c, _ := s.CreateContext(ctx, "u1", model.CreateContextInput{Content: "hello world", ProjectID: "proj1"})

	nodes := []model.ContextNode{{ID: "n1", ContextID: c.ID, Content: "a", ChunkType: model.ChunkCode, ChunkIndex: 0}}
	if err := s.UpsertNodes(ctx, c.ID, nodes, ""); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	n, ok := s.db.Graph.GetNode(ctx, "n1")
	if !ok {
		t.Fatalf("expected node n1 to be mirrored into the graph backend")
	}
	if len(n.Labels) != 1 || n.Labels[0] != string(model.ChunkCode) {
		t.Fatalf("expected label %q, got %+v", model.ChunkCode, n.Labels)
	}
	if n.Props["contextId"] != c.ID || n.Props["projectId"] != "proj1" {
		t.Fatalf("expected scoping props on mirrored node, got %+v", n.Props)
	}
}

func TestUpsertNodes_IdempotencyKeySkipsReapply(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	c, _ := s.CreateContext(ctx, "u1", model.CreateContextInput{Content: "hello"})

	first := []model.ContextNode{{ID: "n1", ContextID: c.ID, Content: "a", ChunkIndex: 0}}
	if err := s.UpsertNodes(ctx, c.ID, first, "key-1"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// Redelivery with the same key and different content must not replace
	// the already-applied write.
	retried := []model.ContextNode{{ID: "n2", ContextID: c.ID, Content: "b", ChunkIndex: 0}}
	if err := s.UpsertNodes(ctx, c.ID, retried, "key-1"); err != nil {
		t.Fatalf("retried upsert: %v", err)
	}
	nodes, _ := s.GetNodes(ctx, c.ID)
	if len(nodes) != 1 || nodes[0].ID != "n1" {
		t.Fatalf("expected redelivery to be a no-op, got %+v", nodes)
	}
}

func TestSearchNodesText_FindsIndexedContent(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	c, _ := s.CreateContext(ctx, "u1", model.CreateContextInput{Content: "parent"})
	_ = s.UpsertNodes(ctx, c.ID, []model.ContextNode{
		{ID: "n1", ContextID: c.ID, Content: "the quick brown fox", UserID: "u1"},
	}, "")

	results, err := s.SearchNodesText(ctx, "u1", "quick fox", model.SearchFilters{}, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("expected at least one match")
	}
}
