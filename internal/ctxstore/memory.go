package ctxstore

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arkoroy05/contextmemory/internal/apperr"
	"github.com/arkoroy05/contextmemory/internal/model"
	"github.com/arkoroy05/contextmemory/internal/obsmetrics"
	"github.com/arkoroy05/contextmemory/internal/persistence/databases"
)

// MemoryStore is the in-process Store implementation. Contexts and nodes
// are the system of record; the full-text and vector backends in
// databases.Manager are auxiliary indexes kept in sync on every mutation.
// All maps are guarded by one store-wide RWMutex; CreateContext
// additionally serializes per scope via a scope lock.
type MemoryStore struct {
	db      databases.Manager
	metrics obsmetrics.Sink

	mu       sync.RWMutex
	contexts map[string]model.Context
	nodes    map[string][]model.ContextNode // contextID -> nodes ordered by chunkIndex
	nodeByID map[string]string              // nodeID -> contextID

	// idempotency bookkeeping (§7): createKeys dedupes retried
	// CreateContext calls, upsertKeys dedupes retried UpsertNodes calls
	// per context so at-least-once delivery doesn't double-index.
	createKeys map[string]string // "userID|idempotencyKey" -> contextID
	upsertKeys map[string]string // contextID -> last-applied idempotency key

	scopeLocks sync.Map // scope key -> *sync.Mutex
}

// NewMemoryStore constructs a Store backed by the given auxiliary search
// and vector indexes (pass a zero databases.Manager to disable indexing).
func NewMemoryStore(db databases.Manager, metrics obsmetrics.Sink) *MemoryStore {
	return &MemoryStore{
		db:         db,
		metrics:    metrics,
		contexts:   map[string]model.Context{},
		nodes:      map[string][]model.ContextNode{},
		nodeByID:   map[string]string{},
		createKeys: map[string]string{},
		upsertKeys: map[string]string{},
	}
}

func (s *MemoryStore) scopeLock(scope model.Scope) *sync.Mutex {
	v, _ := s.scopeLocks.LoadOrStore(scope.Key(), &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (s *MemoryStore) CreateContext(ctx context.Context, userID string, in model.CreateContextInput) (model.Context, error) {
	if strings.TrimSpace(in.Content) == "" {
		return model.Context{}, apperr.New(apperr.InvalidInput, "content must not be empty")
	}
	scope := model.Scope{UserID: userID, ProjectID: in.ProjectID}
	lock := s.scopeLock(scope)
	lock.Lock()
	defer lock.Unlock()

	if in.IdempotencyKey != "" {
		dedupKey := userID + "|" + in.IdempotencyKey
		s.mu.RLock()
		existingID, ok := s.createKeys[dedupKey]
		var existing model.Context
		if ok {
			existing, ok = s.contexts[existingID]
		}
		s.mu.RUnlock()
		if ok {
			return existing, nil
		}
	}

	now := time.Now()
	c := model.Context{
		ID:        model.NewContextID(),
		UserID:    userID,
		ProjectID: in.ProjectID,
		Title:     in.Title,
		Content:   in.Content,
		Type:      in.Type,
		Source:    in.Source,
		Tags:      in.Tags,
		Metadata:  in.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
		IdempotencyKey: in.IdempotencyKey,
	}

	s.mu.Lock()
	s.contexts[c.ID] = c
	if in.IdempotencyKey != "" {
		s.createKeys[userID+"|"+in.IdempotencyKey] = c.ID
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.IncCounter("contexts_created_total", nil)
	}
	return c, nil
}

func (s *MemoryStore) GetContext(ctx context.Context, userID, id string, opts GetOptions) (model.Context, []model.ContextNode, error) {
	s.mu.RLock()
	c, ok := s.contexts[id]
	var nodes []model.ContextNode
	if ok && opts.IncludeNodes {
		nodes = append(nodes, s.nodes[id]...)
	}
	s.mu.RUnlock()

	if !ok {
		return model.Context{}, nil, apperr.New(apperr.NotFound, "context not found")
	}
	if c.UserID != userID {
		return model.Context{}, nil, apperr.New(apperr.Forbidden, "context belongs to a different user")
	}
	return c, nodes, nil
}

func (s *MemoryStore) GetNode(ctx context.Context, id string) (model.ContextNode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	contextID, ok := s.nodeByID[id]
	if !ok {
		return model.ContextNode{}, false
	}
	for _, n := range s.nodes[contextID] {
		if n.ID == id {
			return n, true
		}
	}
	return model.ContextNode{}, false
}

// cursorValue encodes (updatedAt, id) for stable pagination.
type cursorValue struct {
	updatedAt time.Time
	id        string
}

func encodeCursor(v cursorValue) string {
	raw := fmt.Sprintf("%d|%s", v.updatedAt.UnixNano(), v.id)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(s string) (cursorValue, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return cursorValue{}, apperr.New(apperr.InvalidInput, "invalid cursor")
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return cursorValue{}, apperr.New(apperr.InvalidInput, "invalid cursor")
	}
	var nanos int64
	if _, err := fmt.Sscanf(parts[0], "%d", &nanos); err != nil {
		return cursorValue{}, apperr.New(apperr.InvalidInput, "invalid cursor")
	}
	return cursorValue{updatedAt: time.Unix(0, nanos), id: parts[1]}, nil
}

func (s *MemoryStore) ListContexts(ctx context.Context, userID string, opts ListOptions) (Page, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	var after *cursorValue
	if opts.Cursor != "" {
		cv, err := decodeCursor(opts.Cursor)
		if err != nil {
			return Page{}, err
		}
		after = &cv
	}

	s.mu.RLock()
	all := make([]model.Context, 0, len(s.contexts))
	for _, c := range s.contexts {
		if c.UserID != userID {
			continue
		}
		if opts.ProjectID != "" && c.ProjectID != opts.ProjectID {
			continue
		}
		all = append(all, c)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].UpdatedAt.After(all[j].UpdatedAt)
		}
		return all[i].ID < all[j].ID
	})

	start := 0
	if after != nil {
		for i, c := range all {
			if c.UpdatedAt.Before(after.updatedAt) || (c.UpdatedAt.Equal(after.updatedAt) && c.ID > after.id) {
				start = i
				break
			}
			start = i + 1
		}
	}
	if start > len(all) {
		start = len(all)
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	page := all[start:end]
	var next string
	if end < len(all) {
		last := page[len(page)-1]
		next = encodeCursor(cursorValue{updatedAt: last.UpdatedAt, id: last.ID})
	}
	return Page{Items: page, NextCursor: next}, nil
}

func (s *MemoryStore) DeleteContext(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	c, ok := s.contexts[id]
	if !ok {
		s.mu.Unlock()
		return apperr.New(apperr.NotFound, "context not found")
	}
	if c.UserID != userID {
		s.mu.Unlock()
		return apperr.New(apperr.Forbidden, "context belongs to a different user")
	}
	nodes := s.nodes[id]
	delete(s.contexts, id)
	delete(s.nodes, id)
	for _, n := range nodes {
		delete(s.nodeByID, n.ID)
	}
	s.mu.Unlock()

	// Cascading delete of auxiliary indexes is best-effort (§7): a failure
	// to remove a node from search/vector indexes does not roll back the
	// primary deletion; the error is ignored and the stale index entry
	// stays in that backend.
	if s.db.Search != nil {
		for _, n := range nodes {
			_ = s.db.Search.Remove(ctx, n.ID)
		}
	}
	if s.db.Vector != nil {
		for _, n := range nodes {
			_ = s.db.Vector.Delete(ctx, n.ID)
		}
	}
	return nil
}

func (s *MemoryStore) UpsertNodes(ctx context.Context, contextID string, nodes []model.ContextNode, idempotencyKey string) error {
	s.mu.Lock()
	c, ok := s.contexts[contextID]
	if !ok {
		s.mu.Unlock()
		return apperr.New(apperr.NotFound, "context not found")
	}

	if idempotencyKey != "" && s.upsertKeys[contextID] == idempotencyKey {
		// Already applied by a prior delivery of the same write; at-least-once
		// redelivery must not re-run indexing against the auxiliary backends.
		s.mu.Unlock()
		return nil
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ChunkIndex < nodes[j].ChunkIndex })

	old := s.nodes[contextID]
	for _, n := range old {
		delete(s.nodeByID, n.ID)
	}
	cp := make([]model.ContextNode, len(nodes))
	copy(cp, nodes)
	s.nodes[contextID] = cp
	for _, n := range cp {
		s.nodeByID[n.ID] = contextID
	}

	c.ChunkCount = len(cp)
	c.HasNodes = c.ChunkCount > 0
	c.UpdatedAt = time.Now()
	s.contexts[contextID] = c
	if idempotencyKey != "" {
		s.upsertKeys[contextID] = idempotencyKey
	}
	s.mu.Unlock()

	s.indexNodes(ctx, c, cp)
	return nil
}

func (s *MemoryStore) indexNodes(ctx context.Context, c model.Context, nodes []model.ContextNode) {
	filter := map[string]string{"userId": c.UserID, "contextId": c.ID}
	if c.ProjectID != "" {
		filter["projectId"] = c.ProjectID
	}
	for _, n := range nodes {
		if s.db.Search != nil {
			text := strings.Join([]string{n.Title, n.Content, strings.Join(n.Keywords, " "), strings.Join(c.Tags, " ")}, " ")
			_ = s.db.Search.Index(ctx, n.ID, text, filter)
		}
		if s.db.Vector != nil && len(n.Embedding) > 0 {
			_ = s.db.Vector.Upsert(ctx, n.ID, n.Embedding, filter)
		}
		if s.db.Graph != nil {
			_ = s.db.Graph.UpsertNode(ctx, n.ID, []string{string(n.ChunkType)}, map[string]any{
				"contextId": c.ID, "userId": c.UserID, "projectId": c.ProjectID, "chunkIndex": n.ChunkIndex,
			})
		}
	}
}

func (s *MemoryStore) GetNodes(ctx context.Context, contextID string) ([]model.ContextNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nodes, ok := s.nodes[contextID]
	if !ok {
		if _, exists := s.contexts[contextID]; !exists {
			return nil, apperr.New(apperr.NotFound, "context not found")
		}
	}
	out := make([]model.ContextNode, len(nodes))
	copy(out, nodes)
	return out, nil
}

// SearchNodesText backs C1's SearchNodesText, scoped to userID and
// optional filters, via the configured full-text backend.
func (s *MemoryStore) SearchNodesText(ctx context.Context, userID, query string, filters model.SearchFilters, limit int) ([]model.ScoredNode, error) {
	if s.db.Search == nil {
		return nil, apperr.New(apperr.Unavailable, "no full-text backend configured")
	}
	filter := map[string]string{"userId": userID}
	if filters.ContextID != "" {
		filter["contextId"] = filters.ContextID
	}
	results, err := s.db.Search.SearchChunks(ctx, query, "", limit, filter)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "text search failed", err)
	}
	out := make([]model.ScoredNode, 0, len(results))
	for _, r := range results {
		n, ok := s.GetNode(ctx, r.ID)
		if !ok {
			continue
		}
		out = append(out, model.ScoredNode{Node: n, Score: r.Score})
	}
	return out, nil
}
