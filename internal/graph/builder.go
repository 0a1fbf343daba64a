// Package graph implements the Graph Builder (C4, §4.4): a per-scope
// similarity graph over context nodes built with locality-sensitive
// hashing instead of an all-pairs scan, plus structural sibling/parent
// edges and the Empty/Building/Ready/Stale/Rebuilding state machine.
package graph

import (
	"sync"
	"time"

	"github.com/arkoroy05/contextmemory/internal/apperr"
	"github.com/arkoroy05/contextmemory/internal/config"
	"github.com/arkoroy05/contextmemory/internal/model"
)

// NodeInput is the subset of a ContextNode the graph needs to place it and
// score it against peers.
type NodeInput struct {
	ID           string
	ContextID    string
	ParentNodeID string
	ChunkIndex   int
	ContextType  model.ContextType
	Content      string
	Keywords     []string
	Tags         []string
	Embedding    []float32
	ModelVersion string
}

type nodeEntry struct {
	input       NodeInput
	contextType model.ContextType
	tagSet      map[string]struct{}
	keywordSet  map[string]struct{}
	shingleSet  map[string]struct{}
	embedding   []float32
	sig         signature
	removed     bool
}

// Builder manages the graph for every scope in the process. There is no
// global mutex across scopes (§5): each scope gets its own lock.
type Builder struct {
	cfg config.Config

	mu     sync.Mutex
	scopes map[string]*scopeGraph
}

// New constructs a Builder configured from cfg's SIMILARITY_THRESHOLD,
// LSH_HYPERPLANES, LSH_NEIGHBOR_BUCKETS, and EDGES_PER_NODE_K.
func New(cfg config.Config) *Builder {
	return &Builder{cfg: cfg, scopes: map[string]*scopeGraph{}}
}

func (b *Builder) scope(key string) *scopeGraph {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.scopes[key]
	if !ok {
		g = newScopeGraph(key, b.cfg)
		b.scopes[key] = g
	}
	return g
}

// AddNode inserts a node into its scope's graph, connecting it to similar
// peers found via LSH bucket lookup and to structural siblings/parents.
func (b *Builder) AddNode(scope model.Scope, n NodeInput) error {
	return b.scope(scope.Key()).addNode(n)
}

// UpdateNode treats the update as remove-then-add (§4.4 "UpdateNode").
func (b *Builder) UpdateNode(scope model.Scope, n NodeInput) error {
	g := b.scope(scope.Key())
	g.removeNode(n.ID)
	return g.addNode(n)
}

// RemoveNode deletes a node and its incident edges. Bucket rebalancing is
// deferred to a recompaction triggered once removed nodes exceed 10% of
// the scope.
func (b *Builder) RemoveNode(scope model.Scope, id string) error {
	b.scope(scope.Key()).removeNode(id)
	return nil
}

// State returns the current state of a scope's graph without blocking on
// the content lock, so it can be checked cheaply before serving a query.
func (b *Builder) State(scope model.Scope) model.GraphState {
	return b.scope(scope.Key()).getState()
}

// Snapshot returns the read-only adjacency view for a scope. It returns an
// error with Kind Unavailable when the scope is Building or Rebuilding
// (§4.4 "rejected in Building and Rebuilding on the affected scope only").
func (b *Builder) Snapshot(scope model.Scope) (model.Snapshot, error) {
	g := b.scope(scope.Key())
	st := g.getState()
	if st == model.GraphBuilding || st == model.GraphRebuilding {
		return model.Snapshot{}, apperr.New(apperr.Unavailable, "graph is "+string(st)+" for this scope")
	}
	return g.snapshot(), nil
}

// Neighbors returns the ids reachable from id within maxDepth hops, used
// by the Graph search mode's BFS expansion. It honors the same
// Building/Rebuilding rejection as Snapshot.
func (b *Builder) Neighbors(scope model.Scope, id string, maxDepth int) ([]string, error) {
	g := b.scope(scope.Key())
	st := g.getState()
	if st == model.GraphBuilding || st == model.GraphRebuilding {
		return nil, apperr.New(apperr.Unavailable, "graph is "+string(st)+" for this scope")
	}
	return g.bfs(id, maxDepth), nil
}

// EdgeWeight returns the weight of the edge from src to dst if one exists,
// used by the Graph search mode's edgeWeightProduct term.
func (b *Builder) EdgeWeight(scope model.Scope, src, dst string) (float64, bool) {
	return b.scope(scope.Key()).edgeWeight(src, dst)
}

type scopeGraph struct {
	key string
	cfg config.Config

	mu    sync.RWMutex
	nodes map[string]*nodeEntry
	// out adjacency, built lazily from edges on read paths that need it
	edges []model.GraphEdge
	hp    *hyperplanes
	buckets map[signature][]string

	version         int
	lastBuiltAt     time.Time
	removedSince    int
	totalEverAdded  int
	lastModelVer    string

	stateMu sync.Mutex
	state   model.GraphState
}

func newScopeGraph(key string, cfg config.Config) *scopeGraph {
	return &scopeGraph{
		key:     key,
		cfg:     cfg,
		nodes:   map[string]*nodeEntry{},
		buckets: map[signature][]string{},
		state:   model.GraphEmpty,
	}
}

func (g *scopeGraph) getState() model.GraphState {
	g.stateMu.Lock()
	defer g.stateMu.Unlock()
	return g.state
}

func (g *scopeGraph) setState(s model.GraphState) {
	g.stateMu.Lock()
	g.state = s
	g.stateMu.Unlock()
}

func (g *scopeGraph) edgesPerNodeK() int {
	if g.cfg.EdgesPerNodeK > 0 {
		return g.cfg.EdgesPerNodeK
	}
	return 16
}

func (g *scopeGraph) hyperplaneCount() int {
	if g.cfg.LSHHyperplanes > 0 {
		return g.cfg.LSHHyperplanes
	}
	return 12
}

func (g *scopeGraph) neighborBuckets() int {
	if g.cfg.LSHNeighborBuckets > 0 {
		return g.cfg.LSHNeighborBuckets
	}
	return 8
}

func (g *scopeGraph) threshold() float64 {
	if g.cfg.SimilarityThreshold > 0 {
		return g.cfg.SimilarityThreshold
	}
	return 0.62
}
