package graph

import (
	"time"

	"github.com/arkoroy05/contextmemory/internal/model"
)

func (g *scopeGraph) addNode(n NodeInput) error {
	g.setState(model.GraphBuilding)
	defer func() {
		if g.getState() != model.GraphStale {
			g.setState(model.GraphReady)
		}
	}()

	g.mu.Lock()
	defer g.mu.Unlock()

	dim := len(n.Embedding)
	if g.hp == nil && dim > 0 {
		g.hp = newHyperplanes(g.key, g.hyperplaneCount(), dim)
	}

	entry := &nodeEntry{
		input:       n,
		contextType: n.ContextType,
		tagSet:      toSet(n.Tags),
		keywordSet:  toSet(n.Keywords),
		shingleSet:  shingles(n.Content),
		embedding:   n.Embedding,
	}
	if g.hp != nil {
		entry.sig = g.hp.sign(n.Embedding)
	}
	g.nodes[n.ID] = entry
	g.buckets[entry.sig] = appendUnique(g.buckets[entry.sig], n.ID)
	g.totalEverAdded++

	if g.lastModelVer != "" && n.ModelVersion != "" && g.lastModelVer != n.ModelVersion {
		g.setState(model.GraphStale)
	}
	if n.ModelVersion != "" {
		g.lastModelVer = n.ModelVersion
	}

	candidates := g.similarityCandidates(entry)
	structural := g.structuralEdges(entry)

	all := append(candidates, structural...)
	sortEdgesByWeight(all)

	k := g.edgesPerNodeK()
	added := 0
	seen := map[string]bool{}
	var kept []model.GraphEdge
	for _, e := range all {
		if seen[e.TargetID] {
			continue
		}
		seen[e.TargetID] = true
		kept = append(kept, e)
		added++
		if added >= k {
			break
		}
	}
	for _, e := range kept {
		g.edges = append(g.edges, e)
		// parent_of is directional (child is never mirrored back as the
		// parent); similar/sibling_of are symmetric relations.
		if e.Kind == model.EdgeParentOf {
			continue
		}
		g.edges = append(g.edges, model.GraphEdge{SourceID: e.TargetID, TargetID: e.SourceID, Kind: e.Kind, Weight: e.Weight, Rationale: e.Rationale})
	}

	g.version++
	g.lastBuiltAt = time.Now()
	return nil
}

// similarityCandidates finds nodes in the same or r-nearest LSH buckets
// and scores them, keeping those at or above SIMILARITY_THRESHOLD.
func (g *scopeGraph) similarityCandidates(entry *nodeEntry) []model.GraphEdge {
	if len(entry.embedding) == 0 {
		return nil
	}
	bucketSigs := g.nearestBuckets(entry.sig, g.neighborBuckets())
	threshold := g.threshold()
	var out []model.GraphEdge
	for _, sig := range bucketSigs {
		for _, id := range g.buckets[sig] {
			if id == entry.input.ID {
				continue
			}
			other := g.nodes[id]
			if other == nil || other.removed {
				continue
			}
			s := score(entry, other)
			if s >= threshold {
				out = append(out, model.GraphEdge{
					SourceID: entry.input.ID, TargetID: id,
					Kind: model.EdgeSimilar, Weight: s,
					Rationale: "similarity score above threshold",
				})
			}
		}
	}
	return out
}

// nearestBuckets returns the signatures present in the bucket map ordered
// by Hamming distance to sig, including sig itself, up to r entries.
func (g *scopeGraph) nearestBuckets(sig signature, r int) []signature {
	type sd struct {
		sig  signature
		dist int
	}
	var all []sd
	for s := range g.buckets {
		all = append(all, sd{sig: s, dist: hamming(sig, s)})
	}
	// simple selection since bucket count is expected small relative to nodes
	for i := 0; i < len(all); i++ {
		min := i
		for j := i + 1; j < len(all); j++ {
			if all[j].dist < all[min].dist {
				min = j
			}
		}
		all[i], all[min] = all[min], all[i]
	}
	if len(all) > r {
		all = all[:r]
	}
	out := make([]signature, len(all))
	for i, e := range all {
		out[i] = e.sig
	}
	return out
}

// structuralEdges builds sibling_of (to every live node sharing the same
// non-empty parent, weight 0.5, not subject to threshold) and parent_of edges.
func (g *scopeGraph) structuralEdges(entry *nodeEntry) []model.GraphEdge {
	var out []model.GraphEdge
	if entry.input.ParentNodeID != "" {
		if parent := g.nodes[entry.input.ParentNodeID]; parent != nil && !parent.removed {
			out = append(out, model.GraphEdge{
				SourceID: entry.input.ParentNodeID, TargetID: entry.input.ID,
				Kind: model.EdgeParentOf, Weight: 1.0,
			})
		}
	}
	for id, other := range g.nodes {
		if other.removed || id == entry.input.ID {
			continue
		}
		if other.input.ParentNodeID != "" && other.input.ParentNodeID == entry.input.ParentNodeID {
			out = append(out, model.GraphEdge{
				SourceID: entry.input.ID, TargetID: id,
				Kind: model.EdgeSiblingOf, Weight: 0.5,
			})
		}
	}
	return out
}

func (g *scopeGraph) removeNode(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	entry, ok := g.nodes[id]
	if !ok || entry.removed {
		return
	}
	entry.removed = true
	delete(g.nodes, id)
	g.buckets[entry.sig] = removeID(g.buckets[entry.sig], id)

	var kept []model.GraphEdge
	for _, e := range g.edges {
		if e.SourceID == id || e.TargetID == id {
			continue
		}
		kept = append(kept, e)
	}
	g.edges = kept
	g.removedSince++
	g.version++

	if g.totalEverAdded > 0 && float64(g.removedSince)/float64(g.totalEverAdded) > 0.1 {
		g.recompact()
	}
}

// recompact rebuilds the graph from scratch over the remaining nodes,
// used when removed count exceeds 10% of the scope (§4.4).
func (g *scopeGraph) recompact() {
	g.setState(model.GraphRebuilding)
	remaining := make([]*nodeEntry, 0, len(g.nodes))
	for _, n := range g.nodes {
		remaining = append(remaining, n)
	}
	g.buckets = map[signature][]string{}
	g.edges = nil
	for _, n := range remaining {
		if g.hp != nil {
			n.sig = g.hp.sign(n.embedding)
		}
		g.buckets[n.sig] = appendUnique(g.buckets[n.sig], n.input.ID)
	}
	for _, n := range remaining {
		cands := g.similarityCandidates(n)
		structural := g.structuralEdges(n)
		all := append(cands, structural...)
		sortEdgesByWeight(all)
		k := g.edgesPerNodeK()
		seen := map[string]bool{}
		added := 0
		for _, e := range all {
			if seen[e.TargetID] {
				continue
			}
			seen[e.TargetID] = true
			g.edges = append(g.edges, e)
			added++
			if added >= k {
				break
			}
		}
	}
	g.removedSince = 0
	g.version++
	g.lastBuiltAt = time.Now()
	g.setState(model.GraphReady)
}

func (g *scopeGraph) snapshot() model.Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	edges := make([]model.GraphEdge, len(g.edges))
	copy(edges, g.edges)
	return model.Snapshot{Nodes: ids, Edges: edges, Version: g.version, Staleness: g.getState()}
}

func (g *scopeGraph) bfs(start string, maxDepth int) []string {
	if maxDepth <= 0 {
		maxDepth = 2
	}
	g.mu.RLock()
	adj := map[string][]string{}
	for _, e := range g.edges {
		adj[e.SourceID] = append(adj[e.SourceID], e.TargetID)
	}
	g.mu.RUnlock()

	visited := map[string]bool{start: true}
	frontier := []string{start}
	var out []string
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			for _, nb := range adj[id] {
				if !visited[nb] {
					visited[nb] = true
					out = append(out, nb)
					next = append(next, nb)
				}
			}
		}
		frontier = next
	}
	return out
}

func (g *scopeGraph) edgeWeight(a, b string) (float64, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, e := range g.edges {
		if e.SourceID == a && e.TargetID == b {
			return e.Weight, true
		}
	}
	return 0, false
}

func appendUnique(list []string, id string) []string {
	for _, x := range list {
		if x == id {
			return list
		}
	}
	return append(list, id)
}

func removeID(list []string, id string) []string {
	out := list[:0]
	for _, x := range list {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}
