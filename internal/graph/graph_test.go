package graph

import (
	"testing"

	"github.com/arkoroy05/contextmemory/internal/config"
	"github.com/arkoroy05/contextmemory/internal/model"
)

func testCfg() config.Config {
	return config.Config{
		SimilarityThreshold: 0.5,
		EdgesPerNodeK:       4,
		LSHHyperplanes:      4,
		LSHNeighborBuckets:  4,
	}
}

func vec(vals ...float32) []float32 { return vals }

func TestAddNode_ConnectsSimilarEmbeddings(t *testing.T) {
	b := New(testCfg())
	scope := model.Scope{UserID: "u1"}

	if err := b.AddNode(scope, NodeInput{ID: "a", ContextID: "c1", Embedding: vec(1, 0, 0, 0), ContextType: model.ContextNote}); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := b.AddNode(scope, NodeInput{ID: "b", ContextID: "c1", Embedding: vec(0.9, 0.1, 0, 0), ContextType: model.ContextNote}); err != nil {
		t.Fatalf("add b: %v", err)
	}

	snap, err := b.Snapshot(scope)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(snap.Nodes))
	}
	found := false
	for _, e := range snap.Edges {
		if e.SourceID == "a" && e.TargetID == "b" && e.Kind == model.EdgeSimilar {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a similar edge between near-identical embeddings, got %+v", snap.Edges)
	}
}

func TestAddNode_DissimilarNodesNotConnected(t *testing.T) {
	b := New(testCfg())
	scope := model.Scope{UserID: "u2"}

	_ = b.AddNode(scope, NodeInput{ID: "a", ContextID: "c1", Embedding: vec(1, 0, 0, 0)})
	_ = b.AddNode(scope, NodeInput{ID: "b", ContextID: "c2", Embedding: vec(0, 1, 0, 0)})

	snap, err := b.Snapshot(scope)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	for _, e := range snap.Edges {
		if e.Kind == model.EdgeSimilar {
			t.Fatalf("did not expect a similar edge for orthogonal embeddings: %+v", e)
		}
	}
}

func TestAddNode_SiblingEdgesFromSharedParent(t *testing.T) {
	b := New(testCfg())
	scope := model.Scope{UserID: "u3"}

	_ = b.AddNode(scope, NodeInput{ID: "p", ContextID: "c1", Embedding: vec(1, 0, 0, 0)})
	_ = b.AddNode(scope, NodeInput{ID: "s1", ContextID: "c1", ParentNodeID: "p", Embedding: vec(0, 1, 0, 0)})
	_ = b.AddNode(scope, NodeInput{ID: "s2", ContextID: "c1", ParentNodeID: "p", Embedding: vec(0, 0, 1, 0)})

	snap, err := b.Snapshot(scope)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	var sawSibling, sawParent bool
	for _, e := range snap.Edges {
		if e.Kind == model.EdgeSiblingOf {
			sawSibling = true
		}
		if e.Kind == model.EdgeParentOf {
			sawParent = true
		}
	}
	if !sawSibling {
		t.Fatalf("expected a sibling_of edge between s1 and s2: %+v", snap.Edges)
	}
	if !sawParent {
		t.Fatalf("expected a parent_of edge from p: %+v", snap.Edges)
	}
}

func TestAddNode_ParentOfIsNotMirrored(t *testing.T) {
	b := New(testCfg())
	scope := model.Scope{UserID: "u4"}

	_ = b.AddNode(scope, NodeInput{ID: "p", ContextID: "c1", Embedding: vec(1, 0, 0, 0)})
	_ = b.AddNode(scope, NodeInput{ID: "child", ContextID: "c1", ParentNodeID: "p", Embedding: vec(0, 1, 0, 0)})

	snap, err := b.Snapshot(scope)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	sawForward := false
	for _, e := range snap.Edges {
		if e.Kind != model.EdgeParentOf {
			continue
		}
		if e.SourceID == "child" && e.TargetID == "p" {
			t.Fatalf("parent_of must never be mirrored child->parent, got %+v", e)
		}
		if e.SourceID == "p" && e.TargetID == "child" {
			sawForward = true
		}
	}
	if !sawForward {
		t.Fatalf("expected the forward parent_of edge p->child: %+v", snap.Edges)
	}
}

func TestRemoveNode_TriggersRecompactionPastThreshold(t *testing.T) {
	b := New(testCfg())
	scope := model.Scope{UserID: "u4"}

	for i := 0; i < 10; i++ {
		id := string(rune('a' + i))
		_ = b.AddNode(scope, NodeInput{ID: id, ContextID: "c1", Embedding: vec(float32(i), 0, 0, 0)})
	}
	for i := 0; i < 2; i++ {
		id := string(rune('a' + i))
		_ = b.RemoveNode(scope, id)
	}

	snap, err := b.Snapshot(scope)
	if err != nil {
		t.Fatalf("snapshot after recompaction: %v", err)
	}
	if len(snap.Nodes) != 8 {
		t.Fatalf("expected 8 remaining nodes, got %d", len(snap.Nodes))
	}
	if snap.Staleness != model.GraphReady {
		t.Fatalf("expected graph Ready after recompaction, got %s", snap.Staleness)
	}
}

func TestNeighbors_BFSRespectsMaxDepth(t *testing.T) {
	b := New(testCfg())
	scope := model.Scope{UserID: "u5"}

	_ = b.AddNode(scope, NodeInput{ID: "a", ContextID: "c1", Embedding: vec(1, 0, 0, 0)})
	_ = b.AddNode(scope, NodeInput{ID: "b", ContextID: "c1", Embedding: vec(0.95, 0.05, 0, 0)})
	_ = b.AddNode(scope, NodeInput{ID: "c", ContextID: "c1", Embedding: vec(0.9, 0.1, 0, 0)})

	near, err := b.Neighbors(scope, "a", 1)
	if err != nil {
		t.Fatalf("neighbors: %v", err)
	}
	if len(near) == 0 {
		t.Fatalf("expected at least one neighbor within depth 1")
	}
	for _, id := range near {
		if _, ok := b.EdgeWeight(scope, "a", id); !ok {
			t.Fatalf("expected depth-1 neighbor %s to have a direct edge from a", id)
		}
	}
}
