package model

import "time"

// EdgeKind enumerates the relationship kinds a GraphEdge may carry.
// Only Similar, ParentOf, SiblingOf are produced by this implementation
// (see DESIGN.md Open Questions); the others are modeled so the storage
// and API shapes can accept them from a future classifier.
type EdgeKind string

const (
	EdgeSimilar    EdgeKind = "similar"
	EdgeImplements EdgeKind = "implements"
	EdgeDependsOn  EdgeKind = "depends_on"
	EdgeReferences EdgeKind = "references"
	EdgeParentOf   EdgeKind = "parent_of"
	EdgeSiblingOf  EdgeKind = "sibling_of"
)

// GraphEdge is a directed relationship between two nodes (§3).
type GraphEdge struct {
	SourceID  string   `json:"sourceId"`
	TargetID  string   `json:"targetId"`
	Kind      EdgeKind `json:"kind"`
	Weight    float64  `json:"weight"`
	Rationale string   `json:"rationale,omitempty"`
}

// GraphState is the Graph Builder state machine (§4.4).
type GraphState string

const (
	GraphEmpty      GraphState = "Empty"
	GraphBuilding   GraphState = "Building"
	GraphReady      GraphState = "Ready"
	GraphStale      GraphState = "Stale"
	GraphRebuilding GraphState = "Rebuilding"
)

// ContextGraph is the per-scope adjacency over nodes (§3).
type ContextGraph struct {
	Scope       Scope
	NodeIDs     map[string]struct{}
	Edges       []GraphEdge
	Version     int
	LastBuiltAt time.Time
	State       GraphState
}

// Snapshot is the read-only view returned by GET /contexts/:id/graph.
type Snapshot struct {
	Nodes     []string    `json:"nodes"`
	Edges     []GraphEdge `json:"edges"`
	Version   int         `json:"version"`
	Staleness GraphState  `json:"staleness"`
}
