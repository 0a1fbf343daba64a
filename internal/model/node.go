package model

import (
	"time"

	"github.com/google/uuid"
)

// ChunkType enumerates the detected structural kind of a node's content.
type ChunkType string

const (
	ChunkParagraph ChunkType = "paragraph"
	ChunkCode      ChunkType = "code"
	ChunkHeading   ChunkType = "heading"
	ChunkList      ChunkType = "list"
	ChunkTable     ChunkType = "table"
	ChunkMixed     ChunkType = "mixed"
)

// FallbackModelSuffix marks an embedding as hash-derived rather than a
// provider result, per the Fallback vector contract in the GLOSSARY.
const FallbackModelSuffix = "+fallback"

// ContextNode is an embeddable, retrievable unit belonging to a Context
// (§3).
type ContextNode struct {
	ID             string    `json:"id"`
	ContextID      string    `json:"contextId"`
	ParentNodeID   string    `json:"parentNodeId,omitempty"`
	ChildNodeIDs   []string  `json:"childNodeIds,omitempty"`
	Content        string    `json:"content"`
	TokenCount     int       `json:"tokenCount"`
	ChunkType      ChunkType `json:"chunkType"`
	ChunkIndex     int       `json:"chunkIndex"`
	Importance     float64   `json:"importance"`
	Title          string    `json:"title,omitempty"`
	Summary        string    `json:"summary,omitempty"`
	Keywords       []string  `json:"keywords,omitempty"`
	Embedding      []float32 `json:"embedding,omitempty"`
	EmbeddingModel string    `json:"embeddingModelVersion,omitempty"`
	NeedsReenrichment bool   `json:"needsReenrichment,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`

	// UserID/ProjectID are denormalized from the owning Context so a node
	// can be scoped without a join, matching the required (userId,
	// projectId, updatedAt) index shape of §4.1.
	UserID    string `json:"userId"`
	ProjectID string `json:"projectId,omitempty"`
}

// NewNodeID generates an opaque node identifier.
func NewNodeID() string { return "node_" + uuid.NewString() }

// IsFallbackEmbedding reports whether the node's embedding was produced by
// the deterministic hashed fallback rather than the configured provider.
func (n ContextNode) IsFallbackEmbedding() bool {
	return len(n.EmbeddingModel) >= len(FallbackModelSuffix) &&
		n.EmbeddingModel[len(n.EmbeddingModel)-len(FallbackModelSuffix):] == FallbackModelSuffix
}
