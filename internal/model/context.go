// Package model defines the persisted and transient entities of the
// context memory backend (§3).
package model

import (
	"time"

	"github.com/google/uuid"
)

// ContextType enumerates the recognized source kinds for a Context.
type ContextType string

const (
	ContextConversation  ContextType = "conversation"
	ContextCode          ContextType = "code"
	ContextDocumentation ContextType = "documentation"
	ContextResearch      ContextType = "research"
	ContextIdea          ContextType = "idea"
	ContextTask          ContextType = "task"
	ContextNote          ContextType = "note"
	ContextMeeting       ContextType = "meeting"
	ContextEmail         ContextType = "email"
	ContextWebpage       ContextType = "webpage"
)

// Source describes where a Context was captured from.
type Source struct {
	Kind      string    `json:"kind"`
	AgentID   string    `json:"agentId"`
	Timestamp time.Time `json:"timestamp"`
}

// Context is a user-visible unit of captured memory (§3).
type Context struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	ProjectID string      `json:"projectId,omitempty"` // "" = personal scope, see DESIGN.md Open Questions
	Title     string      `json:"title"`
	Content   string      `json:"content"`
	Type      ContextType `json:"type"`
	Source    *Source     `json:"source,omitempty"`
	Tags      []string    `json:"tags,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
	ChunkCount int        `json:"chunkCount"`
	HasNodes   bool       `json:"hasNodes"`
	// IdempotencyKey is the caller-supplied dedup key (empty when none
	// was given) recorded at creation so a retried create with the same
	// key returns the existing context instead of a duplicate (§7).
	IdempotencyKey string `json:"-"`
}

// Scope identifies the ownership boundary a graph is built over (userId,
// optional projectId).
type Scope struct {
	UserID    string
	ProjectID string // "" = personal scope
}

// Key returns a stable string key for use as a map key / lock name.
func (s Scope) Key() string {
	if s.ProjectID == "" {
		return "user:" + s.UserID
	}
	return "user:" + s.UserID + ":project:" + s.ProjectID
}

// ScopeOf derives the owning Scope of a Context.
func ScopeOf(c Context) Scope {
	return Scope{UserID: c.UserID, ProjectID: c.ProjectID}
}

// NewContextID generates an opaque context identifier.
func NewContextID() string { return "ctx_" + uuid.NewString() }

// CreateContextInput is the validated input to CreateContext.
type CreateContextInput struct {
	Title     string
	Content   string
	Type      ContextType
	ProjectID string
	Tags      []string
	Source    *Source
	Metadata  map[string]any
	// IdempotencyKey, when set, lets a retried create (e.g. after a
	// client timeout on an already-applied request) resolve to the
	// original context rather than creating a duplicate.
	IdempotencyKey string
}
