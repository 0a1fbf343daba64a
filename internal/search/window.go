package search

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/arkoroy05/contextmemory/internal/model"
)

// recencyHalfLife sets the exponential decay rate for the recency priority
// term: a node created this long ago scores 0.5 relative to a brand-new one.
const recencyHalfLife = 7 * 24 * time.Hour

// BuildContextWindow assembles a bounded context window from ranked nodes
// per §4.5: re-score by priority, greedily knapsack by score/tokenCount
// ratio under maxTokens, preserve original chunkIndex ordering within a
// context, and report coverage = selectedTokens / sum(candidateTokens).
func BuildContextWindow(nodes []model.ScoredNode, opts WindowOptions) model.ContextWindow {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4000
	}
	if opts.Priority == "" {
		opts.Priority = model.PriorityRelevance
	}

	type candidate struct {
		node  model.ContextNode
		score float64
		cost  int
	}
	now := time.Now()
	candidates := make([]candidate, 0, len(nodes))
	totalCandidateTokens := 0
	for _, sn := range nodes {
		cost := sn.Node.TokenCount
		if opts.IncludeMetadata {
			cost += estimateHeaderTokens(sn.Node)
		}
		if cost <= 0 {
			cost = 1
		}
		totalCandidateTokens += sn.Node.TokenCount
		candidates = append(candidates, candidate{node: sn.Node, score: rescore(sn, opts.Priority, now), cost: cost})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ri := candidates[i].score / float64(candidates[i].cost)
		rj := candidates[j].score / float64(candidates[j].cost)
		if ri != rj {
			return ri > rj
		}
		return candidates[i].node.ID < candidates[j].node.ID
	})

	selected := make([]candidate, 0, len(candidates))
	budget := opts.MaxTokens
	used := 0
	for _, c := range candidates {
		if used+c.cost > budget {
			continue
		}
		selected = append(selected, c)
		used += c.cost
	}

	sort.SliceStable(selected, func(i, j int) bool {
		a, b := selected[i].node, selected[j].node
		if a.ContextID != b.ContextID {
			return a.ContextID < b.ContextID
		}
		return a.ChunkIndex < b.ChunkIndex
	})

	var sb strings.Builder
	ids := make([]string, 0, len(selected))
	totalTokens := 0
	for i, c := range selected {
		if opts.AddSeparators && i > 0 {
			sb.WriteString("\n---\n")
		}
		if opts.IncludeMetadata {
			sb.WriteString(headerFor(c.node))
		}
		sb.WriteString(c.node.Content)
		sb.WriteString("\n")
		ids = append(ids, c.node.ID)
		totalTokens += c.cost
	}

	coverage := 0.0
	if totalCandidateTokens > 0 {
		selectedRawTokens := 0
		for _, c := range selected {
			selectedRawTokens += c.node.TokenCount
		}
		coverage = float64(selectedRawTokens) / float64(totalCandidateTokens)
		if coverage > 1 {
			coverage = 1
		}
	}

	return model.ContextWindow{
		Text:        sb.String(),
		NodeIDs:     ids,
		TotalTokens: totalTokens,
		Coverage:    coverage,
	}
}

func rescore(sn model.ScoredNode, priority model.WindowPriority, now time.Time) float64 {
	relevance := sn.Score
	recency := recencyScore(sn.Node.CreatedAt, now)
	importance := sn.Node.Importance

	switch priority {
	case model.PriorityRecency:
		return recency
	case model.PriorityImportance:
		return importance
	case model.PriorityMixed:
		return 0.5*relevance + 0.25*recency + 0.25*importance
	default:
		return relevance
	}
}

func recencyScore(createdAt, now time.Time) float64 {
	if createdAt.IsZero() {
		return 0
	}
	age := now.Sub(createdAt)
	if age < 0 {
		age = 0
	}
	return math.Pow(0.5, float64(age)/float64(recencyHalfLife))
}

func estimateHeaderTokens(n model.ContextNode) int {
	header := headerFor(n)
	return (len(header) + 3) / 4
}

func headerFor(n model.ContextNode) string {
	var sb strings.Builder
	sb.WriteString("[")
	if n.Title != "" {
		sb.WriteString(n.Title)
	} else {
		sb.WriteString(n.ID)
	}
	sb.WriteString(" | ")
	sb.WriteString(string(n.ChunkType))
	sb.WriteString(" | ")
	sb.WriteString(n.CreatedAt.Format(time.RFC3339))
	sb.WriteString("]\n")
	return sb.String()
}
