// Package enrich implements the generation half of the AI Enricher (C3,
// §4.3): AnalyzeNode, AnalyzePrompt, and GenerateAnswer, backed by an
// Anthropic model, plus the bounded-parallelism enrichment orchestration
// used by ingest.
package enrich

import (
	"context"
	"time"

	"github.com/arkoroy05/contextmemory/internal/model"
)

// NodeAnalysis is the result of AnalyzeNode.
type NodeAnalysis struct {
	Summary    string
	Keywords   []string
	Title      string
	Importance *float64
	Categories []string
}

// AnswerLimits bounds a GenerateAnswer call.
type AnswerLimits struct {
	MaxTokens int
}

// Answer is the result of GenerateAnswer.
type Answer struct {
	Text         string
	ModelVersion string
}

// Generator is the narrow text-generation contract C3 needs: structured
// node/prompt analysis and RAG answer synthesis. It deliberately does not
// expose multi-turn chat, tool calling, or streaming — those are concerns
// of a fuller chat-agent provider, not the enrichment pipeline.
type Generator interface {
	AnalyzeNode(ctx context.Context, content string, ctxType model.ContextType) (NodeAnalysis, error)
	AnalyzePrompt(ctx context.Context, prompt string) (model.PromptAnalysis, error)
	GenerateAnswer(ctx context.Context, query, assembledContext string, limits AnswerLimits) (Answer, error)
	ModelVersion() string
}

// fallback analyses used when the generator is exhausted after retries.
// These are deterministic and content-derived, never silently indistinguishable
// from a real model result: callers must set needsReenrichment on the node.

func fallbackNodeAnalysis(content string) NodeAnalysis {
	return NodeAnalysis{
		Summary:  truncateWords(content, 40),
		Keywords: topWords(content, 5),
		Title:    truncateWords(content, 8),
	}
}

func fallbackPromptAnalysis(prompt string) model.PromptAnalysis {
	return model.PromptAnalysis{
		Intent:             "unknown",
		Keywords:           topWords(prompt, 5),
		ContextType:        model.ContextNote,
		Urgency:            "normal",
		EstimatedAnswerLen: 200,
	}
}

func truncateWords(s string, n int) string {
	words := splitWords(s)
	if len(words) > n {
		words = words[:n]
	}
	out := ""
	for i, w := range words {
		if i > 0 {
			out += " "
		}
		out += w
	}
	return out
}

func topWords(s string, n int) []string {
	seen := map[string]bool{}
	var out []string
	for _, w := range splitWords(s) {
		if len(w) < 4 || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if len(out) >= n {
			break
		}
	}
	return out
}

func splitWords(s string) []string {
	var words []string
	start := -1
	for i, r := range s {
		isWord := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if isWord {
			if start == -1 {
				start = i
			}
		} else if start != -1 {
			words = append(words, s[start:i])
			start = -1
		}
	}
	if start != -1 {
		words = append(words, s[start:])
	}
	return words
}

func clampTimeout(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
