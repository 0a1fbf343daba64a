package search

import (
	"context"
	"strings"

	"github.com/arkoroy05/contextmemory/internal/enrich"
	"github.com/arkoroy05/contextmemory/internal/model"
)

// groundingThreshold is the factual-grounding floor below which an answer
// is flagged as a likely hallucination (§4.5 step 5).
const groundingThreshold = 0.35

// RAGRequest is the input to GenerateRAG.
type RAGRequest struct {
	Query         string
	SeedContextID string // when set, candidates come from Graph instead of Hybrid
	MaxTokens     int
	WindowOptions WindowOptions
}

// GenerateRAG runs the full §4.5 RAG pipeline: parse intent, select
// candidates (Hybrid, or Graph when a seed is given), assemble a
// ContextWindow, generate an answer, and validate it for hallucination.
func (e *Engine) GenerateRAG(ctx context.Context, scope model.Scope, req RAGRequest) (model.RAGResponse, error) {
	intent := model.PromptAnalysis{Intent: "general"}
	if e.Enricher != nil {
		intent = e.Enricher.AnalyzePrompt(ctx, req.Query)
	}

	var candidates model.SearchResult
	var err error
	opts := Options{Limit: 20}
	if req.SeedContextID != "" {
		candidates, err = e.Graph(ctx, scope, req.Query, req.SeedContextID, opts)
	} else {
		candidates, err = e.Hybrid(ctx, scope, req.Query, opts)
	}
	if err != nil {
		return model.RAGResponse{}, err
	}

	winOpts := req.WindowOptions
	winOpts.MaxTokens = req.MaxTokens
	winOpts.Priority = priorityForIntent(intent.Intent)
	window := BuildContextWindow(candidates.Results, winOpts)

	if e.Enricher == nil {
		return model.RAGResponse{
			Answer:        nil,
			SourceNodeIDs: window.NodeIDs,
			ContextWindow: window,
			Reason:        "generator_unavailable",
		}, nil
	}

	answer, genErr := e.Enricher.GenerateAnswer(ctx, req.Query, window.Text, enrich.AnswerLimits{MaxTokens: 1024})
	if genErr != nil {
		return model.RAGResponse{
			Answer:        nil,
			SourceNodeIDs: window.NodeIDs,
			ContextWindow: window,
			Reason:        "generator_unavailable",
		}, nil
	}

	titles := titlesByID(candidates.Results)
	validation := validateAnswer(answer.Text, window.Text, titles, window.NodeIDs, intent.Intent)

	confidence := validation.FactualGrounding
	if validation.CitationPresent {
		confidence = confidence*0.7 + 0.3
	}

	return model.RAGResponse{
		Answer:        &answer.Text,
		Confidence:    confidence,
		SourceNodeIDs: window.NodeIDs,
		Validation:    validation,
		ContextWindow: window,
	}, nil
}

func priorityForIntent(intent string) model.WindowPriority {
	switch strings.ToLower(intent) {
	case "debugging", "how-to", "howto", "how_to":
		return model.PriorityRelevance
	case "what_was_discussed", "recall", "history":
		return model.PriorityRecency
	default:
		return model.PriorityMixed
	}
}

func titlesByID(results []model.ScoredNode) map[string]string {
	m := make(map[string]string, len(results))
	for _, r := range results {
		if r.Node.Title != "" {
			m[r.Node.ID] = r.Node.Title
		}
	}
	return m
}

// validateAnswer computes the §4.5 step 5 checks: factual grounding (the
// fraction of answer trigrams also present in the window), citation
// presence (a reference to a provided node id/title, required when the
// intent is factual), and hedging/assertion balance.
func validateAnswer(answer, window string, titles map[string]string, nodeIDs []string, intent string) model.ValidationRecord {
	grounding := trigramOverlap(answer, window)
	cited := hasCitation(answer, titles, nodeIDs)
	if !isFactualIntent(intent) {
		cited = true // citation is only required for factual intents
	}
	hedging := hedgingBalanced(answer)

	return model.ValidationRecord{
		FactualGrounding:      grounding,
		CitationPresent:       cited,
		HedgingBalanced:       hedging,
		HallucinationDetected: grounding < groundingThreshold,
	}
}

func isFactualIntent(intent string) bool {
	switch strings.ToLower(intent) {
	case "debugging", "how-to", "howto", "how_to", "factual", "general":
		return true
	default:
		return false
	}
}

func trigramOverlap(answer, window string) float64 {
	at := trigrams(answer)
	if len(at) == 0 {
		return 1 // nothing to ground, vacuously grounded
	}
	wt := trigrams(window)
	hits := 0
	for g := range at {
		if _, ok := wt[g]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(at))
}

func trigrams(s string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(s))
	out := map[string]struct{}{}
	for i := 0; i+2 < len(words)+1 && i+3 <= len(words); i++ {
		out[strings.Join(words[i:i+3], " ")] = struct{}{}
	}
	if len(words) > 0 && len(words) < 3 {
		out[strings.Join(words, " ")] = struct{}{}
	}
	return out
}

func hasCitation(answer string, titles map[string]string, nodeIDs []string) bool {
	low := strings.ToLower(answer)
	for _, id := range nodeIDs {
		if strings.Contains(low, strings.ToLower(id)) {
			return true
		}
	}
	for _, title := range titles {
		if title != "" && strings.Contains(low, strings.ToLower(title)) {
			return true
		}
	}
	return false
}

// hedgingBalanced reports whether hedge words ("might", "could",
// "possibly", ...) make up less than 20% of the answer's words — a coarse
// heuristic in the absence of a dedicated classifier. An empty answer
// counts as balanced; all-assertion answers are not flagged, and the
// window is not consulted.
func hedgingBalanced(answer string) bool {
	low := strings.ToLower(answer)
	hedges := []string{"might", "could", "possibly", "may", "perhaps", "likely"}
	hedgeCount := 0
	for _, h := range hedges {
		hedgeCount += strings.Count(low, h)
	}
	words := strings.Fields(low)
	if len(words) == 0 {
		return true
	}
	ratio := float64(hedgeCount) / float64(len(words))
	return ratio < 0.2
}
