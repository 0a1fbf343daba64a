package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/arkoroy05/contextmemory/internal/apperr"
	"github.com/arkoroy05/contextmemory/internal/config"
	"github.com/arkoroy05/contextmemory/internal/model"
	"github.com/arkoroy05/contextmemory/internal/obslog"
)

const defaultMaxTokens int64 = 1024

// anthropicGenerator is a Generator backed by the Anthropic messages API.
type anthropicGenerator struct {
	sdk       anthropicsdk.Client
	model     string
	maxTokens int64
	timeouts  config.TimeoutsConfig
}

// NewAnthropicGenerator constructs a Generator backed by the configured
// Anthropic model.
func NewAnthropicGenerator(cfg config.AnthropicConfig, timeouts config.TimeoutsConfig, httpClient *http.Client) Generator {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	m := strings.TrimSpace(cfg.Model)
	if m == "" {
		m = string(anthropicsdk.ModelClaude3_7SonnetLatest)
	}
	return &anthropicGenerator{
		sdk:       anthropicsdk.NewClient(opts...),
		model:     m,
		maxTokens: defaultMaxTokens,
		timeouts:  timeouts,
	}
}

func (a *anthropicGenerator) ModelVersion() string { return a.model }

func (a *anthropicGenerator) complete(ctx context.Context, timeout time.Duration, system, user string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, clampTimeout(timeout, 15*time.Second))
	defer cancel()

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(a.model),
		MaxTokens: a.maxTokens,
		System:    []anthropicsdk.TextBlockParam{{Text: system}},
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(user)),
		},
	}

	log := obslog.FromContext(ctx)
	start := time.Now()
	resp, err := a.sdk.Messages.New(cctx, params)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", a.model).Dur("duration", dur).Msg("enrich_anthropic_error")
		return "", apperr.Wrap(apperr.Unavailable, "generator call failed", err)
	}
	log.Debug().Str("model", a.model).Dur("duration", dur).Msg("enrich_anthropic_ok")

	var text strings.Builder
	for _, block := range resp.Content {
		if t, ok := block.AsAny().(anthropicsdk.TextBlock); ok {
			text.WriteString(t.Text)
		}
	}
	return text.String(), nil
}

const analyzeNodeSystemPrompt = `You analyze a single piece of captured text and return strict JSON with
fields: summary (string, 1-2 sentences), keywords (array of up to 8 lowercase
strings), title (string, under 10 words), categories (array of short tags).
Return JSON only, no prose.`

func (a *anthropicGenerator) AnalyzeNode(ctx context.Context, content string, ctxType model.ContextType) (NodeAnalysis, error) {
	user := fmt.Sprintf("contextType: %s\n\ncontent:\n%s", ctxType, content)
	text, err := a.complete(ctx, a.timeouts.Analyze, analyzeNodeSystemPrompt, user)
	if err != nil {
		return NodeAnalysis{}, err
	}
	var parsed struct {
		Summary    string   `json:"summary"`
		Keywords   []string `json:"keywords"`
		Title      string   `json:"title"`
		Categories []string `json:"categories"`
	}
	if err := json.Unmarshal([]byte(extractJSON(text)), &parsed); err != nil {
		return NodeAnalysis{}, apperr.Wrap(apperr.Unavailable, "unparseable analyze response", err)
	}
	return NodeAnalysis{
		Summary:    parsed.Summary,
		Keywords:   parsed.Keywords,
		Title:      parsed.Title,
		Categories: parsed.Categories,
	}, nil
}

const analyzePromptSystemPrompt = `You analyze a user query about their captured context history and return
strict JSON with fields: intent (one of "factual","how_to","debugging",
"recall","other"), keywords (array of strings), contextType (best-guess
context type the answer likely lives in), urgency ("low","normal","high"),
estimatedAnswerLen (integer, approximate characters). JSON only.`

func (a *anthropicGenerator) AnalyzePrompt(ctx context.Context, prompt string) (model.PromptAnalysis, error) {
	text, err := a.complete(ctx, a.timeouts.Analyze, analyzePromptSystemPrompt, prompt)
	if err != nil {
		return model.PromptAnalysis{}, err
	}
	var parsed struct {
		Intent             string   `json:"intent"`
		Keywords           []string `json:"keywords"`
		ContextType        string   `json:"contextType"`
		Urgency            string   `json:"urgency"`
		EstimatedAnswerLen int      `json:"estimatedAnswerLen"`
	}
	if err := json.Unmarshal([]byte(extractJSON(text)), &parsed); err != nil {
		return model.PromptAnalysis{}, apperr.Wrap(apperr.Unavailable, "unparseable prompt analysis", err)
	}
	return model.PromptAnalysis{
		Intent:             parsed.Intent,
		Keywords:           parsed.Keywords,
		ContextType:        model.ContextType(parsed.ContextType),
		Urgency:            parsed.Urgency,
		EstimatedAnswerLen: parsed.EstimatedAnswerLen,
	}, nil
}

const generateAnswerSystemPrompt = `You answer the user's question using only the provided context window.
Cite the relevant node titles or ids when making factual claims. If the
context window does not contain the answer, say so plainly rather than
inventing information.`

func (a *anthropicGenerator) GenerateAnswer(ctx context.Context, query, assembledContext string, limits AnswerLimits) (Answer, error) {
	user := fmt.Sprintf("Context window:\n%s\n\nQuestion: %s", assembledContext, query)
	timeout := a.timeouts.Generate
	text, err := a.complete(ctx, timeout, generateAnswerSystemPrompt, user)
	if err != nil {
		return Answer{}, err
	}
	return Answer{Text: text, ModelVersion: a.model}, nil
}

// extractJSON trims leading/trailing prose or code fences a model may add
// around a JSON object, returning the span from the first '{' to the last
// '}' (or "{}" when there is none).
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end < start {
		return "{}"
	}
	return s[start : end+1]
}
