package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/arkoroy05/contextmemory/internal/apperr"
	"github.com/arkoroy05/contextmemory/internal/ctxstore"
	"github.com/arkoroy05/contextmemory/internal/model"
	"github.com/arkoroy05/contextmemory/internal/search"
)

// scopeFromRequest reads the §6 identity headers. Missing X-User-Id is an
// auth failure; X-Project-Id is an optional scope override.
func scopeFromRequest(r *http.Request) (model.Scope, *apperr.Error) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		return model.Scope{}, apperr.New(apperr.Forbidden, "X-User-Id header is required")
	}
	return model.Scope{UserID: userID, ProjectID: r.Header.Get("X-Project-Id")}, nil
}

func (s *Server) handleCreateContext(w http.ResponseWriter, r *http.Request) {
	scope, aerr := scopeFromRequest(r)
	if aerr != nil {
		respondError(w, aerr)
		return
	}
	var body struct {
		Title     string             `json:"title"`
		Content   string             `json:"content"`
		Type      model.ContextType  `json:"type"`
		ProjectID string             `json:"projectId"`
		Tags      []string           `json:"tags"`
		Source    *model.Source      `json:"source"`
		Metadata  map[string]any     `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, apperr.Wrap(apperr.InvalidInput, "malformed request body", err))
		return
	}
	in := model.CreateContextInput{
		Title:          body.Title,
		Content:        body.Content,
		Type:           body.Type,
		ProjectID:      firstNonEmpty(body.ProjectID, scope.ProjectID),
		Tags:           body.Tags,
		Source:         body.Source,
		Metadata:       body.Metadata,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	result, err := s.pipeline.Ingest(r.Context(), scope.UserID, in)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusCreated, result.Context)
}

func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	scope, aerr := scopeFromRequest(r)
	if aerr != nil {
		respondError(w, aerr)
		return
	}
	id := r.PathValue("contextID")
	includeNodes, _ := strconv.ParseBool(r.URL.Query().Get("includeNodes"))
	c, nodes, err := s.store.GetContext(r.Context(), scope.UserID, id, ctxstore.GetOptions{IncludeNodes: includeNodes})
	if err != nil {
		respondError(w, err)
		return
	}
	if includeNodes {
		respondData(w, http.StatusOK, map[string]any{"context": c, "nodes": nodes})
		return
	}
	respondData(w, http.StatusOK, c)
}

func (s *Server) handleListContexts(w http.ResponseWriter, r *http.Request) {
	scope, aerr := scopeFromRequest(r)
	if aerr != nil {
		respondError(w, aerr)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	page, err := s.store.ListContexts(r.Context(), scope.UserID, ctxstore.ListOptions{
		ProjectID: r.URL.Query().Get("projectId"),
		Limit:     limit,
		Cursor:    r.URL.Query().Get("cursor"),
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{"items": page.Items, "nextCursor": page.NextCursor})
}

func (s *Server) handleDeleteContext(w http.ResponseWriter, r *http.Request) {
	scope, aerr := scopeFromRequest(r)
	if aerr != nil {
		respondError(w, aerr)
		return
	}
	id := r.PathValue("contextID")
	if err := s.store.DeleteContext(r.Context(), scope.UserID, id); err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{"deleted": true})
}

func (s *Server) handleAnalyzeContext(w http.ResponseWriter, r *http.Request) {
	scope, aerr := scopeFromRequest(r)
	if aerr != nil {
		respondError(w, aerr)
		return
	}
	id := r.PathValue("contextID")
	result, err := s.pipeline.Reanalyze(r.Context(), scope.UserID, id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{"context": result.Context, "nodes": result.Nodes, "stats": result.Stats})
}

func (s *Server) handleGetContextGraph(w http.ResponseWriter, r *http.Request) {
	scope, aerr := scopeFromRequest(r)
	if aerr != nil {
		respondError(w, aerr)
		return
	}
	id := r.PathValue("contextID")
	if _, _, err := s.store.GetContext(r.Context(), scope.UserID, id, ctxstore.GetOptions{}); err != nil {
		respondError(w, err)
		return
	}
	snap, err := s.graph.Snapshot(scope)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, snap)
}

type searchRequestBody struct {
	Query     string               `json:"query"`
	ContextID string               `json:"contextId"`
	Options   searchOptionsBody    `json:"options"`
}

type searchOptionsBody struct {
	Limit      int                   `json:"limit"`
	Types      []model.ContextType   `json:"types"`
	Tags       []string              `json:"tags"`
	MaxDepth   int                   `json:"maxDepth"`
	SeedNodeID string                `json:"seedNodeId"`
}

func decodeSearchRequest(r *http.Request) (searchRequestBody, *apperr.Error) {
	var body searchRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return body, apperr.Wrap(apperr.InvalidInput, "malformed request body", err)
	}
	if body.Query == "" {
		return body, apperr.New(apperr.InvalidInput, "query is required")
	}
	return body, nil
}

func toSearchOptions(body searchRequestBody) search.Options {
	return search.Options{
		Limit:      body.Options.Limit,
		MaxDepth:   body.Options.MaxDepth,
		SeedNodeID: body.Options.SeedNodeID,
		Filters: model.SearchFilters{
			ContextID: body.ContextID,
			Types:     body.Options.Types,
			Tags:      body.Options.Tags,
		},
	}
}

func respondSearchResult(w http.ResponseWriter, res model.SearchResult, err error) {
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{"results": res.Results, "mode": res.Mode, "degraded": res.Degraded})
}

func (s *Server) handleSearchText(w http.ResponseWriter, r *http.Request) {
	scope, aerr := scopeFromRequest(r)
	if aerr != nil {
		respondError(w, aerr)
		return
	}
	body, aerr := decodeSearchRequest(r)
	if aerr != nil {
		respondError(w, aerr)
		return
	}
	res, err := s.engine.Text(r.Context(), scope, body.Query, toSearchOptions(body))
	respondSearchResult(w, res, err)
}

func (s *Server) handleSearchSemantic(w http.ResponseWriter, r *http.Request) {
	scope, aerr := scopeFromRequest(r)
	if aerr != nil {
		respondError(w, aerr)
		return
	}
	body, aerr := decodeSearchRequest(r)
	if aerr != nil {
		respondError(w, aerr)
		return
	}
	res, err := s.engine.Semantic(r.Context(), scope, body.Query, toSearchOptions(body))
	respondSearchResult(w, res, err)
}

func (s *Server) handleSearchHybrid(w http.ResponseWriter, r *http.Request) {
	scope, aerr := scopeFromRequest(r)
	if aerr != nil {
		respondError(w, aerr)
		return
	}
	body, aerr := decodeSearchRequest(r)
	if aerr != nil {
		respondError(w, aerr)
		return
	}
	res, err := s.engine.Hybrid(r.Context(), scope, body.Query, toSearchOptions(body))
	respondSearchResult(w, res, err)
}

func (s *Server) handleSearchGraph(w http.ResponseWriter, r *http.Request) {
	scope, aerr := scopeFromRequest(r)
	if aerr != nil {
		respondError(w, aerr)
		return
	}
	body, aerr := decodeSearchRequest(r)
	if aerr != nil {
		respondError(w, aerr)
		return
	}
	res, err := s.engine.Graph(r.Context(), scope, body.Query, body.ContextID, toSearchOptions(body))
	respondSearchResult(w, res, err)
}

func (s *Server) handleContextWindow(w http.ResponseWriter, r *http.Request) {
	scope, aerr := scopeFromRequest(r)
	if aerr != nil {
		respondError(w, aerr)
		return
	}
	var body struct {
		Query     string              `json:"query"`
		NodeIDs   []string            `json:"nodeIds"`
		MaxTokens int                 `json:"maxTokens"`
		Options   struct {
			IncludeMetadata   bool                 `json:"includeMetadata"`
			PreserveStructure bool                 `json:"preserveStructure"`
			AddSeparators     bool                 `json:"addSeparators"`
			Priority          model.WindowPriority `json:"priority"`
		} `json:"options"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, apperr.Wrap(apperr.InvalidInput, "malformed request body", err))
		return
	}
	scored := make([]model.ScoredNode, 0, len(body.NodeIDs))
	for _, id := range body.NodeIDs {
		n, ok := s.store.GetNode(r.Context(), id)
		if !ok || n.UserID != scope.UserID {
			continue
		}
		scored = append(scored, model.ScoredNode{Node: n, Score: 1})
	}
	window := search.BuildContextWindow(scored, search.WindowOptions{
		MaxTokens:         body.MaxTokens,
		IncludeMetadata:   body.Options.IncludeMetadata,
		PreserveStructure: body.Options.PreserveStructure,
		AddSeparators:     body.Options.AddSeparators,
		Priority:          body.Options.Priority,
	})
	respondData(w, http.StatusOK, map[string]any{"contextWindow": window})
}

func (s *Server) handleRAGGenerate(w http.ResponseWriter, r *http.Request) {
	scope, aerr := scopeFromRequest(r)
	if aerr != nil {
		respondError(w, aerr)
		return
	}
	var body struct {
		Query         string `json:"query"`
		SeedContextID string `json:"seedContextId"`
		MaxTokens     int    `json:"maxTokens"`
		Options       struct {
			IncludeMetadata   bool `json:"includeMetadata"`
			PreserveStructure bool `json:"preserveStructure"`
			AddSeparators     bool `json:"addSeparators"`
		} `json:"options"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, apperr.Wrap(apperr.InvalidInput, "malformed request body", err))
		return
	}
	if body.Query == "" {
		respondError(w, apperr.New(apperr.InvalidInput, "query is required"))
		return
	}
	resp, err := s.engine.GenerateRAG(r.Context(), scope, search.RAGRequest{
		Query:         body.Query,
		SeedContextID: body.SeedContextID,
		MaxTokens:     body.MaxTokens,
		WindowOptions: search.WindowOptions{
			IncludeMetadata:   body.Options.IncludeMetadata,
			PreserveStructure: body.Options.PreserveStructure,
			AddSeparators:     body.Options.AddSeparators,
		},
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{
		"response":                resp.Answer,
		"confidence":              resp.Confidence,
		"sourceNodeIds":           resp.SourceNodeIDs,
		"validation":              resp.Validation,
		"hallucinationDetection":  resp.Validation.HallucinationDetected,
		"contextWindow":           resp.ContextWindow,
		"reason":                  resp.Reason,
	})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondData writes the §6 success envelope {success:true, data}.
func respondData(w http.ResponseWriter, status int, data any) {
	respondJSON(w, status, map[string]any{"success": true, "data": data})
}

// respondError writes the §6 error envelope {success:false, error:{kind,
// message, details}}, mapping the error's apperr.Kind to its HTTP status.
func respondError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	body := map[string]any{"kind": string(kind), "message": err.Error()}
	if ae, ok := apperr.As(err); ok && ae.Details != nil {
		body["details"] = ae.Details
	}
	respondJSON(w, apperr.HTTPStatus(kind), map[string]any{"success": false, "error": body})
}
