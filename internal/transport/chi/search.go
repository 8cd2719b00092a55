package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/crmdex/internal/domain"
	"github.com/kailas-cloud/crmdex/internal/engine/typesense"
	"github.com/kailas-cloud/crmdex/internal/logger"
	searchuc "github.com/kailas-cloud/crmdex/internal/usecase/search"
)

// searchRequest is the body shared by the search endpoints. Entity is
// ignored by /search/global.
type searchRequest struct {
	TenantID       string         `json:"tenant_id"`
	UnitID         string         `json:"unit_id"`
	Entity         string         `json:"entity"`
	Query          string         `json:"query"`
	SemanticWeight float64        `json:"semantic_weight"`
	TextWeight     float64        `json:"text_weight"`
	Limit          int            `json:"limit"`
	Filters        map[string]any `json:"filters"`
}

type searchHandlers struct {
	search *searchuc.Service
}

func (h *searchHandlers) decode(w http.ResponseWriter, r *http.Request) (searchRequest, bool) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return searchRequest{}, false
	}
	if req.TenantID == "" {
		writeAPIError(w, http.StatusBadRequest, "bad_request", "tenant_id is required")
		return searchRequest{}, false
	}
	if req.UnitID == "" {
		req.UnitID = domain.GlobalUnit
	}
	return req, true
}

// Hybrid handles POST /v1/search/hybrid.
func (h *searchHandlers) Hybrid(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	tctx := domain.TenantContext{TenantID: req.TenantID, UnitID: req.UnitID}
	page, err := h.search.Hybrid(r.Context(), tctx, req.Entity, req.Query, searchuc.HybridOptions{
		SemanticWeight: req.SemanticWeight,
		TextWeight:     req.TextWeight,
		Limit:          req.Limit,
	})
	if err != nil {
		h.writeSearchError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Text handles POST /v1/search/text.
func (h *searchHandlers) Text(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	tctx := domain.TenantContext{TenantID: req.TenantID, UnitID: req.UnitID}
	res, err := h.search.Text(r.Context(), tctx, req.Entity, typesense.SearchOptions{
		Query:   req.Query,
		Filters: req.Filters,
		PerPage: req.Limit,
	})
	if err != nil {
		h.writeSearchError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Semantic handles POST /v1/search/semantic.
func (h *searchHandlers) Semantic(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	tctx := domain.TenantContext{TenantID: req.TenantID, UnitID: req.UnitID}
	hits, err := h.search.Semantic(r.Context(), tctx, req.Entity, req.Query, req.Limit)
	if err != nil {
		h.writeSearchError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": hits})
}

// Global handles POST /v1/search/global.
func (h *searchHandlers) Global(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	tctx := domain.TenantContext{TenantID: req.TenantID, UnitID: req.UnitID}
	pages, err := h.search.Global(r.Context(), tctx, req.Query, req.Limit)
	if err != nil {
		h.writeSearchError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, pages)
}

func (h *searchHandlers) writeSearchError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeAPIError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrValidation):
		writeAPIError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrConfiguration):
		writeAPIError(w, http.StatusUnprocessableEntity, "configuration_error", err.Error())
	default:
		logger.FromContext(ctx).Error("Search request failed", zap.Error(err))
		writeAPIError(w, http.StatusBadGateway, "engine_error", "search engine unavailable")
	}
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}
