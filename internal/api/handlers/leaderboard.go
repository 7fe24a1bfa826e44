package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/arena/internal/contracts"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// GetLeaderboard returns one page of the ranking
// GET /api/competitions/{id}/leaderboard?limit=50&offset=0
func (h *CompetitionHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", defaultPageSize)
	if !ok {
		respondError(w, http.StatusBadRequest, contracts.CodeInvalidRequest, "limit must be a non-negative integer")
		return
	}
	offset, ok := queryInt(r, "offset", 0)
	if !ok {
		respondError(w, http.StatusBadRequest, contracts.CodeInvalidRequest, "offset must be a non-negative integer")
		return
	}
	if limit == 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	page, err := h.engine.GetLeaderboard(r.Context(), mux.Vars(r)["id"], limit, offset)
	if err != nil {
		respondDomainError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// GetUserRank returns one participant's entry
// GET /api/competitions/{id}/rank/{userID}
func (h *CompetitionHandler) GetUserRank(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	entry, err := h.engine.GetUserRank(r.Context(), vars["id"], vars["userID"])
	if err != nil {
		respondDomainError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

// ReportValuation applies a pushed valuation
// POST /api/competitions/{id}/valuations
func (h *CompetitionHandler) ReportValuation(w http.ResponseWriter, r *http.Request) {
	var v contracts.Valuation
	if err := decodeBody(r, &v); err != nil {
		respondError(w, http.StatusBadRequest, contracts.CodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}

	id := mux.Vars(r)["id"]
	if v.CompetitionID != "" && v.CompetitionID != id {
		respondError(w, http.StatusBadRequest, contracts.CodeInvalidRequest, "competition_id does not match the path")
		return
	}
	v.CompetitionID = id
	if v.Source == "" {
		v.Source = contracts.ValuationSourcePush
	}

	entry, err := h.engine.ReportValuation(r.Context(), v)
	if err != nil {
		respondDomainError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}
