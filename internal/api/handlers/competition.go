package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/arena/internal/contracts"
	"github.com/wonny/arena/internal/engine"
	"github.com/wonny/arena/internal/registry"
	"github.com/wonny/arena/pkg/logger"
)

// CompetitionHandler handles competition, roster and leaderboard endpoints
// ⭐ SSOT: 대회 API 핸들러는 이 구조체에서만
type CompetitionHandler struct {
	engine *engine.Engine
	logger *logger.Logger
}

// NewCompetitionHandler creates a new competition handler
func NewCompetitionHandler(e *engine.Engine, log *logger.Logger) *CompetitionHandler {
	return &CompetitionHandler{
		engine: e,
		logger: log.Component("api"),
	}
}

// ListCompetitions returns competitions, optionally filtered by status
// GET /api/competitions?status=ACTIVE
func (h *CompetitionHandler) ListCompetitions(w http.ResponseWriter, r *http.Request) {
	filter := registry.ListFilter{}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := contracts.Status(raw)
		if !status.Valid() {
			respondError(w, http.StatusBadRequest, contracts.CodeInvalidRequest, "unknown status "+raw)
			return
		}
		filter.Status = status
	}

	list, err := h.engine.ListCompetitions(r.Context(), filter)
	if err != nil {
		respondDomainError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"competitions": list,
		"count":        len(list),
	})
}

// GetCompetition returns one competition
// GET /api/competitions/{id}
func (h *CompetitionHandler) GetCompetition(w http.ResponseWriter, r *http.Request) {
	c, err := h.engine.GetCompetition(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondDomainError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// CreateCompetition registers a competition
// POST /api/competitions
func (h *CompetitionHandler) CreateCompetition(w http.ResponseWriter, r *http.Request) {
	var req registry.CreateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, contracts.CodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}

	c, err := h.engine.CreateCompetition(r.Context(), req)
	if err != nil {
		respondDomainError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

// TransitionRequest is the body of a status change
type TransitionRequest struct {
	Status contracts.Status `json:"status"`
}

// TransitionStatus moves a competition to a new status
// POST /api/competitions/{id}/status
func (h *CompetitionHandler) TransitionStatus(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, contracts.CodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}

	c, err := h.engine.TransitionStatus(r.Context(), mux.Vars(r)["id"], req.Status)
	if err != nil {
		respondDomainError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// UpdateRules replaces the rules of an UPCOMING competition
// PUT /api/competitions/{id}/rules
func (h *CompetitionHandler) UpdateRules(w http.ResponseWriter, r *http.Request) {
	var rules contracts.Rules
	if err := decodeBody(r, &rules); err != nil {
		respondError(w, http.StatusBadRequest, contracts.CodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}

	c, err := h.engine.UpdateRules(r.Context(), mux.Vars(r)["id"], rules)
	if err != nil {
		respondDomainError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// GetStats returns aggregate statistics
// GET /api/competitions/{id}/stats
func (h *CompetitionHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.GetCompetitionStats(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondDomainError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// GetPrizes returns the prize tiers over the current field
// GET /api/competitions/{id}/prizes
func (h *CompetitionHandler) GetPrizes(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	tiers, err := h.engine.PrizeTiers(r.Context(), id)
	if err != nil {
		respondDomainError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"competition_id": id,
		"tiers":          tiers,
	})
}

// GetResults returns the final results of a completed competition
// GET /api/competitions/{id}/results
func (h *CompetitionHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.engine.Results(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondDomainError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, results)
}
