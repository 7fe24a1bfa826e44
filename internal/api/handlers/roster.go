package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/arena/internal/contracts"
	"github.com/wonny/arena/internal/roster"
)

// JoinRequest is the body of a join
type JoinRequest struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	PortfolioID string `json:"portfolio_id"`
}

// DisqualifyRequest is the body of a disqualification
type DisqualifyRequest struct {
	Reason string `json:"reason"`
}

// Join enrolls a user
// POST /api/competitions/{id}/join
func (h *CompetitionHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req JoinRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, contracts.CodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}

	p, err := h.engine.Join(r.Context(), roster.JoinRequest{
		CompetitionID: mux.Vars(r)["id"],
		UserID:        req.UserID,
		Username:      req.Username,
		PortfolioID:   req.PortfolioID,
	})
	if err != nil {
		respondDomainError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

// ListParticipants returns the roster in join order
// GET /api/competitions/{id}/participants
func (h *CompetitionHandler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.Participants(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondDomainError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"participants": list,
		"count":        len(list),
	})
}

// Leave removes a participant
// DELETE /api/competitions/{id}/participants/{userID}
func (h *CompetitionHandler) Leave(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.engine.Leave(r.Context(), vars["id"], vars["userID"]); err != nil {
		respondDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Disqualify excludes a participant from the ranking
// POST /api/competitions/{id}/participants/{userID}/disqualify
func (h *CompetitionHandler) Disqualify(w http.ResponseWriter, r *http.Request) {
	var req DisqualifyRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, contracts.CodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}

	vars := mux.Vars(r)
	p, err := h.engine.Disqualify(r.Context(), vars["id"], vars["userID"], req.Reason)
	if err != nil {
		respondDomainError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// ListUserCompetitions returns every participation of a user
// GET /api/users/{userID}/competitions
func (h *CompetitionHandler) ListUserCompetitions(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	list := h.engine.ListByUser(userID)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":      userID,
		"participants": list,
		"count":        len(list),
	})
}
