package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/wonny/arena/internal/contracts"
	"github.com/wonny/arena/pkg/logger"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusByCode maps domain error codes to HTTP statuses
// ⭐ SSOT: 도메인 에러 → HTTP 상태 매핑은 여기서만
var statusByCode = map[string]int{
	contracts.CodeCompetitionNotFound:       http.StatusNotFound,
	contracts.CodeParticipantNotFound:       http.StatusNotFound,
	contracts.CodeResultsNotAvailable:       http.StatusNotFound,
	contracts.CodeAlreadyJoined:             http.StatusConflict,
	contracts.CodeCompetitionFull:           http.StatusConflict,
	contracts.CodeInvalidStatusTransition:   http.StatusConflict,
	contracts.CodeRulesLocked:               http.StatusConflict,
	contracts.CodeCompetitionNotActive:      http.StatusConflict,
	contracts.CodeStaleValuation:            http.StatusConflict,
	contracts.CodeRegistrationClosed:        http.StatusUnprocessableEntity,
	contracts.CodeInvalidCompetitionSpec:    http.StatusUnprocessableEntity,
	contracts.CodeInvalidRulesConfiguration: http.StatusUnprocessableEntity,
	contracts.CodeInvalidScoringMetric:      http.StatusUnprocessableEntity,
	contracts.CodeInvalidValuation:          http.StatusUnprocessableEntity,
	contracts.CodeInvalidRequest:            http.StatusBadRequest,
}

// StatusFor returns the HTTP status of an error
func StatusFor(err error) int {
	if status, ok := statusByCode[contracts.ErrorCode(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// respondDomainError writes err with its mapped status. Internal errors are logged and masked.
func respondDomainError(w http.ResponseWriter, log *logger.Logger, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).Error("Request failed")
		respondError(w, status, contracts.CodeInternal, "internal server error")
		return
	}
	respondError(w, status, contracts.ErrorCode(err), err.Error())
}

func decodeBody(r *http.Request, dest interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

// queryInt parses an optional non-negative integer query parameter
func queryInt(r *http.Request, name string, defaultValue int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultValue, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
