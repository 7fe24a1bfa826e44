package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/arena/internal/api/handlers"
	"github.com/wonny/arena/internal/contracts"
	"github.com/wonny/arena/pkg/logger"
)

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(competitions *handlers.CompetitionHandler, stream *handlers.StreamHandler, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Competitions
	api.HandleFunc("/competitions", competitions.ListCompetitions).Methods("GET")
	api.HandleFunc("/competitions", competitions.CreateCompetition).Methods("POST")
	api.HandleFunc("/competitions/{id}", competitions.GetCompetition).Methods("GET")
	api.HandleFunc("/competitions/{id}/status", competitions.TransitionStatus).Methods("POST")
	api.HandleFunc("/competitions/{id}/rules", competitions.UpdateRules).Methods("PUT")
	api.HandleFunc("/competitions/{id}/stats", competitions.GetStats).Methods("GET")
	api.HandleFunc("/competitions/{id}/prizes", competitions.GetPrizes).Methods("GET")
	api.HandleFunc("/competitions/{id}/results", competitions.GetResults).Methods("GET")

	// Roster
	api.HandleFunc("/competitions/{id}/join", competitions.Join).Methods("POST")
	api.HandleFunc("/competitions/{id}/participants", competitions.ListParticipants).Methods("GET")
	api.HandleFunc("/competitions/{id}/participants/{userID}", competitions.Leave).Methods("DELETE")
	api.HandleFunc("/competitions/{id}/participants/{userID}/disqualify", competitions.Disqualify).Methods("POST")
	api.HandleFunc("/users/{userID}/competitions", competitions.ListUserCompetitions).Methods("GET")

	// Leaderboard
	api.HandleFunc("/competitions/{id}/leaderboard", competitions.GetLeaderboard).Methods("GET")
	api.HandleFunc("/competitions/{id}/rank/{userID}", competitions.GetUserRank).Methods("GET")
	api.HandleFunc("/competitions/{id}/valuations", competitions.ReportValuation).Methods("POST")
	if stream != nil {
		api.HandleFunc("/competitions/{id}/stream", stream.Stream).Methods("GET")
	}

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "arena-api",
	})
}

// statusRecorder captures the status code for request logs
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// websocket upgrades need the raw writer
			if r.Header.Get("Upgrade") != "" {
				next.ServeHTTP(w, r)
				return
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(handlers.ErrorResponse{
						Error:   contracts.CodeInternal,
						Message: "internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
