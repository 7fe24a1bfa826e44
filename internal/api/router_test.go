package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/arena/internal/api/handlers"
	"github.com/wonny/arena/internal/contracts"
	"github.com/wonny/arena/internal/engine"
	"github.com/wonny/arena/internal/realtime/feed"
	"github.com/wonny/arena/internal/store/memory"
	"github.com/wonny/arena/pkg/logger"
)

func newTestRouter(t *testing.T) (http.Handler, *engine.Engine) {
	t.Helper()
	log := logger.NewNop()
	e := engine.New(memory.New(), engine.Config{FeedTopN: 10}, log, nil)
	t.Cleanup(e.Close)
	return NewRouter(handlers.NewCompetitionHandler(e, log), handlers.NewStreamHandler(e, 0, log), log), e
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest), rec.Body.String())
}

func createCompetition(t *testing.T, h http.Handler, maxParticipants int) contracts.Competition {
	t.Helper()
	start := time.Now().Add(time.Hour).UTC()
	rec := do(t, h, http.MethodPost, "/api/competitions", map[string]interface{}{
		"name":             "API Cup",
		"start_date":       start,
		"end_date":         start.Add(24 * time.Hour),
		"prize_pool":       "1000",
		"max_participants": maxParticipants,
		"scoring_metric":   "TOTAL_RETURN",
		"rules":            map[string]interface{}{"starting_balance": 100000},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var c contracts.Competition
	decode(t, rec, &c)
	return c
}

func TestHealth(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "arena-api")
}

func TestCompetitionFlow(t *testing.T) {
	h, _ := newTestRouter(t)
	c := createCompetition(t, h, 10)
	assert.Equal(t, contracts.StatusRegistrationOpen, c.Status)
	base := "/api/competitions/" + c.ID

	for _, u := range []string{"alice", "bob"} {
		rec := do(t, h, http.MethodPost, base+"/join", handlers.JoinRequest{UserID: u, Username: u})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := do(t, h, http.MethodPost, base+"/status", handlers.TransitionRequest{Status: contracts.StatusActive})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, base+"/valuations", map[string]interface{}{"user_id": "bob", "current_balance": 125000})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var entry contracts.LeaderboardEntry
	decode(t, rec, &entry)
	assert.Equal(t, 1, entry.Rank)
	assert.Equal(t, 25000.0, entry.Score)

	rec = do(t, h, http.MethodGet, base+"/leaderboard?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page engine.LeaderboardPage
	decode(t, rec, &page)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "bob", page.Entries[0].UserID)

	rec = do(t, h, http.MethodGet, base+"/rank/alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &entry)
	assert.Equal(t, 2, entry.Rank)

	rec = do(t, h, http.MethodGet, "/api/users/alice/competitions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), c.ID)

	rec = do(t, h, http.MethodPost, base+"/status", handlers.TransitionRequest{Status: contracts.StatusCompleted})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, base+"/results", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var results contracts.Results
	decode(t, rec, &results)
	require.Len(t, results.Payouts, 1)
	assert.Equal(t, "bob", results.Payouts[0].UserID)
}

func TestErrorMapping(t *testing.T) {
	h, _ := newTestRouter(t)
	c := createCompetition(t, h, 1)
	base := "/api/competitions/" + c.ID

	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, base+"/join", handlers.JoinRequest{UserID: "a"}).Code)
	open := "/api/competitions/" + createCompetition(t, h, 5).ID
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, open+"/join", handlers.JoinRequest{UserID: "a"}).Code)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"unknown competition", http.MethodGet, "/api/competitions/missing", nil, http.StatusNotFound, contracts.CodeCompetitionNotFound},
		{"already joined", http.MethodPost, open + "/join", handlers.JoinRequest{UserID: "a"}, http.StatusConflict, contracts.CodeAlreadyJoined},
		{"full", http.MethodPost, base + "/join", handlers.JoinRequest{UserID: "b"}, http.StatusConflict, contracts.CodeCompetitionFull},
		{"bad transition", http.MethodPost, base + "/status", handlers.TransitionRequest{Status: contracts.StatusCompleted}, http.StatusConflict, contracts.CodeInvalidStatusTransition},
		{"not active", http.MethodPost, base + "/valuations", map[string]interface{}{"user_id": "a", "current_balance": 1}, http.StatusConflict, contracts.CodeCompetitionNotActive},
		{"rules locked", http.MethodPut, base + "/rules", contracts.Rules{StartingBalance: 5}, http.StatusConflict, contracts.CodeRulesLocked},
		{"no results", http.MethodGet, base + "/results", nil, http.StatusNotFound, contracts.CodeResultsNotAvailable},
		{"unknown rank", http.MethodGet, base + "/rank/nobody", nil, http.StatusNotFound, contracts.CodeParticipantNotFound},
		{"bad limit", http.MethodGet, base + "/leaderboard?limit=-1", nil, http.StatusBadRequest, contracts.CodeInvalidRequest},
		{"bad status filter", http.MethodGet, "/api/competitions?status=NOPE", nil, http.StatusBadRequest, contracts.CodeInvalidRequest},
		{"invalid spec", http.MethodPost, "/api/competitions", map[string]interface{}{"name": ""}, http.StatusUnprocessableEntity, contracts.CodeInvalidCompetitionSpec},
		{"unknown field", http.MethodPost, "/api/competitions", map[string]interface{}{"bogus": 1}, http.StatusBadRequest, contracts.CodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())

			var body handlers.ErrorResponse
			decode(t, rec, &body)
			assert.Equal(t, tt.code, body.Error)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestLeaveAndDisqualify(t *testing.T) {
	h, _ := newTestRouter(t)
	c := createCompetition(t, h, 10)
	base := "/api/competitions/" + c.ID

	for _, u := range []string{"a", "b", "c"} {
		require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, base+"/join", handlers.JoinRequest{UserID: u}).Code)
	}

	rec := do(t, h, http.MethodDelete, base+"/participants/b", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodPost, base+"/participants/c/disqualify", handlers.DisqualifyRequest{Reason: "collusion"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var p contracts.Participant
	decode(t, rec, &p)
	assert.True(t, p.IsDisqualified)

	rec = do(t, h, http.MethodGet, base+"/participants", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var roster struct {
		Count int `json:"count"`
	}
	decode(t, rec, &roster)
	assert.Equal(t, 2, roster.Count)

	rec = do(t, h, http.MethodGet, base+"/leaderboard", nil)
	var page engine.LeaderboardPage
	decode(t, rec, &page)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "a", page.Entries[0].UserID)

	rec = do(t, h, http.MethodGet, base+"/prizes", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodGet, base+"/stats", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStream(t *testing.T) {
	h, e := newTestRouter(t)
	c := createCompetition(t, h, 10)
	base := "/api/competitions/" + c.ID
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, base+"/join", handlers.JoinRequest{UserID: "a"}).Code)

	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + base + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var snap feed.Snapshot
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, c.ID, snap.CompetitionID)
	require.Len(t, snap.Entries, 1)

	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, base+"/join", handlers.JoinRequest{UserID: "b"}).Code)
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, 2, snap.Total)

	assert.Eventually(t, func() bool { return e.Feed().Subscribers(c.ID) == 1 }, time.Second, 10*time.Millisecond)
	conn.Close()
	assert.Eventually(t, func() bool { return e.Feed().Subscribers(c.ID) == 0 }, 2*time.Second, 10*time.Millisecond)

	rec := do(t, h, http.MethodGet, "/api/competitions/missing/stream", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStream_ClosedFeedSendsCloseFrame(t *testing.T) {
	h, e := newTestRouter(t)
	c := createCompetition(t, h, 10)
	e.Close()

	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/competitions/" + c.ID + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseInternalServerErr), err.Error())
}
