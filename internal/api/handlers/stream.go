package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/wonny/arena/internal/contracts"
	"github.com/wonny/arena/internal/engine"
	"github.com/wonny/arena/internal/realtime/feed"
	"github.com/wonny/arena/pkg/logger"
)

const writeWait = 10 * time.Second

// StreamHandler pushes leaderboard snapshots over websocket
type StreamHandler struct {
	engine          *engine.Engine
	defaultInterval time.Duration
	upgrader        websocket.Upgrader
	logger          *logger.Logger
}

// NewStreamHandler creates a stream handler. defaultInterval 0 means push on every rebuild.
func NewStreamHandler(e *engine.Engine, defaultInterval time.Duration, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		engine:          e,
		defaultInterval: defaultInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: log.Component("stream"),
	}
}

// Stream subscribes the connection to a competition's feed until the client goes away
// GET /api/competitions/{id}/stream?interval=2s
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	interval := h.defaultInterval
	if raw := r.URL.Query().Get("interval"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			respondError(w, http.StatusBadRequest, contracts.CodeInvalidRequest, "interval must be a non-negative duration")
			return
		}
		interval = d
	}

	// 업그레이드 전에 대회 존재 확인 (404를 JSON으로 돌려주기 위해)
	if _, err := h.engine.GetCompetition(r.Context(), id); err != nil {
		respondDomainError(w, h.logger, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	log := h.logger.WithField("competition_id", id)
	unsubscribe, err := h.engine.Subscribe(r.Context(), id, interval, func(s feed.Snapshot) error {
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			log.WithError(err).Debug("Stream deadline failed, closing")
			return feed.ErrStop
		}
		if err := conn.WriteJSON(s); err != nil {
			log.WithError(err).Debug("Stream write failed, closing")
			return feed.ErrStop
		}
		return nil
	})
	if err != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error())
		if werr := conn.WriteMessage(websocket.CloseMessage, msg); werr != nil {
			log.WithError(werr).Debug("Stream close frame failed")
		}
		return
	}
	defer unsubscribe()

	log.Debug("Stream client connected")

	// 클라이언트 메시지는 무시, 연결 종료 감지용
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			log.Debug("Stream client disconnected")
			return
		}
	}
}
