package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edvigil/edvigil-backend/internal/config"
	"github.com/edvigil/edvigil-backend/internal/service"
)

const monitorPingInterval = 30 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// MonitorWSHandler streams live attempt activity for one exam to its
// teacher over WebSocket, relaying the per-exam Redis Pub/Sub channel.
type MonitorWSHandler struct {
	rdb         *redis.Client
	examService *service.ExamService
	log         zerolog.Logger
	upgrader    websocket.Upgrader
}

// NewMonitorWSHandler creates a new MonitorWSHandler.
func NewMonitorWSHandler(rdb *redis.Client, examService *service.ExamService, log zerolog.Logger, allowedOrigins []string) *MonitorWSHandler {
	return &MonitorWSHandler{
		rdb:         rdb,
		examService: examService,
		log:         log.With().Str("component", "monitor_ws_handler").Logger(),
		upgrader:    buildUpgrader(allowedOrigins),
	}
}

// MonitorExam godoc
// WS /ws/v1/teacher/exams/:exam_id/monitor
// Auth comes from the ?token= query param since browsers cannot attach
// headers to WebSocket upgrades.
func (h *MonitorWSHandler) MonitorExam(c *gin.Context) {
	exam, ok := ownedExamFor(c, h.examService)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	reqCtx := c.Request.Context()
	channel := config.CacheKey.ExamMonitorChannel(exam.ID.String())
	pubsub := h.rdb.Subscribe(reqCtx, channel)
	defer pubsub.Close()

	wsLog := h.log.With().Str("exam_id", exam.ID.String()).Logger()
	wsLog.Info().Msg("Teacher attached to live monitor")

	// Drain client frames so close handshakes and pongs are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(monitorPingInterval)
	defer pingTicker.Stop()

	hello, _ := json.Marshal(gin.H{
		"type":     "hello",
		"exam_id":  exam.ID,
		"title":    exam.Title,
		"duration": exam.DurationMinutes,
	})
	if err := h.write(conn, hello); err != nil {
		return
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-reqCtx.Done():
			wsLog.Info().Msg("Teacher disconnected from live monitor")
			return

		case msg, open := <-ch:
			if !open {
				return
			}
			// Relay the raw JSON published by the monitor service.
			if err := h.write(conn, []byte(msg.Payload)); err != nil {
				wsLog.Warn().Err(err).Msg("Monitor write failed, closing")
				return
			}

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *MonitorWSHandler) write(conn *websocket.Conn, payload []byte) error {
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, payload)
}
