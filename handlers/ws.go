package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/olahol/melody"

	"github.com/hade267/doan-VND-sub000/middleware"
	"github.com/hade267/doan-VND-sub000/utils"
)

const wsUserKey = "user_id"

type wsMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// WSHandler pushes per-user events such as budget alerts over websockets.
type WSHandler struct {
	M      *melody.Melody
	logger *slog.Logger
}

// NewWSHandler builds the hub. Browsers may only connect from allowedOrigins;
// requests without an Origin header (non-browser clients) are accepted.
func NewWSHandler(logger *slog.Logger, allowedOrigins []string) *WSHandler {
	m := melody.New()
	m.Upgrader.CheckOrigin = originChecker(allowedOrigins)

	m.Config.MaxMessageSize = 4096

	// Keep-alive for proxies that drop idle connections
	m.Config.PingPeriod = 30 * time.Second
	m.Config.PongWait = 60 * time.Second

	m.HandleConnect(func(s *melody.Session) {
		userID, _ := s.Get(wsUserKey)
		logger.Debug("websocket connected", "user_id", userID)
	})

	m.HandleDisconnect(func(s *melody.Session) {
		userID, _ := s.Get(wsUserKey)
		logger.Debug("websocket disconnected", "user_id", userID)
	})

	m.HandleError(func(s *melody.Session, err error) {
		logger.Warn("websocket error", "error", err)
	})

	return &WSHandler{M: m, logger: logger}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if strings.EqualFold(origin, o) {
				return true
			}
		}
		return false
	}
}

// HandleWS upgrades an authenticated request and tags the session with its user.
func (h *WSHandler) HandleWS(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		fail(c, utils.Unauthorized("Authentication required"))
		return
	}

	err := h.M.HandleRequestWithKeys(c.Writer, c.Request, map[string]interface{}{wsUserKey: userID})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
	}
}

// NotifyUser sends {"type", "data"} to every open session of the user.
func (h *WSHandler) NotifyUser(userID, msgType string, payload interface{}) {
	msg, err := json.Marshal(wsMessage{Type: msgType, Data: payload})
	if err != nil {
		h.logger.Error("websocket marshal failed", "type", msgType, "error", err)
		return
	}

	err = h.M.BroadcastFilter(msg, func(q *melody.Session) bool {
		id, exists := q.Get(wsUserKey)
		return exists && id == userID
	})
	if err != nil {
		h.logger.Warn("websocket broadcast failed", "user_id", userID, "error", err)
	}
}

func (h *WSHandler) Close() error {
	return h.M.Close()
}
