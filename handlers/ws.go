package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/olahol/melody"

	"budget-sync/middleware"
	"budget-sync/realtime"
	"budget-sync/services"
	"budget-sync/utils"
)

// WSHandler is the websocket hub. Every session is keyed by its
// authenticated user id; the hub broadcasts change signals after accepted
// mutations and pushes recomputed dashboard views, so it doubles as the
// services.Publisher implementation.
type WSHandler struct {
	M          *melody.Melody
	Dashboards *services.DashboardManager
}

func NewWSHandler() *WSHandler {
	m := melody.New()

	m.Config.MaxMessageSize = 1024 * 1024

	// Keep-Alive Configuration (Critical for cloud hosting)
	m.Config.PingPeriod = 30 * time.Second
	m.Config.PongWait = 60 * time.Second

	h := &WSHandler{M: m}

	m.HandleConnect(func(s *melody.Session) {
		userID := sessionUserID(s)
		utils.LogWebSocket("connected", userID)
		if h.Dashboards == nil || userID == "" {
			return
		}
		if _, err := h.Dashboards.Connect(context.Background(), userID); err != nil {
			utils.SafeError("failed to open dashboard for user %s: %v", utils.MaskID(userID), err)
		}
	})

	m.HandleDisconnect(func(s *melody.Session) {
		userID := sessionUserID(s)
		utils.LogWebSocket("disconnected", userID)
		if h.Dashboards != nil && userID != "" {
			h.Dashboards.Disconnect(userID)
		}
	})

	m.HandleError(func(s *melody.Session, err error) {
		utils.SafeError("websocket error: %v", err)
	})

	return h
}

// HandleWS upgrades the request to a websocket session bound to the
// authenticated user.
func (h *WSHandler) HandleWS(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	err := h.M.HandleRequestWithKeys(c.Writer, c.Request, map[string]interface{}{
		"user_id": userID,
	})
	if err != nil {
		utils.SafeError("failed to upgrade websocket: %v", err)
	}
}

// BroadcastChange tells every session of one user that an entity type
// changed remotely. The payload carries no data; clients refetch.
func (h *WSHandler) BroadcastChange(entityType, userID string) {
	msg, err := json.Marshal(realtime.ChangeSignal{
		Type:       "change",
		EntityType: entityType,
		UserID:     userID,
	})
	if err != nil {
		return
	}

	if err := h.broadcastToUser(userID, msg); err != nil {
		utils.SafeWarn("failed to broadcast %s change to user %s: %v", entityType, utils.MaskID(userID), err)
	}
}

// PublishDashboard pushes a recomputed dashboard view to the user's
// sessions. Implements services.Publisher.
func (h *WSHandler) PublishDashboard(userID string, view services.DashboardView) {
	payload := struct {
		Type string                 `json:"type"`
		Data services.DashboardView `json:"data"`
	}{Type: "dashboard", Data: view}

	msg, err := json.Marshal(payload)
	if err != nil {
		utils.SafeError("failed to marshal dashboard view: %v", err)
		return
	}

	if err := h.broadcastToUser(userID, msg); err != nil {
		utils.SafeWarn("failed to push dashboard to user %s: %v", utils.MaskID(userID), err)
	}
}

func (h *WSHandler) broadcastToUser(userID string, msg []byte) error {
	return h.M.BroadcastFilter(msg, func(q *melody.Session) bool {
		id, exists := q.Get("user_id")
		return exists && id == userID
	})
}

func sessionUserID(s *melody.Session) string {
	if id, exists := s.Get("user_id"); exists {
		if str, ok := id.(string); ok {
			return str
		}
	}
	return ""
}
