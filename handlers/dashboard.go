package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"budget-sync/middleware"
	"budget-sync/services"
)

// how long an on-demand dashboard may take to finish its initial load
const dashboardReadyTimeout = 10 * time.Second

// DashboardHandler serves the derived view over plain HTTP for clients that
// are not holding a websocket open. The live session path goes through the
// hub instead.
type DashboardHandler struct {
	Dashboards *services.DashboardManager
}

// GetDashboard returns the current derived view. When the user already has a
// live dashboard the snapshot is free; otherwise one is opened for the
// duration of the request.
func (h *DashboardHandler) GetDashboard(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	if d, ok := h.Dashboards.Get(userID); ok {
		c.JSON(http.StatusOK, d.View())
		return
	}

	d, err := h.Dashboards.Connect(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load dashboard"})
		return
	}
	defer h.Dashboards.Disconnect(userID)

	// serve the first view only once the initial load has settled
	waitCtx, cancel := context.WithTimeout(c.Request.Context(), dashboardReadyTimeout)
	defer cancel()
	if err := d.WaitReady(waitCtx); err != nil {
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Dashboard is still loading"})
		return
	}

	c.JSON(http.StatusOK, d.View())
}

// DismissAlert hides one alert for the user's live session.
func (h *DashboardHandler) DismissAlert(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	d, ok := h.Dashboards.Get(userID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No active dashboard"})
		return
	}

	d.Dismiss(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"dismissed": true})
}
