package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"budget-sync/engine"
	"budget-sync/middleware"
	"budget-sync/models"
)

type ProfileHandler struct {
	Store engine.Source[models.Profile]
	Hub   *WSHandler
}

func (h *ProfileHandler) GetProfile(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	profiles, err := h.Store.Snapshot(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch profile"})
		return
	}
	if len(profiles) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found"})
		return
	}
	c.JSON(http.StatusOK, profiles[0])
}

func (h *ProfileHandler) UpdateProfile(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	profiles, err := h.Store.Snapshot(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch profile"})
		return
	}
	if len(profiles) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found"})
		return
	}
	current := profiles[0]

	if req.FullName != nil {
		current.FullName = *req.FullName
	}
	if req.MonthlyIncome != nil {
		current.MonthlyIncome = *req.MonthlyIncome
	}
	if req.BudgetAllocations != nil {
		current.BudgetAllocations = req.BudgetAllocations
	}
	if req.OnboardingCompleted != nil {
		current.OnboardingCompleted = *req.OnboardingCompleted
	}

	if err := current.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.Store.Mutate(c.Request.Context(), engine.Mutation[models.Profile]{
		Kind:    engine.MutationUpdate,
		ID:      userID,
		UserID:  userID,
		Payload: current,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
		return
	}

	h.Hub.BroadcastChange(models.EntityProfile, userID)
	c.JSON(http.StatusOK, updated)
}
