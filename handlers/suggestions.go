package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"budget-sync/engine"
	"budget-sync/middleware"
	"budget-sync/models"
	"budget-sync/services"
	"budget-sync/utils"
)

type SuggestionHandler struct {
	Store     engine.Source[models.Suggestion]
	Generator *services.SuggestionService
	Expenses  engine.Source[models.Expense]
	Goals     engine.Source[models.Goal]
	Profiles  engine.Source[models.Profile]
	Hub       *WSHandler
}

func (h *SuggestionHandler) GetSuggestions(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	suggestions, err := h.Store.Snapshot(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch suggestions"})
		return
	}
	if suggestions == nil {
		suggestions = []models.Suggestion{}
	}
	c.JSON(http.StatusOK, suggestions)
}

// GenerateSuggestions runs the rule engine over the user's current data and
// persists a fresh batch.
func (h *SuggestionHandler) GenerateSuggestions(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	ctx := c.Request.Context()

	expenses, err := h.Expenses.Snapshot(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch expenses"})
		return
	}
	goals, err := h.Goals.Snapshot(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch goals"})
		return
	}
	profiles, err := h.Profiles.Snapshot(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch profile"})
		return
	}
	var profile *models.Profile
	if len(profiles) > 0 {
		profile = &profiles[0]
	}

	generated, err := h.Generator.Generate(ctx, userID, services.SuggestionInput{
		Expenses: expenses,
		Goals:    goals,
		Profile:  profile,
		Now:      time.Now(),
	})
	if err != nil {
		utils.SafeError("suggestion generation failed for user %s: %v", utils.MaskID(userID), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate suggestions"})
		return
	}

	h.Hub.BroadcastChange(models.EntitySuggestions, userID)
	c.JSON(http.StatusOK, gin.H{"generated": len(generated), "suggestions": generated})
}

// SaveSuggestion marks a suggestion as kept so the pruner leaves it alone.
func (h *SuggestionHandler) SaveSuggestion(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req struct {
		IsSaved bool `json:"is_saved"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.Store.Mutate(c.Request.Context(), engine.Mutation[models.Suggestion]{
		Kind:    engine.MutationUpdate,
		ID:      c.Param("id"),
		UserID:  userID,
		Payload: models.Suggestion{IsSaved: req.IsSaved},
	})
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Suggestion not found"})
		return
	}

	h.Hub.BroadcastChange(models.EntitySuggestions, userID)
	c.JSON(http.StatusOK, updated)
}

func (h *SuggestionHandler) DeleteSuggestion(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	_, err := h.Store.Mutate(c.Request.Context(), engine.Mutation[models.Suggestion]{
		Kind:   engine.MutationDelete,
		ID:     c.Param("id"),
		UserID: userID,
	})
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Suggestion not found"})
		return
	}

	h.Hub.BroadcastChange(models.EntitySuggestions, userID)
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
