package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"budget-sync/engine"
	"budget-sync/middleware"
	"budget-sync/models"
)

type GoalHandler struct {
	Store engine.Source[models.Goal]
	Hub   *WSHandler
}

func (h *GoalHandler) GetGoals(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	goals, err := h.Store.Snapshot(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch goals"})
		return
	}
	if goals == nil {
		goals = []models.Goal{}
	}
	c.JSON(http.StatusOK, goals)
}

func (h *GoalHandler) CreateGoal(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.CreateGoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	goal := models.Goal{
		UserID:       userID,
		Title:        req.Title,
		TargetAmount: req.TargetAmount,
		SavedAmount:  req.SavedAmount,
	}
	if req.TargetDate != "" {
		date, err := time.Parse("2006-01-02", req.TargetDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "target_date must be YYYY-MM-DD"})
			return
		}
		goal.TargetDate = &date
	}
	if err := goal.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.Store.Mutate(c.Request.Context(), engine.Mutation[models.Goal]{
		Kind:    engine.MutationInsert,
		UserID:  userID,
		Payload: goal,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create goal"})
		return
	}

	h.Hub.BroadcastChange(models.EntityGoals, userID)
	c.JSON(http.StatusCreated, created)
}

func (h *GoalHandler) UpdateGoal(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	goalID := c.Param("id")

	var req models.UpdateGoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	current, err := h.findGoal(c, userID, goalID)
	if err != nil {
		return
	}

	if req.Title != nil {
		current.Title = *req.Title
	}
	if req.TargetAmount != nil {
		current.TargetAmount = *req.TargetAmount
	}
	if req.SavedAmount != nil {
		current.SavedAmount = *req.SavedAmount
	}
	if req.TargetDate != nil {
		date, err := time.Parse("2006-01-02", *req.TargetDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "target_date must be YYYY-MM-DD"})
			return
		}
		current.TargetDate = &date
	}
	if req.IsCompleted != nil {
		current.IsCompleted = *req.IsCompleted
	}

	if err := current.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.Store.Mutate(c.Request.Context(), engine.Mutation[models.Goal]{
		Kind:    engine.MutationUpdate,
		ID:      goalID,
		UserID:  userID,
		Payload: current,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update goal"})
		return
	}

	h.Hub.BroadcastChange(models.EntityGoals, userID)
	c.JSON(http.StatusOK, updated)
}

func (h *GoalHandler) DeleteGoal(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	_, err := h.Store.Mutate(c.Request.Context(), engine.Mutation[models.Goal]{
		Kind:   engine.MutationDelete,
		ID:     c.Param("id"),
		UserID: userID,
	})
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Goal not found"})
		return
	}

	h.Hub.BroadcastChange(models.EntityGoals, userID)
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *GoalHandler) findGoal(c *gin.Context, userID, goalID string) (models.Goal, error) {
	goals, err := h.Store.Snapshot(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch goal"})
		return models.Goal{}, err
	}
	for _, g := range goals {
		if g.ID == goalID {
			return g, nil
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "Goal not found"})
	return models.Goal{}, errNotFound
}
