package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"budget-sync/engine"
	"budget-sync/middleware"
	"budget-sync/models"
)

var errNotFound = errors.New("not found")

// ExpenseHandler exposes expense mutations over HTTP. Writes go straight to
// the store; synced collections pick the change up through the feed, so the
// handler never touches collection state.
type ExpenseHandler struct {
	Store engine.Source[models.Expense]
	Hub   *WSHandler
}

func (h *ExpenseHandler) GetExpenses(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	expenses, err := h.Store.Snapshot(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch expenses"})
		return
	}
	if expenses == nil {
		expenses = []models.Expense{}
	}
	c.JSON(http.StatusOK, expenses)
}

func (h *ExpenseHandler) CreateExpense(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.CreateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	expense := models.Expense{
		UserID:      userID,
		Amount:      req.Amount,
		Category:    req.Category,
		Date:        date,
		Description: req.Description,
		IsRecurring: req.IsRecurring,
		IsNecessary: req.IsNecessary,
	}
	if err := expense.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.Store.Mutate(c.Request.Context(), engine.Mutation[models.Expense]{
		Kind:    engine.MutationInsert,
		UserID:  userID,
		Payload: expense,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create expense"})
		return
	}

	h.Hub.BroadcastChange(models.EntityExpenses, userID)
	c.JSON(http.StatusCreated, created)
}

func (h *ExpenseHandler) UpdateExpense(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	expenseID := c.Param("id")

	var req models.UpdateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Partial update: load the current row, then overlay the provided fields.
	current, err := h.findExpense(c, userID, expenseID)
	if err != nil {
		return // response already written
	}

	if req.Amount != nil {
		current.Amount = *req.Amount
	}
	if req.Category != nil {
		current.Category = *req.Category
	}
	if req.Date != nil {
		date, err := time.Parse("2006-01-02", *req.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		current.Date = date
	}
	if req.Description != nil {
		current.Description = *req.Description
	}
	if req.IsRecurring != nil {
		current.IsRecurring = *req.IsRecurring
	}
	if req.IsNecessary != nil {
		current.IsNecessary = *req.IsNecessary
	}

	if err := current.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.Store.Mutate(c.Request.Context(), engine.Mutation[models.Expense]{
		Kind:    engine.MutationUpdate,
		ID:      expenseID,
		UserID:  userID,
		Payload: current,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update expense"})
		return
	}

	h.Hub.BroadcastChange(models.EntityExpenses, userID)
	c.JSON(http.StatusOK, updated)
}

func (h *ExpenseHandler) DeleteExpense(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	_, err := h.Store.Mutate(c.Request.Context(), engine.Mutation[models.Expense]{
		Kind:   engine.MutationDelete,
		ID:     c.Param("id"),
		UserID: userID,
	})
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Expense not found"})
		return
	}

	h.Hub.BroadcastChange(models.EntityExpenses, userID)
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *ExpenseHandler) findExpense(c *gin.Context, userID, expenseID string) (models.Expense, error) {
	expenses, err := h.Store.Snapshot(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch expense"})
		return models.Expense{}, err
	}
	for _, e := range expenses {
		if e.ID == expenseID {
			return e, nil
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "Expense not found"})
	return models.Expense{}, errNotFound
}
