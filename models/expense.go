package models

import (
	"fmt"
	"time"
)

// EntityExpenses is the entity type key used by the sync layer, the change
// feed and the Postgres store. One constant per synced collection.
const (
	EntityExpenses    = "expenses"
	EntityGoals       = "goals"
	EntitySuggestions = "ai_suggestions"
	EntityProfile     = "profiles"
)

type Expense struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Amount      float64   `json:"amount"`
	Category    string    `json:"category"`
	Date        time.Time `json:"date"`
	Description string    `json:"description,omitempty"`
	IsRecurring bool      `json:"is_recurring"`
	IsNecessary bool      `json:"is_necessary"`
	CreatedAt   time.Time `json:"created_at"`
}

func (e Expense) EntityID() string { return e.ID }
func (e Expense) OwnerID() string  { return e.UserID }

// Validate rejects an expense before it ever reaches the store.
func (e Expense) Validate() error {
	if e.Amount < 0 {
		return fmt.Errorf("amount must not be negative (got %.2f)", e.Amount)
	}
	if e.Category == "" {
		return fmt.Errorf("category is required")
	}
	if e.Date.IsZero() {
		return fmt.Errorf("date is required")
	}
	return nil
}

type CreateExpenseRequest struct {
	Amount      float64 `json:"amount" binding:"required"`
	Category    string  `json:"category" binding:"required"`
	Date        string  `json:"date" binding:"required"`
	Description string  `json:"description"`
	IsRecurring bool    `json:"is_recurring"`
	IsNecessary bool    `json:"is_necessary"`
}

type UpdateExpenseRequest struct {
	Amount      *float64 `json:"amount"`
	Category    *string  `json:"category"`
	Date        *string  `json:"date"`
	Description *string  `json:"description"`
	IsRecurring *bool    `json:"is_recurring"`
	IsNecessary *bool    `json:"is_necessary"`
}
