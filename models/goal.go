package models

import (
	"fmt"
	"time"
)

// Goal is a savings goal. SavedAmount is deliberately NOT clamped to
// TargetAmount anywhere in this layer: over-saving is a valid state and the
// display layer decides how to render it.
type Goal struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Title        string     `json:"goal_title"`
	TargetAmount float64    `json:"target_amount"`
	SavedAmount  float64    `json:"saved_amount"`
	TargetDate   *time.Time `json:"target_date,omitempty"`
	IsCompleted  bool       `json:"is_completed"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (g Goal) EntityID() string { return g.ID }
func (g Goal) OwnerID() string  { return g.UserID }

func (g Goal) Validate() error {
	if g.Title == "" {
		return fmt.Errorf("goal title is required")
	}
	if g.TargetAmount <= 0 {
		return fmt.Errorf("target amount must be positive (got %.2f)", g.TargetAmount)
	}
	if g.SavedAmount < 0 {
		return fmt.Errorf("saved amount must not be negative (got %.2f)", g.SavedAmount)
	}
	return nil
}

type CreateGoalRequest struct {
	Title        string  `json:"goal_title" binding:"required"`
	TargetAmount float64 `json:"target_amount" binding:"required"`
	SavedAmount  float64 `json:"saved_amount"`
	TargetDate   string  `json:"target_date"`
}

type UpdateGoalRequest struct {
	Title        *string  `json:"goal_title"`
	TargetAmount *float64 `json:"target_amount"`
	SavedAmount  *float64 `json:"saved_amount"`
	TargetDate   *string  `json:"target_date"`
	IsCompleted  *bool    `json:"is_completed"`
}
