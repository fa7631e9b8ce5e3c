package models

import (
	"fmt"
	"time"
)

// Suggestion types match what the generator produces and what the UI filters
// on. A suggestion is immutable once generated, except for the saved flag.
const (
	SuggestionSaving  = "saving"
	SuggestionBudget  = "budget"
	SuggestionExpense = "expense"
	SuggestionGoal    = "goal"
	SuggestionAlert   = "alert"
)

type Suggestion struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Text        string    `json:"suggestion_text"`
	Type        string    `json:"type"`
	Emoji       string    `json:"emoji_reaction,omitempty"`
	IsSaved     bool      `json:"is_saved"`
	GeneratedAt time.Time `json:"generated_at"`
}

func (s Suggestion) EntityID() string { return s.ID }
func (s Suggestion) OwnerID() string  { return s.UserID }

func (s Suggestion) Validate() error {
	if s.Text == "" {
		return fmt.Errorf("suggestion text is required")
	}
	switch s.Type {
	case SuggestionSaving, SuggestionBudget, SuggestionExpense, SuggestionGoal, SuggestionAlert:
		return nil
	default:
		return fmt.Errorf("unknown suggestion type %q", s.Type)
	}
}
