package models

import (
	"fmt"
	"time"
)

// BudgetAllocations maps a category name to its allocated monthly amount.
// A category absent from the map means "no budget set" for that category,
// which is NOT the same as a zero budget.
type BudgetAllocations map[string]float64

// Budget returns the allocation for a category and whether one is set.
func (b BudgetAllocations) Budget(category string) (float64, bool) {
	if b == nil {
		return 0, false
	}
	amount, ok := b[category]
	return amount, ok
}

func (b BudgetAllocations) Validate() error {
	for category, amount := range b {
		if amount < 0 {
			return fmt.Errorf("budget for %q must not be negative (got %.2f)", category, amount)
		}
	}
	return nil
}

// Profile carries the per-user budget configuration. The sync layer treats
// it as a single-row collection so it shares the same lifecycle machinery
// as expenses, goals and suggestions.
type Profile struct {
	ID                  string            `json:"id"`
	Email               string            `json:"email,omitempty"`
	FullName            string            `json:"full_name,omitempty"`
	MonthlyIncome       float64           `json:"monthly_income"`
	BudgetAllocations   BudgetAllocations `json:"budget_allocations,omitempty"`
	OnboardingCompleted bool              `json:"onboarding_completed"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

func (p Profile) EntityID() string { return p.ID }
func (p Profile) OwnerID() string  { return p.ID }

func (p Profile) Validate() error {
	if p.MonthlyIncome < 0 {
		return fmt.Errorf("monthly income must not be negative (got %.2f)", p.MonthlyIncome)
	}
	return p.BudgetAllocations.Validate()
}

type UpdateProfileRequest struct {
	FullName            *string           `json:"full_name"`
	MonthlyIncome       *float64          `json:"monthly_income"`
	BudgetAllocations   BudgetAllocations `json:"budget_allocations"`
	OnboardingCompleted *bool             `json:"onboarding_completed"`
}
