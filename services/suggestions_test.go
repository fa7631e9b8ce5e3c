package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budget-sync/models"
	"budget-sync/store"
)

func suggestionTypes(suggestions []models.Suggestion) []string {
	var types []string
	for _, s := range suggestions {
		types = append(types, s.Type)
	}
	return types
}

func TestGenerateOverspendAlert(t *testing.T) {
	svc := NewSuggestionService(store.NewMemory[models.Suggestion](models.EntitySuggestions, nil))
	now := day(2026, time.March, 15)

	generated, err := svc.Generate(context.Background(), "u1", SuggestionInput{
		Expenses: []models.Expense{expense("rent", 1500, day(2026, time.March, 1))},
		Profile:  &models.Profile{ID: "u1", MonthlyIncome: 1000},
		Now:      now,
	})
	require.NoError(t, err)
	assert.Contains(t, suggestionTypes(generated), models.SuggestionAlert)
	assert.NotContains(t, suggestionTypes(generated), models.SuggestionSaving)
}

func TestGenerateSavingHeadroom(t *testing.T) {
	svc := NewSuggestionService(store.NewMemory[models.Suggestion](models.EntitySuggestions, nil))
	now := day(2026, time.March, 15)

	generated, err := svc.Generate(context.Background(), "u1", SuggestionInput{
		Expenses: []models.Expense{expense("food", 500, day(2026, time.March, 1))},
		Profile:  &models.Profile{ID: "u1", MonthlyIncome: 2000},
		Now:      now,
	})
	require.NoError(t, err)
	assert.Contains(t, suggestionTypes(generated), models.SuggestionSaving)
}

func TestGenerateBudgetOverrun(t *testing.T) {
	svc := NewSuggestionService(store.NewMemory[models.Suggestion](models.EntitySuggestions, nil))
	now := day(2026, time.March, 15)

	generated, err := svc.Generate(context.Background(), "u1", SuggestionInput{
		Expenses: []models.Expense{expense("food", 250, day(2026, time.March, 1))},
		Profile: &models.Profile{
			ID:                "u1",
			BudgetAllocations: models.BudgetAllocations{"food": 200},
		},
		Now: now,
	})
	require.NoError(t, err)
	assert.Contains(t, suggestionTypes(generated), models.SuggestionBudget)
}

func TestGenerateGoalNearlyFunded(t *testing.T) {
	svc := NewSuggestionService(store.NewMemory[models.Suggestion](models.EntitySuggestions, nil))
	now := day(2026, time.March, 15)

	generated, err := svc.Generate(context.Background(), "u1", SuggestionInput{
		Goals: []models.Goal{
			{ID: "g1", UserID: "u1", Title: "Holiday", TargetAmount: 1000, SavedAmount: 950},
			{ID: "g2", UserID: "u1", Title: "Done", TargetAmount: 1000, SavedAmount: 1000, IsCompleted: true},
			{ID: "g3", UserID: "u1", Title: "Far", TargetAmount: 1000, SavedAmount: 100},
		},
		Now: now,
	})
	require.NoError(t, err)

	types := suggestionTypes(generated)
	assert.Equal(t, []string{models.SuggestionGoal}, types, "only the nearly funded open goal qualifies")
	assert.Contains(t, generated[0].Text, "Holiday")
}

func TestGeneratePersistsThroughStore(t *testing.T) {
	mem := store.NewMemory[models.Suggestion](models.EntitySuggestions, nil)
	svc := NewSuggestionService(mem)
	now := day(2026, time.March, 15)

	generated, err := svc.Generate(context.Background(), "u1", SuggestionInput{
		Expenses: []models.Expense{expense("food", 500, day(2026, time.March, 1))},
		Profile:  &models.Profile{ID: "u1", MonthlyIncome: 2000},
		Now:      now,
	})
	require.NoError(t, err)
	require.NotEmpty(t, generated)

	stored, err := mem.Snapshot(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, stored, len(generated))
	for _, s := range stored {
		assert.NotEmpty(t, s.ID)
		assert.Equal(t, "u1", s.UserID)
		assert.Equal(t, now, s.GeneratedAt)
		assert.NoError(t, s.Validate())
	}
}

func TestGenerateQuietMonthYieldsNothing(t *testing.T) {
	svc := NewSuggestionService(store.NewMemory[models.Suggestion](models.EntitySuggestions, nil))

	generated, err := svc.Generate(context.Background(), "u1", SuggestionInput{
		Now: day(2026, time.March, 15),
	})
	require.NoError(t, err)
	assert.Empty(t, generated)
}
