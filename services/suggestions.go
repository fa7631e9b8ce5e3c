package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"budget-sync/engine"
	"budget-sync/models"
)

// SuggestionService turns aggregates into AI-suggestion entities and writes
// them through the store, so they reach every device via the suggestions
// collection like any other remote mutation.
type SuggestionService struct {
	store engine.Source[models.Suggestion]
}

func NewSuggestionService(store engine.Source[models.Suggestion]) *SuggestionService {
	return &SuggestionService{store: store}
}

// SuggestionInput mirrors AlertInput plus the goal list, since goal pacing
// has its own rule.
type SuggestionInput struct {
	Expenses []models.Expense
	Goals    []models.Goal
	Profile  *models.Profile
	Now      time.Time
}

var categoryEmoji = map[string]string{
	"food":          "🍔",
	"transport":     "🚗",
	"entertainment": "🎬",
	"rent":          "🏠",
	"utilities":     "💡",
	"healthcare":    "🏥",
	"shopping":      "🛍️",
}

// Generate evaluates every rule, persists the resulting suggestions for
// userID and returns them. Rules are independent: one failing insert does
// not stop the rest, the first error is reported after all attempts.
func (s *SuggestionService) Generate(ctx context.Context, userID string, in SuggestionInput) ([]models.Suggestion, error) {
	candidates := s.evaluate(in)

	var generated []models.Suggestion
	var firstErr error
	for _, sg := range candidates {
		sg.ID = uuid.New().String()
		sg.UserID = userID
		sg.GeneratedAt = in.Now

		saved, err := s.store.Mutate(ctx, engine.Mutation[models.Suggestion]{
			Kind:    engine.MutationInsert,
			UserID:  userID,
			Payload: sg,
		})
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		generated = append(generated, saved)
	}
	return generated, firstErr
}

func (s *SuggestionService) evaluate(in SuggestionInput) []models.Suggestion {
	var out []models.Suggestion

	monthStart, monthEnd := MonthWindow(in.Now)
	monthSpend := WindowTotal(in.Expenses, monthStart, monthEnd)
	totals := CategoryTotals(in.Expenses, monthStart, monthEnd)

	var income float64
	var allocations models.BudgetAllocations
	if in.Profile != nil {
		income = in.Profile.MonthlyIncome
		allocations = in.Profile.BudgetAllocations
	}

	// Overspending the whole income is the loudest signal we have.
	if income > 0 && monthSpend > income {
		out = append(out, models.Suggestion{
			Type:  models.SuggestionAlert,
			Emoji: "🚨",
			Text:  fmt.Sprintf("You've spent %.2f this month against an income of %.2f. Time to slow down.", monthSpend, income),
		})
	}

	// Comfortable headroom: nudge toward saving it.
	if income > 0 && monthSpend <= income && income-monthSpend >= 0.10*income {
		out = append(out, models.Suggestion{
			Type:  models.SuggestionSaving,
			Emoji: "💰",
			Text:  fmt.Sprintf("You have %.2f of unspent income this month. Moving it to a goal keeps it out of reach.", income-monthSpend),
		})
	}

	// Per-category budget overruns.
	for category, budget := range allocations {
		if budget <= 0 {
			continue
		}
		if spent := totals[category]; spent > budget {
			out = append(out, models.Suggestion{
				Type:  models.SuggestionBudget,
				Emoji: "⚠️",
				Text:  fmt.Sprintf("Your %s spending (%.2f) is over its %.2f budget. Consider raising the budget or trimming the category.", category, spent, budget),
			})
		}
	}

	// A single category dominating the month is worth pointing out.
	if category, total, ok := TopCategory(in.Expenses, monthStart, monthEnd); ok && monthSpend > 0 {
		if share := total / monthSpend; share > 0.40 {
			emoji := categoryEmoji[category]
			if emoji == "" {
				emoji = "📊"
			}
			out = append(out, models.Suggestion{
				Type:  models.SuggestionExpense,
				Emoji: emoji,
				Text:  fmt.Sprintf("%.0f%% of this month went to %s. A small cut there beats many elsewhere.", share*100, category),
			})
		}
	}

	// Goals within reach deserve a push over the line.
	for _, g := range in.Goals {
		if g.IsCompleted || g.TargetAmount <= 0 {
			continue
		}
		if g.SavedAmount/g.TargetAmount >= 0.90 {
			out = append(out, models.Suggestion{
				Type:  models.SuggestionGoal,
				Emoji: "🎯",
				Text:  fmt.Sprintf("\"%s\" is %.0f%% funded, only %.2f to go.", g.Title, g.SavedAmount/g.TargetAmount*100, g.TargetAmount-g.SavedAmount),
			})
		}
	}

	return out
}
