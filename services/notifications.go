package services

import (
	"fmt"
	"sort"
	"strings"

	"budget-sync/models"
)

// AlertConfig carries the tunable thresholds for alert generation. All
// defaults match the original behavior: warn at 80% of a category budget,
// flag a day 1.5x above the trailing average, offer savings alerts.
type AlertConfig struct {
	Risk                   RiskThresholds
	BudgetWarningRatio     float64
	HighSpendingMultiplier float64
	SavingsAlerts          bool
}

func DefaultAlertConfig() AlertConfig {
	return AlertConfig{
		Risk:                   DefaultRiskThresholds(),
		BudgetWarningRatio:     0.80,
		HighSpendingMultiplier: 1.5,
		SavingsAlerts:          true,
	}
}

// AlertInput is everything the generator consumes, precomputed by the
// aggregation functions so generation itself stays pure.
type AlertInput struct {
	CategoryTotals       map[string]float64
	Allocations          models.BudgetAllocations
	TodaySpend           float64
	TrailingDailyAverage float64
	MonthSpend           float64
	MonthlyIncome        float64
}

// severity per alert kind, most severe first in the output.
var alertSeverity = map[string]int{
	models.AlertBudgetExceeded:     4,
	models.AlertBudgetWarning:      3,
	models.AlertHighSpendingDay:    2,
	models.AlertSavingsOpportunity: 1,
}

// GenerateAlerts evaluates every rule against the input, with no early exit,
// and returns the matches ordered most severe first. IDs are stable per
// kind+category so the UI can dismiss by identity. For one category either
// budget-exceeded or budget-warning is emitted, never both: exceeded
// supersedes.
func GenerateAlerts(in AlertInput, cfg AlertConfig) []models.Alert {
	var alerts []models.Alert

	for category, budget := range in.Allocations {
		if budget <= 0 {
			continue // no budget set for this category
		}
		spent := in.CategoryTotals[category]

		if spent > budget {
			alerts = append(alerts, models.Alert{
				ID:       alertID(models.AlertBudgetExceeded, category),
				Kind:     models.AlertBudgetExceeded,
				Severity: alertSeverity[models.AlertBudgetExceeded],
				Category: category,
				Title:    fmt.Sprintf("%s Budget Exceeded", titleCase(category)),
				Message:  fmt.Sprintf("You've exceeded your %s budget by %.2f", category, spent-budget),
				Amount:   spent - budget,
			})
		} else if spent >= cfg.BudgetWarningRatio*budget {
			percent := spent / budget * 100
			alerts = append(alerts, models.Alert{
				ID:       alertID(models.AlertBudgetWarning, category),
				Kind:     models.AlertBudgetWarning,
				Severity: alertSeverity[models.AlertBudgetWarning],
				Category: category,
				Title:    fmt.Sprintf("%s Budget Alert", titleCase(category)),
				Message:  fmt.Sprintf("You've used %.0f%% of your %s budget", percent, category),
				Percent:  percent,
			})
		}
	}

	if in.TrailingDailyAverage > 0 && in.TodaySpend > cfg.HighSpendingMultiplier*in.TrailingDailyAverage {
		alerts = append(alerts, models.Alert{
			ID:       models.AlertHighSpendingDay,
			Kind:     models.AlertHighSpendingDay,
			Severity: alertSeverity[models.AlertHighSpendingDay],
			Title:    "High Spending Day",
			Message:  fmt.Sprintf("Today's spending (%.2f) is well above your daily average (%.2f)", in.TodaySpend, in.TrailingDailyAverage),
			Amount:   in.TodaySpend,
		})
	}

	if cfg.SavingsAlerts && in.MonthlyIncome > 0 {
		if potential := in.MonthlyIncome - in.MonthSpend; potential > 0 {
			alerts = append(alerts, models.Alert{
				ID:       models.AlertSavingsOpportunity,
				Kind:     models.AlertSavingsOpportunity,
				Severity: alertSeverity[models.AlertSavingsOpportunity],
				Title:    "Great Savings Potential!",
				Message:  fmt.Sprintf("You could save %.2f this month", potential),
				Amount:   potential,
			})
		}
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].Severity != alerts[j].Severity {
			return alerts[i].Severity > alerts[j].Severity
		}
		return alerts[i].Category < alerts[j].Category
	})
	return alerts
}

// FilterDismissed drops alerts whose ID the user has dismissed. Purely
// local: dismissing never mutates remote state.
func FilterDismissed(alerts []models.Alert, dismissed map[string]bool) []models.Alert {
	if len(dismissed) == 0 {
		return alerts
	}
	kept := make([]models.Alert, 0, len(alerts))
	for _, a := range alerts {
		if !dismissed[a.ID] {
			kept = append(kept, a)
		}
	}
	return kept
}

func alertID(kind, category string) string {
	return kind + ":" + category
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
