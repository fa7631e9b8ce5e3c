package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budget-sync/models"
)

func TestExceededSupersedesWarning(t *testing.T) {
	alerts := GenerateAlerts(AlertInput{
		CategoryTotals: map[string]float64{"food": 120},
		Allocations:    models.BudgetAllocations{"food": 100},
	}, DefaultAlertConfig())

	require.Len(t, alerts, 1, "one category never yields both budget alerts")
	assert.Equal(t, models.AlertBudgetExceeded, alerts[0].Kind)
	assert.Equal(t, "food", alerts[0].Category)
	assert.InDelta(t, 20.0, alerts[0].Amount, 1e-9)
}

func TestBudgetWarningAtThreshold(t *testing.T) {
	cfg := DefaultAlertConfig()

	alerts := GenerateAlerts(AlertInput{
		CategoryTotals: map[string]float64{"food": 80},
		Allocations:    models.BudgetAllocations{"food": 100},
	}, cfg)

	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertBudgetWarning, alerts[0].Kind)
	assert.InDelta(t, 80.0, alerts[0].Percent, 1e-9)

	alerts = GenerateAlerts(AlertInput{
		CategoryTotals: map[string]float64{"food": 79.99},
		Allocations:    models.BudgetAllocations{"food": 100},
	}, cfg)
	assert.Empty(t, alerts, "below the warning ratio nothing fires")
}

func TestZeroBudgetNeverAlerts(t *testing.T) {
	alerts := GenerateAlerts(AlertInput{
		CategoryTotals: map[string]float64{"food": 500},
		Allocations:    models.BudgetAllocations{"food": 0},
	}, DefaultAlertConfig())
	assert.Empty(t, alerts, "a category without a budget cannot exceed it")
}

func TestHighSpendingDayRule(t *testing.T) {
	cfg := DefaultAlertConfig()

	alerts := GenerateAlerts(AlertInput{
		TodaySpend:           31,
		TrailingDailyAverage: 20,
	}, cfg)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertHighSpendingDay, alerts[0].Kind)

	alerts = GenerateAlerts(AlertInput{
		TodaySpend:           30,
		TrailingDailyAverage: 20,
	}, cfg)
	assert.Empty(t, alerts, "exactly 1.5x the average is not above it")

	alerts = GenerateAlerts(AlertInput{
		TodaySpend:           100,
		TrailingDailyAverage: 0,
	}, cfg)
	assert.Empty(t, alerts, "no baseline, no high-day alert")
}

func TestSavingsOpportunityRule(t *testing.T) {
	cfg := DefaultAlertConfig()

	alerts := GenerateAlerts(AlertInput{
		MonthSpend:    600,
		MonthlyIncome: 1000,
	}, cfg)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertSavingsOpportunity, alerts[0].Kind)
	assert.InDelta(t, 400.0, alerts[0].Amount, 1e-9)

	alerts = GenerateAlerts(AlertInput{
		MonthSpend:    1000,
		MonthlyIncome: 1000,
	}, cfg)
	assert.Empty(t, alerts)

	cfg.SavingsAlerts = false
	alerts = GenerateAlerts(AlertInput{
		MonthSpend:    600,
		MonthlyIncome: 1000,
	}, cfg)
	assert.Empty(t, alerts, "savings alerts can be switched off")
}

func TestAlertsOrderedBySeverityThenCategory(t *testing.T) {
	alerts := GenerateAlerts(AlertInput{
		CategoryTotals: map[string]float64{
			"transport": 120, // exceeded
			"food":      85,  // warning
			"leisure":   130, // exceeded
		},
		Allocations: models.BudgetAllocations{
			"transport": 100,
			"food":      100,
			"leisure":   100,
		},
		TodaySpend:           50,
		TrailingDailyAverage: 10,
		MonthSpend:           300,
		MonthlyIncome:        1000,
	}, DefaultAlertConfig())

	require.Len(t, alerts, 5)
	assert.Equal(t, models.AlertBudgetExceeded, alerts[0].Kind)
	assert.Equal(t, "leisure", alerts[0].Category)
	assert.Equal(t, models.AlertBudgetExceeded, alerts[1].Kind)
	assert.Equal(t, "transport", alerts[1].Category)
	assert.Equal(t, models.AlertBudgetWarning, alerts[2].Kind)
	assert.Equal(t, models.AlertHighSpendingDay, alerts[3].Kind)
	assert.Equal(t, models.AlertSavingsOpportunity, alerts[4].Kind)
}

func TestAlertIDsAreStable(t *testing.T) {
	in := AlertInput{
		CategoryTotals: map[string]float64{"food": 120},
		Allocations:    models.BudgetAllocations{"food": 100},
	}
	first := GenerateAlerts(in, DefaultAlertConfig())
	second := GenerateAlerts(in, DefaultAlertConfig())
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID, "dismissal by identity needs stable ids")
}

func TestFilterDismissed(t *testing.T) {
	alerts := GenerateAlerts(AlertInput{
		CategoryTotals: map[string]float64{"food": 120, "transport": 90},
		Allocations:    models.BudgetAllocations{"food": 100, "transport": 100},
	}, DefaultAlertConfig())
	require.Len(t, alerts, 2)

	kept := FilterDismissed(alerts, map[string]bool{alerts[0].ID: true})
	require.Len(t, kept, 1)
	assert.Equal(t, alerts[1].ID, kept[0].ID)

	assert.Equal(t, alerts, FilterDismissed(alerts, nil))
}
