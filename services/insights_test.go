package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budget-sync/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func expense(category string, amount float64, date time.Time) models.Expense {
	return models.Expense{UserID: "u1", Category: category, Amount: amount, Date: date}
}

func TestCategoryTotalsSumsWithinWindow(t *testing.T) {
	start, end := MonthWindow(day(2026, time.March, 15))
	expenses := []models.Expense{
		expense("food", 100, day(2026, time.March, 3)),
		expense("food", 50, day(2026, time.March, 20)),
		expense("transport", 30, day(2026, time.March, 10)),
		expense("food", 999, day(2026, time.February, 28)), // outside window
	}

	totals := CategoryTotals(expenses, start, end)
	assert.Equal(t, map[string]float64{"food": 150, "transport": 30}, totals)
}

func TestMonthWindowIsHalfOpen(t *testing.T) {
	start, end := MonthWindow(day(2026, time.March, 15))

	expenses := []models.Expense{
		expense("food", 1, start),                 // first instant counts
		expense("food", 2, end),                   // first instant of April does not
		expense("food", 4, end.Add(-time.Second)), // last moment of March counts
	}
	assert.Equal(t, 5.0, WindowTotal(expenses, start, end))
}

func TestMonthOverMonthDelta(t *testing.T) {
	ref := day(2026, time.March, 15)

	t.Run("undefined when previous month is empty", func(t *testing.T) {
		expenses := []models.Expense{expense("food", 100, day(2026, time.March, 1))}
		_, ok := MonthOverMonthDelta(expenses, ref)
		assert.False(t, ok, "no previous spending means no defined delta")
	})

	t.Run("increase is positive", func(t *testing.T) {
		expenses := []models.Expense{
			expense("food", 100, day(2026, time.February, 10)),
			expense("food", 150, day(2026, time.March, 10)),
		}
		delta, ok := MonthOverMonthDelta(expenses, ref)
		require.True(t, ok)
		assert.InDelta(t, 50.0, delta, 1e-9)
	})

	t.Run("decrease is negative", func(t *testing.T) {
		expenses := []models.Expense{
			expense("food", 200, day(2026, time.February, 10)),
			expense("food", 150, day(2026, time.March, 10)),
		}
		delta, ok := MonthOverMonthDelta(expenses, ref)
		require.True(t, ok)
		assert.InDelta(t, -25.0, delta, 1e-9)
	})
}

func TestRiskBoundaries(t *testing.T) {
	thresholds := DefaultRiskThresholds()

	cases := []struct {
		name   string
		spent  float64
		budget float64
		want   RiskLevel
	}{
		{"no budget set", 50, 0, RiskUndefined},
		{"negative budget", 50, -10, RiskUndefined},
		{"well under", 10, 100, RiskLow},
		{"just below medium", 69.99, 100, RiskLow},
		{"medium boundary inclusive", 70, 100, RiskMedium},
		{"just below high", 89.99, 100, RiskMedium},
		{"high boundary inclusive", 90, 100, RiskHigh},
		{"over budget", 150, 100, RiskHigh},
		{"spending with zero budget stays undefined", 150, 0, RiskUndefined},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Risk(tc.spent, tc.budget, thresholds))
		})
	}
}

func TestTopCategory(t *testing.T) {
	start, end := MonthWindow(day(2026, time.March, 15))

	t.Run("largest total wins", func(t *testing.T) {
		expenses := []models.Expense{
			expense("food", 150, day(2026, time.March, 3)),
			expense("transport", 30, day(2026, time.March, 4)),
		}
		category, total, ok := TopCategory(expenses, start, end)
		require.True(t, ok)
		assert.Equal(t, "food", category)
		assert.Equal(t, 150.0, total)
	})

	t.Run("ties break lexically", func(t *testing.T) {
		expenses := []models.Expense{
			expense("transport", 100, day(2026, time.March, 3)),
			expense("food", 100, day(2026, time.March, 4)),
		}
		category, _, ok := TopCategory(expenses, start, end)
		require.True(t, ok)
		assert.Equal(t, "food", category, "equal totals must resolve deterministically")
	})

	t.Run("empty window", func(t *testing.T) {
		_, _, ok := TopCategory(nil, start, end)
		assert.False(t, ok)
	})
}

func TestTrailingDailyAverage(t *testing.T) {
	ref := day(2026, time.March, 10)
	expenses := []models.Expense{
		expense("food", 50, day(2026, time.March, 2)),
		expense("food", 50, day(2026, time.March, 9)),
		expense("food", 999, day(2026, time.March, 20)), // future spending excluded
	}
	assert.InDelta(t, 10.0, TrailingDailyAverage(expenses, ref), 1e-9)
	assert.Zero(t, TrailingDailyAverage(nil, ref))
}

func TestDayTotal(t *testing.T) {
	ref := day(2026, time.March, 10)
	expenses := []models.Expense{
		expense("food", 40, ref),
		expense("food", 5, ref.Add(23*time.Hour)),
		expense("food", 999, day(2026, time.March, 11)),
	}
	assert.Equal(t, 45.0, DayTotal(expenses, ref))
}
