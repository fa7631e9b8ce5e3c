package services

import (
	"sort"
	"time"

	"budget-sync/models"
)

// Spending aggregation. Everything in this file is pure and total: no I/O,
// no panics, and zero denominators produce "undefined" results instead of
// infinities, because these functions run on every dashboard recompute.

type RiskLevel string

const (
	RiskUndefined RiskLevel = ""
	RiskLow       RiskLevel = "low"
	RiskMedium    RiskLevel = "medium"
	RiskHigh      RiskLevel = "high"
)

// RiskThresholds are the spent/budget ratios at which a category moves to
// medium and high risk. Boundaries are inclusive.
type RiskThresholds struct {
	Medium float64
	High   float64
}

func DefaultRiskThresholds() RiskThresholds {
	return RiskThresholds{Medium: 0.70, High: 0.90}
}

// CategoryTotals sums expense amounts per category over the half-open
// window [windowStart, windowEnd). An empty window yields an empty map.
func CategoryTotals(expenses []models.Expense, windowStart, windowEnd time.Time) map[string]float64 {
	totals := make(map[string]float64)
	for _, e := range expenses {
		if inWindow(e.Date, windowStart, windowEnd) {
			totals[e.Category] += e.Amount
		}
	}
	return totals
}

// WindowTotal sums all expense amounts over [windowStart, windowEnd).
func WindowTotal(expenses []models.Expense, windowStart, windowEnd time.Time) float64 {
	var total float64
	for _, e := range expenses {
		if inWindow(e.Date, windowStart, windowEnd) {
			total += e.Amount
		}
	}
	return total
}

// MonthWindow returns the [start, end) window of the calendar month
// containing ref, in ref's location.
func MonthWindow(ref time.Time) (time.Time, time.Time) {
	start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
	return start, start.AddDate(0, 1, 0)
}

// MonthTotal sums spending for the calendar month containing ref.
func MonthTotal(expenses []models.Expense, ref time.Time) float64 {
	start, end := MonthWindow(ref)
	return WindowTotal(expenses, start, end)
}

// DayTotal sums spending for the calendar day containing ref.
func DayTotal(expenses []models.Expense, ref time.Time) float64 {
	start := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, ref.Location())
	return WindowTotal(expenses, start, start.AddDate(0, 0, 1))
}

// MonthOverMonthDelta returns the percentage change between the previous
// and current month totals, sign preserved (positive = spending increased).
// ok is false when the previous month total is zero: the delta is undefined
// there, never infinite.
func MonthOverMonthDelta(expenses []models.Expense, ref time.Time) (delta float64, ok bool) {
	current := MonthTotal(expenses, ref)
	previous := MonthTotal(expenses, ref.AddDate(0, -1, 0))
	if previous <= 0 {
		return 0, false
	}
	return (current - previous) / previous * 100, true
}

// Risk grades spending against a budget. A budget of zero or less means "no
// budget set", which is a distinct state from low risk, so it maps to
// RiskUndefined. Tier boundaries are inclusive: spent/budget >= High is
// high, >= Medium is medium, anything below is low.
func Risk(spent, budget float64, t RiskThresholds) RiskLevel {
	if budget <= 0 {
		return RiskUndefined
	}
	ratio := spent / budget
	switch {
	case ratio >= t.High:
		return RiskHigh
	case ratio >= t.Medium:
		return RiskMedium
	default:
		return RiskLow
	}
}

// TopCategory returns the category with the largest total in the window.
// Ties break by lexical order of the category name, so the result is
// deterministic regardless of input order. ok is false when the window
// holds no spending.
func TopCategory(expenses []models.Expense, windowStart, windowEnd time.Time) (category string, total float64, ok bool) {
	totals := CategoryTotals(expenses, windowStart, windowEnd)
	if len(totals) == 0 {
		return "", 0, false
	}

	categories := make([]string, 0, len(totals))
	for c := range totals {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	for _, c := range categories {
		if !ok || totals[c] > total {
			category, total, ok = c, totals[c], true
		}
	}
	return category, total, true
}

// TrailingDailyAverage is month-to-date spending divided by the day of
// month, the same baseline the original notifications used. Zero when the
// month has no spending yet.
func TrailingDailyAverage(expenses []models.Expense, ref time.Time) float64 {
	start, _ := MonthWindow(ref)
	endOfDay := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, ref.Location()).AddDate(0, 0, 1)
	total := WindowTotal(expenses, start, endOfDay)
	return total / float64(ref.Day())
}

func inWindow(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}
