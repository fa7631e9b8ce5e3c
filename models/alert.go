package models

// Alert kinds, in severity order. The generator emits the most severe first.
const (
	AlertBudgetExceeded     = "budget-exceeded"
	AlertBudgetWarning      = "budget-warning"
	AlertHighSpendingDay    = "high-spending-day"
	AlertSavingsOpportunity = "savings-opportunity"
)

// Alert is a user-facing notification derived from aggregates. ID is stable
// per kind+category so the UI can dismiss by identity, not by position.
type Alert struct {
	ID       string  `json:"id"`
	Kind     string  `json:"kind"`
	Severity int     `json:"severity"`
	Category string  `json:"category,omitempty"`
	Title    string  `json:"title"`
	Message  string  `json:"message"`
	Amount   float64 `json:"amount,omitempty"`
	Percent  float64 `json:"percent,omitempty"`
}
