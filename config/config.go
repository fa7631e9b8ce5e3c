package config

import (
	"os"
	"strconv"

	"budget-sync/services"
)

// LoadAlertConfig builds the alert thresholds from the environment, falling
// back to the shipped defaults for anything unset or unparsable.
func LoadAlertConfig() services.AlertConfig {
	cfg := services.DefaultAlertConfig()

	cfg.Risk.Medium = envFloat("RISK_MEDIUM_RATIO", cfg.Risk.Medium)
	cfg.Risk.High = envFloat("RISK_HIGH_RATIO", cfg.Risk.High)
	cfg.BudgetWarningRatio = envFloat("BUDGET_WARNING_RATIO", cfg.BudgetWarningRatio)
	cfg.HighSpendingMultiplier = envFloat("HIGH_SPENDING_MULTIPLIER", cfg.HighSpendingMultiplier)

	if v := os.Getenv("SAVINGS_ALERTS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.SavingsAlerts = b
		}
	}

	return cfg
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}
