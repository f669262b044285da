package models

import "time"

// BudgetPeriod defines the rolling window of a spending budget.
type BudgetPeriod string

const (
	BudgetHour  BudgetPeriod = "hour"
	BudgetDay   BudgetPeriod = "day"
	BudgetWeek  BudgetPeriod = "week"
	BudgetMonth BudgetPeriod = "month"
)

// Duration maps the period to a concrete span. Unknown periods count as a day.
func (p BudgetPeriod) Duration() time.Duration {
	switch p {
	case BudgetHour:
		return time.Hour
	case BudgetWeek:
		return 7 * 24 * time.Hour
	case BudgetMonth:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Valid reports whether p is one of the known periods.
func (p BudgetPeriod) Valid() bool {
	switch p {
	case BudgetHour, BudgetDay, BudgetWeek, BudgetMonth:
		return true
	}
	return false
}

// BudgetStatus shows current spend against the configured limit.
type BudgetStatus struct {
	Period      BudgetPeriod `json:"period"`
	Limit       int64        `json:"limit"`
	Unlimited   bool         `json:"unlimited"`
	Spent       int64        `json:"spent"`
	Remaining   int64        `json:"remaining"`
	PeriodStart time.Time    `json:"period_start"`
	ResetsAt    time.Time    `json:"resets_at"`
}
