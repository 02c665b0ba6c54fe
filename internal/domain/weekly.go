package domain

import "time"

// CategoryWeekStat is one category's slice of a weekly metric.
type CategoryWeekStat struct {
	CategoryID string  `json:"category_id"`
	Total      float64 `json:"total"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// BudgetWeekStatus is one budget's standing at week end.
type BudgetWeekStatus struct {
	BudgetID    string  `json:"budget_id"`
	CategoryID  string  `json:"category_id"`
	Limit       float64 `json:"limit"`
	Spent       float64 `json:"spent"`
	Utilization float64 `json:"utilization"`
	OverBudget  bool    `json:"over_budget"`
}

// WeeklyMetric stores numeric aggregates for one (user, weekStart) pair.
// Weeks start Monday 00:00 local.
type WeeklyMetric struct {
	ID                string             `json:"id" db:"id"`
	UserID            string             `json:"user_id" db:"user_id"`
	WeekStart         time.Time          `json:"week_start" db:"week_start"`
	WeekEnd           time.Time          `json:"week_end" db:"week_end"`
	Income            float64            `json:"income" db:"income"`
	Expenses          float64            `json:"expenses" db:"expenses"`
	Savings           float64            `json:"savings" db:"savings"`
	TransactionCount  int                `json:"transaction_count" db:"transaction_count"`
	CategoryBreakdown []CategoryWeekStat `json:"category_breakdown,omitempty"`
	BudgetStatus      []BudgetWeekStatus `json:"budget_status,omitempty"`
	Volatility        float64            `json:"volatility" db:"volatility"`
	WeekdaySpend      float64            `json:"weekday_spend" db:"weekday_spend"`
	WeekendSpend      float64            `json:"weekend_spend" db:"weekend_spend"`
	CreatedAt         time.Time          `json:"created_at" db:"created_at"`
}

// ShiftTier grades how large a week-over-week shift is.
type ShiftTier string

const (
	ShiftNotable  ShiftTier = "notable"
	ShiftMajor    ShiftTier = "major"
	ShiftCritical ShiftTier = "critical"
)

// MetricShift is one significant week-over-week change.
// Significant means |Δ%| > 20 and |Δ$| > 50.
type MetricShift struct {
	Metric        string    `json:"metric"`
	CategoryID    string    `json:"category_id,omitempty"`
	Current       float64   `json:"current"`
	Previous      float64   `json:"previous"`
	AbsoluteDelta float64   `json:"absolute_delta"`
	PercentDelta  float64   `json:"percent_delta"`
	Tier          ShiftTier `json:"tier"`
	VsMovingAvg   bool      `json:"vs_moving_avg,omitempty"`
}

// WeeklySummary references a metric and carries the filtered insights,
// detected shifts and rendered overview text.
type WeeklySummary struct {
	ID        string        `json:"id" db:"id"`
	UserID    string        `json:"user_id" db:"user_id"`
	MetricID  string        `json:"metric_id" db:"metric_id"`
	WeekStart time.Time     `json:"week_start" db:"week_start"`
	Metrics   *WeeklyMetric `json:"metrics,omitempty"`
	Shifts    []MetricShift `json:"shifts,omitempty"`
	Insights  []Insight     `json:"insights,omitempty"`
	Overview  string        `json:"overview" db:"overview"`
	Fallback  bool          `json:"fallback" db:"fallback"`
	ExpiresAt time.Time     `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
}

// DefaultSummaryTTL bounds how long weekly summaries stay queryable.
const DefaultSummaryTTL = 90 * 24 * time.Hour
