package domain

import "time"

// BudgetPeriod is the budgeting cadence.
type BudgetPeriod string

const (
	PeriodWeekly  BudgetPeriod = "weekly"
	PeriodMonthly BudgetPeriod = "monthly"
	PeriodYearly  BudgetPeriod = "yearly"
)

// BudgetFlexibility controls drift severity thresholds.
type BudgetFlexibility string

const (
	FlexStrict   BudgetFlexibility = "strict"
	FlexFlexible BudgetFlexibility = "flexible"
)

// Budget caps spending for one category over a recurring period.
type Budget struct {
	ID             string            `json:"id" db:"id"`
	UserID         string            `json:"user_id" db:"user_id"`
	CategoryID     string            `json:"category_id" db:"category_id"`
	Name           string            `json:"name" db:"name"`
	Amount         float64           `json:"amount" db:"amount"`
	Period         BudgetPeriod      `json:"period" db:"period"`
	Flexibility    BudgetFlexibility `json:"flexibility" db:"flexibility"`
	StartDate      time.Time         `json:"start_date" db:"start_date"`
	EndDate        *time.Time        `json:"end_date,omitempty" db:"end_date"`
	IsActive       bool              `json:"is_active" db:"is_active"`
	AlertThreshold float64           `json:"alert_threshold" db:"alert_threshold"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at" db:"updated_at"`
}
