package domain

import "time"

// CategoryType classifies spending intent.
type CategoryType string

const (
	CategoryNeed   CategoryType = "need"
	CategoryWant   CategoryType = "want"
	CategorySaving CategoryType = "saving"
	CategoryFixed  CategoryType = "fixed"
	CategoryIncome CategoryType = "income"
)

// Category is a per-user transaction bucket. Names are unique per user,
// case-insensitive. System categories cannot be deleted.
type Category struct {
	ID            string       `json:"id" db:"id"`
	UserID        string       `json:"user_id" db:"user_id"`
	Name          string       `json:"name" db:"name"`
	Type          CategoryType `json:"type" db:"type"`
	MonthlyBudget float64      `json:"monthly_budget,omitempty" db:"monthly_budget"`
	IsSystem      bool         `json:"is_system" db:"is_system"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at" db:"updated_at"`
}
