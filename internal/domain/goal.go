package domain

import "time"

// GoalStatus tracks savings goal lifecycle.
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalPaused    GoalStatus = "paused"
	GoalCompleted GoalStatus = "completed"
	GoalCancelled GoalStatus = "cancelled"
)

// Contribution is one payment toward a savings goal.
type Contribution struct {
	Amount        float64   `json:"amount"`
	Date          time.Time `json:"date"`
	TransactionID string    `json:"transaction_id,omitempty"`
}

// AutoSave configures automatic recurring contributions.
type AutoSave struct {
	Enabled    bool    `json:"enabled"`
	Amount     float64 `json:"amount"`
	Frequency  string  `json:"frequency"`
	DayOfMonth int     `json:"day_of_month"`
}

// Milestone marks a funding threshold reached.
type Milestone struct {
	Amount     float64    `json:"amount"`
	AchievedAt *time.Time `json:"achieved_at,omitempty"`
}

// SavingsGoal is a funded target. CurrentAmount must equal the sum of
// contribution amounts.
type SavingsGoal struct {
	ID            string         `json:"id" db:"id"`
	UserID        string         `json:"user_id" db:"user_id"`
	Name          string         `json:"name" db:"name"`
	TargetAmount  float64        `json:"target_amount" db:"target_amount"`
	CurrentAmount float64        `json:"current_amount" db:"current_amount"`
	Priority      int            `json:"priority" db:"priority"`
	Category      string         `json:"category" db:"category"`
	TargetDate    time.Time      `json:"target_date" db:"target_date"`
	Status        GoalStatus     `json:"status" db:"status"`
	Contributions []Contribution `json:"contributions,omitempty"`
	AutoSave      AutoSave       `json:"auto_save"`
	Milestones    []Milestone    `json:"milestones,omitempty"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" db:"updated_at"`
}

// LastContribution returns the most recent contribution date, or zero time.
func (g *SavingsGoal) LastContribution() time.Time {
	var last time.Time
	for _, c := range g.Contributions {
		if c.Date.After(last) {
			last = c.Date
		}
	}
	return last
}
