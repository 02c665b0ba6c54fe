package domain

import "time"

// InsightStatus tracks the review state of a synthesized insight.
type InsightStatus string

const (
	InsightGenerated InsightStatus = "generated"
	InsightActioned  InsightStatus = "actioned"
	InsightDismissed InsightStatus = "dismissed"
	InsightExpired   InsightStatus = "expired"
)

// Insight is an LLM-synthesized observation referencing one or more signals.
// Unlike signals, insights carry no deterministic uniqueness.
type Insight struct {
	ID          string        `json:"id" db:"id"`
	UserID      string        `json:"user_id" db:"user_id"`
	Type        string        `json:"type" db:"type"`
	Title       string        `json:"title" db:"title"`
	Description string        `json:"description" db:"description"`
	SignalIDs   []string      `json:"signal_ids,omitempty"`
	CategoryID  string        `json:"category_id,omitempty" db:"category_id"`
	Impact      InsightImpact `json:"impact"`
	Confidence  float64       `json:"confidence" db:"confidence"`
	ActionItems []string      `json:"action_items,omitempty"`
	Status      InsightStatus `json:"status" db:"status"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
}

// InsightImpact estimates the financial effect of acting on an insight.
type InsightImpact struct {
	Amount     float64 `json:"amount,omitempty"`
	Percentage float64 `json:"percentage,omitempty"`
	Timeframe  string  `json:"timeframe,omitempty"`
	TargetID   string  `json:"target_id,omitempty"`
}
