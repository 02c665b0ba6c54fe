package domain

import "time"

// SubscriptionStatus tracks recurring-charge state.
type SubscriptionStatus string

const (
	SubActive    SubscriptionStatus = "active"
	SubPaused    SubscriptionStatus = "paused"
	SubCancelled SubscriptionStatus = "cancelled"
	SubExpired   SubscriptionStatus = "expired"
	SubTrial     SubscriptionStatus = "trial"
)

// Recurrence describes the billing cadence of a subscription.
type Recurrence struct {
	Frequency       string     `json:"frequency"`
	Interval        int        `json:"interval"`
	BillingDate     time.Time  `json:"billing_date"`
	NextBillingDate time.Time  `json:"next_billing_date"`
	EndDate         *time.Time `json:"end_date,omitempty"`
}

// BillingRecord is one historical charge for a subscription.
type BillingRecord struct {
	Amount        float64   `json:"amount"`
	Date          time.Time `json:"date"`
	TransactionID string    `json:"transaction_id,omitempty"`
}

// Subscription is a recurring charge tied to a category.
type Subscription struct {
	ID             string             `json:"id" db:"id"`
	UserID         string             `json:"user_id" db:"user_id"`
	CategoryID     string             `json:"category_id" db:"category_id"`
	Name           string             `json:"name" db:"name"`
	Amount         float64            `json:"amount" db:"amount"`
	Recurrence     Recurrence         `json:"recurrence"`
	Status         SubscriptionStatus `json:"status" db:"status"`
	AutoRenew      bool               `json:"auto_renew" db:"auto_renew"`
	BillingHistory []BillingRecord    `json:"billing_history,omitempty"`
	CreatedAt      time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at" db:"updated_at"`
}
