package domain

import "time"

// NotificationType classifies in-app notifications.
type NotificationType string

const (
	NotifyNewSuggestion  NotificationType = "new_suggestion"
	NotifySuggestionDone NotificationType = "suggestion_applied"
	NotifyWeeklySummary  NotificationType = "weekly_summary"
	NotifyRiskAlert      NotificationType = "risk_alert"
)

// Notification is an in-app message with a 30-day TTL.
type Notification struct {
	ID        string           `json:"id" db:"id"`
	UserID    string           `json:"user_id" db:"user_id"`
	Type      NotificationType `json:"type" db:"type"`
	Title     string           `json:"title" db:"title"`
	Body      string           `json:"body" db:"body"`
	RefID     string           `json:"ref_id,omitempty" db:"ref_id"`
	Read      bool             `json:"read" db:"read"`
	ExpiresAt time.Time        `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}

// DefaultNotificationTTL bounds how long in-app notifications live.
const DefaultNotificationTTL = 30 * 24 * time.Hour
