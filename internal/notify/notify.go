// Package notify delivers in-app notifications and keeps their store
// trimmed to the 30-day retention window.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/persistence"
)

// Dispatcher writes notifications and serves the in-app inbox.
type Dispatcher struct {
	db  persistence.Store
	log zerolog.Logger
	now func() time.Time
}

func NewDispatcher(db persistence.Store, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{db: db, log: log.With().Str("component", "notify").Logger(), now: time.Now}
}

// WithClock overrides the time source, for tests.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Send stores one notification with the default TTL. RefID links back
// to the entity the message is about.
func (d *Dispatcher) Send(ctx context.Context, userID string, typ domain.NotificationType, title, body, refID string) (*domain.Notification, error) {
	n := &domain.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Body:      body,
		RefID:     refID,
		ExpiresAt: d.now().Add(domain.DefaultNotificationTTL),
		CreatedAt: d.now(),
	}
	if err := d.db.Notifications().Insert(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to store notification: %w", err)
	}
	d.log.Debug().Str("user_id", userID).Str("type", string(typ)).Str("ref_id", refID).Msg("notification sent")
	return n, nil
}

// NotifySuggestionCreated announces a fresh suggestion.
func (d *Dispatcher) NotifySuggestionCreated(ctx context.Context, s *domain.PendingSuggestion) error {
	_, err := d.Send(ctx, s.UserID, domain.NotifyNewSuggestion, "New suggestion", s.Title, s.ID)
	return err
}

// NotifySuggestionApplied announces a completed application.
func (d *Dispatcher) NotifySuggestionApplied(ctx context.Context, s *domain.PendingSuggestion) error {
	_, err := d.Send(ctx, s.UserID, domain.NotifySuggestionDone, "Suggestion applied", s.Title, s.ID)
	return err
}

// NotifyWeeklySummary announces a freshly generated summary.
func (d *Dispatcher) NotifyWeeklySummary(ctx context.Context, summary *domain.WeeklySummary) error {
	title := fmt.Sprintf("Your weekly summary for %s is ready", summary.WeekStart.Format("Jan 2"))
	_, err := d.Send(ctx, summary.UserID, domain.NotifyWeeklySummary, title, summary.Overview, summary.ID)
	return err
}

// NotifyRiskAlert surfaces a high-priority signal.
func (d *Dispatcher) NotifyRiskAlert(ctx context.Context, s *domain.FinancialSignal) error {
	_, err := d.Send(ctx, s.UserID, domain.NotifyRiskAlert, "Risk alert", s.Name, s.ID)
	return err
}

// Inbox lists the user's notifications, optionally unread only.
func (d *Dispatcher) Inbox(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	return d.db.Notifications().ListByUser(ctx, userID, unreadOnly, limit)
}

// MarkRead flags one notification as read.
func (d *Dispatcher) MarkRead(ctx context.Context, userID, id string) error {
	return d.db.Notifications().MarkRead(ctx, userID, id)
}

// CleanupExpired drops notifications past their TTL.
func (d *Dispatcher) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := d.db.Notifications().DeleteExpired(ctx, d.now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired notifications: %w", err)
	}
	if n > 0 {
		d.log.Info().Int64("deleted", n).Msg("expired notifications removed")
	}
	return n, nil
}
