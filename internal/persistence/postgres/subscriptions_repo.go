package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/errs"
)

type subscriptionsRepo struct {
	q       queryer
	timeout time.Duration
}

func (r *subscriptionsRepo) Insert(ctx context.Context, s *domain.Subscription) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	doc, err := marshalDoc(s)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO subscriptions (id, user_id, category_id, status, next_billing, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.q.ExecContext(ctx, query,
		s.ID, s.UserID, s.CategoryID, s.Status, s.Recurrence.NextBillingDate,
		doc, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert subscription: %w", err)
	}
	return nil
}

func (r *subscriptionsRepo) GetByID(ctx context.Context, userID, id string) (*domain.Subscription, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var doc []byte
	err := r.q.QueryRowxContext(ctx,
		`SELECT doc FROM subscriptions WHERE id = $1 AND user_id = $2`, id, userID).Scan(&doc)
	if err != nil {
		return nil, mapGetErr(err, "subscription")
	}

	var s domain.Subscription
	if err := unmarshalDoc(doc, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *subscriptionsRepo) ListActive(ctx context.Context, userID string) ([]domain.Subscription, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.q.QueryxContext(ctx,
		`SELECT doc FROM subscriptions WHERE user_id = $1 AND status IN ('active', 'trial') ORDER BY id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	return scanSubscriptions(rows)
}

func (r *subscriptionsRepo) ListBillingBefore(ctx context.Context, userID string, cutoff time.Time) ([]domain.Subscription, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT doc FROM subscriptions
		WHERE user_id = $1 AND status IN ('active', 'trial') AND next_billing <= $2
		ORDER BY next_billing`

	rows, err := r.q.QueryxContext(ctx, query, userID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query upcoming subscriptions: %w", err)
	}
	defer rows.Close()

	return scanSubscriptions(rows)
}

func scanSubscriptions(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]domain.Subscription, error) {
	var out []domain.Subscription
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		var s domain.Subscription
		if err := unmarshalDoc(doc, &s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *subscriptionsRepo) UpdateStatus(ctx context.Context, userID, id string, status domain.SubscriptionStatus) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		UPDATE subscriptions
		SET status = $3,
		    doc = jsonb_set(jsonb_set(doc, '{status}', to_jsonb($3::text)), '{updated_at}', to_jsonb($4::timestamptz)),
		    updated_at = $4
		WHERE id = $1 AND user_id = $2`

	res, err := r.q.ExecContext(ctx, query, id, userID, status, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update subscription status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("subscription")
	}
	return nil
}
