package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/errs"
)

type notificationsRepo struct {
	q       queryer
	timeout time.Duration
}

func (r *notificationsRepo) Insert(ctx context.Context, n *domain.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	doc, err := marshalDoc(n)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO notifications (id, user_id, type, read, expires_at, doc, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = r.q.ExecContext(ctx, query,
		n.ID, n.UserID, n.Type, n.Read, n.ExpiresAt, doc, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

func (r *notificationsRepo) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT doc FROM notifications
		WHERE user_id = $1 AND expires_at > $2`
	args := []any{userID, time.Now()}
	if unreadOnly {
		query += ` AND NOT read`
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.q.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		var n domain.Notification
		if err := unmarshalDoc(doc, &n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *notificationsRepo) MarkRead(ctx context.Context, userID, id string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		UPDATE notifications
		SET read = true, doc = doc || '{"read": true}'::jsonb
		WHERE id = $1 AND user_id = $2`

	res, err := r.q.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("notification")
	}
	return nil
}

func (r *notificationsRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM notifications WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired notifications: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}
