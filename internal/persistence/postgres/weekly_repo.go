package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/finpulse/finpulse/internal/domain"
)

type weeklyRepo struct {
	q       queryer
	timeout time.Duration
}

func (r *weeklyRepo) UpsertMetric(ctx context.Context, m *domain.WeeklyMetric) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	doc, err := marshalDoc(m)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO weekly_metrics (id, user_id, week_start, doc, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, week_start) DO UPDATE SET doc = EXCLUDED.doc`

	_, err = r.q.ExecContext(ctx, query, m.ID, m.UserID, m.WeekStart, doc, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert weekly metric: %w", err)
	}
	return nil
}

func (r *weeklyRepo) GetMetric(ctx context.Context, userID string, weekStart time.Time) (*domain.WeeklyMetric, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var doc []byte
	err := r.q.QueryRowxContext(ctx,
		`SELECT doc FROM weekly_metrics WHERE user_id = $1 AND week_start = $2`,
		userID, weekStart).Scan(&doc)
	if err != nil {
		return nil, mapGetErr(err, "weekly metric")
	}

	var m domain.WeeklyMetric
	if err := unmarshalDoc(doc, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *weeklyRepo) ListRecentMetrics(ctx context.Context, userID string, limit int) ([]domain.WeeklyMetric, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT doc FROM weekly_metrics
		WHERE user_id = $1
		ORDER BY week_start DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.q.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query weekly metrics: %w", err)
	}
	defer rows.Close()

	var out []domain.WeeklyMetric
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan weekly metric: %w", err)
		}
		var m domain.WeeklyMetric
		if err := unmarshalDoc(doc, &m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *weeklyRepo) InsertSummary(ctx context.Context, s *domain.WeeklySummary) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	doc, err := marshalDoc(s)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO weekly_summaries (id, user_id, week_start, expires_at, doc, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = r.q.ExecContext(ctx, query,
		s.ID, s.UserID, s.WeekStart, s.ExpiresAt, doc, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert weekly summary: %w", err)
	}
	return nil
}

func (r *weeklyRepo) LatestSummary(ctx context.Context, userID string) (*domain.WeeklySummary, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT doc FROM weekly_summaries
		WHERE user_id = $1 AND expires_at > $2
		ORDER BY week_start DESC
		LIMIT 1`

	var doc []byte
	err := r.q.QueryRowxContext(ctx, query, userID, time.Now()).Scan(&doc)
	if err != nil {
		return nil, mapGetErr(err, "weekly summary")
	}

	var s domain.WeeklySummary
	if err := unmarshalDoc(doc, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *weeklyRepo) DeleteExpiredSummaries(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx,
		`DELETE FROM weekly_summaries WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired summaries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}
