package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/errs"
)

type goalsRepo struct {
	q       queryer
	timeout time.Duration
}

func (r *goalsRepo) Insert(ctx context.Context, g *domain.SavingsGoal) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	doc, err := marshalDoc(g)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO savings_goals (id, user_id, status, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = r.q.ExecContext(ctx, query,
		g.ID, g.UserID, g.Status, doc, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert goal: %w", err)
	}
	return nil
}

func (r *goalsRepo) GetByID(ctx context.Context, userID, id string) (*domain.SavingsGoal, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var doc []byte
	err := r.q.QueryRowxContext(ctx,
		`SELECT doc FROM savings_goals WHERE id = $1 AND user_id = $2`, id, userID).Scan(&doc)
	if err != nil {
		return nil, mapGetErr(err, "goal")
	}

	var g domain.SavingsGoal
	if err := unmarshalDoc(doc, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *goalsRepo) ListActive(ctx context.Context, userID string) ([]domain.SavingsGoal, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.q.QueryxContext(ctx,
		`SELECT doc FROM savings_goals WHERE user_id = $1 AND status = 'active' ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query goals: %w", err)
	}
	defer rows.Close()

	var out []domain.SavingsGoal
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		var g domain.SavingsGoal
		if err := unmarshalDoc(doc, &g); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *goalsRepo) Update(ctx context.Context, g *domain.SavingsGoal) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	g.UpdatedAt = time.Now()
	doc, err := marshalDoc(g)
	if err != nil {
		return err
	}

	query := `
		UPDATE savings_goals
		SET status = $3, doc = $4, updated_at = $5
		WHERE id = $1 AND user_id = $2`

	res, err := r.q.ExecContext(ctx, query, g.ID, g.UserID, g.Status, doc, g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update goal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("goal")
	}
	return nil
}
