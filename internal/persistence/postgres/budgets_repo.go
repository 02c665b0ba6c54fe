package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/errs"
)

type budgetsRepo struct {
	q       queryer
	timeout time.Duration
}

func (r *budgetsRepo) Insert(ctx context.Context, b *domain.Budget) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	doc, err := marshalDoc(b)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO budgets (id, user_id, category_id, is_active, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = r.q.ExecContext(ctx, query,
		b.ID, b.UserID, b.CategoryID, b.IsActive, doc, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert budget: %w", err)
	}
	return nil
}

func (r *budgetsRepo) GetByID(ctx context.Context, userID, id string) (*domain.Budget, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var doc []byte
	err := r.q.QueryRowxContext(ctx,
		`SELECT doc FROM budgets WHERE id = $1 AND user_id = $2`, id, userID).Scan(&doc)
	if err != nil {
		return nil, mapGetErr(err, "budget")
	}

	var b domain.Budget
	if err := unmarshalDoc(doc, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *budgetsRepo) ListActive(ctx context.Context, userID string) ([]domain.Budget, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.q.QueryxContext(ctx,
		`SELECT doc FROM budgets WHERE user_id = $1 AND is_active ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query budgets: %w", err)
	}
	defer rows.Close()

	var out []domain.Budget
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan budget: %w", err)
		}
		var b domain.Budget
		if err := unmarshalDoc(doc, &b); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *budgetsRepo) UpdateAmount(ctx context.Context, userID, id string, amount float64) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		UPDATE budgets
		SET doc = jsonb_set(jsonb_set(doc, '{amount}', to_jsonb($3::numeric)), '{updated_at}', to_jsonb($4::timestamptz)),
		    updated_at = $4
		WHERE id = $1 AND user_id = $2`

	res, err := r.q.ExecContext(ctx, query, id, userID, amount, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update budget amount: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("budget")
	}
	return nil
}

func (r *budgetsRepo) Delete(ctx context.Context, userID, id string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx,
		`DELETE FROM budgets WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete budget: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("budget")
	}
	return nil
}
