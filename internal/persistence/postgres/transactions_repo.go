package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/errs"
	"github.com/finpulse/finpulse/internal/persistence"
)

type txRepo struct {
	q       queryer
	timeout time.Duration
}

func (r *txRepo) Insert(ctx context.Context, tx *domain.Transaction) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := tx.Validate(); err != nil {
		return errs.Validation(err.Error(), nil)
	}

	doc, err := marshalDoc(tx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO transactions (id, user_id, category_id, type, status, amount, date, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.q.ExecContext(ctx, query,
		tx.ID, tx.UserID, tx.CategoryID, tx.Type, tx.Status,
		tx.Amount, tx.Date, doc, tx.CreatedAt, tx.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errs.Validationf("duplicate transaction: %s", tx.ID)
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (r *txRepo) InsertBatch(ctx context.Context, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(txs)/100+1))
	defer cancel()

	query := `
		INSERT INTO transactions (id, user_id, category_id, type, status, amount, date, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	for i := range txs {
		tx := &txs[i]
		if err := tx.Validate(); err != nil {
			return errs.Validation(err.Error(), map[string]string{"index": fmt.Sprint(i)})
		}
		doc, err := marshalDoc(tx)
		if err != nil {
			return err
		}
		_, err = r.q.ExecContext(ctx, query,
			tx.ID, tx.UserID, tx.CategoryID, tx.Type, tx.Status,
			tx.Amount, tx.Date, doc, tx.CreatedAt, tx.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert transaction in batch: %w", err)
		}
	}
	return nil
}

func (r *txRepo) GetByID(ctx context.Context, userID, id string) (*domain.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var doc []byte
	err := r.q.QueryRowxContext(ctx,
		`SELECT doc FROM transactions WHERE id = $1 AND user_id = $2`, id, userID).Scan(&doc)
	if err != nil {
		return nil, mapGetErr(err, "transaction")
	}

	var tx domain.Transaction
	if err := unmarshalDoc(doc, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *txRepo) ListByUser(ctx context.Context, userID string, tr persistence.TimeRange, limit int) ([]domain.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT doc FROM transactions
		WHERE user_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date DESC`
	args := []any{userID, tr.From, tr.To}
	if limit > 0 {
		query += ` LIMIT $4`
		args = append(args, limit)
	}

	rows, err := r.q.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		var tx domain.Transaction
		if err := unmarshalDoc(doc, &tx); err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (r *txRepo) ListByCategory(ctx context.Context, userID, categoryID string, tr persistence.TimeRange) ([]domain.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT doc FROM transactions
		WHERE user_id = $1 AND category_id = $2 AND date >= $3 AND date <= $4
		ORDER BY date ASC`

	rows, err := r.q.QueryxContext(ctx, query, userID, categoryID, tr.From, tr.To)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions by category: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		var tx domain.Transaction
		if err := unmarshalDoc(doc, &tx); err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (r *txRepo) SumCompletedExpenses(ctx context.Context, userID, categoryID string, tr persistence.TimeRange) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE user_id = $1 AND type = 'expense' AND status = 'completed'
		  AND date >= $2 AND date <= $3
		  AND ($4 = '' OR category_id = $4)`

	var sum float64
	err := r.q.QueryRowxContext(ctx, query, userID, tr.From, tr.To, categoryID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum expenses: %w", err)
	}
	return sum, nil
}

func (r *txRepo) CountByCategory(ctx context.Context, userID, categoryID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var count int64
	err := r.q.QueryRowxContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE user_id = $1 AND category_id = $2`,
		userID, categoryID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

func (r *txRepo) UpdateCategory(ctx context.Context, userID, id, categoryID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		UPDATE transactions
		SET category_id = $3,
		    doc = jsonb_set(jsonb_set(doc, '{category_id}', to_jsonb($3::text)), '{updated_at}', to_jsonb($4::timestamptz)),
		    updated_at = $4
		WHERE id = $1 AND user_id = $2`

	res, err := r.q.ExecContext(ctx, query, id, userID, categoryID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update transaction category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("transaction")
	}
	return nil
}
