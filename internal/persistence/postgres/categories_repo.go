package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/errs"
)

type categoriesRepo struct {
	q       queryer
	timeout time.Duration
}

func (r *categoriesRepo) Insert(ctx context.Context, c *domain.Category) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	doc, err := marshalDoc(c)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO categories (id, user_id, name, is_system, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = r.q.ExecContext(ctx, query,
		c.ID, c.UserID, c.Name, c.IsSystem, doc, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errs.Validationf("category name %q already exists", c.Name)
		}
		return fmt.Errorf("failed to insert category: %w", err)
	}
	return nil
}

func (r *categoriesRepo) GetByID(ctx context.Context, userID, id string) (*domain.Category, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var doc []byte
	err := r.q.QueryRowxContext(ctx,
		`SELECT doc FROM categories WHERE id = $1 AND user_id = $2`, id, userID).Scan(&doc)
	if err != nil {
		return nil, mapGetErr(err, "category")
	}

	var c domain.Category
	if err := unmarshalDoc(doc, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *categoriesRepo) GetByName(ctx context.Context, userID, name string) (*domain.Category, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var doc []byte
	err := r.q.QueryRowxContext(ctx,
		`SELECT doc FROM categories WHERE user_id = $1 AND lower(name) = lower($2)`,
		userID, name).Scan(&doc)
	if err != nil {
		return nil, mapGetErr(err, "category")
	}

	var c domain.Category
	if err := unmarshalDoc(doc, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *categoriesRepo) ListByUser(ctx context.Context, userID string) ([]domain.Category, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.q.QueryxContext(ctx,
		`SELECT doc FROM categories WHERE user_id = $1 ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var out []domain.Category
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		var c domain.Category
		if err := unmarshalDoc(doc, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *categoriesRepo) Delete(ctx context.Context, userID, id string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var isSystem bool
	err := r.q.QueryRowxContext(ctx,
		`SELECT is_system FROM categories WHERE id = $1 AND user_id = $2`, id, userID).Scan(&isSystem)
	if err != nil {
		return mapGetErr(err, "category")
	}
	if isSystem {
		return errs.Permission("system categories cannot be deleted")
	}

	_, err = r.q.ExecContext(ctx,
		`DELETE FROM categories WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	return nil
}
