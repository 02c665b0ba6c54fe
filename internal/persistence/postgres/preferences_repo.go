package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/finpulse/finpulse/internal/domain"
)

type preferencesRepo struct {
	q       queryer
	timeout time.Duration
}

func (r *preferencesRepo) GetOrCreate(ctx context.Context, userID string) (*domain.UserPreference, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var doc []byte
	err := r.q.QueryRowxContext(ctx,
		`SELECT doc FROM user_preferences WHERE user_id = $1`, userID).Scan(&doc)
	if err == nil {
		var p domain.UserPreference
		if err := unmarshalDoc(doc, &p); err != nil {
			return nil, err
		}
		return &p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get preferences: %w", err)
	}

	p := domain.NewUserPreference(userID)
	p.UpdatedAt = time.Now()
	doc, err = marshalDoc(p)
	if err != nil {
		return nil, err
	}

	// Concurrent first access may race; the existing row wins.
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO user_preferences (user_id, doc, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING`, userID, doc, p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create preferences: %w", err)
	}
	return p, nil
}

func (r *preferencesRepo) Save(ctx context.Context, p *domain.UserPreference) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	p.UpdatedAt = time.Now()
	doc, err := marshalDoc(p)
	if err != nil {
		return err
	}

	_, err = r.q.ExecContext(ctx, `
		INSERT INTO user_preferences (user_id, doc, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`,
		p.UserID, doc, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}
