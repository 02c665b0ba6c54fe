package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/errs"
)

type suggestionsRepo struct {
	q       queryer
	timeout time.Duration
}

func (r *suggestionsRepo) Insert(ctx context.Context, s *domain.PendingSuggestion) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	doc, err := marshalDoc(s)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO pending_suggestions
			(id, user_id, type, status, target_id, category_id, expires_at, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.q.ExecContext(ctx, query,
		s.ID, s.UserID, s.Type, s.Status,
		s.ProposedChanges.TargetID(), s.ProposedChanges.CategoryID(),
		s.Metadata.ExpiresAt, doc, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert suggestion: %w", err)
	}
	return nil
}

func (r *suggestionsRepo) GetByID(ctx context.Context, userID, id string) (*domain.PendingSuggestion, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var doc []byte
	err := r.q.QueryRowxContext(ctx,
		`SELECT doc FROM pending_suggestions WHERE id = $1 AND user_id = $2`, id, userID).Scan(&doc)
	if err != nil {
		return nil, mapGetErr(err, "suggestion")
	}

	var s domain.PendingSuggestion
	if err := unmarshalDoc(doc, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *suggestionsRepo) ListByUser(ctx context.Context, userID string, statuses []domain.SuggestionStatus, limit int) ([]domain.PendingSuggestion, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	conds := []string{"user_id = $1"}
	args := []any{userID}

	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			args = append(args, string(st))
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conds = append(conds, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}

	query := fmt.Sprintf(`
		SELECT doc FROM pending_suggestions
		WHERE %s
		ORDER BY created_at DESC`, strings.Join(conds, " AND "))
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.q.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query suggestions: %w", err)
	}
	defer rows.Close()

	return scanSuggestions(rows)
}

func (r *suggestionsRepo) FindActiveByTarget(ctx context.Context, userID string, typ domain.SuggestionType, targetID string) (*domain.PendingSuggestion, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT doc FROM pending_suggestions
		WHERE user_id = $1 AND type = $2 AND target_id = $3
		  AND status IN ('pending', 'approved', 'conflict')
		ORDER BY created_at DESC
		LIMIT 1`

	var doc []byte
	err := r.q.QueryRowxContext(ctx, query, userID, typ, targetID).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find suggestion by target: %w", err)
	}

	var s domain.PendingSuggestion
	if err := unmarshalDoc(doc, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *suggestionsRepo) ListActiveByCategory(ctx context.Context, userID, categoryID string) ([]domain.PendingSuggestion, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if categoryID == "" {
		return nil, nil
	}

	query := `
		SELECT doc FROM pending_suggestions
		WHERE user_id = $1 AND category_id = $2 AND status IN ('pending', 'approved')`

	rows, err := r.q.QueryxContext(ctx, query, userID, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query suggestions by category: %w", err)
	}
	defer rows.Close()

	return scanSuggestions(rows)
}

func (r *suggestionsRepo) Update(ctx context.Context, s *domain.PendingSuggestion) error {
	return r.update(ctx, s, "")
}

func (r *suggestionsRepo) UpdateIfStatus(ctx context.Context, s *domain.PendingSuggestion, expected domain.SuggestionStatus) error {
	return r.update(ctx, s, expected)
}

func (r *suggestionsRepo) update(ctx context.Context, s *domain.PendingSuggestion, expected domain.SuggestionStatus) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	s.UpdatedAt = time.Now()
	doc, err := marshalDoc(s)
	if err != nil {
		return err
	}

	query := `
		UPDATE pending_suggestions
		SET status = $3, expires_at = $4, doc = $5, updated_at = $6
		WHERE id = $1 AND user_id = $2`
	args := []any{s.ID, s.UserID, s.Status, s.Metadata.ExpiresAt, doc, s.UpdatedAt}
	if expected != "" {
		query += ` AND status = $7`
		args = append(args, expected)
	}

	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update suggestion: %w", err)
	}
	n, _ := res.RowsAffected()
	if n != 0 {
		return nil
	}
	if expected == "" {
		return errs.NotFound("suggestion")
	}

	// Distinguish a missing row from a lost optimistic-concurrency race.
	var exists bool
	checkErr := r.q.QueryRowxContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM pending_suggestions WHERE id = $1 AND user_id = $2)`,
		s.ID, s.UserID).Scan(&exists)
	if checkErr == nil && !exists {
		return errs.NotFound("suggestion")
	}
	return errs.Concurrency("suggestion status changed concurrently")
}

func (r *suggestionsRepo) ListExpirable(ctx context.Context, cutoff time.Time, limit int) ([]domain.PendingSuggestion, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT doc FROM pending_suggestions
		WHERE status IN ('pending', 'approved') AND expires_at < $1
		ORDER BY expires_at`
	args := []any{cutoff}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.q.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query expirable suggestions: %w", err)
	}
	defer rows.Close()

	return scanSuggestions(rows)
}

func (r *suggestionsRepo) LastTerminalOfType(ctx context.Context, userID string, typ domain.SuggestionType) (*time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT MAX(updated_at) FROM pending_suggestions
		WHERE user_id = $1 AND type = $2 AND status IN ('applied', 'rejected')`

	var t *time.Time
	err := r.q.QueryRowxContext(ctx, query, userID, typ).Scan(&t)
	if err != nil {
		return nil, fmt.Errorf("failed to query last terminal suggestion: %w", err)
	}
	return t, nil
}

func (r *suggestionsRepo) InsertConflict(ctx context.Context, userID, a, b, conflictType string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO suggestion_conflicts (user_id, suggestion_a, suggestion_b, conflict_type, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.q.ExecContext(ctx, query, userID, a, b, conflictType, time.Now())
	if err != nil {
		return fmt.Errorf("failed to insert conflict: %w", err)
	}
	return nil
}

func scanSuggestions(rows *sqlx.Rows) ([]domain.PendingSuggestion, error) {
	var out []domain.PendingSuggestion
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		var s domain.PendingSuggestion
		if err := unmarshalDoc(doc, &s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
