package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/errs"
	"github.com/finpulse/finpulse/internal/persistence"
)

type signalsRepo struct {
	q       queryer
	timeout time.Duration
}

func (r *signalsRepo) Insert(ctx context.Context, s *domain.FinancialSignal) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	doc, err := marshalDoc(s)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO financial_signals
			(id, user_id, type, category, priority, signal_hash, is_active, expires_at, doc, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.q.ExecContext(ctx, query,
		s.ID, s.UserID, s.Type, s.Category, s.Priority,
		s.Data.Metadata.SignalHash, s.IsActive, s.ExpiresAt, doc, s.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errs.Validationf("duplicate active signal: %s", s.Data.Metadata.SignalHash)
		}
		return fmt.Errorf("failed to insert signal: %w", err)
	}
	return nil
}

func (r *signalsRepo) GetByID(ctx context.Context, userID, id string) (*domain.FinancialSignal, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var doc []byte
	err := r.q.QueryRowxContext(ctx,
		`SELECT doc FROM financial_signals WHERE id = $1 AND user_id = $2`, id, userID).Scan(&doc)
	if err != nil {
		return nil, mapGetErr(err, "signal")
	}

	var s domain.FinancialSignal
	if err := unmarshalDoc(doc, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *signalsRepo) List(ctx context.Context, userID string, q persistence.SignalQuery) ([]domain.FinancialSignal, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	conds := []string{"user_id = $1"}
	args := []any{userID}

	if !q.IncludeInactive {
		conds = append(conds, "is_active", fmt.Sprintf("expires_at > $%d", len(args)+1))
		args = append(args, time.Now())
	}
	if len(q.Types) > 0 {
		placeholders := make([]string, len(q.Types))
		for i, t := range q.Types {
			args = append(args, string(t))
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conds = append(conds, fmt.Sprintf("type IN (%s)", strings.Join(placeholders, ", ")))
	}
	if q.MinPriority > 0 {
		args = append(args, q.MinPriority)
		conds = append(conds, fmt.Sprintf("priority <= $%d", len(args)))
	}
	if q.Category != "" {
		args = append(args, q.Category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if !q.Since.IsZero() {
		args = append(args, q.Since)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}

	query := fmt.Sprintf(`
		SELECT doc FROM financial_signals
		WHERE %s
		ORDER BY priority ASC, created_at DESC`, strings.Join(conds, " AND "))
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.q.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var out []domain.FinancialSignal
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		var s domain.FinancialSignal
		if err := unmarshalDoc(doc, &s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *signalsRepo) ActiveHashes(ctx context.Context, userID string) (map[string]bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.q.QueryxContext(ctx,
		`SELECT signal_hash FROM financial_signals WHERE user_id = $1 AND is_active`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query signal hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]bool)
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan signal hash: %w", err)
		}
		hashes[h] = true
	}
	return hashes, rows.Err()
}

func (r *signalsRepo) UpdateStatus(ctx context.Context, userID, id string, status domain.SignalStatus, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var query string
	switch status {
	case domain.SignalActive:
		query = `
			UPDATE financial_signals
			SET is_active = true,
			    doc = doc || jsonb_build_object('is_active', true) #- '{dismissed_at}' #- '{actioned_at}'
			WHERE id = $1 AND user_id = $2`
	case domain.SignalDismissed:
		query = `
			UPDATE financial_signals
			SET is_active = false,
			    doc = doc || jsonb_build_object('is_active', false, 'dismissed_at', $3::timestamptz)
			WHERE id = $1 AND user_id = $2`
	case domain.SignalActioned:
		query = `
			UPDATE financial_signals
			SET is_active = false,
			    doc = doc || jsonb_build_object('is_active', false, 'actioned_at', $3::timestamptz)
			WHERE id = $1 AND user_id = $2`
	default:
		return errs.Validationf("unknown signal status: %s", status)
	}

	var (
		res interface{ RowsAffected() (int64, error) }
		err error
	)
	if status == domain.SignalActive {
		res, err = r.q.ExecContext(ctx, query, id, userID)
	} else {
		res, err = r.q.ExecContext(ctx, query, id, userID, at)
	}
	if err != nil {
		return fmt.Errorf("failed to update signal status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("signal")
	}
	return nil
}

func (r *signalsRepo) ArchiveExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE financial_signals
		SET is_active = false, doc = doc || jsonb_build_object('is_active', false)
		WHERE is_active AND expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to archive expired signals: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}
