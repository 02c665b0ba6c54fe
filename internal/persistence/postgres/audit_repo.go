package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/persistence"
)

type auditRepo struct {
	q       queryer
	timeout time.Duration
}

func (r *auditRepo) Insert(ctx context.Context, l *domain.SuggestionLog) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	doc, err := marshalDoc(l)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO suggestion_logs (id, user_id, suggestion_id, action, ts, doc)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = r.q.ExecContext(ctx, query,
		l.ID, l.UserID, l.SuggestionID, l.Action, l.Timestamp, doc)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

func (r *auditRepo) ListBySuggestion(ctx context.Context, suggestionID string, limit int) ([]domain.SuggestionLog, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT doc FROM suggestion_logs
		WHERE suggestion_id = $1
		ORDER BY ts ASC`
	args := []any{suggestionID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.q.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var out []domain.SuggestionLog
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		var l domain.SuggestionLog
		if err := unmarshalDoc(doc, &l); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *auditRepo) ListByUser(ctx context.Context, userID string, q persistence.AuditQuery) ([]domain.SuggestionLog, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	conds := []string{"user_id = $1"}
	args := []any{userID}

	if len(q.Actions) > 0 {
		placeholders := make([]string, len(q.Actions))
		for i, a := range q.Actions {
			args = append(args, string(a))
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conds = append(conds, fmt.Sprintf("action IN (%s)", strings.Join(placeholders, ", ")))
	}
	if !q.Since.IsZero() {
		args = append(args, q.Since)
		conds = append(conds, fmt.Sprintf("ts >= $%d", len(args)))
	}
	if !q.Until.IsZero() {
		args = append(args, q.Until)
		conds = append(conds, fmt.Sprintf("ts <= $%d", len(args)))
	}

	query := fmt.Sprintf(`
		SELECT doc FROM suggestion_logs
		WHERE %s
		ORDER BY ts DESC`, strings.Join(conds, " AND "))
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.q.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var out []domain.SuggestionLog
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		var l domain.SuggestionLog
		if err := unmarshalDoc(doc, &l); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *auditRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM suggestion_logs WHERE ts < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old audit logs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}
