package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/errs"
)

type feedbackRepo struct {
	q       queryer
	timeout time.Duration
}

func (r *feedbackRepo) Insert(ctx context.Context, f *domain.SuggestionFeedback) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	doc, err := marshalDoc(f)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO suggestion_feedback (id, user_id, suggestion_id, type, decision, doc, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = r.q.ExecContext(ctx, query,
		f.ID, f.UserID, f.SuggestionID, f.Type, f.Decision, doc, f.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errs.Validationf("feedback already recorded for suggestion %s", f.SuggestionID)
		}
		return fmt.Errorf("failed to insert feedback: %w", err)
	}
	return nil
}

func (r *feedbackRepo) GetBySuggestion(ctx context.Context, userID, suggestionID string) (*domain.SuggestionFeedback, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var doc []byte
	err := r.q.QueryRowxContext(ctx,
		`SELECT doc FROM suggestion_feedback WHERE user_id = $1 AND suggestion_id = $2`,
		userID, suggestionID).Scan(&doc)
	if err != nil {
		return nil, mapGetErr(err, "feedback")
	}

	var f domain.SuggestionFeedback
	if err := unmarshalDoc(doc, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *feedbackRepo) ListByUser(ctx context.Context, userID string, since time.Time) ([]domain.SuggestionFeedback, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.q.QueryxContext(ctx, `
		SELECT doc FROM suggestion_feedback
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at ASC`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()

	var out []domain.SuggestionFeedback
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		var f domain.SuggestionFeedback
		if err := unmarshalDoc(doc, &f); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
