// Package audit records every suggestion lifecycle event as an
// append-only log with structural diffs, and answers trail, activity and
// export queries over it.
package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/errs"
	"github.com/finpulse/finpulse/internal/persistence"
)

// DefaultRetentionDays bounds how long audit rows are kept.
const DefaultRetentionDays = 90

// Trail writes and queries the suggestion audit log.
type Trail struct {
	db  persistence.Store
	log zerolog.Logger
	now func() time.Time
}

// NewTrail wires an audit trail over the persistence layer.
func NewTrail(db persistence.Store, log zerolog.Logger) *Trail {
	return &Trail{db: db, log: log, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (t *Trail) WithClock(now func() time.Time) *Trail {
	t.now = now
	return t
}

// Entry describes one lifecycle event to record.
type Entry struct {
	UserID        string
	SuggestionID  string
	Action        domain.AuditAction
	Actor         domain.Actor
	PreviousState any
	NewState      any
	Outcome       domain.AuditOutcome
}

// LogAction appends one audit event, computing the field-level diff
// between the previous and new states.
func (t *Trail) LogAction(ctx context.Context, e Entry) error {
	return t.LogActionIn(ctx, t.db, e)
}

// LogActionIn appends an audit event through the given store, so
// lifecycle transitions can write the event inside their own
// transaction.
func (t *Trail) LogActionIn(ctx context.Context, db persistence.Store, e Entry) error {
	if e.UserID == "" {
		return errs.Validation("audit entry user id is required", nil)
	}
	if e.Action == "" {
		return errs.Validation("audit entry action is required", nil)
	}
	if e.Actor.Type == "" {
		e.Actor.Type = domain.ActorSystem
	}

	changes := DiffStates(e.PreviousState, e.NewState)
	entry := &domain.SuggestionLog{
		ID:            uuid.NewString(),
		UserID:        e.UserID,
		SuggestionID:  e.SuggestionID,
		Action:        e.Action,
		Timestamp:     t.now(),
		Actor:         e.Actor,
		PreviousState: e.PreviousState,
		NewState:      e.NewState,
		Changes:       changes,
		Diff:          FormatDiff(changes),
		Outcome:       e.Outcome,
	}
	if err := db.Audit().Insert(ctx, entry); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// SuggestionTrail returns one suggestion's full event history, oldest
// first.
func (t *Trail) SuggestionTrail(ctx context.Context, suggestionID string, limit int) ([]domain.SuggestionLog, error) {
	if suggestionID == "" {
		return nil, errs.Validation("suggestion id is required", nil)
	}
	logs, err := t.db.Audit().ListBySuggestion(ctx, suggestionID, limit)
	if err != nil {
		return nil, err
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].Timestamp.Before(logs[j].Timestamp) })
	return logs, nil
}

// ActionActivity summarizes one action type's activity for a user.
type ActionActivity struct {
	Action      domain.AuditAction `json:"action"`
	Count       int                `json:"count"`
	Succeeded   int                `json:"succeeded"`
	SuccessRate float64            `json:"success_rate"`
	LastAt      time.Time          `json:"last_at"`
}

// ActivityReport groups a user's audit activity by action.
type ActivityReport struct {
	UserID      string           `json:"user_id"`
	Since       time.Time        `json:"since"`
	Total       int              `json:"total"`
	SuccessRate float64          `json:"success_rate"`
	ByAction    []ActionActivity `json:"by_action"`
}

// UserActivity aggregates a user's audit events since the given time.
func (t *Trail) UserActivity(ctx context.Context, userID string, since time.Time) (*ActivityReport, error) {
	logs, err := t.db.Audit().ListByUser(ctx, userID, persistence.AuditQuery{Since: since})
	if err != nil {
		return nil, err
	}

	byAction := make(map[domain.AuditAction]*ActionActivity)
	var succeeded int
	for _, l := range logs {
		a, ok := byAction[l.Action]
		if !ok {
			a = &ActionActivity{Action: l.Action}
			byAction[l.Action] = a
		}
		a.Count++
		if l.Outcome.Success {
			a.Succeeded++
			succeeded++
		}
		if l.Timestamp.After(a.LastAt) {
			a.LastAt = l.Timestamp
		}
	}

	report := &ActivityReport{UserID: userID, Since: since, Total: len(logs)}
	if report.Total > 0 {
		report.SuccessRate = float64(succeeded) / float64(report.Total)
	}
	for _, a := range byAction {
		if a.Count > 0 {
			a.SuccessRate = float64(a.Succeeded) / float64(a.Count)
		}
		report.ByAction = append(report.ByAction, *a)
	}
	sort.Slice(report.ByAction, func(i, j int) bool {
		return report.ByAction[i].Count > report.ByAction[j].Count
	})
	return report, nil
}

// ExportFormat selects the audit export encoding.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
)

// Export serializes a user's audit log in the requested format.
func (t *Trail) Export(ctx context.Context, userID string, q persistence.AuditQuery, format ExportFormat) ([]byte, error) {
	logs, err := t.db.Audit().ListByUser(ctx, userID, q)
	if err != nil {
		return nil, err
	}

	switch format {
	case ExportJSON, "":
		out, err := json.MarshalIndent(logs, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode audit export: %w", err)
		}
		return out, nil
	case ExportCSV:
		return exportCSV(logs)
	default:
		return nil, errs.Validationf("unsupported export format %q", format)
	}
}

func exportCSV(logs []domain.SuggestionLog) ([]byte, error) {
	var buf strings.Builder
	w := csv.NewWriter(&buf)
	header := []string{"id", "suggestion_id", "action", "timestamp", "actor_type", "actor_id", "success", "error", "changes"}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to encode audit export: %w", err)
	}
	for _, l := range logs {
		row := []string{
			l.ID,
			l.SuggestionID,
			string(l.Action),
			l.Timestamp.UTC().Format(time.RFC3339),
			string(l.Actor.Type),
			l.Actor.ID,
			strconv.FormatBool(l.Outcome.Success),
			l.Outcome.Error,
			strings.ReplaceAll(l.Diff, "\n", "; "),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to encode audit export: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to encode audit export: %w", err)
	}
	return []byte(buf.String()), nil
}

// CleanOldLogs removes audit rows older than the retention window.
func (t *Trail) CleanOldLogs(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	cutoff := t.now().AddDate(0, 0, -retentionDays)
	n, err := t.db.Audit().DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		t.log.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("old audit logs removed")
	}
	return n, nil
}
