package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/persistence"
	"github.com/finpulse/finpulse/internal/persistence/memory"
)

func TestDiffStates_NestedAndUnderscoreKeys(t *testing.T) {
	prev := map[string]any{
		"amount":   500.0,
		"_version": 1,
		"metadata": map[string]any{"priority": "low", "risk": "low"},
	}
	next := map[string]any{
		"amount":   650.0,
		"_version": 2,
		"metadata": map[string]any{"priority": "high", "risk": "low"},
	}

	changes := DiffStates(prev, next)
	require.Len(t, changes, 2)
	assert.Equal(t, "amount", changes[0].Field)
	assert.Equal(t, "metadata.priority", changes[1].Field)

	diff := FormatDiff(changes)
	assert.Contains(t, diff, "amount: 500 -> 650")
	assert.Contains(t, diff, "metadata.priority: low -> high")
	assert.NotContains(t, diff, "_version")
}

func TestDiffStates_AddedAndRemovedFields(t *testing.T) {
	changes := DiffStates(
		map[string]any{"old_only": 1},
		map[string]any{"new_only": 2},
	)
	require.Len(t, changes, 2)
	assert.Equal(t, "new_only", changes[0].Field)
	assert.Nil(t, changes[0].OldValue)
	assert.Equal(t, "old_only", changes[1].Field)
	assert.Nil(t, changes[1].NewValue)
}

func TestDiffStates_StructsNormalizeThroughJSON(t *testing.T) {
	before := domain.Budget{ID: "b1", Amount: 500}
	after := domain.Budget{ID: "b1", Amount: 650}

	changes := DiffStates(before, after)
	require.Len(t, changes, 1)
	assert.Equal(t, "amount", changes[0].Field)
}

func TestLogAction_AppendsWithDiff(t *testing.T) {
	db := memory.NewStore()
	now := time.Date(2026, 5, 15, 12, 0, 0, 0, time.UTC)
	trail := NewTrail(db, zerolog.Nop()).WithClock(func() time.Time { return now })
	ctx := context.Background()

	err := trail.LogAction(ctx, Entry{
		UserID:        "u1",
		SuggestionID:  "s1",
		Action:        domain.ActionApproved,
		Actor:         domain.Actor{Type: domain.ActorUser, ID: "u1"},
		PreviousState: map[string]any{"status": "pending"},
		NewState:      map[string]any{"status": "approved"},
		Outcome:       domain.AuditOutcome{Success: true},
	})
	require.NoError(t, err)

	logs, err := trail.SuggestionTrail(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.ActionApproved, logs[0].Action)
	assert.True(t, logs[0].Timestamp.Equal(now))
	require.Len(t, logs[0].Changes, 1)
	assert.Equal(t, "status", logs[0].Changes[0].Field)
	assert.Equal(t, "status: pending -> approved", logs[0].Diff)
}

func TestLogAction_Validation(t *testing.T) {
	trail := NewTrail(memory.NewStore(), zerolog.Nop())
	err := trail.LogAction(context.Background(), Entry{Action: domain.ActionCreated})
	require.Error(t, err)

	err = trail.LogAction(context.Background(), Entry{UserID: "u1"})
	require.Error(t, err)
}

func TestUserActivity_GroupsWithSuccessRate(t *testing.T) {
	db := memory.NewStore()
	now := time.Date(2026, 5, 15, 12, 0, 0, 0, time.UTC)
	trail := NewTrail(db, zerolog.Nop()).WithClock(func() time.Time { return now })
	ctx := context.Background()

	entries := []Entry{
		{UserID: "u1", SuggestionID: "s1", Action: domain.ActionCreated, Outcome: domain.AuditOutcome{Success: true}},
		{UserID: "u1", SuggestionID: "s2", Action: domain.ActionCreated, Outcome: domain.AuditOutcome{Success: true}},
		{UserID: "u1", SuggestionID: "s1", Action: domain.ActionApplied, Outcome: domain.AuditOutcome{Success: true}},
		{UserID: "u1", SuggestionID: "s2", Action: domain.ActionApplied, Outcome: domain.AuditOutcome{Success: false, Error: "boom"}},
	}
	for _, e := range entries {
		require.NoError(t, trail.LogAction(ctx, e))
	}

	report, err := trail.UserActivity(ctx, "u1", now.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Equal(t, 4, report.Total)
	assert.InDelta(t, 0.75, report.SuccessRate, 1e-9)
	require.Len(t, report.ByAction, 2)

	for _, a := range report.ByAction {
		switch a.Action {
		case domain.ActionCreated:
			assert.Equal(t, 2, a.Count)
			assert.InDelta(t, 1.0, a.SuccessRate, 1e-9)
		case domain.ActionApplied:
			assert.Equal(t, 2, a.Count)
			assert.InDelta(t, 0.5, a.SuccessRate, 1e-9)
		}
	}
}

func TestExport_CSVAndJSON(t *testing.T) {
	db := memory.NewStore()
	now := time.Date(2026, 5, 15, 12, 0, 0, 0, time.UTC)
	trail := NewTrail(db, zerolog.Nop()).WithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, trail.LogAction(ctx, Entry{
		UserID:        "u1",
		SuggestionID:  "s1",
		Action:        domain.ActionRejected,
		Actor:         domain.Actor{Type: domain.ActorUser, ID: "u1"},
		PreviousState: map[string]any{"status": "pending"},
		NewState:      map[string]any{"status": "rejected"},
		Outcome:       domain.AuditOutcome{Success: true},
	}))

	out, err := trail.Export(ctx, "u1", persistence.AuditQuery{}, ExportCSV)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "action")
	assert.Contains(t, lines[1], "rejected")

	out, err = trail.Export(ctx, "u1", persistence.AuditQuery{}, ExportJSON)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"action": "rejected"`)

	_, err = trail.Export(ctx, "u1", persistence.AuditQuery{}, "xml")
	require.Error(t, err)
}

func TestCleanOldLogs(t *testing.T) {
	db := memory.NewStore()
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	trail := NewTrail(db, zerolog.Nop()).WithClock(func() time.Time { return old })
	ctx := context.Background()

	require.NoError(t, trail.LogAction(ctx, Entry{UserID: "u1", SuggestionID: "s1", Action: domain.ActionCreated}))

	now := old.AddDate(0, 0, 120)
	trail.WithClock(func() time.Time { return now })
	require.NoError(t, trail.LogAction(ctx, Entry{UserID: "u1", SuggestionID: "s2", Action: domain.ActionCreated}))

	deleted, err := trail.CleanOldLogs(ctx, 90)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	report, err := trail.UserActivity(ctx, "u1", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Total)
}
