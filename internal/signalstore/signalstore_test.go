package signalstore

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/persistence"
	"github.com/finpulse/finpulse/internal/persistence/memory"
)

func newTestStore(now time.Time) (*Store, *memory.Store) {
	db := memory.NewStore()
	return New(db, zerolog.Nop()).WithClock(func() time.Time { return now }), db
}

func signal(userID string, typ domain.SignalType, category string, start, end time.Time) domain.FinancialSignal {
	return domain.FinancialSignal{
		UserID:   userID,
		Type:     typ,
		Name:     string(typ),
		Category: category,
		Priority: 2,
		Period:   domain.SignalPeriod{StartDate: start, EndDate: end},
	}
}

func TestStoreSignals_DeduplicatesAgainstActive(t *testing.T) {
	now := time.Date(2026, 5, 15, 12, 0, 0, 0, time.UTC)
	s, _ := newTestStore(now)
	ctx := context.Background()

	start, end := now.AddDate(0, 0, -30), now
	first := signal("u1", domain.SignalCategoryDelta, "dining", start, end)

	n, err := s.StoreSignals(ctx, []domain.FinancialSignal{first})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Same identity tuple, different payload: must be skipped while the
	// original stays active.
	dupe := signal("u1", domain.SignalCategoryDelta, "dining", start, end)
	dupe.Value.Current = 999

	n, err = s.StoreSignals(ctx, []domain.FinancialSignal{dupe})
	require.NoError(t, err)
	assert.Zero(t, n)

	listed, err := s.UserSignals(ctx, "u1", persistence.SignalQuery{})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Zero(t, listed[0].Value.Current)
}

func TestStoreSignals_MixedBatchSkipsOnlyDupes(t *testing.T) {
	now := time.Date(2026, 5, 15, 12, 0, 0, 0, time.UTC)
	s, _ := newTestStore(now)
	ctx := context.Background()

	start, end := now.AddDate(0, 0, -30), now
	n, err := s.StoreSignals(ctx, []domain.FinancialSignal{
		signal("u1", domain.SignalCategoryDelta, "dining", start, end),
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = s.StoreSignals(ctx, []domain.FinancialSignal{
		signal("u1", domain.SignalCategoryDelta, "dining", start, end),  // dupe
		signal("u1", domain.SignalCategoryDelta, "grocery", start, end), // new category
		signal("u1", domain.SignalGrowthTrend, "dining", start, end),    // new type
		signal("u2", domain.SignalCategoryDelta, "dining", start, end),  // other user
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestStoreSignals_DismissedSignalDoesNotBlock(t *testing.T) {
	now := time.Date(2026, 5, 15, 12, 0, 0, 0, time.UTC)
	s, _ := newTestStore(now)
	ctx := context.Background()

	start, end := now.AddDate(0, 0, -30), now
	stored, err := s.StoreSignal(ctx, signal("u1", domain.SignalBudgetDrift, "rent", start, end))
	require.NoError(t, err)
	require.True(t, stored)

	listed, err := s.UserSignals(ctx, "u1", persistence.SignalQuery{})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	require.NoError(t, s.UpdateStatus(ctx, "u1", listed[0].ID, domain.SignalDismissed))

	// Dedup only guards active signals, so the finding may recur.
	stored, err = s.StoreSignal(ctx, signal("u1", domain.SignalBudgetDrift, "rent", start, end))
	require.NoError(t, err)
	assert.True(t, stored)
}

func TestUpdateStatus_StampsTimestamps(t *testing.T) {
	now := time.Date(2026, 5, 15, 12, 0, 0, 0, time.UTC)
	s, _ := newTestStore(now)
	ctx := context.Background()

	start, end := now.AddDate(0, 0, -30), now
	_, err := s.StoreSignal(ctx, signal("u1", domain.SignalGoalUnderfunding, "", start, end))
	require.NoError(t, err)

	listed, err := s.UserSignals(ctx, "u1", persistence.SignalQuery{})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	id := listed[0].ID

	require.NoError(t, s.UpdateStatus(ctx, "u1", id, domain.SignalActioned))

	got, err := s.SignalByID(ctx, "u1", id)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	require.NotNil(t, got.ActionedAt)
	assert.True(t, got.ActionedAt.Equal(now))
	assert.Nil(t, got.DismissedAt)
}

func TestRelatedSignals_ByCategory(t *testing.T) {
	now := time.Date(2026, 5, 15, 12, 0, 0, 0, time.UTC)
	s, _ := newTestStore(now)
	ctx := context.Background()

	start, end := now.AddDate(0, 0, -30), now
	_, err := s.StoreSignals(ctx, []domain.FinancialSignal{
		signal("u1", domain.SignalCategoryDelta, "dining", start, end),
		signal("u1", domain.SignalGrowthTrend, "dining", start, end),
		signal("u1", domain.SignalBudgetDrift, "dining", start, end),
		signal("u1", domain.SignalCategoryDelta, "rent", start, end),
	})
	require.NoError(t, err)

	listed, err := s.UserSignals(ctx, "u1", persistence.SignalQuery{Category: "dining"})
	require.NoError(t, err)
	require.Len(t, listed, 3)

	related, err := s.RelatedSignals(ctx, "u1", listed[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, related, 2)
	for _, r := range related {
		assert.Equal(t, "dining", r.Category)
		assert.NotEqual(t, listed[0].ID, r.ID)
	}

	related, err = s.RelatedSignals(ctx, "u1", listed[0].ID, 1)
	require.NoError(t, err)
	assert.Len(t, related, 1)
}

func TestArchiveOld_DeactivatesExpired(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s, _ := newTestStore(created)
	ctx := context.Background()

	sig := signal("u1", domain.SignalSpendingCluster, "travel", created.AddDate(0, 0, -30), created)
	_, err := s.StoreSignal(ctx, sig)
	require.NoError(t, err)

	// Advance past the default TTL.
	s.WithClock(func() time.Time { return created.Add(domain.DefaultSignalTTL + time.Hour) })

	n, err := s.ArchiveOld(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	listed, err := s.UserSignals(ctx, "u1", persistence.SignalQuery{})
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestUserStats_CountsByDisposition(t *testing.T) {
	now := time.Date(2026, 5, 15, 12, 0, 0, 0, time.UTC)
	s, _ := newTestStore(now)
	ctx := context.Background()

	start, end := now.AddDate(0, 0, -30), now
	_, err := s.StoreSignals(ctx, []domain.FinancialSignal{
		signal("u1", domain.SignalCategoryDelta, "dining", start, end),
		signal("u1", domain.SignalCategoryDelta, "rent", start, end),
		signal("u1", domain.SignalRiskDetected, "", start, end),
	})
	require.NoError(t, err)

	listed, err := s.UserSignals(ctx, "u1", persistence.SignalQuery{Category: "rent"})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.NoError(t, s.UpdateStatus(ctx, "u1", listed[0].ID, domain.SignalDismissed))

	stats, err := s.UserStats(ctx, "u1", 30)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Active)
	assert.Equal(t, 1, stats.Dismissed)
	assert.Zero(t, stats.Actioned)
	assert.Equal(t, 2, stats.ByType[domain.SignalCategoryDelta])
	assert.Equal(t, 3, stats.ByPriority[2])
}

func TestStoreSignals_ValidationFailureAborts(t *testing.T) {
	now := time.Date(2026, 5, 15, 12, 0, 0, 0, time.UTC)
	s, _ := newTestStore(now)
	ctx := context.Background()

	start, end := now.AddDate(0, 0, -30), now
	_, err := s.StoreSignals(ctx, []domain.FinancialSignal{
		signal("u1", domain.SignalCategoryDelta, "dining", start, end),
		{UserID: "u1"}, // missing type
	})
	require.Error(t, err)

	// The transaction rolls back, so the valid signal is gone too.
	listed, lerr := s.UserSignals(ctx, "u1", persistence.SignalQuery{})
	require.NoError(t, lerr)
	assert.Empty(t, listed)
}
