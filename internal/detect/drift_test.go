package detect

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/persistence/memory"
)

func seedExpenses(t *testing.T, store *memory.Store, userID, categoryID string, dates []time.Time, amounts []float64) {
	t.Helper()
	require.Equal(t, len(dates), len(amounts))
	for i := range dates {
		err := store.Transactions().Insert(context.Background(), &domain.Transaction{
			ID:         fmt.Sprintf("tx-%s-%d", categoryID, i),
			UserID:     userID,
			Amount:     amounts[i],
			Type:       domain.TxExpense,
			CategoryID: categoryID,
			Status:     domain.TxCompleted,
			Date:       dates[i],
		})
		require.NoError(t, err)
	}
}

func TestBudgetDrift_FlexibleMidMonth(t *testing.T) {
	store := memory.NewStore()
	userID := "u1"
	// April has 30 days; four purchases in the first ten days total $300.
	now := time.Date(2026, 4, 10, 18, 0, 0, 0, time.UTC)
	seedExpenses(t, store, userID, "groceries",
		[]time.Time{
			time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC),
			time.Date(2026, 4, 4, 10, 0, 0, 0, time.UTC),
			time.Date(2026, 4, 7, 10, 0, 0, 0, time.UTC),
			time.Date(2026, 4, 9, 10, 0, 0, 0, time.UTC),
		},
		[]float64{80, 70, 90, 60})

	budget := &domain.Budget{
		ID: "b1", UserID: userID, CategoryID: "groceries",
		Amount: 600, Period: domain.PeriodMonthly,
		Flexibility: domain.FlexFlexible, IsActive: true,
	}

	det := NewBudgetDriftDetector(store).WithClock(func() time.Time { return now })
	res, err := det.Detect(context.Background(), budget)
	require.NoError(t, err)

	assert.True(t, res.HasDrift)
	assert.Equal(t, SeverityMedium, res.Severity)
	assert.Equal(t, 10, res.DaysElapsed)
	assert.Equal(t, 30, res.TotalDays)
	assert.InDelta(t, 50.0, res.DriftPercentage, 1.0)
	assert.InDelta(t, 300.0, res.ProjectedOvershoot, 1.0)

	require.NotEmpty(t, res.Recommendations)
	var hasAmount bool
	for _, rec := range res.Recommendations {
		if strings.Contains(rec, "$") {
			hasAmount = true
		}
	}
	assert.True(t, hasAmount, "recommendations should quote a dollar amount")
}

func TestBudgetDrift_OnTrack(t *testing.T) {
	store := memory.NewStore()
	now := time.Date(2026, 4, 15, 12, 0, 0, 0, time.UTC)
	seedExpenses(t, store, "u1", "transport",
		[]time.Time{time.Date(2026, 4, 5, 9, 0, 0, 0, time.UTC)},
		[]float64{100})

	budget := &domain.Budget{
		ID: "b2", UserID: "u1", CategoryID: "transport",
		Amount: 300, Period: domain.PeriodMonthly,
		Flexibility: domain.FlexFlexible, IsActive: true,
	}

	det := NewBudgetDriftDetector(store).WithClock(func() time.Time { return now })
	res, err := det.Detect(context.Background(), budget)
	require.NoError(t, err)

	assert.False(t, res.HasDrift)
	assert.Equal(t, SeverityNone, res.Severity)
	assert.Empty(t, res.Recommendations)
}

func TestBudgetDrift_StrictThresholds(t *testing.T) {
	store := memory.NewStore()
	now := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)
	// 20% over the expected pace.
	seedExpenses(t, store, "u1", "dining",
		[]time.Time{time.Date(2026, 4, 3, 12, 0, 0, 0, time.UTC)},
		[]float64{120})

	budget := &domain.Budget{
		ID: "b3", UserID: "u1", CategoryID: "dining",
		Amount: 300, Period: domain.PeriodMonthly,
		Flexibility: domain.FlexStrict, IsActive: true,
	}

	det := NewBudgetDriftDetector(store).WithClock(func() time.Time { return now })
	res, err := det.Detect(context.Background(), budget)
	require.NoError(t, err)

	// expected = 300 * 10/30 = 100; spent 120 => +20%, strict medium.
	assert.Equal(t, SeverityMedium, res.Severity)
}

func TestBudgetDrift_ConsistentlyOverspent(t *testing.T) {
	store := memory.NewStore()
	now := time.Date(2026, 4, 20, 12, 0, 0, 0, time.UTC)

	// Blow through the budget every prior month and this one.
	var dates []time.Time
	var amounts []float64
	for m := 1; m <= 4; m++ {
		dates = append(dates, time.Date(2026, time.Month(m), 10, 12, 0, 0, 0, time.UTC))
		amounts = append(amounts, 800)
	}
	seedExpenses(t, store, "u1", "shopping", dates, amounts)

	budget := &domain.Budget{
		ID: "b4", UserID: "u1", CategoryID: "shopping",
		Amount: 500, Period: domain.PeriodMonthly,
		Flexibility: domain.FlexFlexible, IsActive: true,
	}

	det := NewBudgetDriftDetector(store).WithClock(func() time.Time { return now })
	res, err := det.Detect(context.Background(), budget)
	require.NoError(t, err)

	assert.True(t, res.HasDrift)
	assert.True(t, res.ConsistentlyOverspent)
}
