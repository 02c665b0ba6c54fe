package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/persistence/memory"
)

func TestPattern_GrowthTrendSignal(t *testing.T) {
	store := memory.NewStore()
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	// Monthly spending growing 25% month over month.
	amounts := []float64{400, 500, 625, 781, 976}
	var txs []domain.Transaction
	for i, a := range amounts {
		txs = append(txs, expense("shopping", a, now.AddDate(0, i-len(amounts), 0)))
	}
	seed(t, store, "u1", txs)

	sink := &captureSink{}
	eng := NewPatternEngine(store, sink, zerolog.Nop()).
		WithClock(func() time.Time { return now })

	report, err := eng.Run(context.Background(), "u1", DefaultPatternOptions())
	require.NoError(t, err)

	require.Len(t, report.Categories, 1)
	assert.Greater(t, report.Categories[0].Growth.AverageRate, 0.1)

	var growth int
	for _, s := range sink.signals {
		if s.Type == domain.SignalGrowthTrend && s.Category == "shopping" {
			growth++
		}
	}
	assert.Equal(t, 1, growth)
}

func TestPattern_WeekendShape(t *testing.T) {
	store := memory.NewStore()
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	// 2026-06-06 and 2026-06-07 are a weekend.
	var txs []domain.Transaction
	for w := 0; w < 5; w++ {
		txs = append(txs,
			expense("entertainment", 50, time.Date(2026, 6, 6, 20, 0, 0, 0, time.UTC).AddDate(0, 0, -7*w)),
			expense("entertainment", 40, time.Date(2026, 6, 7, 20, 0, 0, 0, time.UTC).AddDate(0, 0, -7*w)),
		)
	}
	txs = append(txs, expense("entertainment", 30, time.Date(2026, 6, 3, 12, 0, 0, 0, time.UTC)))
	seed(t, store, "u1", txs)

	sink := &captureSink{}
	eng := NewPatternEngine(store, sink, zerolog.Nop()).
		WithClock(func() time.Time { return now })

	report, err := eng.Run(context.Background(), "u1", PatternOptions{LookbackMonths: 6})
	require.NoError(t, err)

	require.Len(t, report.Categories, 1)
	assert.Equal(t, ShapeWeekendFocused, report.Categories[0].Shape)
	assert.Equal(t, 10, report.Categories[0].WeekendCount)
	assert.Equal(t, 1, report.Categories[0].WeekdayCount)
}

func TestPattern_UnstableIncomeSignal(t *testing.T) {
	store := memory.NewStore()
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	// Wildly varying monthly income.
	amounts := []float64{4000, 800, 5000, 600, 3500}
	var txs []domain.Transaction
	for i, a := range amounts {
		txs = append(txs, income(a, now.AddDate(0, i-len(amounts), 0)))
	}
	seed(t, store, "u1", txs)

	sink := &captureSink{}
	eng := NewPatternEngine(store, sink, zerolog.Nop()).
		WithClock(func() time.Time { return now })

	report, err := eng.Run(context.Background(), "u1", DefaultPatternOptions())
	require.NoError(t, err)

	assert.Less(t, report.Income.Stability, 0.7)

	var unstable bool
	for _, s := range sink.signals {
		if s.Type == domain.SignalIncomeStability {
			unstable = true
		}
	}
	assert.True(t, unstable)
}

func TestPattern_StableIncomeNoSignal(t *testing.T) {
	store := memory.NewStore()
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	var txs []domain.Transaction
	for i := 0; i < 5; i++ {
		txs = append(txs, income(3000, now.AddDate(0, i-5, 0)))
	}
	seed(t, store, "u1", txs)

	sink := &captureSink{}
	eng := NewPatternEngine(store, sink, zerolog.Nop()).
		WithClock(func() time.Time { return now })

	report, err := eng.Run(context.Background(), "u1", DefaultPatternOptions())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, report.Income.Stability, 0.7)
	for _, s := range sink.signals {
		assert.NotEqual(t, domain.SignalIncomeStability, s.Type)
	}
}

func TestPattern_SeasonalBumps(t *testing.T) {
	store := memory.NewStore()
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	var txs []domain.Transaction
	for i := 1; i <= 5; i++ {
		txs = append(txs, expense("gifts", 100, now.AddDate(0, -i, 0)))
	}
	// One blowout month well above the average.
	txs = append(txs, expense("gifts", 900, now.AddDate(0, -3, 0)))
	seed(t, store, "u1", txs)

	sink := &captureSink{}
	eng := NewPatternEngine(store, sink, zerolog.Nop()).
		WithClock(func() time.Time { return now })

	report, err := eng.Run(context.Background(), "u1", DefaultPatternOptions())
	require.NoError(t, err)

	require.Len(t, report.SeasonalBumps, 1)
	assert.Greater(t, report.SeasonalBumps[0].Factor, 1.3)
}
