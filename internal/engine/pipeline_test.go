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

func TestPipeline_RunsAllEngines(t *testing.T) {
	store := memory.NewStore()
	now := time.Date(2026, 5, 15, 12, 0, 0, 0, time.UTC)
	seed(t, store, "u1", []domain.Transaction{
		income(3000, now.AddDate(0, 0, -20)),
		expense("rent", 1200, now.AddDate(0, 0, -18)),
		expense("groceries", 300, now.AddDate(0, 0, -5)),
	})

	sink := &captureSink{}
	pipe := NewPipeline(store, sink, zerolog.Nop()).
		WithClock(func() time.Time { return now })

	report, err := pipe.Run(context.Background(), "u1", true)
	require.NoError(t, err)

	assert.Equal(t, "u1", report.UserID)
	assert.Equal(t, now, report.GeneratedAt)
	require.NotNil(t, report.Aggregation)
	require.NotNil(t, report.Pattern)
	require.NotNil(t, report.Risk)
	assert.Equal(t, len(sink.signals), report.SignalsStored)
}

func TestPipeline_NoSignalsStoredWhenDisabled(t *testing.T) {
	store := memory.NewStore()
	now := time.Date(2026, 5, 15, 12, 0, 0, 0, time.UTC)
	seed(t, store, "u1", []domain.Transaction{
		expense("rent", 2000, now.AddDate(0, 0, -15)),
	})

	sink := &captureSink{}
	pipe := NewPipeline(store, sink, zerolog.Nop()).
		WithClock(func() time.Time { return now })

	report, err := pipe.Run(context.Background(), "u1", false)
	require.NoError(t, err)
	assert.Zero(t, report.SignalsStored)
	assert.Empty(t, sink.signals)
}

func TestPipeline_EmptyUserStillProducesReport(t *testing.T) {
	store := memory.NewStore()
	now := time.Date(2026, 5, 15, 12, 0, 0, 0, time.UTC)

	pipe := NewPipeline(store, &captureSink{}, zerolog.Nop()).
		WithClock(func() time.Time { return now })

	report, err := pipe.Run(context.Background(), "ghost", true)
	require.NoError(t, err)
	require.NotNil(t, report.Aggregation)
	require.NotNil(t, report.Pattern)
	require.NotNil(t, report.Risk)
	assert.Zero(t, report.SignalsStored)
}
