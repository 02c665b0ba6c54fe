package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finpulse/finpulse/internal/detect"
	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/persistence/memory"
)

func TestRisk_FrequentNegativeFlow(t *testing.T) {
	store := memory.NewStore()
	now := time.Date(2026, 5, 15, 12, 0, 0, 0, time.UTC)

	// 40 spending-only days out of 60 active days.
	var txs []domain.Transaction
	for i := 0; i < 40; i++ {
		txs = append(txs, expense("misc", 50, now.AddDate(0, 0, -i-1)))
	}
	for i := 40; i < 60; i++ {
		txs = append(txs, income(200, now.AddDate(0, 0, -i-1)))
	}
	seed(t, store, "u1", txs)

	sink := &captureSink{}
	eng := NewRiskEngine(store, sink, zerolog.Nop()).
		WithClock(func() time.Time { return now })

	report, err := eng.Run(context.Background(), "u1", true)
	require.NoError(t, err)

	var flow *RiskItem
	for i := range report.Items {
		if report.Items[i].Type == RiskFrequentNegativeFlow {
			flow = &report.Items[i]
		}
	}
	require.NotNil(t, flow)
	assert.Equal(t, detect.SeverityHigh, flow.Severity, "40/60 negative days exceeds the high threshold")
	assert.InDelta(t, 40.0, flow.Data["longest_run"], 1e-9)
}

func TestRisk_ScoreWeighting(t *testing.T) {
	items := []RiskItem{
		{Type: RiskLowLiquidity, Severity: detect.SeverityHigh},      // weight 50, score 1.0
		{Type: RiskCategoryVolatility, Severity: detect.SeverityLow}, // weight 25, score 0.3
	}
	// (50*1.0 + 25*0.3) / 75 * 100 = 76.67
	assert.InDelta(t, 76.67, overallRiskScore(items), 0.01)

	assert.Zero(t, overallRiskScore(nil))
}

func TestRisk_EmitsOnlyHighSeveritySignals(t *testing.T) {
	store := memory.NewStore()
	now := time.Date(2026, 5, 15, 12, 0, 0, 0, time.UTC)

	// Stalled goal forces one high-severity item; concentrated spending in
	// one category adds a medium one.
	require.NoError(t, store.Goals().Insert(context.Background(), &domain.SavingsGoal{
		ID: "g1", UserID: "u1", Name: "Emergency fund",
		TargetAmount: 5000, CurrentAmount: 1000,
		TargetDate: now.AddDate(0, 6, 0),
		Status:     domain.GoalActive,
		Contributions: []domain.Contribution{
			{Amount: 1000, Date: now.AddDate(0, 0, -60)},
		},
	}))
	seed(t, store, "u1", []domain.Transaction{
		income(2000, now.AddDate(0, 0, -10)),
		expense("rent", 800, now.AddDate(0, 0, -9)),
		expense("misc", 100, now.AddDate(0, 0, -8)),
	})

	sink := &captureSink{}
	eng := NewRiskEngine(store, sink, zerolog.Nop()).
		WithClock(func() time.Time { return now })

	report, err := eng.Run(context.Background(), "u1", true)
	require.NoError(t, err)

	var hasStalled, hasConcentration bool
	for _, item := range report.Items {
		switch item.Type {
		case RiskStalledGoal:
			hasStalled = true
			assert.Equal(t, detect.SeverityHigh, item.Severity)
		case RiskCategoryConcentration:
			hasConcentration = true
			assert.Equal(t, detect.SeverityMedium, item.Severity)
		}
	}
	require.True(t, hasStalled)
	require.True(t, hasConcentration)

	for _, s := range sink.signals {
		assert.Equal(t, domain.SignalRiskDetected, s.Type)
		assert.Equal(t, 1, s.Priority)
	}
	assert.NotEmpty(t, sink.signals)
	assert.Greater(t, report.OverallScore, 0.0)
}

func TestRisk_UpcomingSubscriptions(t *testing.T) {
	store := memory.NewStore()
	now := time.Date(2026, 5, 15, 12, 0, 0, 0, time.UTC)

	// Thin positive balance and a large bill due next week.
	seed(t, store, "u1", []domain.Transaction{
		income(500, now.AddDate(0, 0, -10)),
		expense("misc", 400, now.AddDate(0, 0, -5)),
	})
	require.NoError(t, store.Subscriptions().Insert(context.Background(), &domain.Subscription{
		ID: "s1", UserID: "u1", CategoryID: "software", Name: "SaaS",
		Amount: 90, Status: domain.SubActive,
		Recurrence: domain.Recurrence{NextBillingDate: now.AddDate(0, 0, 7)},
	}))

	sink := &captureSink{}
	eng := NewRiskEngine(store, sink, zerolog.Nop()).
		WithClock(func() time.Time { return now })

	report, err := eng.Run(context.Background(), "u1", false)
	require.NoError(t, err)

	var found bool
	for _, item := range report.Items {
		if item.Type == RiskUpcomingExpenses {
			found = true
			assert.InDelta(t, 90.0, item.Data["upcoming_total"], 1e-9)
		}
	}
	assert.True(t, found, "90 due exceeds half of the 100 balance")
}
