package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/persistence/memory"
)

type captureSink struct {
	mu      sync.Mutex
	signals []domain.FinancialSignal
}

func (c *captureSink) StoreSignals(ctx context.Context, signals []domain.FinancialSignal) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signals = append(c.signals, signals...)
	return len(signals), nil
}

func seed(t *testing.T, store *memory.Store, userID string, txs []domain.Transaction) {
	t.Helper()
	for i := range txs {
		if txs[i].ID == "" {
			txs[i].ID = fmt.Sprintf("tx-%d", i)
		}
		txs[i].UserID = userID
		if txs[i].Status == "" {
			txs[i].Status = domain.TxCompleted
		}
		require.NoError(t, store.Transactions().Insert(context.Background(), &txs[i]))
	}
}

func expense(cat string, amount float64, date time.Time) domain.Transaction {
	return domain.Transaction{Amount: amount, Type: domain.TxExpense, CategoryID: cat, Date: date}
}

func income(amount float64, date time.Time) domain.Transaction {
	return domain.Transaction{Amount: amount, Type: domain.TxIncome, CategoryID: "salary", Date: date}
}

func TestAggregation_CategoryTotalsAndOverall(t *testing.T) {
	store := memory.NewStore()
	now := time.Date(2026, 5, 15, 12, 0, 0, 0, time.UTC)
	seed(t, store, "u1", []domain.Transaction{
		income(3000, now.AddDate(0, 0, -20)),
		expense("rent", 1200, now.AddDate(0, 0, -18)),
		expense("groceries", 150, now.AddDate(0, 0, -10)),
		expense("groceries", 250, now.AddDate(0, 0, -5)),
	})

	sink := &captureSink{}
	eng := NewAggregationEngine(store, sink, zerolog.Nop()).
		WithClock(func() time.Time { return now })

	report, err := eng.Run(context.Background(), "u1", AggregationOptions{Periods: []int{30}, StoreSignals: true})
	require.NoError(t, err)
	require.Len(t, report.Windows, 1)

	w := report.Windows[0]
	require.Len(t, w.Categories, 2)
	assert.Equal(t, "rent", w.Categories[0].CategoryID, "sorted by total descending")
	assert.InDelta(t, 400.0, w.Categories[1].Total, 1e-9)
	assert.Equal(t, 2, w.Categories[1].Count)
	assert.InDelta(t, 25.0, w.Categories[1].PercentageOfTotal, 1e-9)

	assert.InDelta(t, 3000.0, w.Overall.Income, 1e-9)
	assert.InDelta(t, 1600.0, w.Overall.Expenses, 1e-9)
	assert.InDelta(t, 1400.0, w.Overall.Net, 1e-9)
	assert.InDelta(t, 46.67, w.Overall.SavingsRate, 0.01)
}

func TestAggregation_EmitsHighSpendSignal(t *testing.T) {
	store := memory.NewStore()
	now := time.Date(2026, 5, 15, 12, 0, 0, 0, time.UTC)
	seed(t, store, "u1", []domain.Transaction{
		income(5000, now.AddDate(0, 0, -20)),
		expense("rent", 1500, now.AddDate(0, 0, -15)),
		expense("misc", 100, now.AddDate(0, 0, -10)),
	})

	sink := &captureSink{}
	eng := NewAggregationEngine(store, sink, zerolog.Nop()).
		WithClock(func() time.Time { return now })

	_, err := eng.Run(context.Background(), "u1", AggregationOptions{Periods: []int{30}, StoreSignals: true})
	require.NoError(t, err)

	var found *domain.FinancialSignal
	for i := range sink.signals {
		if sink.signals[i].Type == domain.SignalCategoryAggregation && sink.signals[i].Category == "rent" {
			found = &sink.signals[i]
		}
	}
	require.NotNil(t, found, "rent exceeds the high-spend threshold")
	// rent is 93% of spending, so the signal is top priority
	assert.Equal(t, 1, found.Priority)
	assert.Equal(t, 100.0, found.Confidence)
	assert.NotEmpty(t, found.Data.Metadata.SignalHash)
}

func TestAggregation_SignificantDelta(t *testing.T) {
	store := memory.NewStore()
	now := time.Date(2026, 5, 15, 12, 0, 0, 0, time.UTC)
	seed(t, store, "u1", []domain.Transaction{
		// previous window: 100, current window: 200 => +100%
		expense("dining", 100, now.AddDate(0, 0, -45)),
		expense("dining", 200, now.AddDate(0, 0, -10)),
	})

	sink := &captureSink{}
	eng := NewAggregationEngine(store, sink, zerolog.Nop()).
		WithClock(func() time.Time { return now })

	report, err := eng.Run(context.Background(), "u1", AggregationOptions{Periods: []int{30}, StoreSignals: true})
	require.NoError(t, err)

	var delta *CategoryDelta
	for i := range report.Windows[0].Deltas {
		if report.Windows[0].Deltas[i].CategoryID == "dining" {
			delta = &report.Windows[0].Deltas[i]
		}
	}
	require.NotNil(t, delta)
	assert.True(t, delta.IsSignificant)
	assert.InDelta(t, 100.0, delta.PercentageDelta, 1e-9)

	var deltaSignals int
	for _, s := range sink.signals {
		if s.Type == domain.SignalCategoryDelta {
			deltaSignals++
			assert.Equal(t, 1, s.Priority, "a move over 50% is top priority")
		}
	}
	assert.Equal(t, 1, deltaSignals)
}

func TestAggregation_NegativeCashFlowSignal(t *testing.T) {
	store := memory.NewStore()
	now := time.Date(2026, 5, 15, 12, 0, 0, 0, time.UTC)
	seed(t, store, "u1", []domain.Transaction{
		income(500, now.AddDate(0, 0, -20)),
		expense("rent", 900, now.AddDate(0, 0, -15)),
	})

	sink := &captureSink{}
	eng := NewAggregationEngine(store, sink, zerolog.Nop()).
		WithClock(func() time.Time { return now })

	_, err := eng.Run(context.Background(), "u1", AggregationOptions{Periods: []int{30}, StoreSignals: true})
	require.NoError(t, err)

	var negative bool
	for _, s := range sink.signals {
		for _, tag := range s.Tags {
			if tag == "cash_flow" {
				negative = true
				assert.Equal(t, 1, s.Priority)
			}
		}
	}
	assert.True(t, negative)
}

func TestAggregation_NoStoreWhenDisabled(t *testing.T) {
	store := memory.NewStore()
	now := time.Date(2026, 5, 15, 12, 0, 0, 0, time.UTC)
	seed(t, store, "u1", []domain.Transaction{
		expense("rent", 2000, now.AddDate(0, 0, -15)),
	})

	sink := &captureSink{}
	eng := NewAggregationEngine(store, sink, zerolog.Nop()).
		WithClock(func() time.Time { return now })

	report, err := eng.Run(context.Background(), "u1", AggregationOptions{Periods: []int{30}})
	require.NoError(t, err)
	assert.Zero(t, report.SignalsStored)
	assert.Empty(t, sink.signals)
}
