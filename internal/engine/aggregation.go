package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/finpulse/finpulse/internal/calc"
	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/persistence"
	"github.com/finpulse/finpulse/internal/timewin"
)

// Aggregation thresholds.
const (
	highSpendThreshold      = 1000.0
	significantDeltaPct     = 20.0
	majorDeltaPct           = 50.0
	highSpendSharePct       = 30.0
	lowSavingsRateThreshold = 10.0
)

// CategoryTotal summarizes one category inside a window.
type CategoryTotal struct {
	CategoryID        string    `json:"category_id"`
	Total             float64   `json:"total"`
	Count             int       `json:"count"`
	Average           float64   `json:"average"`
	Min               float64   `json:"min"`
	Max               float64   `json:"max"`
	FirstTx           time.Time `json:"first_tx"`
	LastTx            time.Time `json:"last_tx"`
	PercentageOfTotal float64   `json:"percentage_of_total"`
	DailyAverage      float64   `json:"daily_average"`
	Volatility        float64   `json:"volatility"`
}

// CategoryDelta compares one category across adjacent windows.
type CategoryDelta struct {
	CategoryID      string  `json:"category_id"`
	CurrentTotal    float64 `json:"current_total"`
	PreviousTotal   float64 `json:"previous_total"`
	AbsoluteDelta   float64 `json:"absolute_delta"`
	PercentageDelta float64 `json:"percentage_delta"`
	IsSignificant   bool    `json:"is_significant"`
	Trend           string  `json:"trend"`
	IsNew           bool    `json:"is_new,omitempty"`
	IsDiscontinued  bool    `json:"is_discontinued,omitempty"`
}

// OverallTotals sums the window across all transaction types.
type OverallTotals struct {
	Income      float64 `json:"income"`
	Expenses    float64 `json:"expenses"`
	Transfers   float64 `json:"transfers"`
	Net         float64 `json:"net"`
	SavingsRate float64 `json:"savings_rate"`
}

// DailyAverages is the per-day view of the window totals.
type DailyAverages struct {
	Income   float64 `json:"income"`
	Expenses float64 `json:"expenses"`
}

// WindowAggregation is the full aggregation result for one window size.
type WindowAggregation struct {
	Days          int             `json:"days"`
	Window        timewin.Window  `json:"window"`
	Categories    []CategoryTotal `json:"categories"`
	Deltas        []CategoryDelta `json:"deltas"`
	Overall       OverallTotals   `json:"overall"`
	DailyAverages DailyAverages   `json:"daily_averages"`
}

// AggregationReport is the outcome of one aggregation run.
type AggregationReport struct {
	UserID        string              `json:"user_id"`
	GeneratedAt   time.Time           `json:"generated_at"`
	Windows       []WindowAggregation `json:"windows"`
	SignalsStored int                 `json:"signals_stored"`
}

// AggregationOptions tunes a run.
type AggregationOptions struct {
	Periods      []int
	StoreSignals bool
}

// DefaultAggregationOptions analyzes 30, 60 and 90 day windows and
// persists the emitted signals.
func DefaultAggregationOptions() AggregationOptions {
	return AggregationOptions{Periods: []int{30, 60, 90}, StoreSignals: true}
}

// AggregationEngine rolls transactions into category and overall totals
// and emits spending signals.
type AggregationEngine struct {
	store persistence.Store
	sink  SignalSink
	log   zerolog.Logger
	now   func() time.Time
}

// NewAggregationEngine wires the engine over its store and signal sink.
func NewAggregationEngine(store persistence.Store, sink SignalSink, log zerolog.Logger) *AggregationEngine {
	return &AggregationEngine{store: store, sink: sink, log: log, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (e *AggregationEngine) WithClock(now func() time.Time) *AggregationEngine {
	e.now = now
	return e
}

// Run executes aggregation for every requested window size.
func (e *AggregationEngine) Run(ctx context.Context, userID string, opts AggregationOptions) (*AggregationReport, error) {
	if len(opts.Periods) == 0 {
		opts.Periods = []int{30, 60, 90}
	}
	now := e.now()

	report := &AggregationReport{UserID: userID, GeneratedAt: now}
	var signals []domain.FinancialSignal

	for _, days := range opts.Periods {
		agg, sigs, err := e.aggregateWindow(ctx, userID, days, now)
		if err != nil {
			return nil, err
		}
		report.Windows = append(report.Windows, *agg)
		signals = append(signals, sigs...)
	}

	if opts.StoreSignals && len(signals) > 0 {
		stored, err := e.sink.StoreSignals(ctx, signals)
		if err != nil {
			return nil, fmt.Errorf("failed to store aggregation signals: %w", err)
		}
		report.SignalsStored = stored
	}

	e.log.Info().
		Str("user_id", userID).
		Ints("periods", opts.Periods).
		Int("signals_stored", report.SignalsStored).
		Msg("aggregation run complete")

	return report, nil
}

func (e *AggregationEngine) aggregateWindow(ctx context.Context, userID string, days int, now time.Time) (*WindowAggregation, []domain.FinancialSignal, error) {
	window := timewin.Rolling(now, days)
	prevWindow := timewin.PreviousRolling(now, days)

	current, err := e.store.Transactions().ListByUser(ctx, userID,
		persistence.TimeRange{From: window.Start, To: window.End}, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	previous, err := e.store.Transactions().ListByUser(ctx, userID,
		persistence.TimeRange{From: prevWindow.Start, To: prevWindow.End}, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list comparison transactions: %w", err)
	}

	agg := &WindowAggregation{Days: days, Window: window}
	agg.Categories = categoryTotals(current, days)
	agg.Deltas = categoryDeltas(agg.Categories, previous)
	agg.Overall = overallTotals(current)
	agg.DailyAverages = DailyAverages{
		Income:   agg.Overall.Income / float64(days),
		Expenses: agg.Overall.Expenses / float64(days),
	}

	signals := e.emitSignals(userID, agg, prevWindow)
	return agg, signals, nil
}

func categoryTotals(txs []domain.Transaction, days int) []CategoryTotal {
	byCat := make(map[string][]float64)
	first := make(map[string]time.Time)
	last := make(map[string]time.Time)

	var grandTotal float64
	for _, tx := range txs {
		if tx.Type != domain.TxExpense || tx.Status != domain.TxCompleted {
			continue
		}
		byCat[tx.CategoryID] = append(byCat[tx.CategoryID], tx.Amount)
		grandTotal += tx.Amount
		if f, ok := first[tx.CategoryID]; !ok || tx.Date.Before(f) {
			first[tx.CategoryID] = tx.Date
		}
		if l, ok := last[tx.CategoryID]; !ok || tx.Date.After(l) {
			last[tx.CategoryID] = tx.Date
		}
	}

	out := make([]CategoryTotal, 0, len(byCat))
	for cat, amounts := range byCat {
		total := calc.Sum(amounts)
		ct := CategoryTotal{
			CategoryID:   cat,
			Total:        total,
			Count:        len(amounts),
			Average:      total / float64(len(amounts)),
			Min:          amounts[0],
			Max:          amounts[0],
			FirstTx:      first[cat],
			LastTx:       last[cat],
			DailyAverage: total / float64(days),
			Volatility:   calc.Volatility(amounts),
		}
		for _, a := range amounts {
			ct.Min = math.Min(ct.Min, a)
			ct.Max = math.Max(ct.Max, a)
		}
		if grandTotal > 0 {
			ct.PercentageOfTotal = total / grandTotal * 100
		}
		out = append(out, ct)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Total > out[j].Total })
	return out
}

func categoryDeltas(current []CategoryTotal, previous []domain.Transaction) []CategoryDelta {
	prevTotals := make(map[string]float64)
	for _, tx := range previous {
		if tx.Type == domain.TxExpense && tx.Status == domain.TxCompleted {
			prevTotals[tx.CategoryID] += tx.Amount
		}
	}

	seen := make(map[string]bool)
	var out []CategoryDelta
	for _, ct := range current {
		seen[ct.CategoryID] = true
		prev := prevTotals[ct.CategoryID]
		d := calc.Delta(ct.Total, prev)
		out = append(out, CategoryDelta{
			CategoryID:      ct.CategoryID,
			CurrentTotal:    ct.Total,
			PreviousTotal:   prev,
			AbsoluteDelta:   d.Absolute,
			PercentageDelta: d.Percentage,
			IsSignificant:   math.Abs(d.Percentage) > significantDeltaPct,
			Trend:           string(d.Direction),
			IsNew:           prev == 0,
		})
	}
	for cat, prev := range prevTotals {
		if seen[cat] {
			continue
		}
		d := calc.Delta(0, prev)
		out = append(out, CategoryDelta{
			CategoryID:      cat,
			PreviousTotal:   prev,
			AbsoluteDelta:   d.Absolute,
			PercentageDelta: d.Percentage,
			IsSignificant:   math.Abs(d.Percentage) > significantDeltaPct,
			Trend:           string(d.Direction),
			IsDiscontinued:  true,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CategoryID < out[j].CategoryID })
	return out
}

func overallTotals(txs []domain.Transaction) OverallTotals {
	var o OverallTotals
	for _, tx := range txs {
		if tx.Status != domain.TxCompleted {
			continue
		}
		switch tx.Type {
		case domain.TxIncome:
			o.Income += tx.Amount
		case domain.TxExpense:
			o.Expenses += tx.Amount
		case domain.TxTransfer:
			o.Transfers += tx.Amount
		}
	}
	o.Net = o.Income - o.Expenses
	if o.Income > 0 {
		o.SavingsRate = o.Net / o.Income * 100
	}
	return o
}

func (e *AggregationEngine) emitSignals(userID string, agg *WindowAggregation, prevWindow timewin.Window) []domain.FinancialSignal {
	var signals []domain.FinancialSignal
	start, end := agg.Window.Start, agg.Window.End

	for _, ct := range agg.Categories {
		if ct.Total <= highSpendThreshold {
			continue
		}
		s := newSignal(userID, domain.SignalCategoryAggregation,
			fmt.Sprintf("High spending in %s over %d days", ct.CategoryID, agg.Days),
			ct.CategoryID, start, end, "aggregation")
		s.Value = domain.SignalValue{Current: ct.Total}
		s.Priority = 3
		if ct.PercentageOfTotal > highSpendSharePct {
			s.Priority = 1
		}
		s.Tags = []string{"spending", "high"}
		s.Data.Aggregated = map[string]float64{
			"total":               ct.Total,
			"count":               float64(ct.Count),
			"daily_average":       ct.DailyAverage,
			"percentage_of_total": ct.PercentageOfTotal,
		}
		signals = append(signals, s)
	}

	for _, d := range agg.Deltas {
		if !d.IsSignificant {
			continue
		}
		s := newSignal(userID, domain.SignalCategoryDelta,
			fmt.Sprintf("Spending in %s changed %.0f%%", d.CategoryID, d.PercentageDelta),
			d.CategoryID, start, end, "aggregation")
		s.Value = domain.SignalValue{
			Current:    d.CurrentTotal,
			Previous:   ptr(d.PreviousTotal),
			Delta:      ptr(d.AbsoluteDelta),
			Percentage: ptr(d.PercentageDelta),
		}
		s.Period.ComparisonStart = &prevWindow.Start
		s.Period.ComparisonEnd = &prevWindow.End
		s.Priority = 2
		if math.Abs(d.PercentageDelta) > majorDeltaPct {
			s.Priority = 1
		}
		s.Tags = []string{"delta", d.Trend}
		signals = append(signals, s)
	}

	if agg.Overall.Net < 0 {
		s := newSignal(userID, domain.SignalCategoryAggregation,
			fmt.Sprintf("Negative cash flow over %d days", agg.Days),
			"", start, end, "aggregation")
		s.Value = domain.SignalValue{Current: agg.Overall.Net}
		s.Priority = 1
		s.Tags = []string{"cash_flow", "negative"}
		signals = append(signals, s)
	} else if agg.Overall.Income > 0 && agg.Overall.SavingsRate < lowSavingsRateThreshold {
		s := newSignal(userID, domain.SignalCategoryAggregation,
			fmt.Sprintf("Savings rate %.1f%% over %d days", agg.Overall.SavingsRate, agg.Days),
			"savings_rate", start, end, "aggregation")
		s.Value = domain.SignalValue{Current: agg.Overall.SavingsRate}
		s.Priority = 2
		s.Tags = []string{"savings", "low"}
		signals = append(signals, s)
	}

	return signals
}
