package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/finpulse/finpulse/internal/calc"
	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/persistence"
	"github.com/finpulse/finpulse/internal/timewin"
)

// Pattern thresholds.
const (
	expenseGrowthThreshold  = 0.1
	incomeStabilityFloor    = 0.7
	regularIntervalCV       = 0.2
	seasonalFactorThreshold = 1.3
	weekendFocusRatio       = 2.0
)

// SpendingShape labels when a category's spending concentrates.
type SpendingShape string

const (
	ShapeWeekendFocused SpendingShape = "weekend_focused"
	ShapeWeekdayFocused SpendingShape = "weekday_focused"
	ShapeMixed          SpendingShape = "mixed"
)

// CategoryPattern describes one category's behavior over the lookback.
type CategoryPattern struct {
	CategoryID    string             `json:"category_id"`
	MonthlyTotals map[string]float64 `json:"monthly_totals"`
	Growth        calc.GrowthResult  `json:"growth"`
	Shape         SpendingShape      `json:"shape"`
	WeekendCount  int                `json:"weekend_count"`
	WeekdayCount  int                `json:"weekday_count"`
}

// IncomeProfile describes income stability over the lookback.
type IncomeProfile struct {
	MonthlyTotals map[string]float64 `json:"monthly_totals"`
	Stability     float64            `json:"stability"` // 1 - CV, clipped to [0, 1]
	IsRegular     bool               `json:"is_regular"`
}

// SeasonalBump marks a month whose spending ran well above the average.
type SeasonalBump struct {
	Month  string  `json:"month"`
	Total  float64 `json:"total"`
	Factor float64 `json:"factor"`
}

// PatternReport is the outcome of one pattern analysis run.
type PatternReport struct {
	UserID        string                    `json:"user_id"`
	GeneratedAt   time.Time                 `json:"generated_at"`
	Lookback      timewin.Window            `json:"lookback"`
	Categories    []CategoryPattern         `json:"categories"`
	Income        IncomeProfile             `json:"income"`
	Clusters      map[string][]calc.Cluster `json:"clusters,omitempty"`
	SeasonalBumps []SeasonalBump            `json:"seasonal_bumps,omitempty"`
	SignalsStored int                       `json:"signals_stored"`
}

// PatternOptions tunes a pattern run.
type PatternOptions struct {
	LookbackMonths int
	StoreSignals   bool
}

// DefaultPatternOptions looks back six months and persists signals.
func DefaultPatternOptions() PatternOptions {
	return PatternOptions{LookbackMonths: 6, StoreSignals: true}
}

// PatternEngine finds recurring structure: growth trends, spending
// clusters, income stability and seasonal bumps.
type PatternEngine struct {
	store persistence.Store
	sink  SignalSink
	log   zerolog.Logger
	now   func() time.Time
}

// NewPatternEngine wires the engine over its store and signal sink.
func NewPatternEngine(store persistence.Store, sink SignalSink, log zerolog.Logger) *PatternEngine {
	return &PatternEngine{store: store, sink: sink, log: log, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (e *PatternEngine) WithClock(now func() time.Time) *PatternEngine {
	e.now = now
	return e
}

// Run executes pattern analysis over the lookback window.
func (e *PatternEngine) Run(ctx context.Context, userID string, opts PatternOptions) (*PatternReport, error) {
	if opts.LookbackMonths <= 0 {
		opts.LookbackMonths = 6
	}
	now := e.now()
	lookback := timewin.Window{Start: now.AddDate(0, -opts.LookbackMonths, 0), End: now}

	txs, err := e.store.Transactions().ListByUser(ctx, userID,
		persistence.TimeRange{From: lookback.Start, To: lookback.End}, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	var expenses, income []domain.Transaction
	for _, tx := range txs {
		if tx.Status != domain.TxCompleted {
			continue
		}
		switch tx.Type {
		case domain.TxExpense:
			expenses = append(expenses, tx)
		case domain.TxIncome:
			income = append(income, tx)
		}
	}

	report := &PatternReport{
		UserID:      userID,
		GeneratedAt: now,
		Lookback:    lookback,
		Categories:  categoryPatterns(expenses),
		Income:      incomeProfile(income),
		Clusters:    clusterByCategory(expenses),
	}
	report.SeasonalBumps = seasonalBumps(expenses)

	signals := e.emitSignals(userID, report)
	if opts.StoreSignals && len(signals) > 0 {
		stored, err := e.sink.StoreSignals(ctx, signals)
		if err != nil {
			return nil, fmt.Errorf("failed to store pattern signals: %w", err)
		}
		report.SignalsStored = stored
	}

	e.log.Info().
		Str("user_id", userID).
		Int("lookback_months", opts.LookbackMonths).
		Int("categories", len(report.Categories)).
		Int("signals_stored", report.SignalsStored).
		Msg("pattern run complete")

	return report, nil
}

func categoryPatterns(expenses []domain.Transaction) []CategoryPattern {
	byCat := make(map[string][]domain.Transaction)
	for _, tx := range expenses {
		byCat[tx.CategoryID] = append(byCat[tx.CategoryID], tx)
	}

	out := make([]CategoryPattern, 0, len(byCat))
	for cat, txs := range byCat {
		p := CategoryPattern{CategoryID: cat, MonthlyTotals: make(map[string]float64)}
		for _, tx := range txs {
			p.MonthlyTotals[timewin.MonthKey(tx.Date)] += tx.Amount
			if tx.IsWeekend() {
				p.WeekendCount++
			} else {
				p.WeekdayCount++
			}
		}
		p.Growth = calc.Growth(sortedMonthlySeries(p.MonthlyTotals), calc.GrowthSimple)
		p.Shape = spendingShape(p.WeekendCount, p.WeekdayCount)
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CategoryID < out[j].CategoryID })
	return out
}

func spendingShape(weekend, weekday int) SpendingShape {
	switch {
	case float64(weekend) > weekendFocusRatio*float64(weekday):
		return ShapeWeekendFocused
	case float64(weekday) > weekendFocusRatio*float64(weekend):
		return ShapeWeekdayFocused
	default:
		return ShapeMixed
	}
}

func incomeProfile(income []domain.Transaction) IncomeProfile {
	p := IncomeProfile{MonthlyTotals: make(map[string]float64)}
	for _, tx := range income {
		p.MonthlyTotals[timewin.MonthKey(tx.Date)] += tx.Amount
	}

	series := sortedMonthlySeries(p.MonthlyTotals)
	cv := calc.Volatility(series)
	p.Stability = 1 - cv
	if p.Stability < 0 {
		p.Stability = 0
	}
	if len(series) < 2 {
		p.Stability = 1
	}

	// Regularity from inter-arrival spacing of income events.
	if len(income) >= 3 {
		sorted := make([]domain.Transaction, len(income))
		copy(sorted, income)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })
		var gaps []float64
		for i := 1; i < len(sorted); i++ {
			gaps = append(gaps, sorted[i].Date.Sub(sorted[i-1].Date).Hours()/24)
		}
		p.IsRegular = calc.Volatility(gaps) < regularIntervalCV
	}

	return p
}

func clusterByCategory(expenses []domain.Transaction) map[string][]calc.Cluster {
	byCat := make(map[string][]domain.Transaction)
	for _, tx := range expenses {
		byCat[tx.CategoryID] = append(byCat[tx.CategoryID], tx)
	}

	out := make(map[string][]calc.Cluster)
	for cat, txs := range byCat {
		sort.Slice(txs, func(i, j int) bool { return txs[i].Date.Before(txs[j].Date) })
		clusters := calc.ClusterTransactions(txs, calc.DefaultClusterOptions())
		if len(clusters) > 0 {
			out[cat] = clusters
		}
	}
	return out
}

func seasonalBumps(expenses []domain.Transaction) []SeasonalBump {
	monthly := make(map[string]float64)
	for _, tx := range expenses {
		monthly[timewin.MonthKey(tx.Date)] += tx.Amount
	}
	if len(monthly) < 2 {
		return nil
	}

	avg := calc.Mean(sortedMonthlySeries(monthly))
	if avg <= 0 {
		return nil
	}

	var bumps []SeasonalBump
	for month, total := range monthly {
		if factor := total / avg; factor > seasonalFactorThreshold {
			bumps = append(bumps, SeasonalBump{Month: month, Total: total, Factor: factor})
		}
	}
	sort.Slice(bumps, func(i, j int) bool { return bumps[i].Month < bumps[j].Month })
	return bumps
}

func sortedMonthlySeries(monthly map[string]float64) []float64 {
	keys := make([]string, 0, len(monthly))
	for k := range monthly {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	series := make([]float64, len(keys))
	for i, k := range keys {
		series[i] = monthly[k]
	}
	return series
}

func (e *PatternEngine) emitSignals(userID string, report *PatternReport) []domain.FinancialSignal {
	var signals []domain.FinancialSignal
	start, end := report.Lookback.Start, report.Lookback.End

	for _, p := range report.Categories {
		if p.Growth.AverageRate <= expenseGrowthThreshold {
			continue
		}
		s := newSignal(userID, domain.SignalGrowthTrend,
			fmt.Sprintf("Spending in %s growing %.0f%% per month", p.CategoryID, p.Growth.AverageRate*100),
			p.CategoryID, start, end, "pattern")
		s.Value = domain.SignalValue{Current: p.Growth.AverageRate * 100}
		s.Priority = 2
		s.Tags = []string{"growth", "expense"}
		s.Data.Aggregated = map[string]float64{
			"average_rate":    p.Growth.AverageRate,
			"annualized_rate": p.Growth.AnnualizedRate,
			"volatility":      p.Growth.Volatility,
		}
		signals = append(signals, s)
	}

	for cat, clusters := range report.Clusters {
		for _, c := range clusters {
			if !c.IsOutlier {
				continue
			}
			s := newSignal(userID, domain.SignalSpendingCluster,
				fmt.Sprintf("Unusual spending burst in %s", cat),
				cat, c.Start, c.End, "pattern")
			s.Value = domain.SignalValue{Current: c.Total}
			s.Priority = 2
			s.Tags = []string{"cluster", string(c.Pattern)}
			s.Data.Aggregated = map[string]float64{
				"size":  float64(c.Size),
				"total": c.Total,
				"mean":  c.Mean,
			}
			signals = append(signals, s)
		}
	}

	if report.Income.Stability < incomeStabilityFloor && len(report.Income.MonthlyTotals) >= 2 {
		s := newSignal(userID, domain.SignalIncomeStability,
			fmt.Sprintf("Income stability %.2f below threshold", report.Income.Stability),
			"income", start, end, "pattern")
		s.Value = domain.SignalValue{Current: report.Income.Stability}
		s.Priority = 2
		s.Tags = []string{"income", "unstable"}
		signals = append(signals, s)
	}

	return signals
}
