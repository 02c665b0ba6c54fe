package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/finpulse/finpulse/internal/calc"
	"github.com/finpulse/finpulse/internal/detect"
	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/persistence"
	"github.com/finpulse/finpulse/internal/timewin"
)

// RiskType labels one detected risk item.
type RiskType string

const (
	RiskBudgetDrift           RiskType = "budget_drift"
	RiskConsistentOverspend   RiskType = "consistent_overspending"
	RiskGoalUnderfunding      RiskType = "goal_underfunding"
	RiskStalledGoal           RiskType = "stalled_goal"
	RiskFrequentNegativeFlow  RiskType = "frequent_negative_flow"
	RiskLowLiquidity          RiskType = "low_liquidity"
	RiskUpcomingExpenses      RiskType = "upcoming_expenses_risk"
	RiskCategoryVolatility    RiskType = "category_volatility"
	RiskCategoryConcentration RiskType = "category_concentration"
)

// riskWeights is the fixed contribution of each risk type to the
// overall score.
var riskWeights = map[RiskType]float64{
	RiskBudgetDrift:           30,
	RiskConsistentOverspend:   40,
	RiskGoalUnderfunding:      35,
	RiskStalledGoal:           20,
	RiskFrequentNegativeFlow:  45,
	RiskLowLiquidity:          50,
	RiskUpcomingExpenses:      30,
	RiskCategoryVolatility:    25,
	RiskCategoryConcentration: 20,
}

func severityScore(s detect.Severity) float64 {
	switch s {
	case detect.SeverityHigh:
		return 1.0
	case detect.SeverityMedium:
		return 0.6
	case detect.SeverityLow:
		return 0.3
	default:
		return 0
	}
}

// RiskItem is one finding contributing to the overall risk score.
type RiskItem struct {
	Type        RiskType           `json:"type"`
	Severity    detect.Severity    `json:"severity"`
	Category    string             `json:"category,omitempty"`
	Description string             `json:"description"`
	Data        map[string]float64 `json:"data,omitempty"`
}

// RiskReport is the outcome of one risk analysis run.
type RiskReport struct {
	UserID        string     `json:"user_id"`
	GeneratedAt   time.Time  `json:"generated_at"`
	Items         []RiskItem `json:"items"`
	OverallScore  float64    `json:"overall_score"` // 0..100
	SignalsStored int        `json:"signals_stored"`
}

// Cash-flow thresholds.
const (
	negativeDaysWarn   = 0.30
	negativeDaysHigh   = 0.50
	coverageWarnMonths = 1.0
	coverageHighMonths = 0.5
	upcomingRiskFactor = 0.5
	volatilityRiskCV   = 0.5
	concentrationPct   = 30.0
)

// RiskEngine composes the detectors with cash-flow, liquidity and
// concentration analyses into a scored report.
type RiskEngine struct {
	store persistence.Store
	sink  SignalSink
	drift *detect.BudgetDriftDetector
	goals *detect.GoalUnderfundingDetector
	log   zerolog.Logger
	now   func() time.Time
}

// NewRiskEngine wires the engine over its store, sink and detectors.
func NewRiskEngine(store persistence.Store, sink SignalSink, log zerolog.Logger) *RiskEngine {
	return &RiskEngine{
		store: store,
		sink:  sink,
		drift: detect.NewBudgetDriftDetector(store),
		goals: detect.NewGoalUnderfundingDetector(),
		log:   log,
		now:   time.Now,
	}
}

// WithClock overrides the time source everywhere, for tests.
func (e *RiskEngine) WithClock(now func() time.Time) *RiskEngine {
	e.now = now
	e.drift.WithClock(now)
	e.goals.WithClock(now)
	return e
}

// Run executes the full risk analysis and optionally stores high-severity
// risk signals.
func (e *RiskEngine) Run(ctx context.Context, userID string, storeSignals bool) (*RiskReport, error) {
	now := e.now()
	report := &RiskReport{UserID: userID, GeneratedAt: now}

	budgetItems, err := e.budgetRisks(ctx, userID)
	if err != nil {
		return nil, err
	}
	goalItems, err := e.goalRisks(ctx, userID)
	if err != nil {
		return nil, err
	}
	flowItems, balance, err := e.cashFlowRisks(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	upcomingItems, err := e.upcomingExpenseRisks(ctx, userID, now, balance)
	if err != nil {
		return nil, err
	}
	catItems, err := e.categoryRisks(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	report.Items = append(report.Items, budgetItems...)
	report.Items = append(report.Items, goalItems...)
	report.Items = append(report.Items, flowItems...)
	report.Items = append(report.Items, upcomingItems...)
	report.Items = append(report.Items, catItems...)
	report.OverallScore = overallRiskScore(report.Items)

	if storeSignals {
		signals := e.emitSignals(userID, report, now)
		if len(signals) > 0 {
			stored, err := e.sink.StoreSignals(ctx, signals)
			if err != nil {
				return nil, fmt.Errorf("failed to store risk signals: %w", err)
			}
			report.SignalsStored = stored
		}
	}

	e.log.Info().
		Str("user_id", userID).
		Int("items", len(report.Items)).
		Float64("score", report.OverallScore).
		Msg("risk run complete")

	return report, nil
}

func (e *RiskEngine) budgetRisks(ctx context.Context, userID string) ([]RiskItem, error) {
	results, err := e.drift.DetectAll(ctx, userID)
	if err != nil {
		return nil, err
	}

	var items []RiskItem
	for _, res := range results {
		if !res.HasDrift {
			continue
		}
		items = append(items, RiskItem{
			Type:        RiskBudgetDrift,
			Severity:    res.Severity,
			Category:    res.CategoryID,
			Description: fmt.Sprintf("Budget pacing %.0f%% over expected", res.DriftPercentage),
			Data: map[string]float64{
				"drift_percentage":    res.DriftPercentage,
				"projected_overshoot": res.ProjectedOvershoot,
			},
		})
		if res.ConsistentlyOverspent {
			items = append(items, RiskItem{
				Type:        RiskConsistentOverspend,
				Severity:    detect.SeverityHigh,
				Category:    res.CategoryID,
				Description: "Budget exceeded in each of the last three months",
			})
		}
	}
	return items, nil
}

func (e *RiskEngine) goalRisks(ctx context.Context, userID string) ([]RiskItem, error) {
	goals, err := e.store.Goals().ListActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}

	var items []RiskItem
	for i := range goals {
		res := e.goals.Detect(&goals[i])
		if res.IsStalled {
			items = append(items, RiskItem{
				Type:        RiskStalledGoal,
				Severity:    detect.SeverityHigh,
				Description: fmt.Sprintf("No contribution to goal %q in over 30 days", goals[i].Name),
			})
		}
		if res.IsUnderfunded && !res.IsStalled {
			items = append(items, RiskItem{
				Type:        RiskGoalUnderfunding,
				Severity:    res.Severity,
				Description: fmt.Sprintf("Goal %q funding %.0f%% short of required pace", goals[i].Name, res.ShortfallPercent),
				Data: map[string]float64{
					"required_monthly": res.RequiredMonthly,
					"average_monthly":  res.AverageMonthly,
				},
			})
		}
	}
	return items, nil
}

// cashFlowRisks analyzes 90 days of daily net flow. The returned balance
// is the 30-day net flow, a deliberate simplification in the absence of
// account balances.
func (e *RiskEngine) cashFlowRisks(ctx context.Context, userID string, now time.Time) ([]RiskItem, float64, error) {
	window := timewin.Rolling(now, 90)
	txs, err := e.store.Transactions().ListByUser(ctx, userID,
		persistence.TimeRange{From: window.Start, To: window.End}, 0)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}

	daily := make(map[string]float64)
	var balance30, expenses90 float64
	cutoff30 := now.AddDate(0, 0, -30)
	for _, tx := range txs {
		if tx.Status != domain.TxCompleted {
			continue
		}
		daily[tx.Date.Format("2006-01-02")] += tx.SignedAmount()
		if tx.Date.After(cutoff30) {
			balance30 += tx.SignedAmount()
		}
		if tx.Type == domain.TxExpense {
			expenses90 += tx.Amount
		}
	}

	var items []RiskItem
	if len(daily) > 0 {
		days := make([]string, 0, len(daily))
		for d := range daily {
			days = append(days, d)
		}
		sort.Strings(days)

		var negative, run, longestRun int
		for _, d := range days {
			if daily[d] < 0 {
				negative++
				run++
				if run > longestRun {
					longestRun = run
				}
			} else {
				run = 0
			}
		}

		ratio := float64(negative) / float64(len(days))
		if ratio > negativeDaysWarn {
			sev := detect.SeverityMedium
			if ratio > negativeDaysHigh {
				sev = detect.SeverityHigh
			}
			items = append(items, RiskItem{
				Type:        RiskFrequentNegativeFlow,
				Severity:    sev,
				Description: fmt.Sprintf("%.0f%% of active days had negative cash flow", ratio*100),
				Data: map[string]float64{
					"negative_ratio": ratio,
					"longest_run":    float64(longestRun),
				},
			})
		}
	}

	monthlyAvgExpense := expenses90 / 3
	if monthlyAvgExpense > 0 {
		coverage := balance30 / monthlyAvgExpense
		if coverage < coverageWarnMonths {
			sev := detect.SeverityMedium
			if coverage < coverageHighMonths {
				sev = detect.SeverityHigh
			}
			items = append(items, RiskItem{
				Type:        RiskLowLiquidity,
				Severity:    sev,
				Description: fmt.Sprintf("Estimated %.1f months of expense coverage", coverage),
				Data: map[string]float64{
					"months_of_coverage":  coverage,
					"monthly_avg_expense": monthlyAvgExpense,
				},
			})
		}
	}

	return items, balance30, nil
}

func (e *RiskEngine) upcomingExpenseRisks(ctx context.Context, userID string, now time.Time, balance float64) ([]RiskItem, error) {
	subs, err := e.store.Subscriptions().ListBillingBefore(ctx, userID, now.AddDate(0, 0, 30))
	if err != nil {
		return nil, fmt.Errorf("failed to list upcoming subscriptions: %w", err)
	}

	var upcoming float64
	for _, s := range subs {
		upcoming += s.Amount
	}
	if upcoming == 0 || upcoming <= upcomingRiskFactor*balance {
		return nil, nil
	}

	return []RiskItem{{
		Type:        RiskUpcomingExpenses,
		Severity:    detect.SeverityMedium,
		Description: fmt.Sprintf("$%.2f of subscriptions due within 30 days against a $%.2f balance", upcoming, balance),
		Data: map[string]float64{
			"upcoming_total": upcoming,
			"balance":        balance,
		},
	}}, nil
}

func (e *RiskEngine) categoryRisks(ctx context.Context, userID string, now time.Time) ([]RiskItem, error) {
	window := timewin.Rolling(now, 90)
	txs, err := e.store.Transactions().ListByUser(ctx, userID,
		persistence.TimeRange{From: window.Start, To: window.End}, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	byCat := make(map[string][]float64)
	var grand float64
	for _, tx := range txs {
		if tx.Type != domain.TxExpense || tx.Status != domain.TxCompleted {
			continue
		}
		byCat[tx.CategoryID] = append(byCat[tx.CategoryID], tx.Amount)
		grand += tx.Amount
	}

	cats := make([]string, 0, len(byCat))
	for cat := range byCat {
		cats = append(cats, cat)
	}
	sort.Strings(cats)

	var items []RiskItem
	for _, cat := range cats {
		amounts := byCat[cat]
		if cv := calc.Volatility(amounts); cv > volatilityRiskCV {
			items = append(items, RiskItem{
				Type:        RiskCategoryVolatility,
				Severity:    detect.SeverityMedium,
				Category:    cat,
				Description: fmt.Sprintf("Spending in %s is highly variable (CV %.2f)", cat, cv),
				Data:        map[string]float64{"coefficient_of_variation": cv},
			})
		}
		if grand > 0 {
			share := calc.Sum(amounts) / grand * 100
			if share > concentrationPct {
				items = append(items, RiskItem{
					Type:        RiskCategoryConcentration,
					Severity:    detect.SeverityMedium,
					Category:    cat,
					Description: fmt.Sprintf("%s accounts for %.0f%% of spending", cat, share),
					Data:        map[string]float64{"share_percent": share},
				})
			}
		}
	}
	return items, nil
}

// overallRiskScore is the severity-weighted average over the weight
// table, scaled to 0..100.
func overallRiskScore(items []RiskItem) float64 {
	var weighted, weights float64
	for _, item := range items {
		w := riskWeights[item.Type]
		weighted += severityScore(item.Severity) * w
		weights += w
	}
	if weights == 0 {
		return 0
	}
	return weighted / weights * 100
}

func (e *RiskEngine) emitSignals(userID string, report *RiskReport, now time.Time) []domain.FinancialSignal {
	window := timewin.Rolling(now, 90)

	var signals []domain.FinancialSignal
	for _, item := range report.Items {
		if item.Severity != detect.SeverityHigh {
			continue
		}
		s := newSignal(userID, domain.SignalRiskDetected,
			item.Description, signalCategoryForRisk(item), window.Start, window.End, "risk")
		s.Value = domain.SignalValue{Current: report.OverallScore}
		s.Priority = 1
		s.Tags = []string{"risk", string(item.Type)}
		s.Data.Aggregated = item.Data
		signals = append(signals, s)
	}
	return signals
}

// signalCategoryForRisk keys the dedup hash so distinct risk types for
// the same window do not collapse into one signal.
func signalCategoryForRisk(item RiskItem) string {
	if item.Category != "" {
		return string(item.Type) + ":" + item.Category
	}
	return string(item.Type)
}
