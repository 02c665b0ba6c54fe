// Package detect implements deterministic detectors over a user's
// budgets and savings goals. Detectors read state and report findings;
// they never mutate domain entities.
package detect

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/finpulse/finpulse/internal/calc"
	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/persistence"
	"github.com/finpulse/finpulse/internal/timewin"
)

// Severity grades a detector finding.
type Severity string

const (
	SeverityNone   Severity = ""
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// DriftResult reports one budget's pacing against its period.
type DriftResult struct {
	BudgetID              string         `json:"budget_id"`
	CategoryID            string         `json:"category_id"`
	Period                timewin.Window `json:"period"`
	DaysElapsed           int            `json:"days_elapsed"`
	TotalDays             int            `json:"total_days"`
	CurrentSpent          float64        `json:"current_spent"`
	ExpectedSpent         float64        `json:"expected_spent"`
	DailyRate             float64        `json:"daily_rate"`
	ProjectedTotal        float64        `json:"projected_total"`
	ProjectedOvershoot    float64        `json:"projected_overshoot"`
	DriftPercentage       float64        `json:"drift_percentage"`
	HasDrift              bool           `json:"has_drift"`
	Severity              Severity       `json:"severity"`
	ConsistentlyOverspent bool           `json:"consistently_overspent"`
	Recommendations       []string       `json:"recommendations,omitempty"`
}

// BudgetDriftDetector paces spending inside the current budget period and
// projects the end-of-period total from the daily run rate.
type BudgetDriftDetector struct {
	store persistence.Store
	now   func() time.Time
}

// NewBudgetDriftDetector wires a detector over the given store.
func NewBudgetDriftDetector(store persistence.Store) *BudgetDriftDetector {
	return &BudgetDriftDetector{store: store, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (d *BudgetDriftDetector) WithClock(now func() time.Time) *BudgetDriftDetector {
	d.now = now
	return d
}

// periodOf resolves the budget cadence to the window containing now.
// Weekly budgets run Sunday through Saturday.
func periodOf(period domain.BudgetPeriod, now time.Time) timewin.Window {
	switch period {
	case domain.PeriodWeekly:
		return timewin.WeekOf(now, timewin.Sunday)
	case domain.PeriodYearly:
		return timewin.YearOf(now)
	default:
		return timewin.MonthOf(now)
	}
}

// Detect analyzes one budget at the current instant.
func (d *BudgetDriftDetector) Detect(ctx context.Context, budget *domain.Budget) (*DriftResult, error) {
	now := d.now()
	window := periodOf(budget.Period, now)

	spent, err := d.store.Transactions().SumCompletedExpenses(ctx, budget.UserID, budget.CategoryID,
		persistence.TimeRange{From: window.Start, To: now})
	if err != nil {
		return nil, fmt.Errorf("failed to sum spending for budget %s: %w", budget.ID, err)
	}

	totalDays := window.Days()
	daysElapsed := int(now.Sub(window.Start).Hours()/24) + 1
	if daysElapsed > totalDays {
		daysElapsed = totalDays
	}

	res := &DriftResult{
		BudgetID:     budget.ID,
		CategoryID:   budget.CategoryID,
		Period:       window,
		DaysElapsed:  daysElapsed,
		TotalDays:    totalDays,
		CurrentSpent: spent,
	}

	res.DailyRate = spent / float64(daysElapsed)
	res.ProjectedTotal = res.DailyRate * float64(totalDays)
	res.ProjectedOvershoot = math.Max(0, res.ProjectedTotal-budget.Amount)
	res.ExpectedSpent = budget.Amount * float64(daysElapsed) / float64(totalDays)
	if res.ExpectedSpent > 0 {
		res.DriftPercentage = (spent/res.ExpectedSpent - 1) * 100
	}

	res.Severity = driftSeverity(budget.Flexibility, res.DriftPercentage, res.ProjectedOvershoot)
	res.HasDrift = res.Severity != SeverityNone
	if res.HasDrift {
		res.Recommendations = driftRecommendations(budget, res, now)

		overspent, err := d.consistentlyOverspent(ctx, budget, now)
		if err != nil {
			return nil, err
		}
		res.ConsistentlyOverspent = overspent
	}

	return res, nil
}

// DetectAll runs drift analysis over every active budget.
func (d *BudgetDriftDetector) DetectAll(ctx context.Context, userID string) ([]DriftResult, error) {
	budgets, err := d.store.Budgets().ListActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list budgets: %w", err)
	}

	var out []DriftResult
	for i := range budgets {
		res, err := d.Detect(ctx, &budgets[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, nil
}

func driftSeverity(flex domain.BudgetFlexibility, pct, overshoot float64) Severity {
	switch flex {
	case domain.FlexStrict:
		switch {
		case pct > 30 || overshoot > 500:
			return SeverityHigh
		case pct > 15 || overshoot > 200:
			return SeverityMedium
		case pct > 10:
			return SeverityLow
		}
	default:
		switch {
		case pct > 50 || overshoot > 1000:
			return SeverityHigh
		case pct > 25 || overshoot > 500:
			return SeverityMedium
		case pct > 10:
			return SeverityLow
		}
	}
	return SeverityNone
}

func driftRecommendations(budget *domain.Budget, res *DriftResult, now time.Time) []string {
	var recs []string

	daysLeft := res.TotalDays - res.DaysElapsed
	remaining := budget.Amount - res.CurrentSpent
	if daysLeft > 0 && remaining > 0 {
		recs = append(recs, fmt.Sprintf(
			"Limit spending to $%s per day for the remaining %d days to stay within budget",
			fmtMoney(remaining/float64(daysLeft)), daysLeft))
	}
	if res.ProjectedOvershoot > 0 {
		recs = append(recs, fmt.Sprintf(
			"At the current rate this budget will be exceeded by $%s", fmtMoney(res.ProjectedOvershoot)))
	}
	if remaining <= 0 {
		recs = append(recs, fmt.Sprintf(
			"Budget of $%s is already spent with %d days left in the period",
			fmtMoney(budget.Amount), daysLeft))
	}
	return recs
}

func fmtMoney(v float64) string {
	return fmt.Sprintf("%.2f", calc.RoundCents(v))
}

// consistentlyOverspent checks the previous three calendar months against
// the budget's monthly-equivalent amount.
func (d *BudgetDriftDetector) consistentlyOverspent(ctx context.Context, budget *domain.Budget, now time.Time) (bool, error) {
	monthly := monthlyEquivalent(budget)
	if monthly <= 0 {
		return false, nil
	}

	for i := 1; i <= 3; i++ {
		month := timewin.MonthOf(now.AddDate(0, -i, 0))
		spent, err := d.store.Transactions().SumCompletedExpenses(ctx, budget.UserID, budget.CategoryID,
			persistence.TimeRange{From: month.Start, To: month.End})
		if err != nil {
			return false, fmt.Errorf("failed to sum historical spending: %w", err)
		}
		if spent <= monthly {
			return false, nil
		}
	}
	return true, nil
}

func monthlyEquivalent(budget *domain.Budget) float64 {
	switch budget.Period {
	case domain.PeriodWeekly:
		return budget.Amount * 52 / 12
	case domain.PeriodYearly:
		return budget.Amount / 12
	default:
		return budget.Amount
	}
}
