package weekly

import (
	"math"

	"github.com/finpulse/finpulse/internal/calc"
	"github.com/finpulse/finpulse/internal/domain"
)

// A shift is significant only when both the relative and the absolute
// movement clear these floors.
const (
	significantPct = 20.0
	significantAbs = 50.0

	majorPct    = 50.0
	criticalPct = 100.0

	movingAvgWeeks = 4
)

// ShiftDetector compares a week's metric against the previous week and,
// when enough history exists, against a 4-week moving average.
type ShiftDetector struct{}

func NewShiftDetector() *ShiftDetector { return &ShiftDetector{} }

// DetectShifts returns every significant movement between current and
// previous. history is newest-first and may include the current week;
// moving-average comparisons use the weeks strictly before current.
func (d *ShiftDetector) DetectShifts(current, previous *domain.WeeklyMetric, history []domain.WeeklyMetric) []domain.MetricShift {
	if current == nil {
		return nil
	}
	var shifts []domain.MetricShift
	if previous != nil {
		shifts = append(shifts, compare("expenses", "", current.Expenses, previous.Expenses, false)...)
		shifts = append(shifts, compare("income", "", current.Income, previous.Income, false)...)
		shifts = append(shifts, compare("savings", "", current.Savings, previous.Savings, false)...)

		prevByCategory := map[string]float64{}
		for _, stat := range previous.CategoryBreakdown {
			prevByCategory[stat.CategoryID] = stat.Total
		}
		for _, stat := range current.CategoryBreakdown {
			shifts = append(shifts, compare("category_spend", stat.CategoryID, stat.Total, prevByCategory[stat.CategoryID], false)...)
		}
	}

	if avg, ok := movingAverage(current, history); ok {
		shifts = append(shifts, compare("expenses_vs_avg", "", current.Expenses, avg, true)...)
	}
	return shifts
}

// movingAverage averages the expenses of the movingAvgWeeks weeks
// preceding current, requiring a full window.
func movingAverage(current *domain.WeeklyMetric, history []domain.WeeklyMetric) (float64, bool) {
	var prior []float64
	for _, m := range history {
		if !m.WeekStart.Before(current.WeekStart) {
			continue
		}
		prior = append(prior, m.Expenses)
		if len(prior) == movingAvgWeeks {
			return calc.Mean(prior), true
		}
	}
	return 0, false
}

func compare(metric, categoryID string, current, previous float64, vsAvg bool) []domain.MetricShift {
	delta := calc.Delta(current, previous)
	if math.Abs(delta.Percentage) <= significantPct || math.Abs(delta.Absolute) <= significantAbs {
		return nil
	}
	return []domain.MetricShift{{
		Metric:        metric,
		CategoryID:    categoryID,
		Current:       current,
		Previous:      previous,
		AbsoluteDelta: delta.Absolute,
		PercentDelta:  delta.Percentage,
		Tier:          tierFor(delta.Percentage),
		VsMovingAvg:   vsAvg,
	}}
}

func tierFor(percent float64) domain.ShiftTier {
	switch p := math.Abs(percent); {
	case p > criticalPct:
		return domain.ShiftCritical
	case p > majorPct:
		return domain.ShiftMajor
	default:
		return domain.ShiftNotable
	}
}
