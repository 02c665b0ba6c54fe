package detect

import (
	"math"
	"time"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/timewin"
)

// stalledAfter is how long without a contribution marks a goal stalled.
const stalledAfter = 30 * 24 * time.Hour

// UnderfundingResult reports one goal's funding pace against its target.
type UnderfundingResult struct {
	GoalID              string     `json:"goal_id"`
	MonthsRemaining     int        `json:"months_remaining"`
	RequiredMonthly     float64    `json:"required_monthly"`
	AverageMonthly      float64    `json:"average_monthly"`
	Shortfall           float64    `json:"shortfall"`
	ShortfallPercent    float64    `json:"shortfall_percent"`
	IsStalled           bool       `json:"is_stalled"`
	IsUnderfunded       bool       `json:"is_underfunded"`
	Severity            Severity   `json:"severity"`
	ProjectedCompletion *time.Time `json:"projected_completion,omitempty"`
}

// GoalUnderfundingDetector compares the contribution run rate against
// what the target date requires. It is pure: everything comes from the
// goal record itself.
type GoalUnderfundingDetector struct {
	now func() time.Time
}

// NewGoalUnderfundingDetector returns a detector using wall-clock time.
func NewGoalUnderfundingDetector() *GoalUnderfundingDetector {
	return &GoalUnderfundingDetector{now: time.Now}
}

// WithClock overrides the time source, for tests.
func (d *GoalUnderfundingDetector) WithClock(now func() time.Time) *GoalUnderfundingDetector {
	d.now = now
	return d
}

// Detect analyzes one goal. Completed and cancelled goals report a
// zero-valued result.
func (d *GoalUnderfundingDetector) Detect(goal *domain.SavingsGoal) *UnderfundingResult {
	res := &UnderfundingResult{GoalID: goal.ID}
	if goal.Status != domain.GoalActive || goal.CurrentAmount >= goal.TargetAmount {
		return res
	}

	now := d.now()
	remaining := goal.TargetAmount - goal.CurrentAmount

	res.MonthsRemaining = timewin.MonthsBetween(now, goal.TargetDate)
	res.RequiredMonthly = remaining / math.Max(1, float64(res.MonthsRemaining))
	res.AverageMonthly = averageMonthlyContribution(goal, now)
	res.Shortfall = res.RequiredMonthly - res.AverageMonthly
	if res.RequiredMonthly > 0 {
		res.ShortfallPercent = res.Shortfall / res.RequiredMonthly * 100
	}

	last := goal.LastContribution()
	res.IsStalled = !last.IsZero() && now.Sub(last) > stalledAfter
	if last.IsZero() && now.Sub(goal.CreatedAt) > stalledAfter {
		res.IsStalled = true
	}

	if res.AverageMonthly > 0 {
		months := int(math.Ceil(remaining / res.AverageMonthly))
		t := now.AddDate(0, months, 0)
		res.ProjectedCompletion = &t
	}

	res.Severity = goalSeverity(res)
	res.IsUnderfunded = res.Severity != SeverityNone
	return res
}

func averageMonthlyContribution(goal *domain.SavingsGoal, now time.Time) float64 {
	if len(goal.Contributions) == 0 {
		return 0
	}

	first := goal.Contributions[0].Date
	var total float64
	for _, c := range goal.Contributions {
		total += c.Amount
		if c.Date.Before(first) {
			first = c.Date
		}
	}

	months := timewin.MonthsBetween(first, now)
	if months < 1 {
		months = 1
	}
	return total / float64(months)
}

func goalSeverity(res *UnderfundingResult) Severity {
	switch {
	case res.IsStalled:
		return SeverityHigh
	case res.MonthsRemaining < 3 && res.ShortfallPercent > 30:
		return SeverityHigh
	case res.ShortfallPercent > 50:
		return SeverityHigh
	case res.ShortfallPercent > 25:
		return SeverityMedium
	case res.ShortfallPercent > 10:
		return SeverityLow
	}
	return SeverityNone
}
