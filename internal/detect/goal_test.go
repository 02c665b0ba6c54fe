package detect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finpulse/finpulse/internal/domain"
)

func TestGoalUnderfunding_Stalled(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	goal := &domain.SavingsGoal{
		ID: "g1", UserID: "u1",
		TargetAmount:  10000,
		CurrentAmount: 4000,
		TargetDate:    now.AddDate(0, 6, 0),
		Status:        domain.GoalActive,
		Contributions: []domain.Contribution{
			{Amount: 4000, Date: now.AddDate(0, 0, -45)},
		},
		CreatedAt: now.AddDate(0, -4, 0),
	}

	det := NewGoalUnderfundingDetector().WithClock(func() time.Time { return now })
	res := det.Detect(goal)

	assert.True(t, res.IsStalled)
	assert.Equal(t, SeverityHigh, res.Severity)
	assert.True(t, res.IsUnderfunded)
	assert.Equal(t, 6, res.MonthsRemaining)
	assert.InDelta(t, 1000.0, res.RequiredMonthly, 1e-9)
}

func TestGoalUnderfunding_ShortfallTiers(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	mk := func(avgMonthly float64) *domain.SavingsGoal {
		// Ten months of history establishes the average run rate.
		var contributions []domain.Contribution
		for i := 0; i < 10; i++ {
			contributions = append(contributions, domain.Contribution{
				Amount: avgMonthly,
				Date:   now.AddDate(0, -i, 0),
			})
		}
		return &domain.SavingsGoal{
			ID: "g2", UserID: "u1",
			TargetAmount:  20000,
			CurrentAmount: 10000,
			TargetDate:    now.AddDate(0, 10, 0),
			Status:        domain.GoalActive,
			Contributions: contributions,
		}
	}

	det := NewGoalUnderfundingDetector().WithClock(func() time.Time { return now })

	// required = 1000/month in every case; the ten deposits span nine
	// whole months, so the computed average is total/9.
	res := det.Detect(mk(400)) // avg ≈ 444, 56% short
	assert.Equal(t, SeverityHigh, res.Severity)

	res = det.Detect(mk(600)) // avg ≈ 667, 33% short
	assert.Equal(t, SeverityMedium, res.Severity)

	res = det.Detect(mk(700)) // avg ≈ 778, 22% short
	assert.Equal(t, SeverityLow, res.Severity)

	res = det.Detect(mk(1000)) // ahead of pace
	assert.Equal(t, SeverityNone, res.Severity)
	assert.False(t, res.IsUnderfunded)
}

func TestGoalUnderfunding_ProjectedCompletion(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	goal := &domain.SavingsGoal{
		ID: "g3", UserID: "u1",
		TargetAmount:  5000,
		CurrentAmount: 2000,
		TargetDate:    now.AddDate(0, 12, 0),
		Status:        domain.GoalActive,
		Contributions: []domain.Contribution{
			{Amount: 500, Date: now.AddDate(0, -2, 0)},
			{Amount: 500, Date: now.AddDate(0, -1, 0)},
			{Amount: 1000, Date: now.AddDate(0, 0, -5)},
		},
	}

	det := NewGoalUnderfundingDetector().WithClock(func() time.Time { return now })
	res := det.Detect(goal)

	// avg = 2000/2 months = 1000; remaining 3000 => 3 more months.
	require.NotNil(t, res.ProjectedCompletion)
	assert.Equal(t, now.AddDate(0, 3, 0), *res.ProjectedCompletion)
}

func TestGoalUnderfunding_InactiveOrComplete(t *testing.T) {
	now := time.Now()
	det := NewGoalUnderfundingDetector()

	res := det.Detect(&domain.SavingsGoal{
		ID: "g4", Status: domain.GoalPaused,
		TargetAmount: 100, CurrentAmount: 0,
		TargetDate: now.AddDate(0, 3, 0),
	})
	assert.False(t, res.IsUnderfunded)
	assert.Equal(t, SeverityNone, res.Severity)

	res = det.Detect(&domain.SavingsGoal{
		ID: "g5", Status: domain.GoalActive,
		TargetAmount: 100, CurrentAmount: 150,
		TargetDate: now.AddDate(0, 3, 0),
	})
	assert.False(t, res.IsUnderfunded)
}

func TestGoalUnderfunding_NoHistoryNoProjection(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	goal := &domain.SavingsGoal{
		ID: "g6", UserID: "u1",
		TargetAmount:  5000,
		CurrentAmount: 0,
		TargetDate:    now.AddDate(0, 6, 0),
		Status:        domain.GoalActive,
		CreatedAt:     now.AddDate(0, 0, -10),
	}

	det := NewGoalUnderfundingDetector().WithClock(func() time.Time { return now })
	res := det.Detect(goal)

	assert.Nil(t, res.ProjectedCompletion)
	assert.Zero(t, res.AverageMonthly)
	assert.InDelta(t, 100.0, res.ShortfallPercent, 1e-9)
}
