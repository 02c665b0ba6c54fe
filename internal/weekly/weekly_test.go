package weekly

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/llm"
	"github.com/finpulse/finpulse/internal/persistence/memory"
)

// Monday of the test week; anchor is the Wednesday inside it.
var (
	testWeekStart = time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC)
	testAnchor    = testWeekStart.AddDate(0, 0, 2)
)

func seedTx(t *testing.T, db *memory.Store, userID string, typ domain.TransactionType, category string, amount float64, date time.Time, status domain.TransactionStatus) {
	t.Helper()
	err := db.Transactions().Insert(context.Background(), &domain.Transaction{
		ID:         uuid.NewString(),
		UserID:     userID,
		Amount:     amount,
		Type:       typ,
		CategoryID: category,
		Date:       date,
		Status:     status,
	})
	require.NoError(t, err)
}

func metricWeeks(t *testing.T, db *memory.Store, userID string, expenses ...float64) {
	t.Helper()
	for i, e := range expenses {
		start := testWeekStart.AddDate(0, 0, -7*(i+1))
		require.NoError(t, db.Weekly().UpsertMetric(context.Background(), &domain.WeeklyMetric{
			ID: uuid.NewString(), UserID: userID, WeekStart: start, WeekEnd: start.AddDate(0, 0, 7), Expenses: e,
		}))
	}
}

type fakeModel struct {
	payload llm.SummaryPayload
	err     error
	prompt  string
}

func (f *fakeModel) GenerateStructured(ctx context.Context, prompt string, out any) error {
	f.prompt = prompt
	if f.err != nil {
		return f.err
	}
	*(out.(*llm.SummaryPayload)) = f.payload
	return nil
}

func TestAggregateWeek_ComputesBuckets(t *testing.T) {
	db := memory.NewStore()
	ctx := context.Background()
	agg := NewAggregator(db, zerolog.Nop()).WithClock(func() time.Time { return testAnchor })

	seedTx(t, db, "u1", domain.TxIncome, "salary", 1200, testWeekStart, domain.TxCompleted)
	seedTx(t, db, "u1", domain.TxExpense, "groceries", 80, testWeekStart.AddDate(0, 0, 1), domain.TxCompleted)  // Tuesday
	seedTx(t, db, "u1", domain.TxExpense, "groceries", 120, testWeekStart.AddDate(0, 0, 5), domain.TxCompleted) // Saturday
	seedTx(t, db, "u1", domain.TxExpense, "dining", 50, testWeekStart.AddDate(0, 0, 3), domain.TxCompleted)
	seedTx(t, db, "u1", domain.TxExpense, "dining", 999, testWeekStart.AddDate(0, 0, 3), domain.TxPending) // ignored
	seedTx(t, db, "u1", domain.TxExpense, "groceries", 30, testWeekStart.AddDate(0, 0, 9), domain.TxCompleted) // next week

	require.NoError(t, db.Budgets().Insert(ctx, &domain.Budget{
		ID: "b1", UserID: "u1", CategoryID: "groceries", Amount: 150, Period: domain.PeriodWeekly, IsActive: true,
	}))

	m, err := agg.AggregateWeek(ctx, "u1", testAnchor)
	require.NoError(t, err)

	assert.Equal(t, 1200.0, m.Income)
	assert.Equal(t, 250.0, m.Expenses)
	assert.Equal(t, 950.0, m.Savings)
	assert.Equal(t, 4, m.TransactionCount)
	assert.Equal(t, 130.0, m.WeekdaySpend)
	assert.Equal(t, 120.0, m.WeekendSpend)

	require.Len(t, m.CategoryBreakdown, 2)
	assert.Equal(t, "groceries", m.CategoryBreakdown[0].CategoryID)
	assert.Equal(t, 200.0, m.CategoryBreakdown[0].Total)
	assert.Equal(t, 80.0, m.CategoryBreakdown[0].Percentage)

	require.Len(t, m.BudgetStatus, 1)
	bs := m.BudgetStatus[0]
	assert.Equal(t, "b1", bs.BudgetID)
	assert.Equal(t, 200.0, bs.Spent)
	assert.True(t, bs.OverBudget)

	stored, err := db.Weekly().GetMetric(ctx, "u1", testWeekStart)
	require.NoError(t, err)
	assert.Equal(t, m.ID, stored.ID)
}

func TestDetectShifts_SignificanceAndTiers(t *testing.T) {
	current := &domain.WeeklyMetric{
		WeekStart: testWeekStart,
		Expenses:  540, // +80% and +$240: major
		Income:    1100, // +10%: below the percentage floor
		Savings:   560,
		CategoryBreakdown: []domain.CategoryWeekStat{
			{CategoryID: "groceries", Total: 70}, // +40% but only +$20: below the dollar floor
			{CategoryID: "travel", Total: 400},   // from zero: critical would need >100%, Delta caps at 100
		},
	}
	previous := &domain.WeeklyMetric{
		WeekStart: testWeekStart.AddDate(0, 0, -7),
		Expenses:  300,
		Income:    1000,
		Savings:   700,
		CategoryBreakdown: []domain.CategoryWeekStat{
			{CategoryID: "groceries", Total: 50},
		},
	}

	shifts := NewShiftDetector().DetectShifts(current, previous, nil)

	byMetric := map[string]domain.MetricShift{}
	for _, s := range shifts {
		byMetric[s.Metric+s.CategoryID] = s
	}

	exp, ok := byMetric["expenses"]
	require.True(t, ok)
	assert.Equal(t, 240.0, exp.AbsoluteDelta)
	assert.Equal(t, 80.0, exp.PercentDelta)
	assert.Equal(t, domain.ShiftMajor, exp.Tier)

	_, ok = byMetric["income"]
	assert.False(t, ok, "a 10%% move is not significant")
	_, ok = byMetric["category_spendgroceries"]
	assert.False(t, ok, "a $20 move is not significant")

	travel, ok := byMetric["category_spendtravel"]
	require.True(t, ok)
	assert.Equal(t, domain.ShiftMajor, travel.Tier)
}

func TestDetectShifts_MovingAverage(t *testing.T) {
	current := &domain.WeeklyMetric{WeekStart: testWeekStart, Expenses: 300}
	var history []domain.WeeklyMetric
	for i := 1; i <= 4; i++ {
		history = append(history, domain.WeeklyMetric{
			WeekStart: testWeekStart.AddDate(0, 0, -7*i),
			Expenses:  100,
		})
	}

	shifts := NewShiftDetector().DetectShifts(current, nil, history)
	require.Len(t, shifts, 1)
	assert.Equal(t, "expenses_vs_avg", shifts[0].Metric)
	assert.True(t, shifts[0].VsMovingAvg)
	assert.Equal(t, 200.0, shifts[0].AbsoluteDelta)

	// Three prior weeks is not a full window.
	shifts = NewShiftDetector().DetectShifts(current, nil, history[:3])
	assert.Empty(t, shifts)
}

func TestFilterInsights_CapsAndBoosts(t *testing.T) {
	shifts := []domain.MetricShift{{Metric: "category_spend", CategoryID: "dining", Tier: domain.ShiftMajor}}

	mk := func(typ, title, category string, confidence, amount float64, actions ...string) domain.Insight {
		return domain.Insight{
			Type: typ, Title: title, CategoryID: category, Confidence: confidence,
			Impact:      domain.InsightImpact{Amount: amount},
			ActionItems: actions,
		}
	}

	insights := []domain.Insight{
		mk("spending", "low confidence", "", 60, 100),
		mk("spending", "negligible", "", 90, 2),
		mk("spending", "aligned", "dining", 75, 40),   // 75 + 15 = 90
		mk("spending", "plain high", "", 85, 40),      // 85
		mk("spending", "plain mid", "", 80, 40),       // 80, third of type: capped out
		mk("saving", "actionable", "", 72, 40, "do x"), // 72 + 10 = 82
		mk("budget", "steady", "", 71, 40),            // 71
	}

	out := NewInsightFilter().FilterInsights(insights, shifts)

	require.Len(t, out, 5)
	assert.Equal(t, "aligned", out[0].Title)
	assert.Equal(t, "plain high", out[1].Title)
	assert.Equal(t, "actionable", out[2].Title)
	assert.Equal(t, "steady", out[3].Title)
	assert.Equal(t, "budget", out[4].Type, "third spending insight is capped, next type fills the slot")
}

func TestGenerate_UsesModelNarrative(t *testing.T) {
	db := memory.NewStore()
	ctx := context.Background()

	seedTx(t, db, "u1", domain.TxExpense, "groceries", 200, testAnchor, domain.TxCompleted)
	require.NoError(t, db.Signals().Insert(ctx, &domain.FinancialSignal{
		ID: "sig-1", UserID: "u1", Type: domain.SignalBudgetDrift, Category: "groceries",
		IsActive: true, ExpiresAt: time.Now().Add(24 * time.Hour),
	}))

	model := &fakeModel{payload: llm.SummaryPayload{
		Overview: "Spending held steady against the prior week.",
		Insights: []llm.InsightItem{{
			Type: "spending", Title: "Groceries dominate", Description: "Groceries were the whole week's spend.",
			SignalIDs: []string{"sig-1"}, Confidence: 85,
		}},
	}}
	model.payload.Insights[0].Impact.Amount = 200

	gen := NewSummaryGenerator(db, model, zerolog.Nop()).WithClock(func() time.Time { return testAnchor })

	summary, err := gen.Generate(ctx, "u1", testAnchor)
	require.NoError(t, err)

	assert.False(t, summary.Fallback)
	assert.Equal(t, "Spending held steady against the prior week.", summary.Overview)
	require.Len(t, summary.Insights, 1)
	assert.Equal(t, "Groceries dominate", summary.Insights[0].Title)
	assert.Equal(t, "u1", summary.Insights[0].UserID)
	assert.Equal(t, domain.InsightGenerated, summary.Insights[0].Status)
	assert.Contains(t, model.prompt, "sig-1")
	assert.Equal(t, testAnchor.Add(domain.DefaultSummaryTTL), summary.ExpiresAt)

	latest, err := gen.Latest(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, summary.ID, latest.ID)
}

func TestGenerate_FallbackOnModelFailure(t *testing.T) {
	db := memory.NewStore()
	ctx := context.Background()

	seedTx(t, db, "u1", domain.TxExpense, "groceries", 200, testAnchor, domain.TxCompleted)
	model := &fakeModel{err: fmt.Errorf("gemini unreachable")}
	gen := NewSummaryGenerator(db, model, zerolog.Nop()).WithClock(func() time.Time { return testAnchor })

	summary, err := gen.Generate(ctx, "u1", testAnchor)
	require.NoError(t, err, "model failure must not fail the pipeline")

	assert.True(t, summary.Fallback)
	assert.Contains(t, summary.Overview, "2026-05-11")
	require.NotNil(t, summary.Metrics)
	assert.Equal(t, 200.0, summary.Metrics.Expenses)
	require.Len(t, summary.Insights, 1)
	assert.Equal(t, "warning", summary.Insights[0].Type)
	assert.Equal(t, "Summary generation incomplete", summary.Insights[0].Title)
	assert.Equal(t, 100.0, summary.Insights[0].Confidence)
}

func TestGenerate_FallbackOnInventedSignal(t *testing.T) {
	db := memory.NewStore()
	ctx := context.Background()

	seedTx(t, db, "u1", domain.TxExpense, "groceries", 200, testAnchor, domain.TxCompleted)
	model := &fakeModel{payload: llm.SummaryPayload{
		Overview: "Looks fine.",
		Insights: []llm.InsightItem{{
			Type: "spending", Title: "t", Description: "d", Confidence: 90,
			SignalIDs: []string{"sig-made-up"},
		}},
	}}
	gen := NewSummaryGenerator(db, model, zerolog.Nop()).WithClock(func() time.Time { return testAnchor })

	summary, err := gen.Generate(ctx, "u1", testAnchor)
	require.NoError(t, err)
	assert.True(t, summary.Fallback, "an invented signal reference degrades to the fallback summary")
}
