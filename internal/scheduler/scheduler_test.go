package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finpulse/finpulse/internal/audit"
	"github.com/finpulse/finpulse/internal/config"
	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/engine"
	"github.com/finpulse/finpulse/internal/errs"
	"github.com/finpulse/finpulse/internal/metrics"
	"github.com/finpulse/finpulse/internal/notify"
	"github.com/finpulse/finpulse/internal/persistence/memory"
	"github.com/finpulse/finpulse/internal/signalstore"
	"github.com/finpulse/finpulse/internal/suggest"
	"github.com/finpulse/finpulse/internal/weekly"
)

var schedTestNow = time.Date(2026, 5, 13, 2, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T) (*Scheduler, *memory.Store) {
	t.Helper()
	db := memory.NewStore()
	clock := func() time.Time { return schedTestNow }
	nop := zerolog.Nop()

	signals := signalstore.New(db, nop).WithClock(clock)
	trail := audit.NewTrail(db, nop).WithClock(clock)
	deps := Deps{
		DB:       db,
		Pipeline: engine.NewPipeline(db, signals, nop).WithClock(clock),
		Summary:  weekly.NewSummaryGenerator(db, nil, nop).WithClock(clock),
		Notify:   notify.NewDispatcher(db, nop).WithClock(clock),
		Suggest:  suggest.NewEngine(db, trail, nop).WithClock(clock),
		Signals:  signals,
		Audit:    trail,
		Metrics:  metrics.New(),
	}
	cfg := config.ScheduleConfig{
		WeeklyCron:   "0 2 * * 1",
		DailyCron:    "0 3 * * *",
		BatchSize:    2,
		BatchDelayMS: 1,
	}
	return New(deps, cfg, nop).WithClock(clock), db
}

func seedUser(t *testing.T, db *memory.Store, userID string) {
	t.Helper()
	txs := []domain.Transaction{
		{ID: userID + "-t1", Amount: 2000, Type: domain.TxIncome, CategoryID: "salary", Date: schedTestNow.AddDate(0, 0, -3)},
		{ID: userID + "-t2", Amount: 400, Type: domain.TxExpense, CategoryID: "rent", Date: schedTestNow.AddDate(0, 0, -2)},
	}
	for i := range txs {
		txs[i].UserID = userID
		txs[i].Status = domain.TxCompleted
		require.NoError(t, db.Transactions().Insert(context.Background(), &txs[i]))
	}
}

func TestRunWeekly_ProcessesEveryUser(t *testing.T) {
	s, db := newTestScheduler(t)
	for _, id := range []string{"u1", "u2", "u3"} {
		seedUser(t, db, id)
	}

	s.RunWeekly(context.Background())

	ctx := context.Background()
	for _, id := range []string{"u1", "u2", "u3"} {
		sum, err := db.Weekly().LatestSummary(ctx, id)
		require.NoError(t, err, id)
		assert.Equal(t, id, sum.UserID)

		inbox, err := db.Notifications().ListByUser(ctx, id, false, 10)
		require.NoError(t, err)
		require.Len(t, inbox, 1)
		assert.Equal(t, domain.NotifyWeeklySummary, inbox[0].Type)
	}
}

func TestRunWeekly_SkipsWhenAlreadyRunning(t *testing.T) {
	s, db := newTestScheduler(t)
	seedUser(t, db, "u1")

	require.True(t, s.tryBegin())
	s.RunWeekly(context.Background())
	s.end()

	_, err := db.Weekly().LatestSummary(context.Background(), "u1")
	assert.True(t, errs.Is(err, errs.KindNotFound), "guarded run must not touch user state")
}

func TestRetryFailed_ReprocessesRecentFailuresOnly(t *testing.T) {
	s, db := newTestScheduler(t)
	seedUser(t, db, "u1")
	seedUser(t, db, "u2")

	s.recordFailure("u1")
	s.failMu.Lock()
	s.failed["u2"] = schedTestNow.AddDate(0, 0, -10) // outside the window
	s.failMu.Unlock()

	s.RetryFailed(context.Background(), 7)

	ctx := context.Background()
	_, err := db.Weekly().LatestSummary(ctx, "u1")
	require.NoError(t, err)
	_, err = db.Weekly().LatestSummary(ctx, "u2")
	assert.True(t, errs.Is(err, errs.KindNotFound))

	s.failMu.Lock()
	defer s.failMu.Unlock()
	assert.NotContains(t, s.failed, "u1", "success clears the failure record")
	assert.Contains(t, s.failed, "u2")
}

func TestRunDailySweep_RemovesExpiredArtifacts(t *testing.T) {
	s, db := newTestScheduler(t)
	ctx := context.Background()

	require.NoError(t, db.Notifications().Insert(ctx, &domain.Notification{
		ID: "n-old", UserID: "u1", Type: domain.NotifyRiskAlert, Title: "stale",
		ExpiresAt: schedTestNow.AddDate(0, 0, -1), CreatedAt: schedTestNow.AddDate(0, 0, -31),
	}))
	require.NoError(t, db.Weekly().InsertSummary(ctx, &domain.WeeklySummary{
		ID: "ws-old", UserID: "u1", MetricID: "wm-old",
		WeekStart: schedTestNow.AddDate(0, 0, -100), Overview: "stale",
		ExpiresAt: schedTestNow.AddDate(0, 0, -5), CreatedAt: schedTestNow.AddDate(0, 0, -100),
	}))

	s.RunDailySweep(ctx)

	inbox, err := db.Notifications().ListByUser(ctx, "u1", false, 10)
	require.NoError(t, err)
	assert.Empty(t, inbox)

	_, err = db.Weekly().LatestSummary(ctx, "u1")
	assert.True(t, errs.Is(err, errs.KindNotFound))
}
