package weekly

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/errs"
	"github.com/finpulse/finpulse/internal/llm"
	"github.com/finpulse/finpulse/internal/persistence"
	"github.com/finpulse/finpulse/internal/timewin"
)

// maxSummarySignals bounds how many active signals feed the prompt.
const maxSummarySignals = 20

// SummaryGenerator orchestrates the weekly pipeline: aggregate the
// week, detect shifts, ask the model for a narrative, filter its
// insights and persist the summary. Model failures degrade to a
// deterministic fallback; they never surface to the caller.
type SummaryGenerator struct {
	db       persistence.Store
	agg      *Aggregator
	detector *ShiftDetector
	filter   *InsightFilter
	model    llm.Client
	log      zerolog.Logger
	now      func() time.Time
}

func NewSummaryGenerator(db persistence.Store, model llm.Client, log zerolog.Logger) *SummaryGenerator {
	return &SummaryGenerator{
		db:       db,
		agg:      NewAggregator(db, log),
		detector: NewShiftDetector(),
		filter:   NewInsightFilter(),
		model:    model,
		log:      log.With().Str("component", "weekly_summary").Logger(),
		now:      time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (g *SummaryGenerator) WithClock(now func() time.Time) *SummaryGenerator {
	g.now = now
	g.agg.WithClock(now)
	return g
}

// Generate builds and stores the summary for the week containing
// anchor.
func (g *SummaryGenerator) Generate(ctx context.Context, userID string, anchor time.Time) (*domain.WeeklySummary, error) {
	metric, err := g.agg.AggregateWeek(ctx, userID, anchor)
	if err != nil {
		return nil, err
	}

	previous, err := g.db.Weekly().GetMetric(ctx, userID, timewin.PreviousWeek(anchor, timewin.Monday).Start)
	if err != nil && !errs.Is(err, errs.KindNotFound) {
		return nil, fmt.Errorf("failed to load previous weekly metric: %w", err)
	}
	history, err := g.db.Weekly().ListRecentMetrics(ctx, userID, movingAvgWeeks+1)
	if err != nil {
		return nil, fmt.Errorf("failed to load metric history: %w", err)
	}
	shifts := g.detector.DetectShifts(metric, previous, history)

	signals, err := g.db.Signals().List(ctx, userID, persistence.SignalQuery{Limit: maxSummarySignals})
	if err != nil {
		return nil, fmt.Errorf("failed to load signals for summary: %w", err)
	}

	overview, insights, fallback := g.synthesize(ctx, userID, metric, shifts, signals)

	summary := &domain.WeeklySummary{
		ID:        uuid.NewString(),
		UserID:    userID,
		MetricID:  metric.ID,
		WeekStart: metric.WeekStart,
		Metrics:   metric,
		Shifts:    shifts,
		Insights:  insights,
		Overview:  overview,
		Fallback:  fallback,
		ExpiresAt: g.now().Add(domain.DefaultSummaryTTL),
		CreatedAt: g.now(),
	}
	if err := g.db.Weekly().InsertSummary(ctx, summary); err != nil {
		return nil, fmt.Errorf("failed to store weekly summary: %w", err)
	}
	g.log.Info().Str("user_id", userID).Time("week_start", metric.WeekStart).
		Bool("fallback", fallback).Int("insights", len(insights)).Int("shifts", len(shifts)).
		Msg("weekly summary generated")
	return summary, nil
}

// synthesize asks the model for the narrative; any failure yields the
// fallback overview and placeholder insight instead of an error.
func (g *SummaryGenerator) synthesize(ctx context.Context, userID string, metric *domain.WeeklyMetric, shifts []domain.MetricShift, signals []domain.FinancialSignal) (string, []domain.Insight, bool) {
	if g.model == nil {
		return g.fallback(metric)
	}

	prompt := llm.BuildWeeklySummaryPrompt(llm.WeeklyPromptInput{Metric: metric, Shifts: shifts, Signals: signals})
	var payload llm.SummaryPayload
	if err := g.model.GenerateStructured(ctx, prompt, &payload); err != nil {
		g.log.Warn().Err(err).Str("user_id", userID).Msg("summary generation failed, using fallback")
		return g.fallback(metric)
	}

	known := make(map[string]bool, len(signals))
	for _, s := range signals {
		known[s.ID] = true
	}
	if err := payload.Validate(known); err != nil {
		g.log.Warn().Err(err).Str("user_id", userID).Msg("summary payload rejected, using fallback")
		return g.fallback(metric)
	}

	insights := g.filter.FilterInsights(g.toInsights(userID, payload.Insights), shifts)
	return payload.Overview, insights, false
}

func (g *SummaryGenerator) toInsights(userID string, items []llm.InsightItem) []domain.Insight {
	out := make([]domain.Insight, 0, len(items))
	for _, it := range items {
		out = append(out, domain.Insight{
			ID:          uuid.NewString(),
			UserID:      userID,
			Type:        it.Type,
			Title:       it.Title,
			Description: it.Description,
			SignalIDs:   it.SignalIDs,
			CategoryID:  it.CategoryID,
			Impact: domain.InsightImpact{
				Amount:     it.Impact.Amount,
				Percentage: it.Impact.Percentage,
				Timeframe:  it.Impact.Timeframe,
			},
			Confidence:  it.Confidence,
			ActionItems: it.ActionItems,
			Status:      domain.InsightGenerated,
			CreatedAt:   g.now(),
		})
	}
	return out
}

// fallback produces the degraded summary: computed metrics survive, the
// narrative is replaced by a placeholder naming the week.
func (g *SummaryGenerator) fallback(metric *domain.WeeklyMetric) (string, []domain.Insight, bool) {
	overview := fmt.Sprintf("Weekly report for the week of %s. Income %.2f, expenses %.2f, net %.2f.",
		metric.WeekStart.Format("2006-01-02"), metric.Income, metric.Expenses, metric.Savings)
	insights := []domain.Insight{{
		ID:         uuid.NewString(),
		UserID:     metric.UserID,
		Type:       "warning",
		Title:      "Summary generation incomplete",
		Confidence: 100,
		Status:     domain.InsightGenerated,
		CreatedAt:  g.now(),
	}}
	return overview, insights, true
}

// Latest returns the newest unexpired summary for the user.
func (g *SummaryGenerator) Latest(ctx context.Context, userID string) (*domain.WeeklySummary, error) {
	return g.db.Weekly().LatestSummary(ctx, userID)
}

// CleanupExpired removes summaries past their retention window.
func (g *SummaryGenerator) CleanupExpired(ctx context.Context) (int64, error) {
	return g.db.Weekly().DeleteExpiredSummaries(ctx, g.now())
}
