// Package weekly materializes per-user weekly metrics, detects
// significant week-over-week shifts, and renders LLM-backed summaries
// with a deterministic fallback.
package weekly

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/finpulse/finpulse/internal/calc"
	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/persistence"
	"github.com/finpulse/finpulse/internal/timewin"
)

// Aggregator computes and upserts WeeklyMetric rows. Weeks run Monday
// 00:00 through Sunday 23:59:59.999 in the anchor's location.
type Aggregator struct {
	db  persistence.Store
	log zerolog.Logger
	now func() time.Time
}

func NewAggregator(db persistence.Store, log zerolog.Logger) *Aggregator {
	return &Aggregator{db: db, log: log.With().Str("component", "weekly_aggregator").Logger(), now: time.Now}
}

// WithClock overrides the time source, for tests.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// AggregateWeek builds the metric for the week containing anchor and
// persists it, replacing any earlier materialization of the same week.
func (a *Aggregator) AggregateWeek(ctx context.Context, userID string, anchor time.Time) (*domain.WeeklyMetric, error) {
	week := timewin.WeekOf(anchor, timewin.Monday)

	txs, err := a.db.Transactions().ListByUser(ctx, userID, persistence.TimeRange{From: week.Start, To: week.End}, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions for week: %w", err)
	}

	m := &domain.WeeklyMetric{
		ID:        uuid.NewString(),
		UserID:    userID,
		WeekStart: week.Start,
		WeekEnd:   week.End,
		CreatedAt: a.now(),
	}

	byCategory := map[string]*domain.CategoryWeekStat{}
	dailyExpense := make([]float64, 7)
	for i := range txs {
		tx := &txs[i]
		if tx.Status != domain.TxCompleted {
			continue
		}
		switch tx.Type {
		case domain.TxIncome:
			m.Income += tx.Amount
		case domain.TxExpense:
			m.Expenses += tx.Amount
			day := int(tx.Date.Sub(week.Start).Hours() / 24)
			if day >= 0 && day < 7 {
				dailyExpense[day] += tx.Amount
			}
			if tx.IsWeekend() {
				m.WeekendSpend += tx.Amount
			} else {
				m.WeekdaySpend += tx.Amount
			}
			stat, ok := byCategory[tx.CategoryID]
			if !ok {
				stat = &domain.CategoryWeekStat{CategoryID: tx.CategoryID}
				byCategory[tx.CategoryID] = stat
			}
			stat.Total += tx.Amount
			stat.Count++
		default:
			continue
		}
		m.TransactionCount++
	}
	m.Savings = m.Income - m.Expenses
	m.Volatility = calc.Volatility(dailyExpense)

	for _, stat := range byCategory {
		if m.Expenses > 0 {
			stat.Percentage = calc.RoundCents(stat.Total / m.Expenses * 100)
		}
		m.CategoryBreakdown = append(m.CategoryBreakdown, *stat)
	}
	sortBreakdown(m.CategoryBreakdown)

	if err := a.fillBudgetStatus(ctx, m); err != nil {
		return nil, err
	}

	if err := a.db.Weekly().UpsertMetric(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to upsert weekly metric: %w", err)
	}
	a.log.Debug().Str("user_id", userID).Time("week_start", week.Start).
		Float64("expenses", m.Expenses).Int("transactions", m.TransactionCount).
		Msg("weekly metric materialized")
	return m, nil
}

func (a *Aggregator) fillBudgetStatus(ctx context.Context, m *domain.WeeklyMetric) error {
	budgets, err := a.db.Budgets().ListActive(ctx, m.UserID)
	if err != nil {
		return fmt.Errorf("failed to load budgets for week: %w", err)
	}
	spentByCategory := map[string]float64{}
	for _, stat := range m.CategoryBreakdown {
		spentByCategory[stat.CategoryID] = stat.Total
	}
	for _, b := range budgets {
		limit := weeklyLimit(b)
		if limit <= 0 {
			continue
		}
		spent := spentByCategory[b.CategoryID]
		m.BudgetStatus = append(m.BudgetStatus, domain.BudgetWeekStatus{
			BudgetID:    b.ID,
			CategoryID:  b.CategoryID,
			Limit:       calc.RoundCents(limit),
			Spent:       spent,
			Utilization: calc.RoundCents(spent / limit * 100),
			OverBudget:  spent > limit,
		})
	}
	return nil
}

// weeklyLimit prorates a budget cap to a one-week equivalent.
func weeklyLimit(b domain.Budget) float64 {
	switch b.Period {
	case domain.PeriodWeekly:
		return b.Amount
	case domain.PeriodMonthly:
		return b.Amount * 12 / 52
	case domain.PeriodYearly:
		return b.Amount / 52
	default:
		return b.Amount
	}
}

// sortBreakdown orders categories biggest spender first.
func sortBreakdown(stats []domain.CategoryWeekStat) {
	sort.Slice(stats, func(i, j int) bool { return stats[i].Total > stats[j].Total })
}
