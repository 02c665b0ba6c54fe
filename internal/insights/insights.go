// Package insights turns a user's active signals into LLM-synthesized
// insights on demand. Unlike the weekly summary there is no fallback:
// a model failure surfaces to the caller so the client can retry.
package insights

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
)

const maxInputSignals = 10

// Generator produces structured insights from active signals.
type Generator struct {
	db    persistence.Store
	model llm.Client
	log   zerolog.Logger
	now   func() time.Time
}

func NewGenerator(db persistence.Store, model llm.Client, log zerolog.Logger) *Generator {
	return &Generator{
		db:    db,
		model: model,
		log:   log.With().Str("component", "insights").Logger(),
		now:   time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate asks the model for insights grounded in the user's active
// signals. Signals referenced by a returned insight are marked
// actioned-pending by the caller, not here.
func (g *Generator) Generate(ctx context.Context, userID string) ([]domain.Insight, error) {
	if g.model == nil {
		return nil, errs.External("llm", fmt.Errorf("no model configured"))
	}

	signals, err := g.db.Signals().List(ctx, userID, persistence.SignalQuery{Limit: maxInputSignals})
	if err != nil {
		return nil, fmt.Errorf("failed to load signals for insights: %w", err)
	}
	if len(signals) == 0 {
		return []domain.Insight{}, nil
	}

	prompt := llm.BuildInsightsPrompt(signals)
	var payload llm.InsightsPayload
	if err := g.model.GenerateStructured(ctx, prompt, &payload); err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(signals))
	for _, s := range signals {
		known[s.ID] = true
	}
	if err := payload.Validate(known); err != nil {
		return nil, err
	}

	now := g.now()
	out := make([]domain.Insight, 0, len(payload.Insights))
	for _, it := range payload.Insights {
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
			CreatedAt:   now,
		})
	}
	g.log.Info().Str("user_id", userID).Int("insights", len(out)).Msg("insights generated")
	return out, nil
}
