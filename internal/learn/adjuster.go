package learn

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/persistence"
)

// Recalibration thresholds. Trend corrections only kick in once a type
// or category has enough history to be meaningful.
const (
	minTypeInteractions     = 5
	minCategoryInteractions = 3
	highAcceptance          = 0.7
	lowAcceptance           = 0.3
	highAcceptanceBoost     = 0.2
	lowAcceptancePenalty    = 0.3
	volatilityThreshold     = 0.5
	volatilityDamping       = 0.8
	inactivityWindow        = 14 * 24 * time.Hour
	historyWindow           = 90 * 24 * time.Hour
	recencyWindow           = 30 * 24 * time.Hour
)

// WeightAdjuster periodically recalibrates preference weights from the
// accumulated feedback history.
type WeightAdjuster struct {
	db  persistence.Store
	log zerolog.Logger
	now func() time.Time
}

// NewWeightAdjuster wires an adjuster over the persistence layer.
func NewWeightAdjuster(db persistence.Store, log zerolog.Logger) *WeightAdjuster {
	return &WeightAdjuster{db: db, log: log, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (a *WeightAdjuster) WithClock(now func() time.Time) *WeightAdjuster {
	a.now = now
	return a
}

// Run drains the recalibration queue until the context is cancelled.
func (a *WeightAdjuster) Run(ctx context.Context, queue <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case userID, ok := <-queue:
			if !ok {
				return
			}
			if err := a.Recalibrate(ctx, userID); err != nil {
				a.log.Error().Err(err).Str("user_id", userID).Msg("weight recalibration failed")
			}
		}
	}
}

// Recalibrate recomputes trend corrections for one user: sustained
// acceptance moves type weights, flip-flopping dampens them, and the
// surfacing frequency follows overall engagement.
func (a *WeightAdjuster) Recalibrate(ctx context.Context, userID string) error {
	now := a.now()
	return a.db.WithTx(ctx, func(ctx context.Context, tx persistence.Store) error {
		prefs, err := tx.Preferences().GetOrCreate(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load preferences: %w", err)
		}
		if !prefs.Metadata.LearningEnabled {
			return nil
		}

		history, err := tx.Feedback().ListByUser(ctx, userID, now.Add(-historyWindow))
		if err != nil {
			return fmt.Errorf("failed to load feedback history: %w", err)
		}

		byType := make(map[domain.SuggestionType][]domain.SuggestionFeedback)
		for _, fb := range history {
			byType[fb.Type] = append(byType[fb.Type], fb)
		}

		for typ, fbs := range byType {
			if len(fbs) < minTypeInteractions {
				continue
			}
			tp := prefs.TypePref(typ)
			rate := acceptanceRate(fbs)
			recency := recencyFactor(fbs, now)
			switch {
			case rate > highAcceptance:
				tp.Weight = domain.ClampWeight(tp.Weight + highAcceptanceBoost*recency)
			case rate < lowAcceptance:
				tp.Weight = domain.ClampWeight(tp.Weight - lowAcceptancePenalty*recency)
			}
			if volatility(fbs) > volatilityThreshold {
				tp.Weight = domain.ClampWeight(tp.Weight * volatilityDamping)
			}
		}

		for categoryID, cp := range prefs.CategoryPreferences {
			n := cp.AcceptedCount + cp.RejectedCount
			if n < minCategoryInteractions {
				continue
			}
			rate := float64(cp.AcceptedCount) / float64(n)
			switch {
			case rate > highAcceptance:
				cp.Weight = domain.ClampWeight(cp.Weight + highAcceptanceBoost)
			case rate < lowAcceptance:
				cp.Weight = domain.ClampWeight(cp.Weight - lowAcceptancePenalty)
			}
			prefs.CategoryPreferences[categoryID] = cp
		}

		a.adjustFrequency(prefs, history, now)

		prefs.Metadata.Version++
		prefs.UpdatedAt = now
		if err := tx.Preferences().Save(ctx, prefs); err != nil {
			return fmt.Errorf("failed to save preferences: %w", err)
		}

		a.log.Debug().
			Str("user_id", userID).
			Int("feedback_count", len(history)).
			Str("frequency", string(prefs.Global.SuggestionFrequency)).
			Msg("weights recalibrated")
		return nil
	})
}

// adjustFrequency walks the surfacing frequency ladder from overall
// engagement. Users explicitly pinning a frequency are left alone
// except for the inactivity drop.
func (a *WeightAdjuster) adjustFrequency(prefs *domain.UserPreference, history []domain.SuggestionFeedback, now time.Time) {
	if prefs.Global.LastActive != nil && now.Sub(*prefs.Global.LastActive) > inactivityWindow {
		prefs.Global.SuggestionFrequency = domain.FrequencyLow
		return
	}
	if prefs.Global.SuggestionFrequency != domain.FrequencyAdaptive {
		return
	}
	if len(history) < minTypeInteractions {
		return
	}
	switch rate := acceptanceRate(history); {
	case rate > 0.6:
		prefs.Global.SuggestionFrequency = domain.FrequencyHigh
	case rate > 0.3:
		prefs.Global.SuggestionFrequency = domain.FrequencyMedium
	default:
		prefs.Global.SuggestionFrequency = domain.FrequencyLow
	}
}

func acceptanceRate(fbs []domain.SuggestionFeedback) float64 {
	var accepted, decided int
	for _, fb := range fbs {
		switch fb.Decision {
		case domain.DecisionAccepted, domain.DecisionModified:
			accepted++
			decided++
		case domain.DecisionRejected:
			decided++
		}
	}
	if decided == 0 {
		return 0
	}
	return float64(accepted) / float64(decided)
}

// recencyFactor is the share of interactions inside the recent window,
// floored so old-but-consistent history still moves weights a little.
func recencyFactor(fbs []domain.SuggestionFeedback, now time.Time) float64 {
	var recent int
	for _, fb := range fbs {
		if now.Sub(fb.CreatedAt) <= recencyWindow {
			recent++
		}
	}
	f := float64(recent) / float64(len(fbs))
	if f < 0.25 {
		return 0.25
	}
	return f
}

// volatility is the fraction of consecutive decisions that flipped
// between acceptance and rejection.
func volatility(fbs []domain.SuggestionFeedback) float64 {
	if len(fbs) < 2 {
		return 0
	}
	var flips int
	for i := 1; i < len(fbs); i++ {
		if positive(fbs[i-1].Decision) != positive(fbs[i].Decision) {
			flips++
		}
	}
	return float64(flips) / float64(len(fbs)-1)
}

func positive(d domain.FeedbackDecision) bool {
	return d == domain.DecisionAccepted || d == domain.DecisionModified
}
