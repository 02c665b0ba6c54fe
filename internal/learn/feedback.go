// Package learn turns user feedback into preference state: per-type and
// per-category weights, response timing, surfacing frequency and the
// rule set that gates which suggestions are shown.
package learn

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/finpulse/finpulse/internal/audit"
	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/errs"
	"github.com/finpulse/finpulse/internal/persistence"
)

// Weight deltas applied immediately on a decision. The adjuster applies
// slower trend corrections on top.
const (
	acceptDelta = 0.10
	rejectDelta = -0.15
	ignoreDelta = -0.05
	modifyDelta = 0.05
)

// FeedbackProcessor records decisions and applies the immediate
// preference updates in one transaction.
type FeedbackProcessor struct {
	db       persistence.Store
	trail    *audit.Trail
	log      zerolog.Logger
	now      func() time.Time
	adjustCh chan string
}

// NewFeedbackProcessor wires a processor; recalibration requests are
// queued on a buffered channel drained by the WeightAdjuster.
func NewFeedbackProcessor(db persistence.Store, trail *audit.Trail, log zerolog.Logger) *FeedbackProcessor {
	return &FeedbackProcessor{
		db:       db,
		trail:    trail,
		log:      log,
		now:      time.Now,
		adjustCh: make(chan string, 64),
	}
}

// WithClock overrides the time source, for tests.
func (p *FeedbackProcessor) WithClock(now func() time.Time) *FeedbackProcessor {
	p.now = now
	return p
}

// AdjustQueue exposes the channel of user IDs awaiting recalibration.
func (p *FeedbackProcessor) AdjustQueue() <-chan string { return p.adjustCh }

// FeedbackInput is one user decision about one suggestion.
type FeedbackInput struct {
	UserID        string
	SuggestionID  string
	Decision      domain.FeedbackDecision
	Reasons       domain.FeedbackReasons
	Modifications *domain.Modifications
	ViewedMs      int64
}

// Process validates and records feedback, updates the preference sheet
// and appends the audit event, all inside one transaction. After commit
// the user is queued for background weight recalibration.
func (p *FeedbackProcessor) Process(ctx context.Context, in FeedbackInput) (*domain.SuggestionFeedback, error) {
	if err := validateFeedback(in); err != nil {
		return nil, err
	}

	var fb *domain.SuggestionFeedback
	err := p.db.WithTx(ctx, func(ctx context.Context, tx persistence.Store) error {
		s, err := tx.Suggestions().GetByID(ctx, in.UserID, in.SuggestionID)
		if err != nil {
			return err
		}

		if existing, err := tx.Feedback().GetBySuggestion(ctx, in.UserID, in.SuggestionID); err != nil {
			if !errs.Is(err, errs.KindNotFound) {
				return fmt.Errorf("failed to check for existing feedback: %w", err)
			}
		} else if existing != nil {
			return errs.Validationf("feedback for suggestion %s already recorded", in.SuggestionID)
		}

		now := p.now()
		fb = &domain.SuggestionFeedback{
			ID:           uuid.NewString(),
			UserID:       in.UserID,
			SuggestionID: in.SuggestionID,
			Type:         s.Type,
			Decision:     in.Decision,
			Context: domain.FeedbackContext{
				SuggestedAt:      s.CreatedAt,
				RespondedAt:      now,
				ResponseTimeMs:   now.Sub(s.CreatedAt).Milliseconds(),
				ViewedDurationMs: in.ViewedMs,
			},
			Reasons:       in.Reasons,
			Modifications: in.Modifications,
			Outcome: domain.FeedbackOutcome{
				Applied:    s.Status == domain.StatusApplied,
				Successful: s.Status == domain.StatusApplied,
				RolledBack: s.Status == domain.StatusRolledBack,
			},
			CreatedAt: now,
		}
		if err := tx.Feedback().Insert(ctx, fb); err != nil {
			return err
		}

		prefs, err := tx.Preferences().GetOrCreate(ctx, in.UserID)
		if err != nil {
			return fmt.Errorf("failed to load preferences: %w", err)
		}
		if prefs.Metadata.LearningEnabled {
			p.applyDecision(prefs, s, in, now)
			prefs.UpdatedAt = now
			if err := tx.Preferences().Save(ctx, prefs); err != nil {
				return fmt.Errorf("failed to save preferences: %w", err)
			}
		}

		return p.trail.LogActionIn(ctx, tx, audit.Entry{
			UserID:       in.UserID,
			SuggestionID: in.SuggestionID,
			Action:       domain.ActionUserFeedback,
			Actor:        domain.Actor{Type: domain.ActorUser, ID: in.UserID},
			NewState: map[string]any{
				"decision": string(in.Decision),
				"reason":   string(in.Reasons.Primary),
			},
			Outcome: domain.AuditOutcome{Success: true},
		})
	})
	if err != nil {
		return nil, err
	}

	select {
	case p.adjustCh <- in.UserID:
	default:
		p.log.Warn().Str("user_id", in.UserID).Msg("adjustment queue full, recalibration skipped")
	}

	p.log.Info().
		Str("user_id", in.UserID).
		Str("suggestion_id", in.SuggestionID).
		Str("decision", string(in.Decision)).
		Msg("feedback recorded")
	return fb, nil
}

func validateFeedback(in FeedbackInput) error {
	if in.UserID == "" || in.SuggestionID == "" {
		return errs.Validation("user id and suggestion id are required", nil)
	}
	switch in.Decision {
	case domain.DecisionAccepted, domain.DecisionRejected, domain.DecisionIgnored, domain.DecisionModified:
	default:
		return errs.Validationf("unknown feedback decision %q", in.Decision)
	}
	if in.Decision == domain.DecisionModified && in.Modifications == nil {
		return errs.Validation("modified decisions must carry the modifications", nil)
	}
	return nil
}

// applyDecision applies the immediate weight and counter updates.
func (p *FeedbackProcessor) applyDecision(prefs *domain.UserPreference, s *domain.PendingSuggestion, in FeedbackInput, now time.Time) {
	delta := decisionDelta(in.Decision)

	tp := prefs.TypePref(s.Type)
	tp.Weight = domain.ClampWeight(tp.Weight + delta)
	tp.LastAction = &now
	switch in.Decision {
	case domain.DecisionAccepted, domain.DecisionModified:
		tp.AcceptedCount++
	case domain.DecisionRejected:
		tp.RejectedCount++
	}

	if categoryID := s.ProposedChanges.CategoryID(); categoryID != "" {
		cp := prefs.CategoryPref(categoryID)
		cp.Weight = domain.ClampWeight(cp.Weight + delta)
		switch in.Decision {
		case domain.DecisionAccepted, domain.DecisionModified:
			cp.AcceptedCount++
		case domain.DecisionRejected:
			cp.RejectedCount++
		}
		cp.Feedback = append(cp.Feedback, in.Decision)
		if len(cp.Feedback) > 20 {
			cp.Feedback = cp.Feedback[len(cp.Feedback)-20:]
		}
	}

	switch in.Decision {
	case domain.DecisionAccepted, domain.DecisionModified:
		prefs.Global.TotalAccepted++
	case domain.DecisionRejected:
		prefs.Global.TotalRejected++
	}
	if decided := prefs.Global.TotalAccepted + prefs.Global.TotalRejected; decided > 0 {
		prefs.Global.AcceptanceRate = float64(prefs.Global.TotalAccepted) / float64(decided)
	}
	prefs.Global.LastActive = &now

	if prefs.TimePreferences.ResponseTimeByHour == nil {
		prefs.TimePreferences.ResponseTimeByHour = make(map[int]int)
	}
	prefs.TimePreferences.ResponseTimeByHour[now.Hour()]++

	// Amount complaints move the surfacing bar.
	switch in.Reasons.Primary {
	case domain.ReasonAmountTooHigh:
		prefs.ImpactPreferences.MinSavingsAmount *= 1.25
	case domain.ReasonAmountTooLow:
		prefs.ImpactPreferences.MinSavingsAmount *= 0.9
	}
}

func decisionDelta(d domain.FeedbackDecision) float64 {
	switch d {
	case domain.DecisionAccepted:
		return acceptDelta
	case domain.DecisionRejected:
		return rejectDelta
	case domain.DecisionIgnored:
		return ignoreDelta
	case domain.DecisionModified:
		return modifyDelta
	}
	return 0
}
