// Package suggest manages the suggestion lifecycle: creation with
// dedup and conflict detection, approval gates, typed application with
// snapshot capture, rollback and expiry. Every transition runs inside a
// storage transaction and appends an audit event.
package suggest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/finpulse/finpulse/internal/audit"
	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/errs"
	"github.com/finpulse/finpulse/internal/persistence"
)

// Priority labels for suggestion ordering.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// Engine drives the suggestion state machine.
type Engine struct {
	db    persistence.Store
	trail *audit.Trail
	log   zerolog.Logger
	now   func() time.Time
}

// NewEngine wires a suggestion engine over the persistence layer.
func NewEngine(db persistence.Store, trail *audit.Trail, log zerolog.Logger) *Engine {
	return &Engine{db: db, trail: trail, log: log, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	e.trail.WithClock(now)
	return e
}

// CreateInput describes a new proposal.
type CreateInput struct {
	UserID      string
	InsightID   string
	Type        domain.SuggestionType
	Title       string
	Description string
	Changes     domain.ProposedChanges
	Impact      domain.EstimatedImpact
	TTL         time.Duration
}

// Create inserts a suggestion, or refreshes the live one already
// targeting the same entity. A proposal overlapping another live
// suggestion's category lands in conflict status instead of pending.
func (e *Engine) Create(ctx context.Context, in CreateInput) (*domain.PendingSuggestion, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}

	var result *domain.PendingSuggestion
	err := e.db.WithTx(ctx, func(ctx context.Context, tx persistence.Store) error {
		existing, err := tx.Suggestions().FindActiveByTarget(ctx, in.UserID, in.Type, in.Changes.TargetID())
		if err != nil {
			return fmt.Errorf("failed to check for duplicate suggestion: %w", err)
		}
		if existing != nil {
			result, err = e.refresh(ctx, tx, existing, in)
			return err
		}
		result, err = e.insert(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Str("user_id", in.UserID).
		Str("suggestion_id", result.ID).
		Str("type", string(in.Type)).
		Str("status", string(result.Status)).
		Int("version", result.Metadata.Version).
		Msg("suggestion created")

	return result, nil
}

func validateCreate(in CreateInput) error {
	if in.UserID == "" {
		return errs.Validation("user id is required", nil)
	}
	if in.Title == "" {
		return errs.Validation("title is required", nil)
	}
	if !in.Changes.MatchesType(in.Type) {
		return errs.Validationf("proposed changes do not match suggestion type %q", in.Type)
	}
	if in.Changes.TargetID() == "" {
		return errs.Validation("proposed changes have no target", nil)
	}
	return nil
}

// refresh updates a live duplicate in place instead of stacking a
// second suggestion against the same target.
func (e *Engine) refresh(ctx context.Context, tx persistence.Store, s *domain.PendingSuggestion, in CreateInput) (*domain.PendingSuggestion, error) {
	prev := snapshotForAudit(s)

	s.Title = in.Title
	s.Description = in.Description
	s.ProposedChanges = in.Changes
	s.EstimatedImpact = in.Impact
	s.Metadata.Version++
	s.Metadata.Priority = priorityFor(in.Impact)
	s.Metadata.RiskLevel = riskFor(in.Type, in.Impact)
	s.Metadata.ExpiresAt = e.expiry(in.TTL)
	s.UpdatedAt = e.now()

	if err := tx.Suggestions().Update(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to refresh suggestion: %w", err)
	}
	if err := e.trail.LogActionIn(ctx, tx, audit.Entry{
		UserID:        s.UserID,
		SuggestionID:  s.ID,
		Action:        domain.ActionUpdated,
		Actor:         domain.Actor{Type: domain.ActorSystem},
		PreviousState: prev,
		NewState:      snapshotForAudit(s),
		Outcome:       domain.AuditOutcome{Success: true},
	}); err != nil {
		return nil, err
	}
	return s, nil
}

func (e *Engine) insert(ctx context.Context, tx persistence.Store, in CreateInput) (*domain.PendingSuggestion, error) {
	now := e.now()
	s := &domain.PendingSuggestion{
		ID:              uuid.NewString(),
		UserID:          in.UserID,
		InsightID:       in.InsightID,
		Type:            in.Type,
		Title:           in.Title,
		Description:     in.Description,
		ProposedChanges: in.Changes,
		EstimatedImpact: in.Impact,
		Status:          domain.StatusPending,
		Metadata: domain.SuggestionMetadata{
			Priority:  priorityFor(in.Impact),
			RiskLevel: riskFor(in.Type, in.Impact),
			ExpiresAt: e.expiry(in.TTL),
			Version:   1,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	prereqs, err := e.checkPrerequisites(ctx, tx, s)
	if err != nil {
		return nil, err
	}
	s.Prerequisites = prereqs

	conflicts, err := e.detectConflicts(ctx, tx, s)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		s.Status = domain.StatusConflict
		s.Conflicts = conflicts
	}

	if err := tx.Suggestions().Insert(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to insert suggestion: %w", err)
	}

	for _, c := range conflicts {
		if err := tx.Suggestions().InsertConflict(ctx, s.UserID, s.ID, c.WithSuggestionID, c.Type); err != nil {
			return nil, fmt.Errorf("failed to record conflict: %w", err)
		}
		if err := e.trail.LogActionIn(ctx, tx, audit.Entry{
			UserID:       s.UserID,
			SuggestionID: s.ID,
			Action:       domain.ActionConflictDetected,
			Actor:        domain.Actor{Type: domain.ActorSystem},
			NewState:     map[string]any{"conflicts_with": c.WithSuggestionID, "conflict_type": c.Type},
			Outcome:      domain.AuditOutcome{Success: true},
		}); err != nil {
			return nil, err
		}
	}

	if err := e.trail.LogActionIn(ctx, tx, audit.Entry{
		UserID:       s.UserID,
		SuggestionID: s.ID,
		Action:       domain.ActionCreated,
		Actor:        domain.Actor{Type: domain.ActorSystem},
		NewState:     snapshotForAudit(s),
		Outcome:      domain.AuditOutcome{Success: true},
	}); err != nil {
		return nil, err
	}
	return s, nil
}

func (e *Engine) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		ttl = domain.DefaultSuggestionTTL
	}
	return e.now().Add(ttl)
}

// detectConflicts finds live suggestions whose proposed changes overlap
// the same category.
func (e *Engine) detectConflicts(ctx context.Context, tx persistence.Store, s *domain.PendingSuggestion) ([]domain.SuggestionConflict, error) {
	categoryID := s.ProposedChanges.CategoryID()
	if categoryID == "" {
		return nil, nil
	}
	others, err := tx.Suggestions().ListActiveByCategory(ctx, s.UserID, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to scan for conflicting suggestions: %w", err)
	}
	var conflicts []domain.SuggestionConflict
	for _, o := range others {
		if o.ID == s.ID {
			continue
		}
		conflicts = append(conflicts, domain.SuggestionConflict{
			WithSuggestionID: o.ID,
			Type:             "category_overlap",
		})
	}
	return conflicts, nil
}

// ApproveInput identifies who approved a suggestion and how.
type ApproveInput struct {
	UserID       string
	SuggestionID string
	By           string
	Method       string // explicit|auto
	IP           string
}

// Approve moves a pending suggestion to approved, enforcing
// prerequisites, expiry, the per-type cooldown and auto-approval
// eligibility.
func (e *Engine) Approve(ctx context.Context, in ApproveInput) (*domain.PendingSuggestion, error) {
	var result *domain.PendingSuggestion
	err := e.db.WithTx(ctx, func(ctx context.Context, tx persistence.Store) error {
		s, err := tx.Suggestions().GetByID(ctx, in.UserID, in.SuggestionID)
		if err != nil {
			return err
		}
		if s.IsExpired(e.now()) {
			return errs.StateMachine("suggestion %s expired at %s", s.ID, s.Metadata.ExpiresAt.Format(time.RFC3339))
		}
		if !s.PrerequisitesSatisfied() {
			return errs.StateMachine("suggestion %s has unsatisfied prerequisites", s.ID)
		}
		if err := e.checkCooldown(ctx, tx, s); err != nil {
			return err
		}
		if in.Method == "auto" && !AutoApprovable(s) {
			return errs.Permission("suggestion requires explicit confirmation")
		}

		s.Approval = &domain.ApprovalRecord{
			At:     e.now(),
			By:     in.By,
			Method: in.Method,
			IP:     in.IP,
		}
		if err := e.transition(ctx, tx, s, domain.StatusApproved, domain.ActionApproved, actorFor(in.By, in.IP), domain.AuditOutcome{Success: true}); err != nil {
			return err
		}
		result = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AutoApprovable reports whether a suggestion may skip explicit
// confirmation: only low-risk, small-impact, high-confidence proposals
// qualify.
func AutoApprovable(s *domain.PendingSuggestion) bool {
	return s.Metadata.RiskLevel == domain.RiskLow &&
		math.Abs(s.EstimatedImpact.Amount) < 50 &&
		s.EstimatedImpact.Confidence >= 80
}

// checkCooldown rejects approval when a suggestion of the same type
// reached a terminal state within the type's cooldown window.
func (e *Engine) checkCooldown(ctx context.Context, tx persistence.Store, s *domain.PendingSuggestion) error {
	prefs, err := tx.Preferences().GetOrCreate(ctx, s.UserID)
	if err != nil {
		return fmt.Errorf("failed to load preferences: %w", err)
	}
	days := prefs.TypePref(s.Type).CooldownDays
	if days <= 0 {
		return nil
	}
	last, err := tx.Suggestions().LastTerminalOfType(ctx, s.UserID, s.Type)
	if err != nil {
		return fmt.Errorf("failed to check cooldown: %w", err)
	}
	if last == nil {
		return nil
	}
	resetAt := last.AddDate(0, 0, days)
	if e.now().Before(resetAt) {
		return &errs.Error{
			Kind:    errs.KindStateMachine,
			Message: fmt.Sprintf("suggestion type %s is cooling down until %s", s.Type, resetAt.Format(time.RFC3339)),
			ResetAt: resetAt,
		}
	}
	return nil
}

// Reject moves a pending suggestion to rejected.
func (e *Engine) Reject(ctx context.Context, userID, suggestionID, by, reason string) error {
	return e.terminal(ctx, userID, suggestionID, by, reason, domain.StatusRejected, domain.ActionRejected)
}

// Cancel withdraws a pending suggestion without recording a verdict.
func (e *Engine) Cancel(ctx context.Context, userID, suggestionID, by, reason string) error {
	return e.terminal(ctx, userID, suggestionID, by, reason, domain.StatusCancelled, domain.ActionCancelled)
}

func (e *Engine) terminal(ctx context.Context, userID, suggestionID, by, reason string, to domain.SuggestionStatus, action domain.AuditAction) error {
	return e.db.WithTx(ctx, func(ctx context.Context, tx persistence.Store) error {
		s, err := tx.Suggestions().GetByID(ctx, userID, suggestionID)
		if err != nil {
			return err
		}
		if reason != "" {
			s.Review.UserFeedback = reason
		}
		return e.transition(ctx, tx, s, to, action, actorFor(by, ""), domain.AuditOutcome{Success: true})
	})
}

// ResolveConflict returns a conflicted suggestion to pending once its
// rival has been decided.
func (e *Engine) ResolveConflict(ctx context.Context, userID, suggestionID, resolution string) error {
	return e.db.WithTx(ctx, func(ctx context.Context, tx persistence.Store) error {
		s, err := tx.Suggestions().GetByID(ctx, userID, suggestionID)
		if err != nil {
			return err
		}
		for i := range s.Conflicts {
			if s.Conflicts[i].Resolution == "" {
				s.Conflicts[i].Resolution = resolution
			}
		}
		return e.transition(ctx, tx, s, domain.StatusPending, domain.ActionUpdated, domain.Actor{Type: domain.ActorSystem}, domain.AuditOutcome{Success: true})
	})
}

// ExpireDue sweeps pending and approved suggestions past their expiry.
func (e *Engine) ExpireDue(ctx context.Context, limit int) (int, error) {
	due, err := e.db.Suggestions().ListExpirable(ctx, e.now(), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list expirable suggestions: %w", err)
	}

	var expired int
	for i := range due {
		s := due[i]
		err := e.db.WithTx(ctx, func(ctx context.Context, tx persistence.Store) error {
			return e.transition(ctx, tx, &s, domain.StatusExpired, domain.ActionExpired, domain.Actor{Type: domain.ActorScheduler}, domain.AuditOutcome{Success: true})
		})
		if err != nil {
			// another writer got there first; skip and continue the sweep
			if errs.Is(err, errs.KindConcurrency) || errs.Is(err, errs.KindStateMachine) {
				continue
			}
			return expired, err
		}
		expired++
	}
	if expired > 0 {
		e.log.Info().Int("expired", expired).Msg("suggestions expired")
	}
	return expired, nil
}

// Get returns one suggestion and counts the view.
func (e *Engine) Get(ctx context.Context, userID, suggestionID string) (*domain.PendingSuggestion, error) {
	var result *domain.PendingSuggestion
	err := e.db.WithTx(ctx, func(ctx context.Context, tx persistence.Store) error {
		s, err := tx.Suggestions().GetByID(ctx, userID, suggestionID)
		if err != nil {
			return err
		}
		now := e.now()
		if s.Review.ViewedAt == nil {
			s.Review.ViewedAt = &now
		}
		s.Review.ViewedCount++
		if err := tx.Suggestions().Update(ctx, s); err != nil {
			return fmt.Errorf("failed to record view: %w", err)
		}
		result = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// List returns a user's suggestions filtered by status.
func (e *Engine) List(ctx context.Context, userID string, statuses []domain.SuggestionStatus, limit int) ([]domain.PendingSuggestion, error) {
	return e.db.Suggestions().ListByUser(ctx, userID, statuses, limit)
}

// transition applies one legal state-machine move under optimistic
// concurrency and appends the audit event.
func (e *Engine) transition(ctx context.Context, tx persistence.Store, s *domain.PendingSuggestion, to domain.SuggestionStatus, action domain.AuditAction, actor domain.Actor, outcome domain.AuditOutcome) error {
	from := s.Status
	if !domain.CanTransition(from, to) {
		return errs.StateMachine("cannot transition suggestion from %s to %s", from, to)
	}

	s.Status = to
	s.UpdatedAt = e.now()
	if err := tx.Suggestions().UpdateIfStatus(ctx, s, from); err != nil {
		s.Status = from
		return err
	}

	if err := e.trail.LogActionIn(ctx, tx, audit.Entry{
		UserID:        s.UserID,
		SuggestionID:  s.ID,
		Action:        action,
		Actor:         actor,
		PreviousState: map[string]any{"status": string(from)},
		NewState:      map[string]any{"status": string(to)},
		Outcome:       outcome,
	}); err != nil {
		return err
	}

	e.log.Info().
		Str("user_id", s.UserID).
		Str("suggestion_id", s.ID).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("suggestion transitioned")
	return nil
}

func actorFor(by, ip string) domain.Actor {
	if by == "" || by == "system" {
		return domain.Actor{Type: domain.ActorSystem}
	}
	return domain.Actor{Type: domain.ActorUser, ID: by, IP: ip}
}

// snapshotForAudit reduces a suggestion to the fields worth diffing.
func snapshotForAudit(s *domain.PendingSuggestion) map[string]any {
	return map[string]any{
		"status":      string(s.Status),
		"title":       s.Title,
		"description": s.Description,
		"changes":     s.ProposedChanges,
		"impact":      s.EstimatedImpact,
		"priority":    s.Metadata.Priority,
		"risk_level":  string(s.Metadata.RiskLevel),
		"version":     s.Metadata.Version,
	}
}

// priorityFor ranks a suggestion: each tier requires both a large
// enough impact and enough confidence in it.
func priorityFor(impact domain.EstimatedImpact) string {
	amt := math.Abs(impact.Amount)
	conf := impact.Confidence
	switch {
	case amt > 1000 && conf > 80:
		return PriorityCritical
	case amt > 500 && conf > 70:
		return PriorityHigh
	case amt > 100 && conf > 60:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// baseRisk maps each suggestion type to its inherent disruption level.
var baseRisk = map[domain.SuggestionType]domain.RiskLevel{
	domain.SuggestBudgetAdjustment:          domain.RiskMedium,
	domain.SuggestSavingsIncrease:           domain.RiskMedium,
	domain.SuggestSubscriptionCancellation:  domain.RiskHigh,
	domain.SuggestCategoryCreation:          domain.RiskLow,
	domain.SuggestBudgetCreation:            domain.RiskLow,
	domain.SuggestGoalAdjustment:            domain.RiskMedium,
	domain.SuggestTransactionCategorization: domain.RiskLow,
}

// riskFor escalates the base risk one level for large impacts.
func riskFor(typ domain.SuggestionType, impact domain.EstimatedImpact) domain.RiskLevel {
	risk, ok := baseRisk[typ]
	if !ok {
		risk = domain.RiskMedium
	}
	if math.Abs(impact.Amount) >= 500 {
		risk = escalate(risk)
	}
	return risk
}

func escalate(r domain.RiskLevel) domain.RiskLevel {
	switch r {
	case domain.RiskLow:
		return domain.RiskMedium
	case domain.RiskMedium:
		return domain.RiskHigh
	default:
		return domain.RiskCritical
	}
}
