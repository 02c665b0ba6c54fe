package suggest

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/errs"
	"github.com/finpulse/finpulse/internal/persistence"
)

// ApplyInput identifies the suggestion to apply and who asked.
type ApplyInput struct {
	UserID       string
	SuggestionID string
	By           string
	DryRun       bool
}

// Apply executes an approved suggestion's typed transformation. The
// pre-apply state of the affected entity is snapshotted for rollback,
// and every step lands in the execution record. A dry run walks the
// same steps without writing anything or changing status.
func (e *Engine) Apply(ctx context.Context, in ApplyInput) (*domain.PendingSuggestion, error) {
	if in.DryRun {
		return e.simulate(ctx, in)
	}

	var result *domain.PendingSuggestion
	err := e.db.WithTx(ctx, func(ctx context.Context, tx persistence.Store) error {
		s, err := tx.Suggestions().GetByID(ctx, in.UserID, in.SuggestionID)
		if err != nil {
			return err
		}
		if s.Status != domain.StatusApproved {
			return errs.StateMachine("cannot apply suggestion in status %s", s.Status)
		}
		if s.IsExpired(e.now()) {
			return errs.StateMachine("suggestion %s expired before application", s.ID)
		}

		snapshot, err := e.captureSnapshot(ctx, tx, s)
		if err != nil {
			return err
		}
		s.CurrentState = snapshot

		steps, err := e.applyChanges(ctx, tx, s, false)
		s.Execution = &domain.ExecutionRecord{
			At:      e.now(),
			By:      in.By,
			Results: steps,
		}
		if err != nil {
			s.Execution.Error = err.Error()
			return err
		}

		if err := e.transition(ctx, tx, s, domain.StatusApplied, domain.ActionApplied, actorFor(in.By, ""), domain.AuditOutcome{Success: true}); err != nil {
			return err
		}
		result = s
		return nil
	})
	if err != nil {
		e.markFailed(ctx, in, err)
		return nil, err
	}
	return result, nil
}

// markFailed records an application failure after the apply transaction
// rolled back. Best effort: the original error is what the caller sees.
func (e *Engine) markFailed(ctx context.Context, in ApplyInput, applyErr error) {
	if errs.Is(applyErr, errs.KindStateMachine) || errs.Is(applyErr, errs.KindConcurrency) || errs.Is(applyErr, errs.KindNotFound) {
		return
	}
	err := e.db.WithTx(ctx, func(ctx context.Context, tx persistence.Store) error {
		s, err := tx.Suggestions().GetByID(ctx, in.UserID, in.SuggestionID)
		if err != nil {
			return err
		}
		if s.Status != domain.StatusApproved {
			return nil
		}
		s.Execution = &domain.ExecutionRecord{
			At:    e.now(),
			By:    in.By,
			Error: applyErr.Error(),
		}
		return e.transition(ctx, tx, s, domain.StatusFailed, domain.ActionFailed, actorFor(in.By, ""),
			domain.AuditOutcome{Success: false, Error: applyErr.Error()})
	})
	if err != nil {
		e.log.Error().Err(err).Str("suggestion_id", in.SuggestionID).Msg("failed to record application failure")
	}
}

// simulate runs the applier in read-only mode and returns a copy of the
// suggestion carrying the would-be execution record.
func (e *Engine) simulate(ctx context.Context, in ApplyInput) (*domain.PendingSuggestion, error) {
	s, err := e.db.Suggestions().GetByID(ctx, in.UserID, in.SuggestionID)
	if err != nil {
		return nil, err
	}
	if s.Status != domain.StatusApproved && s.Status != domain.StatusPending {
		return nil, errs.StateMachine("cannot simulate suggestion in status %s", s.Status)
	}

	snapshot, err := e.captureSnapshot(ctx, e.db, s)
	if err != nil {
		return nil, err
	}
	s.CurrentState = snapshot

	steps, err := e.applyChanges(ctx, e.db, s, true)
	s.Execution = &domain.ExecutionRecord{At: e.now(), By: in.By, Results: steps}
	if err != nil {
		s.Execution.Error = err.Error()
	}
	return s, nil
}

// RollbackInput identifies the applied suggestion to reverse.
type RollbackInput struct {
	UserID       string
	SuggestionID string
	By           string
	Reason       string
}

// Rollback reverses an applied suggestion from its pre-apply snapshot.
// The reversal is all or nothing: any step failing aborts the whole
// transaction and leaves the suggestion applied.
func (e *Engine) Rollback(ctx context.Context, in RollbackInput) (*domain.PendingSuggestion, error) {
	var result *domain.PendingSuggestion
	err := e.db.WithTx(ctx, func(ctx context.Context, tx persistence.Store) error {
		s, err := tx.Suggestions().GetByID(ctx, in.UserID, in.SuggestionID)
		if err != nil {
			return err
		}
		if s.Status != domain.StatusApplied {
			return errs.StateMachine("cannot roll back suggestion in status %s", s.Status)
		}

		if err := e.reverseChanges(ctx, tx, s); err != nil {
			return fmt.Errorf("failed to reverse suggestion %s: %w", s.ID, err)
		}

		s.Rollback = &domain.RollbackRecord{
			At:            e.now(),
			By:            in.By,
			Reason:        in.Reason,
			OriginalState: s.CurrentState,
			Success:       true,
		}
		if err := e.transition(ctx, tx, s, domain.StatusRolledBack, domain.ActionRolledBack, actorFor(in.By, ""), domain.AuditOutcome{Success: true}); err != nil {
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

// captureSnapshot loads the entity a suggestion is about to mutate.
// Creations snapshot nothing: there is no prior entity.
func (e *Engine) captureSnapshot(ctx context.Context, tx persistence.Store, s *domain.PendingSuggestion) (domain.StateSnapshot, error) {
	var snap domain.StateSnapshot
	p := s.ProposedChanges
	switch {
	case p.BudgetAdjustment != nil:
		b, err := tx.Budgets().GetByID(ctx, s.UserID, p.BudgetAdjustment.BudgetID)
		if err != nil {
			return snap, err
		}
		snap.Budget = b
	case p.SavingsIncrease != nil:
		g, err := tx.Goals().GetByID(ctx, s.UserID, p.SavingsIncrease.GoalID)
		if err != nil {
			return snap, err
		}
		snap.Goal = g
	case p.SubscriptionCancellation != nil:
		sub, err := tx.Subscriptions().GetByID(ctx, s.UserID, p.SubscriptionCancellation.SubscriptionID)
		if err != nil {
			return snap, err
		}
		snap.Subscription = sub
	case p.GoalAdjustment != nil:
		g, err := tx.Goals().GetByID(ctx, s.UserID, p.GoalAdjustment.GoalID)
		if err != nil {
			return snap, err
		}
		snap.Goal = g
	case p.TransactionCategorization != nil:
		txn, err := tx.Transactions().GetByID(ctx, s.UserID, p.TransactionCategorization.TransactionID)
		if err != nil {
			return snap, err
		}
		snap.Transaction = txn
	}
	return snap, nil
}

// applyChanges dispatches to the typed applier. With dry set, every
// write is skipped and only the validations and step plan run.
func (e *Engine) applyChanges(ctx context.Context, tx persistence.Store, s *domain.PendingSuggestion, dry bool) ([]domain.ExecutionStep, error) {
	p := s.ProposedChanges
	switch {
	case p.BudgetAdjustment != nil:
		return e.applyBudgetAdjustment(ctx, tx, s, p.BudgetAdjustment, dry)
	case p.SavingsIncrease != nil:
		return e.applySavingsIncrease(ctx, tx, s, p.SavingsIncrease, dry)
	case p.SubscriptionCancellation != nil:
		return e.applySubscriptionCancellation(ctx, tx, s, p.SubscriptionCancellation, dry)
	case p.CategoryCreation != nil:
		return e.applyCategoryCreation(ctx, tx, s, p.CategoryCreation, dry)
	case p.BudgetCreation != nil:
		return e.applyBudgetCreation(ctx, tx, s, p.BudgetCreation, dry)
	case p.GoalAdjustment != nil:
		return e.applyGoalAdjustment(ctx, tx, s, p.GoalAdjustment, dry)
	case p.TransactionCategorization != nil:
		return e.applyTransactionCategorization(ctx, tx, s, p.TransactionCategorization, dry)
	}
	return nil, errs.Validation("suggestion carries no proposed changes", nil)
}

func (e *Engine) applyBudgetAdjustment(ctx context.Context, tx persistence.Store, s *domain.PendingSuggestion, c *domain.BudgetAdjustmentChange, dry bool) ([]domain.ExecutionStep, error) {
	if c.NewAmount <= 0 {
		return nil, errs.Validation("new budget amount must be positive", nil)
	}
	b := s.CurrentState.Budget
	if b == nil {
		return nil, errs.NotFound("budget")
	}
	if !dry {
		if err := tx.Budgets().UpdateAmount(ctx, s.UserID, b.ID, c.NewAmount); err != nil {
			return nil, err
		}
	}
	return []domain.ExecutionStep{{
		Step:    "update_budget_amount",
		Success: true,
		Data:    map[string]float64{"old_amount": b.Amount, "new_amount": c.NewAmount},
	}}, nil
}

func (e *Engine) applySavingsIncrease(ctx context.Context, tx persistence.Store, s *domain.PendingSuggestion, c *domain.SavingsIncreaseChange, dry bool) ([]domain.ExecutionStep, error) {
	if c.Amount <= 0 {
		return nil, errs.Validation("contribution amount must be positive", nil)
	}
	g := s.CurrentState.Goal
	if g == nil {
		return nil, errs.NotFound("goal")
	}
	if g.Status != domain.GoalActive {
		return nil, errs.StateMachine("cannot contribute to goal in status %s", g.Status)
	}

	steps := []domain.ExecutionStep{{
		Step:    "record_contribution",
		Success: true,
		Data:    map[string]float64{"amount": c.Amount, "new_total": g.CurrentAmount + c.Amount},
	}}
	if c.EnableAutoSave {
		steps = append(steps, domain.ExecutionStep{
			Step:    "enable_auto_save",
			Success: true,
			Data:    map[string]float64{"amount": c.Amount, "day_of_month": float64(c.DayOfMonth)},
		})
	}
	if dry {
		return steps, nil
	}

	updated := *g
	updated.Contributions = append(append([]domain.Contribution{}, g.Contributions...), domain.Contribution{
		Amount: c.Amount,
		Date:   e.now(),
	})
	updated.CurrentAmount += c.Amount
	if c.EnableAutoSave {
		updated.AutoSave = domain.AutoSave{
			Enabled:    true,
			Amount:     c.Amount,
			Frequency:  c.Frequency,
			DayOfMonth: c.DayOfMonth,
		}
	}
	if updated.CurrentAmount >= updated.TargetAmount {
		updated.Status = domain.GoalCompleted
	}
	updated.UpdatedAt = e.now()
	if err := tx.Goals().Update(ctx, &updated); err != nil {
		return nil, err
	}
	return steps, nil
}

func (e *Engine) applySubscriptionCancellation(ctx context.Context, tx persistence.Store, s *domain.PendingSuggestion, c *domain.SubscriptionCancellationChange, dry bool) ([]domain.ExecutionStep, error) {
	sub := s.CurrentState.Subscription
	if sub == nil {
		return nil, errs.NotFound("subscription")
	}
	if sub.Status == domain.SubCancelled {
		return nil, errs.StateMachine("subscription %s is already cancelled", sub.ID)
	}
	if !dry {
		if err := tx.Subscriptions().UpdateStatus(ctx, s.UserID, sub.ID, domain.SubCancelled); err != nil {
			return nil, err
		}
	}
	return []domain.ExecutionStep{{
		Step:    "cancel_subscription",
		Success: true,
		Data:    map[string]float64{"monthly_savings": c.MonthlySavings},
	}}, nil
}

func (e *Engine) applyCategoryCreation(ctx context.Context, tx persistence.Store, s *domain.PendingSuggestion, c *domain.CategoryCreationChange, dry bool) ([]domain.ExecutionStep, error) {
	existing, err := absorbNotFound(tx.Categories().GetByName(ctx, s.UserID, c.Name))
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errs.Validationf("category %q already exists", c.Name)
	}
	if !dry {
		now := e.now()
		cat := &domain.Category{
			ID:            uuid.NewString(),
			UserID:        s.UserID,
			Name:          c.Name,
			Type:          c.Type,
			MonthlyBudget: c.MonthlyBudget,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Categories().Insert(ctx, cat); err != nil {
			return nil, err
		}
	}
	return []domain.ExecutionStep{{
		Step:    "create_category",
		Success: true,
		Data:    map[string]float64{"monthly_budget": c.MonthlyBudget},
	}}, nil
}

func (e *Engine) applyBudgetCreation(ctx context.Context, tx persistence.Store, s *domain.PendingSuggestion, c *domain.BudgetCreationChange, dry bool) ([]domain.ExecutionStep, error) {
	if c.Amount <= 0 {
		return nil, errs.Validation("budget amount must be positive", nil)
	}
	if _, err := tx.Categories().GetByID(ctx, s.UserID, c.CategoryID); err != nil {
		return nil, err
	}
	if !dry {
		now := e.now()
		b := &domain.Budget{
			ID:             uuid.NewString(),
			UserID:         s.UserID,
			CategoryID:     c.CategoryID,
			Name:           c.Name,
			Amount:         c.Amount,
			Period:         c.Period,
			Flexibility:    c.Flexibility,
			StartDate:      now,
			IsActive:       true,
			AlertThreshold: 0.8,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Budgets().Insert(ctx, b); err != nil {
			return nil, err
		}
	}
	return []domain.ExecutionStep{{
		Step:    "create_budget",
		Success: true,
		Data:    map[string]float64{"amount": c.Amount},
	}}, nil
}

func (e *Engine) applyGoalAdjustment(ctx context.Context, tx persistence.Store, s *domain.PendingSuggestion, c *domain.GoalAdjustmentChange, dry bool) ([]domain.ExecutionStep, error) {
	if c.NewTarget <= 0 {
		return nil, errs.Validation("new target must be positive", nil)
	}
	g := s.CurrentState.Goal
	if g == nil {
		return nil, errs.NotFound("goal")
	}

	steps := []domain.ExecutionStep{{
		Step:    "adjust_goal",
		Success: true,
		Data:    map[string]float64{"old_target": g.TargetAmount, "new_target": c.NewTarget},
	}}
	if dry {
		return steps, nil
	}

	updated := *g
	updated.TargetAmount = c.NewTarget
	if c.NewDate != nil {
		updated.TargetDate = *c.NewDate
	}
	if c.NewPriority > 0 {
		updated.Priority = c.NewPriority
	}
	updated.UpdatedAt = e.now()
	if err := tx.Goals().Update(ctx, &updated); err != nil {
		return nil, err
	}
	return steps, nil
}

func (e *Engine) applyTransactionCategorization(ctx context.Context, tx persistence.Store, s *domain.PendingSuggestion, c *domain.TransactionCategorizationChange, dry bool) ([]domain.ExecutionStep, error) {
	txn := s.CurrentState.Transaction
	if txn == nil {
		return nil, errs.NotFound("transaction")
	}
	if _, err := tx.Categories().GetByID(ctx, s.UserID, c.NewCategoryID); err != nil {
		return nil, err
	}
	if !dry {
		if err := tx.Transactions().UpdateCategory(ctx, s.UserID, txn.ID, c.NewCategoryID); err != nil {
			return nil, err
		}
	}
	return []domain.ExecutionStep{{
		Step:    "recategorize_transaction",
		Success: true,
	}}, nil
}

// reverseChanges undoes an applied suggestion from its pre-apply
// snapshot.
func (e *Engine) reverseChanges(ctx context.Context, tx persistence.Store, s *domain.PendingSuggestion) error {
	p := s.ProposedChanges
	snap := s.CurrentState
	switch {
	case p.BudgetAdjustment != nil:
		if snap.Budget == nil {
			return errs.Internal(fmt.Errorf("missing budget snapshot for suggestion %s", s.ID))
		}
		return tx.Budgets().UpdateAmount(ctx, s.UserID, snap.Budget.ID, snap.Budget.Amount)

	case p.SavingsIncrease != nil:
		if snap.Goal == nil {
			return errs.Internal(fmt.Errorf("missing goal snapshot for suggestion %s", s.ID))
		}
		return tx.Goals().Update(ctx, snap.Goal)

	case p.SubscriptionCancellation != nil:
		if snap.Subscription == nil {
			return errs.Internal(fmt.Errorf("missing subscription snapshot for suggestion %s", s.ID))
		}
		sub := snap.Subscription
		if err := tx.Subscriptions().UpdateStatus(ctx, s.UserID, sub.ID, sub.Status); err != nil {
			return err
		}
		if sub.Amount <= 0 {
			return nil
		}
		// marker transaction so the reactivation shows up in the ledger
		now := e.now()
		return tx.Transactions().Insert(ctx, &domain.Transaction{
			ID:             uuid.NewString(),
			UserID:         s.UserID,
			Amount:         sub.Amount,
			Type:           domain.TxExpense,
			CategoryID:     sub.CategoryID,
			Description:    fmt.Sprintf("Reactivated subscription: %s", sub.Name),
			Date:           now,
			PaymentMethod:  domain.PayOther,
			Status:         domain.TxPending,
			IsRecurring:    true,
			SubscriptionID: sub.ID,
			Notes:          "suggestion rollback reversal",
			CreatedAt:      now,
			UpdatedAt:      now,
		})

	case p.CategoryCreation != nil:
		cat, err := tx.Categories().GetByName(ctx, s.UserID, p.CategoryCreation.Name)
		if err != nil {
			return err
		}
		n, err := tx.Transactions().CountByCategory(ctx, s.UserID, cat.ID)
		if err != nil {
			return fmt.Errorf("failed to count category references: %w", err)
		}
		if n > 0 {
			return errs.StateMachine("category %q is referenced by %d transactions and cannot be removed", cat.Name, n)
		}
		return tx.Categories().Delete(ctx, s.UserID, cat.ID)

	case p.BudgetCreation != nil:
		budgets, err := tx.Budgets().ListActive(ctx, s.UserID)
		if err != nil {
			return err
		}
		for _, b := range budgets {
			if b.CategoryID == p.BudgetCreation.CategoryID && b.Name == p.BudgetCreation.Name {
				return tx.Budgets().Delete(ctx, s.UserID, b.ID)
			}
		}
		return errs.NotFound("budget")

	case p.GoalAdjustment != nil:
		if snap.Goal == nil {
			return errs.Internal(fmt.Errorf("missing goal snapshot for suggestion %s", s.ID))
		}
		return tx.Goals().Update(ctx, snap.Goal)

	case p.TransactionCategorization != nil:
		if snap.Transaction == nil {
			return errs.Internal(fmt.Errorf("missing transaction snapshot for suggestion %s", s.ID))
		}
		return tx.Transactions().UpdateCategory(ctx, s.UserID, snap.Transaction.ID, snap.Transaction.CategoryID)
	}
	return errs.Validation("suggestion carries no proposed changes", nil)
}
