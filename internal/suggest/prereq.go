package suggest

import (
	"context"
	"fmt"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/errs"
	"github.com/finpulse/finpulse/internal/persistence"
)

// checkPrerequisites evaluates the per-type gates a suggestion must
// pass before approval. A missing target entity is recorded as an
// unsatisfied prerequisite, not an error.
func (e *Engine) checkPrerequisites(ctx context.Context, tx persistence.Store, s *domain.PendingSuggestion) ([]domain.Prerequisite, error) {
	p := s.ProposedChanges
	switch {
	case p.BudgetAdjustment != nil:
		b, err := absorbNotFound(tx.Budgets().GetByID(ctx, s.UserID, p.BudgetAdjustment.BudgetID))
		if err != nil {
			return nil, err
		}
		ok := b != nil && b.IsActive
		return []domain.Prerequisite{prereq("budget_active", ok, "target budget must exist and be active")}, nil

	case p.SavingsIncrease != nil:
		g, err := absorbNotFound(tx.Goals().GetByID(ctx, s.UserID, p.SavingsIncrease.GoalID))
		if err != nil {
			return nil, err
		}
		ok := g != nil && g.Status == domain.GoalActive
		return []domain.Prerequisite{prereq("goal_active", ok, "target goal must exist and be active")}, nil

	case p.SubscriptionCancellation != nil:
		sub, err := absorbNotFound(tx.Subscriptions().GetByID(ctx, s.UserID, p.SubscriptionCancellation.SubscriptionID))
		if err != nil {
			return nil, err
		}
		ok := sub != nil && (sub.Status == domain.SubActive || sub.Status == domain.SubTrial)
		return []domain.Prerequisite{prereq("subscription_active", ok, "target subscription must be active or in trial")}, nil

	case p.CategoryCreation != nil:
		existing, err := absorbNotFound(tx.Categories().GetByName(ctx, s.UserID, p.CategoryCreation.Name))
		if err != nil {
			return nil, err
		}
		return []domain.Prerequisite{prereq("name_available", existing == nil,
			fmt.Sprintf("category name %q must not be taken", p.CategoryCreation.Name))}, nil

	case p.BudgetCreation != nil:
		cat, err := absorbNotFound(tx.Categories().GetByID(ctx, s.UserID, p.BudgetCreation.CategoryID))
		if err != nil {
			return nil, err
		}
		prereqs := []domain.Prerequisite{prereq("category_exists", cat != nil, "target category must exist")}
		budgets, err := tx.Budgets().ListActive(ctx, s.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to list budgets: %w", err)
		}
		uncovered := true
		for _, b := range budgets {
			if b.CategoryID == p.BudgetCreation.CategoryID {
				uncovered = false
				break
			}
		}
		prereqs = append(prereqs, prereq("category_unbudgeted", uncovered, "category must not already have an active budget"))
		return prereqs, nil

	case p.GoalAdjustment != nil:
		g, err := absorbNotFound(tx.Goals().GetByID(ctx, s.UserID, p.GoalAdjustment.GoalID))
		if err != nil {
			return nil, err
		}
		ok := g != nil && g.Status == domain.GoalActive
		return []domain.Prerequisite{prereq("goal_active", ok, "target goal must exist and be active")}, nil

	case p.TransactionCategorization != nil:
		txn, err := absorbNotFound(tx.Transactions().GetByID(ctx, s.UserID, p.TransactionCategorization.TransactionID))
		if err != nil {
			return nil, err
		}
		cat, err := absorbNotFound(tx.Categories().GetByID(ctx, s.UserID, p.TransactionCategorization.NewCategoryID))
		if err != nil {
			return nil, err
		}
		return []domain.Prerequisite{
			prereq("transaction_exists", txn != nil, "target transaction must exist"),
			prereq("category_exists", cat != nil, "new category must exist"),
		}, nil
	}
	return nil, nil
}

func prereq(typ string, ok bool, details string) domain.Prerequisite {
	p := domain.Prerequisite{Type: typ, Satisfied: ok}
	if !ok {
		p.Details = details
	}
	return p
}

// absorbNotFound converts a not-found lookup into a nil entity so the
// caller can express it as an unsatisfied prerequisite.
func absorbNotFound[T any](v *T, err error) (*T, error) {
	if err != nil {
		if errs.Is(err, errs.KindNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}
