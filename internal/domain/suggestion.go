package domain

import "time"

// SuggestionType enumerates the typed transformations a suggestion proposes.
type SuggestionType string

const (
	SuggestBudgetAdjustment          SuggestionType = "budget_adjustment"
	SuggestSavingsIncrease           SuggestionType = "savings_increase"
	SuggestSubscriptionCancellation  SuggestionType = "subscription_cancellation"
	SuggestCategoryCreation          SuggestionType = "category_creation"
	SuggestBudgetCreation            SuggestionType = "budget_creation"
	SuggestGoalAdjustment            SuggestionType = "goal_adjustment"
	SuggestTransactionCategorization SuggestionType = "transaction_categorization"
)

// AllSuggestionTypes lists every supported suggestion type.
var AllSuggestionTypes = []SuggestionType{
	SuggestBudgetAdjustment,
	SuggestSavingsIncrease,
	SuggestSubscriptionCancellation,
	SuggestCategoryCreation,
	SuggestBudgetCreation,
	SuggestGoalAdjustment,
	SuggestTransactionCategorization,
}

// SuggestionStatus is the lifecycle state of a pending suggestion.
type SuggestionStatus string

const (
	StatusPending    SuggestionStatus = "pending"
	StatusApproved   SuggestionStatus = "approved"
	StatusRejected   SuggestionStatus = "rejected"
	StatusExpired    SuggestionStatus = "expired"
	StatusApplied    SuggestionStatus = "applied"
	StatusFailed     SuggestionStatus = "failed"
	StatusRolledBack SuggestionStatus = "rolled_back"
	StatusCancelled  SuggestionStatus = "cancelled"
	StatusConflict   SuggestionStatus = "conflict"
)

// RiskLevel classifies how disruptive applying a suggestion would be.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// BudgetAdjustmentChange resizes an existing budget.
type BudgetAdjustmentChange struct {
	BudgetID   string  `json:"budget_id"`
	CategoryID string  `json:"category_id"`
	OldAmount  float64 `json:"old_amount"`
	NewAmount  float64 `json:"new_amount"`
}

// SavingsIncreaseChange raises contributions to a goal, optionally enabling
// auto-save.
type SavingsIncreaseChange struct {
	GoalID         string  `json:"goal_id"`
	Amount         float64 `json:"amount"`
	EnableAutoSave bool    `json:"enable_auto_save"`
	Frequency      string  `json:"frequency,omitempty"`
	DayOfMonth     int     `json:"day_of_month,omitempty"`
}

// SubscriptionCancellationChange cancels a recurring charge.
type SubscriptionCancellationChange struct {
	SubscriptionID string  `json:"subscription_id"`
	CategoryID     string  `json:"category_id"`
	MonthlySavings float64 `json:"monthly_savings"`
}

// CategoryCreationChange introduces a new spending category.
type CategoryCreationChange struct {
	Name          string       `json:"name"`
	Type          CategoryType `json:"type"`
	MonthlyBudget float64      `json:"monthly_budget,omitempty"`
}

// BudgetCreationChange creates a budget for an uncovered category.
type BudgetCreationChange struct {
	CategoryID  string            `json:"category_id"`
	Name        string            `json:"name"`
	Amount      float64           `json:"amount"`
	Period      BudgetPeriod      `json:"period"`
	Flexibility BudgetFlexibility `json:"flexibility"`
}

// GoalAdjustmentChange retargets a savings goal.
type GoalAdjustmentChange struct {
	GoalID      string     `json:"goal_id"`
	OldTarget   float64    `json:"old_target"`
	NewTarget   float64    `json:"new_target"`
	OldDate     time.Time  `json:"old_date"`
	NewDate     *time.Time `json:"new_date,omitempty"`
	OldPriority int        `json:"old_priority"`
	NewPriority int        `json:"new_priority"`
}

// TransactionCategorizationChange reassigns a transaction's category.
type TransactionCategorizationChange struct {
	TransactionID string `json:"transaction_id"`
	OldCategoryID string `json:"old_category_id"`
	NewCategoryID string `json:"new_category_id"`
}

// ProposedChanges is a tagged sum keyed by suggestion type: exactly one
// variant is non-nil and it must match the suggestion's Type.
type ProposedChanges struct {
	BudgetAdjustment          *BudgetAdjustmentChange          `json:"budget_adjustment,omitempty"`
	SavingsIncrease           *SavingsIncreaseChange           `json:"savings_increase,omitempty"`
	SubscriptionCancellation  *SubscriptionCancellationChange  `json:"subscription_cancellation,omitempty"`
	CategoryCreation          *CategoryCreationChange          `json:"category_creation,omitempty"`
	BudgetCreation            *BudgetCreationChange            `json:"budget_creation,omitempty"`
	GoalAdjustment            *GoalAdjustmentChange            `json:"goal_adjustment,omitempty"`
	TransactionCategorization *TransactionCategorizationChange `json:"transaction_categorization,omitempty"`
}

// TargetID returns the primary entity the change acts on, used for
// duplicate detection.
func (p ProposedChanges) TargetID() string {
	switch {
	case p.BudgetAdjustment != nil:
		return p.BudgetAdjustment.BudgetID
	case p.SavingsIncrease != nil:
		return p.SavingsIncrease.GoalID
	case p.SubscriptionCancellation != nil:
		return p.SubscriptionCancellation.SubscriptionID
	case p.CategoryCreation != nil:
		return p.CategoryCreation.Name
	case p.BudgetCreation != nil:
		return p.BudgetCreation.CategoryID
	case p.GoalAdjustment != nil:
		return p.GoalAdjustment.GoalID
	case p.TransactionCategorization != nil:
		return p.TransactionCategorization.TransactionID
	}
	return ""
}

// CategoryID returns the category a change overlaps, used for conflict
// detection. Empty when the change is category-neutral.
func (p ProposedChanges) CategoryID() string {
	switch {
	case p.BudgetAdjustment != nil:
		return p.BudgetAdjustment.CategoryID
	case p.SubscriptionCancellation != nil:
		return p.SubscriptionCancellation.CategoryID
	case p.BudgetCreation != nil:
		return p.BudgetCreation.CategoryID
	case p.TransactionCategorization != nil:
		return p.TransactionCategorization.NewCategoryID
	}
	return ""
}

// MatchesType reports whether the populated variant agrees with typ.
func (p ProposedChanges) MatchesType(typ SuggestionType) bool {
	switch typ {
	case SuggestBudgetAdjustment:
		return p.BudgetAdjustment != nil
	case SuggestSavingsIncrease:
		return p.SavingsIncrease != nil
	case SuggestSubscriptionCancellation:
		return p.SubscriptionCancellation != nil
	case SuggestCategoryCreation:
		return p.CategoryCreation != nil
	case SuggestBudgetCreation:
		return p.BudgetCreation != nil
	case SuggestGoalAdjustment:
		return p.GoalAdjustment != nil
	case SuggestTransactionCategorization:
		return p.TransactionCategorization != nil
	}
	return false
}

// StateSnapshot captures affected entities before a suggestion applies,
// keyed by entity kind. Only the affected entity is populated.
type StateSnapshot struct {
	Budget       *Budget       `json:"budget,omitempty"`
	Goal         *SavingsGoal  `json:"goal,omitempty"`
	Subscription *Subscription `json:"subscription,omitempty"`
	Category     *Category     `json:"category,omitempty"`
	Transaction  *Transaction  `json:"transaction,omitempty"`
}

// EstimatedImpact quantifies the expected effect of a suggestion.
type EstimatedImpact struct {
	Amount     float64 `json:"amount,omitempty"`
	Percentage float64 `json:"percentage,omitempty"`
	Timeframe  string  `json:"timeframe"`
	Confidence float64 `json:"confidence"`
}

// Prerequisite is a gate that must hold before approval.
type Prerequisite struct {
	Type      string `json:"type"`
	Satisfied bool   `json:"satisfied"`
	Details   string `json:"details,omitempty"`
}

// SuggestionConflict links two suggestions touching the same category.
type SuggestionConflict struct {
	WithSuggestionID string `json:"with_suggestion_id"`
	Type             string `json:"type"`
	Resolution       string `json:"resolution,omitempty"`
}

// ApprovalRecord captures who approved a suggestion and how.
type ApprovalRecord struct {
	At     time.Time `json:"at"`
	By     string    `json:"by"`
	Method string    `json:"method"`
	IP     string    `json:"ip,omitempty"`
}

// ExecutionStep is one step of an applied transformation.
type ExecutionStep struct {
	Step    string             `json:"step"`
	Success bool               `json:"success"`
	Data    map[string]float64 `json:"data,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// ExecutionRecord captures the outcome of applying a suggestion.
type ExecutionRecord struct {
	At             time.Time       `json:"at"`
	By             string          `json:"by"`
	Results        []ExecutionStep `json:"results,omitempty"`
	TransactionIDs []string        `json:"transaction_ids,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// RollbackRecord captures a reversal of an applied suggestion.
type RollbackRecord struct {
	At            time.Time     `json:"at"`
	By            string        `json:"by"`
	Reason        string        `json:"reason,omitempty"`
	OriginalState StateSnapshot `json:"original_state"`
	Success       bool          `json:"success"`
	Error         string        `json:"error,omitempty"`
}

// ReviewRecord tracks user engagement with a suggestion.
type ReviewRecord struct {
	ViewedAt     *time.Time `json:"viewed_at,omitempty"`
	ViewedCount  int        `json:"viewed_count"`
	UserRating   int        `json:"user_rating,omitempty"`
	UserFeedback string     `json:"user_feedback,omitempty"`
}

// SuggestionMetadata carries priority, risk and expiry bookkeeping.
type SuggestionMetadata struct {
	Priority  string    `json:"priority"`
	RiskLevel RiskLevel `json:"risk_level"`
	ExpiresAt time.Time `json:"expires_at"`
	Version   int       `json:"version"`
}

// DefaultSuggestionTTL is the default window before an unacted suggestion
// expires.
const DefaultSuggestionTTL = 7 * 24 * time.Hour

// PendingSuggestion is a lifecycle-managed proposal to mutate user state.
type PendingSuggestion struct {
	ID              string               `json:"id" db:"id"`
	UserID          string               `json:"user_id" db:"user_id"`
	InsightID       string               `json:"insight_id,omitempty" db:"insight_id"`
	Type            SuggestionType       `json:"type" db:"type"`
	Title           string               `json:"title" db:"title"`
	Description     string               `json:"description" db:"description"`
	CurrentState    StateSnapshot        `json:"current_state"`
	ProposedChanges ProposedChanges      `json:"proposed_changes"`
	EstimatedImpact EstimatedImpact      `json:"estimated_impact"`
	Prerequisites   []Prerequisite       `json:"prerequisites,omitempty"`
	Conflicts       []SuggestionConflict `json:"conflicts,omitempty"`
	Status          SuggestionStatus     `json:"status" db:"status"`
	Approval        *ApprovalRecord      `json:"approval,omitempty"`
	Execution       *ExecutionRecord     `json:"execution,omitempty"`
	Rollback        *RollbackRecord      `json:"rollback,omitempty"`
	Review          ReviewRecord         `json:"review"`
	Metadata        SuggestionMetadata   `json:"metadata"`
	CreatedAt       time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at" db:"updated_at"`
}

// IsExpired reports whether the suggestion has outlived its window.
func (s *PendingSuggestion) IsExpired(now time.Time) bool {
	return now.After(s.Metadata.ExpiresAt)
}

// PrerequisitesSatisfied reports whether every prerequisite holds.
func (s *PendingSuggestion) PrerequisitesSatisfied() bool {
	for _, p := range s.Prerequisites {
		if !p.Satisfied {
			return false
		}
	}
	return true
}

// legalTransitions encodes the forward state machine.
var legalTransitions = map[SuggestionStatus][]SuggestionStatus{
	StatusPending:  {StatusApproved, StatusRejected, StatusCancelled, StatusExpired, StatusConflict},
	StatusApproved: {StatusApplied, StatusFailed, StatusExpired},
	StatusApplied:  {StatusRolledBack},
	StatusConflict: {StatusPending},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to SuggestionStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
