// Package persistence defines the storage contracts for every entity and
// the transactional store that lifecycle transitions run inside.
package persistence

import (
	"context"
	"time"

	"github.com/finpulse/finpulse/internal/domain"
)

// TimeRange bounds a query window, inclusive on both ends.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// TransactionsRepo stores money movements.
type TransactionsRepo interface {
	// Insert adds one transaction after invariant validation.
	Insert(ctx context.Context, tx *domain.Transaction) error

	// InsertBatch adds multiple transactions atomically.
	InsertBatch(ctx context.Context, txs []domain.Transaction) error

	// GetByID retrieves a transaction scoped to its owner.
	GetByID(ctx context.Context, userID, id string) (*domain.Transaction, error)

	// ListByUser retrieves transactions within the range, newest first.
	ListByUser(ctx context.Context, userID string, tr TimeRange, limit int) ([]domain.Transaction, error)

	// ListByCategory retrieves one category's transactions within the range.
	ListByCategory(ctx context.Context, userID, categoryID string, tr TimeRange) ([]domain.Transaction, error)

	// SumCompletedExpenses totals completed expense amounts; categoryID ""
	// means all categories.
	SumCompletedExpenses(ctx context.Context, userID, categoryID string, tr TimeRange) (float64, error)

	// CountByCategory counts transactions referencing a category.
	CountByCategory(ctx context.Context, userID, categoryID string) (int64, error)

	// UpdateCategory reassigns a transaction's category (soft mutation).
	UpdateCategory(ctx context.Context, userID, id, categoryID string) error
}

// CategoriesRepo stores per-user spending buckets.
type CategoriesRepo interface {
	Insert(ctx context.Context, c *domain.Category) error
	GetByID(ctx context.Context, userID, id string) (*domain.Category, error)

	// GetByName matches case-insensitively.
	GetByName(ctx context.Context, userID, name string) (*domain.Category, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Category, error)

	// Delete removes a category; system categories are rejected.
	Delete(ctx context.Context, userID, id string) error
}

// BudgetsRepo stores category spending caps.
type BudgetsRepo interface {
	Insert(ctx context.Context, b *domain.Budget) error
	GetByID(ctx context.Context, userID, id string) (*domain.Budget, error)
	ListActive(ctx context.Context, userID string) ([]domain.Budget, error)
	UpdateAmount(ctx context.Context, userID, id string, amount float64) error
	Delete(ctx context.Context, userID, id string) error
}

// GoalsRepo stores savings goals.
type GoalsRepo interface {
	Insert(ctx context.Context, g *domain.SavingsGoal) error
	GetByID(ctx context.Context, userID, id string) (*domain.SavingsGoal, error)
	ListActive(ctx context.Context, userID string) ([]domain.SavingsGoal, error)

	// Update persists the full goal row, contributions included.
	Update(ctx context.Context, g *domain.SavingsGoal) error
}

// SubscriptionsRepo stores recurring charges.
type SubscriptionsRepo interface {
	Insert(ctx context.Context, s *domain.Subscription) error
	GetByID(ctx context.Context, userID, id string) (*domain.Subscription, error)
	ListActive(ctx context.Context, userID string) ([]domain.Subscription, error)

	// ListBillingBefore returns active subscriptions whose next billing
	// date is on or before the cutoff.
	ListBillingBefore(ctx context.Context, userID string, cutoff time.Time) ([]domain.Subscription, error)
	UpdateStatus(ctx context.Context, userID, id string, status domain.SubscriptionStatus) error
}

// SignalQuery filters signal listings.
type SignalQuery struct {
	Types           []domain.SignalType
	MinPriority     int // 0 disables; otherwise priority <= MinPriority (1 is highest)
	Limit           int
	IncludeInactive bool
	Category        string
	Since           time.Time
}

// SignalsRepo stores deterministic findings. Rows are append-only; status
// changes flip is_active and stamp dismissed/actioned times.
type SignalsRepo interface {
	Insert(ctx context.Context, s *domain.FinancialSignal) error
	GetByID(ctx context.Context, userID, id string) (*domain.FinancialSignal, error)
	List(ctx context.Context, userID string, q SignalQuery) ([]domain.FinancialSignal, error)

	// ActiveHashes returns the dedup hashes of all active signals for the
	// user. Reads-then-writes against this set must run inside WithTx.
	ActiveHashes(ctx context.Context, userID string) (map[string]bool, error)
	UpdateStatus(ctx context.Context, userID, id string, status domain.SignalStatus, at time.Time) error

	// ArchiveExpired deactivates signals whose expiry has passed and
	// returns how many rows changed.
	ArchiveExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// SuggestionsRepo stores lifecycle-managed proposals.
type SuggestionsRepo interface {
	Insert(ctx context.Context, s *domain.PendingSuggestion) error
	GetByID(ctx context.Context, userID, id string) (*domain.PendingSuggestion, error)
	ListByUser(ctx context.Context, userID string, statuses []domain.SuggestionStatus, limit int) ([]domain.PendingSuggestion, error)

	// FindActiveByTarget locates a live (pending/approved/conflict)
	// suggestion of the same type against the same target entity.
	FindActiveByTarget(ctx context.Context, userID string, typ domain.SuggestionType, targetID string) (*domain.PendingSuggestion, error)

	// ListActiveByCategory returns pending/approved suggestions whose
	// proposed changes overlap the category.
	ListActiveByCategory(ctx context.Context, userID, categoryID string) ([]domain.PendingSuggestion, error)

	// Update persists the full suggestion row unconditionally.
	Update(ctx context.Context, s *domain.PendingSuggestion) error

	// UpdateIfStatus persists the row only when its stored status still
	// equals expected; otherwise it reports a concurrency conflict.
	UpdateIfStatus(ctx context.Context, s *domain.PendingSuggestion, expected domain.SuggestionStatus) error

	// ListExpirable returns pending/approved suggestions whose expiry has
	// passed.
	ListExpirable(ctx context.Context, cutoff time.Time, limit int) ([]domain.PendingSuggestion, error)

	// LastTerminalOfType returns when a suggestion of this type last
	// reached applied or rejected, or nil when none has.
	LastTerminalOfType(ctx context.Context, userID string, typ domain.SuggestionType) (*time.Time, error)

	// InsertConflict records an (a, b) conflict pair.
	InsertConflict(ctx context.Context, userID, a, b, conflictType string) error
}

// FeedbackRepo stores user decisions; one row per suggestion.
type FeedbackRepo interface {
	Insert(ctx context.Context, f *domain.SuggestionFeedback) error
	GetBySuggestion(ctx context.Context, userID, suggestionID string) (*domain.SuggestionFeedback, error)
	ListByUser(ctx context.Context, userID string, since time.Time) ([]domain.SuggestionFeedback, error)
}

// PreferencesRepo stores per-user learning state.
type PreferencesRepo interface {
	// GetOrCreate returns the preference sheet, materializing defaults on
	// first access.
	GetOrCreate(ctx context.Context, userID string) (*domain.UserPreference, error)
	Save(ctx context.Context, p *domain.UserPreference) error
}

// AuditQuery filters audit listings.
type AuditQuery struct {
	Actions []domain.AuditAction
	Since   time.Time
	Until   time.Time
	Limit   int
}

// AuditRepo stores append-only lifecycle events.
type AuditRepo interface {
	Insert(ctx context.Context, l *domain.SuggestionLog) error
	ListBySuggestion(ctx context.Context, suggestionID string, limit int) ([]domain.SuggestionLog, error)
	ListByUser(ctx context.Context, userID string, q AuditQuery) ([]domain.SuggestionLog, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// WeeklyRepo stores materialized weekly metrics and summaries.
type WeeklyRepo interface {
	UpsertMetric(ctx context.Context, m *domain.WeeklyMetric) error
	GetMetric(ctx context.Context, userID string, weekStart time.Time) (*domain.WeeklyMetric, error)

	// ListRecentMetrics returns metrics newest first.
	ListRecentMetrics(ctx context.Context, userID string, limit int) ([]domain.WeeklyMetric, error)
	InsertSummary(ctx context.Context, s *domain.WeeklySummary) error
	LatestSummary(ctx context.Context, userID string) (*domain.WeeklySummary, error)
	DeleteExpiredSummaries(ctx context.Context, cutoff time.Time) (int64, error)
}

// NotificationsRepo stores in-app notifications.
type NotificationsRepo interface {
	Insert(ctx context.Context, n *domain.Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// UsersRepo enumerates known users for scheduled batch work.
type UsersRepo interface {
	ListIDs(ctx context.Context) ([]string, error)
}

// Store aggregates every repository and provides multi-statement
// transactions. WithTx hands the callback a Store whose repositories all
// share one transaction; the transaction commits iff the callback
// returns nil.
type Store interface {
	Transactions() TransactionsRepo
	Categories() CategoriesRepo
	Budgets() BudgetsRepo
	Goals() GoalsRepo
	Subscriptions() SubscriptionsRepo
	Signals() SignalsRepo
	Suggestions() SuggestionsRepo
	Feedback() FeedbackRepo
	Preferences() PreferencesRepo
	Audit() AuditRepo
	Weekly() WeeklyRepo
	Notifications() NotificationsRepo
	Users() UsersRepo

	WithTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}
