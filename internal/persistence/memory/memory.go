// Package memory provides an in-memory Store used by tests and the
// offline CLI paths. Transactions are simulated by snapshot/restore under
// a store-wide lock, which preserves the commit-iff-success contract the
// lifecycle engine relies on.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/errs"
	"github.com/finpulse/finpulse/internal/persistence"
)

type state struct {
	Transactions  map[string]*domain.Transaction
	Categories    map[string]*domain.Category
	Budgets       map[string]*domain.Budget
	Goals         map[string]*domain.SavingsGoal
	Subscriptions map[string]*domain.Subscription
	Signals       map[string]*domain.FinancialSignal
	Suggestions   map[string]*domain.PendingSuggestion
	Feedback      map[string]*domain.SuggestionFeedback
	Preferences   map[string]*domain.UserPreference
	AuditLogs     []*domain.SuggestionLog
	Metrics       map[string]*domain.WeeklyMetric
	Summaries     []*domain.WeeklySummary
	Notifications map[string]*domain.Notification
	Conflicts     []conflictPair
	UserIDs       map[string]bool
}

type conflictPair struct {
	UserID string
	A, B   string
	Type   string
}

func newState() *state {
	return &state{
		Transactions:  make(map[string]*domain.Transaction),
		Categories:    make(map[string]*domain.Category),
		Budgets:       make(map[string]*domain.Budget),
		Goals:         make(map[string]*domain.SavingsGoal),
		Subscriptions: make(map[string]*domain.Subscription),
		Signals:       make(map[string]*domain.FinancialSignal),
		Suggestions:   make(map[string]*domain.PendingSuggestion),
		Feedback:      make(map[string]*domain.SuggestionFeedback),
		Preferences:   make(map[string]*domain.UserPreference),
		Metrics:       make(map[string]*domain.WeeklyMetric),
		Notifications: make(map[string]*domain.Notification),
		UserIDs:       make(map[string]bool),
	}
}

// Store is an in-memory persistence.Store.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	st   *state
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{st: newState()}
}

// AddUser registers a user id for scheduler enumeration.
func (s *Store) AddUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.UserIDs[userID] = true
}

func (s *Store) Transactions() persistence.TransactionsRepo   { return (*txRepo)(s) }
func (s *Store) Categories() persistence.CategoriesRepo       { return (*catRepo)(s) }
func (s *Store) Budgets() persistence.BudgetsRepo             { return (*budgetRepo)(s) }
func (s *Store) Goals() persistence.GoalsRepo                 { return (*goalRepo)(s) }
func (s *Store) Subscriptions() persistence.SubscriptionsRepo { return (*subRepo)(s) }
func (s *Store) Signals() persistence.SignalsRepo             { return (*signalRepo)(s) }
func (s *Store) Suggestions() persistence.SuggestionsRepo     { return (*suggRepo)(s) }
func (s *Store) Feedback() persistence.FeedbackRepo           { return (*fbRepo)(s) }
func (s *Store) Preferences() persistence.PreferencesRepo     { return (*prefRepo)(s) }
func (s *Store) Audit() persistence.AuditRepo                 { return (*auditRepo)(s) }
func (s *Store) Weekly() persistence.WeeklyRepo               { return (*weeklyRepo)(s) }
func (s *Store) Notifications() persistence.NotificationsRepo { return (*notifRepo)(s) }
func (s *Store) Users() persistence.UsersRepo                 { return (*usersRepo)(s) }

// WithTx serializes callers, snapshots state and restores it when the
// callback fails.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, st persistence.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap, err := s.snapshot()
	if err != nil {
		return fmt.Errorf("failed to snapshot state: %w", err)
	}

	if err := fn(ctx, s); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *Store) snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(s.st)
}

func (s *Store) restore(snap []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	restored := newState()
	if err := json.Unmarshal(snap, restored); err == nil {
		s.st = restored
	}
}

func inRange(t time.Time, tr persistence.TimeRange) bool {
	return !t.Before(tr.From) && !t.After(tr.To)
}

// --- transactions ---

type txRepo Store

func (r *txRepo) Insert(ctx context.Context, tx *domain.Transaction) error {
	if err := tx.Validate(); err != nil {
		return errs.Validation(err.Error(), nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *tx
	r.st.Transactions[tx.ID] = &cp
	r.st.UserIDs[tx.UserID] = true
	return nil
}

func (r *txRepo) InsertBatch(ctx context.Context, txs []domain.Transaction) error {
	for i := range txs {
		if err := r.Insert(ctx, &txs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepo) GetByID(ctx context.Context, userID, id string) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tx, ok := r.st.Transactions[id]
	if !ok || tx.UserID != userID {
		return nil, errs.NotFound("transaction")
	}
	cp := *tx
	return &cp, nil
}

func (r *txRepo) ListByUser(ctx context.Context, userID string, tr persistence.TimeRange, limit int) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Transaction
	for _, tx := range r.st.Transactions {
		if tx.UserID == userID && inRange(tx.Date, tr) {
			out = append(out, *tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *txRepo) ListByCategory(ctx context.Context, userID, categoryID string, tr persistence.TimeRange) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Transaction
	for _, tx := range r.st.Transactions {
		if tx.UserID == userID && tx.CategoryID == categoryID && inRange(tx.Date, tr) {
			out = append(out, *tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *txRepo) SumCompletedExpenses(ctx context.Context, userID, categoryID string, tr persistence.TimeRange) (float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sum float64
	for _, tx := range r.st.Transactions {
		if tx.UserID != userID || tx.Type != domain.TxExpense || tx.Status != domain.TxCompleted {
			continue
		}
		if categoryID != "" && tx.CategoryID != categoryID {
			continue
		}
		if inRange(tx.Date, tr) {
			sum += tx.Amount
		}
	}
	return sum, nil
}

func (r *txRepo) CountByCategory(ctx context.Context, userID, categoryID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, tx := range r.st.Transactions {
		if tx.UserID == userID && tx.CategoryID == categoryID {
			n++
		}
	}
	return n, nil
}

func (r *txRepo) UpdateCategory(ctx context.Context, userID, id, categoryID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.st.Transactions[id]
	if !ok || tx.UserID != userID {
		return errs.NotFound("transaction")
	}
	tx.CategoryID = categoryID
	tx.UpdatedAt = time.Now()
	return nil
}

// --- categories ---

type catRepo Store

func (r *catRepo) Insert(ctx context.Context, c *domain.Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.st.Categories {
		if existing.UserID == c.UserID && strings.EqualFold(existing.Name, c.Name) {
			return errs.Validationf("category name %q already exists", c.Name)
		}
	}
	cp := *c
	r.st.Categories[c.ID] = &cp
	r.st.UserIDs[c.UserID] = true
	return nil
}

func (r *catRepo) GetByID(ctx context.Context, userID, id string) (*domain.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.st.Categories[id]
	if !ok || c.UserID != userID {
		return nil, errs.NotFound("category")
	}
	cp := *c
	return &cp, nil
}

func (r *catRepo) GetByName(ctx context.Context, userID, name string) (*domain.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.st.Categories {
		if c.UserID == userID && strings.EqualFold(c.Name, name) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, errs.NotFound("category")
}

func (r *catRepo) ListByUser(ctx context.Context, userID string) ([]domain.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Category
	for _, c := range r.st.Categories {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *catRepo) Delete(ctx context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.st.Categories[id]
	if !ok || c.UserID != userID {
		return errs.NotFound("category")
	}
	if c.IsSystem {
		return errs.Permission("system categories cannot be deleted")
	}
	delete(r.st.Categories, id)
	return nil
}

// --- budgets ---

type budgetRepo Store

func (r *budgetRepo) Insert(ctx context.Context, b *domain.Budget) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *b
	r.st.Budgets[b.ID] = &cp
	r.st.UserIDs[b.UserID] = true
	return nil
}

func (r *budgetRepo) GetByID(ctx context.Context, userID, id string) (*domain.Budget, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.st.Budgets[id]
	if !ok || b.UserID != userID {
		return nil, errs.NotFound("budget")
	}
	cp := *b
	return &cp, nil
}

func (r *budgetRepo) ListActive(ctx context.Context, userID string) ([]domain.Budget, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Budget
	for _, b := range r.st.Budgets {
		if b.UserID == userID && b.IsActive {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *budgetRepo) UpdateAmount(ctx context.Context, userID, id string, amount float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.st.Budgets[id]
	if !ok || b.UserID != userID {
		return errs.NotFound("budget")
	}
	b.Amount = amount
	b.UpdatedAt = time.Now()
	return nil
}

func (r *budgetRepo) Delete(ctx context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.st.Budgets[id]
	if !ok || b.UserID != userID {
		return errs.NotFound("budget")
	}
	delete(r.st.Budgets, id)
	return nil
}

// --- goals ---

type goalRepo Store

func (r *goalRepo) Insert(ctx context.Context, g *domain.SavingsGoal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *g
	r.st.Goals[g.ID] = &cp
	r.st.UserIDs[g.UserID] = true
	return nil
}

func (r *goalRepo) GetByID(ctx context.Context, userID, id string) (*domain.SavingsGoal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.st.Goals[id]
	if !ok || g.UserID != userID {
		return nil, errs.NotFound("goal")
	}
	cp := *g
	return &cp, nil
}

func (r *goalRepo) ListActive(ctx context.Context, userID string) ([]domain.SavingsGoal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.SavingsGoal
	for _, g := range r.st.Goals {
		if g.UserID == userID && g.Status == domain.GoalActive {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *goalRepo) Update(ctx context.Context, g *domain.SavingsGoal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.st.Goals[g.ID]
	if !ok || old.UserID != g.UserID {
		return errs.NotFound("goal")
	}
	cp := *g
	cp.UpdatedAt = time.Now()
	r.st.Goals[g.ID] = &cp
	return nil
}

// --- subscriptions ---

type subRepo Store

func (r *subRepo) Insert(ctx context.Context, s *domain.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.st.Subscriptions[s.ID] = &cp
	r.st.UserIDs[s.UserID] = true
	return nil
}

func (r *subRepo) GetByID(ctx context.Context, userID, id string) (*domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.st.Subscriptions[id]
	if !ok || s.UserID != userID {
		return nil, errs.NotFound("subscription")
	}
	cp := *s
	return &cp, nil
}

func (r *subRepo) ListActive(ctx context.Context, userID string) ([]domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Subscription
	for _, s := range r.st.Subscriptions {
		if s.UserID == userID && (s.Status == domain.SubActive || s.Status == domain.SubTrial) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *subRepo) ListBillingBefore(ctx context.Context, userID string, cutoff time.Time) ([]domain.Subscription, error) {
	active, err := r.ListActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []domain.Subscription
	for _, s := range active {
		if !s.Recurrence.NextBillingDate.After(cutoff) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *subRepo) UpdateStatus(ctx context.Context, userID, id string, status domain.SubscriptionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.st.Subscriptions[id]
	if !ok || s.UserID != userID {
		return errs.NotFound("subscription")
	}
	s.Status = status
	s.UpdatedAt = time.Now()
	return nil
}

// --- signals ---

type signalRepo Store

func (r *signalRepo) Insert(ctx context.Context, s *domain.FinancialSignal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.st.Signals[s.ID] = &cp
	r.st.UserIDs[s.UserID] = true
	return nil
}

func (r *signalRepo) GetByID(ctx context.Context, userID, id string) (*domain.FinancialSignal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.st.Signals[id]
	if !ok || s.UserID != userID {
		return nil, errs.NotFound("signal")
	}
	cp := *s
	return &cp, nil
}

func (r *signalRepo) List(ctx context.Context, userID string, q persistence.SignalQuery) ([]domain.FinancialSignal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	now := time.Now()
	var out []domain.FinancialSignal
	for _, s := range r.st.Signals {
		if s.UserID != userID {
			continue
		}
		if !q.IncludeInactive && (!s.IsActive || s.ExpiresAt.Before(now)) {
			continue
		}
		if len(q.Types) > 0 && !containsType(q.Types, s.Type) {
			continue
		}
		if q.MinPriority > 0 && s.Priority > q.MinPriority {
			continue
		}
		if q.Category != "" && s.Category != q.Category {
			continue
		}
		if !q.Since.IsZero() && s.CreatedAt.Before(q.Since) {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func containsType(types []domain.SignalType, t domain.SignalType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func (r *signalRepo) ActiveHashes(ctx context.Context, userID string) (map[string]bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hashes := make(map[string]bool)
	for _, s := range r.st.Signals {
		if s.UserID == userID && s.IsActive {
			hashes[s.Data.Metadata.SignalHash] = true
		}
	}
	return hashes, nil
}

func (r *signalRepo) UpdateStatus(ctx context.Context, userID, id string, status domain.SignalStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.st.Signals[id]
	if !ok || s.UserID != userID {
		return errs.NotFound("signal")
	}
	switch status {
	case domain.SignalActive:
		s.IsActive = true
		s.DismissedAt = nil
		s.ActionedAt = nil
	case domain.SignalDismissed:
		s.IsActive = false
		s.DismissedAt = &at
	case domain.SignalActioned:
		s.IsActive = false
		s.ActionedAt = &at
	default:
		return errs.Validationf("unknown signal status: %s", status)
	}
	return nil
}

func (r *signalRepo) ArchiveExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.st.Signals {
		if s.IsActive && s.ExpiresAt.Before(cutoff) {
			s.IsActive = false
			n++
		}
	}
	return n, nil
}

// --- suggestions ---

type suggRepo Store

var liveStatuses = []domain.SuggestionStatus{
	domain.StatusPending, domain.StatusApproved, domain.StatusConflict,
}

func isLive(s domain.SuggestionStatus) bool {
	for _, st := range liveStatuses {
		if s == st {
			return true
		}
	}
	return false
}

func (r *suggRepo) Insert(ctx context.Context, s *domain.PendingSuggestion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.st.Suggestions[s.ID] = &cp
	r.st.UserIDs[s.UserID] = true
	return nil
}

func (r *suggRepo) GetByID(ctx context.Context, userID, id string) (*domain.PendingSuggestion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.st.Suggestions[id]
	if !ok || s.UserID != userID {
		return nil, errs.NotFound("suggestion")
	}
	cp := *s
	return &cp, nil
}

func (r *suggRepo) ListByUser(ctx context.Context, userID string, statuses []domain.SuggestionStatus, limit int) ([]domain.PendingSuggestion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.PendingSuggestion
	for _, s := range r.st.Suggestions {
		if s.UserID != userID {
			continue
		}
		if len(statuses) > 0 {
			match := false
			for _, st := range statuses {
				if s.Status == st {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *suggRepo) FindActiveByTarget(ctx context.Context, userID string, typ domain.SuggestionType, targetID string) (*domain.PendingSuggestion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.st.Suggestions {
		if s.UserID == userID && s.Type == typ && isLive(s.Status) && s.ProposedChanges.TargetID() == targetID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *suggRepo) ListActiveByCategory(ctx context.Context, userID, categoryID string) ([]domain.PendingSuggestion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.PendingSuggestion
	for _, s := range r.st.Suggestions {
		if s.UserID == userID && categoryID != "" &&
			(s.Status == domain.StatusPending || s.Status == domain.StatusApproved) &&
			s.ProposedChanges.CategoryID() == categoryID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *suggRepo) Update(ctx context.Context, s *domain.PendingSuggestion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.st.Suggestions[s.ID]
	if !ok || old.UserID != s.UserID {
		return errs.NotFound("suggestion")
	}
	cp := *s
	cp.UpdatedAt = time.Now()
	r.st.Suggestions[s.ID] = &cp
	return nil
}

func (r *suggRepo) UpdateIfStatus(ctx context.Context, s *domain.PendingSuggestion, expected domain.SuggestionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.st.Suggestions[s.ID]
	if !ok || old.UserID != s.UserID {
		return errs.NotFound("suggestion")
	}
	if old.Status != expected {
		return errs.Concurrency("suggestion status changed concurrently")
	}
	cp := *s
	cp.UpdatedAt = time.Now()
	r.st.Suggestions[s.ID] = &cp
	return nil
}

func (r *suggRepo) ListExpirable(ctx context.Context, cutoff time.Time, limit int) ([]domain.PendingSuggestion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.PendingSuggestion
	for _, s := range r.st.Suggestions {
		if (s.Status == domain.StatusPending || s.Status == domain.StatusApproved) && s.Metadata.ExpiresAt.Before(cutoff) {
			out = append(out, *s)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *suggRepo) LastTerminalOfType(ctx context.Context, userID string, typ domain.SuggestionType) (*time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *time.Time
	for _, s := range r.st.Suggestions {
		if s.UserID != userID || s.Type != typ {
			continue
		}
		if s.Status != domain.StatusApplied && s.Status != domain.StatusRejected {
			continue
		}
		t := s.UpdatedAt
		if latest == nil || t.After(*latest) {
			cp := t
			latest = &cp
		}
	}
	return latest, nil
}

func (r *suggRepo) InsertConflict(ctx context.Context, userID, a, b, conflictType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.Conflicts = append(r.st.Conflicts, conflictPair{UserID: userID, A: a, B: b, Type: conflictType})
	return nil
}

// --- feedback ---

type fbRepo Store

func (r *fbRepo) Insert(ctx context.Context, f *domain.SuggestionFeedback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.st.Feedback {
		if existing.SuggestionID == f.SuggestionID {
			return errs.Validationf("feedback already recorded for suggestion %s", f.SuggestionID)
		}
	}
	cp := *f
	r.st.Feedback[f.ID] = &cp
	return nil
}

func (r *fbRepo) GetBySuggestion(ctx context.Context, userID, suggestionID string) (*domain.SuggestionFeedback, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.st.Feedback {
		if f.UserID == userID && f.SuggestionID == suggestionID {
			cp := *f
			return &cp, nil
		}
	}
	return nil, errs.NotFound("feedback")
}

func (r *fbRepo) ListByUser(ctx context.Context, userID string, since time.Time) ([]domain.SuggestionFeedback, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.SuggestionFeedback
	for _, f := range r.st.Feedback {
		if f.UserID == userID && !f.CreatedAt.Before(since) {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- preferences ---

type prefRepo Store

func (r *prefRepo) GetOrCreate(ctx context.Context, userID string) (*domain.UserPreference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.st.Preferences[userID]; ok {
		cp := clonePref(p)
		return cp, nil
	}
	p := domain.NewUserPreference(userID)
	r.st.Preferences[userID] = clonePref(p)
	return p, nil
}

func (r *prefRepo) Save(ctx context.Context, p *domain.UserPreference) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := clonePref(p)
	cp.UpdatedAt = time.Now()
	r.st.Preferences[p.UserID] = cp
	return nil
}

func clonePref(p *domain.UserPreference) *domain.UserPreference {
	raw, _ := json.Marshal(p)
	var cp domain.UserPreference
	_ = json.Unmarshal(raw, &cp)
	return &cp
}

// --- audit ---

type auditRepo Store

func (r *auditRepo) Insert(ctx context.Context, l *domain.SuggestionLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *l
	r.st.AuditLogs = append(r.st.AuditLogs, &cp)
	return nil
}

func (r *auditRepo) ListBySuggestion(ctx context.Context, suggestionID string, limit int) ([]domain.SuggestionLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.SuggestionLog
	for _, l := range r.st.AuditLogs {
		if l.SuggestionID == suggestionID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *auditRepo) ListByUser(ctx context.Context, userID string, q persistence.AuditQuery) ([]domain.SuggestionLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.SuggestionLog
	for _, l := range r.st.AuditLogs {
		if l.UserID != userID {
			continue
		}
		if !q.Since.IsZero() && l.Timestamp.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && l.Timestamp.After(q.Until) {
			continue
		}
		if len(q.Actions) > 0 {
			match := false
			for _, a := range q.Actions {
				if l.Action == a {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *auditRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []*domain.SuggestionLog
	var n int64
	for _, l := range r.st.AuditLogs {
		if l.Timestamp.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, l)
	}
	r.st.AuditLogs = kept
	return n, nil
}

// --- weekly ---

type weeklyRepo Store

func metricKey(userID string, weekStart time.Time) string {
	return userID + "|" + weekStart.UTC().Format("2006-01-02")
}

func (r *weeklyRepo) UpsertMetric(ctx context.Context, m *domain.WeeklyMetric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.st.Metrics[metricKey(m.UserID, m.WeekStart)] = &cp
	return nil
}

func (r *weeklyRepo) GetMetric(ctx context.Context, userID string, weekStart time.Time) (*domain.WeeklyMetric, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.st.Metrics[metricKey(userID, weekStart)]
	if !ok {
		return nil, errs.NotFound("weekly metric")
	}
	cp := *m
	return &cp, nil
}

func (r *weeklyRepo) ListRecentMetrics(ctx context.Context, userID string, limit int) ([]domain.WeeklyMetric, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.WeeklyMetric
	for _, m := range r.st.Metrics {
		if m.UserID == userID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WeekStart.After(out[j].WeekStart) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *weeklyRepo) InsertSummary(ctx context.Context, s *domain.WeeklySummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.st.Summaries = append(r.st.Summaries, &cp)
	return nil
}

func (r *weeklyRepo) LatestSummary(ctx context.Context, userID string) (*domain.WeeklySummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *domain.WeeklySummary
	now := time.Now()
	for _, s := range r.st.Summaries {
		if s.UserID != userID || s.ExpiresAt.Before(now) {
			continue
		}
		if latest == nil || s.WeekStart.After(latest.WeekStart) {
			latest = s
		}
	}
	if latest == nil {
		return nil, errs.NotFound("weekly summary")
	}
	cp := *latest
	return &cp, nil
}

func (r *weeklyRepo) DeleteExpiredSummaries(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []*domain.WeeklySummary
	var n int64
	for _, s := range r.st.Summaries {
		if s.ExpiresAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, s)
	}
	r.st.Summaries = kept
	return n, nil
}

// --- notifications ---

type notifRepo Store

func (r *notifRepo) Insert(ctx context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *n
	r.st.Notifications[n.ID] = &cp
	return nil
}

func (r *notifRepo) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	now := time.Now()
	var out []domain.Notification
	for _, n := range r.st.Notifications {
		if n.UserID != userID || n.ExpiresAt.Before(now) {
			continue
		}
		if unreadOnly && n.Read {
			continue
		}
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *notifRepo) MarkRead(ctx context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.st.Notifications[id]
	if !ok || n.UserID != userID {
		return errs.NotFound("notification")
	}
	n.Read = true
	return nil
}

func (r *notifRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, notif := range r.st.Notifications {
		if notif.ExpiresAt.Before(cutoff) {
			delete(r.st.Notifications, id)
			n++
		}
	}
	return n, nil
}

// --- users ---

type usersRepo Store

func (r *usersRepo) ListIDs(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.st.UserIDs))
	for id := range r.st.UserIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
