// Package postgres implements the persistence contracts on PostgreSQL
// via sqlx. Entities are stored as indexed columns plus a JSONB document
// holding the full record, so nested structures round-trip without a
// column per field.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/finpulse/finpulse/internal/persistence"
)

// DefaultQueryTimeout bounds individual statements.
const DefaultQueryTimeout = 30 * time.Second

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx so repositories can
// run standalone or inside a transaction.
type queryer interface {
	sqlx.ExtContext
}

// Store is the PostgreSQL persistence.Store.
type Store struct {
	db      *sqlx.DB
	q       queryer
	timeout time.Duration
}

// NewStore opens a connection pool and verifies connectivity.
func NewStore(dsn string, timeout time.Duration) (*Store, error) {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db, q: db, timeout: timeout}, nil
}

// NewStoreWithDB wraps an existing pool, mainly for tests.
func NewStoreWithDB(db *sqlx.DB, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &Store{db: db, q: db, timeout: timeout}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Transactions() persistence.TransactionsRepo {
	return &txRepo{q: s.q, timeout: s.timeout}
}
func (s *Store) Categories() persistence.CategoriesRepo {
	return &categoriesRepo{q: s.q, timeout: s.timeout}
}
func (s *Store) Budgets() persistence.BudgetsRepo {
	return &budgetsRepo{q: s.q, timeout: s.timeout}
}
func (s *Store) Goals() persistence.GoalsRepo {
	return &goalsRepo{q: s.q, timeout: s.timeout}
}
func (s *Store) Subscriptions() persistence.SubscriptionsRepo {
	return &subscriptionsRepo{q: s.q, timeout: s.timeout}
}
func (s *Store) Signals() persistence.SignalsRepo {
	return &signalsRepo{q: s.q, timeout: s.timeout}
}
func (s *Store) Suggestions() persistence.SuggestionsRepo {
	return &suggestionsRepo{q: s.q, timeout: s.timeout}
}
func (s *Store) Feedback() persistence.FeedbackRepo {
	return &feedbackRepo{q: s.q, timeout: s.timeout}
}
func (s *Store) Preferences() persistence.PreferencesRepo {
	return &preferencesRepo{q: s.q, timeout: s.timeout}
}
func (s *Store) Audit() persistence.AuditRepo {
	return &auditRepo{q: s.q, timeout: s.timeout}
}
func (s *Store) Weekly() persistence.WeeklyRepo {
	return &weeklyRepo{q: s.q, timeout: s.timeout}
}
func (s *Store) Notifications() persistence.NotificationsRepo {
	return &notificationsRepo{q: s.q, timeout: s.timeout}
}
func (s *Store) Users() persistence.UsersRepo {
	return &usersRepo{q: s.q, timeout: s.timeout}
}

// WithTx runs fn against a Store bound to one database transaction. The
// transaction commits iff fn returns nil. Nested calls reuse the outer
// transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, st persistence.Store) error) error {
	if _, nested := s.q.(*sqlx.Tx); nested {
		return fn(ctx, s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	txStore := &Store{db: s.db, q: tx, timeout: s.timeout}
	if err := fn(ctx, txStore); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
