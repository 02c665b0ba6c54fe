// Package signalstore manages the lifecycle of financial signals:
// deduplicated storage, status changes, related lookups and TTL
// archival.
package signalstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/errs"
	"github.com/finpulse/finpulse/internal/persistence"
)

// Store deduplicates and persists signals emitted by the engines.
type Store struct {
	db  persistence.Store
	log zerolog.Logger
	now func() time.Time
}

// New wires a signal store over the persistence layer.
func New(db persistence.Store, log zerolog.Logger) *Store {
	return &Store{db: db, log: log, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// StoreSignal persists one signal, skipping it when an active signal
// with the same identity hash already exists.
func (s *Store) StoreSignal(ctx context.Context, signal domain.FinancialSignal) (bool, error) {
	n, err := s.StoreSignals(ctx, []domain.FinancialSignal{signal})
	return n == 1, err
}

// StoreSignals persists a batch, skipping duplicates of active signals.
// The read of existing hashes and the inserts share one transaction so
// concurrent engine runs cannot double-store. Returns how many signals
// were actually written.
func (s *Store) StoreSignals(ctx context.Context, signals []domain.FinancialSignal) (int, error) {
	if len(signals) == 0 {
		return 0, nil
	}

	var stored int
	err := s.db.WithTx(ctx, func(ctx context.Context, tx persistence.Store) error {
		stored = 0
		byUser := make(map[string]map[string]bool)

		for i := range signals {
			sig := signals[i]
			if err := s.prepare(&sig); err != nil {
				return err
			}

			active, ok := byUser[sig.UserID]
			if !ok {
				var err error
				active, err = tx.Signals().ActiveHashes(ctx, sig.UserID)
				if err != nil {
					return fmt.Errorf("failed to load active hashes: %w", err)
				}
				byUser[sig.UserID] = active
			}

			hash := sig.Data.Metadata.SignalHash
			if active[hash] {
				continue
			}

			if err := tx.Signals().Insert(ctx, &sig); err != nil {
				return err
			}
			active[hash] = true
			stored++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Debug().
		Int("offered", len(signals)).
		Int("stored", stored).
		Msg("signal batch stored")

	return stored, nil
}

// prepare fills derived fields and validates identity.
func (s *Store) prepare(sig *domain.FinancialSignal) error {
	if sig.UserID == "" {
		return errs.Validation("signal user id is required", nil)
	}
	if sig.Type == "" {
		return errs.Validation("signal type is required", nil)
	}
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = s.now()
	}
	if sig.ExpiresAt.IsZero() {
		sig.ExpiresAt = domain.CalculateExpiry(sig.CreatedAt, domain.DefaultSignalTTL)
	}
	if sig.Data.Metadata.SignalHash == "" {
		sig.Data.Metadata.SignalHash = sig.Fingerprint()
	}
	sig.IsActive = true
	return nil
}

// UserSignals lists a user's signals ordered by priority then recency.
func (s *Store) UserSignals(ctx context.Context, userID string, q persistence.SignalQuery) ([]domain.FinancialSignal, error) {
	return s.db.Signals().List(ctx, userID, q)
}

// SignalByID retrieves one signal scoped to its owner.
func (s *Store) SignalByID(ctx context.Context, userID, id string) (*domain.FinancialSignal, error) {
	return s.db.Signals().GetByID(ctx, userID, id)
}

// UpdateStatus flips a signal between active, dismissed and actioned.
func (s *Store) UpdateStatus(ctx context.Context, userID, id string, status domain.SignalStatus) error {
	if err := s.db.Signals().UpdateStatus(ctx, userID, id, status, s.now()); err != nil {
		return err
	}
	s.log.Info().
		Str("user_id", userID).
		Str("signal_id", id).
		Str("status", string(status)).
		Msg("signal status updated")
	return nil
}

// RelatedSignals returns active signals sharing the subject signal's
// category, or its type when it has no category.
func (s *Store) RelatedSignals(ctx context.Context, userID, id string, limit int) ([]domain.FinancialSignal, error) {
	subject, err := s.db.Signals().GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	q := persistence.SignalQuery{Limit: limit + 1}
	if subject.Category != "" {
		q.Category = subject.Category
	} else {
		q.Types = []domain.SignalType{subject.Type}
	}

	candidates, err := s.db.Signals().List(ctx, userID, q)
	if err != nil {
		return nil, err
	}

	related := make([]domain.FinancialSignal, 0, limit)
	for _, c := range candidates {
		if c.ID == subject.ID {
			continue
		}
		related = append(related, c)
		if limit > 0 && len(related) >= limit {
			break
		}
	}
	return related, nil
}

// ArchiveOld deactivates signals past their expiry. Retention age is
// baked into each signal's expires_at at creation time.
func (s *Store) ArchiveOld(ctx context.Context) (int64, error) {
	n, err := s.db.Signals().ArchiveExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info().Int64("archived", n).Msg("expired signals archived")
	}
	return n, nil
}

// Stats summarizes a user's recent signal activity.
type Stats struct {
	Total      int                       `json:"total"`
	Active     int                       `json:"active"`
	Dismissed  int                       `json:"dismissed"`
	Actioned   int                       `json:"actioned"`
	ByType     map[domain.SignalType]int `json:"by_type"`
	ByPriority map[int]int               `json:"by_priority"`
}

// UserStats aggregates counts over the trailing window.
func (s *Store) UserStats(ctx context.Context, userID string, days int) (*Stats, error) {
	if days <= 0 {
		days = 30
	}
	signals, err := s.db.Signals().List(ctx, userID, persistence.SignalQuery{
		IncludeInactive: true,
		Since:           s.now().AddDate(0, 0, -days),
	})
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		ByType:     make(map[domain.SignalType]int),
		ByPriority: make(map[int]int),
	}
	for _, sig := range signals {
		stats.Total++
		stats.ByType[sig.Type]++
		stats.ByPriority[sig.Priority]++
		switch {
		case sig.ActionedAt != nil:
			stats.Actioned++
		case sig.DismissedAt != nil:
			stats.Dismissed++
		case sig.IsActive:
			stats.Active++
		}
	}
	return stats, nil
}
