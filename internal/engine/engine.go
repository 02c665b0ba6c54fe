// Package engine hosts the analysis engines. Engines consume read-only
// user state and emit financial signals; they never mutate domain
// entities. Storage and deduplication belong to the signal store.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/finpulse/finpulse/internal/domain"
)

// SignalSink receives emitted signals. The signal store implements it;
// engines stay decoupled from storage.
type SignalSink interface {
	StoreSignals(ctx context.Context, signals []domain.FinancialSignal) (stored int, err error)
}

// discardSink drops signals, used when a run requests analysis only.
type discardSink struct{}

func (discardSink) StoreSignals(ctx context.Context, signals []domain.FinancialSignal) (int, error) {
	return 0, nil
}

// newSignal builds a deterministic signal with its dedup hash filled in.
func newSignal(userID string, typ domain.SignalType, name, category string, start, end time.Time, engineName string) domain.FinancialSignal {
	now := time.Now()
	s := domain.FinancialSignal{
		ID:         uuid.NewString(),
		UserID:     userID,
		Type:       typ,
		Name:       name,
		Category:   category,
		Confidence: 100,
		Period: domain.SignalPeriod{
			StartDate: start,
			EndDate:   end,
		},
		Priority:  3,
		IsActive:  true,
		CreatedAt: now,
		ExpiresAt: domain.CalculateExpiry(now, domain.DefaultSignalTTL),
	}
	s.Data.Metadata.Engine = engineName
	s.Data.Metadata.SignalHash = s.Fingerprint()
	return s
}

func ptr(v float64) *float64 { return &v }
