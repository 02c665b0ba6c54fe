// Package ingest brings transactions into the store: one at a time,
// in bulk, or mapped out of user-supplied CSV text.
package ingest

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/errs"
	"github.com/finpulse/finpulse/internal/persistence"
)

// MaxBulkSize caps one bulk ingestion call.
const MaxBulkSize = 1000

// Service validates and persists incoming transactions.
type Service struct {
	db  persistence.Store
	log zerolog.Logger
	now func() time.Time
}

func NewService(db persistence.Store, log zerolog.Logger) *Service {
	return &Service{db: db, log: log.With().Str("component", "ingest").Logger(), now: time.Now}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Input is one incoming transaction before normalization.
type Input struct {
	Amount        float64                  `json:"amount"`
	Type          domain.TransactionType   `json:"type"`
	CategoryID    string                   `json:"category_id"`
	Description   string                   `json:"description"`
	Date          time.Time                `json:"date"`
	PaymentMethod domain.PaymentMethod     `json:"payment_method,omitempty"`
	Status        domain.TransactionStatus `json:"status,omitempty"`
	Tags          []string                 `json:"tags,omitempty"`
	Notes         string                   `json:"notes,omitempty"`
	Merchant      domain.Merchant          `json:"merchant,omitempty"`
}

// Insert ingests one transaction.
func (s *Service) Insert(ctx context.Context, userID string, in Input) (*domain.Transaction, error) {
	tx, err := s.build(ctx, userID, in)
	if err != nil {
		return nil, err
	}
	if err := s.db.Transactions().Insert(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}
	s.log.Debug().Str("user_id", userID).Str("transaction_id", tx.ID).Float64("amount", tx.Amount).Msg("transaction ingested")
	return tx, nil
}

// InsertBulk ingests up to MaxBulkSize transactions atomically. Any
// invalid row fails the whole batch with its index in the details.
func (s *Service) InsertBulk(ctx context.Context, userID string, ins []Input) ([]domain.Transaction, error) {
	if len(ins) == 0 {
		return nil, errs.Validation("bulk ingestion requires at least one transaction", nil)
	}
	if len(ins) > MaxBulkSize {
		return nil, errs.Validation("bulk ingestion exceeds the batch cap", map[string]string{
			"limit": strconv.Itoa(MaxBulkSize),
			"got":   strconv.Itoa(len(ins)),
		})
	}

	txs := make([]domain.Transaction, 0, len(ins))
	for i, in := range ins {
		tx, err := s.build(ctx, userID, in)
		if err != nil {
			return nil, errs.Validation(fmt.Sprintf("transaction %d is invalid: %v", i, err), map[string]string{
				"index": strconv.Itoa(i),
			})
		}
		txs = append(txs, *tx)
	}
	if err := s.db.Transactions().InsertBatch(ctx, txs); err != nil {
		return nil, fmt.Errorf("failed to insert transaction batch: %w", err)
	}
	s.log.Info().Str("user_id", userID).Int("count", len(txs)).Msg("bulk ingestion committed")
	return txs, nil
}

// build normalizes an input into a persistable transaction and checks
// that the referenced category belongs to the user.
func (s *Service) build(ctx context.Context, userID string, in Input) (*domain.Transaction, error) {
	now := s.now()
	tx := &domain.Transaction{
		ID:            uuid.NewString(),
		UserID:        userID,
		Amount:        in.Amount,
		Type:          in.Type,
		CategoryID:    in.CategoryID,
		Description:   in.Description,
		Date:          in.Date,
		PaymentMethod: in.PaymentMethod,
		Status:        in.Status,
		Tags:          in.Tags,
		Notes:         in.Notes,
		Merchant:      in.Merchant,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if tx.Status == "" {
		tx.Status = domain.TxCompleted
	}
	if tx.PaymentMethod == "" {
		tx.PaymentMethod = domain.PayOther
	}
	if tx.Date.IsZero() {
		return nil, errs.Validation("transaction date is required", nil)
	}
	if err := tx.Validate(); err != nil {
		return nil, errs.Validation(err.Error(), nil)
	}
	if tx.CategoryID != "" {
		if _, err := s.db.Categories().GetByID(ctx, userID, tx.CategoryID); err != nil {
			if errs.Is(err, errs.KindNotFound) {
				return nil, errs.Validation("category does not exist", map[string]string{"category_id": tx.CategoryID})
			}
			return nil, fmt.Errorf("failed to resolve category: %w", err)
		}
	}
	return tx, nil
}
