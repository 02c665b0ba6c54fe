package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// SignalType enumerates deterministic findings the analysis engines emit.
type SignalType string

const (
	SignalCategoryAggregation SignalType = "category_aggregation"
	SignalCategoryDelta       SignalType = "category_delta"
	SignalGrowthTrend         SignalType = "growth_trend"
	SignalSpendingCluster     SignalType = "spending_cluster"
	SignalBudgetDrift         SignalType = "budget_drift"
	SignalGoalUnderfunding    SignalType = "goal_underfunding"
	SignalIncomeStability     SignalType = "income_stability"
	SignalExpenseVolatility   SignalType = "expense_volatility"
	SignalRiskDetected        SignalType = "risk_detected"
)

// SignalValue carries the numeric finding of a signal.
type SignalValue struct {
	Current    float64  `json:"current"`
	Previous   *float64 `json:"previous,omitempty"`
	Delta      *float64 `json:"delta,omitempty"`
	Percentage *float64 `json:"percentage,omitempty"`
}

// SignalPeriod bounds the window the signal was computed over.
type SignalPeriod struct {
	StartDate       time.Time  `json:"start_date"`
	EndDate         time.Time  `json:"end_date"`
	ComparisonStart *time.Time `json:"comparison_start,omitempty"`
	ComparisonEnd   *time.Time `json:"comparison_end,omitempty"`
}

// SignalData carries raw and aggregated supporting evidence.
type SignalData struct {
	Raw        map[string]float64 `json:"raw,omitempty"`
	Aggregated map[string]float64 `json:"aggregated,omitempty"`
	Metadata   SignalMetadata     `json:"metadata"`
}

// SignalMetadata holds the dedup hash and engine attribution.
type SignalMetadata struct {
	SignalHash string `json:"signal_hash"`
	Engine     string `json:"engine,omitempty"`
}

// SignalStatus is the review state of a stored signal.
type SignalStatus string

const (
	SignalActive    SignalStatus = "active"
	SignalDismissed SignalStatus = "dismissed"
	SignalActioned  SignalStatus = "actioned"
)

// FinancialSignal is a deterministic, deduplicated, expirable finding.
// Signals are append-only; state changes flip IsActive rather than rewrite.
type FinancialSignal struct {
	ID          string       `json:"id" db:"id"`
	UserID      string       `json:"user_id" db:"user_id"`
	Type        SignalType   `json:"type" db:"type"`
	Name        string       `json:"name" db:"name"`
	Value       SignalValue  `json:"value"`
	Confidence  float64      `json:"confidence" db:"confidence"`
	Category    string       `json:"category,omitempty" db:"category"`
	Period      SignalPeriod `json:"period"`
	Data        SignalData   `json:"data"`
	Priority    int          `json:"priority" db:"priority"`
	Tags        []string     `json:"tags,omitempty"`
	IsActive    bool         `json:"is_active" db:"is_active"`
	DismissedAt *time.Time   `json:"dismissed_at,omitempty" db:"dismissed_at"`
	ActionedAt  *time.Time   `json:"actioned_at,omitempty" db:"actioned_at"`
	ExpiresAt   time.Time    `json:"expires_at" db:"expires_at"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
}

// DefaultSignalTTL bounds how long signals stay queryable.
const DefaultSignalTTL = 90 * 24 * time.Hour

// ComputeSignalHash derives the dedup key from the identity tuple.
// It must be stable across processes.
func ComputeSignalHash(userID string, typ SignalType, category string, periodStart, periodEnd time.Time) string {
	key := fmt.Sprintf("%s|%s|%s|%s|%s",
		userID, typ, category,
		periodStart.UTC().Format(time.RFC3339),
		periodEnd.UTC().Format(time.RFC3339))
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Fingerprint fills in the signal hash from the identity tuple.
func (s *FinancialSignal) Fingerprint() string {
	return ComputeSignalHash(s.UserID, s.Type, s.Category, s.Period.StartDate, s.Period.EndDate)
}

// CalculateExpiry returns the expiration for a signal created at the given
// time, honoring a per-signal TTL override.
func CalculateExpiry(createdAt time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		ttl = DefaultSignalTTL
	}
	return createdAt.Add(ttl)
}
