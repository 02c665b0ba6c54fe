package learn

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/persistence"
)

// minTypeWeight is the floor at or below which a suggestion type stays
// hidden.
const minTypeWeight = 0.1

// DailyCounter counts per-user surfacing events with a TTL. The Redis
// implementation backs the production path; tests use an in-memory one.
type DailyCounter interface {
	Bump(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RedisCounter implements DailyCounter on a Redis INCR + EXPIRE pair.
type RedisCounter struct {
	rdb redis.Cmdable
}

// NewRedisCounter wraps a Redis client as a surfacing counter.
func NewRedisCounter(rdb redis.Cmdable) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

func (c *RedisCounter) Bump(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to bump counter %s: %w", key, err)
	}
	if n == 1 {
		if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			return n, fmt.Errorf("failed to expire counter %s: %w", key, err)
		}
	}
	return n, nil
}

// Decision is the outcome of the surfacing gates.
type Decision struct {
	Show   bool   `json:"show"`
	Reason string `json:"reason,omitempty"`
}

// FrequencyController runs the ordered gates deciding whether a
// suggestion surfaces right now.
type FrequencyController struct {
	db      persistence.Store
	counter DailyCounter
	rules   *RulesEngine
	log     zerolog.Logger
	now     func() time.Time
}

// NewFrequencyController wires the gate chain. counter may be nil, in
// which case the daily cap gate is skipped.
func NewFrequencyController(db persistence.Store, counter DailyCounter, log zerolog.Logger) *FrequencyController {
	return &FrequencyController{
		db:      db,
		counter: counter,
		rules:   NewRulesEngine(),
		log:     log,
		now:     time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (c *FrequencyController) WithClock(now func() time.Time) *FrequencyController {
	c.now = now
	return c
}

// ShouldShow runs the gates in order: learning disabled bypasses them
// all, then quiet hours, daily cap, type weight, risk tolerance,
// minimum impact, and the rules engine. The first failing gate decides;
// a pass records the showing.
func (c *FrequencyController) ShouldShow(ctx context.Context, userID string, s *domain.PendingSuggestion) (Decision, error) {
	prefs, err := c.db.Preferences().GetOrCreate(ctx, userID)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to load preferences: %w", err)
	}
	now := c.now()

	if !prefs.Metadata.LearningEnabled {
		return Decision{Show: true, Reason: "learning_disabled"}, nil
	}

	if prefs.Global.QuietHours.Contains(now.Hour()) {
		return Decision{Reason: "quiet_hours"}, nil
	}

	if c.counter != nil {
		key := fmt.Sprintf("suggest:shown:%s:%s", userID, now.Format("2006-01-02"))
		n, err := c.counter.Bump(ctx, key, 24*time.Hour)
		if err != nil {
			// Redis being down must not hide suggestions.
			c.log.Warn().Err(err).Str("user_id", userID).Msg("daily counter unavailable, cap skipped")
		} else if n > int64(prefs.Global.SuggestionFrequency.DailyMax()) {
			return Decision{Reason: "daily_cap_reached"}, nil
		}
	}

	if prefs.TypePref(s.Type).Weight <= minTypeWeight {
		return Decision{Reason: "type_weight_low"}, nil
	}

	if riskRank(s.Metadata.RiskLevel) > toleranceRank(prefs.ImpactPreferences.MaxRiskTolerance) {
		return Decision{Reason: "risk_above_tolerance"}, nil
	}

	if amt := math.Abs(s.EstimatedImpact.Amount); amt > 0 && amt < prefs.ImpactPreferences.MinSavingsAmount {
		return Decision{Reason: "impact_below_minimum"}, nil
	}

	verdict := c.rules.Evaluate(prefs, s, now)
	if !verdict.ShouldShow {
		return Decision{Reason: "rule:" + verdict.BlockedBy}, nil
	}

	if err := c.recordShown(ctx, userID, s.Type, now); err != nil {
		return Decision{}, err
	}
	return Decision{Show: true}, nil
}

func (c *FrequencyController) recordShown(ctx context.Context, userID string, typ domain.SuggestionType, now time.Time) error {
	return c.db.WithTx(ctx, func(ctx context.Context, tx persistence.Store) error {
		prefs, err := tx.Preferences().GetOrCreate(ctx, userID)
		if err != nil {
			return err
		}
		prefs.TypePref(typ).LastShown = &now
		prefs.Global.TotalShown++
		prefs.UpdatedAt = now
		if err := tx.Preferences().Save(ctx, prefs); err != nil {
			return fmt.Errorf("failed to record showing: %w", err)
		}
		return nil
	})
}

func riskRank(r domain.RiskLevel) int {
	switch r {
	case domain.RiskLow:
		return 1
	case domain.RiskMedium:
		return 2
	case domain.RiskHigh:
		return 3
	case domain.RiskCritical:
		return 4
	}
	return 2
}

func toleranceRank(t domain.RiskTolerance) int {
	switch t {
	case domain.ToleranceLow:
		return 1
	case domain.ToleranceHigh:
		return 3
	default:
		return 2
	}
}
