// Package scheduler drives the recurring background work: the Monday
// weekly run (analysis pipeline, weekly summary, notification) and the
// daily TTL sweeps. Users are processed in small batches with a delay
// between batches so a large tenant base cannot saturate the database.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/finpulse/finpulse/internal/config"
	"github.com/finpulse/finpulse/internal/engine"
	"github.com/finpulse/finpulse/internal/metrics"
	"github.com/finpulse/finpulse/internal/notify"
	"github.com/finpulse/finpulse/internal/persistence"
	"github.com/finpulse/finpulse/internal/signalstore"
	"github.com/finpulse/finpulse/internal/suggest"
	"github.com/finpulse/finpulse/internal/weekly"
)

const (
	auditRetentionDays = 365
	expirySweepLimit   = 500
)

// auditCleaner is the slice of the audit trail the daily sweep needs.
type auditCleaner interface {
	CleanOldLogs(ctx context.Context, retentionDays int) (int64, error)
}

// Deps carries every service the scheduler calls into.
type Deps struct {
	DB       persistence.Store
	Pipeline *engine.Pipeline
	Summary  *weekly.SummaryGenerator
	Notify   *notify.Dispatcher
	Suggest  *suggest.Engine
	Signals  *signalstore.Store
	Audit    auditCleaner
	Metrics  *metrics.Registry
}

// Scheduler owns the cron runner and the jobs it fires.
type Scheduler struct {
	db      persistence.Store
	pipe    *engine.Pipeline
	summary *weekly.SummaryGenerator
	dsp     *notify.Dispatcher
	sugg    *suggest.Engine
	signals *signalstore.Store
	trail   auditCleaner
	met     *metrics.Registry
	cfg     config.ScheduleConfig
	cron    *cron.Cron
	log     zerolog.Logger
	now     func() time.Time

	runMu   sync.Mutex
	running bool

	failMu sync.Mutex
	failed map[string]time.Time
}

func New(deps Deps, cfg config.ScheduleConfig, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		db:      deps.DB,
		pipe:    deps.Pipeline,
		summary: deps.Summary,
		dsp:     deps.Notify,
		sugg:    deps.Suggest,
		signals: deps.Signals,
		trail:   deps.Audit,
		met:     deps.Metrics,
		cfg:     cfg,
		cron:    cron.New(),
		log:     log.With().Str("component", "scheduler").Logger(),
		now:     time.Now,
		failed:  make(map[string]time.Time),
	}
}

// WithClock overrides the time source, for tests.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Start registers the cron entries and begins firing them. There is no
// startup backfill; missed runs are only recovered through RetryFailed.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.WeeklyCron, func() { s.RunWeekly(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule weekly job: %w", err)
	}
	if _, err := s.cron.AddFunc(s.cfg.DailyCron, func() { s.RunDailySweep(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule daily sweep: %w", err)
	}
	s.cron.Start()
	s.log.Info().
		Str("weekly_cron", s.cfg.WeeklyCron).
		Str("daily_cron", s.cfg.DailyCron).
		Int("batch_size", s.cfg.BatchSize).
		Msg("scheduler started")
	return nil
}

// Stop halts the cron runner and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// RunWeekly processes every user: full analysis, weekly summary,
// summary notification. One user's failure never aborts the batch; the
// user is remembered for RetryFailed. Overlapping invocations are
// rejected.
func (s *Scheduler) RunWeekly(ctx context.Context) {
	if !s.tryBegin() {
		s.log.Warn().Msg("weekly run already in progress, skipping")
		s.met.SchedulerRuns.WithLabelValues("weekly", "skipped").Inc()
		return
	}
	defer s.end()

	started := s.now()
	ids, err := s.db.Users().ListIDs(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list users for weekly run")
		s.met.SchedulerRuns.WithLabelValues("weekly", "error").Inc()
		return
	}

	processed, failures := s.runBatches(ctx, ids)

	result := "ok"
	if failures > 0 {
		result = "partial"
	}
	s.met.SchedulerRuns.WithLabelValues("weekly", result).Inc()
	s.log.Info().
		Int("users", len(ids)).
		Int("processed", processed).
		Int("failures", failures).
		Dur("took", time.Since(started)).
		Msg("weekly run finished")
}

// RetryFailed reprocesses users whose last weekly run failed within the
// past daysBack days. Successful retries are forgotten.
func (s *Scheduler) RetryFailed(ctx context.Context, daysBack int) {
	cutoff := s.now().AddDate(0, 0, -daysBack)

	s.failMu.Lock()
	ids := make([]string, 0, len(s.failed))
	for id, at := range s.failed {
		if at.After(cutoff) {
			ids = append(ids, id)
		}
	}
	s.failMu.Unlock()

	if len(ids) == 0 {
		return
	}
	s.log.Info().Int("users", len(ids)).Int("days_back", daysBack).Msg("retrying failed weekly runs")
	s.runBatches(ctx, ids)
}

func (s *Scheduler) runBatches(ctx context.Context, ids []string) (processed, failures int) {
	for start := 0; start < len(ids); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(ids) {
			end = len(ids)
		}
		for _, id := range ids[start:end] {
			if ctx.Err() != nil {
				return processed, failures
			}
			if err := s.processUser(ctx, id); err != nil {
				failures++
				s.met.SchedulerUserFailures.Inc()
				s.recordFailure(id)
				s.log.Error().Err(err).Str("user_id", id).Msg("weekly run failed for user")
				continue
			}
			processed++
			s.clearFailure(id)
		}
		if end < len(ids) {
			select {
			case <-time.After(s.cfg.BatchDelay()):
			case <-ctx.Done():
				return processed, failures
			}
		}
	}
	return processed, failures
}

func (s *Scheduler) processUser(ctx context.Context, userID string) error {
	if _, err := s.pipe.Run(ctx, userID, true); err != nil {
		return fmt.Errorf("analysis pipeline: %w", err)
	}
	summary, err := s.summary.Generate(ctx, userID, s.now())
	if err != nil {
		return fmt.Errorf("weekly summary: %w", err)
	}
	if err := s.dsp.NotifyWeeklySummary(ctx, summary); err != nil {
		// the summary itself is stored, a lost notification is not fatal
		s.log.Warn().Err(err).Str("user_id", userID).Msg("failed to send weekly summary notification")
	}
	return nil
}

// RunDailySweep expires and archives everything past its TTL: signals,
// pending suggestions, weekly summaries, notifications and old audit
// records. Each sweep runs independently of the others' failures.
func (s *Scheduler) RunDailySweep(ctx context.Context) {
	started := s.now()
	var failed bool

	archived, err := s.signals.ArchiveOld(ctx)
	if err != nil {
		failed = true
		s.log.Error().Err(err).Msg("failed to archive expired signals")
	}
	expired, err := s.sugg.ExpireDue(ctx, expirySweepLimit)
	if err != nil {
		failed = true
		s.log.Error().Err(err).Msg("failed to expire due suggestions")
	}
	summaries, err := s.summary.CleanupExpired(ctx)
	if err != nil {
		failed = true
		s.log.Error().Err(err).Msg("failed to clean expired summaries")
	}
	notifications, err := s.dsp.CleanupExpired(ctx)
	if err != nil {
		failed = true
		s.log.Error().Err(err).Msg("failed to clean expired notifications")
	}
	audits, err := s.trail.CleanOldLogs(ctx, auditRetentionDays)
	if err != nil {
		failed = true
		s.log.Error().Err(err).Msg("failed to clean old audit records")
	}

	result := "ok"
	if failed {
		result = "partial"
	}
	s.met.SchedulerRuns.WithLabelValues("daily_sweep", result).Inc()
	s.log.Info().
		Int64("signals_archived", archived).
		Int("suggestions_expired", expired).
		Int64("summaries_deleted", summaries).
		Int64("notifications_deleted", notifications).
		Int64("audit_deleted", audits).
		Dur("took", time.Since(started)).
		Msg("daily sweep finished")
}

func (s *Scheduler) tryBegin() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *Scheduler) end() {
	s.runMu.Lock()
	s.running = false
	s.runMu.Unlock()
}

func (s *Scheduler) recordFailure(userID string) {
	s.failMu.Lock()
	s.failed[userID] = s.now()
	s.failMu.Unlock()
}

func (s *Scheduler) clearFailure(userID string) {
	s.failMu.Lock()
	delete(s.failed, userID)
	s.failMu.Unlock()
}
