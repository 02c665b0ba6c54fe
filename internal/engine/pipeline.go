package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/finpulse/finpulse/internal/persistence"
)

// FullReport bundles the three engine reports of one analysis run.
type FullReport struct {
	UserID        string             `json:"user_id"`
	GeneratedAt   time.Time          `json:"generated_at"`
	Aggregation   *AggregationReport `json:"aggregation,omitempty"`
	Pattern       *PatternReport     `json:"pattern,omitempty"`
	Risk          *RiskReport        `json:"risk,omitempty"`
	SignalsStored int                `json:"signals_stored"`
}

// Pipeline runs aggregation, pattern and risk analysis for one user.
// The engines are read-only over user state and fan out concurrently;
// signal writes serialize through the sink's dedup key.
type Pipeline struct {
	agg     *AggregationEngine
	pattern *PatternEngine
	risk    *RiskEngine
	log     zerolog.Logger
	now     func() time.Time
}

// NewPipeline wires all three engines over one store and sink.
func NewPipeline(store persistence.Store, sink SignalSink, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		agg:     NewAggregationEngine(store, sink, log),
		pattern: NewPatternEngine(store, sink, log),
		risk:    NewRiskEngine(store, sink, log),
		log:     log.With().Str("component", "pipeline").Logger(),
		now:     time.Now,
	}
}

// WithClock overrides the time source of every engine, for tests.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	p.agg.WithClock(now)
	p.pattern.WithClock(now)
	p.risk.WithClock(now)
	return p
}

// Run executes the full analysis for one user. The first engine error
// wins; the other reports are still returned when they completed.
func (p *Pipeline) Run(ctx context.Context, userID string, storeSignals bool) (*FullReport, error) {
	started := p.now()
	report := &FullReport{UserID: userID, GeneratedAt: started}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		opts := DefaultAggregationOptions()
		opts.StoreSignals = storeSignals
		r, err := p.agg.Run(ctx, userID, opts)
		if err != nil {
			fail(err)
			return
		}
		report.Aggregation = r
	}()
	go func() {
		defer wg.Done()
		opts := DefaultPatternOptions()
		opts.StoreSignals = storeSignals
		r, err := p.pattern.Run(ctx, userID, opts)
		if err != nil {
			fail(err)
			return
		}
		report.Pattern = r
	}()
	go func() {
		defer wg.Done()
		r, err := p.risk.Run(ctx, userID, storeSignals)
		if err != nil {
			fail(err)
			return
		}
		report.Risk = r
	}()
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	report.SignalsStored = report.Aggregation.SignalsStored +
		report.Pattern.SignalsStored + report.Risk.SignalsStored
	p.log.Info().Str("user_id", userID).
		Int("signals_stored", report.SignalsStored).
		Dur("took", time.Since(started)).
		Msg("analysis pipeline finished")
	return report, nil
}
