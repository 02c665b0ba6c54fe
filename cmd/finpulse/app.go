package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/finpulse/finpulse/internal/audit"
	"github.com/finpulse/finpulse/internal/config"
	"github.com/finpulse/finpulse/internal/engine"
	"github.com/finpulse/finpulse/internal/ingest"
	"github.com/finpulse/finpulse/internal/insights"
	"github.com/finpulse/finpulse/internal/learn"
	"github.com/finpulse/finpulse/internal/llm"
	"github.com/finpulse/finpulse/internal/metrics"
	"github.com/finpulse/finpulse/internal/notify"
	"github.com/finpulse/finpulse/internal/persistence/postgres"
	"github.com/finpulse/finpulse/internal/signalstore"
	"github.com/finpulse/finpulse/internal/suggest"
	"github.com/finpulse/finpulse/internal/weekly"
)

// app bundles the wired service graph behind every command.
type app struct {
	cfg *config.Config
	db  *postgres.Store
	rdb *redis.Client

	signals  *signalstore.Store
	pipeline *engine.Pipeline
	trail    *audit.Trail
	suggest  *suggest.Engine
	ingest   *ingest.Service
	weekly   *weekly.SummaryGenerator
	insights *insights.Generator
	feedback *learn.FeedbackProcessor
	adjuster *learn.WeightAdjuster
	notify   *notify.Dispatcher
	model    *llm.Gemini
	metrics  *metrics.Registry
}

// buildApp loads configuration and wires the service graph. The LLM
// client and Redis are optional; everything else is required.
func buildApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	db, err := postgres.NewStore(cfg.Database.URL, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		rdb = redis.NewClient(opts)
	}

	var model *llm.Gemini
	if cfg.LLM.APIKey != "" {
		model, err = llm.NewGemini(ctx, llm.GeminiConfig{
			APIKey:     cfg.LLM.APIKey,
			Model:      cfg.LLM.Model,
			Timeout:    cfg.LLM.Timeout(),
			MaxRetries: cfg.LLM.MaxRetries,
		}, log.Logger)
		if err != nil {
			return nil, err
		}
	} else {
		log.Warn().Msg("no LLM api key configured, narrative features degrade to fallbacks")
	}

	logger := log.Logger
	signals := signalstore.New(db, logger)
	trail := audit.NewTrail(db, logger)

	a := &app{
		cfg:      cfg,
		db:       db,
		rdb:      rdb,
		signals:  signals,
		pipeline: engine.NewPipeline(db, signals, logger),
		trail:    trail,
		suggest:  suggest.NewEngine(db, trail, logger),
		ingest:   ingest.NewService(db, logger),
		feedback: learn.NewFeedbackProcessor(db, trail, logger),
		adjuster: learn.NewWeightAdjuster(db, logger),
		notify:   notify.NewDispatcher(db, logger),
		model:    model,
		metrics:  metrics.New(),
	}

	var client llm.Client
	if model != nil {
		client = model
	}
	a.weekly = weekly.NewSummaryGenerator(db, client, logger)
	a.insights = insights.NewGenerator(db, client, logger)
	return a, nil
}

func (a *app) close() {
	if a.model != nil {
		_ = a.model.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	_ = a.db.Close()
}
