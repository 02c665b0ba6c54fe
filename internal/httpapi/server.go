// Package httpapi exposes the JSON API: ingestion, analysis, AI
// insights, the suggestion lifecycle, weekly summaries, feedback and
// notifications, all behind bearer auth and layered rate limits.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/finpulse/finpulse/internal/config"
	"github.com/finpulse/finpulse/internal/engine"
	"github.com/finpulse/finpulse/internal/ingest"
	"github.com/finpulse/finpulse/internal/insights"
	"github.com/finpulse/finpulse/internal/learn"
	"github.com/finpulse/finpulse/internal/metrics"
	"github.com/finpulse/finpulse/internal/notify"
	"github.com/finpulse/finpulse/internal/persistence"
	"github.com/finpulse/finpulse/internal/signalstore"
	"github.com/finpulse/finpulse/internal/suggest"
	"github.com/finpulse/finpulse/internal/weekly"
)

// Deps carries the services the handlers delegate to.
type Deps struct {
	DB       persistence.Store
	Ingest   *ingest.Service
	Pipeline *engine.Pipeline
	Signals  *signalstore.Store
	Insights *insights.Generator
	Suggest  *suggest.Engine
	Weekly   *weekly.SummaryGenerator
	Feedback *learn.FeedbackProcessor
	Notify   *notify.Dispatcher
	Metrics  *metrics.Registry
	Redis    redis.Cmdable // nil disables per-user action caps
}

// Server is the HTTP front of the application.
type Server struct {
	router *mux.Router
	server *http.Server

	db       persistence.Store
	ingest   *ingest.Service
	pipe     *engine.Pipeline
	signals  *signalstore.Store
	insights *insights.Generator
	sugg     *suggest.Engine
	weekly   *weekly.SummaryGenerator
	feedback *learn.FeedbackProcessor
	notify   *notify.Dispatcher
	met      *metrics.Registry

	ipLimits   *ipLimiter
	userLimits *userLimiter

	jwtSecret      string
	requestTimeout time.Duration
	shutdownGrace  time.Duration
	dev            bool

	log zerolog.Logger
	now func() time.Time
}

func NewServer(cfg *config.Config, deps Deps, log zerolog.Logger) *Server {
	logger := log.With().Str("component", "httpapi").Logger()
	s := &Server{
		router:         mux.NewRouter(),
		db:             deps.DB,
		ingest:         deps.Ingest,
		pipe:           deps.Pipeline,
		signals:        deps.Signals,
		insights:       deps.Insights,
		sugg:           deps.Suggest,
		weekly:         deps.Weekly,
		feedback:       deps.Feedback,
		notify:         deps.Notify,
		met:            deps.Metrics,
		ipLimits:       newIPLimiter(),
		userLimits:     newUserLimiter(deps.Redis, logger),
		jwtSecret:      cfg.Auth.JWTSecret,
		requestTimeout: cfg.HTTP.RequestTimeout(),
		shutdownGrace:  cfg.HTTP.ShutdownTimeout(),
		dev:            cfg.App.IsDevelopment(),
		log:            logger,
		now:            time.Now,
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.HTTP.ReadTimeout(),
		WriteTimeout: cfg.HTTP.WriteTimeout(),
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.timeoutMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.met.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.ipLimitMiddleware(classGeneral))
	api.Use(s.authMiddleware)

	ing := api.PathPrefix("/ingestion").Subrouter()
	ing.Use(s.ipLimitMiddleware(classIngestion))
	ing.HandleFunc("/manual", s.handleIngestManual).Methods(http.MethodPost)
	ing.HandleFunc("/manual/bulk", s.handleIngestBulk).Methods(http.MethodPost)

	csv := api.PathPrefix("/ingestion/csv").Subrouter()
	csv.Use(s.ipLimitMiddleware(classCSV))
	csv.HandleFunc("/preview", s.handleCSVPreview).Methods(http.MethodPost)
	csv.HandleFunc("/import", s.handleCSVImport).Methods(http.MethodPost)

	api.HandleFunc("/analysis/full", s.handleAnalysisFull).Methods(http.MethodGet)
	api.HandleFunc("/analysis/dashboard", s.handleDashboard).Methods(http.MethodGet)
	api.HandleFunc("/analysis/signals", s.handleListSignals).Methods(http.MethodGet)
	api.HandleFunc("/analysis/signals/{id}/status", s.handleSignalStatus).Methods(http.MethodPatch)

	ai := api.PathPrefix("/ai").Subrouter()
	ai.Use(s.ipLimitMiddleware(classAI))
	ai.HandleFunc("/insights/generate", s.handleGenerateInsights).Methods(http.MethodPost)

	api.HandleFunc("/suggestions", s.handleListSuggestions).Methods(http.MethodGet)
	api.HandleFunc("/suggestions/{id}/approve", s.handleApprove).Methods(http.MethodPost)
	api.HandleFunc("/suggestions/{id}/reject", s.handleReject).Methods(http.MethodPost)
	api.HandleFunc("/suggestions/{id}/apply", s.handleApply).Methods(http.MethodPost)
	api.HandleFunc("/suggestions/{id}/rollback", s.handleRollback).Methods(http.MethodPost)

	api.HandleFunc("/weekly/latest", s.handleWeeklyLatest).Methods(http.MethodGet)
	api.HandleFunc("/weekly/generate", s.handleWeeklyGenerate).Methods(http.MethodPost)

	api.HandleFunc("/learning/feedback/{id}", s.handleFeedback).Methods(http.MethodPost)

	api.HandleFunc("/notifications", s.handleNotifications).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{id}/read", s.handleNotificationRead).Methods(http.MethodPost)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"error":"route not found"}`))
	})
}

// Handler exposes the routed handler, for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests within the configured grace.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.shutdownGrace)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}

// routeTemplate resolves the mux path template for metric labels, so
// /suggestions/abc123/approve does not explode cardinality.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
