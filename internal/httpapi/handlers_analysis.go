package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/errs"
	"github.com/finpulse/finpulse/internal/persistence"
)

const (
	defaultSignalLimit   = 50
	dashboardSignalLimit = 10
	dashboardStatsDays   = 30
)

func (s *Server) handleAnalysisFull(w http.ResponseWriter, r *http.Request) {
	store := r.URL.Query().Get("store") != "false"
	report, err := s.pipe.Run(r.Context(), userID(r.Context()), store)
	if err != nil {
		writeErr(w, s.log, err, s.dev)
		return
	}
	writeData(w, http.StatusOK, report)
}

// handleDashboard returns the condensed home view: signal stats over
// the last month, the highest-priority active signals and the latest
// weekly summary when one exists.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := userID(ctx)

	stats, err := s.signals.UserStats(ctx, uid, dashboardStatsDays)
	if err != nil {
		writeErr(w, s.log, err, s.dev)
		return
	}
	top, err := s.signals.UserSignals(ctx, uid, persistence.SignalQuery{Limit: dashboardSignalLimit})
	if err != nil {
		writeErr(w, s.log, err, s.dev)
		return
	}
	summary, err := s.weekly.Latest(ctx, uid)
	if err != nil && !errs.Is(err, errs.KindNotFound) {
		writeErr(w, s.log, err, s.dev)
		return
	}

	writeData(w, http.StatusOK, map[string]any{
		"signal_stats": stats,
		"top_signals":  top,
		"weekly":       summary,
	})
}

func (s *Server) handleListSignals(w http.ResponseWriter, r *http.Request) {
	q := persistence.SignalQuery{Limit: defaultSignalLimit}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeErr(w, s.log, errs.Validationf("invalid limit %q", raw), s.dev)
			return
		}
		q.Limit = n
	}
	if typ := r.URL.Query().Get("type"); typ != "" {
		q.Types = []domain.SignalType{domain.SignalType(typ)}
	}
	if cat := r.URL.Query().Get("category"); cat != "" {
		q.Category = cat
	}

	signals, err := s.signals.UserSignals(r.Context(), userID(r.Context()), q)
	if err != nil {
		writeErr(w, s.log, err, s.dev)
		return
	}
	writeData(w, http.StatusOK, signals)
}

func (s *Server) handleSignalStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status domain.SignalStatus `json:"status"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, s.log, err, s.dev)
		return
	}
	switch body.Status {
	case domain.SignalActive, domain.SignalDismissed, domain.SignalActioned:
	default:
		writeErr(w, s.log, errs.Validationf("unknown signal status %q", body.Status), s.dev)
		return
	}

	id := mux.Vars(r)["id"]
	if err := s.signals.UpdateStatus(r.Context(), userID(r.Context()), id, body.Status); err != nil {
		writeErr(w, s.log, err, s.dev)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"id": id, "status": string(body.Status)})
}

func (s *Server) handleGenerateInsights(w http.ResponseWriter, r *http.Request) {
	out, err := s.insights.Generate(r.Context(), userID(r.Context()))
	if err != nil {
		writeErr(w, s.log, err, s.dev)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"insights": out})
}
