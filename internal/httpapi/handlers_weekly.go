package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/errs"
	"github.com/finpulse/finpulse/internal/learn"
)

func (s *Server) handleWeeklyLatest(w http.ResponseWriter, r *http.Request) {
	summary, err := s.weekly.Latest(r.Context(), userID(r.Context()))
	if err != nil {
		writeErr(w, s.log, err, s.dev)
		return
	}
	writeData(w, http.StatusOK, summary)
}

func (s *Server) handleWeeklyGenerate(w http.ResponseWriter, r *http.Request) {
	summary, err := s.weekly.Generate(r.Context(), userID(r.Context()), s.now())
	if err != nil {
		writeErr(w, s.log, err, s.dev)
		return
	}
	writeData(w, http.StatusCreated, summary)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Decision      domain.FeedbackDecision `json:"decision"`
		Reasons       domain.FeedbackReasons  `json:"reasons,omitempty"`
		Modifications *domain.Modifications   `json:"modifications,omitempty"`
		ViewedMs      int64                   `json:"viewed_ms,omitempty"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, s.log, err, s.dev)
		return
	}

	fb, err := s.feedback.Process(r.Context(), learn.FeedbackInput{
		UserID:        userID(r.Context()),
		SuggestionID:  mux.Vars(r)["id"],
		Decision:      body.Decision,
		Reasons:       body.Reasons,
		Modifications: body.Modifications,
		ViewedMs:      body.ViewedMs,
	})
	if err != nil {
		writeErr(w, s.log, err, s.dev)
		return
	}
	writeData(w, http.StatusCreated, fb)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	unreadOnly := r.URL.Query().Get("unread") == "true"
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeErr(w, s.log, errs.Validationf("invalid limit %q", raw), s.dev)
			return
		}
		limit = n
	}
	inbox, err := s.notify.Inbox(r.Context(), userID(r.Context()), unreadOnly, limit)
	if err != nil {
		writeErr(w, s.log, err, s.dev)
		return
	}
	writeData(w, http.StatusOK, inbox)
}

func (s *Server) handleNotificationRead(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.notify.MarkRead(r.Context(), userID(r.Context()), id); err != nil {
		writeErr(w, s.log, err, s.dev)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"id": id})
}
