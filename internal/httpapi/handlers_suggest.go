package httpapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/errs"
	"github.com/finpulse/finpulse/internal/suggest"
)

const defaultSuggestionLimit = 20

func (s *Server) handleListSuggestions(w http.ResponseWriter, r *http.Request) {
	var statuses []domain.SuggestionStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			statuses = append(statuses, domain.SuggestionStatus(strings.TrimSpace(part)))
		}
	}
	out, err := s.sugg.List(r.Context(), userID(r.Context()), statuses, defaultSuggestionLimit)
	if err != nil {
		writeErr(w, s.log, err, s.dev)
		return
	}
	writeData(w, http.StatusOK, out)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	if err := s.checkUserAction(r, "approve"); err != nil {
		writeErr(w, s.log, err, s.dev)
		return
	}
	uid := userID(r.Context())
	out, err := s.sugg.Approve(r.Context(), suggest.ApproveInput{
		UserID:       uid,
		SuggestionID: mux.Vars(r)["id"],
		By:           uid,
		Method:       "explicit",
		IP:           clientIP(r),
	})
	if err != nil {
		writeErr(w, s.log, err, s.dev)
		return
	}
	writeData(w, http.StatusOK, out)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	if err := s.checkUserAction(r, "reject"); err != nil {
		writeErr(w, s.log, err, s.dev)
		return
	}
	var body struct {
		Reason string `json:"reason,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &body); err != nil {
			writeErr(w, s.log, err, s.dev)
			return
		}
	}
	uid := userID(r.Context())
	if err := s.sugg.Reject(r.Context(), uid, mux.Vars(r)["id"], uid, body.Reason); err != nil {
		writeErr(w, s.log, err, s.dev)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"status": string(domain.StatusRejected)})
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	if err := s.checkUserAction(r, "apply"); err != nil {
		writeErr(w, s.log, err, s.dev)
		return
	}
	var body struct {
		DryRun bool `json:"dry_run,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &body); err != nil {
			writeErr(w, s.log, err, s.dev)
			return
		}
	}
	uid := userID(r.Context())
	out, err := s.sugg.Apply(r.Context(), suggest.ApplyInput{
		UserID:       uid,
		SuggestionID: mux.Vars(r)["id"],
		By:           uid,
		DryRun:       body.DryRun,
	})
	if err != nil {
		writeErr(w, s.log, err, s.dev)
		return
	}
	writeData(w, http.StatusOK, out)
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	if role(r.Context()) != "admin" {
		writeErr(w, s.log, errs.Permission("rollback requires the admin role"), s.dev)
		return
	}
	if err := s.checkUserAction(r, "rollback"); err != nil {
		writeErr(w, s.log, err, s.dev)
		return
	}
	var body struct {
		Reason string `json:"reason,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &body); err != nil {
			writeErr(w, s.log, err, s.dev)
			return
		}
	}
	uid := userID(r.Context())
	out, err := s.sugg.Rollback(r.Context(), suggest.RollbackInput{
		UserID:       uid,
		SuggestionID: mux.Vars(r)["id"],
		By:           uid,
		Reason:       body.Reason,
	})
	if err != nil {
		writeErr(w, s.log, err, s.dev)
		return
	}
	writeData(w, http.StatusOK, out)
}
