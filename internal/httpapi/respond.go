package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/finpulse/finpulse/internal/errs"
)

// envelope is the uniform response shape for every endpoint.
type envelope struct {
	Success bool              `json:"success"`
	Data    any               `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

// writeErr maps the error taxonomy onto HTTP status codes and renders
// the failure envelope. Stack traces only leave the process in
// development mode.
func writeErr(w http.ResponseWriter, log zerolog.Logger, err error, dev bool) {
	status := statusFor(errs.KindOf(err))

	out := envelope{Error: "internal error"}
	var e *errs.Error
	if errors.As(err, &e) {
		out.Error = e.Message
		out.Details = e.Details
		if !e.ResetAt.IsZero() {
			if out.Details == nil {
				out.Details = make(map[string]string, 1)
			}
			out.Details["reset_at"] = e.ResetAt.UTC().Format(time.RFC3339)
		}
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
		if dev {
			if out.Details == nil {
				out.Details = make(map[string]string, 2)
			}
			out.Details["cause"] = err.Error()
			out.Details["stack"] = string(debug.Stack())
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(out)
}

func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindStateMachine, errs.KindConcurrency:
		return http.StatusConflict
	case errs.KindRateLimit:
		return http.StatusTooManyRequests
	case errs.KindPermission:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return errs.Validationf("malformed request body: %v", err)
	}
	return nil
}
