package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ExposesApplicationSeries(t *testing.T) {
	r := New()

	r.HTTPRequests.WithLabelValues("GET", "/api/v1/suggestions", "2xx").Inc()
	r.SignalsEmitted.WithLabelValues("budget_drift").Add(3)
	r.SuggestionTransitions.WithLabelValues("pending", "approved").Inc()
	r.LLMRetries.Inc()
	r.SchedulerRuns.WithLabelValues("weekly_summary", "ok").Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `finpulse_http_requests_total{method="GET",route="/api/v1/suggestions",status="2xx"} 1`), body)
	assert.Contains(t, body, `finpulse_signals_emitted_total{type="budget_drift"} 3`)
	assert.Contains(t, body, `finpulse_suggestion_transitions_total{from="pending",to="approved"} 1`)
	assert.Contains(t, body, "finpulse_llm_retries_total 1")
	assert.Contains(t, body, "go_goroutines")
}
