package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finpulse/finpulse/internal/audit"
	"github.com/finpulse/finpulse/internal/config"
	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/engine"
	"github.com/finpulse/finpulse/internal/ingest"
	"github.com/finpulse/finpulse/internal/insights"
	"github.com/finpulse/finpulse/internal/learn"
	"github.com/finpulse/finpulse/internal/metrics"
	"github.com/finpulse/finpulse/internal/notify"
	"github.com/finpulse/finpulse/internal/persistence/memory"
	"github.com/finpulse/finpulse/internal/signalstore"
	"github.com/finpulse/finpulse/internal/suggest"
	"github.com/finpulse/finpulse/internal/weekly"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) (*Server, *memory.Store) {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Auth.JWTSecret = testSecret

	db := memory.NewStore()
	nop := zerolog.Nop()
	signals := signalstore.New(db, nop)
	trail := audit.NewTrail(db, nop)

	deps := Deps{
		DB:       db,
		Ingest:   ingest.NewService(db, nop),
		Pipeline: engine.NewPipeline(db, signals, nop),
		Signals:  signals,
		Insights: insights.NewGenerator(db, nil, nop),
		Suggest:  suggest.NewEngine(db, trail, nop),
		Weekly:   weekly.NewSummaryGenerator(db, nil, nop),
		Feedback: learn.NewFeedbackProcessor(db, trail, nop),
		Notify:   notify.NewDispatcher(db, nop),
		Metrics:  metrics.New(),
	}
	return NewServer(cfg, deps, nop), db
}

func token(t *testing.T, sub, userRole string) string {
	t.Helper()
	claims := authClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: userRole,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func doJSON(t *testing.T, s *Server, method, path, bearer, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestAuth_MissingAndInvalidTokens(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/suggestions", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/suggestions", "not-a-token", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealth_NoAuthRequired(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIngestManual_RoundTrip(t *testing.T) {
	s, db := newTestServer(t)
	bearer := token(t, "u1", "")

	rec := doJSON(t, s, http.MethodPost, "/api/v1/ingestion/manual", bearer, `{
		"amount": 42.50, "type": "expense", "category_id": "", "description": "lunch",
		"date": "2026-05-12T10:00:00Z"
	}`)
	require.Equal(t, http.StatusBadRequest, rec.Code, "expense without category is rejected")

	ctx := context.Background()
	require.NoError(t, db.Categories().Insert(ctx, &domain.Category{
		ID: "c1", UserID: "u1", Name: "Food", Type: domain.CategoryWant,
	}))

	rec = doJSON(t, s, http.MethodPost, "/api/v1/ingestion/manual", bearer, `{
		"amount": 42.50, "type": "expense", "category_id": "c1", "description": "lunch",
		"date": "2026-05-12T10:00:00Z"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var out struct {
		Success bool               `json:"success"`
		Data    domain.Transaction `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.Success)
	assert.Equal(t, 42.50, out.Data.Amount)
	assert.Equal(t, "u1", out.Data.UserID)
}

func TestWeeklyLatest_NotFoundEnvelope(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/weekly/latest", token(t, "u1", ""), "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var out envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "not found")
}

func TestWeeklyGenerate_FallbackWithoutModel(t *testing.T) {
	s, db := newTestServer(t)
	bearer := token(t, "u1", "")

	tx := domain.Transaction{
		ID: "t1", UserID: "u1", Amount: 120, Type: domain.TxExpense, CategoryID: "c1",
		Status: domain.TxCompleted, Date: time.Now().AddDate(0, 0, -1),
	}
	require.NoError(t, db.Transactions().Insert(context.Background(), &tx))

	rec := doJSON(t, s, http.MethodPost, "/api/v1/weekly/generate", bearer, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var out struct {
		Data domain.WeeklySummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.Data.Fallback)
	assert.NotEmpty(t, out.Data.Overview)
}

func TestSignalStatus_ValidatesEnum(t *testing.T) {
	s, _ := newTestServer(t)
	bearer := token(t, "u1", "")

	rec := doJSON(t, s, http.MethodPatch, "/api/v1/analysis/signals/sig-1/status", bearer,
		`{"status":"archived"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodPatch, "/api/v1/analysis/signals/sig-1/status", bearer,
		`{"status":"dismissed"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code, "unknown signal id")
}

func TestRollback_RequiresAdminRole(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/suggestions/sg-1/rollback", token(t, "u1", ""), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/suggestions/sg-1/rollback", token(t, "u1", "admin"), "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "admin passes the gate, suggestion is absent")
}

func TestCSVRateLimit_CapsPerIP(t *testing.T) {
	s, _ := newTestServer(t)
	bearer := token(t, "u1", "")
	body := `{"csv":"Date,Amount,Description\n2026-05-12,10,x\n"}`

	var limited bool
	for i := 0; i < classCSV.requests+1; i++ {
		rec := doJSON(t, s, http.MethodPost, "/api/v1/ingestion/csv/preview", bearer, body)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			var out envelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
			assert.NotEmpty(t, out.Details["reset_at"])
			break
		}
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	assert.True(t, limited, "request over the cap must be rejected")
}

func TestAnalysisFull_ReturnsReport(t *testing.T) {
	s, db := newTestServer(t)
	bearer := token(t, "u1", "")

	tx := domain.Transaction{
		ID: "t1", UserID: "u1", Amount: 900, Type: domain.TxExpense, CategoryID: "rent",
		Status: domain.TxCompleted, Date: time.Now().AddDate(0, 0, -10),
	}
	require.NoError(t, db.Transactions().Insert(context.Background(), &tx))

	rec := doJSON(t, s, http.MethodGet, "/api/v1/analysis/full", bearer, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		Data engine.FullReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "u1", out.Data.UserID)
	assert.NotNil(t, out.Data.Aggregation)
}
