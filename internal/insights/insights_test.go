package insights

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/errs"
	"github.com/finpulse/finpulse/internal/llm"
	"github.com/finpulse/finpulse/internal/persistence/memory"
)

type fakeModel struct {
	payload string
	err     error
	prompt  string
}

func (f *fakeModel) GenerateStructured(_ context.Context, prompt string, out any) error {
	f.prompt = prompt
	if f.err != nil {
		return f.err
	}
	return llm.DecodeJSON(f.payload, out)
}

func seedSignal(t *testing.T, db *memory.Store, id string) {
	t.Helper()
	now := time.Now()
	require.NoError(t, db.Signals().Insert(context.Background(), &domain.FinancialSignal{
		ID: id, UserID: "u1", Type: domain.SignalBudgetDrift, Name: "rent drift",
		Category: "rent", Confidence: 90, Priority: 2, IsActive: true,
		Period:    domain.SignalPeriod{StartDate: now.AddDate(0, 0, -7), EndDate: now},
		CreatedAt: now, ExpiresAt: now.AddDate(0, 0, 30),
	}))
}

func TestGenerate_ReturnsModelInsights(t *testing.T) {
	db := memory.NewStore()
	seedSignal(t, db, "sig-1")

	model := &fakeModel{payload: `{"insights":[{
		"type":"budget","title":"Rent is drifting","description":"Rent spending runs ahead of budget.",
		"signal_ids":["sig-1"],"confidence":85}]}`}
	g := NewGenerator(db, model, zerolog.Nop())

	out, err := g.Generate(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Rent is drifting", out[0].Title)
	assert.Equal(t, domain.InsightGenerated, out[0].Status)
	assert.True(t, strings.Contains(model.prompt, "sig-1"))
}

func TestGenerate_RejectsInventedSignalReference(t *testing.T) {
	db := memory.NewStore()
	seedSignal(t, db, "sig-1")

	model := &fakeModel{payload: `{"insights":[{
		"type":"budget","title":"x","description":"y","signal_ids":["sig-99"],"confidence":80}]}`}
	g := NewGenerator(db, model, zerolog.Nop())

	_, err := g.Generate(context.Background(), "u1")
	assert.True(t, errs.Is(err, errs.KindLLMValidation))
}

func TestGenerate_EmptySignalsShortCircuits(t *testing.T) {
	db := memory.NewStore()
	model := &fakeModel{payload: `{"insights":[]}`}
	g := NewGenerator(db, model, zerolog.Nop())

	out, err := g.Generate(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, model.prompt, "no signals means no model call")
}

func TestGenerate_SurfacesModelFailure(t *testing.T) {
	db := memory.NewStore()
	seedSignal(t, db, "sig-1")

	g := NewGenerator(db, &fakeModel{err: errs.External("gemini", context.DeadlineExceeded)}, zerolog.Nop())
	_, err := g.Generate(context.Background(), "u1")
	assert.True(t, errs.Is(err, errs.KindExternalService))
}
