package llm

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/errs"
)

func TestStripCodeFence(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare json", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"plain fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"leading whitespace", "  \n```json\n{}\n```  ", `{}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StripCodeFence(tc.in))
		})
	}
}

func TestGenerateStructured_RejectsPromptMissingSections(t *testing.T) {
	g := &Gemini{}
	var out InsightsPayload
	err := g.GenerateStructured(context.Background(), "tell me about my money", &out)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindValidation))

	// the built-in prompt builders always satisfy the guard
	require.NoError(t, validatePrompt(BuildInsightsPrompt(nil)))
}

func TestDecodeJSON_InvalidPayload(t *testing.T) {
	var out SummaryPayload
	err := DecodeJSON("the model rambled instead of answering", &out)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindLLMValidation))
}

func TestSummaryPayload_Validate(t *testing.T) {
	known := map[string]bool{"sig-1": true, "sig-2": true}

	good := SummaryPayload{
		Overview: "Spending was steady this week.",
		Insights: []InsightItem{{
			Type: "spending", Title: "Groceries crept up", Description: "Up 12% on last week.",
			SignalIDs: []string{"sig-1"}, Confidence: 80,
		}},
	}
	require.NoError(t, good.Validate(known))

	missing := good
	missing.Insights = []InsightItem{{Type: "spending", Title: "", Description: "x", Confidence: 50}}
	assert.True(t, errs.Is(missing.Validate(known), errs.KindLLMValidation))

	badConf := good
	badConf.Insights = []InsightItem{{Type: "spending", Title: "t", Description: "d", Confidence: 140}}
	assert.True(t, errs.Is(badConf.Validate(known), errs.KindLLMValidation))

	invented := good
	invented.Insights = []InsightItem{{Type: "spending", Title: "t", Description: "d", Confidence: 50, SignalIDs: []string{"sig-99"}}}
	err := invented.Validate(known)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sig-99")

	empty := SummaryPayload{}
	assert.True(t, errs.Is(empty.Validate(known), errs.KindLLMValidation))
}

func TestSanitize_RedactsKeysAndText(t *testing.T) {
	in := map[string]any{
		"email":  "jo@example.com",
		"amount": 42.5,
		"notes":  "ping me at jo@example.com or +1 (555) 123-4567",
		"nested": map[string]any{
			"account_number": "DE89370400440532013000",
			"category":       "groceries",
		},
		"tags": []any{"call 555-123-9876 tomorrow", "ok"},
	}

	out := Sanitize(in).(map[string]any)
	assert.Equal(t, Redacted, out["email"])
	assert.Equal(t, 42.5, out["amount"])
	assert.NotContains(t, out["notes"].(string), "example.com")
	assert.NotContains(t, out["notes"].(string), "555")

	nested := out["nested"].(map[string]any)
	assert.Equal(t, Redacted, nested["account_number"])
	assert.Equal(t, "groceries", nested["category"])

	tags := out["tags"].([]any)
	assert.NotContains(t, tags[0].(string), "555")
	assert.Equal(t, "ok", tags[1])
}

func TestBuildWeeklySummaryPrompt_SectionsAndTruncation(t *testing.T) {
	weekStart := time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC)
	metric := &domain.WeeklyMetric{
		UserID:    "u1",
		WeekStart: weekStart,
		WeekEnd:   weekStart.AddDate(0, 0, 7),
		Income:    1200,
		Expenses:  900,
	}
	for i := 0; i < 15; i++ {
		metric.CategoryBreakdown = append(metric.CategoryBreakdown, domain.CategoryWeekStat{
			CategoryID: "cat-" + strings.Repeat("x", i+1), Total: float64(100 - i),
		})
	}
	var signals []domain.FinancialSignal
	for i := 0; i < 8; i++ {
		signals = append(signals, domain.FinancialSignal{
			ID: "sig-" + strings.Repeat("y", i+1), Type: domain.SignalBudgetDrift,
		})
	}

	prompt := BuildWeeklySummaryPrompt(WeeklyPromptInput{Metric: metric, Signals: signals})

	assert.Contains(t, prompt, "ANALYSIS TASK")
	assert.Contains(t, prompt, "RESPONSE FORMAT")
	assert.Contains(t, prompt, "2026-05-11")
	assert.Contains(t, prompt, "cat-"+strings.Repeat("x", 10))
	assert.NotContains(t, prompt, "cat-"+strings.Repeat("x", 11), "category tail must be truncated")
	assert.Contains(t, prompt, "sig-"+strings.Repeat("y", 5))
	assert.NotContains(t, prompt, "sig-"+strings.Repeat("y", 6), "signal tail must be truncated")
}
