package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/errs"
)

// Prompt truncation caps keep token usage bounded; the model sees the
// largest movers, not the long tail.
const (
	maxPromptCategories = 10
	maxPromptShifts     = 10
	maxPromptSignals    = 5
)

// Sections every prompt must carry before it goes to the model.
const (
	sectionAnalysisTask   = "ANALYSIS TASK"
	sectionResponseFormat = "RESPONSE FORMAT"
)

// validatePrompt rejects prompts missing a required section, so a
// malformed caller fails locally instead of burning a model call.
func validatePrompt(prompt string) error {
	for _, section := range []string{sectionAnalysisTask, sectionResponseFormat} {
		if !strings.Contains(prompt, section) {
			return errs.Validationf("prompt is missing its %s section", section)
		}
	}
	return nil
}

// WeeklyPromptInput is everything the summary prompt may reference.
type WeeklyPromptInput struct {
	Metric  *domain.WeeklyMetric
	Shifts  []domain.MetricShift
	Signals []domain.FinancialSignal
}

// BuildWeeklySummaryPrompt renders the weekly analysis prompt. All
// embedded data passes through the PII sanitizer first.
func BuildWeeklySummaryPrompt(in WeeklyPromptInput) string {
	metric := *in.Metric
	if len(metric.CategoryBreakdown) > maxPromptCategories {
		metric.CategoryBreakdown = metric.CategoryBreakdown[:maxPromptCategories]
	}
	shifts := in.Shifts
	if len(shifts) > maxPromptShifts {
		shifts = shifts[:maxPromptShifts]
	}
	signals := in.Signals
	if len(signals) > maxPromptSignals {
		signals = signals[:maxPromptSignals]
	}

	var sb strings.Builder
	sb.WriteString(sectionAnalysisTask + "\n")
	sb.WriteString("You are a personal finance analyst. Review the user's weekly metrics, ")
	sb.WriteString("significant week-over-week shifts and active signals. Write a short plain-language ")
	sb.WriteString("overview of the week and up to five concrete insights. Reference signals only by the ")
	sb.WriteString("ids given below; never invent ids, amounts or categories not present in the data.\n\n")

	sb.WriteString(fmt.Sprintf("WEEK: %s to %s\n\n",
		metric.WeekStart.Format("2006-01-02"), metric.WeekEnd.Format("2006-01-02")))

	sb.WriteString("METRICS\n")
	sb.WriteString(encodeSanitized(metric))
	sb.WriteString("\n\nSHIFTS\n")
	sb.WriteString(encodeSanitized(shifts))
	sb.WriteString("\n\nSIGNALS\n")
	sb.WriteString(encodeSanitized(compactSignals(signals)))

	sb.WriteString("\n\n" + sectionResponseFormat + "\n")
	sb.WriteString("Respond with a single JSON object and nothing else:\n")
	sb.WriteString(`{
  "overview": "two to four sentences summarizing the week",
  "insights": [
    {
      "type": "spending|saving|budget|goal|risk",
      "title": "short headline",
      "description": "one or two sentences",
      "signal_ids": ["ids from the SIGNALS section"],
      "category_id": "optional category",
      "impact": {"amount": 0, "percentage": 0, "timeframe": "weekly|monthly"},
      "confidence": 0,
      "action_items": ["optional concrete steps"]
    }
  ]
}`)
	return sb.String()
}

// BuildInsightsPrompt renders the on-demand insight prompt from the
// user's active signals.
func BuildInsightsPrompt(signals []domain.FinancialSignal) string {
	if len(signals) > maxPromptSignals*2 {
		signals = signals[:maxPromptSignals*2]
	}

	var sb strings.Builder
	sb.WriteString(sectionAnalysisTask + "\n")
	sb.WriteString("You are a personal finance analyst. Review the user's active financial signals ")
	sb.WriteString("and propose up to five concrete, actionable insights. Reference signals only by the ")
	sb.WriteString("ids given below; never invent ids, amounts or categories not present in the data.\n\n")

	sb.WriteString("SIGNALS\n")
	sb.WriteString(encodeSanitized(compactSignals(signals)))

	sb.WriteString("\n\n" + sectionResponseFormat + "\n")
	sb.WriteString("Respond with a single JSON object and nothing else:\n")
	sb.WriteString(`{
  "insights": [
    {
      "type": "spending|saving|budget|goal|risk",
      "title": "short headline",
      "description": "one or two sentences",
      "signal_ids": ["ids from the SIGNALS section"],
      "category_id": "optional category",
      "impact": {"amount": 0, "percentage": 0, "timeframe": "weekly|monthly"},
      "confidence": 0,
      "action_items": ["optional concrete steps"]
    }
  ]
}`)
	return sb.String()
}

// compactSignals keeps the fields the model needs to reason about a
// signal and nothing else.
func compactSignals(signals []domain.FinancialSignal) []map[string]any {
	out := make([]map[string]any, 0, len(signals))
	for _, s := range signals {
		out = append(out, map[string]any{
			"id":       s.ID,
			"type":     string(s.Type),
			"name":     s.Name,
			"category": s.Category,
			"current":  s.Value.Current,
			"priority": s.Priority,
		})
	}
	return out
}

// encodeSanitized round-trips a value through JSON so the sanitizer
// sees plain maps, then renders the scrubbed result.
func encodeSanitized(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "{}"
	}
	clean, err := json.MarshalIndent(Sanitize(decoded), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(clean)
}
