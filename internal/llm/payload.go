package llm

import (
	"github.com/finpulse/finpulse/internal/errs"
)

// InsightItem is one model-proposed insight. Signal references must
// point at signals that were actually in the prompt.
type InsightItem struct {
	Type        string   `json:"type"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	SignalIDs   []string `json:"signal_ids,omitempty"`
	CategoryID  string   `json:"category_id,omitempty"`
	Impact      struct {
		Amount     float64 `json:"amount,omitempty"`
		Percentage float64 `json:"percentage,omitempty"`
		Timeframe  string  `json:"timeframe,omitempty"`
	} `json:"impact"`
	Confidence  float64  `json:"confidence"`
	ActionItems []string `json:"action_items,omitempty"`
}

// InsightsPayload is the schema the on-demand insights prompt asks for.
type InsightsPayload struct {
	Insights []InsightItem `json:"insights"`
}

// Validate enforces the response contract for on-demand insights.
func (p *InsightsPayload) Validate(knownSignals map[string]bool) error {
	if len(p.Insights) == 0 {
		return errs.LLMValidation("model returned no insights")
	}
	return validateInsights(p.Insights, knownSignals)
}

// SummaryPayload is the schema the weekly summary prompt asks for.
type SummaryPayload struct {
	Overview string        `json:"overview"`
	Insights []InsightItem `json:"insights"`
}

// Validate enforces the response contract: a non-empty overview,
// complete insight fields, confidence in [0, 100] and no invented
// signal references.
func (p *SummaryPayload) Validate(knownSignals map[string]bool) error {
	if p.Overview == "" {
		return errs.LLMValidation("summary overview is empty")
	}
	return validateInsights(p.Insights, knownSignals)
}

func validateInsights(insights []InsightItem, knownSignals map[string]bool) error {
	for i, ins := range insights {
		if ins.Type == "" || ins.Title == "" || ins.Description == "" {
			return errs.LLMValidation("insight %d is missing required fields", i)
		}
		if ins.Confidence < 0 || ins.Confidence > 100 {
			return errs.LLMValidation("insight %d confidence %.1f is out of range", i, ins.Confidence)
		}
		for _, id := range ins.SignalIDs {
			if !knownSignals[id] {
				return errs.LLMValidation("insight %d references unknown signal %s", i, id)
			}
		}
	}
	return nil
}
