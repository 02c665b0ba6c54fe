package learn

import (
	"time"

	"github.com/finpulse/finpulse/internal/domain"
)

// RuleAction is what a matched rule does to the suggestion flow.
type RuleAction string

const (
	// ActionFilter hides this one suggestion.
	ActionFilter RuleAction = "filter"
	// ActionPause hides all suggestions until engagement recovers.
	ActionPause RuleAction = "pause"
	// ActionMultiply scales the suggestion's surfacing score.
	ActionMultiply RuleAction = "multiply"
)

// Rule is one named, pure predicate over the preference sheet and the
// candidate suggestion.
type Rule struct {
	Name string
	Eval func(prefs *domain.UserPreference, s *domain.PendingSuggestion, now time.Time) (RuleAction, float64, bool)
}

// Verdict is the combined outcome of the rule set.
type Verdict struct {
	ShouldShow bool     `json:"should_show"`
	Multiplier float64  `json:"multiplier"`
	Matched    []string `json:"matched,omitempty"`
	BlockedBy  string   `json:"blocked_by,omitempty"`
}

// RulesEngine evaluates the fixed rule set in order. Multipliers
// combine by product and are clamped to [0.1, 2.0]; any filter or pause
// rule hides the suggestion.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine builds the engine with the built-in rule set.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{rules: builtinRules()}
}

// Evaluate runs every rule and combines the outcome.
func (e *RulesEngine) Evaluate(prefs *domain.UserPreference, s *domain.PendingSuggestion, now time.Time) Verdict {
	v := Verdict{ShouldShow: true, Multiplier: 1.0}
	for _, r := range e.rules {
		action, factor, matched := r.Eval(prefs, s, now)
		if !matched {
			continue
		}
		v.Matched = append(v.Matched, r.Name)
		switch action {
		case ActionFilter, ActionPause:
			if v.ShouldShow {
				v.ShouldShow = false
				v.BlockedBy = r.Name
			}
		case ActionMultiply:
			v.Multiplier *= factor
		}
	}
	if v.Multiplier < 0.1 {
		v.Multiplier = 0.1
	}
	if v.Multiplier > 2.0 {
		v.Multiplier = 2.0
	}
	return v
}

func builtinRules() []Rule {
	return []Rule{
		{
			Name: "suppress_low_type_weight",
			Eval: func(p *domain.UserPreference, s *domain.PendingSuggestion, _ time.Time) (RuleAction, float64, bool) {
				return ActionFilter, 0, p.TypePref(s.Type).Weight <= minTypeWeight
			},
		},
		{
			Name: "pause_disengaged_user",
			Eval: func(p *domain.UserPreference, _ *domain.PendingSuggestion, _ time.Time) (RuleAction, float64, bool) {
				decided := p.Global.TotalAccepted + p.Global.TotalRejected
				return ActionPause, 0, decided >= 10 && p.Global.AcceptanceRate < 0.2
			},
		},
		{
			Name: "respect_quiet_hours",
			Eval: func(p *domain.UserPreference, _ *domain.PendingSuggestion, now time.Time) (RuleAction, float64, bool) {
				return ActionFilter, 0, p.Global.QuietHours.Contains(now.Hour())
			},
		},
		{
			Name: "filter_critical_risk",
			Eval: func(p *domain.UserPreference, s *domain.PendingSuggestion, _ time.Time) (RuleAction, float64, bool) {
				return ActionFilter, 0, s.Metadata.RiskLevel == domain.RiskCritical &&
					p.ImpactPreferences.MaxRiskTolerance != domain.ToleranceHigh
			},
		},
		{
			Name: "boost_engaged_user",
			Eval: func(p *domain.UserPreference, _ *domain.PendingSuggestion, _ time.Time) (RuleAction, float64, bool) {
				decided := p.Global.TotalAccepted + p.Global.TotalRejected
				return ActionMultiply, 1.5, decided >= 5 && p.Global.AcceptanceRate > 0.7
			},
		},
		{
			Name: "boost_responsive_hour",
			Eval: func(p *domain.UserPreference, _ *domain.PendingSuggestion, now time.Time) (RuleAction, float64, bool) {
				return ActionMultiply, 1.2, bestHour(p.TimePreferences.ResponseTimeByHour) == now.Hour()
			},
		},
		{
			Name: "cool_off_recent_rejection",
			Eval: func(p *domain.UserPreference, s *domain.PendingSuggestion, now time.Time) (RuleAction, float64, bool) {
				tp := p.TypePref(s.Type)
				recent := tp.LastAction != nil && now.Sub(*tp.LastAction) < 48*time.Hour
				return ActionMultiply, 0.6, recent && tp.RejectedCount > tp.AcceptedCount
			},
		},
		{
			Name: "boost_high_priority",
			Eval: func(_ *domain.UserPreference, s *domain.PendingSuggestion, _ time.Time) (RuleAction, float64, bool) {
				return ActionMultiply, 1.3, s.Metadata.Priority == "high"
			},
		},
	}
}

// bestHour returns the hour with the most recorded responses, or -1
// when there is no history.
func bestHour(byHour map[int]int) int {
	best, max := -1, 0
	for h, n := range byHour {
		if n > max || (n == max && best >= 0 && h < best) {
			best, max = h, n
		}
	}
	return best
}
