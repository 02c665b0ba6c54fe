package domain

import "time"

// SuggestionFrequency controls how many suggestions surface per day.
type SuggestionFrequency string

const (
	FrequencyLow      SuggestionFrequency = "low"
	FrequencyMedium   SuggestionFrequency = "medium"
	FrequencyHigh     SuggestionFrequency = "high"
	FrequencyAdaptive SuggestionFrequency = "adaptive"
)

// DailyMax returns the per-day suggestion cap for the frequency.
func (f SuggestionFrequency) DailyMax() int {
	switch f {
	case FrequencyLow:
		return 2
	case FrequencyHigh:
		return 10
	default: // medium, adaptive
		return 5
	}
}

// RiskTolerance bounds how risky a suggestion a user accepts.
type RiskTolerance string

const (
	ToleranceLow    RiskTolerance = "low"
	ToleranceMedium RiskTolerance = "medium"
	ToleranceHigh   RiskTolerance = "high"
)

// TypePreference is the learning state for one suggestion type.
// Weight stays in [0, 2].
type TypePreference struct {
	Weight        float64    `json:"weight"`
	AcceptedCount int        `json:"accepted_count"`
	RejectedCount int        `json:"rejected_count"`
	LastShown     *time.Time `json:"last_shown,omitempty"`
	LastAction    *time.Time `json:"last_action,omitempty"`
	CooldownDays  int        `json:"cooldown_days"`
}

// QuietHours is a wall-clock window during which no suggestions surface.
type QuietHours struct {
	Enabled bool `json:"enabled"`
	Start   int  `json:"start"` // hour of day, 0..23
	End     int  `json:"end"`
}

// Contains reports whether the given hour is inside the quiet window,
// handling windows that wrap midnight.
func (q QuietHours) Contains(hour int) bool {
	if !q.Enabled {
		return false
	}
	if q.Start <= q.End {
		return hour >= q.Start && hour < q.End
	}
	return hour >= q.Start || hour < q.End
}

// GlobalPreference aggregates cross-type learning state.
type GlobalPreference struct {
	TotalShown          int                 `json:"total_shown"`
	TotalAccepted       int                 `json:"total_accepted"`
	TotalRejected       int                 `json:"total_rejected"`
	AcceptanceRate      float64             `json:"acceptance_rate"`
	SuggestionFrequency SuggestionFrequency `json:"suggestion_frequency"`
	QuietHours          QuietHours          `json:"quiet_hours"`
	LastActive          *time.Time          `json:"last_active,omitempty"`
}

// CategoryPreference is per-category learning state.
type CategoryPreference struct {
	Weight           float64            `json:"weight"`
	AcceptedCount    int                `json:"accepted_count"`
	RejectedCount    int                `json:"rejected_count"`
	PriceSensitivity float64            `json:"price_sensitivity"`
	ChangeTolerance  float64            `json:"change_tolerance"`
	Feedback         []FeedbackDecision `json:"feedback,omitempty"`
}

// TimePreference learns when the user responds best.
type TimePreference struct {
	BestTimeToSuggest  string      `json:"best_time_to_suggest"` // morning|afternoon|evening|adaptive
	ResponseTimeByHour map[int]int `json:"response_time_by_hour,omitempty"`
}

// ImpactPreference bounds what impacts are worth surfacing.
type ImpactPreference struct {
	MinSavingsAmount float64       `json:"min_savings_amount"`
	MaxRiskTolerance RiskTolerance `json:"max_risk_tolerance"`
}

// PreferenceMetadata carries versioning and the learning switch.
type PreferenceMetadata struct {
	LearningEnabled bool `json:"learning_enabled"`
	Version         int  `json:"version"`
}

// UserPreference is the full per-user learning state consumed by the
// suggestion flow gates.
type UserPreference struct {
	UserID              string                             `json:"user_id" db:"user_id"`
	Types               map[SuggestionType]*TypePreference `json:"types"`
	Global              GlobalPreference                   `json:"global"`
	CategoryPreferences map[string]*CategoryPreference     `json:"category_preferences,omitempty"`
	TimePreferences     TimePreference                     `json:"time_preferences"`
	ImpactPreferences   ImpactPreference                   `json:"impact_preferences"`
	Metadata            PreferenceMetadata                 `json:"metadata"`
	UpdatedAt           time.Time                          `json:"updated_at" db:"updated_at"`
}

// DefaultCooldowns maps suggestion types to minimum elapsed days between
// a terminal action and the next approval of the same type.
var DefaultCooldowns = map[SuggestionType]int{
	SuggestBudgetAdjustment:         7,
	SuggestSavingsIncrease:          14,
	SuggestSubscriptionCancellation: 30,
}

// NewUserPreference returns a preference sheet with neutral weights.
func NewUserPreference(userID string) *UserPreference {
	types := make(map[SuggestionType]*TypePreference, len(AllSuggestionTypes))
	for _, t := range AllSuggestionTypes {
		types[t] = &TypePreference{Weight: 1.0, CooldownDays: DefaultCooldowns[t]}
	}
	return &UserPreference{
		UserID: userID,
		Types:  types,
		Global: GlobalPreference{
			SuggestionFrequency: FrequencyAdaptive,
		},
		CategoryPreferences: make(map[string]*CategoryPreference),
		TimePreferences: TimePreference{
			BestTimeToSuggest:  "adaptive",
			ResponseTimeByHour: make(map[int]int),
		},
		ImpactPreferences: ImpactPreference{
			MinSavingsAmount: 10,
			MaxRiskTolerance: ToleranceMedium,
		},
		Metadata: PreferenceMetadata{LearningEnabled: true, Version: 1},
	}
}

// TypePref returns the learning state for a type, creating it on demand.
func (p *UserPreference) TypePref(typ SuggestionType) *TypePreference {
	if p.Types == nil {
		p.Types = make(map[SuggestionType]*TypePreference)
	}
	tp, ok := p.Types[typ]
	if !ok {
		tp = &TypePreference{Weight: 1.0, CooldownDays: DefaultCooldowns[typ]}
		p.Types[typ] = tp
	}
	return tp
}

// CategoryPref returns the learning state for a category, creating it on
// demand.
func (p *UserPreference) CategoryPref(categoryID string) *CategoryPreference {
	if p.CategoryPreferences == nil {
		p.CategoryPreferences = make(map[string]*CategoryPreference)
	}
	cp, ok := p.CategoryPreferences[categoryID]
	if !ok {
		cp = &CategoryPreference{Weight: 1.0, PriceSensitivity: 0.5, ChangeTolerance: 0.5}
		p.CategoryPreferences[categoryID] = cp
	}
	return cp
}

// ClampWeight bounds a learning weight to [0, 2].
func ClampWeight(w float64) float64 {
	if w < 0 {
		return 0
	}
	if w > 2 {
		return 2
	}
	return w
}
