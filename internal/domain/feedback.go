package domain

import "time"

// FeedbackDecision is the user's verdict on a suggestion.
type FeedbackDecision string

const (
	DecisionAccepted FeedbackDecision = "accepted"
	DecisionRejected FeedbackDecision = "rejected"
	DecisionIgnored  FeedbackDecision = "ignored"
	DecisionModified FeedbackDecision = "modified"
)

// FeedbackReason categorizes why a user responded the way they did.
type FeedbackReason string

const (
	ReasonTooAggressive FeedbackReason = "too_aggressive"
	ReasonNotRelevant   FeedbackReason = "not_relevant"
	ReasonBadTiming     FeedbackReason = "bad_timing"
	ReasonAmountTooHigh FeedbackReason = "amount_too_high"
	ReasonAmountTooLow  FeedbackReason = "amount_too_low"
	ReasonAlreadyDone   FeedbackReason = "already_done"
	ReasonHelpful       FeedbackReason = "helpful"
	ReasonOther         FeedbackReason = "other"
)

// FeedbackContext records timing around the user's response.
type FeedbackContext struct {
	SuggestedAt      time.Time `json:"suggested_at"`
	RespondedAt      time.Time `json:"responded_at"`
	ResponseTimeMs   int64     `json:"response_time_ms"`
	ViewedDurationMs int64     `json:"viewed_duration_ms,omitempty"`
}

// FeedbackReasons carries the primary and secondary reasons for a decision.
type FeedbackReasons struct {
	Primary      FeedbackReason   `json:"primary"`
	Secondary    []FeedbackReason `json:"secondary,omitempty"`
	CustomReason string           `json:"custom_reason,omitempty"`
}

// FeedbackOutcome tracks what eventually happened to the suggestion.
type FeedbackOutcome struct {
	Applied    bool `json:"applied"`
	Successful bool `json:"successful"`
	RolledBack bool `json:"rolled_back"`
}

// SuggestionFeedback records one user decision about one suggestion.
// SuggestionID is unique: a user decides each suggestion at most once.
type SuggestionFeedback struct {
	ID            string           `json:"id" db:"id"`
	UserID        string           `json:"user_id" db:"user_id"`
	SuggestionID  string           `json:"suggestion_id" db:"suggestion_id"`
	Type          SuggestionType   `json:"type" db:"type"`
	Decision      FeedbackDecision `json:"decision" db:"decision"`
	Context       FeedbackContext  `json:"context"`
	Reasons       FeedbackReasons  `json:"reasons"`
	Modifications *Modifications   `json:"modifications,omitempty"`
	Outcome       FeedbackOutcome  `json:"outcome"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
}

// Modifications captures a user-edited variant of the proposal.
type Modifications struct {
	Original ProposedChanges `json:"original"`
	Modified ProposedChanges `json:"modified"`
}
