package domain

import "time"

// AuditAction enumerates lifecycle events written to the audit log.
type AuditAction string

const (
	ActionCreated          AuditAction = "created"
	ActionViewed           AuditAction = "viewed"
	ActionApproved         AuditAction = "approved"
	ActionRejected         AuditAction = "rejected"
	ActionApplied          AuditAction = "applied"
	ActionFailed           AuditAction = "failed"
	ActionExpired          AuditAction = "expired"
	ActionRolledBack       AuditAction = "rolled_back"
	ActionCancelled        AuditAction = "cancelled"
	ActionConflictDetected AuditAction = "conflict_detected"
	ActionUpdated          AuditAction = "updated"
	ActionUserFeedback     AuditAction = "user_feedback"
)

// ActorType identifies who performed an audited action.
type ActorType string

const (
	ActorUser      ActorType = "user"
	ActorSystem    ActorType = "system"
	ActorAI        ActorType = "ai"
	ActorScheduler ActorType = "scheduler"
)

// Actor identifies the initiator of an audited action.
type Actor struct {
	Type ActorType `json:"type"`
	ID   string    `json:"id,omitempty"`
	IP   string    `json:"ip,omitempty"`
}

// FieldChange is one field-level difference between two states.
type FieldChange struct {
	Field    string `json:"field"`
	OldValue any    `json:"old_value"`
	NewValue any    `json:"new_value"`
}

// AuditOutcome records whether the audited action succeeded.
type AuditOutcome struct {
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// SuggestionLog is one append-only audit event with a structural diff.
type SuggestionLog struct {
	ID            string        `json:"id" db:"id"`
	UserID        string        `json:"user_id" db:"user_id"`
	SuggestionID  string        `json:"suggestion_id,omitempty" db:"suggestion_id"`
	Action        AuditAction   `json:"action" db:"action"`
	Timestamp     time.Time     `json:"timestamp" db:"timestamp"`
	Actor         Actor         `json:"actor"`
	PreviousState any           `json:"previous_state,omitempty"`
	NewState      any           `json:"new_state,omitempty"`
	Changes       []FieldChange `json:"changes,omitempty"`
	Diff          string        `json:"diff,omitempty"`
	Outcome       AuditOutcome  `json:"outcome"`
}
