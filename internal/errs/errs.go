// Package errs defines the typed error taxonomy shared by engines, stores
// and the HTTP layer. Engines return these instead of using panics or
// ad-hoc strings so the outer adapter can map them to response codes.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// Kind buckets an error into the taxonomy.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindStateMachine
	KindConcurrency
	KindRateLimit
	KindPermission
	KindExternalService
	KindLLMValidation
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindStateMachine:
		return "state_machine"
	case KindConcurrency:
		return "concurrency"
	case KindRateLimit:
		return "rate_limit"
	case KindPermission:
		return "permission"
	case KindExternalService:
		return "external_service"
	case KindLLMValidation:
		return "llm_validation"
	default:
		return "internal"
	}
}

// Error is a kinded error with optional field-level details.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]string
	ResetAt time.Time // when a rate limit or cooldown lifts
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Validation builds a validation error with optional field details.
func Validation(msg string, details map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Details: details}
}

// Validationf builds a formatted validation error.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a not-found error. Ownership mismatches use the same
// message so responses never distinguish absent from foreign-owned.
func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s not found", entity)}
}

// StateMachine builds an illegal-transition error.
func StateMachine(format string, args ...any) *Error {
	return &Error{Kind: KindStateMachine, Message: fmt.Sprintf(format, args...)}
}

// Concurrency builds an optimistic-update-lost error; callers may retry.
func Concurrency(msg string) *Error {
	return &Error{Kind: KindConcurrency, Message: msg}
}

// RateLimit builds a rate-limit error carrying the reset time.
func RateLimit(msg string, resetAt time.Time) *Error {
	return &Error{Kind: KindRateLimit, Message: msg, ResetAt: resetAt}
}

// Permission builds a permission error.
func Permission(msg string) *Error {
	return &Error{Kind: KindPermission, Message: msg}
}

// External wraps a transport failure from an external collaborator.
func External(service string, err error) *Error {
	return &Error{Kind: KindExternalService, Message: fmt.Sprintf("%s request failed", service), Err: err}
}

// LLMValidation builds a schema-mismatch error for LLM output.
func LLMValidation(format string, args ...any) *Error {
	return &Error{Kind: KindLLMValidation, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected error.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// KindOf extracts the taxonomy kind from any error chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err belongs to the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
