// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")
	ErrNotEnrolled     = errors.New("not enrolled")

	// Authorization errors
	ErrForbidden = errors.New("forbidden")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrAggregateDrift         = errors.New("aggregate drift detected")

	// External capability errors
	ErrGeneration         = errors.New("generation failed")
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "coursepath", "review", "progress"
	Op      string // Operation that failed, e.g., "Enroll", "SubmitReview"
	Kind    error  // Base error type for errors.Is() checking
	Field   string // Offending field for validation errors (optional)
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, msg, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, msg)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// NewValidationError creates a validation error naming the offending field.
func NewValidationError(domain, op, field, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    ErrValidation,
		Field:   field,
		Message: message,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Catalogue errors
// ═══════════════════════════════════════════════════════════════════════════

var (
	ErrCoursePathNotFound   = NewDomainError("coursepath", "Find", ErrNotFound, "course path not found")
	ErrCoursePathNotReady   = NewDomainError("coursepath", "CheckStatus", ErrInvalidState, "course path is not ready")
	ErrCoursePathArchived   = NewDomainError("coursepath", "CheckStatus", ErrInvalidState, "course path is archived")
	ErrCoursePathImmutable  = NewDomainError("coursepath", "Update", ErrInvalidState, "subject and difficulty are immutable once ready")
	ErrInvalidPathStatus    = NewDomainError("coursepath", "Transition", ErrStateTransition, "invalid course path status transition")
	ErrCoursePathConflict   = NewDomainError("coursepath", "Save", ErrConcurrentModification, "course path was modified concurrently")
	ErrLearningPathNotFound = NewDomainError("learningpath", "Find", ErrNotFound, "learning path not found")
)

// Participation errors
var (
	ErrNotEnrolledInPath = NewDomainError("enrollment", "Check", ErrNotEnrolled, "user is not enrolled in the course path")
	ErrProgressNotFound  = NewDomainError("progress", "Find", ErrNotFound, "progress record not found")
	ErrProgressConflict  = NewDomainError("progress", "Save", ErrConcurrentModification, "progress record was modified concurrently")
)

// Review errors
var (
	ErrReviewNotFound     = NewDomainError("review", "Find", ErrNotFound, "review not found")
	ErrDuplicateVote      = NewDomainError("review", "MarkHelpful", ErrAlreadyExists, "review already marked helpful by user")
	ErrAggregateInvariant = NewDomainError("review", "Apply", ErrAggregateDrift, "stored aggregates are inconsistent with the requested transition")
)

// User errors
var (
	ErrUserNotFound   = NewDomainError("user", "Find", ErrNotFound, "user not found")
	ErrUsernameTaken  = NewDomainError("user", "Create", ErrAlreadyExists, "username already taken")
	ErrEmailTaken     = NewDomainError("user", "Create", ErrAlreadyExists, "email already registered")
	ErrNotPathCreator = NewDomainError("coursepath", "Authorize", ErrForbidden, "only the creator may perform this action")
)

// External capability errors
var (
	ErrGeneratorUnavailable = NewDomainError("generation", "Request", ErrServiceUnavailable, "topic generator is unavailable")
	ErrGeneratorTimeout     = NewDomainError("generation", "Request", ErrTimeout, "topic generation timed out")
	ErrEmptyGeneration      = NewDomainError("generation", "Request", ErrGeneration, "generator returned no topics")
	ErrClassifierFailed     = NewDomainError("sentiment", "Classify", ErrExternalService, "sentiment classification failed")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsInvalidState checks if the error is a lifecycle state error.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState) || errors.Is(err, ErrStateTransition)
}

// IsNotEnrolled checks if the error is caused by a missing enrollment.
func IsNotEnrolled(err error) bool {
	return errors.Is(err, ErrNotEnrolled)
}

// IsConflict checks if the error is an optimistic concurrency conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsDrift checks if the error signals that stored aggregates diverged from source rows.
func IsDrift(err error) bool {
	return errors.Is(err, ErrAggregateDrift)
}

// IsGeneration checks if the error is a generation failure.
func IsGeneration(err error) bool {
	return errors.Is(err, ErrGeneration)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}

// IsForbidden checks if the error is an authorization failure.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// FieldOf returns the offending field of a validation error, or "".
func FieldOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Field
	}
	return ""
}
