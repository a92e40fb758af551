/*
errors.go - Centralized error taxonomy for the identity & lifecycle core

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context; the API layer
  maps them to HTTP status codes with the helpers at the bottom of this file.

ERROR CATEGORIES:
  1. Lookup errors     - NotFound, MalformedLabel
  2. Conflict errors   - DuplicateField, DuplicateIdentifier, VersionConflict
  3. Validation errors - InvalidDateRange, InvalidTransition (and refinements),
                         RoleInUse, MissingActor, Validation
  4. Systemic errors   - ExhaustedAttempts

USAGE:
    if errors.Is(err, generic.ErrVersionConflict) {
        // re-read and retry with fresh data
    }

    var conflict *generic.VersionConflictError
    if errors.As(err, &conflict) {
        log.Printf("expected v%d, stored v%d", conflict.Expected, conflict.Actual)
    }

SEE ALSO:
  - version.go: Produces VersionConflictError
  - personnel/lifecycle.go: Produces TransitionError
  - api/errors.go: HTTP status mapping
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a lookup misses, including lookups of
	// purged records and malformed display labels.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateField is returned when a unique field (email, role name,
	// unit name, live assignment) collides with an existing live row.
	ErrDuplicateField = errors.New("duplicate field")

	// ErrDuplicateIdentifier is returned when the storage uniqueness
	// constraint on identifiers (or their live label suffix) fires at write time.
	ErrDuplicateIdentifier = errors.New("duplicate identifier")

	// ErrVersionConflict is returned when optimistic locking detects a conflict.
	ErrVersionConflict = errors.New("version conflict")

	// ErrInvalidDateRange is returned when an end date is not after its start.
	ErrInvalidDateRange = errors.New("invalid date range")

	// ErrInvalidTransition is returned when a lifecycle or deletion event is
	// not allowed from the current state.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrAlreadyConverted refines ErrInvalidTransition for re-conversion.
	ErrAlreadyConverted = errors.New("already converted")

	// ErrAlreadyEnded refines ErrInvalidTransition for ending a finished internship.
	ErrAlreadyEnded = errors.New("internship already ended")

	// ErrAlreadyInactive refines ErrInvalidTransition for retiring an inactive employee.
	ErrAlreadyInactive = errors.New("already inactive")

	// ErrExhaustedAttempts is returned when no unique identifier could be
	// generated within the attempt bound. Never retried by callers.
	ErrExhaustedAttempts = errors.New("exhausted identifier generation attempts")

	// ErrRoleInUse is returned when a role still has live assignments to
	// live personnel.
	ErrRoleInUse = errors.New("role in use")

	// ErrMalformedLabel is returned by the label codec. The resolver treats
	// it as ErrNotFound.
	ErrMalformedLabel = errors.New("malformed display label")

	// ErrMissingActor is returned when a mutation is attempted without an
	// actor reference to stamp on the audit entry.
	ErrMissingActor = errors.New("missing actor reference")

	// ErrValidation is returned for malformed input that is not a date range.
	ErrValidation = errors.New("validation failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// VersionConflictError provides details about an optimistic lock mismatch.
type VersionConflictError struct {
	Entity   string
	ID       string
	Expected int
	Actual   int
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("%s %s was modified concurrently: expected version %d, stored version %d",
		e.Entity, e.ID, e.Expected, e.Actual)
}

func (e *VersionConflictError) Unwrap() error {
	return ErrVersionConflict
}

// DuplicateFieldError identifies which unique field collided.
type DuplicateFieldError struct {
	Entity string
	Field  string
	Value  string
}

func (e *DuplicateFieldError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s %s already exists", e.Entity, e.Field)
	}
	return fmt.Sprintf("%s %s %q already exists", e.Entity, e.Field, e.Value)
}

func (e *DuplicateFieldError) Unwrap() error {
	return ErrDuplicateField
}

// TransitionError describes a rejected lifecycle or deletion event.
// Kind is ErrInvalidTransition or one of its refinements.
type TransitionError struct {
	From   string
	Event  string
	Kind   error
	Reason string
}

func (e *TransitionError) Error() string {
	kind := e.Kind
	if kind == nil {
		kind = ErrInvalidTransition
	}
	if e.Reason == "" {
		return fmt.Sprintf("%s: %s from %s", kind, e.Event, e.From)
	}
	return fmt.Sprintf("%s: %s from %s: %s", kind, e.Event, e.From, e.Reason)
}

// Unwrap exposes both the refinement and ErrInvalidTransition so either
// errors.Is check succeeds.
func (e *TransitionError) Unwrap() []error {
	if e.Kind == nil || e.Kind == ErrInvalidTransition {
		return []error{ErrInvalidTransition}
	}
	return []error{e.Kind, ErrInvalidTransition}
}

// RoleInUseError reports how many live assignments block a role deletion.
type RoleInUseError struct {
	RoleID      string
	Assignments int
}

func (e *RoleInUseError) Error() string {
	return fmt.Sprintf("role %s is assigned to %d live person(s); remove assignments first",
		e.RoleID, e.Assignments)
}

func (e *RoleInUseError) Unwrap() error {
	return ErrRoleInUse
}

// InvalidRangef builds an ErrInvalidDateRange with a formatted message.
func InvalidRangef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDateRange, fmt.Sprintf(format, args...))
}

// Validationf builds an ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf builds an ErrNotFound with a formatted message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed after re-reading.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsConflict returns true for uniqueness and optimistic lock failures.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateField) ||
		errors.Is(err, ErrDuplicateIdentifier) ||
		errors.Is(err, ErrVersionConflict)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidDateRange) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrRoleInUse) ||
		errors.Is(err, ErrMissingActor) ||
		errors.Is(err, ErrValidation)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrMalformedLabel)
}
