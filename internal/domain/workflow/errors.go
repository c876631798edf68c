package workflow

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotInitialStage is returned when submit is attempted outside the initial stage
	ErrNotInitialStage = errors.New("application is not at the initial stage")

	// ErrInvalidTransition is returned when no edge joins the two stages
	ErrInvalidTransition = errors.New("invalid stage transition")

	// ErrConditionFailed is returned when a transition guard rejects the move
	ErrConditionFailed = errors.New("transition condition failed")

	// ErrNoSubmitTransition is returned when submit finds no role-appropriate outgoing transition
	ErrNoSubmitTransition = errors.New("no submit transition")

	// ErrMisconfigured is returned when the catalog cannot support the requested move
	ErrMisconfigured = errors.New("workflow misconfigured")

	// ErrForbidden is returned when the user's role may not process the current stage
	ErrForbidden = errors.New("forbidden")

	// ErrNothingToResolve is returned when no unresolved objection matches
	ErrNothingToResolve = errors.New("no unresolved objections")

	// ErrMissingUpdates is returned when updated fields do not cover every objection
	ErrMissingUpdates = errors.New("missing updates for objected fields")

	// ErrNoOriginatingStage is returned when the stage to return to cannot be determined
	ErrNoOriginatingStage = errors.New("no originating stage")

	// ErrNotOfficerStage is returned when objections are raised outside an officer stage
	ErrNotOfficerStage = errors.New("objections can only be raised from an officer stage")

	// ErrStoreConflict is returned when the store aborted the unit of work; retryable
	ErrStoreConflict = errors.New("store conflict")

	// ErrNotFound is returned when an application, stage or catalog entity is missing
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned when caller input is rejected
	ErrValidation = errors.New("validation failed")
)

// ConditionError reports the guard key that failed and the value it expected
type ConditionError struct {
	Key      string
	Expected any
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("%s: %s must be %v", ErrConditionFailed, e.Key, e.Expected)
}

func (e *ConditionError) Unwrap() error { return ErrConditionFailed }

// NoSubmitTransitionError names the stage and role that could not submit
type NoSubmitTransitionError struct {
	Stage string
	Role  string
}

func (e *NoSubmitTransitionError) Error() string {
	return fmt.Sprintf("%s from stage %q for role %q", ErrNoSubmitTransition, e.Stage, e.Role)
}

func (e *NoSubmitTransitionError) Unwrap() error { return ErrNoSubmitTransition }

// MisconfiguredError carries a human readable description of the defect
type MisconfiguredError struct {
	Detail string
}

func (e *MisconfiguredError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMisconfigured, e.Detail)
}

func (e *MisconfiguredError) Unwrap() error { return ErrMisconfigured }

// Misconfigured builds a MisconfiguredError
func Misconfigured(format string, args ...any) error {
	return &MisconfiguredError{Detail: fmt.Sprintf(format, args...)}
}

// MissingUpdatesError lists the objected fields absent from the update
type MissingUpdatesError struct {
	Keys []string
}

func (e *MissingUpdatesError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingUpdates, strings.Join(e.Keys, ", "))
}

func (e *MissingUpdatesError) Unwrap() error { return ErrMissingUpdates }

// NotFoundError names the kind and id of the missing entity
type NotFoundError struct {
	Kind string
	ID   any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v %s", e.Kind, e.ID, ErrNotFound)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFound builds a NotFoundError
func NotFound(kind string, id any) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// ValidationError maps field names to messages
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError for a single field
func Invalid(field, message string) error {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// IsClientError reports whether err stems from caller input rather than the store
func IsClientError(err error) bool {
	for _, target := range []error{
		ErrNotInitialStage, ErrInvalidTransition, ErrConditionFailed, ErrNoSubmitTransition,
		ErrNothingToResolve, ErrMissingUpdates, ErrNoOriginatingStage, ErrNotOfficerStage,
		ErrValidation, ErrForbidden, ErrNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
