package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pilot-net/fleet-control/pkg/types"
)

// ErrorKind classifies failures so the API boundary can map them to a status.
type ErrorKind string

const (
	// KindValidation - missing or malformed input, never retried
	KindValidation ErrorKind = "validation"
	// KindNotFound - referenced mission, segment or swarm does not exist
	KindNotFound ErrorKind = "not_found"
	// KindInvalidState - guard failed against current state, or unassigned drones
	KindInvalidState ErrorKind = "invalid_state"
	// KindStore - underlying transactional failure, nothing was applied
	KindStore ErrorKind = "store"
)

// Error is a classified service error. It supports errors.Is by kind and
// errors.As / Unwrap for the underlying cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a service error of the same kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// WithContext adds contextual information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Sentinels for errors.Is checks.
var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrInvalidState = &Error{Kind: KindInvalidState}
	ErrStore        = &Error{Kind: KindStore}
)

// KindOf returns the kind of err, treating unclassified errors as store failures.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStore
}

// ValidationError creates a validation error.
func ValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError creates a not-found error for the given entity.
func NotFoundError(entity, id string) *Error {
	return (&Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s not found: %s", entity, id),
	}).WithContext(entity+"_id", id)
}

// InvalidTransitionError reports an action whose guard failed.
func InvalidTransitionError(action types.MissionAction, current types.MissionStatus) *Error {
	allowed := action.AllowedFrom()
	names := make([]string, len(allowed))
	for i, s := range allowed {
		names[i] = string(s)
	}
	return (&Error{
		Kind: KindInvalidState,
		Message: fmt.Sprintf("cannot %s mission in status %s (allowed from: %s)",
			action, current, strings.Join(names, ", ")),
	}).WithContext("current_status", current).WithContext("action", action)
}

// InvalidStateError creates a generic invalid-state error.
func InvalidStateError(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

// StoreError wraps a persistence failure.
func StoreError(op string, cause error) *Error {
	return &Error{Kind: KindStore, Message: op, Cause: cause}
}

// classify passes service errors through and wraps anything else as a store failure.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return StoreError(op, err)
}
