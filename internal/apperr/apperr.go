// Package apperr defines the error kinds shared by the booking and catalog
// workflows and the helpers used to construct them.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation             = errors.New("validation failed")
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrForbidden              = errors.New("forbidden")
	ErrNotFound               = errors.New("not found")
	ErrStaleReference         = errors.New("stale reference")
	ErrBookingConflict        = errors.New("booking conflict")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrPersistence            = errors.New("persistence failure")
	ErrUpload                 = errors.New("upload failure")
)

// Error is a classified failure carrying what the caller needs to render it.
type Error struct {
	Kind      error
	Message   string
	Fields    map[string]string
	Details   map[string]any
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Is matches the error kind so errors.Is(err, ErrNotFound) works through wrapping.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Code returns the stable machine-readable code for a kind.
func Code(kind error) string {
	switch kind {
	case ErrValidation:
		return "validation_error"
	case ErrAuthenticationRequired:
		return "authentication_required"
	case ErrForbidden:
		return "forbidden"
	case ErrNotFound:
		return "not_found"
	case ErrStaleReference:
		return "stale_reference"
	case ErrBookingConflict:
		return "booking_conflict"
	case ErrConcurrentModification:
		return "concurrent_modification"
	case ErrPersistence:
		return "persistence_error"
	case ErrUpload:
		return "upload_error"
	default:
		return "internal_error"
	}
}

// Validation builds a validation error from per-field messages.
func Validation(fields map[string]string) *Error {
	return &Error{Kind: ErrValidation, Message: "some fields are missing or invalid", Fields: fields}
}

// AuthenticationRequired asks the client to sign in at loginURL.
func AuthenticationRequired(loginURL string) *Error {
	return &Error{
		Kind:    ErrAuthenticationRequired,
		Message: "please sign in to continue",
		Details: map[string]any{"login_url": loginURL},
	}
}

// Forbidden reports a missing role.
func Forbidden(role string) *Error {
	return &Error{Kind: ErrForbidden, Message: "you do not have access to this area", Details: map[string]any{"required_role": role}}
}

// NotFound reports a missing entity.
func NotFound(what string) *Error {
	return &Error{Kind: ErrNotFound, Message: what + " not found"}
}

// Stale reports that a referenced catalog item changed since the requester saw it.
func Stale(reason string, details map[string]any) *Error {
	if details == nil {
		details = map[string]any{}
	}
	details["reason"] = reason
	msg := "the selected item is no longer available"
	if reason == "price_changed" {
		msg = "the price of the selected item has changed, please review it"
	}
	return &Error{Kind: ErrStaleReference, Message: msg, Details: details}
}

// Conflict reports that the requested slot is already reserved.
func Conflict(alternatives []string) *Error {
	if alternatives == nil {
		alternatives = []string{}
	}
	return &Error{
		Kind:    ErrBookingConflict,
		Message: "this time slot was just booked, please choose another one",
		Details: map[string]any{"alternative_slots": alternatives},
	}
}

// Modified reports an optimistic concurrency failure.
func Modified(currentVersion int64) *Error {
	return &Error{
		Kind:    ErrConcurrentModification,
		Message: "the item was changed by someone else, reload and try again",
		Details: map[string]any{"current_version": currentVersion},
	}
}

// Persistence wraps a storage failure. These are always retryable from the
// requester's point of view.
func Persistence(err error) *Error {
	return &Error{
		Kind:      ErrPersistence,
		Message:   "we could not save your request, please try again",
		Retryable: true,
		Err:       err,
	}
}

// Upload wraps an object storage failure.
func Upload(err error) *Error {
	return &Error{Kind: ErrUpload, Message: "the file could not be uploaded", Retryable: true, Err: err}
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
