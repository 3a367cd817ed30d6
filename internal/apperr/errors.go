// Package apperr defines the error kinds the HTTP layer maps to status codes.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an application error.
type Kind int

const (
	// KindValidation marks malformed input rejected before any side effect.
	KindValidation Kind = iota
	// KindConflict marks a slot or record no longer available at write time.
	KindConflict
	// KindNotFound marks a missing record.
	KindNotFound
	// KindExternalProvider marks a failed or malformed payment-provider call.
	KindExternalProvider
	// KindNotConfigured marks a tenant or platform without payment credentials.
	KindNotConfigured
	// KindStaleEntitlement marks an entitlement exhausted at the moment of consumption.
	KindStaleEntitlement
)

// Error is an application error with a classification and a human-readable reason.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// Validation builds a KindValidation error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Reason: fmt.Sprintf(format, args...)}
}

// Conflict builds a KindConflict error.
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Reason: fmt.Sprintf(format, args...)}
}

// NotFound builds a KindNotFound error.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Reason: fmt.Sprintf(format, args...)}
}

// ExternalProvider wraps a provider failure.
func ExternalProvider(reason string, err error) *Error {
	return &Error{Kind: KindExternalProvider, Reason: reason, Err: err}
}

// NotConfigured builds a KindNotConfigured error.
func NotConfigured(format string, args ...any) *Error {
	return &Error{Kind: KindNotConfigured, Reason: fmt.Sprintf(format, args...)}
}

// StaleEntitlement builds a KindStaleEntitlement error.
func StaleEntitlement(format string, args ...any) *Error {
	return &Error{Kind: KindStaleEntitlement, Reason: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of err and whether err is an application error.
func KindOf(err error) (Kind, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind, true
	}
	return 0, false
}

// IsKind reports whether err is an application error of the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
