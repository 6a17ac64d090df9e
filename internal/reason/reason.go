// Package reason defines the closed taxonomy of domain failure reasons
// shared by the sync core. Every reason carries a stable string tag, a
// five-digit numeric code, the HTTP status the server maps it to, and a
// category, so callers can recognize a conflict or a missing entity
// without inspecting transport details.
package reason

import (
	"errors"
	"fmt"
	"net/http"
)

// Category groups reasons by the class of failure.
type Category string

const (
	CategoryAuth       Category = "AUTH"
	CategoryForbidden  Category = "FORBIDDEN"
	CategoryNotFound   Category = "NOT_FOUND"
	CategoryValidation Category = "VALIDATION"
	CategoryConflict   Category = "CONFLICT"
	CategoryServer     Category = "SERVER"
)

// Error is a typed domain failure. Reason is the discriminant callers
// match on; Metadata carries reason-specific detail (for a conflict,
// both record versions).
type Error struct {
	Reason     string
	Code       int
	HTTPStatus int
	Category   Category
	Message    string
	Metadata   map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Reason, e.Code, e.Message)
}

// WithMessage returns a copy of the reason with a contextual message.
// The taxonomy values themselves are never mutated.
func (e *Error) WithMessage(msg string) *Error {
	c := *e
	c.Message = msg

	return &c
}

// WithMetadata returns a copy of the reason carrying the given metadata.
func (e *Error) WithMetadata(md map[string]any) *Error {
	c := *e
	c.Metadata = md

	return &c
}

// The taxonomy. Codes are stable identifiers, not sequential; the first
// digit tracks the HTTP status class.
var (
	Unauthorized = &Error{
		Reason:     "UNAUTHORIZED",
		Code:       40100,
		HTTPStatus: http.StatusUnauthorized,
		Category:   CategoryAuth,
		Message:    "authentication required",
	}
	Forbidden = &Error{
		Reason:     "FORBIDDEN",
		Code:       40300,
		HTTPStatus: http.StatusForbidden,
		Category:   CategoryForbidden,
		Message:    "not allowed",
	}
	NotFound = &Error{
		Reason:     "NOT_FOUND",
		Code:       40400,
		HTTPStatus: http.StatusNotFound,
		Category:   CategoryNotFound,
		Message:    "entity not found",
	}
	Validation = &Error{
		Reason:     "VALIDATION",
		Code:       40000,
		HTTPStatus: http.StatusBadRequest,
		Category:   CategoryValidation,
		Message:    "invalid request payload",
	}
	Conflict = &Error{
		Reason:     "CONFLICT",
		Code:       40900,
		HTTPStatus: http.StatusConflict,
		Category:   CategoryConflict,
		Message:    "concurrent write detected",
	}
	RateLimitExceeded = &Error{
		Reason:     "RATE_LIMIT_EXCEEDED",
		Code:       42900,
		HTTPStatus: http.StatusTooManyRequests,
		Category:   CategoryServer,
		Message:    "too many requests",
	}
	StorageBlocked = &Error{
		Reason:     "STORAGE_BLOCKED",
		Code:       50701,
		HTTPStatus: http.StatusInsufficientStorage,
		Category:   CategoryServer,
		Message:    "local storage is full; sync before creating new records",
	}
	SyncInProgress = &Error{
		Reason:     "SYNC_IN_PROGRESS",
		Code:       40901,
		HTTPStatus: http.StatusConflict,
		Category:   CategoryConflict,
		Message:    "a sync pass is already running",
	}
	Internal = &Error{
		Reason:     "INTERNAL",
		Code:       50000,
		HTTPStatus: http.StatusInternalServerError,
		Category:   CategoryServer,
		Message:    "internal error",
	}
	Database = &Error{
		Reason:     "DATABASE",
		Code:       50001,
		HTTPStatus: http.StatusInternalServerError,
		Category:   CategoryServer,
		Message:    "database error",
	}
)

// From unwraps err into a taxonomy *Error, or nil if err is not one.
func From(err error) *Error {
	var re *Error
	if errors.As(err, &re) {
		return re
	}

	return nil
}

// Is reports whether err carries the given reason tag.
func Is(err error, reason string) bool {
	re := From(err)

	return re != nil && re.Reason == reason
}

// IsConflict reports whether err is a 409-class concurrent-write failure.
func IsConflict(err error) bool {
	re := From(err)

	return re != nil && re.Category == CategoryConflict && re.Reason == Conflict.Reason
}

// IsNotFound reports whether err signals the entity no longer exists
// server-side (an orphaned mutation on replay).
func IsNotFound(err error) bool {
	re := From(err)

	return re != nil && re.Category == CategoryNotFound
}
