// Package apperrors defines the error kinds surfaced by the chat core.
package apperrors

import "errors"

var (
	ErrNotAuthorized    = errors.New("not authorized")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrInternal         = errors.New("internal error")
)

// Kind is the stable classification of an error.
type Kind string

const (
	KindNotAuthorized    Kind = "not_authorized"
	KindInvalidOperation Kind = "invalid_operation"
	KindNotFound         Kind = "not_found"
	KindConflict         Kind = "conflict"
	KindInternal         Kind = "internal"
)

// KindOf classifies err. Anything unrecognised is Internal.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrNotAuthorized):
		return KindNotAuthorized
	case errors.Is(err, ErrInvalidOperation):
		return KindInvalidOperation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindInternal
	}
}

// IsDomain reports whether err carries one of the non-internal kinds.
func IsDomain(err error) bool {
	return err != nil && KindOf(err) != KindInternal
}
