package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindInsufficientStock ErrorKind = "insufficient_stock"
	KindIllegalTransition ErrorKind = "illegal_transition"
	KindForbidden         ErrorKind = "forbidden"
	KindNotFound          ErrorKind = "not_found"
	KindConflict          ErrorKind = "conflict"
	KindIntegrity         ErrorKind = "integrity"
)

// Error is the typed failure returned by the booking engine. Message is safe
// to show to the caller.
type Error struct {
	Kind    ErrorKind
	Message string
	ItemID  string
}

func (e *Error) Error() string {
	if e.ItemID != "" {
		return fmt.Sprintf("%s: %s (item %s)", e.Kind, e.Message, e.ItemID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works
// for every not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock}
	ErrIllegalTransition = &Error{Kind: KindIllegalTransition}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrIntegrity         = &Error{Kind: KindIntegrity}
)

func ValidationErrorf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func InsufficientStock(itemID, message string) error {
	return &Error{Kind: KindInsufficientStock, Message: message, ItemID: itemID}
}

func IllegalTransitionf(format string, args ...any) error {
	return &Error{Kind: KindIllegalTransition, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(message string) error {
	return &Error{Kind: KindForbidden, Message: message}
}

func NotFound(what string) error {
	return &Error{Kind: KindNotFound, Message: what + " not found"}
}

func Conflict(message string) error {
	return &Error{Kind: KindConflict, Message: message}
}

func Integrityf(itemID, format string, args ...any) error {
	return &Error{Kind: KindIntegrity, Message: fmt.Sprintf(format, args...), ItemID: itemID}
}

// KindOf returns the kind of a domain error, or "" for infrastructure errors.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
