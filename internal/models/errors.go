package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorKind classifies core failures. The gateway maps each kind to an HTTP
// status; the core only reports them.
type ErrorKind string

const (
	KindInvalidAmountFormat      ErrorKind = "InvalidAmountFormat"
	KindInsufficientFunds        ErrorKind = "InsufficientFunds"
	KindNotAuthorized            ErrorKind = "NotAuthorized"
	KindNotFound                 ErrorKind = "NotFound"
	KindDuplicateUsername        ErrorKind = "DuplicateUsername"
	KindDuplicateAccess          ErrorKind = "DuplicateAccess"
	KindInvalidBirthDate         ErrorKind = "InvalidBirthDate"
	KindDomainInvariantViolation ErrorKind = "DomainInvariantViolation"
)

// Sentinels for errors.Is. Any *Error matches the sentinel of its kind.
var (
	ErrInvalidAmountFormat      = &Error{Kind: KindInvalidAmountFormat}
	ErrInsufficientFunds        = &Error{Kind: KindInsufficientFunds}
	ErrNotAuthorized            = &Error{Kind: KindNotAuthorized}
	ErrNotFound                 = &Error{Kind: KindNotFound}
	ErrDuplicateUsername        = &Error{Kind: KindDuplicateUsername}
	ErrDuplicateAccess          = &Error{Kind: KindDuplicateAccess}
	ErrInvalidBirthDate         = &Error{Kind: KindInvalidBirthDate}
	ErrDomainInvariantViolation = &Error{Kind: KindDomainInvariantViolation}
)

// Error is a structured core failure: a kind, a human readable message and
// the identifiers involved.
type Error struct {
	Kind    ErrorKind
	Message string
	Fields  map[string]any
}

// NewError builds an *Error with a formatted message.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// With attaches an offending identifier and returns the same error.
func (e *Error) With(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	if len(e.Fields) == 0 {
		return string(e.Kind) + ": " + e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, e.Fields[k])
	}
	return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, strings.Join(parts, " "))
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "" when
// err is not a core error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
