// Package apperr defines the error kinds returned across the service boundary.
// Errors carry structured fields only; client-facing messages are produced by
// the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindMissingCredentials
	KindEmailTaken
	KindUserExists
	KindNotFound
	KindAuthenticationFailed
	KindInvalidToken
	KindExpiredToken
	KindAccountInactive
	KindAccountBlocked
	KindUnauthorized
	KindForbidden
	KindSigningError
	KindStoreUnavailable
)

var kindNames = map[Kind]string{
	KindInternal:             "internal",
	KindValidation:           "validation",
	KindMissingCredentials:   "missing credentials",
	KindEmailTaken:           "email taken",
	KindUserExists:           "user exists",
	KindNotFound:             "not found",
	KindAuthenticationFailed: "authentication failed",
	KindInvalidToken:         "invalid token",
	KindExpiredToken:         "expired token",
	KindAccountInactive:      "account inactive",
	KindAccountBlocked:       "account blocked",
	KindUnauthorized:         "unauthorized",
	KindForbidden:            "forbidden",
	KindSigningError:         "signing error",
	KindStoreUnavailable:     "store unavailable",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a tagged error. Field and Rule are set for validation failures
// (Rule follows validator tag names: "required", "email", "max", ...). For
// KindNotFound, Field alone names the missing resource.
// Reason is an internal note for logs and never reaches clients.
type Error struct {
	Kind   Kind
	Op     string
	Field  string
	Rule   string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	switch {
	case e.Field != "" && e.Rule != "":
		msg += fmt.Sprintf(" (%s %s)", e.Field, e.Rule)
	case e.Field != "":
		msg += " (" + e.Field + ")"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, op, reason string) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason}
}

func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NotFound names the missing resource in Field, e.g. "user" or "session".
func NotFound(op, resource string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Field: resource}
}

func Validation(op, field, rule string) *Error {
	return &Error{Kind: KindValidation, Op: op, Field: field, Rule: rule}
}

// KindOf reports the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
