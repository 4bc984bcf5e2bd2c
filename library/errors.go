package library

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

// Kind classifies a failure so callers can react without matching strings.
type Kind int

const (
	// KindStorage is any unexpected error from the underlying store.
	KindStorage Kind = iota
	KindConflict
	KindRejected
	KindNotFound
	KindInvalid
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindConflict:
		return "conflict"
	case KindRejected:
		return "rejected"
	case KindNotFound:
		return "not found"
	case KindInvalid:
		return "invalid input"
	case KindUnauthorized:
		return "unauthorized"
	}
	return "storage"
}

// Error is a result-level failure with a human-readable reason.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string { return e.Reason }

var (
	ErrUsernameExists = &Error{KindConflict, "username exists"}
	ErrEmailExists    = &Error{KindConflict, "email exists"}
	ErrActiveIssues   = &Error{KindConflict, "active issues"}

	ErrNoCopiesAvailable = &Error{KindRejected, "no copies available"}
	ErrAlreadyReturned   = &Error{KindRejected, "already returned"}

	ErrUserNotFound        = &Error{KindNotFound, "user not found"}
	ErrBookNotFound        = &Error{KindNotFound, "book not found"}
	ErrMemberNotFound      = &Error{KindNotFound, "member not found"}
	ErrTransactionNotFound = &Error{KindNotFound, "not found"}

	ErrInvalidInput = &Error{KindInvalid, "invalid input"}

	ErrInvalidCredentials = &Error{KindUnauthorized, "invalid credentials"}
	ErrUnauthenticated    = &Error{KindUnauthorized, "not logged in"}
	ErrForbidden          = &Error{KindUnauthorized, "admin role required"}
)

// KindOf returns the classification of err. Errors that did not originate
// from this package are storage errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}
