package library

import (
	"errors"
	"fmt"
)

// ErrorKind discriminates the failures a library operation can report.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindInvalidInput
	KindBookNotFound
	KindUserNotFound
	KindAlreadyBorrowed
	KindNotBorrowedByUser
	KindCapacityExceeded
	KindBorrowLimitReached
	KindUserHasActiveLoans
	KindBookStillBorrowed
	KindIO
)

// Sentinel errors, one per kind. Match with errors.Is; the errors actually
// returned are *Error values carrying the operation and record id.
var (
	// ErrInvalidInput is returned for empty, over-long or unstorable text.
	ErrInvalidInput = &Error{Kind: KindInvalidInput}

	// ErrBookNotFound is returned when no book has the requested id.
	ErrBookNotFound = &Error{Kind: KindBookNotFound}

	// ErrUserNotFound is returned when no user has the requested id.
	ErrUserNotFound = &Error{Kind: KindUserNotFound}

	// ErrAlreadyBorrowed is returned when borrowing a book that is out.
	ErrAlreadyBorrowed = &Error{Kind: KindAlreadyBorrowed}

	// ErrNotBorrowedByUser is returned when returning a book the user does not hold.
	ErrNotBorrowedByUser = &Error{Kind: KindNotBorrowedByUser}

	// ErrCapacityExceeded is returned when a table is full.
	ErrCapacityExceeded = &Error{Kind: KindCapacityExceeded}

	// ErrBorrowLimitReached is returned when a user already holds the maximum number of books.
	ErrBorrowLimitReached = &Error{Kind: KindBorrowLimitReached}

	// ErrUserHasActiveLoans is returned when deleting a user who still holds books.
	ErrUserHasActiveLoans = &Error{Kind: KindUserHasActiveLoans}

	// ErrBookStillBorrowed is returned when deleting a book that is out.
	ErrBookStillBorrowed = &Error{Kind: KindBookStillBorrowed}

	// ErrIO is returned when the data file cannot be read, parsed or written.
	ErrIO = &Error{Kind: KindIO}
)

// Error is the error type returned by every fallible library operation.
type Error struct {
	Kind ErrorKind
	Op   string // operation name, e.g. "borrow"
	ID   int64  // record id involved, 0 when not applicable
	Err  error  // underlying cause, may be nil
}

func newError(kind ErrorKind, op string, id int64, cause error) *Error {
	return &Error{Kind: kind, Op: op, ID: id, Err: cause}
}

func (e *Error) Error() string {
	msg := Describe(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.ID != 0 {
		msg = fmt.Sprintf("%s (id %d)", msg, e.ID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind. A book that is
// still borrowed at delete time also matches ErrAlreadyBorrowed.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return e.Kind == KindBookStillBorrowed && t.Kind == KindAlreadyBorrowed
}

// KindOf extracts the kind of err, or KindUnknown if err is not a library error.
func KindOf(err error) ErrorKind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindUnknown
}

func (k ErrorKind) String() string { return Describe(k) }

// Describe returns a short human-readable description of kind.
func Describe(kind ErrorKind) string {
	switch kind {
	case KindInvalidInput:
		return "invalid input data"
	case KindBookNotFound:
		return "book not found"
	case KindUserNotFound:
		return "user not found"
	case KindAlreadyBorrowed:
		return "book already borrowed"
	case KindNotBorrowedByUser:
		return "book not borrowed by this user"
	case KindCapacityExceeded:
		return "maximum capacity reached"
	case KindBorrowLimitReached:
		return "user borrow limit reached"
	case KindUserHasActiveLoans:
		return "user has borrowed books"
	case KindBookStillBorrowed:
		return "book is currently borrowed"
	case KindIO:
		return "file I/O error"
	default:
		return "unknown error"
	}
}
