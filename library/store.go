package library

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Library is the in-memory record store: the book and user tables in
// insertion order plus the id counters. It is not safe for concurrent use;
// LibraryManager serializes access to one.
type Library struct {
	books      []Book
	users      []User
	nextBookID int64
	nextUserID int64

	limits Limits
	now    func() time.Time
}

// Option configures a Library.
type Option func(*Library)

// WithClock replaces time.Now as the source of borrow timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Library) { l.now = now }
}

// NewLibrary returns an empty library whose counters start at 1.
func NewLibrary(limits Limits, opts ...Option) *Library {
	l := &Library{
		nextBookID: 1,
		nextUserID: 1,
		limits:     limits,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Limits returns the limits the library was created with.
func (l *Library) Limits() Limits { return l.limits }

// NextBookID returns the id the next added book will get.
func (l *Library) NextBookID() int64 { return l.nextBookID }

// NextUserID returns the id the next added user will get.
func (l *Library) NextUserID() int64 { return l.nextUserID }

func (l *Library) generateBookID() int64 {
	id := l.nextBookID
	l.nextBookID++
	return id
}

func (l *Library) generateUserID() int64 {
	id := l.nextUserID
	l.nextUserID++
	return id
}

// bookIndex scans the book table in order; -1 if absent.
func (l *Library) bookIndex(id int64) int {
	for i := range l.books {
		if l.books[i].ID == id {
			return i
		}
	}
	return -1
}

// userIndex scans the user table in order; -1 if absent.
func (l *Library) userIndex(id int64) int {
	for i := range l.users {
		if l.users[i].ID == id {
			return i
		}
	}
	return -1
}

// FindBookByID returns a copy of the book with the given id.
func (l *Library) FindBookByID(id int64) (Book, error) {
	i := l.bookIndex(id)
	if i < 0 {
		return Book{}, newError(KindBookNotFound, "find book", id, nil)
	}
	return l.books[i], nil
}

// FindUserByID returns a copy of the user with the given id.
func (l *Library) FindUserByID(id int64) (User, error) {
	i := l.userIndex(id)
	if i < 0 {
		return User{}, newError(KindUserNotFound, "find user", id, nil)
	}
	return l.users[i].clone(), nil
}

// Books returns a copy of the book table in table order.
func (l *Library) Books() []Book {
	return append([]Book(nil), l.books...)
}

// Users returns a copy of the user table in table order.
func (l *Library) Users() []User {
	users := make([]User, len(l.users))
	for i := range l.users {
		users[i] = l.users[i].clone()
	}
	return users
}

func (l *Library) BookCount() int { return len(l.books) }
func (l *Library) UserCount() int { return len(l.users) }

func (l *Library) booksFull() bool {
	return l.limits.MaxBooks > 0 && len(l.books) >= l.limits.MaxBooks
}

func (l *Library) usersFull() bool {
	return l.limits.MaxUsers > 0 && len(l.users) >= l.limits.MaxUsers
}

// hasRoom reports whether the given numbers of new books and users fit.
func (l *Library) hasRoom(books, users int) bool {
	if l.limits.MaxBooks > 0 && len(l.books)+books > l.limits.MaxBooks {
		return false
	}
	return l.limits.MaxUsers <= 0 || len(l.users)+users <= l.limits.MaxUsers
}

// validateText checks a free-text field: non-blank, at most maxLen runes,
// and free of the data file's field and record separators.
func validateText(field, value string, maxLen int) error {
	switch {
	case strings.TrimSpace(value) == "":
		return fmt.Errorf("%s must not be empty", field)
	case utf8.RuneCountInString(value) > maxLen:
		return fmt.Errorf("%s must be at most %d characters", field, maxLen)
	case strings.ContainsAny(value, fieldSeparator+"\r\n"):
		return fmt.Errorf("%s must not contain %q or line breaks", field, fieldSeparator)
	}
	return nil
}
