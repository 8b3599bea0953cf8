package library

import (
	"database/sql"
	"time"
)

// BookStatus is the circulation state of a book. The numeric values are the
// ones written to the data file.
type BookStatus int

const (
	StatusAvailable BookStatus = 0
	StatusBorrowed  BookStatus = 1
)

func (s BookStatus) String() string {
	if s == StatusBorrowed {
		return "Borrowed"
	}
	return "Available"
}

// Book is a catalog entry. BorrowerID is valid iff Status is StatusBorrowed.
type Book struct {
	ID         int64         `json:"id"`
	Title      string        `json:"title"`
	Author     string        `json:"author"`
	Genre      string        `json:"genre"`
	Status     BookStatus    `json:"status"`
	BorrowerID sql.NullInt64 `json:"-"`
}

// Available reports whether the book can be borrowed.
func (b Book) Available() bool { return b.Status == StatusAvailable }

// Loan is one book held by a user.
type Loan struct {
	BookID     int64     `json:"book_id"`
	BorrowedAt time.Time `json:"borrowed_at"`
}

// User is a registered library user and the books they hold, oldest first.
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Loans []Loan `json:"loans"`
}

func (u User) clone() User {
	u.Loans = append([]Loan(nil), u.Loans...)
	return u
}

// LoanDetail joins a loan with its book and derived due date.
type LoanDetail struct {
	Book       Book      `json:"book"`
	BorrowedAt time.Time `json:"borrowed_at"`
	DueAt      time.Time `json:"due_at"`
	Overdue    bool      `json:"overdue"`
}

// OverdueLoan is a loan whose due date has passed.
type OverdueLoan struct {
	Book        Book      `json:"book"`
	User        User      `json:"user"`
	DueAt       time.Time `json:"due_at"`
	DaysOverdue int       `json:"days_overdue"`
}

// Stats summarizes the catalog.
type Stats struct {
	TotalBooks      int `json:"total_books"`
	AvailableBooks  int `json:"available_books"`
	BorrowedBooks   int `json:"borrowed_books"`
	TotalUsers      int `json:"total_users"`
	ActiveBorrowers int `json:"active_borrowers"`
	InactiveUsers   int `json:"inactive_users"`
}
