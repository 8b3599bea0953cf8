package library

import (
	"database/sql"
	"slices"
	"time"
)

// Borrow lends a book to a user. All checks run before either record is
// touched, so a failed borrow leaves the library unchanged.
func (l *Library) Borrow(userID, bookID int64) error {
	ui := l.userIndex(userID)
	if ui < 0 {
		return newError(KindUserNotFound, "borrow", userID, nil)
	}
	bi := l.bookIndex(bookID)
	if bi < 0 {
		return newError(KindBookNotFound, "borrow", bookID, nil)
	}
	book, user := &l.books[bi], &l.users[ui]
	if book.Status == StatusBorrowed {
		return newError(KindAlreadyBorrowed, "borrow", bookID, nil)
	}
	if len(user.Loans) >= l.limits.BorrowLimit {
		return newError(KindBorrowLimitReached, "borrow", userID, nil)
	}

	book.Status = StatusBorrowed
	book.BorrowerID = sql.NullInt64{Int64: userID, Valid: true}
	user.Loans = append(user.Loans, Loan{
		BookID:     bookID,
		BorrowedAt: l.now().UTC().Truncate(time.Second),
	})
	return nil
}

// ReturnBook takes a book back from the user holding it. Overdue books are
// returned like any other.
func (l *Library) ReturnBook(userID, bookID int64) error {
	ui := l.userIndex(userID)
	if ui < 0 {
		return newError(KindUserNotFound, "return book", userID, nil)
	}
	bi := l.bookIndex(bookID)
	if bi < 0 {
		return newError(KindBookNotFound, "return book", bookID, nil)
	}
	book, user := &l.books[bi], &l.users[ui]
	if book.Status != StatusBorrowed || !book.BorrowerID.Valid || book.BorrowerID.Int64 != userID {
		return newError(KindNotBorrowedByUser, "return book", bookID, nil)
	}

	book.Status = StatusAvailable
	book.BorrowerID = sql.NullInt64{}
	if i := slices.IndexFunc(user.Loans, func(ln Loan) bool { return ln.BookID == bookID }); i >= 0 {
		user.Loans = slices.Delete(user.Loans, i, i+1)
	}
	return nil
}

// DueDate is the moment a loan started at borrowedAt becomes overdue.
func DueDate(borrowedAt time.Time, period time.Duration) time.Time {
	return borrowedAt.Add(period)
}

// IsOverdue reports whether a loan started at borrowedAt is past due at now.
func IsOverdue(borrowedAt time.Time, period time.Duration, now time.Time) bool {
	return now.After(DueDate(borrowedAt, period))
}

// UserLoans lists a user's loans with their books and due dates, oldest first.
func (l *Library) UserLoans(userID int64) ([]LoanDetail, error) {
	ui := l.userIndex(userID)
	if ui < 0 {
		return nil, newError(KindUserNotFound, "user loans", userID, nil)
	}
	now := l.now()
	details := make([]LoanDetail, 0, len(l.users[ui].Loans))
	for _, ln := range l.users[ui].Loans {
		bi := l.bookIndex(ln.BookID)
		if bi < 0 {
			continue
		}
		details = append(details, LoanDetail{
			Book:       l.books[bi],
			BorrowedAt: ln.BorrowedAt,
			DueAt:      DueDate(ln.BorrowedAt, l.limits.BorrowPeriod),
			Overdue:    IsOverdue(ln.BorrowedAt, l.limits.BorrowPeriod, now),
		})
	}
	return details, nil
}

// OverdueLoans lists every loan past due at now, grouped by user in table order.
func (l *Library) OverdueLoans(now time.Time) []OverdueLoan {
	var overdue []OverdueLoan
	for _, u := range l.users {
		for _, ln := range u.Loans {
			if !IsOverdue(ln.BorrowedAt, l.limits.BorrowPeriod, now) {
				continue
			}
			bi := l.bookIndex(ln.BookID)
			if bi < 0 {
				continue
			}
			due := DueDate(ln.BorrowedAt, l.limits.BorrowPeriod)
			overdue = append(overdue, OverdueLoan{
				Book:        l.books[bi],
				User:        u.clone(),
				DueAt:       due,
				DaysOverdue: int(now.Sub(due) / (24 * time.Hour)),
			})
		}
	}
	return overdue
}

// Stats counts books by status and users by whether they hold any book.
func (l *Library) Stats() Stats {
	s := Stats{TotalBooks: len(l.books), TotalUsers: len(l.users)}
	for _, b := range l.books {
		if b.Available() {
			s.AvailableBooks++
		} else {
			s.BorrowedBooks++
		}
	}
	for _, u := range l.users {
		if len(u.Loans) > 0 {
			s.ActiveBorrowers++
		}
	}
	s.InactiveUsers = s.TotalUsers - s.ActiveBorrowers
	return s
}

// Now returns the library's current time.
func (l *Library) Now() time.Time { return l.now() }
