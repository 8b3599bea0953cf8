package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"library-catalog/library"

	jsoniter "github.com/json-iterator/go"
)

const timeLayout = "2006-01-02 15:04"

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// bookView is the JSON shape of a book. The borrower is null when the book
// is on the shelf.
type bookView struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	Genre      string `json:"genre"`
	Status     string `json:"status"`
	BorrowerID *int64 `json:"borrower_id"`
}

func viewBook(b library.Book) bookView {
	v := bookView{ID: b.ID, Title: b.Title, Author: b.Author, Genre: b.Genre, Status: b.Status.String()}
	if b.BorrowerID.Valid {
		id := b.BorrowerID.Int64
		v.BorrowerID = &id
	}
	return v
}

func viewBooks(books []library.Book) []bookView {
	views := make([]bookView, 0, len(books))
	for _, b := range books {
		views = append(views, viewBook(b))
	}
	return views
}

type loanView struct {
	Book       bookView  `json:"book"`
	BorrowedAt time.Time `json:"borrowed_at"`
	DueAt      time.Time `json:"due_at"`
	Overdue    bool      `json:"overdue"`
}

type userView struct {
	ID    int64      `json:"id"`
	Name  string     `json:"name"`
	Loans []loanView `json:"loans"`
}

type overdueView struct {
	Book        bookView  `json:"book"`
	UserID      int64     `json:"user_id"`
	UserName    string    `json:"user_name"`
	DueAt       time.Time `json:"due_at"`
	DaysOverdue int       `json:"days_overdue"`
}

func viewUser(u library.User, loans []library.LoanDetail) userView {
	v := userView{ID: u.ID, Name: u.Name, Loans: make([]loanView, 0, len(loans))}
	for _, ln := range loans {
		v.Loans = append(v.Loans, loanView{Book: viewBook(ln.Book), BorrowedAt: ln.BorrowedAt, DueAt: ln.DueAt, Overdue: ln.Overdue})
	}
	return v
}

func viewOverdue(loans []library.OverdueLoan) []overdueView {
	views := make([]overdueView, 0, len(loans))
	for _, ln := range loans {
		views = append(views, overdueView{
			Book:        viewBook(ln.Book),
			UserID:      ln.User.ID,
			UserName:    ln.User.Name,
			DueAt:       ln.DueAt,
			DaysOverdue: ln.DaysOverdue,
		})
	}
	return views
}

func writeJSON(w io.Writer, v any) error {
	data, err := jsonAPI.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

func formatTime(t time.Time) string { return t.Local().Format(timeLayout) }

func printBookTable(w io.Writer, books []library.Book, users []library.User) {
	names := make(map[int64]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}

	fmt.Fprintf(w, "%-5s %-30s %-25s %-15s %-10s %s\n", "ID", "Title", "Author", "Genre", "Status", "Borrower")
	fmt.Fprintln(w, strings.Repeat("-", 110))
	for _, b := range books {
		borrower := "None"
		if b.BorrowerID.Valid {
			borrower = fmt.Sprintf("ID: %d", b.BorrowerID.Int64)
			if name, ok := names[b.BorrowerID.Int64]; ok {
				borrower = fmt.Sprintf("%s (ID: %d)", name, b.BorrowerID.Int64)
			}
		}
		fmt.Fprintf(w, "%-5d %-30s %-25s %-15s %-10s %s\n",
			b.ID,
			truncateString(b.Title, 30),
			truncateString(b.Author, 25),
			truncateString(b.Genre, 15),
			b.Status,
			truncateString(borrower, 30))
	}
}

func printBookLine(w io.Writer, b library.Book) {
	fmt.Fprintf(w, "ID: %d | Title: %s | Author: %s | Genre: %s | Status: %s\n", b.ID, b.Title, b.Author, b.Genre, b.Status)
}

func printSearchResults(w io.Writer, field, term string, books []library.Book) {
	fmt.Fprintf(w, "\n=== Search by %s: '%s' ===\n", field, term)
	if len(books) == 0 {
		fmt.Fprintln(w, "No books found!")
		return
	}
	for _, b := range books {
		printBookLine(w, b)
	}
}

func printAvailableBooks(w io.Writer, books []library.Book) {
	fmt.Fprintln(w, "\n=== Available Books ===")
	if len(books) == 0 {
		fmt.Fprintln(w, "No available books!")
		return
	}
	for _, b := range books {
		fmt.Fprintf(w, "ID: %d | Title: %s | Author: %s | Genre: %s\n", b.ID, b.Title, b.Author, b.Genre)
	}
}

func printAllBooks(w io.Writer, books []library.Book, users []library.User) {
	fmt.Fprintln(w, "\n=== All Books ===")
	if len(books) == 0 {
		fmt.Fprintln(w, "No books in library!")
		return
	}
	printBookTable(w, books, users)
}

func printUserInfo(w io.Writer, u library.User, loans []library.LoanDetail) {
	fmt.Fprintln(w, "\n=== User Information ===")
	fmt.Fprintf(w, "ID: %d | Name: %s\n", u.ID, u.Name)
	fmt.Fprintf(w, "Borrowed books count: %d\n", len(u.Loans))
	if len(loans) == 0 {
		return
	}
	fmt.Fprintln(w, "Borrowed books list:")
	for _, ln := range loans {
		fmt.Fprintf(w, "  - [%d] %s (Author: %s)\n", ln.Book.ID, ln.Book.Title, ln.Book.Author)
		fmt.Fprintf(w, "    Borrowed: %s | Due: %s", formatTime(ln.BorrowedAt), formatTime(ln.DueAt))
		if ln.Overdue {
			fmt.Fprint(w, " [OVERDUE!]")
		}
		fmt.Fprintln(w)
	}
}

func printAllUsers(w io.Writer, users []library.User) {
	fmt.Fprintln(w, "\n=== All Users ===")
	if len(users) == 0 {
		fmt.Fprintln(w, "No users!")
		return
	}
	fmt.Fprintf(w, "%-5s %-30s %s\n", "ID", "Name", "Borrowed books")
	fmt.Fprintln(w, strings.Repeat("-", 55))
	for _, u := range users {
		fmt.Fprintf(w, "%-5d %-30s %d\n", u.ID, truncateString(u.Name, 30), len(u.Loans))
	}
}

func printStats(w io.Writer, s library.Stats) {
	fmt.Fprintln(w, "\n=== Library Statistics ===")
	fmt.Fprintf(w, "Total Books: %d\n", s.TotalBooks)
	fmt.Fprintf(w, "  - Available: %d\n", s.AvailableBooks)
	fmt.Fprintf(w, "  - Borrowed: %d\n", s.BorrowedBooks)
	fmt.Fprintf(w, "\nTotal Users: %d\n", s.TotalUsers)
	fmt.Fprintf(w, "  - Active Borrowers: %d\n", s.ActiveBorrowers)
	fmt.Fprintf(w, "  - Inactive: %d\n", s.InactiveUsers)
}

func printOverdue(w io.Writer, loans []library.OverdueLoan) {
	fmt.Fprintln(w, "\n=== Overdue Books ===")
	if len(loans) == 0 {
		fmt.Fprintln(w, "No overdue books!")
		return
	}
	for _, ln := range loans {
		fmt.Fprintf(w, "Book: %s (ID: %d)\n", ln.Book.Title, ln.Book.ID)
		fmt.Fprintf(w, "  Borrower: %s (ID: %d)\n", ln.User.Name, ln.User.ID)
		fmt.Fprintf(w, "  Due Date: %s\n", formatTime(ln.DueAt))
		fmt.Fprintf(w, "  Days Overdue: %d\n\n", ln.DaysOverdue)
	}
}

func printExportSummary(w io.Writer, path string, s library.ExportSummary) {
	fmt.Fprintf(w, "Exported %d books, %d users and %d loans to %s\n", s.Books, s.Users, s.Loans, path)
	fmt.Fprintf(w, "Export ID: %s\n", s.ExportID)
	fmt.Fprintf(w, "Digest:    %s\n", s.Digest)
}

func truncateString(s string, maxLength int) string {
	r := []rune(s)
	if len(r) <= maxLength {
		return s
	}
	if maxLength <= 3 {
		return string(r[:maxLength])
	}
	return string(r[:maxLength-3]) + "..."
}
