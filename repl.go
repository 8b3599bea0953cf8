package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"library-catalog/library"

	"golang.org/x/term"
)

const (
	menuMax    = 17
	maxInputID = 999999
)

// prompter reads one answer per line. Prompts and the menu are only shown
// when input comes from a terminal.
type prompter struct {
	sc          *bufio.Scanner
	out         io.Writer
	interactive bool
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (p *prompter) prompt(text string) {
	if p.interactive {
		fmt.Fprint(p.out, text)
	}
}

// readString keeps asking until it gets a non-blank line. It returns false
// once input is exhausted.
func (p *prompter) readString(text string) (string, bool) {
	for {
		p.prompt(text)
		if !p.sc.Scan() {
			return "", false
		}
		if s := strings.TrimSpace(p.sc.Text()); s != "" {
			return s, true
		}
		fmt.Fprintln(p.out, "Input cannot be empty. Please try again.")
	}
}

// readInt keeps asking until it gets an integer in [lo, hi].
func (p *prompter) readInt(text string, lo, hi int64) (int64, bool) {
	for {
		p.prompt(text)
		if !p.sc.Scan() {
			return 0, false
		}
		n, err := strconv.ParseInt(strings.TrimSpace(p.sc.Text()), 10, 64)
		if err != nil {
			fmt.Fprintln(p.out, "Invalid input! Please enter a number.")
			continue
		}
		if n < lo || n > hi {
			fmt.Fprintf(p.out, "Input out of range! Please enter a value between %d and %d.\n", lo, hi)
			continue
		}
		return n, true
	}
}

func printMenu(w io.Writer) {
	fmt.Fprintln(w, "\n========================================")
	fmt.Fprintln(w, "   LIBRARY MANAGEMENT SYSTEM")
	fmt.Fprintln(w, "========================================")
	for i, item := range []string{
		"Add book",
		"Update book",
		"Delete book",
		"Add user",
		"Update user",
		"Delete user",
		"Borrow book",
		"Return book",
		"Search books by title",
		"Search books by author",
		"Search books by genre",
		"Display available books",
		"Display user information",
		"Display all books",
		"Display all users",
		"Display statistics",
		"Display overdue books",
	} {
		fmt.Fprintf(w, " %d. %s\n", i+1, item)
	}
	fmt.Fprintln(w, " 0. Exit")
	fmt.Fprintln(w, "========================================")
}

func report(w io.Writer, err error) {
	if err != nil {
		fmt.Fprintln(w, err)
		return
	}
	fmt.Fprintln(w, msgSuccess)
}

// runREPL drives the numbered menu until the user picks 0 or input ends, then
// saves. An empty catalog is seeded with sample data first.
func (a *app) runREPL() error {
	p := &prompter{sc: bufio.NewScanner(a.in), out: a.out, interactive: isTerminal(a.in)}
	mgr := a.mgr

	seeded, err := mgr.SeedSampleData()
	if err != nil {
		fmt.Fprintf(a.out, "Warning: %v\n", err)
	}
	if seeded {
		fmt.Fprintln(a.out, "Sample data added.")
	}

	for {
		if p.interactive {
			printMenu(a.out)
		}
		choice, ok := p.readInt("Choose function: ", 0, menuMax)
		if !ok || choice == 0 {
			break
		}
		if !a.dispatch(p, choice) {
			break
		}
	}

	if err := mgr.Save(); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Data saved. Thank you for using the system!")
	return nil
}

// dispatch runs one menu item. It returns false when input ran out midway.
func (a *app) dispatch(p *prompter, choice int64) bool {
	mgr, w := a.mgr, a.out

	switch choice {
	case 1:
		title, ok1 := p.readString("Enter title: ")
		author, ok2 := readIf(ok1, p, "Enter author: ")
		genre, ok3 := readIf(ok2, p, "Enter genre: ")
		if !ok3 {
			return false
		}
		_, err := mgr.AddBook(title, author, genre)
		report(w, err)

	case 2:
		id, ok := p.readInt("Enter book ID: ", 1, maxInputID)
		title, ok1 := readIf(ok, p, "Enter new title: ")
		author, ok2 := readIf(ok1, p, "Enter new author: ")
		genre, ok3 := readIf(ok2, p, "Enter new genre: ")
		if !ok3 {
			return false
		}
		report(w, mgr.UpdateBook(id, title, author, genre))

	case 3:
		id, ok := p.readInt("Enter book ID to delete: ", 1, maxInputID)
		if !ok {
			return false
		}
		report(w, mgr.DeleteBook(id))

	case 4:
		name, ok := p.readString("Enter user name: ")
		if !ok {
			return false
		}
		_, err := mgr.AddUser(name)
		report(w, err)

	case 5:
		id, ok := p.readInt("Enter user ID: ", 1, maxInputID)
		name, ok1 := readIf(ok, p, "Enter new name: ")
		if !ok1 {
			return false
		}
		report(w, mgr.UpdateUser(id, name))

	case 6:
		id, ok := p.readInt("Enter user ID to delete: ", 1, maxInputID)
		if !ok {
			return false
		}
		report(w, mgr.DeleteUser(id))

	case 7, 8:
		userID, ok := p.readInt("Enter user ID: ", 1, maxInputID)
		if !ok {
			return false
		}
		bookID, ok := p.readInt("Enter book ID: ", 1, maxInputID)
		if !ok {
			return false
		}
		if choice == 7 {
			report(w, mgr.Borrow(userID, bookID))
		} else {
			report(w, mgr.ReturnBook(userID, bookID))
		}

	case 9, 10, 11:
		field := map[int64]string{9: "Title", 10: "Author", 11: "Genre"}[choice]
		query, ok := p.readString(fmt.Sprintf("Enter %s to search: ", strings.ToLower(field)))
		if !ok {
			return false
		}
		var (
			books []library.Book
			err   error
		)
		switch choice {
		case 9:
			books, err = mgr.SearchByTitle(query)
		case 10:
			books, err = mgr.SearchByAuthor(query)
		default:
			books, err = mgr.SearchByGenre(query)
		}
		if err != nil {
			fmt.Fprintln(w, "Invalid search term!")
			break
		}
		printSearchResults(w, field, query, books)

	case 12:
		printAvailableBooks(w, mgr.AvailableBooks())

	case 13:
		id, ok := p.readInt("Enter user ID: ", 1, maxInputID)
		if !ok {
			return false
		}
		if err := a.showUser(id); err != nil {
			fmt.Fprintln(w, "User not found!")
		}

	case 14:
		printAllBooks(w, mgr.Books(), mgr.Users())

	case 15:
		printAllUsers(w, mgr.Users())

	case 16:
		printStats(w, mgr.Stats())

	case 17:
		printOverdue(w, mgr.OverdueLoans())
	}
	return true
}

func readIf(ok bool, p *prompter, text string) (string, bool) {
	if !ok {
		return "", false
	}
	return p.readString(text)
}
