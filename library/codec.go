package library

import (
	"bufio"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Data file layout, one record per line:
//
//	<bookCount> <nextBookId> <userCount> <nextUserId>
//	BOOK|<id>|<title>|<author>|<genre>|<status>|<borrowerId or -1>
//	USER|<id>|<name>|<loanCount>[|<bookId>|<borrowedAtUnix>]*
//
// Free text never contains the separator or a line break; validateText
// rejects both before a record is stored.
const (
	fieldSeparator = "|"
	bookTag        = "BOOK"
	userTag        = "USER"
	noBorrower     = -1

	bookFieldCount = 7
	userFieldCount = 4
)

var (
	// ErrCorruptHeader is returned when the first line is not four integers.
	ErrCorruptHeader = errors.New("corrupt header")

	// ErrCorruptRecord is returned when a BOOK or USER line cannot be parsed.
	ErrCorruptRecord = errors.New("corrupt record")

	// ErrInconsistentState is returned when decoded records break the
	// book/user loan links, id uniqueness or the borrow limit.
	ErrInconsistentState = errors.New("inconsistent library state")
)

// Encode writes the whole library to w in data file format.
func Encode(w io.Writer, lib *Library) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d %d %d %d\n", len(lib.books), lib.nextBookID, len(lib.users), lib.nextUserID)

	for _, b := range lib.books {
		borrower := int64(noBorrower)
		if b.BorrowerID.Valid {
			borrower = b.BorrowerID.Int64
		}
		fmt.Fprintf(bw, "%s|%d|%s|%s|%s|%d|%d\n", bookTag, b.ID, b.Title, b.Author, b.Genre, b.Status, borrower)
	}

	for _, u := range lib.users {
		fmt.Fprintf(bw, "%s|%d|%s|%d", userTag, u.ID, u.Name, len(u.Loans))
		for _, ln := range u.Loans {
			fmt.Fprintf(bw, "|%d|%d", ln.BookID, ln.BorrowedAt.Unix())
		}
		bw.WriteString("\n")
	}

	return bw.Flush()
}

// Decode reads a library in data file format. Nothing is returned unless the
// whole input parses and the records are mutually consistent.
func Decode(r io.Reader, limits Limits, opts ...Option) (*Library, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	next := func() (string, bool) {
		if !sc.Scan() {
			return "", false
		}
		lineNo++
		return strings.TrimSuffix(sc.Text(), "\r"), true
	}

	header, ok := next()
	if !ok {
		return nil, decodeError(sc.Err(), ErrCorruptHeader, "missing header")
	}
	counts, err := parseHeader(header)
	if err != nil {
		return nil, decodeError(nil, ErrCorruptHeader, err.Error())
	}
	bookCount, nextBookID, userCount, nextUserID := counts[0], counts[1], counts[2], counts[3]

	lib := NewLibrary(limits, opts...)
	lib.nextBookID, lib.nextUserID = nextBookID, nextUserID

	for i := int64(0); i < bookCount; i++ {
		line, ok := next()
		if !ok {
			return nil, decodeError(sc.Err(), ErrCorruptRecord, fmt.Sprintf("expected %d books, found %d", bookCount, i))
		}
		b, err := parseBook(line)
		if err != nil {
			return nil, decodeError(nil, ErrCorruptRecord, fmt.Sprintf("line %d: %v", lineNo, err))
		}
		lib.books = append(lib.books, b)
	}

	for i := int64(0); i < userCount; i++ {
		line, ok := next()
		if !ok {
			return nil, decodeError(sc.Err(), ErrCorruptRecord, fmt.Sprintf("expected %d users, found %d", userCount, i))
		}
		u, err := parseUser(line)
		if err != nil {
			return nil, decodeError(nil, ErrCorruptRecord, fmt.Sprintf("line %d: %v", lineNo, err))
		}
		lib.users = append(lib.users, u)
	}

	for {
		line, ok := next()
		if !ok {
			break
		}
		if strings.TrimSpace(line) != "" {
			return nil, decodeError(nil, ErrCorruptRecord, fmt.Sprintf("line %d: unexpected data after last record", lineNo))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, newError(KindIO, "load", 0, err)
	}

	if err := lib.checkIntegrity(); err != nil {
		return nil, newError(KindIO, "load", 0, err)
	}
	return lib, nil
}

func decodeError(cause, kind error, detail string) error {
	if cause != nil {
		return newError(KindIO, "load", 0, cause)
	}
	return newError(KindIO, "load", 0, fmt.Errorf("%w: %s", kind, detail))
}

func parseHeader(line string) ([4]int64, error) {
	var counts [4]int64
	fields := strings.Fields(line)
	if len(fields) != len(counts) {
		return counts, fmt.Errorf("want 4 integers, got %d fields", len(fields))
	}
	for i, f := range fields {
		n, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return counts, fmt.Errorf("field %d: %w", i+1, err)
		}
		counts[i] = n
	}
	if counts[0] < 0 || counts[2] < 0 {
		return counts, errors.New("negative record count")
	}
	if counts[1] < 1 || counts[3] < 1 {
		return counts, errors.New("id counters must be positive")
	}
	return counts, nil
}

func parseBook(line string) (Book, error) {
	parts := strings.Split(line, fieldSeparator)
	if parts[0] != bookTag {
		return Book{}, fmt.Errorf("want %s record, got %q", bookTag, parts[0])
	}
	if len(parts) != bookFieldCount {
		return Book{}, fmt.Errorf("want %d fields, got %d", bookFieldCount, len(parts))
	}

	id, err := parseID(parts[1])
	if err != nil {
		return Book{}, fmt.Errorf("book id: %w", err)
	}
	b := Book{ID: id, Title: parts[2], Author: parts[3], Genre: parts[4]}
	if err := validateBook(b.Title, b.Author, b.Genre); err != nil {
		return Book{}, fmt.Errorf("book %d: %w", id, err)
	}

	switch parts[5] {
	case "0":
		b.Status = StatusAvailable
	case "1":
		b.Status = StatusBorrowed
	default:
		return Book{}, fmt.Errorf("book %d: unknown status %q", id, parts[5])
	}

	borrower, err := strconv.ParseInt(parts[6], 10, 64)
	if err != nil {
		return Book{}, fmt.Errorf("book %d borrower: %w", id, err)
	}
	switch {
	case borrower == noBorrower:
	case borrower > 0:
		b.BorrowerID = sql.NullInt64{Int64: borrower, Valid: true}
	default:
		return Book{}, fmt.Errorf("book %d: invalid borrower %d", id, borrower)
	}
	return b, nil
}

func parseUser(line string) (User, error) {
	parts := strings.Split(line, fieldSeparator)
	if parts[0] != userTag {
		return User{}, fmt.Errorf("want %s record, got %q", userTag, parts[0])
	}
	if len(parts) < userFieldCount {
		return User{}, fmt.Errorf("want at least %d fields, got %d", userFieldCount, len(parts))
	}

	id, err := parseID(parts[1])
	if err != nil {
		return User{}, fmt.Errorf("user id: %w", err)
	}
	u := User{ID: id, Name: parts[2]}
	if err := validateText("name", u.Name, MaxNameLength); err != nil {
		return User{}, fmt.Errorf("user %d: %w", id, err)
	}

	count, err := strconv.Atoi(parts[3])
	if err != nil || count < 0 {
		return User{}, fmt.Errorf("user %d: invalid loan count %q", id, parts[3])
	}
	if want := userFieldCount + 2*count; len(parts) != want {
		return User{}, fmt.Errorf("user %d: want %d fields for %d loans, got %d", id, want, count, len(parts))
	}

	if count > 0 {
		u.Loans = make([]Loan, 0, count)
	}
	for i := 0; i < count; i++ {
		bookID, err := parseID(parts[userFieldCount+2*i])
		if err != nil {
			return User{}, fmt.Errorf("user %d loan %d book id: %w", id, i+1, err)
		}
		epoch, err := strconv.ParseInt(parts[userFieldCount+2*i+1], 10, 64)
		if err != nil {
			return User{}, fmt.Errorf("user %d loan %d timestamp: %w", id, i+1, err)
		}
		u.Loans = append(u.Loans, Loan{BookID: bookID, BorrowedAt: time.Unix(epoch, 0).UTC()})
	}
	return u, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("id %d is not positive", id)
	}
	return id, nil
}

// checkIntegrity verifies the invariants a store built through its own
// operations always holds. It is run on anything rebuilt from outside.
func (l *Library) checkIntegrity() error {
	users := make(map[int64]*User, len(l.users))
	for i := range l.users {
		u := &l.users[i]
		if _, dup := users[u.ID]; dup {
			return fmt.Errorf("%w: duplicate user id %d", ErrInconsistentState, u.ID)
		}
		if u.ID >= l.nextUserID {
			return fmt.Errorf("%w: user id %d not below next user id %d", ErrInconsistentState, u.ID, l.nextUserID)
		}
		if len(u.Loans) > l.limits.BorrowLimit {
			return fmt.Errorf("%w: user %d holds %d books, limit is %d", ErrInconsistentState, u.ID, len(u.Loans), l.limits.BorrowLimit)
		}
		users[u.ID] = u
	}

	books := make(map[int64]*Book, len(l.books))
	for i := range l.books {
		b := &l.books[i]
		if _, dup := books[b.ID]; dup {
			return fmt.Errorf("%w: duplicate book id %d", ErrInconsistentState, b.ID)
		}
		if b.ID >= l.nextBookID {
			return fmt.Errorf("%w: book id %d not below next book id %d", ErrInconsistentState, b.ID, l.nextBookID)
		}
		books[b.ID] = b

		if b.Status == StatusAvailable {
			if b.BorrowerID.Valid {
				return fmt.Errorf("%w: available book %d has borrower %d", ErrInconsistentState, b.ID, b.BorrowerID.Int64)
			}
			continue
		}
		if !b.BorrowerID.Valid {
			return fmt.Errorf("%w: borrowed book %d has no borrower", ErrInconsistentState, b.ID)
		}
		u, ok := users[b.BorrowerID.Int64]
		if !ok {
			return fmt.Errorf("%w: book %d borrowed by unknown user %d", ErrInconsistentState, b.ID, b.BorrowerID.Int64)
		}
		held := 0
		for _, ln := range u.Loans {
			if ln.BookID == b.ID {
				held++
			}
		}
		if held != 1 {
			return fmt.Errorf("%w: user %d lists book %d %d times", ErrInconsistentState, u.ID, b.ID, held)
		}
	}

	for _, u := range l.users {
		for _, ln := range u.Loans {
			b, ok := books[ln.BookID]
			if !ok {
				return fmt.Errorf("%w: user %d holds unknown book %d", ErrInconsistentState, u.ID, ln.BookID)
			}
			if b.Status != StatusBorrowed || b.BorrowerID.Int64 != u.ID {
				return fmt.Errorf("%w: user %d lists book %d it does not hold", ErrInconsistentState, u.ID, ln.BookID)
			}
		}
	}
	return nil
}

// LoadFile reads the library stored at path. A missing file is not an error:
// a fresh, empty library is returned instead.
func LoadFile(path string, limits Limits, opts ...Option) (*Library, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewLibrary(limits, opts...), nil
	}
	if err != nil {
		return nil, newError(KindIO, "load", 0, err)
	}
	defer f.Close()
	return Decode(f, limits, opts...)
}

// SaveFile writes the library to path. The data goes to a temporary file in
// the same directory which then replaces path, so a failed save leaves the
// previous file intact.
func SaveFile(path string, lib *Library) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return newError(KindIO, "save", 0, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = Encode(tmp, lib); err != nil {
		return newError(KindIO, "save", 0, err)
	}
	if err = tmp.Sync(); err != nil {
		return newError(KindIO, "save", 0, err)
	}
	if err = tmp.Chmod(0o644); err != nil {
		return newError(KindIO, "save", 0, err)
	}
	if err = tmp.Close(); err != nil {
		return newError(KindIO, "save", 0, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return newError(KindIO, "save", 0, err)
	}
	return nil
}
