package library

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

const (
	logMsgLoaded        = "library loaded"
	logMsgSaved         = "library saved"
	logMsgSaveFailed    = "failed to save library"
	logMsgReloadFailed  = "failed to reload library, keeping current state"
	logMsgBookAdded     = "book added"
	logMsgBookUpdated   = "book updated"
	logMsgBookDeleted   = "book deleted"
	logMsgUserAdded     = "user added"
	logMsgUserUpdated   = "user updated"
	logMsgUserDeleted   = "user deleted"
	logMsgBorrowed      = "book borrowed"
	logMsgReturned      = "book returned"
	logMsgRejected      = "operation rejected"
	logMsgExported      = "library exported to sqlite"
	logMsgImported      = "library imported from sqlite"
	logMsgSampleSeeded  = "sample data added"
	logMsgOverdueListed = "overdue loans listed"
	logAttrPath         = "path"
	logAttrBookID       = "book_id"
	logAttrUserID       = "user_id"
	logAttrBooks        = "books"
	logAttrUsers        = "users"
	logAttrOp           = "op"
	logAttrKind         = "kind"
	logAttrError        = "error"
	logAttrExportID     = "export_id"
	logAttrDurationMS   = "duration_ms"
	logAttrOverdueCount = "overdue"
)

// LibraryManager guards one Library with a single mutex and flushes it to the
// data file after every successful change. It is what the CLI talks to.
type LibraryManager struct {
	mu       sync.Mutex
	lib      *Library
	path     string
	limits   Limits
	opts     []Option
	logger   *slog.Logger
	autosave bool
}

// ManagerOption configures a LibraryManager.
type ManagerOption func(*LibraryManager)

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(lm *LibraryManager) { lm.logger = logger }
}

// WithLimits overrides DefaultLimits.
func WithLimits(limits Limits) ManagerOption {
	return func(lm *LibraryManager) { lm.limits = limits }
}

// WithAutosave controls whether each successful change is written to disk
// immediately. It is on by default.
func WithAutosave(enabled bool) ManagerOption {
	return func(lm *LibraryManager) { lm.autosave = enabled }
}

// WithLibraryOptions passes options to every Library the manager builds.
func WithLibraryOptions(opts ...Option) ManagerOption {
	return func(lm *LibraryManager) { lm.opts = append(lm.opts, opts...) }
}

// NewLibraryManager loads the data file at path, starting empty when it does
// not exist yet.
func NewLibraryManager(path string, opts ...ManagerOption) (*LibraryManager, error) {
	lm := &LibraryManager{
		path:     path,
		limits:   DefaultLimits(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		autosave: true,
	}
	for _, opt := range opts {
		opt(lm)
	}

	lib, err := LoadFile(path, lm.limits, lm.opts...)
	if err != nil {
		return nil, err
	}
	lm.lib = lib
	lm.logger.Info(logMsgLoaded, logAttrPath, path, logAttrBooks, lib.BookCount(), logAttrUsers, lib.UserCount())
	return lm, nil
}

// Path returns the data file the manager reads and writes.
func (lm *LibraryManager) Path() string { return lm.path }

// Close writes the current state to the data file.
func (lm *LibraryManager) Close() error { return lm.Save() }

// Save writes the current state to the data file.
func (lm *LibraryManager) Save() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.saveLocked()
}

func (lm *LibraryManager) saveLocked() error {
	if err := SaveFile(lm.path, lm.lib); err != nil {
		lm.logger.Error(logMsgSaveFailed, logAttrPath, lm.path, logAttrError, err.Error())
		return err
	}
	lm.logger.Debug(logMsgSaved, logAttrPath, lm.path)
	return nil
}

// Reload replaces the in-memory state with the data file's contents. On any
// failure the current state is kept.
func (lm *LibraryManager) Reload() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lib, err := LoadFile(lm.path, lm.limits, lm.opts...)
	if err != nil {
		lm.logger.Warn(logMsgReloadFailed, logAttrPath, lm.path, logAttrError, err.Error())
		return err
	}
	lm.lib = lib
	lm.logger.Info(logMsgLoaded, logAttrPath, lm.path, logAttrBooks, lib.BookCount(), logAttrUsers, lib.UserCount())
	return nil
}

// mutate runs fn under the lock and, when it succeeds, flushes the library.
// A failed flush is reported but the in-memory change stands.
func (lm *LibraryManager) mutate(op string, fn func(*Library) error) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if err := fn(lm.lib); err != nil {
		lm.logger.Debug(logMsgRejected, logAttrOp, op, logAttrKind, KindOf(err).String(), logAttrError, err.Error())
		return err
	}
	if lm.autosave {
		return lm.saveLocked()
	}
	return nil
}

func (lm *LibraryManager) read(fn func(*Library)) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	fn(lm.lib)
}

// ------------------ Book helpers ------------------

func (lm *LibraryManager) AddBook(title, author, genre string) (int64, error) {
	var id int64
	err := lm.mutate("add book", func(l *Library) (err error) {
		id, err = l.AddBook(title, author, genre)
		return err
	})
	if id != 0 {
		lm.logger.Info(logMsgBookAdded, logAttrBookID, id)
	}
	return id, err
}

func (lm *LibraryManager) UpdateBook(id int64, title, author, genre string) error {
	err := lm.mutate("update book", func(l *Library) error { return l.UpdateBook(id, title, author, genre) })
	if err == nil {
		lm.logger.Info(logMsgBookUpdated, logAttrBookID, id)
	}
	return err
}

func (lm *LibraryManager) DeleteBook(id int64) error {
	err := lm.mutate("delete book", func(l *Library) error { return l.DeleteBook(id) })
	if err == nil {
		lm.logger.Info(logMsgBookDeleted, logAttrBookID, id)
	}
	return err
}

func (lm *LibraryManager) FindBookByID(id int64) (b Book, err error) {
	lm.read(func(l *Library) { b, err = l.FindBookByID(id) })
	return b, err
}

func (lm *LibraryManager) Books() (books []Book) {
	lm.read(func(l *Library) { books = l.Books() })
	return books
}

func (lm *LibraryManager) AvailableBooks() (books []Book) {
	lm.read(func(l *Library) { books = l.AvailableBooks() })
	return books
}

// ------------------ Search ------------------

func (lm *LibraryManager) SearchByTitle(term string) (books []Book, err error) {
	lm.read(func(l *Library) { books, err = l.SearchByTitle(term) })
	return books, err
}

func (lm *LibraryManager) SearchByAuthor(term string) (books []Book, err error) {
	lm.read(func(l *Library) { books, err = l.SearchByAuthor(term) })
	return books, err
}

func (lm *LibraryManager) SearchByGenre(term string) (books []Book, err error) {
	lm.read(func(l *Library) { books, err = l.SearchByGenre(term) })
	return books, err
}

// ------------------ User helpers ------------------

func (lm *LibraryManager) AddUser(name string) (int64, error) {
	var id int64
	err := lm.mutate("add user", func(l *Library) (err error) {
		id, err = l.AddUser(name)
		return err
	})
	if id != 0 {
		lm.logger.Info(logMsgUserAdded, logAttrUserID, id)
	}
	return id, err
}

func (lm *LibraryManager) UpdateUser(id int64, name string) error {
	err := lm.mutate("update user", func(l *Library) error { return l.UpdateUser(id, name) })
	if err == nil {
		lm.logger.Info(logMsgUserUpdated, logAttrUserID, id)
	}
	return err
}

func (lm *LibraryManager) DeleteUser(id int64) error {
	err := lm.mutate("delete user", func(l *Library) error { return l.DeleteUser(id) })
	if err == nil {
		lm.logger.Info(logMsgUserDeleted, logAttrUserID, id)
	}
	return err
}

func (lm *LibraryManager) FindUserByID(id int64) (u User, err error) {
	lm.read(func(l *Library) { u, err = l.FindUserByID(id) })
	return u, err
}

func (lm *LibraryManager) Users() (users []User) {
	lm.read(func(l *Library) { users = l.Users() })
	return users
}

// ------------------ Circulation ------------------

func (lm *LibraryManager) Borrow(userID, bookID int64) error {
	err := lm.mutate("borrow", func(l *Library) error { return l.Borrow(userID, bookID) })
	if err == nil {
		lm.logger.Info(logMsgBorrowed, logAttrUserID, userID, logAttrBookID, bookID)
	}
	return err
}

func (lm *LibraryManager) ReturnBook(userID, bookID int64) error {
	err := lm.mutate("return book", func(l *Library) error { return l.ReturnBook(userID, bookID) })
	if err == nil {
		lm.logger.Info(logMsgReturned, logAttrUserID, userID, logAttrBookID, bookID)
	}
	return err
}

// UserLoans lists a user's loans with due dates.
func (lm *LibraryManager) UserLoans(userID int64) (loans []LoanDetail, err error) {
	lm.read(func(l *Library) { loans, err = l.UserLoans(userID) })
	return loans, err
}

// OverdueLoans lists loans past due right now.
func (lm *LibraryManager) OverdueLoans() (loans []OverdueLoan) {
	lm.read(func(l *Library) { loans = l.OverdueLoans(l.Now()) })
	lm.logger.Debug(logMsgOverdueListed, logAttrOverdueCount, len(loans))
	return loans
}

func (lm *LibraryManager) Stats() (s Stats) {
	lm.read(func(l *Library) { s = l.Stats() })
	return s
}

func (lm *LibraryManager) Limits() Limits { return lm.limits }

// ------------------ Sample data ------------------

var (
	sampleBooks = [][3]string{
		{"Clean Code", "Robert C. Martin", "Programming"},
		{"Design Patterns", "Gang of Four", "Programming"},
		{"The Pragmatic Programmer", "Andrew Hunt", "Programming"},
	}
	sampleUsers = []string{"John Doe", "Jane Smith"}
)

// SeedSampleData adds a few books and users when the catalog has no books.
// It reports whether anything was added. Nothing is added unless all of the
// sample fits within the limits.
func (lm *LibraryManager) SeedSampleData() (bool, error) {
	seeded := false
	err := lm.mutate("seed", func(l *Library) error {
		if l.BookCount() > 0 {
			return nil
		}
		if !l.hasRoom(len(sampleBooks), len(sampleUsers)) {
			return newError(KindCapacityExceeded, "seed", 0, nil)
		}
		for _, b := range sampleBooks {
			if _, err := l.AddBook(b[0], b[1], b[2]); err != nil {
				return err
			}
		}
		for _, name := range sampleUsers {
			if _, err := l.AddUser(name); err != nil {
				return err
			}
		}
		seeded = true
		return nil
	})
	if seeded {
		lm.logger.Info(logMsgSampleSeeded)
	}
	return seeded, err
}

// ------------------ SQLite mirror ------------------

// ExportSQLite copies the whole library into the SQLite database at dbPath,
// replacing whatever snapshot it held.
func (lm *LibraryManager) ExportSQLite(ctx context.Context, dbPath string) (ExportSummary, error) {
	db, err := NewDatabase(dbPath)
	if err != nil {
		return ExportSummary{}, err
	}
	defer db.Close()

	lm.mu.Lock()
	defer lm.mu.Unlock()

	start := time.Now()
	summary, err := db.ExportLibrary(ctx, lm.lib)
	if err != nil {
		return ExportSummary{}, err
	}
	lm.logger.Info(logMsgExported,
		logAttrPath, dbPath,
		logAttrExportID, summary.ExportID.String(),
		logAttrBooks, summary.Books,
		logAttrUsers, summary.Users,
		logAttrDurationMS, time.Since(start).Milliseconds(),
	)
	return summary, nil
}

// ImportSQLite replaces the library with the snapshot stored in the SQLite
// database at dbPath. The current state is kept if the snapshot is unusable.
func (lm *LibraryManager) ImportSQLite(ctx context.Context, dbPath string) error {
	if _, err := os.Stat(dbPath); err != nil {
		return newError(KindIO, "import", 0, err)
	}
	db, err := NewDatabase(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	lm.mu.Lock()
	defer lm.mu.Unlock()

	lib, err := db.ImportLibrary(ctx, lm.limits, lm.opts...)
	if err != nil {
		return err
	}
	lm.lib = lib
	lm.logger.Info(logMsgImported, logAttrPath, dbPath, logAttrBooks, lib.BookCount(), logAttrUsers, lib.UserCount())
	if lm.autosave {
		return lm.saveLocked()
	}
	return nil
}
