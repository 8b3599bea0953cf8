package library

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/blake2b"
)

const (
	dialectSQLite = "sqlite3"

	tableMeta  = "meta"
	tableUsers = "users"
	tableBooks = "books"
	tableLoans = "loans"

	colPosition = "position"
	colUserID   = "user_id"
	colKey      = "key"

	metaSchemaVersion  = "schema_version"
	metaNextBookID     = "next_book_id"
	metaNextUserID     = "next_user_id"
	metaExportID       = "export_id"
	metaExportedAt     = "exported_at"
	metaSnapshotDigest = "snapshot_digest"
)

// ErrNoSnapshot is returned when importing from a database nothing was exported to.
var ErrNoSnapshot = errors.New("database holds no library snapshot")

// ErrDigestMismatch is returned when the imported rows do not hash to the
// digest recorded at export time.
var ErrDigestMismatch = errors.New("snapshot digest mismatch")

// Database mirrors a whole Library into a SQLite file so it can be queried
// with ordinary SQL tools, and restores it from there.
type Database struct {
	db *sqlx.DB
}

// ExportSummary describes one completed export.
type ExportSummary struct {
	ExportID   uuid.UUID `json:"export_id"`
	ExportedAt time.Time `json:"exported_at"`
	Books      int       `json:"books"`
	Users      int       `json:"users"`
	Loans      int       `json:"loans"`
	Digest     string    `json:"digest"`
}

type metaRow struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

type userRow struct {
	ID       int64  `db:"id"`
	Position int    `db:"position"`
	Name     string `db:"name"`
}

type bookRow struct {
	ID         int64         `db:"id"`
	Position   int           `db:"position"`
	Title      string        `db:"title"`
	Author     string        `db:"author"`
	Genre      string        `db:"genre"`
	Status     int           `db:"status"`
	BorrowerID sql.NullInt64 `db:"borrower_id"`
}

type loanRow struct {
	UserID     int64 `db:"user_id"`
	Position   int   `db:"position"`
	BookID     int64 `db:"book_id"`
	BorrowedAt int64 `db:"borrowed_at"`
}

// NewDatabase opens (or creates) the SQLite database at dbPath and applies
// schema migrations.
func NewDatabase(dbPath string) (*Database, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, newError(KindIO, "open database", 0, fmt.Errorf("create db dir: %w", err))
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1", dbPath)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, newError(KindIO, "open database", 0, fmt.Errorf("open sqlite: %w", err))
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, newError(KindIO, "open database", 0, err)
	}
	return &Database{db: db}, nil
}

// Close closes the DB.
func (d *Database) Close() error { return d.db.Close() }

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(db *sqlx.DB) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT NOT NULL);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY,
            position INTEGER NOT NULL UNIQUE,
            name TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS books (
            id INTEGER PRIMARY KEY,
            position INTEGER NOT NULL UNIQUE,
            title TEXT NOT NULL,
            author TEXT NOT NULL,
            genre TEXT NOT NULL,
            status INTEGER NOT NULL CHECK (status IN (0, 1)),
            borrower_id INTEGER REFERENCES users(id)
        );`,
		`CREATE TABLE IF NOT EXISTS loans (
            user_id INTEGER NOT NULL REFERENCES users(id),
            position INTEGER NOT NULL,
            book_id INTEGER NOT NULL REFERENCES books(id),
            borrowed_at INTEGER NOT NULL,
            PRIMARY KEY (user_id, position)
        );`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
        ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, strconv.Itoa(schemaVersion)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Export
// ---------------------------------------------------------------------------

// ExportLibrary replaces the stored snapshot with lib in one transaction.
func (d *Database) ExportLibrary(ctx context.Context, lib *Library) (ExportSummary, error) {
	exportID, err := uuid.NewV7()
	if err != nil {
		return ExportSummary{}, newError(KindIO, "export", 0, err)
	}
	digest, err := snapshotDigest(lib)
	if err != nil {
		return ExportSummary{}, newError(KindIO, "export", 0, err)
	}
	summary := ExportSummary{
		ExportID:   exportID,
		ExportedAt: time.Now().UTC().Truncate(time.Second),
		Books:      len(lib.books),
		Users:      len(lib.users),
		Digest:     digest,
	}

	users := make([]any, 0, len(lib.users))
	var loans []any
	for i, u := range lib.users {
		users = append(users, userRow{ID: u.ID, Position: i, Name: u.Name})
		for j, ln := range u.Loans {
			loans = append(loans, loanRow{UserID: u.ID, Position: j, BookID: ln.BookID, BorrowedAt: ln.BorrowedAt.Unix()})
		}
	}
	summary.Loans = len(loans)

	books := make([]any, 0, len(lib.books))
	for i, b := range lib.books {
		books = append(books, bookRow{
			ID:         b.ID,
			Position:   i,
			Title:      b.Title,
			Author:     b.Author,
			Genre:      b.Genre,
			Status:     int(b.Status),
			BorrowerID: b.BorrowerID,
		})
	}

	meta := []any{
		metaRow{Key: metaNextBookID, Value: strconv.FormatInt(lib.nextBookID, 10)},
		metaRow{Key: metaNextUserID, Value: strconv.FormatInt(lib.nextUserID, 10)},
		metaRow{Key: metaExportID, Value: exportID.String()},
		metaRow{Key: metaExportedAt, Value: strconv.FormatInt(summary.ExportedAt.Unix(), 10)},
		metaRow{Key: metaSnapshotDigest, Value: digest},
	}

	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return ExportSummary{}, newError(KindIO, "export", 0, err)
	}
	defer tx.Rollback()

	builder := goqu.Dialect(dialectSQLite)
	wipe := []*goqu.DeleteDataset{
		builder.Delete(tableLoans),
		builder.Delete(tableBooks),
		builder.Delete(tableUsers),
		builder.Delete(tableMeta).Where(goqu.C(colKey).Neq(metaSchemaVersion)),
	}
	for _, stmt := range wipe {
		query, args, err := stmt.Prepared(true).ToSQL()
		if err != nil {
			return ExportSummary{}, newError(KindIO, "export", 0, err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return ExportSummary{}, newError(KindIO, "export", 0, err)
		}
	}

	// Users first: books and loans reference them.
	for _, batch := range []struct {
		table string
		rows  []any
	}{
		{tableUsers, users},
		{tableBooks, books},
		{tableLoans, loans},
		{tableMeta, meta},
	} {
		if len(batch.rows) == 0 {
			continue
		}
		query, args, err := builder.Insert(batch.table).Prepared(true).Rows(batch.rows...).ToSQL()
		if err != nil {
			return ExportSummary{}, newError(KindIO, "export", 0, fmt.Errorf("build insert into %s: %w", batch.table, err))
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return ExportSummary{}, newError(KindIO, "export", 0, fmt.Errorf("insert into %s: %w", batch.table, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return ExportSummary{}, newError(KindIO, "export", 0, err)
	}
	return summary, nil
}

// ---------------------------------------------------------------------------
// Import
// ---------------------------------------------------------------------------

// ImportLibrary rebuilds a Library from the stored snapshot. The rows must
// satisfy the same consistency rules as a loaded data file and hash to the
// digest recorded at export time.
func (d *Database) ImportLibrary(ctx context.Context, limits Limits, opts ...Option) (*Library, error) {
	meta, err := d.readMeta(ctx)
	if err != nil {
		return nil, newError(KindIO, "import", 0, err)
	}
	digest, ok := meta[metaSnapshotDigest]
	if !ok {
		return nil, newError(KindIO, "import", 0, ErrNoSnapshot)
	}
	nextBookID, err := strconv.ParseInt(meta[metaNextBookID], 10, 64)
	if err != nil {
		return nil, newError(KindIO, "import", 0, fmt.Errorf("%s: %w", metaNextBookID, err))
	}
	nextUserID, err := strconv.ParseInt(meta[metaNextUserID], 10, 64)
	if err != nil {
		return nil, newError(KindIO, "import", 0, fmt.Errorf("%s: %w", metaNextUserID, err))
	}

	builder := goqu.Dialect(dialectSQLite)

	var users []userRow
	if err := d.selectAll(ctx, &users, builder.From(tableUsers).Order(goqu.C(colPosition).Asc())); err != nil {
		return nil, newError(KindIO, "import", 0, err)
	}
	var books []bookRow
	if err := d.selectAll(ctx, &books, builder.From(tableBooks).Order(goqu.C(colPosition).Asc())); err != nil {
		return nil, newError(KindIO, "import", 0, err)
	}
	var loans []loanRow
	if err := d.selectAll(ctx, &loans, builder.From(tableLoans).Order(goqu.C(colUserID).Asc(), goqu.C(colPosition).Asc())); err != nil {
		return nil, newError(KindIO, "import", 0, err)
	}

	lib := NewLibrary(limits, opts...)
	lib.nextBookID, lib.nextUserID = nextBookID, nextUserID

	for _, r := range books {
		if r.Status != int(StatusAvailable) && r.Status != int(StatusBorrowed) {
			return nil, newError(KindIO, "import", r.ID, fmt.Errorf("%w: unknown status %d", ErrCorruptRecord, r.Status))
		}
		if err := validateBook(r.Title, r.Author, r.Genre); err != nil {
			return nil, newError(KindIO, "import", r.ID, fmt.Errorf("%w: book %d: %v", ErrCorruptRecord, r.ID, err))
		}
		lib.books = append(lib.books, Book{
			ID:         r.ID,
			Title:      r.Title,
			Author:     r.Author,
			Genre:      r.Genre,
			Status:     BookStatus(r.Status),
			BorrowerID: r.BorrowerID,
		})
	}

	loansByUser := make(map[int64][]Loan, len(users))
	for _, r := range loans {
		loansByUser[r.UserID] = append(loansByUser[r.UserID], Loan{BookID: r.BookID, BorrowedAt: time.Unix(r.BorrowedAt, 0).UTC()})
	}
	for _, r := range users {
		if err := validateText("name", r.Name, MaxNameLength); err != nil {
			return nil, newError(KindIO, "import", r.ID, fmt.Errorf("%w: user %d: %v", ErrCorruptRecord, r.ID, err))
		}
		lib.users = append(lib.users, User{ID: r.ID, Name: r.Name, Loans: loansByUser[r.ID]})
	}

	if err := lib.checkIntegrity(); err != nil {
		return nil, newError(KindIO, "import", 0, err)
	}
	got, err := snapshotDigest(lib)
	if err != nil {
		return nil, newError(KindIO, "import", 0, err)
	}
	if got != digest {
		return nil, newError(KindIO, "import", 0, fmt.Errorf("%w: recorded %s, computed %s", ErrDigestMismatch, digest, got))
	}
	return lib, nil
}

// LastExport returns the id and time of the snapshot currently stored.
func (d *Database) LastExport(ctx context.Context) (uuid.UUID, time.Time, error) {
	meta, err := d.readMeta(ctx)
	if err != nil {
		return uuid.Nil, time.Time{}, newError(KindIO, "last export", 0, err)
	}
	raw, ok := meta[metaExportID]
	if !ok {
		return uuid.Nil, time.Time{}, newError(KindIO, "last export", 0, ErrNoSnapshot)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, time.Time{}, newError(KindIO, "last export", 0, err)
	}
	sec, err := strconv.ParseInt(meta[metaExportedAt], 10, 64)
	if err != nil {
		return uuid.Nil, time.Time{}, newError(KindIO, "last export", 0, err)
	}
	return id, time.Unix(sec, 0).UTC(), nil
}

func (d *Database) readMeta(ctx context.Context) (map[string]string, error) {
	var rows []metaRow
	if err := d.selectAll(ctx, &rows, goqu.Dialect(dialectSQLite).From(tableMeta)); err != nil {
		return nil, err
	}
	meta := make(map[string]string, len(rows))
	for _, r := range rows {
		meta[r.Key] = r.Value
	}
	return meta, nil
}

func (d *Database) selectAll(ctx context.Context, dest any, stmt *goqu.SelectDataset) error {
	query, args, err := stmt.Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build select: %w", err)
	}
	return d.db.SelectContext(ctx, dest, query, args...)
}

// snapshotDigest hashes the data file encoding of lib.
func snapshotDigest(lib *Library) (string, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, lib); err != nil {
		return "", err
	}
	sum := blake2b.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}
