package library

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T, opts ...ManagerOption) *LibraryManager {
	t.Helper()
	dir := t.TempDir()
	mgr, err := NewLibraryManager(filepath.Join(dir, "library_data.txt"), opts...)
	require.NoError(t, err)
	return mgr
}

func TestManagerAutosave(t *testing.T) {
	mgr := newManager(t)

	bookID, err := mgr.AddBook("Clean Code", "R. Martin", "Programming")
	require.NoError(t, err)
	userID, err := mgr.AddUser("John")
	require.NoError(t, err)
	require.NoError(t, mgr.Borrow(userID, bookID))

	reopened, err := NewLibraryManager(mgr.Path())
	require.NoError(t, err)
	b, err := reopened.FindBookByID(bookID)
	require.NoError(t, err)
	assert.Equal(t, StatusBorrowed, b.Status)
	assert.Equal(t, userID, b.BorrowerID.Int64)
	u, err := reopened.FindUserByID(userID)
	require.NoError(t, err)
	assert.Len(t, u.Loans, 1)
}

func TestManagerWithoutAutosave(t *testing.T) {
	mgr := newManager(t, WithAutosave(false))

	_, err := mgr.AddBook("Clean Code", "R. Martin", "Programming")
	require.NoError(t, err)
	_, statErr := os.Stat(mgr.Path())
	assert.True(t, os.IsNotExist(statErr))

	require.NoError(t, mgr.Close())
	reopened, err := NewLibraryManager(mgr.Path())
	require.NoError(t, err)
	assert.Len(t, reopened.Books(), 1)
}

func TestManagerRejectedOperationDoesNotSave(t *testing.T) {
	mgr := newManager(t)

	_, err := mgr.AddBook("", "R. Martin", "Programming")
	require.ErrorIs(t, err, ErrInvalidInput)
	_, statErr := os.Stat(mgr.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestManagerReloadKeepsStateOnCorruptFile(t *testing.T) {
	mgr := newManager(t)
	_, err := mgr.AddBook("Clean Code", "R. Martin", "Programming")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(mgr.Path(), []byte("1 2 0 1\nBOOK|1|broken\n"), 0o644))

	err = mgr.Reload()
	require.ErrorIs(t, err, ErrIO)
	assert.Len(t, mgr.Books(), 1)
}

func TestManagerReloadPicksUpFile(t *testing.T) {
	mgr := newManager(t)
	_, err := mgr.AddUser("John")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(mgr.Path(), []byte("0 1 0 1\n"), 0o644))
	require.NoError(t, mgr.Reload())
	assert.Empty(t, mgr.Users())
}

func TestNewManagerCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library_data.txt")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	_, err := NewLibraryManager(path)
	require.ErrorIs(t, err, ErrIO)
}

func TestManagerSaveFailureKeepsChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "library_data.txt")
	mgr, err := NewLibraryManager(path)
	require.NoError(t, err)

	id, err := mgr.AddBook("Clean Code", "R. Martin", "Programming")
	require.ErrorIs(t, err, ErrIO)
	assert.Equal(t, int64(1), id)
	assert.Len(t, mgr.Books(), 1)
}

func TestManagerSeedSampleData(t *testing.T) {
	mgr := newManager(t)

	seeded, err := mgr.SeedSampleData()
	require.NoError(t, err)
	assert.True(t, seeded)
	assert.Len(t, mgr.Books(), 3)
	assert.Len(t, mgr.Users(), 2)

	seeded, err = mgr.SeedSampleData()
	require.NoError(t, err)
	assert.False(t, seeded)
	assert.Len(t, mgr.Books(), 3)
}

func TestManagerSeedSampleDataNeedsRoomForAll(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxUsers = 1
	mgr := newManager(t, WithLimits(limits))

	seeded, err := mgr.SeedSampleData()
	require.ErrorIs(t, err, ErrCapacityExceeded)
	assert.False(t, seeded)
	assert.Empty(t, mgr.Books())
	assert.Empty(t, mgr.Users())
	_, statErr := os.Stat(mgr.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestManagerSearchAndReports(t *testing.T) {
	mgr := newManager(t)
	_, err := mgr.SeedSampleData()
	require.NoError(t, err)
	require.NoError(t, mgr.Borrow(1, 2))

	books, err := mgr.SearchByTitle("code")
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, bookIDs(books))
	books, err = mgr.SearchByAuthor("gang")
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, bookIDs(books))
	books, err = mgr.SearchByGenre("programming")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, bookIDs(books))

	assert.Equal(t, []int64{1, 3}, bookIDs(mgr.AvailableBooks()))
	assert.Equal(t, 1, mgr.Stats().BorrowedBooks)
	assert.Empty(t, mgr.OverdueLoans())

	loans, err := mgr.UserLoans(1)
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Equal(t, int64(2), loans[0].Book.ID)
}

func TestManagerUpdateAndDelete(t *testing.T) {
	mgr := newManager(t)
	_, err := mgr.SeedSampleData()
	require.NoError(t, err)

	require.NoError(t, mgr.UpdateBook(1, "Clean Code, 2nd ed.", "Robert C. Martin", "Programming"))
	require.NoError(t, mgr.UpdateUser(2, "Jane Doe"))
	require.NoError(t, mgr.Borrow(2, 1))
	require.ErrorIs(t, mgr.DeleteBook(1), ErrBookStillBorrowed)
	require.ErrorIs(t, mgr.DeleteUser(2), ErrUserHasActiveLoans)
	require.NoError(t, mgr.ReturnBook(2, 1))
	require.NoError(t, mgr.DeleteBook(1))
	require.NoError(t, mgr.DeleteUser(2))

	reopened, err := NewLibraryManager(mgr.Path())
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, bookIDs(reopened.Books()))
	assert.Equal(t, []int64{1}, userIDs(reopened.Users()))
}

func TestManagerLogsChanges(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	mgr := newManager(t, WithLogger(logger))

	_, err := mgr.AddBook("Clean Code", "R. Martin", "Programming")
	require.NoError(t, err)
	require.ErrorIs(t, mgr.Borrow(7, 1), ErrUserNotFound)

	out := buf.String()
	assert.Contains(t, out, logMsgBookAdded)
	assert.Contains(t, out, "book_id=1")
	assert.Contains(t, out, logMsgRejected)
	assert.Contains(t, out, "op=borrow")
}

func TestManagerConcurrentBorrowsLendOnce(t *testing.T) {
	mgr := newManager(t, WithAutosave(false))
	bookID, err := mgr.AddBook("Popular", "Author", "Genre")
	require.NoError(t, err)
	const borrowers = 8
	for i := 0; i < borrowers; i++ {
		_, err := mgr.AddUser("Reader")
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, borrowers)
	for id := int64(1); id <= borrowers; id++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			errs <- mgr.Borrow(userID, bookID)
		}(id)
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyBorrowed)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, mgr.Stats().ActiveBorrowers)
}
