package library

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// populatedLibrary builds a library with deletions, loans and a return so the
// counters run ahead of the table sizes.
func populatedLibrary(t *testing.T) *Library {
	t.Helper()
	clock := time.Unix(1700000000, 0).UTC()
	lib := NewLibrary(DefaultLimits(), WithClock(func() time.Time { return clock }))

	for _, b := range [][3]string{
		{"Clean Code", "Robert C. Martin", "Programming"},
		{"Design Patterns", "Gang of Four", "Programming"},
		{"The Pragmatic Programmer", "Andrew Hunt", "Programming"},
		{"Dune", "Frank Herbert", "Science Fiction"},
	} {
		_, err := lib.AddBook(b[0], b[1], b[2])
		require.NoError(t, err)
	}
	for _, name := range []string{"John Doe", "Jane Smith", "Temp"} {
		_, err := lib.AddUser(name)
		require.NoError(t, err)
	}

	require.NoError(t, lib.DeleteBook(2))
	require.NoError(t, lib.DeleteUser(3))
	require.NoError(t, lib.Borrow(1, 1))
	clock = clock.Add(time.Hour)
	require.NoError(t, lib.Borrow(1, 4))
	require.NoError(t, lib.Borrow(2, 3))
	require.NoError(t, lib.ReturnBook(2, 3))
	return lib
}

func requireSameState(t *testing.T, want, got *Library) {
	t.Helper()
	require.Equal(t, want.NextBookID(), got.NextBookID())
	require.Equal(t, want.NextUserID(), got.NextUserID())
	require.Equal(t, want.Books(), got.Books())
	require.Equal(t, want.Users(), got.Users())
}

func TestEncodeFormat(t *testing.T) {
	lib := populatedLibrary(t)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, lib))

	want := strings.Join([]string{
		"3 5 2 4",
		"BOOK|1|Clean Code|Robert C. Martin|Programming|1|1",
		"BOOK|3|The Pragmatic Programmer|Andrew Hunt|Programming|0|-1",
		"BOOK|4|Dune|Frank Herbert|Science Fiction|1|1",
		"USER|1|John Doe|2|1|1700000000|4|1700003600",
		"USER|2|Jane Smith|0",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	lib := populatedLibrary(t)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, lib))
	encoded := buf.String()

	got, err := Decode(strings.NewReader(encoded), DefaultLimits())
	require.NoError(t, err)
	requireSameState(t, lib, got)

	var again bytes.Buffer
	require.NoError(t, Encode(&again, got))
	assert.Equal(t, encoded, again.String())
}

func TestDecodeEmptyLibrary(t *testing.T) {
	got, err := Decode(strings.NewReader("0 1 0 1\n"), DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, 0, got.BookCount())
	assert.Equal(t, 0, got.UserCount())
	assert.Equal(t, int64(1), got.NextBookID())
}

func TestDecodeAcceptsTrailingBlankLines(t *testing.T) {
	_, err := Decode(strings.NewReader("0 7 0 3\n\n\n"), DefaultLimits())
	require.NoError(t, err)
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"empty file", "", ErrCorruptHeader},
		{"header not integers", "a b c d\n", ErrCorruptHeader},
		{"header too short", "1 2 3\n", ErrCorruptHeader},
		{"header zero counter", "0 0 0 1\n", ErrCorruptHeader},
		{"missing book line", "1 2 0 1\n", ErrCorruptRecord},
		{"missing user line", "0 1 1 2\n", ErrCorruptRecord},
		{"short book line", "1 2 0 1\nBOOK|1|Title|Author\n", ErrCorruptRecord},
		{"long book line", "1 2 0 1\nBOOK|1|Ti|tle|Author|Genre|0|-1\n", ErrCorruptRecord},
		{"book id not a number", "1 2 0 1\nBOOK|x|Title|Author|Genre|0|-1\n", ErrCorruptRecord},
		{"book id zero", "1 2 0 1\nBOOK|0|Title|Author|Genre|0|-1\n", ErrCorruptRecord},
		{"unknown status", "1 2 0 1\nBOOK|1|Title|Author|Genre|2|-1\n", ErrCorruptRecord},
		{"borrower zero", "1 2 0 1\nBOOK|1|Title|Author|Genre|0|0\n", ErrCorruptRecord},
		{"empty title", "1 2 0 1\nBOOK|1||Author|Genre|0|-1\n", ErrCorruptRecord},
		{"user where book expected", "1 2 1 2\nUSER|1|John|0\nBOOK|1|Title|Author|Genre|0|-1\n", ErrCorruptRecord},
		{"user loan count mismatch", "0 1 1 2\nUSER|1|John|1\n", ErrCorruptRecord},
		{"user loan fields missing", "1 2 1 2\nBOOK|1|T|A|G|1|1\nUSER|1|John|1|1\n", ErrCorruptRecord},
		{"user bad timestamp", "1 2 1 2\nBOOK|1|T|A|G|1|1\nUSER|1|John|1|1|soon\n", ErrCorruptRecord},
		{"extra record", "0 1 0 1\nBOOK|1|T|A|G|0|-1\n", ErrCorruptRecord},
		{"duplicate book id", "2 3 0 1\nBOOK|1|T|A|G|0|-1\nBOOK|1|T|A|G|0|-1\n", ErrInconsistentState},
		{"book id beyond counter", "1 1 0 1\nBOOK|1|T|A|G|0|-1\n", ErrInconsistentState},
		{"duplicate user id", "0 1 2 3\nUSER|1|A|0\nUSER|1|B|0\n", ErrInconsistentState},
		{"borrowed without borrower", "1 2 0 1\nBOOK|1|T|A|G|1|-1\n", ErrInconsistentState},
		{"available with borrower", "1 2 1 2\nBOOK|1|T|A|G|0|1\nUSER|1|John|0\n", ErrInconsistentState},
		{"borrower unknown", "1 2 0 1\nBOOK|1|T|A|G|1|5\n", ErrInconsistentState},
		{"borrower lacks loan", "1 2 1 2\nBOOK|1|T|A|G|1|1\nUSER|1|John|0\n", ErrInconsistentState},
		{"loan listed twice", "1 2 1 2\nBOOK|1|T|A|G|1|1\nUSER|1|John|2|1|100|1|200\n", ErrInconsistentState},
		{"loan of available book", "1 2 1 2\nBOOK|1|T|A|G|0|-1\nUSER|1|John|1|1|100\n", ErrInconsistentState},
		{"loan of unknown book", "0 2 1 2\nUSER|1|John|1|1|100\n", ErrInconsistentState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib, err := Decode(strings.NewReader(tt.input), DefaultLimits())
			require.Error(t, err)
			assert.Nil(t, lib)
			assert.ErrorIs(t, err, ErrIO)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, KindIO, KindOf(err))
		})
	}
}

func TestDecodeEnforcesBorrowLimit(t *testing.T) {
	limits := DefaultLimits()
	limits.BorrowLimit = 1
	input := "2 3 1 2\nBOOK|1|T|A|G|1|1\nBOOK|2|T|A|G|1|1\nUSER|1|John|2|1|100|2|200\n"

	_, err := Decode(strings.NewReader(input), limits)
	require.ErrorIs(t, err, ErrInconsistentState)

	_, err = Decode(strings.NewReader(input), DefaultLimits())
	require.NoError(t, err)
}

func TestSaveAndLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library_data.txt")
	lib := populatedLibrary(t)

	require.NoError(t, SaveFile(path, lib))
	got, err := LoadFile(path, DefaultLimits())
	require.NoError(t, err)
	requireSameState(t, lib, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")
}

func TestSaveFileReplacesContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library_data.txt")
	require.NoError(t, SaveFile(path, populatedLibrary(t)))

	empty := NewLibrary(DefaultLimits())
	require.NoError(t, SaveFile(path, empty))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0 1 0 1\n", string(data))
}

func TestSaveFileUnwritableDestination(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "library_data.txt")

	err := SaveFile(path, populatedLibrary(t))
	require.ErrorIs(t, err, ErrIO)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSaveFileFailedRenameLeavesNoTrace(t *testing.T) {
	dir := t.TempDir()
	saved := filepath.Join(dir, "backup.txt")
	require.NoError(t, SaveFile(saved, populatedLibrary(t)))
	before, err := os.ReadFile(saved)
	require.NoError(t, err)

	// A non-empty directory in place of the data file makes the final rename fail.
	target := filepath.Join(dir, "library_data.txt")
	require.NoError(t, os.MkdirAll(filepath.Join(target, "keep"), 0o755))

	err = SaveFile(target, NewLibrary(DefaultLimits()))
	require.ErrorIs(t, err, ErrIO)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"backup.txt", "library_data.txt"}, names)

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	kept, err := os.ReadDir(target)
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.Equal(t, "keep", kept[0].Name())

	after, err := os.ReadFile(saved)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestLoadFileMissingIsEmpty(t *testing.T) {
	lib, err := LoadFile(filepath.Join(t.TempDir(), "nope.txt"), DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, 0, lib.BookCount())
	assert.Equal(t, int64(1), lib.NextBookID())
	assert.Equal(t, int64(1), lib.NextUserID())
}

func TestLoadFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library_data.txt")
	require.NoError(t, os.WriteFile(path, []byte("not a header\n"), 0o644))

	lib, err := LoadFile(path, DefaultLimits())
	require.ErrorIs(t, err, ErrIO)
	require.ErrorIs(t, err, ErrCorruptHeader)
	assert.Nil(t, lib)
}

func TestLoadFileReadsExistingData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library_data.txt")
	data := "3 4 2 3\n" +
		"BOOK|1|Clean Code|Robert C. Martin|Programming|1|2\n" +
		"BOOK|2|Design Patterns|Gang of Four|Programming|0|-1\n" +
		"BOOK|3|The Pragmatic Programmer|Andrew Hunt|Programming|0|-1\n" +
		"USER|1|John Doe|0\n" +
		"USER|2|Jane Smith|1|1|1710000000\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	lib, err := LoadFile(path, DefaultLimits())
	require.NoError(t, err)

	b, err := lib.FindBookByID(1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), b.BorrowerID.Int64)
	u, err := lib.FindUserByID(2)
	require.NoError(t, err)
	assert.Equal(t, []Loan{{BookID: 1, BorrowedAt: time.Unix(1710000000, 0).UTC()}}, u.Loans)

	require.NoError(t, lib.ReturnBook(2, 1))
	id, err := lib.AddBook("Refactoring", "Martin Fowler", "Programming")
	require.NoError(t, err)
	assert.Equal(t, int64(4), id)
}
