package library

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userIDs(users []User) []int64 {
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}

func TestAddUser(t *testing.T) {
	lib := newLibrary(t)

	id, err := lib.AddUser("John")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	u, err := lib.FindUserByID(id)
	require.NoError(t, err)
	assert.Equal(t, "John", u.Name)
	assert.Empty(t, u.Loans)

	_, err = lib.AddUser("")
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = lib.AddUser(strings.Repeat("n", MaxNameLength+1))
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, 1, lib.UserCount())
}

func TestAddUserCapacity(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxUsers = 1
	lib := NewLibrary(limits)

	_, err := lib.AddUser("John")
	require.NoError(t, err)
	_, err = lib.AddUser("Jane")
	require.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, int64(2), lib.NextUserID())
}

func TestUpdateUser(t *testing.T) {
	lib := newLibrary(t)
	id, _ := lib.AddUser("John")

	require.NoError(t, lib.UpdateUser(id, "Johnny"))
	u, _ := lib.FindUserByID(id)
	assert.Equal(t, "Johnny", u.Name)

	require.ErrorIs(t, lib.UpdateUser(42, "Nobody"), ErrUserNotFound)
	require.ErrorIs(t, lib.UpdateUser(id, "a|b"), ErrInvalidInput)
}

func TestDeleteUser(t *testing.T) {
	lib := newLibrary(t)
	_, _ = lib.AddUser("A")
	_, _ = lib.AddUser("B")
	_, _ = lib.AddUser("C")

	require.NoError(t, lib.DeleteUser(2))
	assert.Equal(t, []int64{1, 3}, userIDs(lib.Users()))
	require.ErrorIs(t, lib.DeleteUser(2), ErrUserNotFound)

	id, _ := lib.AddUser("D")
	assert.Equal(t, int64(4), id)
}

func TestDeleteUserWithLoansFails(t *testing.T) {
	lib := newLibrary(t)
	userID, _ := lib.AddUser("John")
	bookID, _ := lib.AddBook("A", "Author", "Genre")
	require.NoError(t, lib.Borrow(userID, bookID))
	before := lib.Users()

	require.ErrorIs(t, lib.DeleteUser(userID), ErrUserHasActiveLoans)
	assert.Equal(t, before, lib.Users())

	require.NoError(t, lib.ReturnBook(userID, bookID))
	require.NoError(t, lib.DeleteUser(userID))
	assert.Equal(t, 0, lib.UserCount())
}

func TestFindUserReturnsCopy(t *testing.T) {
	lib := newLibrary(t)
	userID, _ := lib.AddUser("John")
	bookID, _ := lib.AddBook("A", "Author", "Genre")
	require.NoError(t, lib.Borrow(userID, bookID))

	u, _ := lib.FindUserByID(userID)
	u.Loans[0].BookID = 99

	again, _ := lib.FindUserByID(userID)
	assert.Equal(t, bookID, again.Loans[0].BookID)
}
