package library

import "slices"

// AddUser appends a user with no loans and returns the new id.
func (l *Library) AddUser(name string) (int64, error) {
	if err := validateText("name", name, MaxNameLength); err != nil {
		return 0, newError(KindInvalidInput, "add user", 0, err)
	}
	if l.usersFull() {
		return 0, newError(KindCapacityExceeded, "add user", 0, nil)
	}

	u := User{ID: l.generateUserID(), Name: name}
	l.users = append(l.users, u)
	return u.ID, nil
}

// UpdateUser renames a user.
func (l *Library) UpdateUser(id int64, name string) error {
	if err := validateText("name", name, MaxNameLength); err != nil {
		return newError(KindInvalidInput, "update user", id, err)
	}
	i := l.userIndex(id)
	if i < 0 {
		return newError(KindUserNotFound, "update user", id, nil)
	}
	l.users[i].Name = name
	return nil
}

// DeleteUser removes a user holding no books, keeping the order of the rest.
func (l *Library) DeleteUser(id int64) error {
	i := l.userIndex(id)
	if i < 0 {
		return newError(KindUserNotFound, "delete user", id, nil)
	}
	if len(l.users[i].Loans) > 0 {
		return newError(KindUserHasActiveLoans, "delete user", id, nil)
	}
	l.users = slices.Delete(l.users, i, i+1)
	return nil
}
