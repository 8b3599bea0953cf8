package library

import (
	"errors"
	"slices"
	"strings"
)

func validateBook(title, author, genre string) error {
	return errors.Join(
		validateText("title", title, MaxTitleLength),
		validateText("author", author, MaxAuthorLength),
		validateText("genre", genre, MaxGenreLength),
	)
}

// AddBook appends an available book and returns its new id.
func (l *Library) AddBook(title, author, genre string) (int64, error) {
	if err := validateBook(title, author, genre); err != nil {
		return 0, newError(KindInvalidInput, "add book", 0, err)
	}
	if l.booksFull() {
		return 0, newError(KindCapacityExceeded, "add book", 0, nil)
	}

	b := Book{
		ID:     l.generateBookID(),
		Title:  title,
		Author: author,
		Genre:  genre,
		Status: StatusAvailable,
	}
	l.books = append(l.books, b)
	return b.ID, nil
}

// UpdateBook overwrites title, author and genre. Circulation state is kept.
func (l *Library) UpdateBook(id int64, title, author, genre string) error {
	if err := validateBook(title, author, genre); err != nil {
		return newError(KindInvalidInput, "update book", id, err)
	}
	i := l.bookIndex(id)
	if i < 0 {
		return newError(KindBookNotFound, "update book", id, nil)
	}

	b := &l.books[i]
	b.Title, b.Author, b.Genre = title, author, genre
	return nil
}

// DeleteBook removes an available book, keeping the order of the rest.
func (l *Library) DeleteBook(id int64) error {
	i := l.bookIndex(id)
	if i < 0 {
		return newError(KindBookNotFound, "delete book", id, nil)
	}
	if l.books[i].Status == StatusBorrowed {
		return newError(KindBookStillBorrowed, "delete book", id, nil)
	}
	l.books = slices.Delete(l.books, i, i+1)
	return nil
}

// SearchByTitle returns the books whose title contains term, ignoring case.
func (l *Library) SearchByTitle(term string) ([]Book, error) {
	return l.search("search by title", term, func(b Book) string { return b.Title })
}

// SearchByAuthor returns the books whose author contains term, ignoring case.
func (l *Library) SearchByAuthor(term string) ([]Book, error) {
	return l.search("search by author", term, func(b Book) string { return b.Author })
}

// SearchByGenre returns the books whose genre contains term, ignoring case.
func (l *Library) SearchByGenre(term string) ([]Book, error) {
	return l.search("search by genre", term, func(b Book) string { return b.Genre })
}

func (l *Library) search(op, term string, field func(Book) string) ([]Book, error) {
	if strings.TrimSpace(term) == "" {
		return nil, newError(KindInvalidInput, op, 0, errors.New("search term must not be empty"))
	}
	needle := strings.ToLower(term)
	matches := []Book{}
	for _, b := range l.books {
		if strings.Contains(strings.ToLower(field(b)), needle) {
			matches = append(matches, b)
		}
	}
	return matches, nil
}

// AvailableBooks returns the books that are not out, in table order.
func (l *Library) AvailableBooks() []Book {
	var available []Book
	for _, b := range l.books {
		if b.Available() {
			available = append(available, b)
		}
	}
	return available
}
