package main

import (
	"context"
	"fmt"
	"strconv"

	"library-catalog/library"

	"github.com/spf13/cobra"
)

const msgSuccess = "Operation successful"

func parseID(kind, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid %s ID: %q", kind, raw)
	}
	return id, nil
}

// done reports a successful change, with the new record id when there is one.
func (a *app) done(id int64) error {
	if a.jsonOut {
		if id == 0 {
			return writeJSON(a.out, map[string]any{"ok": true})
		}
		return writeJSON(a.out, map[string]any{"ok": true, "id": id})
	}
	if id == 0 {
		fmt.Fprintln(a.out, msgSuccess)
		return nil
	}
	fmt.Fprintf(a.out, "%s (ID: %d)\n", msgSuccess, id)
	return nil
}

func (a *app) showUser(id int64) error {
	u, err := a.mgr.FindUserByID(id)
	if err != nil {
		return err
	}
	loans, err := a.mgr.UserLoans(id)
	if err != nil {
		return err
	}
	if a.jsonOut {
		return writeJSON(a.out, viewUser(u, loans))
	}
	printUserInfo(a.out, u, loans)
	return nil
}

// ------------------ Books ------------------

func newBookCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Add, change, remove and look up books",
	}

	add := &cobra.Command{
		Use:   "add <title> <author> <genre>",
		Short: "Add a book to the catalog",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.mgr.AddBook(args[0], args[1], args[2])
			if err != nil {
				return err
			}
			return a.done(id)
		},
	}

	update := &cobra.Command{
		Use:   "update <id> <title> <author> <genre>",
		Short: "Replace a book's title, author and genre",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("book", args[0])
			if err != nil {
				return err
			}
			if err := a.mgr.UpdateBook(id, args[1], args[2], args[3]); err != nil {
				return err
			}
			return a.done(0)
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a book that is not on loan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("book", args[0])
			if err != nil {
				return err
			}
			if err := a.mgr.DeleteBook(id); err != nil {
				return err
			}
			return a.done(0)
		},
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("book", args[0])
			if err != nil {
				return err
			}
			b, err := a.mgr.FindBookByID(id)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(a.out, viewBook(b))
			}
			printBookLine(a.out, b)
			return nil
		},
	}

	var availableOnly bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List every book in catalog order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			books := a.mgr.Books()
			if availableOnly {
				books = a.mgr.AvailableBooks()
			}
			if a.jsonOut {
				return writeJSON(a.out, viewBooks(books))
			}
			if availableOnly {
				printAvailableBooks(a.out, books)
				return nil
			}
			printAllBooks(a.out, books, a.mgr.Users())
			return nil
		},
	}
	list.Flags().BoolVar(&availableOnly, "available", false, "only books that can be borrowed")

	var by string
	search := &cobra.Command{
		Use:   "search <term>",
		Short: "Find books whose title, author or genre contains term, ignoring case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				books []library.Book
				field string
				err   error
			)
			switch by {
			case "title":
				field = "Title"
				books, err = a.mgr.SearchByTitle(args[0])
			case "author":
				field = "Author"
				books, err = a.mgr.SearchByAuthor(args[0])
			case "genre":
				field = "Genre"
				books, err = a.mgr.SearchByGenre(args[0])
			default:
				return fmt.Errorf("unknown search field %q, want title, author or genre", by)
			}
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(a.out, viewBooks(books))
			}
			printSearchResults(a.out, field, args[0], books)
			return nil
		},
	}
	search.Flags().StringVar(&by, "by", "title", "field to search: title, author or genre")

	cmd.AddCommand(add, update, del, show, list, search)
	return cmd
}

// ------------------ Users ------------------

func newUserCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Add, change, remove and look up users",
	}

	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.mgr.AddUser(args[0])
			if err != nil {
				return err
			}
			return a.done(id)
		},
	}

	update := &cobra.Command{
		Use:   "update <id> <name>",
		Short: "Rename a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("user", args[0])
			if err != nil {
				return err
			}
			if err := a.mgr.UpdateUser(id, args[1]); err != nil {
				return err
			}
			return a.done(0)
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a user who holds no books",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("user", args[0])
			if err != nil {
				return err
			}
			if err := a.mgr.DeleteUser(id); err != nil {
				return err
			}
			return a.done(0)
		},
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a user and the books they hold",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("user", args[0])
			if err != nil {
				return err
			}
			return a.showUser(id)
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List every user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			users := a.mgr.Users()
			if !a.jsonOut {
				printAllUsers(a.out, users)
				return nil
			}
			views := make([]userView, 0, len(users))
			for _, u := range users {
				loans, err := a.mgr.UserLoans(u.ID)
				if err != nil {
					return err
				}
				views = append(views, viewUser(u, loans))
			}
			return writeJSON(a.out, views)
		},
	}

	cmd.AddCommand(add, update, del, show, list)
	return cmd
}

// ------------------ Circulation ------------------

func newBorrowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "borrow <user-id> <book-id>",
		Short: "Lend a book to a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, bookID, err := parseLoanArgs(args)
			if err != nil {
				return err
			}
			if err := a.mgr.Borrow(userID, bookID); err != nil {
				return err
			}
			return a.done(0)
		},
	}
}

func newReturnCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "return <user-id> <book-id>",
		Short: "Take a book back from a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, bookID, err := parseLoanArgs(args)
			if err != nil {
				return err
			}
			if err := a.mgr.ReturnBook(userID, bookID); err != nil {
				return err
			}
			return a.done(0)
		},
	}
}

func parseLoanArgs(args []string) (userID, bookID int64, err error) {
	if userID, err = parseID("user", args[0]); err != nil {
		return 0, 0, err
	}
	if bookID, err = parseID("book", args[1]); err != nil {
		return 0, 0, err
	}
	return userID, bookID, nil
}

// ------------------ Reports ------------------

func newOverdueCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "overdue",
		Short: "List loans past their due date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loans := a.mgr.OverdueLoans()
			if a.jsonOut {
				return writeJSON(a.out, viewOverdue(loans))
			}
			printOverdue(a.out, loans)
			return nil
		},
	}
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize books and users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.mgr.Stats()
			if a.jsonOut {
				return writeJSON(a.out, s)
			}
			printStats(a.out, s)
			return nil
		},
	}
}

// ------------------ SQLite mirror ------------------

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <db-path>",
		Short: "Copy the whole library into a SQLite database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := a.mgr.ExportSQLite(commandContext(cmd), args[0])
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(a.out, summary)
			}
			printExportSummary(a.out, args[0], summary)
			return nil
		},
	}
}

func newImportDBCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import-db <db-path>",
		Short: "Replace the library with the snapshot stored in a SQLite database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.mgr.ImportSQLite(commandContext(cmd), args[0]); err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(a.out, a.mgr.Stats())
			}
			fmt.Fprintf(a.out, "Imported %d books and %d users from %s\n", len(a.mgr.Books()), len(a.mgr.Users()), args[0])
			return nil
		},
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newREPLCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Run the interactive menu (the default with no command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runREPL()
		},
	}
}
