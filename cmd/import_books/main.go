package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"library-catalog/library"

	"github.com/spf13/cobra"
)

func main() {
	if err := newImportCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newImportCmd(out io.Writer) *cobra.Command {
	var dataFile string
	cmd := &cobra.Command{
		Use:           "import_books <csv-file>",
		Short:         "Add every title,author,genre row of a CSV file to the catalog",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := library.LoadConfig()
			if dataFile != "" {
				cfg.DataFile = dataFile
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))

			// One write at the end instead of one per row.
			manager, err := library.NewLibraryManager(cfg.DataFile,
				library.WithLogger(logger),
				library.WithLimits(cfg.Limits),
				library.WithAutosave(false),
			)
			if err != nil {
				return fmt.Errorf("open %s: %w", cfg.DataFile, err)
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			fmt.Fprintf(out, "Importing books from %s...\n", args[0])
			imported, failed := importBooks(f, manager, out)

			fmt.Fprintf(out, "\nImport complete!\n")
			fmt.Fprintf(out, "Successfully imported: %d books\n", imported)
			fmt.Fprintf(out, "Errors: %d\n", failed)
			if imported == 0 {
				return nil
			}
			if err := manager.Save(); err != nil {
				return err
			}

			fmt.Fprintln(out, "\nCatalog:")
			fmt.Fprintf(out, "%-5s %-50s %-30s\n", "ID", "Title", "Author")
			fmt.Fprintln(out, strings.Repeat("-", 87))
			for _, book := range manager.Books() {
				fmt.Fprintf(out, "%-5d %-50s %-30s\n", book.ID, truncateString(book.Title, 50), truncateString(book.Author, 30))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dataFile, "data", "", "path to the data file (default $LIBRARY_DATA_FILE or "+library.DefaultDataFile+")")
	return cmd
}

// importBooks adds one book per CSV row. A first row reading
// title,author,genre is treated as a header. Rows the catalog rejects are
// reported and counted; a full catalog stops the import.
func importBooks(r io.Reader, manager *library.LibraryManager, out io.Writer) (imported, failed int) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 3
	reader.TrimLeadingSpace = true

	for row := 1; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return imported, failed
		}
		if err != nil {
			fmt.Fprintf(out, "Row %d: ERROR - %v\n", row, err)
			failed++
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return imported, failed
			}
			continue
		}
		if row == 1 && isHeader(record) {
			continue
		}

		title, author, genre := record[0], record[1], record[2]
		fmt.Fprintf(out, "Importing: %s by %s... ", title, author)

		id, err := manager.AddBook(title, author, genre)
		if err != nil {
			fmt.Fprintf(out, "ERROR - %v\n", err)
			failed++
			if errors.Is(err, library.ErrCapacityExceeded) {
				fmt.Fprintln(out, "Catalog is full, stopping.")
				return imported, failed
			}
			continue
		}
		fmt.Fprintf(out, "SUCCESS (ID: %d)\n", id)
		imported++
	}
}

func isHeader(record []string) bool {
	return strings.EqualFold(record[0], "title") &&
		strings.EqualFold(record[1], "author") &&
		strings.EqualFold(record[2], "genre")
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
