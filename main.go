package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"library-catalog/library"

	"github.com/spf13/cobra"
)

// app carries what every command needs: the parsed flags, the output stream
// and the manager opened for the run.
type app struct {
	dataFile string
	verbose  bool
	jsonOut  bool

	in     io.Reader
	out    io.Writer
	logger *slog.Logger
	mgr    *library.LibraryManager
}

func main() {
	a := &app{in: os.Stdin, out: os.Stdout}
	if err := newRootCmd(a).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "library",
		Short:         "Manage a small library catalog: books, users and loans",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runREPL()
		},
	}
	root.SetIn(a.in)
	root.SetOut(a.out)

	flags := root.PersistentFlags()
	flags.StringVar(&a.dataFile, "data", "", "path to the data file (default $LIBRARY_DATA_FILE or "+library.DefaultDataFile+")")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log debug output to stderr")
	flags.BoolVar(&a.jsonOut, "json", false, "print results as JSON")

	root.AddCommand(
		newBookCmd(a),
		newUserCmd(a),
		newBorrowCmd(a),
		newReturnCmd(a),
		newOverdueCmd(a),
		newStatsCmd(a),
		newExportCmd(a),
		newImportDBCmd(a),
		newREPLCmd(a),
	)
	return root
}

// open builds the logger and the manager once flags are parsed.
func (a *app) open(cmd *cobra.Command) error {
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	cfg := library.LoadConfig()
	if a.dataFile != "" {
		cfg.DataFile = a.dataFile
	}

	mgr, err := library.NewLibraryManager(cfg.DataFile,
		library.WithLogger(a.logger),
		library.WithLimits(cfg.Limits),
	)
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.DataFile, err)
	}
	a.mgr = mgr
	return nil
}
