/*
main.go - Employee directory import

PURPOSE:
  Loads the employee directory from a spreadsheet export (.xlsx or .csv
  with "Employee ID" and "Employee Name" columns) into the booth database.
  Existing employees are updated in place; tickets are never touched.

USAGE:
  import-employees --db tickets.db employees.xlsx
  TICKET_DATABASE_DRIVER=pgx TICKET_DATABASE_DSN=postgres://... import-employees employees.csv

SEE ALSO:
  - directory/employees.go: Parsing rules
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/warp/ticket-booth/config"
	"github.com/warp/ticket-booth/directory"
	"github.com/warp/ticket-booth/logger"
	"github.com/warp/ticket-booth/store/sqlstore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "import-employees: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := pflag.NewFlagSet("import-employees", pflag.ContinueOnError)
	config.Flags(fs)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: import-employees [flags] <employees.xlsx|employees.csv>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("exactly one employee sheet is required")
	}

	cfg, err := config.Resolve(fs)
	if err != nil {
		return err
	}
	if err := cfg.Database.Validate(); err != nil {
		return err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	path := fs.Arg(0)
	if _, err := directory.FormatOf(path); err != nil {
		return err
	}

	ctx := context.Background()
	store, err := sqlstore.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	n, err := directory.ImportFile(ctx, path, store)
	if err != nil {
		return err
	}
	total, err := store.CountEmployees(ctx)
	if err != nil {
		return err
	}

	log.Info("employees imported",
		zap.String("file", path),
		zap.Int("rows", n),
		zap.Int("directory_size", total),
	)
	return nil
}
