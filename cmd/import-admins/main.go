/*
main.go - Admin sheet sync

PURPOSE:
  Applies an admin sheet (.xlsx or .csv with "username" and "password"
  columns) to the booth's login accounts. The default admin is ensured
  first with the configured password; the sheet never changes it.

  Listed admins are added, or get the sheet's password. With
  --remove-missing (the default) admins not on the sheet are deleted.
  Seller accounts are left alone unless the sheet names them.

USAGE:
  import-admins --db tickets.db admins.xlsx
  import-admins --remove-missing=false admins.csv

SEE ALSO:
  - auth/accounts.go: Sync rules
  - directory/admins.go: Sheet parsing
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/warp/ticket-booth/auth"
	"github.com/warp/ticket-booth/config"
	"github.com/warp/ticket-booth/directory"
	"github.com/warp/ticket-booth/logger"
	"github.com/warp/ticket-booth/store/sqlstore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "import-admins: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := pflag.NewFlagSet("import-admins", pflag.ContinueOnError)
	config.Flags(fs)
	removeMissing := fs.Bool("remove-missing", true, "Delete admins that are not on the sheet")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: import-admins [flags] <admins.xlsx|admins.csv>")
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
		return errors.New("exactly one admin sheet is required")
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
	creds, err := directory.ReadAdminsFile(path)
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, err := sqlstore.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	accounts := auth.NewAccounts(store, 0)
	change, err := accounts.EnsureDefaultAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password)
	if err != nil {
		return fmt.Errorf("failed to ensure admin account: %w", err)
	}
	if change != auth.AdminUnchanged {
		log.Info("default admin account "+string(change), zap.String("username", cfg.Admin.Username))
	}

	res, err := accounts.Sync(ctx, creds, *removeMissing)
	if err != nil {
		return err
	}

	log.Info("admins synced",
		zap.String("file", path),
		zap.Int("added", res.Added),
		zap.Int("updated", res.Updated),
		zap.Int("unchanged", res.Unchanged),
		zap.Int("removed", res.Removed),
		zap.Int("skipped", res.Skipped),
	)
	return nil
}
