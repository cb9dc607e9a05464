package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"inventory-ledger/internal/config"
	"inventory-ledger/internal/db"
	"inventory-ledger/migrations"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	dir := flagSet.String("dir", "", "read migrations from this directory instead of the embedded set")
	list := flagSet.Bool("list", false, "list discovered migrations without applying them")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	var source fs.FS = migrations.FS
	if *dir != "" {
		source = os.DirFS(*dir)
	}

	if *list {
		found, err := db.DiscoverMigrations(source)
		if err != nil {
			return err
		}
		for _, m := range found {
			fmt.Printf("%s  %s  %s\n", m.Version, m.Checksum[:12], m.Filename)
		}
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := cfg.NewLogger(os.Stderr)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("unable to connect to database: %w", err)
	}
	defer pool.Close()

	return db.Migrate(ctx, pool, source, logger)
}
