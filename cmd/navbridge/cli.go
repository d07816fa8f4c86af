package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"gorm.io/gorm"

	"github.com/navbridge/extension/internal/config"
	"github.com/navbridge/extension/internal/database"
	gormstorage "github.com/navbridge/extension/internal/storage/gorm"
	"github.com/navbridge/extension/pkg/core"
)

// runJournal prints journal entries from a SQLite file or the configured
// database as JSON.
func runJournal(args []string) int {
	fs := pflag.NewFlagSet(serviceName+" journal", pflag.ContinueOnError)
	configDir := fs.String("config", ".", "directory holding "+config.FileName)
	dbPath := fs.String("db", "", "SQLite journal file; defaults to the configured storage")
	category := fs.String("category", "", "only entries of this category: marker_tap, navigation or scene")
	limit := fs.Int("limit", 0, "print at most this many of the newest entries")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	if err := config.Load(*configDir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config, using defaults: %v\n", err)
	}

	if err := printJournal(os.Stdout, *dbPath, config.GetStorageConfig(), core.JournalQuery{
		Category: *category,
		Limit:    *limit,
	}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func printJournal(w io.Writer, dbPath string, cfg config.StorageConfig, q core.JournalQuery) error {
	switch q.Category {
	case "", core.CategoryMarkerTap, core.CategoryNavigation, core.CategoryScene:
	default:
		return fmt.Errorf("unknown category: %s", q.Category)
	}
	if q.Limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}

	db, err := openJournalDB(dbPath, cfg)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	entries, err := gormstorage.New(gormstorage.Dependencies{DB: db, Logger: zerolog.Nop()}).Query(q)
	if err != nil {
		return fmt.Errorf("query journal: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

func openJournalDB(dbPath string, cfg config.StorageConfig) (*gorm.DB, error) {
	if dbPath == "" {
		switch cfg.Type {
		case "sqlite":
			dbPath = cfg.SQLite.DumpPath
		case "postgres":
			db, err := database.OpenPostgres(cfg.Postgres)
			if err != nil {
				return nil, fmt.Errorf("connect to postgres: %w", err)
			}
			return db, nil
		default:
			return nil, fmt.Errorf("storage type %q has no database to read, pass --db", cfg.Type)
		}
	}

	// Opening a missing file would create an empty journal.
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("journal file: %w", err)
	}
	return database.OpenSqlite(dbPath)
}
