// Package db is the audit ledger: a sqlite database recording each filter
// run, its reason counts, imputations and the excluded rows.
package db

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/congestion.audit/internal/monitoring"
	"github.com/banshee-data/congestion.audit/internal/timeutil"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DevMode reads migrations from MigrationsDir on disk instead of the
// embedded copy.
var DevMode = false

// MigrationsDir is the on-disk migrations directory used in DevMode.
var MigrationsDir = "internal/db/migrations"

// getMigrationsFS returns the migrations with the SQL files at its root.
func getMigrationsFS() (fs.FS, error) {
	if DevMode {
		if _, err := os.Stat(MigrationsDir); err != nil {
			return nil, fmt.Errorf("migrations directory %s: %w", MigrationsDir, err)
		}
		return os.DirFS(MigrationsDir), nil
	}
	return fs.Sub(migrationsFS, "migrations")
}

type DB struct {
	*sql.DB
	clock timeutil.Clock
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// OpenDB opens the database and applies connection pragmas without touching
// the schema.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Pragmas are per connection.
	sqlDB.SetMaxOpenConns(1)
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	return &DB{DB: sqlDB, clock: timeutil.RealClock{}}, nil
}

// NewDB opens the database and migrates it to the latest schema.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	migFS, err := getMigrationsFS()
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := db.MigrateUp(migFS); err != nil {
		db.Close()
		return nil, err
	}
	monitoring.Debugf("audit ledger ready at %s", path)
	return db, nil
}

// NewDBWithMigrationCheck opens an existing ledger. With checkMigrations set
// it refuses a database whose schema is behind the embedded migrations.
func NewDBWithMigrationCheck(path string, checkMigrations bool) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if !checkMigrations {
		return db, nil
	}
	migFS, err := getMigrationsFS()
	if err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.CheckMigrations(migFS); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// SetClock replaces the clock used to stamp runs.
func (db *DB) SetClock(c timeutil.Clock) { db.clock = c }
