// Package sqldb is the SQL transport. A Table inserts, selects, updates and
// deletes rows of one table, filtering by the bound view's filter fields, and
// wraps selected rows in the bound view type.
package sqldb

import (
	"fmt"
	"io/fs"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// MigrationsDir is the directory of the migrations filesystem goose reads.
const MigrationsDir = "migrations"

// goose keeps its base filesystem and dialect in package globals.
var gooseMu sync.Mutex

// Open connects to the SQLite database file at path and applies the goose
// migrations found under MigrationsDir in migrations. A nil migrations
// filesystem skips migrating.
//
// The connection uses WAL journaling and foreign keys and is limited to one
// open connection.
func Open(path string, migrations fs.FS) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite", fmt.Sprintf("%s?_journal=WAL&_timeout=5000&_fk=true", path))
	if err != nil {
		return nil, fmt.Errorf("connecting to db : %w", err)
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if migrations == nil {
		return db, nil
	}
	if err := migrate(db, migrations); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func migrate(db *sqlx.DB, migrations fs.FS) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(string(goose.DialectSQLite3)); err != nil {
		return fmt.Errorf("setting dialect for migrations : %w", err)
	}

	if err := goose.Up(db.DB, MigrationsDir); err != nil {
		return fmt.Errorf("applying migration : %w", err)
	}
	return nil
}
