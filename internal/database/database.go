package database

import (
	_ "embed"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schema string

// Open connects to the SQLite database at path, sets performance
// PRAGMAs and applies the schema. Use ":memory:" for tests.
func Open(path string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	// Each pooled connection to :memory: would get its own database.
	if strings.Contains(path, ":memory:") {
		db.SetMaxOpenConns(1)
	}
	if err := Init(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Init runs the embedded schema and sets performance PRAGMAs.
func Init(db *sqlx.DB) error {
	// WAL mode so refresh writes don't block concurrent trend reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA cache_size=-2000;"); err != nil {
		return err
	}
	_, err := db.Exec(schema)
	return err
}
