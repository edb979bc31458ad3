package database

import (
	"chschema/internal/lock"
	"database/sql"
)

type SQLite struct{}

func (SQLite) Name() string { return "sqlite3" }

func (SQLite) QuoteIdent(name string) string { return quoteWith(name, `"`) }

func (SQLite) Placeholder(int) string { return "?" }

func (d SQLite) CreateJournalTable(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + d.QuoteIdent(table) + ` (
    name TEXT PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL,
    checksum TEXT NOT NULL,
    tool_version TEXT NOT NULL
)`
}

// Locker takes a file lock next to the database so concurrent chschema
// processes serialize their whole check-and-apply run. An in-memory
// database has no path and is only shared within this process.
func (SQLite) Locker(_ *sql.DB, lockPath string) (lock.Locker, error) {
	if lockPath == "" {
		return lock.NewMutex(), nil
	}
	return lock.NewFile(lockPath), nil
}
