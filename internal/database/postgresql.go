package database

import (
	"chschema/internal/lock"
	"database/sql"
	"fmt"
)

type PostgreSQL struct{}

func (PostgreSQL) Name() string { return "postgres" }

func (PostgreSQL) QuoteIdent(name string) string { return quoteWith(name, `"`) }

func (PostgreSQL) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (d PostgreSQL) CreateJournalTable(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + d.QuoteIdent(table) + ` (
    name TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL,
    checksum TEXT NOT NULL,
    tool_version TEXT NOT NULL
)`
}

// Locker takes a session advisory lock, shared by every process that talks
// to the same database.
func (PostgreSQL) Locker(db *sql.DB, _ string) (lock.Locker, error) {
	return lock.NewPostgres(db), nil
}
