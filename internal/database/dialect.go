package database

import (
	"chschema/internal/lock"
	"database/sql"
	"fmt"
	"strings"
)

// Dialect holds the per-database SQL the journal table needs.
type Dialect interface {
	Name() string
	QuoteIdent(name string) string
	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder(n int) string
	// CreateJournalTable creates the journal table when it is missing.
	CreateJournalTable(table string) string
	// Locker returns the single-writer lock for this database. lockPath is
	// used by dialects without a database-side lock.
	Locker(db *sql.DB, lockPath string) (lock.Locker, error)
}

func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "postgres":
		return PostgreSQL{}, nil
	case "sqlite3":
		return SQLite{}, nil
	case "clickhouse":
		return ClickHouse{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// quoteWith quotes every dot-separated part of name with q, doubling any
// embedded q.
func quoteWith(name string, q string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = q + strings.ReplaceAll(p, q, q+q) + q
	}
	return strings.Join(parts, ".")
}
