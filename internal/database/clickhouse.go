package database

import (
	"chschema/internal/lock"
	"database/sql"
	"fmt"
)

type ClickHouse struct{}

func (ClickHouse) Name() string { return "clickhouse" }

func (ClickHouse) QuoteIdent(name string) string { return quoteWith(name, "`") }

func (ClickHouse) Placeholder(int) string { return "?" }

func (d ClickHouse) CreateJournalTable(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + d.QuoteIdent(table) + ` (
    name String,
    applied_at DateTime64(3, 'UTC'),
    checksum String,
    tool_version String
)
ENGINE = MergeTree
ORDER BY name`
}

// Locker falls back to a host-local file lock; ClickHouse has no lock
// primitive.
func (ClickHouse) Locker(_ *sql.DB, lockPath string) (lock.Locker, error) {
	if lockPath == "" {
		return nil, fmt.Errorf("a ClickHouse journal needs journal.lock_path")
	}
	return lock.NewFile(lockPath), nil
}
