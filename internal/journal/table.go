package journal

import (
	"chschema/internal/database"
	"chschema/internal/lock"
	"context"
	"fmt"
	"time"
)

const DefaultTable = "chschema_migrations"

// Table keeps the journal as rows of a SQL table, created on first use.
type Table struct {
	conn    *database.Connector
	dialect database.Dialect
	table   string
	locker  lock.Locker
	ready   bool
}

// NewTable uses the connector's dialect for SQL and locking. lockPath is
// only consulted by dialects that need a file lock; SQLite defaults it to
// a file next to the database.
func NewTable(conn *database.Connector, table, lockPath string) (*Table, error) {
	if table == "" {
		table = DefaultTable
	}
	if lockPath == "" {
		lockPath = conn.LockPath()
	}
	dialect := conn.Dialect()
	locker, err := dialect.Locker(conn.DB(), lockPath)
	if err != nil {
		return nil, err
	}
	return &Table{conn: conn, dialect: dialect, table: table, locker: locker}, nil
}

func (j *Table) ensure(ctx context.Context) error {
	if j.ready {
		return nil
	}
	if _, err := j.conn.DB().ExecContext(ctx, j.dialect.CreateJournalTable(j.table)); err != nil {
		return fmt.Errorf("failed to create journal table %s: %w", j.table, err)
	}
	j.ready = true
	return nil
}

func (j *Table) Entries(ctx context.Context) ([]Entry, error) {
	if err := j.ensure(ctx); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT name, applied_at, checksum, tool_version FROM %s ORDER BY name",
		j.dialect.QuoteIdent(j.table))
	rows, err := j.conn.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Name, &e.AppliedAt, &e.Checksum, &e.ToolVersion); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		e.AppliedAt = e.AppliedAt.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	return entries, nil
}

// Append checks for an existing row first; ClickHouse has no unique
// constraint to do it. Writers are serialized by Lock.
func (j *Table) Append(ctx context.Context, e Entry) error {
	if err := validateEntry(e); err != nil {
		return err
	}
	if err := j.ensure(ctx); err != nil {
		return err
	}
	table := j.dialect.QuoteIdent(j.table)

	var count int
	query := fmt.Sprintf("SELECT count(*) FROM %s WHERE name = %s", table, j.dialect.Placeholder(1))
	if err := j.conn.DB().QueryRowContext(ctx, query, e.Name).Scan(&count); err != nil {
		return fmt.Errorf("failed to check journal: %w", err)
	}
	if count > 0 {
		return duplicate(e.Name)
	}

	insert := fmt.Sprintf("INSERT INTO %s (name, applied_at, checksum, tool_version) VALUES (%s, %s, %s, %s)",
		table, j.dialect.Placeholder(1), j.dialect.Placeholder(2), j.dialect.Placeholder(3), j.dialect.Placeholder(4))
	appliedAt := e.AppliedAt
	if appliedAt.IsZero() {
		appliedAt = time.Now()
	}
	if _, err := j.conn.DB().ExecContext(ctx, insert, e.Name, appliedAt.UTC(), e.Checksum, e.ToolVersion); err != nil {
		return fmt.Errorf("failed to append %s to journal: %w", e.Name, err)
	}
	return nil
}

func (j *Table) Lock(ctx context.Context) (func(), error) {
	return j.locker.Acquire(ctx, LockKey)
}

func (j *Table) Close() error {
	return j.conn.Close()
}
