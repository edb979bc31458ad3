// Package database opens the SQL databases that can hold the journal table
// and the ClickHouse connection migrations are executed on.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

type Connector struct {
	db      *sql.DB
	driver  string
	dsn     string
	dialect Dialect
}

func NewConnector(ctx context.Context, databaseURL string) (*Connector, error) {
	driver, dsn, err := ParseDatabaseURL(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	c, err := FromDB(db, driver)
	if err != nil {
		db.Close()
		return nil, err
	}
	c.dsn = dsn
	return c, nil
}

// FromDB wraps an already opened database.
func FromDB(db *sql.DB, driver string) (*Connector, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite3" {
		// one connection keeps in-memory databases alive and serializes writers
		db.SetMaxOpenConns(1)
	}
	return &Connector{db: db, driver: driver, dialect: dialect}, nil
}

func (c *Connector) DB() *sql.DB {
	return c.db
}

func (c *Connector) Driver() string {
	return c.driver
}

func (c *Connector) Dialect() Dialect {
	return c.dialect
}

// LockPath returns the lock file that serializes journal writers on a
// SQLite database file, or "" for in-memory and non-SQLite databases.
func (c *Connector) LockPath() string {
	if c.driver != "sqlite3" {
		return ""
	}
	return SQLiteLockPath(c.dsn)
}

// SQLiteLockPath derives a lock file next to the database file of a
// go-sqlite3 DSN such as "journal.db" or "file:journal.db?_busy_timeout=5000".
func SQLiteLockPath(dsn string) string {
	path, params, _ := strings.Cut(dsn, "?")
	path = strings.TrimPrefix(path, "file:")
	if path == "" || path == ":memory:" || strings.Contains(params, "mode=memory") {
		return ""
	}
	return path + ".lock"
}

func (c *Connector) Close() error {
	return c.db.Close()
}

func ParseDatabaseURL(databaseURL string) (driver, dsn string, err error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", "", err
	}

	switch u.Scheme {
	case "postgres", "postgresql":
		return "postgres", databaseURL, nil
	case "sqlite", "sqlite3":
		dsn := strings.TrimPrefix(databaseURL, u.Scheme+"://")
		if dsn == "" {
			return "", "", fmt.Errorf("sqlite URL has no path")
		}
		return "sqlite3", dsn, nil
	case "clickhouse":
		return "clickhouse", databaseURL, nil
	default:
		return "", "", fmt.Errorf("unsupported database scheme: %s", u.Scheme)
	}
}
