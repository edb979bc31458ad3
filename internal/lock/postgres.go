package lock

import (
	"context"
	"database/sql"
	"fmt"
)

// Postgres holds a session-level advisory lock. The lock lives on one
// dedicated connection taken from the pool, since advisory locks belong to
// the session that took them.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (l *Postgres) Acquire(ctx context.Context, key string) (func(), error) {
	id := hashKey(key)
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve connection for lock: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, id); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pg_advisory_lock(%d): %w", id, err)
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, id)
		_ = conn.Close()
	}, nil
}
