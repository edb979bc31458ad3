package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"syscall"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// Executor runs one DDL statement and waits for it to finish.
type Executor interface {
	Execute(ctx context.Context, statement string) error
}

// Conn is the part of the ClickHouse native connection the executor uses.
type Conn interface {
	Exec(ctx context.Context, query string, args ...any) error
	Close() error
}

type ClickHouseOptions struct {
	DSN         string
	Settings    map[string]any
	Retries     int
	DialTimeout time.Duration
	Logger      *slog.Logger
}

// ClickHouseExecutor executes statements over the native protocol. Only
// transient network failures are retried; server errors are returned at
// once.
type ClickHouseExecutor struct {
	conn    Conn
	retries int
	backoff time.Duration
	logger  *slog.Logger
}

func NewClickHouseExecutor(conn Conn, retries int, logger *slog.Logger) *ClickHouseExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	if retries < 0 {
		retries = 0
	}
	return &ClickHouseExecutor{conn: conn, retries: retries, backoff: 500 * time.Millisecond, logger: logger}
}

// OpenClickHouse connects with the native driver and pings the server.
func OpenClickHouse(ctx context.Context, opts ClickHouseOptions) (*ClickHouseExecutor, error) {
	options, err := clickhouse.ParseDSN(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ClickHouse DSN: %w", err)
	}
	if options.Settings == nil {
		options.Settings = clickhouse.Settings{}
	}
	if _, ok := options.Settings["max_execution_time"]; !ok {
		options.Settings["max_execution_time"] = 0
	}
	for k, v := range opts.Settings {
		options.Settings[k] = v
	}
	if opts.DialTimeout > 0 {
		options.DialTimeout = opts.DialTimeout
	}
	options.MaxOpenConns = 1

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	return NewClickHouseExecutor(conn, opts.Retries, opts.Logger), nil
}

func (e *ClickHouseExecutor) Execute(ctx context.Context, statement string) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = e.conn.Exec(ctx, statement)
		if err == nil {
			return nil
		}
		if attempt >= e.retries || !IsTransient(err) {
			return err
		}
		e.logger.Warn("retrying statement after transient error",
			"attempt", attempt+1,
			"retries", e.retries,
			"error", err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w (retry aborted: %v)", err, ctx.Err())
		case <-time.After(e.backoff * time.Duration(attempt+1)):
		}
	}
}

func (e *ClickHouseExecutor) Close() error {
	return e.conn.Close()
}

// IsTransient reports whether err is a network failure worth retrying.
// Server exceptions are never transient.
func IsTransient(err error) bool {
	var exception *clickhouse.Exception
	if errors.As(err, &exception) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, clickhouse.ErrAcquireConnTimeout) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
