package journal

import (
	"chschema/internal/database"
	"context"
	"fmt"

	"github.com/spf13/afero"
)

type Options struct {
	// Backend is "file" or "table".
	Backend string
	// Path is the file journal location.
	Path string
	// URL is the database holding the journal table.
	URL      string
	Table    string
	LockPath string
	Fs       afero.Fs
}

// Open returns the configured journal backend.
func Open(ctx context.Context, opts Options) (Journal, error) {
	switch opts.Backend {
	case "", "file":
		if opts.Path == "" {
			return nil, fmt.Errorf("file journal needs a path")
		}
		return NewFile(opts.Fs, opts.Path, nil), nil
	case "table":
		conn, err := database.NewConnector(ctx, opts.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal database: %w", err)
		}
		j, err := NewTable(conn, opts.Table, opts.LockPath)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return j, nil
	default:
		return nil, fmt.Errorf("unknown journal backend %q", opts.Backend)
	}
}
