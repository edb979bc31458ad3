//go:build !unix

package lock

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// File is an exclusive-create lock file. A crashed holder leaves the file
// behind; it has to be removed by hand.
type File struct {
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (l *File) Acquire(ctx context.Context, _ string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	for {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			break
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("failed to lock %s: %w", l.path, err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to lock %s: %w", l.path, ctx.Err())
		case <-time.After(pollInterval):
		}
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		_ = os.Remove(l.path)
	}, nil
}
