package journal

import (
	"chschema/internal/lock"
	"chschema/internal/storage"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/spf13/afero"
)

type fileDocument struct {
	Version int     `json:"version"`
	Applied []Entry `json:"applied"`
}

// File keeps the journal in a JSON document that is rewritten atomically on
// every append.
type File struct {
	fs     afero.Fs
	path   string
	locker lock.Locker
	mu     sync.Mutex
}

// NewFile opens a file journal at path. When locker is nil an OS lock on
// <path>.lock is used.
func NewFile(fsys afero.Fs, path string, locker lock.Locker) *File {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if locker == nil {
		locker = lock.NewFile(path + ".lock")
	}
	return &File{fs: fsys, path: path, locker: locker}
}

func (j *File) read() (*fileDocument, error) {
	data, err := afero.ReadFile(j.fs, j.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &fileDocument{Version: FormatVersion}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read journal %s: %w", j.path, err)
	}
	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse journal %s: %w", j.path, err)
	}
	if doc.Version > FormatVersion {
		return nil, fmt.Errorf("journal %s has unsupported version %d", j.path, doc.Version)
	}
	return &doc, nil
}

func (j *File) Entries(ctx context.Context) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	doc, err := j.read()
	if err != nil {
		return nil, err
	}
	entries := append([]Entry(nil), doc.Applied...)
	sort.Slice(entries, func(a, b int) bool { return entries[a].Name < entries[b].Name })
	return entries, nil
}

func (j *File) Append(ctx context.Context, e Entry) error {
	if err := validateEntry(e); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	doc, err := j.read()
	if err != nil {
		return err
	}
	for _, existing := range doc.Applied {
		if existing.Name == e.Name {
			return duplicate(e.Name)
		}
	}
	doc.Version = FormatVersion
	doc.Applied = append(doc.Applied, e)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode journal: %w", err)
	}
	data = append(data, '\n')
	if err := j.fs.MkdirAll(filepath.Dir(j.path), 0o755); err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}
	if err := storage.WriteFileAtomic(j.fs, j.path, data); err != nil {
		return fmt.Errorf("failed to write journal: %w", err)
	}
	return nil
}

func (j *File) Lock(ctx context.Context) (func(), error) {
	return j.locker.Acquire(ctx, LockKey)
}

func (j *File) Close() error {
	return nil
}
