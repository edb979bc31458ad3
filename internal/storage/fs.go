package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// FSStore keeps blobs as files below a root directory.
type FSStore struct {
	fs   afero.Fs
	root string
}

func NewFSStore(fsys afero.Fs, root string) *FSStore {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &FSStore{fs: fsys, root: root}
}

func (s *FSStore) path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

func (s *FSStore) Location(name string) string {
	return s.path(name)
}

func (s *FSStore) List(ctx context.Context, prefix string) ([]string, error) {
	dir := path.Dir(prefix + "x")
	if dir == "." {
		dir = ""
	}
	entries, err := afero.ReadDir(s.fs, s.path(dir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.path(dir), err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if dir != "" {
			name = dir + "/" + name
		}
		if strings.HasPrefix(name, prefix) && !strings.HasPrefix(entry.Name(), ".") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *FSStore) Read(ctx context.Context, name string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", s.path(name), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path(name), err)
	}
	return data, nil
}

// Write replaces name atomically: the data goes to a hidden temporary file
// in the same directory which is then renamed over the target.
func (s *FSStore) Write(ctx context.Context, name string, data []byte) error {
	target := s.path(name)
	dir := filepath.Dir(target)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return WriteFileAtomic(s.fs, target, data)
}

// WriteFileAtomic writes data to a temporary sibling of target, syncs it
// and renames it into place.
func WriteFileAtomic(fsys afero.Fs, target string, data []byte) error {
	tmp, err := afero.TempFile(fsys, filepath.Dir(target), "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file for %s: %w", target, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = fsys.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := fsys.Chmod(tmpName, 0o644); err != nil && !errors.Is(err, os.ErrNotExist) {
		cleanup()
		return fmt.Errorf("failed to chmod %s: %w", tmpName, err)
	}
	if err := fsys.Rename(tmpName, target); err != nil {
		cleanup()
		return fmt.Errorf("failed to rename %s to %s: %w", tmpName, target, err)
	}
	return nil
}
