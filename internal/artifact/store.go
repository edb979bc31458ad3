package artifact

import (
	"bytes"
	"chschema/internal/storage"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Store keeps migration files in a blob store, one object per migration.
type Store struct {
	blob storage.Blob
}

func NewStore(blob storage.Blob) *Store {
	return &Store{blob: blob}
}

// List returns migration names in lexicographic, and therefore
// chronological, order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	names, err := s.blob.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		if strings.HasSuffix(name, Extension) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Read returns the raw bytes of a migration; storage.ErrNotFound is passed
// through for missing files.
func (s *Store) Read(ctx context.Context, name string) ([]byte, error) {
	data, err := s.blob.Read(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration %s: %w", name, err)
	}
	return data, nil
}

// Load reads and parses a migration.
func (s *Store) Load(ctx context.Context, name string) (*Migration, error) {
	data, err := s.Read(ctx, name)
	if err != nil {
		return nil, err
	}
	return Parse(name, data)
}

// Write stores a new artifact. Rewriting a name with identical content is a
// no-op; rewriting it with different content is refused.
func (s *Store) Write(ctx context.Context, a Artifact) (string, error) {
	existing, err := s.blob.Read(ctx, a.Name)
	switch {
	case err == nil:
		if bytes.Equal(existing, a.Content) {
			return s.blob.Location(a.Name), nil
		}
		return "", fmt.Errorf("migration %s already exists with different content", a.Name)
	case !errors.Is(err, storage.ErrNotFound):
		return "", fmt.Errorf("failed to check migration %s: %w", a.Name, err)
	}
	if err := s.blob.Write(ctx, a.Name, a.Content); err != nil {
		return "", fmt.Errorf("failed to write migration %s: %w", a.Name, err)
	}
	return s.blob.Location(a.Name), nil
}
