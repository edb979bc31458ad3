// Package snapshot persists canonical definition sets, one per planning run,
// so the next run can diff against them.
package snapshot

import (
	"chschema/internal/schema"
	"chschema/internal/storage"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"
)

const (
	FormatVersion = 1
	Dir           = "snapshots"
)

type Snapshot struct {
	Version     int                 `json:"version"`
	GeneratedAt time.Time           `json:"generatedAt"`
	Definitions []schema.Definition `json:"definitions"`
}

func New(defs []schema.Definition, generatedAt time.Time) *Snapshot {
	return &Snapshot{
		Version:     FormatVersion,
		GeneratedAt: generatedAt.UTC(),
		Definitions: defs,
	}
}

func Marshal(snap *Snapshot) ([]byte, error) {
	defs := snap.Definitions
	if defs == nil {
		defs = []schema.Definition{}
	}
	out := *snap
	out.Definitions = defs
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return append(b, '\n'), nil
}

// Unmarshal decodes a snapshot and re-canonicalizes its definitions, so
// hand-edited files load as if the planner had produced them.
func Unmarshal(data []byte, opts schema.CanonicalOptions) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	if snap.Version < 1 || snap.Version > FormatVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d (this build reads up to %d)", snap.Version, FormatVersion)
	}
	defs, err := schema.Canonicalize(snap.Definitions, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize snapshot definitions: %w", err)
	}
	snap.Definitions = defs
	return &snap, nil
}

// Store keeps snapshots as snapshots/<migration name>.json next to the
// migration that produced them.
type Store struct {
	blob storage.Blob
	opts schema.CanonicalOptions
}

func NewStore(blob storage.Blob, opts schema.CanonicalOptions) *Store {
	return &Store{blob: blob, opts: opts}
}

// NameFor returns the snapshot blob name that belongs to a migration.
func NameFor(migration string) string {
	return path.Join(Dir, strings.TrimSuffix(migration, ".sql")+".json")
}

func (s *Store) Save(ctx context.Context, migration string, snap *Snapshot) (string, error) {
	data, err := Marshal(snap)
	if err != nil {
		return "", err
	}
	name := NameFor(migration)
	if err := s.blob.Write(ctx, name, data); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	return name, nil
}

func (s *Store) Load(ctx context.Context, name string) (*Snapshot, error) {
	data, err := s.blob.Read(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	snap, err := Unmarshal(data, s.opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.blob.Location(name), err)
	}
	return snap, nil
}

// Latest returns the snapshot with the greatest name, or nil when no
// planning run has happened yet.
func (s *Store) Latest(ctx context.Context) (*Snapshot, string, error) {
	names, err := s.blob.List(ctx, Dir+"/")
	if err != nil {
		return nil, "", fmt.Errorf("failed to list snapshots: %w", err)
	}
	var latest string
	for _, name := range names {
		if strings.HasSuffix(name, ".json") && name > latest {
			latest = name
		}
	}
	if latest == "" {
		return nil, "", nil
	}
	snap, err := s.Load(ctx, latest)
	if err != nil {
		return nil, "", err
	}
	return snap, latest, nil
}
