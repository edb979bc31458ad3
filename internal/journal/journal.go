// Package journal records which migrations have been applied. Entries are
// only ever appended.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const FormatVersion = 1

// LockKey names the journal lock for lockers that are keyed.
const LockKey = "chschema_journal"

// Entry is one applied migration.
type Entry struct {
	Name        string    `json:"name"`
	AppliedAt   time.Time `json:"appliedAt"`
	Checksum    string    `json:"checksum"`
	ToolVersion string    `json:"toolVersion"`
}

// ErrDuplicate is returned when appending a name that is already recorded.
var ErrDuplicate = errors.New("migration already recorded in journal")

type Journal interface {
	// Entries returns every entry ordered by name.
	Entries(ctx context.Context) ([]Entry, error)
	Append(ctx context.Context, e Entry) error
	// Lock takes the single-writer lock. The returned function releases it.
	Lock(ctx context.Context) (release func(), err error)
	Close() error
}

func validateEntry(e Entry) error {
	if e.Name == "" {
		return fmt.Errorf("journal entry has no name")
	}
	if e.Checksum == "" {
		return fmt.Errorf("journal entry %s has no checksum", e.Name)
	}
	return nil
}

func duplicate(name string) error {
	return fmt.Errorf("%s: %w", name, ErrDuplicate)
}
