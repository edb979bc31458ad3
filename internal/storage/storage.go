// Package storage persists migration artifacts and snapshots as named blobs.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Read when no blob has the requested name.
var ErrNotFound = errors.New("blob not found")

// Blob is a flat namespace of immutable byte blobs addressed by
// slash-separated names.
type Blob interface {
	// List returns the names under prefix in lexicographic order.
	List(ctx context.Context, prefix string) ([]string, error)
	Read(ctx context.Context, name string) ([]byte, error)
	// Write stores data under name, replacing any previous content.
	Write(ctx context.Context, name string, data []byte) error
	// Location describes where name lives, for messages and reports.
	Location(name string) string
}
