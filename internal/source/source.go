// Package source loads schema declarations from wherever an operator keeps
// them. The planner only sees the resulting definitions.
package source

import (
	"chschema/internal/schema"
	"context"
)

// Source provides raw schema declarations from an arbitrary backend.
type Source interface {
	// Definitions returns every declaration in a stable order. Later
	// declarations of the same identity override earlier ones.
	Definitions(ctx context.Context) ([]schema.Definition, error)

	// Name returns a human-readable identifier for this source.
	Name() string
}

// Static serves a fixed list of definitions.
type Static []schema.Definition

func (s Static) Definitions(ctx context.Context) ([]schema.Definition, error) {
	return append([]schema.Definition(nil), s...), nil
}

func (s Static) Name() string { return "static" }
