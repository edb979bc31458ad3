// Package generate runs one planning pass: load declarations, diff them
// against the latest snapshot and write the migration plus a new snapshot.
package generate

import (
	"chschema/internal/artifact"
	"chschema/internal/plan"
	"chschema/internal/render"
	"chschema/internal/schema"
	"chschema/internal/snapshot"
	"chschema/internal/source"
	"chschema/internal/telemetry"
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Options struct {
	Source      source.Source
	Artifacts   *artifact.Store
	Snapshots   *snapshot.Store
	Canonical   schema.CanonicalOptions
	Planner     *plan.Planner
	Pipeline    plan.Pipeline
	Renderer    *render.Renderer
	ToolVersion string
	Now         func() time.Time
	Logger      *slog.Logger
	Tracer      trace.Tracer
}

// Request holds the per-run inputs.
type Request struct {
	// Name becomes the migration slug.
	Name    string
	Renames plan.RenameHints
	// DryRun plans and renders without writing anything.
	DryRun bool
}

type Result struct {
	Plan     *plan.Plan
	Rendered []render.Rendered
	// Previous is the snapshot the plan was diffed against; empty on the
	// first run.
	Previous string
	// Migration and Snapshot are empty when nothing was written.
	Migration string
	Location  string
	Snapshot  string
}

type Generator struct {
	opts Options
}

func New(opts Options) *Generator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Planner == nil {
		opts.Planner = plan.NewPlanner(plan.Options{Logger: opts.Logger})
	}
	if opts.Renderer == nil {
		opts.Renderer = render.New(render.Options{})
	}
	return &Generator{opts: opts}
}

// Canonical loads and canonicalizes the declarations of the source.
func (g *Generator) Canonical(ctx context.Context) ([]schema.Definition, error) {
	raw, err := g.opts.Source.Definitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load definitions from %s: %w", g.opts.Source.Name(), err)
	}
	return schema.Canonicalize(raw, g.opts.Canonical)
}

// Run plans the difference between the latest snapshot and the current
// declarations. Validation and planning errors are returned before anything
// is written. An empty plan writes nothing.
func (g *Generator) Run(ctx context.Context, req Request) (res *Result, err error) {
	ctx, span := telemetry.Start(ctx, g.opts.Tracer, "generate",
		attribute.String("source", g.opts.Source.Name()),
		attribute.Bool("dry_run", req.DryRun))
	defer func() { telemetry.End(span, err) }()

	next, err := g.Canonical(ctx)
	if err != nil {
		return nil, err
	}

	prev, prevName, err := g.opts.Snapshots.Latest(ctx)
	if err != nil {
		return nil, err
	}
	var previous []schema.Definition
	if prev != nil {
		previous = prev.Definitions
	}

	full, err := g.opts.Planner.Plan(previous, next, req.Renames)
	if err != nil {
		return nil, err
	}
	p, err := g.opts.Pipeline.Run(full)
	if err != nil {
		return nil, err
	}
	rendered, err := g.opts.Renderer.RenderPlan(p)
	if err != nil {
		return nil, err
	}

	res = &Result{Plan: p, Rendered: rendered, Previous: prevName}
	span.SetAttributes(attribute.Int("operations", len(p.Operations)))
	if p.Empty() {
		g.opts.Logger.Info("no schema changes", "definitions", len(next))
		return res, nil
	}
	if req.DryRun {
		return res, nil
	}

	now := g.opts.Now().UTC()
	a, err := artifact.Build(p, rendered, artifact.Meta{
		Slug:        req.Name,
		GeneratedAt: now,
		ToolVersion: g.opts.ToolVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build migration: %w", err)
	}
	// the migration goes first: a snapshot without its migration would
	// hide the change from every later run
	location, err := g.opts.Artifacts.Write(ctx, a)
	if err != nil {
		return nil, err
	}
	// operations the pipeline removed stay out of the snapshot so the next
	// run plans them again
	state := plan.Retained(previous, next, full, p)
	snapName, err := g.opts.Snapshots.Save(ctx, a.Name, snapshot.New(state, now))
	if err != nil {
		return nil, fmt.Errorf("migration %s was written but its snapshot was not: %w", a.Name, err)
	}

	res.Migration = a.Name
	res.Location = location
	res.Snapshot = snapName
	g.opts.Logger.Info("migration written",
		"migration", a.Name,
		"operations", len(p.Operations),
		"risk", p.RiskSummary.String())
	return res, nil
}
