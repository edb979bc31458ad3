// Package migrate applies migration artifacts in order, gated by the
// destructive-operation policy and recorded in the journal.
package migrate

import (
	"chschema/internal/artifact"
	"chschema/internal/database"
	"chschema/internal/errdefs"
	"chschema/internal/journal"
	"chschema/internal/plan"
	"chschema/internal/telemetry"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type State string

const (
	StateApplied State = "applied"
	StatePending State = "pending"
	StateDrifted State = "drifted"
	StateMissing State = "missing"
)

// MigrationStatus is one row of the status report.
type MigrationStatus struct {
	Name             string     `json:"name"`
	State            State      `json:"state"`
	Checksum         string     `json:"checksum,omitempty"`
	RecordedChecksum string     `json:"recordedChecksum,omitempty"`
	AppliedAt        *time.Time `json:"appliedAt,omitempty"`
}

// PendingMigration describes a migration that has not been applied yet.
type PendingMigration struct {
	Name        string                     `json:"name"`
	Checksum    string                     `json:"checksum"`
	Operations  int                        `json:"operations"`
	Risk        plan.RiskSummary           `json:"risk"`
	Destructive []errdefs.BlockedOperation `json:"destructive,omitempty"`
}

type Options struct {
	Artifacts   *artifact.Store
	Journal     journal.Journal
	Executor    database.Executor
	ToolVersion string
	// Now stamps journal entries; defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
	Tracer trace.Tracer
}

type ExecuteOptions struct {
	AllowDestructive bool
}

// Result lists the migrations applied by one Execute call.
type Result struct {
	Applied []string `json:"applied"`
}

type Controller struct {
	artifacts   *artifact.Store
	journal     journal.Journal
	executor    database.Executor
	toolVersion string
	now         func() time.Time
	logger      *slog.Logger
	tracer      trace.Tracer
}

func NewController(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Tracer == nil {
		opts.Tracer = telemetry.Tracer()
	}
	return &Controller{
		artifacts:   opts.Artifacts,
		journal:     opts.Journal,
		executor:    opts.Executor,
		toolVersion: opts.ToolVersion,
		now:         opts.Now,
		logger:      opts.Logger,
		tracer:      opts.Tracer,
	}
}

// inventory is the joined view of the artifact store and the journal.
type inventory struct {
	names    []string
	entries  map[string]journal.Entry
	contents map[string][]byte
	missing  []string
	drifts   []errdefs.Drift
	pending  []string
}

func (c *Controller) inventory(ctx context.Context) (*inventory, error) {
	entries, err := c.journal.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	names, err := c.artifacts.List(ctx)
	if err != nil {
		return nil, err
	}

	inv := &inventory{
		names:    names,
		entries:  make(map[string]journal.Entry, len(entries)),
		contents: make(map[string][]byte, len(names)),
	}
	for _, e := range entries {
		inv.entries[e.Name] = e
	}
	present := make(map[string]bool, len(names))
	for _, name := range names {
		present[name] = true
		content, err := c.artifacts.Read(ctx, name)
		if err != nil {
			return nil, err
		}
		inv.contents[name] = content

		entry, applied := inv.entries[name]
		if !applied {
			inv.pending = append(inv.pending, name)
			continue
		}
		if sum := artifact.Checksum(content); sum != entry.Checksum {
			inv.drifts = append(inv.drifts, errdefs.Drift{Migration: name, Recorded: entry.Checksum, Actual: sum})
		}
	}
	for _, e := range entries {
		if !present[e.Name] {
			inv.missing = append(inv.missing, e.Name)
		}
	}
	return inv, nil
}

// Status classifies every artifact and journal entry.
func (c *Controller) Status(ctx context.Context) ([]MigrationStatus, error) {
	inv, err := c.inventory(ctx)
	if err != nil {
		return nil, err
	}
	drifted := make(map[string]errdefs.Drift, len(inv.drifts))
	for _, d := range inv.drifts {
		drifted[d.Migration] = d
	}

	var out []MigrationStatus
	for _, name := range inv.names {
		st := MigrationStatus{Name: name, State: StatePending, Checksum: artifact.Checksum(inv.contents[name])}
		if entry, ok := inv.entries[name]; ok {
			appliedAt := entry.AppliedAt
			st.AppliedAt = &appliedAt
			st.RecordedChecksum = entry.Checksum
			st.State = StateApplied
			if _, ok := drifted[name]; ok {
				st.State = StateDrifted
			}
		}
		out = append(out, st)
	}
	for _, name := range inv.missing {
		entry := inv.entries[name]
		appliedAt := entry.AppliedAt
		out = append(out, MigrationStatus{Name: name, State: StateMissing, RecordedChecksum: entry.Checksum, AppliedAt: &appliedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Pending lists unapplied migrations and their destructive operations
// without changing any state.
func (c *Controller) Pending(ctx context.Context) ([]PendingMigration, error) {
	inv, err := c.inventory(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]PendingMigration, 0, len(inv.pending))
	for _, name := range inv.pending {
		m, err := artifact.Parse(name, inv.contents[name])
		if err != nil {
			return nil, fmt.Errorf("failed to parse migration: %w", err)
		}
		out = append(out, PendingMigration{
			Name:        name,
			Checksum:    m.Checksum,
			Operations:  len(m.Blocks),
			Risk:        summarizeBlocks(m.Blocks),
			Destructive: blockedOperations(m),
		})
	}
	return out, nil
}

// Execute applies pending migrations in name order. It stops at the first
// migration with danger operations unless opts.AllowDestructive is set,
// and at the first failing statement. Every fully applied migration is
// journaled before the next one starts, so a later run resumes where this
// one stopped. Cancellation of ctx is observed between migrations only.
func (c *Controller) Execute(ctx context.Context, opts ExecuteOptions) (res *Result, err error) {
	ctx, span := telemetry.Start(ctx, c.tracer, "migrate.execute",
		attribute.Bool("allow_destructive", opts.AllowDestructive))
	defer func() { telemetry.End(span, err) }()

	release, err := c.journal.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to lock journal: %w", err)
	}
	defer release()

	inv, err := c.inventory(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range inv.missing {
		c.logger.Warn("journal entry has no migration file", "migration", name)
	}
	if len(inv.drifts) > 0 {
		return nil, &errdefs.ChecksumMismatchError{Drifts: inv.drifts}
	}

	res = &Result{Applied: []string{}}
	if len(inv.pending) == 0 {
		c.logger.Info("schema is up to date", "applied", len(inv.entries))
		return res, nil
	}

	// statements run to completion once started
	runCtx := context.WithoutCancel(ctx)

	for _, name := range inv.pending {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("stopped before %s: %w", name, err)
		}
		if err := c.apply(runCtx, name, inv.contents[name], opts, res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (c *Controller) apply(ctx context.Context, name string, content []byte, opts ExecuteOptions, res *Result) (err error) {
	ctx, span := telemetry.Start(ctx, c.tracer, "migrate.apply", attribute.String("migration", name))
	defer func() { telemetry.End(span, err) }()

	m, err := artifact.Parse(name, content)
	if err != nil {
		return fmt.Errorf("failed to parse migration: %w", err)
	}
	if blocked := blockedOperations(m); len(blocked) > 0 && !opts.AllowDestructive {
		c.logger.Warn("destructive migration blocked", "migration", name, "operations", len(blocked))
		return &errdefs.DestructiveBlockedError{
			Migration:  name,
			Operations: blocked,
			Applied:    append([]string(nil), res.Applied...),
		}
	}

	c.logger.Info("applying migration", "migration", name, "operations", len(m.Blocks))
	start := time.Now()
	for _, stmt := range m.Statements() {
		c.logger.Debug("executing statement", "migration", name, "statement", stmt)
		if err := c.executor.Execute(ctx, stmt); err != nil {
			return &errdefs.ExecutionError{
				Migration: name,
				Statement: stmt,
				Applied:   append([]string(nil), res.Applied...),
				Err:       err,
			}
		}
	}

	entry := journal.Entry{
		Name:        name,
		AppliedAt:   c.now().UTC(),
		Checksum:    artifact.Checksum(content),
		ToolVersion: c.toolVersion,
	}
	if err := c.journal.Append(ctx, entry); err != nil {
		return fmt.Errorf("migration %s was applied but could not be recorded: %w", name, err)
	}
	res.Applied = append(res.Applied, name)
	c.logger.Info("migration applied", "migration", name, "duration", time.Since(start))
	return nil
}

func blockedOperations(m *artifact.Migration) []errdefs.BlockedOperation {
	var out []errdefs.BlockedOperation
	for _, b := range m.DangerBlocks() {
		why := plan.Explain(b.Type)
		out = append(out, errdefs.BlockedOperation{
			Migration:      m.Name,
			Type:           string(b.Type),
			Key:            b.Key,
			Risk:           string(b.Risk),
			Reason:         why.Reason,
			Impact:         why.Impact,
			Recommendation: why.Recommendation,
		})
	}
	return out
}

func summarizeBlocks(blocks []artifact.Block) plan.RiskSummary {
	var s plan.RiskSummary
	for _, b := range blocks {
		switch b.Risk {
		case plan.Safe:
			s.Safe++
		case plan.Caution:
			s.Caution++
		default:
			s.Danger++
		}
	}
	return s
}
