package cmd

import (
	"chschema/internal/artifact"
	"chschema/internal/database"
	"chschema/internal/generate"
	"chschema/internal/journal"
	"chschema/internal/migrate"
	"chschema/internal/plan"
	"chschema/internal/render"
	"chschema/internal/schema"
	"chschema/internal/snapshot"
	"chschema/internal/source"
	"chschema/internal/storage"
	"chschema/internal/telemetry"
	"context"
	"fmt"

	"github.com/spf13/afero"
)

func canonicalOptions() schema.CanonicalOptions {
	return schema.CanonicalOptions{SortColumns: cfg.Canonical.SortColumns}
}

// openBlob returns the store holding migrations and snapshots.
func openBlob(ctx context.Context) (storage.Blob, error) {
	switch cfg.Storage.Backend {
	case "s3":
		s3cfg := cfg.Storage.S3
		store, err := storage.OpenS3Store(ctx, storage.S3Options{
			Bucket:   s3cfg.Bucket,
			Prefix:   s3cfg.Prefix,
			Region:   s3cfg.Region,
			Endpoint: s3cfg.Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open s3 storage: %w", err)
		}
		return store, nil
	default:
		return storage.NewFSStore(afero.NewOsFs(), cfg.Migrations.Dir), nil
	}
}

func schemaSource() source.Source {
	return source.NewYAMLSource(afero.NewOsFs(), cfg.Schema.Paths...)
}

func buildPipeline() (plan.Pipeline, error) {
	var pl plan.Pipeline
	if len(cfg.Plan.Exclude) > 0 {
		pl = append(pl, plan.Exclude(cfg.Plan.Exclude))
	}
	if cfg.Plan.MaxRisk != "" {
		level, err := plan.ParseRiskLevel(cfg.Plan.MaxRisk)
		if err != nil {
			return nil, err
		}
		pl = append(pl, plan.MaxRisk(level))
	}
	return pl, nil
}

func newGenerator(ctx context.Context) (*generate.Generator, error) {
	blob, err := openBlob(ctx)
	if err != nil {
		return nil, err
	}
	pipeline, err := buildPipeline()
	if err != nil {
		return nil, err
	}
	return generate.New(generate.Options{
		Source:    schemaSource(),
		Artifacts: artifact.NewStore(blob),
		Snapshots: snapshot.NewStore(blob, canonicalOptions()),
		Canonical: canonicalOptions(),
		Planner: plan.NewPlanner(plan.Options{
			Policy: plan.RiskPolicy{ResetSettingIsDanger: cfg.Risk.ResetSettingIsDanger},
			Logger: logger,
		}),
		Pipeline:    pipeline,
		Renderer:    render.New(render.Options{Cluster: cfg.Render.Cluster}),
		ToolVersion: Version,
		Logger:      logger,
		Tracer:      telemetry.Tracer(),
	}), nil
}

func openJournal(ctx context.Context) (journal.Journal, error) {
	j := cfg.Journal
	return journal.Open(ctx, journal.Options{
		Backend:  j.Backend,
		Path:     j.Path,
		URL:      j.URL,
		Table:    j.Table,
		LockPath: j.LockPath,
		Fs:       afero.NewOsFs(),
	})
}

// controller bundles a migration controller with the resources it owns.
type controller struct {
	*migrate.Controller
	journal  journal.Journal
	executor *database.ClickHouseExecutor
}

func (c *controller) Close() {
	if c.executor != nil {
		if err := c.executor.Close(); err != nil {
			logger.Warn("failed to close ClickHouse connection", "error", err)
		}
	}
	if err := c.journal.Close(); err != nil {
		logger.Warn("failed to close journal", "error", err)
	}
}

// newController opens the artifact store and journal. The ClickHouse
// connection is only opened when connect is set.
func newController(ctx context.Context, connect bool) (*controller, error) {
	blob, err := openBlob(ctx)
	if err != nil {
		return nil, err
	}
	j, err := openJournal(ctx)
	if err != nil {
		return nil, err
	}
	c := &controller{journal: j}

	opts := migrate.Options{
		Artifacts:   artifact.NewStore(blob),
		Journal:     j,
		ToolVersion: Version,
		Logger:      logger,
		Tracer:      telemetry.Tracer(),
	}
	if connect {
		if cfg.ClickHouse.DSN == "" {
			c.Close()
			return nil, fmt.Errorf("clickhouse.dsn is required to execute migrations (set --dsn or CHSCHEMA_CLICKHOUSE_DSN)")
		}
		exec, err := database.OpenClickHouse(ctx, database.ClickHouseOptions{
			DSN:         cfg.ClickHouse.DSN,
			Settings:    cfg.ClickHouse.ClickHouseSettings(),
			Retries:     cfg.ClickHouse.Retries,
			DialTimeout: cfg.ClickHouse.DialTimeout,
			Logger:      logger,
		})
		if err != nil {
			c.Close()
			return nil, err
		}
		c.executor = exec
		opts.Executor = exec
	}
	c.Controller = migrate.NewController(opts)
	return c, nil
}
