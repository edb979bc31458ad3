package generate

import (
	"chschema/internal/artifact"
	"chschema/internal/errdefs"
	"chschema/internal/plan"
	"chschema/internal/schema"
	"chschema/internal/snapshot"
	"chschema/internal/source"
	"chschema/internal/storage"
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func users(cols ...string) schema.Definition {
	def := schema.Definition{
		Kind: schema.KindTable, Database: "app", Name: "users",
		Engine: "MergeTree()", OrderBy: []string{"id"},
	}
	for _, c := range cols {
		def.Columns = append(def.Columns, schema.Column{Name: c, Type: "UInt64"})
	}
	return def
}

type harness struct {
	blob  *storage.FSStore
	store *artifact.Store
	clock time.Time
}

func newHarness() *harness {
	blob := storage.NewFSStore(afero.NewMemMapFs(), "/migrations")
	return &harness{blob: blob, store: artifact.NewStore(blob), clock: time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)}
}

func (h *harness) generator(defs ...schema.Definition) *Generator {
	return New(Options{
		Source:      source.Static(defs),
		Artifacts:   h.store,
		Snapshots:   snapshot.NewStore(h.blob, schema.CanonicalOptions{}),
		ToolVersion: "test",
		Now:         func() time.Time { return h.clock },
	})
}

func TestFirstRunCreatesEverything(t *testing.T) {
	h := newHarness()
	res, err := h.generator(users("id", "email")).Run(context.Background(), Request{Name: "init"})
	require.NoError(t, err)

	assert.Empty(t, res.Previous)
	assert.Equal(t, "20240201090000_init.sql", res.Migration)
	assert.Equal(t, "snapshots/20240201090000_init.json", res.Snapshot)

	var creates int
	for _, op := range res.Plan.Operations {
		if op.Type == plan.CreateTable {
			creates++
			assert.Equal(t, plan.Safe, op.Risk)
		}
	}
	assert.Equal(t, 1, creates)

	names, err := h.store.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{res.Migration}, names)
}

func TestUnchangedSchemaWritesNothing(t *testing.T) {
	h := newHarness()
	_, err := h.generator(users("id")).Run(context.Background(), Request{})
	require.NoError(t, err)

	h.clock = h.clock.Add(time.Hour)
	res, err := h.generator(users("id")).Run(context.Background(), Request{})
	require.NoError(t, err)
	assert.True(t, res.Plan.Empty())
	assert.Empty(t, res.Migration)
	assert.Equal(t, "snapshots/20240201090000_migration.json", res.Previous)

	names, err := h.store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, names, 1)
}

func TestDroppedColumnIsDanger(t *testing.T) {
	h := newHarness()
	_, err := h.generator(users("id", "b")).Run(context.Background(), Request{})
	require.NoError(t, err)

	h.clock = h.clock.Add(time.Minute)
	res, err := h.generator(users("id")).Run(context.Background(), Request{Name: "drop b"})
	require.NoError(t, err)
	require.Len(t, res.Plan.Operations, 1)
	assert.Equal(t, plan.DropColumn, res.Plan.Operations[0].Type)
	assert.Equal(t, "table:app.users:column:b", res.Plan.Operations[0].Key)

	m, err := h.store.Load(context.Background(), res.Migration)
	require.NoError(t, err)
	require.Len(t, m.DangerBlocks(), 1)
}

func TestDryRunWritesNothing(t *testing.T) {
	h := newHarness()
	res, err := h.generator(users("id")).Run(context.Background(), Request{DryRun: true})
	require.NoError(t, err)
	assert.False(t, res.Plan.Empty())
	assert.NotEmpty(t, res.Rendered)
	assert.Empty(t, res.Migration)

	names, err := h.blob.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestValidationFailsBeforeWriting(t *testing.T) {
	h := newHarness()
	bad := users("id")
	bad.OrderBy = []string{"missing"}
	_, err := h.generator(bad).Run(context.Background(), Request{})
	assert.Equal(t, errdefs.CodeValidation, errdefs.CodeOf(err))

	names, err := h.blob.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestPipelineFailureNamesStage(t *testing.T) {
	h := newHarness()
	g := h.generator(users("id", "b"))
	_, err := g.Run(context.Background(), Request{})
	require.NoError(t, err)

	h.clock = h.clock.Add(time.Minute)
	g = h.generator(users("id"))
	g.opts.Pipeline = plan.Pipeline{plan.MaxRisk(plan.Caution)}
	_, err = g.Run(context.Background(), Request{})
	var te *errdefs.TransformError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "max_risk", te.Stage)
}

func TestOutputIsByteIdenticalAcrossRuns(t *testing.T) {
	defs := []schema.Definition{users("id", "email"), {
		Kind: schema.KindView, Database: "app", Name: "v", Query: "SELECT id FROM app.users",
		DependsOn: []string{"app.users"},
	}}
	a, b := newHarness(), newHarness()

	ra, err := a.generator(defs...).Run(context.Background(), Request{Name: "x"})
	require.NoError(t, err)
	rb, err := b.generator(defs[1], defs[0]).Run(context.Background(), Request{Name: "x"})
	require.NoError(t, err)

	ca, err := a.store.Read(context.Background(), ra.Migration)
	require.NoError(t, err)
	cb, err := b.store.Read(context.Background(), rb.Migration)
	require.NoError(t, err)
	assert.Equal(t, string(ca), string(cb))
}

func TestExcludedOperationsArePlannedAgain(t *testing.T) {
	h := newHarness()
	orders := schema.Definition{
		Kind: schema.KindTable, Database: "app", Name: "orders",
		Engine: "MergeTree()", OrderBy: []string{"id"},
		Columns: []schema.Column{{Name: "id", Type: "UInt64"}},
	}
	_, err := h.generator(users("id")).Run(context.Background(), Request{Name: "init"})
	require.NoError(t, err)

	h.clock = h.clock.Add(time.Minute)
	g := h.generator(users("id", "email"), orders)
	g.opts.Pipeline = plan.Pipeline{plan.Exclude([]string{"table:app.orders"})}
	res, err := g.Run(context.Background(), Request{Name: "email"})
	require.NoError(t, err)
	require.Len(t, res.Plan.Operations, 1)
	assert.Equal(t, plan.AddColumn, res.Plan.Operations[0].Type)

	h.clock = h.clock.Add(time.Minute)
	res, err = h.generator(users("id", "email"), orders).Run(context.Background(), Request{Name: "orders"})
	require.NoError(t, err)
	require.Len(t, res.Plan.Operations, 1)
	assert.Equal(t, plan.CreateTable, res.Plan.Operations[0].Type)
	assert.Equal(t, "table:app.orders", res.Plan.Operations[0].Key)
}
