package artifact

import (
	"chschema/internal/plan"
	"chschema/internal/render"
	"chschema/internal/schema"
	"chschema/internal/storage"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var generatedAt = time.Date(2024, 3, 1, 12, 30, 5, 0, time.UTC)

func samplePlan() *plan.Plan {
	def := schema.Definition{
		Kind: schema.KindTable, Database: "app", Name: "users",
		Columns: []schema.Column{{Name: "id", Type: "UInt64"}, {Name: "email", Type: "String"}},
		Engine:  "MergeTree()",
		OrderBy: []string{"id"},
	}
	tid := def.Identity()
	old := schema.Column{Name: "legacy", Type: "String"}
	ops := []plan.Operation{
		{Type: plan.CreateDatabase, Key: "database:app", Risk: plan.Safe, Object: schema.Identity{Database: "app", Name: "app"}},
		{Type: plan.CreateTable, Key: "table:app.users", Risk: plan.Safe, Object: tid, Definition: &def},
		{Type: plan.DropColumn, Key: "table:app.users:column:legacy", Risk: plan.Danger, Object: tid, Column: &old},
	}
	return &plan.Plan{Operations: ops, RiskSummary: plan.Summarize(ops)}
}

func build(t *testing.T, p *plan.Plan) Artifact {
	t.Helper()
	rendered, err := render.New(render.Options{}).RenderPlan(p)
	require.NoError(t, err)
	a, err := Build(p, rendered, Meta{Slug: "Add Users!", GeneratedAt: generatedAt, ToolVersion: "v1.2.3"})
	require.NoError(t, err)
	return a
}

func TestBuildLayout(t *testing.T) {
	a := build(t, samplePlan())

	assert.Equal(t, "20240301123005_add_users.sql", a.Name)
	assert.Equal(t, Checksum(a.Content), a.Checksum)
	assert.Len(t, a.Checksum, 64)

	text := string(a.Content)
	assert.True(t, strings.HasPrefix(text, "-- chschema migration\n-- format: 1\n-- generated_at: 2024-03-01T12:30:05Z\n-- tool_version: v1.2.3\n-- operations: 3\n-- risk: safe=2 caution=0 danger=1\n\n"))
	assert.Contains(t, text, "-- operation: create_database key=database:app risk=safe\nCREATE DATABASE IF NOT EXISTS `app`;\n")
	assert.Contains(t, text, "-- operation: alter_table_drop_column key=table:app.users:column:legacy risk=danger\nALTER TABLE `app`.`users` DROP COLUMN IF EXISTS `legacy`;\n")
}

func TestBuildIsDeterministic(t *testing.T) {
	first := build(t, samplePlan())
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, build(t, samplePlan()))
	}
}

func TestBuildRejectsMismatchedRendering(t *testing.T) {
	p := samplePlan()
	rendered, err := render.New(render.Options{}).RenderPlan(p)
	require.NoError(t, err)

	_, err = Build(p, rendered[:1], Meta{GeneratedAt: generatedAt})
	assert.Error(t, err)

	rendered[0], rendered[1] = rendered[1], rendered[0]
	_, err = Build(p, rendered, Meta{GeneratedAt: generatedAt})
	assert.Error(t, err)
}

func TestParseRoundTrip(t *testing.T) {
	p := samplePlan()
	a := build(t, p)

	m, err := Parse(a.Name, a.Content)
	require.NoError(t, err)

	assert.Equal(t, a.Checksum, m.Checksum)
	assert.Equal(t, 1, m.Header.Format)
	assert.True(t, generatedAt.Equal(m.Header.GeneratedAt))
	assert.Equal(t, "v1.2.3", m.Header.ToolVersion)
	assert.Equal(t, plan.RiskSummary{Safe: 2, Danger: 1}, m.Header.Risk)

	require.Len(t, m.Blocks, 3)
	for i, op := range p.Operations {
		assert.Equal(t, op.Type, m.Blocks[i].Type)
		assert.Equal(t, op.Key, m.Blocks[i].Key)
		assert.Equal(t, op.Risk, m.Blocks[i].Risk)
	}
	assert.True(t, strings.HasPrefix(m.Blocks[1].Statements[0], "CREATE TABLE IF NOT EXISTS `app`.`users`\n("))
	assert.False(t, strings.HasSuffix(m.Blocks[1].Statements[0], ";"))

	danger := m.DangerBlocks()
	require.Len(t, danger, 1)
	assert.Equal(t, "table:app.users:column:legacy", danger[0].Key)
	assert.Len(t, m.Statements(), 3)
}

func TestParseMultipleStatementsPerBlock(t *testing.T) {
	idx := schema.Index{Name: "i", Expression: "v", Type: "minmax", Granularity: 1}
	ops := []plan.Operation{{Type: plan.ModifyIndex, Key: "table:a.t:index:i", Risk: plan.Caution, Object: schema.Identity{Kind: schema.KindTable, Database: "a", Name: "t"}, Index: &idx}}
	a := build(t, &plan.Plan{Operations: ops})

	m, err := Parse(a.Name, a.Content)
	require.NoError(t, err)
	require.Len(t, m.Blocks, 1)
	assert.Len(t, m.Blocks[0].Statements, 2)
}

func TestCommentsWithLineBreaksStayInOneStatement(t *testing.T) {
	def := schema.Definition{
		Kind: schema.KindTable, Database: "app", Name: "users",
		Columns: []schema.Column{{Name: "id", Type: "UInt64", Comment: "primary;\nkey"}},
		Engine:  "MergeTree()",
		OrderBy: []string{"id"},
		Comment: "holds users;\nsee wiki",
	}
	ops := []plan.Operation{
		{Type: plan.CreateTable, Key: "table:app.users", Risk: plan.Safe, Object: def.Identity(), Definition: &def},
		{Type: plan.ModifyComment, Key: "table:app.users:comment", Risk: plan.Safe, Object: def.Identity(), Expr: "a;\r\nb"},
	}
	a := build(t, &plan.Plan{Operations: ops})

	m, err := Parse(a.Name, a.Content)
	require.NoError(t, err)
	require.Len(t, m.Blocks, 2)
	require.Len(t, m.Blocks[0].Statements, 1)
	assert.Contains(t, m.Blocks[0].Statements[0], `COMMENT 'holds users;\nsee wiki'`)
	assert.Contains(t, m.Blocks[0].Statements[0], `COMMENT 'primary;\nkey'`)
	require.Len(t, m.Blocks[1].Statements, 1)
	assert.Contains(t, m.Blocks[1].Statements[0], `MODIFY COMMENT 'a;\r\nb'`)
}

func TestBuildRejectsStatementsThatWouldSplit(t *testing.T) {
	p := samplePlan()
	rendered, err := render.New(render.Options{}).RenderPlan(p)
	require.NoError(t, err)

	rendered[0].Statements = []string{"CREATE DATABASE IF NOT EXISTS `app`;\nSELECT 1"}
	_, err = Build(p, rendered, Meta{GeneratedAt: generatedAt})
	assert.ErrorContains(t, err, "database:app")

	rendered[0].Statements = []string{"-- CREATE DATABASE IF NOT EXISTS `app`"}
	_, err = Build(p, rendered, Meta{GeneratedAt: generatedAt})
	assert.Error(t, err)
}

func TestParseRejectsMalformedFiles(t *testing.T) {
	header := "-- chschema migration\n-- format: 1\n-- generated_at: 2024-03-01T12:30:05Z\n-- tool_version: dev\n-- operations: 1\n-- risk: safe=1 caution=0 danger=0\n\n"
	block := "-- operation: create_database key=database:app risk=safe\nCREATE DATABASE app;\n"

	_, err := Parse("ok.sql", []byte(header+block))
	require.NoError(t, err)

	tests := map[string]string{
		"no magic":             strings.TrimPrefix(header, "-- chschema migration\n") + block,
		"unknown comment":      header + "-- hello\n" + block,
		"malformed operation":  header + "-- operation: create_database database:app risk=safe\nSELECT 1;\n",
		"bad risk":             header + "-- operation: create_database key=database:app risk=meh\nSELECT 1;\n",
		"statement outside":    header + "SELECT 1;\n" + block,
		"unterminated":         header + "-- operation: create_database key=database:app risk=safe\nCREATE DATABASE app\n",
		"empty block":          header + "-- operation: create_database key=database:app risk=safe\n",
		"count mismatch":       header + block + "\n-- operation: create_database key=database:b risk=safe\nCREATE DATABASE b;\n",
		"unknown header":       strings.Replace(header, "-- tool_version: dev", "-- author: me", 1) + block,
		"future format":        strings.Replace(header, "-- format: 1", "-- format: 9", 1) + block,
		"missing risk summary": strings.Replace(header, "-- risk: safe=1 caution=0 danger=0\n", "", 1) + block,
		"empty":                "",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse("bad.sql", []byte(content))
			assert.Error(t, err)
		})
	}
}

func TestParseTreatsUnknownTypesAsDanger(t *testing.T) {
	content := "-- chschema migration\n-- format: 1\n-- generated_at: 2024-03-01T12:30:05Z\n-- tool_version: dev\n-- operations: 1\n-- risk: safe=1 caution=0 danger=0\n\n" +
		"-- operation: truncate_table key=table:a.t risk=safe\nTRUNCATE TABLE a.t;\n"
	m, err := Parse("x.sql", []byte(content))
	require.NoError(t, err)
	assert.Equal(t, plan.Danger, m.Blocks[0].Risk)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "add_users", Slug("Add Users!"))
	assert.Equal(t, "migration", Slug("  ***  "))
	assert.Equal(t, "v2_events", Slug("v2--events"))
	assert.Equal(t, "20240301123005_migration.sql", Name(generatedAt.In(time.FixedZone("x", 3600)), ""))
}

func TestStoreWriteListLoad(t *testing.T) {
	ctx := context.Background()
	fsys := afero.NewMemMapFs()
	blob := storage.NewFSStore(fsys, "/migrations")
	store := NewStore(blob)

	a := build(t, samplePlan())
	loc, err := store.Write(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "/migrations/"+a.Name, loc)

	// identical content is a no-op
	_, err = store.Write(ctx, a)
	require.NoError(t, err)

	changed := a
	changed.Content = append([]byte{}, a.Content...)
	changed.Content = append(changed.Content, '\n')
	_, err = store.Write(ctx, changed)
	assert.Error(t, err)

	require.NoError(t, afero.WriteFile(fsys, "/migrations/README.md", []byte("notes"), 0o644))
	require.NoError(t, blob.Write(ctx, "snapshots/x.json", []byte("{}")))
	early := a
	early.Name = "20230101000000_first.sql"
	_, err = store.Write(ctx, early)
	require.NoError(t, err)

	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"20230101000000_first.sql", a.Name}, names)

	m, err := store.Load(ctx, a.Name)
	require.NoError(t, err)
	assert.Equal(t, a.Checksum, m.Checksum)

	_, err = store.Read(ctx, "missing.sql")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
