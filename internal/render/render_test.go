package render

import (
	"chschema/internal/plan"
	"chschema/internal/schema"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableID(db, name string) schema.Identity {
	return schema.Identity{Kind: schema.KindTable, Database: db, Name: name}
}

func TestRenderCreateTable(t *testing.T) {
	def := schema.Definition{
		Kind: schema.KindTable, Database: "app", Name: "events",
		Columns: []schema.Column{
			{Name: "id", Type: "UInt64"},
			{Name: "ts", Type: "DateTime", Codec: "Delta, ZSTD(3)"},
			{Name: "note", Type: "String", Nullable: true, DefaultKind: "DEFAULT", Default: "'n/a'", Comment: "free 'text'"},
		},
		Engine:      "MergeTree()",
		PartitionBy: "toYYYYMM(ts)",
		PrimaryKey:  []string{"id"},
		OrderBy:     []string{"id", "ts"},
		TTL:         "ts + INTERVAL 30 DAY",
		Settings:    map[string]string{"storage_policy": "hot", "merge_with_ttl_timeout": "3600"},
		Indexes:     []schema.Index{{Name: "idx_note", Expression: "note", Type: "bloom_filter(0.01)", Granularity: 4}},
		Comment:     "raw events",
	}
	op := plan.Operation{Type: plan.CreateTable, Key: "table:app.events", Risk: plan.Safe, Object: def.Identity(), Definition: &def}

	out, err := New(Options{}).Render(op)
	require.NoError(t, err)

	assert.Equal(t, "-- operation: create_table key=table:app.events risk=safe", out.Comment)
	require.Len(t, out.Statements, 1)
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS `app`.`events`\n"+
		"(\n"+
		"    `id` UInt64,\n"+
		"    `ts` DateTime CODEC(Delta, ZSTD(3)),\n"+
		"    `note` Nullable(String) DEFAULT 'n/a' COMMENT 'free \\'text\\'',\n"+
		"    INDEX `idx_note` note TYPE bloom_filter(0.01) GRANULARITY 4\n"+
		")\n"+
		"ENGINE = MergeTree()\n"+
		"PARTITION BY toYYYYMM(ts)\n"+
		"PRIMARY KEY id\n"+
		"ORDER BY (id, ts)\n"+
		"TTL ts + INTERVAL 30 DAY\n"+
		"SETTINGS merge_with_ttl_timeout = 3600, storage_policy = 'hot'\n"+
		"COMMENT 'raw events'", out.Statements[0])
}

func TestRenderOnCluster(t *testing.T) {
	r := New(Options{Cluster: "main"})

	out, err := r.Render(plan.Operation{Type: plan.CreateDatabase, Key: "database:app", Risk: plan.Safe, Object: schema.Identity{Database: "app", Name: "app"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"CREATE DATABASE IF NOT EXISTS `app` ON CLUSTER `main`"}, out.Statements)

	col := schema.Column{Name: "b", Type: "String"}
	out, err = r.Render(plan.Operation{Type: plan.DropColumn, Key: "table:app.t:column:b", Risk: plan.Danger, Object: tableID("app", "t"), Column: &col})
	require.NoError(t, err)
	assert.Equal(t, []string{"ALTER TABLE `app`.`t` ON CLUSTER `main` DROP COLUMN IF EXISTS `b`"}, out.Statements)
}

func TestRenderAddColumnPosition(t *testing.T) {
	r := New(Options{})
	col := schema.Column{Name: "v", Type: "UInt8", DefaultKind: "DEFAULT", Default: "0"}

	out, err := r.Render(plan.Operation{Type: plan.AddColumn, Object: tableID("a", "t"), Column: &col, After: "id"})
	require.NoError(t, err)
	assert.Equal(t, "ALTER TABLE `a`.`t` ADD COLUMN IF NOT EXISTS `v` UInt8 DEFAULT 0 AFTER `id`", out.Statements[0])

	out, err = r.Render(plan.Operation{Type: plan.AddColumn, Object: tableID("a", "t"), Column: &col})
	require.NoError(t, err)
	assert.Equal(t, "ALTER TABLE `a`.`t` ADD COLUMN IF NOT EXISTS `v` UInt8 DEFAULT 0 FIRST", out.Statements[0])
}

func TestRenderAlterations(t *testing.T) {
	r := New(Options{})
	id := tableID("a", "t")
	idx := schema.Index{Name: "i", Expression: "v", Type: "minmax", Granularity: 1}
	col := schema.Column{Name: "new", Type: "String", Comment: "c"}

	tests := []struct {
		op   plan.Operation
		want []string
	}{
		{plan.Operation{Type: plan.RenameColumn, Object: id, From: "old", Column: &col}, []string{"ALTER TABLE `a`.`t` RENAME COLUMN `old` TO `new`"}},
		{plan.Operation{Type: plan.ModifyColumn, Object: id, Column: &col}, []string{"ALTER TABLE `a`.`t` MODIFY COLUMN `new` String COMMENT 'c'"}},
		{plan.Operation{Type: plan.CommentColumn, Object: id, Column: &col}, []string{"ALTER TABLE `a`.`t` COMMENT COLUMN `new` 'c'"}},
		{plan.Operation{Type: plan.ModifyTTL, Object: id, Expr: "ts + INTERVAL 1 DAY"}, []string{"ALTER TABLE `a`.`t` MODIFY TTL ts + INTERVAL 1 DAY"}},
		{plan.Operation{Type: plan.RemoveTTL, Object: id}, []string{"ALTER TABLE `a`.`t` REMOVE TTL"}},
		{plan.Operation{Type: plan.AddSetting, Object: id, Setting: "s", Value: "1"}, []string{"ALTER TABLE `a`.`t` MODIFY SETTING s = 1"}},
		{plan.Operation{Type: plan.ResetSetting, Object: id, Setting: "s"}, []string{"ALTER TABLE `a`.`t` RESET SETTING s"}},
		{plan.Operation{Type: plan.AddIndex, Object: id, Index: &idx}, []string{"ALTER TABLE `a`.`t` ADD INDEX IF NOT EXISTS `i` v TYPE minmax GRANULARITY 1"}},
		{plan.Operation{Type: plan.ModifyIndex, Object: id, Index: &idx}, []string{
			"ALTER TABLE `a`.`t` DROP INDEX IF EXISTS `i`",
			"ALTER TABLE `a`.`t` ADD INDEX `i` v TYPE minmax GRANULARITY 1",
		}},
		{plan.Operation{Type: plan.MaterializeIndex, Object: id, Index: &idx}, []string{"ALTER TABLE `a`.`t` MATERIALIZE INDEX `i`"}},
		{plan.Operation{Type: plan.ModifyOrderBy, Object: id, Expr: "(id, v)"}, []string{"ALTER TABLE `a`.`t` MODIFY ORDER BY (id, v)"}},
		{plan.Operation{Type: plan.ModifyComment, Object: id, Expr: "it's"}, []string{"ALTER TABLE `a`.`t` MODIFY COMMENT 'it\\'s'"}},
		{plan.Operation{Type: plan.RenameTable, Object: id, From: "a.old"}, []string{"RENAME TABLE `a`.`old` TO `a`.`t`"}},
		{plan.Operation{Type: plan.DropTable, Object: id}, []string{"DROP TABLE IF EXISTS `a`.`t` SYNC"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.op.Type), func(t *testing.T) {
			out, err := r.Render(tt.op)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Statements)
		})
	}
}

func TestRenderViews(t *testing.T) {
	r := New(Options{})
	view := schema.Definition{Kind: schema.KindView, Database: "a", Name: "v", Query: "SELECT 1"}
	out, err := r.Render(plan.Operation{Type: plan.ReplaceView, Object: view.Identity(), Definition: &view})
	require.NoError(t, err)
	assert.Equal(t, []string{"CREATE OR REPLACE VIEW `a`.`v`\nAS SELECT 1"}, out.Statements)

	mv := schema.Definition{Kind: schema.KindMaterializedView, Database: "a", Name: "m", Query: "SELECT id FROM a.src", To: "a.dst"}
	out, err = r.Render(plan.Operation{Type: plan.RecreateMaterializedView, Object: mv.Identity(), Definition: &mv})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"DROP VIEW IF EXISTS `a`.`m` SYNC",
		"CREATE MATERIALIZED VIEW IF NOT EXISTS `a`.`m` TO `a`.`dst`\nAS SELECT id FROM a.src",
	}, out.Statements)

	inner := schema.Definition{
		Kind: schema.KindMaterializedView, Database: "a", Name: "m2", Query: "SELECT id FROM a.src",
		Engine: "MergeTree()", OrderBy: []string{"id"}, Populate: true,
	}
	out, err = r.Render(plan.Operation{Type: plan.CreateMaterializedView, Object: inner.Identity(), Definition: &inner})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"CREATE MATERIALIZED VIEW IF NOT EXISTS `a`.`m2`\nENGINE = MergeTree()\nORDER BY id\nPOPULATE\nAS SELECT id FROM a.src",
	}, out.Statements)
}

func TestRenderErrors(t *testing.T) {
	r := New(Options{})
	_, err := r.Render(plan.Operation{Type: plan.CreateTable, Key: "table:a.t"})
	assert.Error(t, err)
	_, err = r.Render(plan.Operation{Type: plan.OpType("truncate"), Key: "table:a.t"})
	assert.Error(t, err)
}

func TestQuoting(t *testing.T) {
	assert.Equal(t, "`we\\`ird`", QuoteIdent("we`ird"))
	assert.Equal(t, `'a\\b\'c'`, QuoteString(`a\b'c`))
	assert.Equal(t, `'one;\ntwo\r\tthree'`, QuoteString("one;\ntwo\r\tthree"))
	assert.Equal(t, "`a\\nb`", QuoteIdent("a\nb"))
}

func TestRenderPlanIsDeterministic(t *testing.T) {
	def := schema.Definition{
		Kind: schema.KindTable, Database: "a", Name: "t",
		Columns:  []schema.Column{{Name: "id", Type: "UInt64"}},
		Engine:   "MergeTree()",
		OrderBy:  []string{"id"},
		Settings: map[string]string{"z": "1", "a": "2", "m": "3", "b": "4"},
	}
	p := &plan.Plan{Operations: []plan.Operation{{Type: plan.CreateTable, Key: "table:a.t", Risk: plan.Safe, Object: def.Identity(), Definition: &def}}}

	first, err := New(Options{}).RenderPlan(p)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := New(Options{}).RenderPlan(p)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Contains(t, first[0].Statements[0], "SETTINGS a = 2, b = 4, m = 3, z = 1")
}
