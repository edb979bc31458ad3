// Package render turns planned operations into ClickHouse statements.
// Output depends only on the operation, never on map iteration order.
package render

import (
	"chschema/internal/plan"
	"chschema/internal/schema"
	"fmt"
	"sort"
	"strings"
)

const indent = "    "

type Options struct {
	// Cluster adds ON CLUSTER to every statement when set.
	Cluster string
}

type Renderer struct {
	cluster string
}

// Rendered is one operation's statements, without trailing semicolons,
// and its metadata comment line.
type Rendered struct {
	Comment    string
	Statements []string
}

func New(opts Options) *Renderer {
	return &Renderer{cluster: opts.Cluster}
}

// CommentLine encodes type, key and risk; it is the only channel later
// stages use to find out what a block does.
func CommentLine(op plan.Operation) string {
	return fmt.Sprintf("-- operation: %s key=%s risk=%s", op.Type, op.Key, op.Risk)
}

func (r *Renderer) RenderPlan(p *plan.Plan) ([]Rendered, error) {
	out := make([]Rendered, 0, len(p.Operations))
	for _, op := range p.Operations {
		rendered, err := r.Render(op)
		if err != nil {
			return nil, err
		}
		out = append(out, rendered)
	}
	return out, nil
}

func (r *Renderer) Render(op plan.Operation) (Rendered, error) {
	stmts, err := r.statements(op)
	if err != nil {
		return Rendered{}, fmt.Errorf("failed to render %s %s: %w", op.Type, op.Key, err)
	}
	return Rendered{Comment: CommentLine(op), Statements: stmts}, nil
}

func (r *Renderer) onCluster() string {
	if r.cluster == "" {
		return ""
	}
	return " ON CLUSTER " + QuoteIdent(r.cluster)
}

func (r *Renderer) alter(op plan.Operation, actions ...string) []string {
	prefix := "ALTER TABLE " + Qualified(op.Object.Database, op.Object.Name) + r.onCluster() + " "
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		out = append(out, prefix+a)
	}
	return out
}

func (r *Renderer) statements(op plan.Operation) ([]string, error) {
	target := Qualified(op.Object.Database, op.Object.Name)

	switch op.Type {
	case plan.CreateDatabase:
		return []string{"CREATE DATABASE IF NOT EXISTS " + QuoteIdent(op.Object.Database) + r.onCluster()}, nil

	case plan.CreateTable:
		def, err := requireDefinition(op)
		if err != nil {
			return nil, err
		}
		return []string{r.createTable(def)}, nil

	case plan.CreateView, plan.ReplaceView:
		def, err := requireDefinition(op)
		if err != nil {
			return nil, err
		}
		verb := "CREATE VIEW IF NOT EXISTS "
		if op.Type == plan.ReplaceView {
			verb = "CREATE OR REPLACE VIEW "
		}
		stmt := verb + target + r.onCluster() + "\nAS " + def.Query
		if def.Comment != "" {
			stmt += "\nCOMMENT " + QuoteString(def.Comment)
		}
		return []string{stmt}, nil

	case plan.CreateMaterializedView:
		def, err := requireDefinition(op)
		if err != nil {
			return nil, err
		}
		return []string{r.createMaterializedView(def)}, nil

	case plan.RecreateMaterializedView:
		def, err := requireDefinition(op)
		if err != nil {
			return nil, err
		}
		return []string{
			"DROP VIEW IF EXISTS " + target + r.onCluster() + " SYNC",
			r.createMaterializedView(def),
		}, nil

	case plan.RenameTable, plan.RenameView, plan.RenameMaterializedView:
		if op.From == "" {
			return nil, fmt.Errorf("rename has no origin")
		}
		return []string{"RENAME TABLE " + qualifiedRef(op.From) + " TO " + target + r.onCluster()}, nil

	case plan.AddColumn:
		if op.Column == nil {
			return nil, fmt.Errorf("missing column")
		}
		position := " FIRST"
		if op.After != "" {
			position = " AFTER " + QuoteIdent(op.After)
		}
		return r.alter(op, "ADD COLUMN IF NOT EXISTS "+columnDef(*op.Column)+position), nil

	case plan.ModifyColumn:
		if op.Column == nil {
			return nil, fmt.Errorf("missing column")
		}
		return r.alter(op, "MODIFY COLUMN "+columnDef(*op.Column)), nil

	case plan.CommentColumn:
		if op.Column == nil {
			return nil, fmt.Errorf("missing column")
		}
		return r.alter(op, "COMMENT COLUMN "+QuoteIdent(op.Column.Name)+" "+QuoteString(op.Column.Comment)), nil

	case plan.RenameColumn:
		if op.Column == nil || op.From == "" {
			return nil, fmt.Errorf("missing column rename")
		}
		return r.alter(op, "RENAME COLUMN "+QuoteIdent(op.From)+" TO "+QuoteIdent(op.Column.Name)), nil

	case plan.DropColumn:
		if op.Column == nil {
			return nil, fmt.Errorf("missing column")
		}
		return r.alter(op, "DROP COLUMN IF EXISTS "+QuoteIdent(op.Column.Name)), nil

	case plan.ModifyTTL:
		return r.alter(op, "MODIFY TTL "+op.Expr), nil

	case plan.RemoveTTL:
		return r.alter(op, "REMOVE TTL"), nil

	case plan.AddSetting, plan.ModifySetting:
		if op.Setting == "" {
			return nil, fmt.Errorf("missing setting name")
		}
		return r.alter(op, "MODIFY SETTING "+op.Setting+" = "+settingValue(op.Value)), nil

	case plan.ResetSetting:
		if op.Setting == "" {
			return nil, fmt.Errorf("missing setting name")
		}
		return r.alter(op, "RESET SETTING "+op.Setting), nil

	case plan.AddIndex:
		if op.Index == nil {
			return nil, fmt.Errorf("missing index")
		}
		return r.alter(op, "ADD INDEX IF NOT EXISTS "+indexDef(*op.Index)), nil

	case plan.ModifyIndex:
		if op.Index == nil {
			return nil, fmt.Errorf("missing index")
		}
		return r.alter(op,
			"DROP INDEX IF EXISTS "+QuoteIdent(op.Index.Name),
			"ADD INDEX "+indexDef(*op.Index),
		), nil

	case plan.DropIndex:
		if op.Index == nil {
			return nil, fmt.Errorf("missing index")
		}
		return r.alter(op, "DROP INDEX IF EXISTS "+QuoteIdent(op.Index.Name)), nil

	case plan.MaterializeIndex:
		if op.Index == nil {
			return nil, fmt.Errorf("missing index")
		}
		return r.alter(op, "MATERIALIZE INDEX "+QuoteIdent(op.Index.Name)), nil

	case plan.ModifyOrderBy:
		return r.alter(op, "MODIFY ORDER BY "+op.Expr), nil

	case plan.ModifyPartitionBy:
		return r.alter(op, "MODIFY PARTITION BY "+op.Expr), nil

	case plan.ModifyComment:
		return r.alter(op, "MODIFY COMMENT "+QuoteString(op.Expr)), nil

	case plan.AlterMaterializedViewQuery:
		return r.alter(op, "MODIFY QUERY "+op.Expr), nil

	case plan.DropTable:
		return []string{"DROP TABLE IF EXISTS " + target + r.onCluster() + " SYNC"}, nil

	case plan.DropView, plan.DropMaterializedView:
		return []string{"DROP VIEW IF EXISTS " + target + r.onCluster() + " SYNC"}, nil
	}
	return nil, fmt.Errorf("unknown operation type %q", op.Type)
}

func requireDefinition(op plan.Operation) (schema.Definition, error) {
	if op.Definition == nil {
		return schema.Definition{}, fmt.Errorf("missing definition")
	}
	return *op.Definition, nil
}

func (r *Renderer) createTable(def schema.Definition) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(Qualified(def.Database, def.Name))
	b.WriteString(r.onCluster())
	writeColumns(&b, def)
	writeStorage(&b, def)
	if def.Comment != "" {
		b.WriteString("\nCOMMENT ")
		b.WriteString(QuoteString(def.Comment))
	}
	return b.String()
}

func (r *Renderer) createMaterializedView(def schema.Definition) string {
	var b strings.Builder
	b.WriteString("CREATE MATERIALIZED VIEW IF NOT EXISTS ")
	b.WriteString(Qualified(def.Database, def.Name))
	b.WriteString(r.onCluster())
	if def.To != "" {
		b.WriteString(" TO ")
		b.WriteString(qualifiedRef(def.To))
	} else {
		writeColumns(&b, def)
		writeStorage(&b, def)
		if def.Populate {
			b.WriteString("\nPOPULATE")
		}
	}
	b.WriteString("\nAS ")
	b.WriteString(def.Query)
	if def.Comment != "" {
		b.WriteString("\nCOMMENT ")
		b.WriteString(QuoteString(def.Comment))
	}
	return b.String()
}

// writeColumns writes the parenthesized column and index list, if any.
func writeColumns(b *strings.Builder, def schema.Definition) {
	var lines []string
	for _, c := range def.Columns {
		lines = append(lines, indent+columnDef(c))
	}
	for _, idx := range def.Indexes {
		lines = append(lines, indent+"INDEX "+indexDef(idx))
	}
	if len(lines) == 0 {
		return
	}
	b.WriteString("\n(\n")
	b.WriteString(strings.Join(lines, ",\n"))
	b.WriteString("\n)")
}

// writeStorage writes the engine clauses in fixed order.
func writeStorage(b *strings.Builder, def schema.Definition) {
	if def.Engine == "" {
		return
	}
	b.WriteString("\nENGINE = ")
	b.WriteString(def.Engine)
	if def.PartitionBy != "" {
		b.WriteString("\nPARTITION BY ")
		b.WriteString(def.PartitionBy)
	}
	if len(def.PrimaryKey) > 0 {
		b.WriteString("\nPRIMARY KEY ")
		b.WriteString(keyExpr(def.PrimaryKey))
	}
	if len(def.OrderBy) > 0 {
		b.WriteString("\nORDER BY ")
		b.WriteString(keyExpr(def.OrderBy))
	}
	if def.TTL != "" {
		b.WriteString("\nTTL ")
		b.WriteString(def.TTL)
	}
	if len(def.Settings) > 0 {
		names := make([]string, 0, len(def.Settings))
		for k := range def.Settings {
			names = append(names, k)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, k := range names {
			parts = append(parts, k+" = "+settingValue(def.Settings[k]))
		}
		b.WriteString("\nSETTINGS ")
		b.WriteString(strings.Join(parts, ", "))
	}
}

func keyExpr(exprs []string) string {
	if len(exprs) == 1 {
		return exprs[0]
	}
	return "(" + strings.Join(exprs, ", ") + ")"
}

func columnDef(c schema.Column) string {
	var b strings.Builder
	b.WriteString(QuoteIdent(c.Name))
	b.WriteByte(' ')
	if c.Nullable {
		b.WriteString("Nullable(" + c.Type + ")")
	} else {
		b.WriteString(c.Type)
	}
	if c.DefaultKind != "" {
		b.WriteByte(' ')
		b.WriteString(c.DefaultKind)
		if c.Default != "" {
			b.WriteByte(' ')
			b.WriteString(c.Default)
		}
	}
	if c.Codec != "" {
		b.WriteString(" CODEC(" + c.Codec + ")")
	}
	if c.Comment != "" {
		b.WriteString(" COMMENT " + QuoteString(c.Comment))
	}
	return b.String()
}

func indexDef(idx schema.Index) string {
	granularity := idx.Granularity
	if granularity < 1 {
		granularity = 1
	}
	return fmt.Sprintf("%s %s TYPE %s GRANULARITY %d", QuoteIdent(idx.Name), idx.Expression, idx.Type, granularity)
}
