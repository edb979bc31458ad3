package plan

import (
	"chschema/internal/errdefs"
	"chschema/internal/schema"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

type Options struct {
	Policy RiskPolicy
	Logger *slog.Logger
}

// Planner diffs canonical definition sets. It holds no state between
// calls; identical inputs always produce identical plans.
type Planner struct {
	policy RiskPolicy
	logger *slog.Logger
}

func NewPlanner(opts Options) *Planner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{policy: opts.Policy, logger: logger}
}

func (p *Planner) op(t OpType, key string, id schema.Identity, fill func(*Operation)) Operation {
	op := Operation{Type: t, Key: key, Risk: Classify(t, p.policy), Object: id}
	if fill != nil {
		fill(&op)
	}
	return op
}

// Plan computes the operations that turn previous into next. Both inputs
// must be canonical.
func (p *Planner) Plan(previous, next []schema.Definition, hints RenameHints) (*Plan, error) {
	prevByID := indexDefinitions(previous)
	nextByID := indexDefinitions(next)

	removed := make(map[schema.Identity]schema.Definition)
	added := make(map[schema.Identity]schema.Definition)
	for id, def := range prevByID {
		if _, ok := nextByID[id]; !ok {
			removed[id] = def
		}
	}
	for id, def := range nextByID {
		if _, ok := prevByID[id]; !ok {
			added[id] = def
		}
	}

	renames, err := resolveObjectRenames(removed, added, hints.Objects)
	if err != nil {
		return nil, err
	}
	renamedFrom := make(map[schema.Identity]bool, len(renames))
	for _, from := range renames {
		renamedFrom[from] = true
	}

	var ops []Operation
	var suggestions []RenameSuggestion

	prevDatabases := make(map[string]bool)
	for _, def := range previous {
		prevDatabases[def.Database] = true
	}
	newDatabases := make(map[string]bool)
	for _, def := range next {
		if !prevDatabases[def.Database] && !newDatabases[def.Database] {
			newDatabases[def.Database] = true
			db := def.Database
			ops = append(ops, p.op(CreateDatabase, databaseKey(db), schema.Identity{Database: db, Name: db}, nil))
		}
	}

	for id, def := range added {
		if _, ok := renames[id]; ok {
			continue
		}
		def := def
		ops = append(ops, p.op(createType(id.Kind), id.Key(), id, func(op *Operation) {
			op.Definition = &def
		}))
	}

	for id := range removed {
		if renamedFrom[id] {
			continue
		}
		ops = append(ops, p.op(dropType(id.Kind), id.Key(), id, nil))
	}

	diffedTables := make(map[string]bool)
	type pair struct {
		prev schema.Definition
		next schema.Definition
	}
	var common []pair
	for id, def := range nextByID {
		if prevDef, ok := prevByID[id]; ok {
			common = append(common, pair{prev: prevDef, next: def})
		}
	}
	for to, from := range renames {
		prevDef := prevByID[from]
		nextDef := nextByID[to]
		ops = append(ops, p.op(renameType(to.Kind), to.Key(), to, func(op *Operation) {
			op.From = from.QualifiedName()
		}))
		// diff the renamed object as if it had always had the new name
		prevDef.Database, prevDef.Name, prevDef.RenamedFrom = nextDef.Database, nextDef.Name, nextDef.RenamedFrom
		common = append(common, pair{prev: prevDef, next: nextDef})
	}
	sort.Slice(common, func(i, j int) bool {
		return common[i].next.Identity().Less(common[j].next.Identity())
	})

	for _, c := range common {
		var objOps []Operation
		var objSuggestions []RenameSuggestion
		switch c.next.Kind {
		case schema.KindTable:
			diffedTables[c.next.QualifiedName()] = true
			objOps, objSuggestions, err = p.diffTable(c.prev, c.next, hints.Columns)
		case schema.KindView:
			objOps = p.diffView(c.prev, c.next)
		case schema.KindMaterializedView:
			objOps = p.diffMaterializedView(c.prev, c.next)
		}
		if err != nil {
			return nil, err
		}
		ops = append(ops, objOps...)
		suggestions = append(suggestions, objSuggestions...)
	}

	for _, h := range hints.Columns {
		if !diffedTables[h.Table] {
			return nil, &errdefs.PlanningConflictError{
				Reason: errdefs.ConflictUnknownRename,
				Object: "table:" + h.Table,
				Detail: fmt.Sprintf("column rename %s=%s names a table that is not present in both schemas", h.From, h.To),
			}
		}
	}

	ops = orderOperations(ops, prevByID, nextByID)
	out := &Plan{
		Operations:        ops,
		RenameSuggestions: suggestions,
		RiskSummary:       Summarize(ops),
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}

	p.logger.Debug("planned schema changes",
		"operations", len(ops),
		"risk", out.RiskSummary.String(),
		"rename_suggestions", len(suggestions))
	return out, nil
}

func indexDefinitions(defs []schema.Definition) map[schema.Identity]schema.Definition {
	out := make(map[schema.Identity]schema.Definition, len(defs))
	for _, def := range defs {
		out[def.Identity()] = def
	}
	return out
}

func createType(k schema.Kind) OpType {
	switch k {
	case schema.KindView:
		return CreateView
	case schema.KindMaterializedView:
		return CreateMaterializedView
	default:
		return CreateTable
	}
}

func dropType(k schema.Kind) OpType {
	switch k {
	case schema.KindView:
		return DropView
	case schema.KindMaterializedView:
		return DropMaterializedView
	default:
		return DropTable
	}
}

func renameType(k schema.Kind) OpType {
	switch k {
	case schema.KindView:
		return RenameView
	case schema.KindMaterializedView:
		return RenameMaterializedView
	default:
		return RenameTable
	}
}

func (p *Planner) diffTable(prev, next schema.Definition, hints []ColumnRename) ([]Operation, []RenameSuggestion, error) {
	id := next.Identity()
	if prev.Engine != next.Engine {
		return nil, nil, &errdefs.PlanningConflictError{
			Reason: errdefs.ConflictUnsupported,
			Object: id.Key(),
			Detail: fmt.Sprintf("engine changes from %s to %s; create a new table and migrate the data", prev.Engine, next.Engine),
		}
	}
	if !equalStrings(prev.PrimaryKey, next.PrimaryKey) {
		return nil, nil, &errdefs.PlanningConflictError{
			Reason: errdefs.ConflictUnsupported,
			Object: id.Key(),
			Detail: fmt.Sprintf("primary key changes from (%s) to (%s); create a new table and migrate the data",
				strings.Join(prev.PrimaryKey, ", "), strings.Join(next.PrimaryKey, ", ")),
		}
	}

	renames, err := resolveColumnRenames(prev, next, hints)
	if err != nil {
		return nil, nil, err
	}
	ops, suggestions, err := p.diffColumns(prev, next, renames)
	if err != nil {
		return nil, nil, err
	}
	ops = append(ops, p.diffStorage(id, prev, next)...)

	if prev.Comment != next.Comment {
		ops = append(ops, p.op(ModifyComment, subKey(id, "comment", ""), id, func(op *Operation) {
			op.Expr = next.Comment
		}))
	}
	return ops, suggestions, nil
}

// diffStorage compares the MergeTree clauses that can be altered in place.
func (p *Planner) diffStorage(id schema.Identity, prev, next schema.Definition) []Operation {
	var ops []Operation

	if !equalStrings(prev.OrderBy, next.OrderBy) {
		ops = append(ops, p.op(ModifyOrderBy, subKey(id, "order_by", ""), id, func(op *Operation) {
			op.Expr = tupleExpr(next.OrderBy)
		}))
	}
	if prev.PartitionBy != next.PartitionBy {
		ops = append(ops, p.op(ModifyPartitionBy, subKey(id, "partition_by", ""), id, func(op *Operation) {
			op.Expr = next.PartitionBy
		}))
	}

	switch {
	case prev.TTL == next.TTL:
	case next.TTL == "":
		ops = append(ops, p.op(RemoveTTL, subKey(id, "ttl", ""), id, nil))
	default:
		ops = append(ops, p.op(ModifyTTL, subKey(id, "ttl", ""), id, func(op *Operation) {
			op.Expr = next.TTL
		}))
	}

	for _, name := range settingNames(prev.Settings, next.Settings) {
		oldValue, had := prev.Settings[name]
		newValue, has := next.Settings[name]
		name, value := name, newValue
		switch {
		case had && !has:
			ops = append(ops, p.op(ResetSetting, subKey(id, "setting", name), id, func(op *Operation) {
				op.Setting = name
			}))
		case !had && has:
			ops = append(ops, p.op(AddSetting, subKey(id, "setting", name), id, func(op *Operation) {
				op.Setting, op.Value = name, value
			}))
		case oldValue != newValue:
			ops = append(ops, p.op(ModifySetting, subKey(id, "setting", name), id, func(op *Operation) {
				op.Setting, op.Value = name, value
			}))
		}
	}

	for _, idx := range prev.Indexes {
		idx := idx
		if _, ok := next.Index(idx.Name); !ok {
			ops = append(ops, p.op(DropIndex, subKey(id, "index", idx.Name), id, func(op *Operation) {
				op.Index = &idx
			}))
		}
	}
	for _, idx := range next.Indexes {
		idx := idx
		old, ok := prev.Index(idx.Name)
		changed := ok && (old.Expression != idx.Expression || old.Type != idx.Type || old.Granularity != idx.Granularity)
		switch {
		case !ok:
			ops = append(ops, p.op(AddIndex, subKey(id, "index", idx.Name), id, func(op *Operation) {
				op.Index = &idx
			}))
		case changed:
			ops = append(ops, p.op(ModifyIndex, subKey(id, "index", idx.Name), id, func(op *Operation) {
				op.Index = &idx
			}))
		}
		if idx.Materialize && (!ok || changed || !old.Materialize) {
			ops = append(ops, p.op(MaterializeIndex, subKey(id, "materialize_index", idx.Name), id, func(op *Operation) {
				op.Index = &idx
			}))
		}
	}
	return ops
}

func (p *Planner) diffView(prev, next schema.Definition) []Operation {
	if prev.Query == next.Query && prev.Comment == next.Comment {
		return nil
	}
	id := next.Identity()
	def := next
	return []Operation{p.op(ReplaceView, subKey(id, "query", ""), id, func(op *Operation) {
		op.Definition = &def
	})}
}

func (p *Planner) diffMaterializedView(prev, next schema.Definition) []Operation {
	id := next.Identity()
	if storageChanged(prev, next) {
		def := next
		return []Operation{p.op(RecreateMaterializedView, subKey(id, "recreate", ""), id, func(op *Operation) {
			op.Definition = &def
			op.From = prev.To
		})}
	}

	var ops []Operation
	if prev.Query != next.Query {
		ops = append(ops, p.op(AlterMaterializedViewQuery, subKey(id, "query", ""), id, func(op *Operation) {
			op.Expr = next.Query
		}))
	}
	if prev.Comment != next.Comment {
		ops = append(ops, p.op(ModifyComment, subKey(id, "comment", ""), id, func(op *Operation) {
			op.Expr = next.Comment
		}))
	}
	return ops
}

// storageChanged reports whether a materialized view writes somewhere
// else: a different TO target or a different inner table.
func storageChanged(prev, next schema.Definition) bool {
	if prev.To != next.To {
		return true
	}
	if next.To != "" {
		return false
	}
	a, b := prev, next
	a.Query, b.Query = "", ""
	a.Comment, b.Comment = "", ""
	a.RenamedFrom, b.RenamedFrom = "", ""
	a.DependsOn, b.DependsOn = nil, nil
	a.Populate, b.Populate = false, false
	a.Name, b.Name = "", ""
	a.Database, b.Database = "", ""
	return !schema.Equal(a, b)
}

func settingNames(a, b map[string]string) []string {
	names := make([]string, 0, len(a)+len(b))
	for k := range a {
		names = append(names, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// tupleExpr renders a key list the way ORDER BY expects it.
func tupleExpr(exprs []string) string {
	switch len(exprs) {
	case 0:
		return "tuple()"
	case 1:
		return exprs[0]
	default:
		return "(" + strings.Join(exprs, ", ") + ")"
	}
}
