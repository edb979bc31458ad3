package plan

import (
	"chschema/internal/schema"
	"sort"
)

// Retained returns the definitions the database holds once only the
// operations of kept have run. Every operation of full that kept no
// longer carries is undone against previous, so a later plan proposes it
// again. When nothing was removed the result is next.
func Retained(previous, next []schema.Definition, full, kept *Plan) []schema.Definition {
	keep := make(map[string]bool, len(kept.Operations))
	for _, op := range kept.Operations {
		keep[op.Key] = true
	}
	var removed []Operation
	for _, op := range full.Operations {
		if !keep[op.Key] {
			removed = append(removed, op)
		}
	}
	if len(removed) == 0 {
		return next
	}

	prevByKey := make(map[string]schema.Definition, len(previous))
	for _, def := range previous {
		prevByKey[def.Identity().Key()] = def
	}
	renamedFrom := make(map[string]string)
	for _, op := range full.Operations {
		if isObjectRename(op.Type) {
			renamedFrom[op.Object.Key()] = op.From
		}
	}
	prevOf := func(id schema.Identity) (schema.Definition, bool) {
		if def, ok := prevByKey[id.Key()]; ok {
			return def, true
		}
		if from, ok := renamedFrom[id.Key()]; ok {
			db, name := schema.ParseQualified(from, id.Database)
			def, ok := prevByKey[schema.Identity{Kind: id.Kind, Database: db, Name: name}.Key()]
			return def, ok
		}
		return schema.Definition{}, false
	}

	state := make(map[string]schema.Definition, len(next))
	for _, def := range next {
		state[def.Identity().Key()] = def.Clone()
	}
	for _, op := range removed {
		undo(state, op, prevOf)
	}

	out := make([]schema.Definition, 0, len(state))
	for _, def := range state {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Identity().Less(out[j].Identity())
	})
	return out
}

func isObjectRename(t OpType) bool {
	return t == RenameTable || t == RenameView || t == RenameMaterializedView
}

// undo reverts the effect of one operation on state.
func undo(state map[string]schema.Definition, op Operation, prevOf func(schema.Identity) (schema.Definition, bool)) {
	key := op.Object.Key()
	prev, hadPrev := prevOf(op.Object)

	switch op.Type {
	case CreateDatabase, MaterializeIndex:
		return
	case CreateTable, CreateView, CreateMaterializedView:
		delete(state, key)
		return
	case RenameTable, RenameView, RenameMaterializedView:
		delete(state, key)
		if hadPrev {
			state[prev.Identity().Key()] = prev.Clone()
		}
		return
	case DropTable, DropView, DropMaterializedView, ReplaceView, RecreateMaterializedView:
		if hadPrev {
			restored := prev.Clone()
			restored.Database, restored.Name = op.Object.Database, op.Object.Name
			state[key] = restored
		}
		return
	}

	def, ok := state[key]
	if !ok || !hadPrev {
		return
	}
	switch op.Type {
	case AddColumn:
		def.Columns = withoutColumn(def.Columns, op.Column.Name)
	case ModifyColumn, CommentColumn:
		if old, ok := prev.Column(op.Column.Name); ok {
			def.Columns = replaceColumn(def.Columns, op.Column.Name, old)
		}
	case RenameColumn:
		if old, ok := prev.Column(op.From); ok {
			def.Columns = replaceColumn(def.Columns, op.Column.Name, old)
		}
	case DropColumn:
		def.Columns = insertColumn(def.Columns, prev.Columns, *op.Column)
	case ModifyTTL, RemoveTTL:
		def.TTL = prev.TTL
	case AddSetting, ModifySetting, ResetSetting:
		if value, ok := prev.Settings[op.Setting]; ok {
			if def.Settings == nil {
				def.Settings = make(map[string]string)
			}
			def.Settings[op.Setting] = value
		} else {
			delete(def.Settings, op.Setting)
			if len(def.Settings) == 0 {
				def.Settings = nil
			}
		}
	case AddIndex:
		def.Indexes = withoutIndex(def.Indexes, op.Index.Name)
	case ModifyIndex:
		if old, ok := prev.Index(op.Index.Name); ok {
			for i := range def.Indexes {
				if def.Indexes[i].Name == old.Name {
					def.Indexes[i] = old
				}
			}
		}
	case DropIndex:
		def.Indexes = append(def.Indexes, *op.Index)
	case ModifyOrderBy:
		def.OrderBy = append([]string(nil), prev.OrderBy...)
	case ModifyPartitionBy:
		def.PartitionBy = prev.PartitionBy
	case ModifyComment:
		def.Comment = prev.Comment
	case AlterMaterializedViewQuery:
		def.Query = prev.Query
		def.DependsOn = append([]string(nil), prev.DependsOn...)
	}
	state[key] = def
}

func withoutColumn(cols []schema.Column, name string) []schema.Column {
	out := cols[:0]
	for _, c := range cols {
		if c.Name != name {
			out = append(out, c)
		}
	}
	return out
}

func replaceColumn(cols []schema.Column, name string, with schema.Column) []schema.Column {
	for i := range cols {
		if cols[i].Name == name {
			cols[i] = with
		}
	}
	return cols
}

// insertColumn puts col back after the column that preceded it in prev,
// or first when nothing did.
func insertColumn(cols, prev []schema.Column, col schema.Column) []schema.Column {
	pos := 0
	for i, c := range prev {
		if c.Name == col.Name {
			break
		}
		for j := range cols {
			if cols[j].Name == prev[i].Name {
				pos = j + 1
			}
		}
	}
	out := make([]schema.Column, 0, len(cols)+1)
	out = append(out, cols[:pos]...)
	out = append(out, col)
	return append(out, cols[pos:]...)
}

func withoutIndex(indexes []schema.Index, name string) []schema.Index {
	out := indexes[:0]
	for _, idx := range indexes {
		if idx.Name != name {
			out = append(out, idx)
		}
	}
	return out
}
