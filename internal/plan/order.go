package plan

import (
	"chschema/internal/schema"
	"sort"
)

const (
	phaseDatabase = iota
	phaseRename
	phaseCreate
	phaseAlter
	phaseDrop
)

// phaseOf places object renames before creates, so a new object can refer
// to an object by its new name. Column renames are alterations.
func phaseOf(t OpType) int {
	switch t {
	case CreateDatabase:
		return phaseDatabase
	case RenameTable, RenameView, RenameMaterializedView:
		return phaseRename
	case CreateTable, CreateView, CreateMaterializedView:
		return phaseCreate
	case DropTable, DropView, DropMaterializedView:
		return phaseDrop
	default:
		return phaseAlter
	}
}

// alterRank orders alterations of one object: columns are added before
// keys and indexes reference them, and dropped only after indexes that
// used them are gone.
func alterRank(t OpType) int {
	switch t {
	case RenameColumn:
		return 1
	case AddColumn, ModifyColumn, CommentColumn:
		return 2
	case ModifyOrderBy, ModifyPartitionBy, ModifyTTL, RemoveTTL, ModifyComment,
		AddSetting, ModifySetting, ResetSetting:
		return 3
	case DropIndex, ModifyIndex, AddIndex:
		return 4
	case MaterializeIndex:
		return 5
	case DropColumn:
		return 6
	default:
		return 7
	}
}

// orderOperations sorts ops into the plan's total order: databases,
// object renames, creates in dependency order, alters, drops in reverse
// dependency order. Keys break every remaining tie.
func orderOperations(ops []Operation, prev, next map[schema.Identity]schema.Definition) []Operation {
	var created, dropped []schema.Identity
	for _, op := range ops {
		switch phaseOf(op.Type) {
		case phaseCreate:
			created = append(created, op.Object)
		case phaseDrop:
			dropped = append(dropped, op.Object)
		}
	}

	createOrder := rankOf(topoSort(created, dependencies(created, next), func(a, b schema.Identity) bool {
		return a.Less(b)
	}))
	dropOrder := rankOf(topoSort(dropped, dependents(dropped, prev), func(a, b schema.Identity) bool {
		if a.Kind != b.Kind {
			return a.Kind.Rank() > b.Kind.Rank()
		}
		return a.Key() < b.Key()
	}))

	out := append([]Operation(nil), ops...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		pa, pb := phaseOf(a.Type), phaseOf(b.Type)
		if pa != pb {
			return pa < pb
		}
		switch pa {
		case phaseCreate:
			return createOrder[a.Object] < createOrder[b.Object]
		case phaseDrop:
			return dropOrder[a.Object] < dropOrder[b.Object]
		case phaseRename, phaseAlter:
			if a.Object != b.Object {
				return a.Object.Less(b.Object)
			}
			if ra, rb := alterRank(a.Type), alterRank(b.Type); ra != rb {
				return ra < rb
			}
			if a.position != b.position {
				return a.position < b.position
			}
		}
		return a.Key < b.Key
	})
	return out
}

func rankOf(ids []schema.Identity) map[schema.Identity]int {
	out := make(map[schema.Identity]int, len(ids))
	for i, id := range ids {
		out[id] = i
	}
	return out
}

// referencedNames returns the qualified names a definition reads from or
// writes to.
func referencedNames(def schema.Definition) []string {
	refs := append([]string(nil), def.DependsOn...)
	if def.To != "" {
		refs = append(refs, def.To)
	}
	return refs
}

// dependencies maps each id to the ids in the same set it references.
func dependencies(ids []schema.Identity, defs map[schema.Identity]schema.Definition) map[schema.Identity][]schema.Identity {
	byName := make(map[string]schema.Identity, len(ids))
	for _, id := range ids {
		byName[id.QualifiedName()] = id
	}
	out := make(map[schema.Identity][]schema.Identity, len(ids))
	for _, id := range ids {
		for _, ref := range referencedNames(defs[id]) {
			if dep, ok := byName[ref]; ok && dep != id {
				out[id] = append(out[id], dep)
			}
		}
	}
	return out
}

// dependents maps each id to the ids in the same set that reference it.
func dependents(ids []schema.Identity, defs map[schema.Identity]schema.Definition) map[schema.Identity][]schema.Identity {
	out := make(map[schema.Identity][]schema.Identity, len(ids))
	for id, deps := range dependencies(ids, defs) {
		for _, dep := range deps {
			out[dep] = append(out[dep], id)
		}
	}
	return out
}

// topoSort orders ids so that every id comes after the ids listed for it
// in before. Among ready ids the least by less goes first. Cycles are
// broken by appending the remainder in less order.
func topoSort(ids []schema.Identity, before map[schema.Identity][]schema.Identity, less func(a, b schema.Identity) bool) []schema.Identity {
	pending := make(map[schema.Identity]int, len(ids))
	for _, id := range ids {
		pending[id] = len(before[id])
	}
	unblocks := make(map[schema.Identity][]schema.Identity)
	for id, deps := range before {
		for _, dep := range deps {
			unblocks[dep] = append(unblocks[dep], id)
		}
	}

	done := make(map[schema.Identity]bool, len(ids))
	out := make([]schema.Identity, 0, len(ids))
	for len(out) < len(ids) {
		var ready []schema.Identity
		for _, id := range ids {
			if !done[id] && pending[id] == 0 {
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			var rest []schema.Identity
			for _, id := range ids {
				if !done[id] {
					rest = append(rest, id)
				}
			}
			sort.Slice(rest, func(i, j int) bool { return less(rest[i], rest[j]) })
			return append(out, rest...)
		}
		sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })
		next := ready[0]
		done[next] = true
		out = append(out, next)
		for _, id := range unblocks[next] {
			pending[id]--
		}
	}
	return out
}
