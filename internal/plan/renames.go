package plan

import (
	"chschema/internal/errdefs"
	"chschema/internal/schema"
	"fmt"
	"sort"
	"strings"
)

// ObjectRename maps a removed object to an added one by qualified name.
type ObjectRename struct {
	From string
	To   string
}

// ColumnRename maps a removed column to an added one within Table, the
// table's qualified name in the new schema.
type ColumnRename struct {
	Table string
	From  string
	To    string
}

// RenameHints are explicit operator overrides. They take precedence over
// renamed_from declarations.
type RenameHints struct {
	Objects []ObjectRename
	Columns []ColumnRename
}

// ParseRenameHint parses "db.old=db.new" for objects and
// "db.table:old=new" for columns. A bare name on the right of an object
// hint inherits the database on the left.
func ParseRenameHint(s string) (objectHint *ObjectRename, columnHint *ColumnRename, err error) {
	from, to, ok := strings.Cut(s, "=")
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if !ok || from == "" || to == "" {
		return nil, nil, fmt.Errorf("invalid rename %q: want db.old=db.new or db.table:old_column=new_column", s)
	}
	if table, col, isColumn := strings.Cut(from, ":"); isColumn {
		db, name := schema.ParseQualified(table, "")
		if db == "" || name == "" || col == "" {
			return nil, nil, fmt.Errorf("invalid column rename %q: table must be qualified as db.table", s)
		}
		return nil, &ColumnRename{Table: db + "." + name, From: col, To: to}, nil
	}
	db, name := schema.ParseQualified(from, "")
	if db == "" || name == "" {
		return nil, nil, fmt.Errorf("invalid rename %q: objects must be qualified as db.name", s)
	}
	toDB, toName := schema.ParseQualified(to, db)
	return &ObjectRename{From: db + "." + name, To: toDB + "." + toName}, nil, nil
}

// ParseRenameHints parses a list of --rename values.
func ParseRenameHints(values []string) (RenameHints, error) {
	var hints RenameHints
	for _, v := range values {
		obj, col, err := ParseRenameHint(v)
		if err != nil {
			return RenameHints{}, err
		}
		if obj != nil {
			hints.Objects = append(hints.Objects, *obj)
		}
		if col != nil {
			hints.Columns = append(hints.Columns, *col)
		}
	}
	return hints, nil
}

// renameSet records resolved from→to pairs and rejects double claims.
type renameSet struct {
	object string
	byFrom map[string]string
	byTo   map[string]string
	hinted map[string]bool
}

func newRenameSet(object string) *renameSet {
	return &renameSet{
		object: object,
		byFrom: make(map[string]string),
		byTo:   make(map[string]string),
		hinted: make(map[string]bool),
	}
}

func (r *renameSet) add(from, to string, hinted bool) error {
	if prev, ok := r.byTo[to]; ok && prev != from {
		return &errdefs.PlanningConflictError{
			Reason: errdefs.ConflictRename,
			Object: r.object,
			Detail: fmt.Sprintf("%s is claimed as renamed from both %s and %s", to, prev, from),
		}
	}
	if prev, ok := r.byFrom[from]; ok && prev != to {
		return &errdefs.PlanningConflictError{
			Reason: errdefs.ConflictRename,
			Object: r.object,
			Detail: fmt.Sprintf("%s is claimed as the origin of both %s and %s", from, prev, to),
		}
	}
	r.byFrom[from] = to
	r.byTo[to] = from
	if hinted {
		r.hinted[to] = true
		r.hinted[from] = true
	}
	return nil
}

// pairs returns the resolved renames ordered by target.
func (r *renameSet) pairs() [][2]string {
	out := make([][2]string, 0, len(r.byTo))
	for to, from := range r.byTo {
		out = append(out, [2]string{from, to})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][1] < out[j][1] })
	return out
}

// resolveObjectRenames pairs removed and added identities. Explicit hints
// must name a (removed, added) pair of the same kind; declared renamed_from
// values that do not name a removed object are stale and ignored.
func resolveObjectRenames(removed, added map[schema.Identity]schema.Definition, hints []ObjectRename) (map[schema.Identity]schema.Identity, error) {
	set := newRenameSet("schema")

	removedByName := make(map[string]schema.Identity, len(removed))
	for id := range removed {
		removedByName[id.QualifiedName()] = id
	}
	addedByName := make(map[string]schema.Identity, len(added))
	for id := range added {
		addedByName[id.QualifiedName()] = id
	}

	for _, h := range hints {
		fromID, okFrom := removedByName[h.From]
		toID, okTo := addedByName[h.To]
		if !okFrom || !okTo {
			return nil, &errdefs.PlanningConflictError{
				Reason: errdefs.ConflictUnknownRename,
				Object: h.To,
				Detail: fmt.Sprintf("rename %s=%s does not name a removed object and an added object", h.From, h.To),
			}
		}
		if fromID.Kind != toID.Kind {
			return nil, &errdefs.PlanningConflictError{
				Reason: errdefs.ConflictRename,
				Object: toID.Key(),
				Detail: fmt.Sprintf("cannot rename %s to %s", fromID, toID),
			}
		}
		if err := set.add(fromID.Key(), toID.Key(), true); err != nil {
			return nil, err
		}
	}

	ids := make([]schema.Identity, 0, len(added))
	for id := range added {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })

	for _, toID := range ids {
		def := added[toID]
		if def.RenamedFrom == "" || set.hinted[toID.Key()] {
			continue
		}
		fromID := schema.Identity{Kind: def.Kind}
		fromID.Database, fromID.Name = schema.ParseQualified(def.RenamedFrom, def.Database)
		if _, ok := removed[fromID]; !ok {
			continue
		}
		if set.hinted[fromID.Key()] {
			continue
		}
		if err := set.add(fromID.Key(), toID.Key(), false); err != nil {
			return nil, err
		}
	}

	keyToID := make(map[string]schema.Identity, len(removed)+len(added))
	for id := range removed {
		keyToID[id.Key()] = id
	}
	for id := range added {
		keyToID[id.Key()] = id
	}
	out := make(map[schema.Identity]schema.Identity)
	for _, pair := range set.pairs() {
		out[keyToID[pair[1]]] = keyToID[pair[0]]
	}
	return out, nil
}

// resolveColumnRenames pairs removed and added columns of one table. The
// result maps new column name to old column name.
func resolveColumnRenames(prev, next schema.Definition, hints []ColumnRename) (map[string]string, error) {
	object := next.Identity().Key()
	set := newRenameSet(object)

	removed := make(map[string]bool)
	for _, c := range prev.Columns {
		if _, ok := next.Column(c.Name); !ok {
			removed[c.Name] = true
		}
	}
	added := make(map[string]bool)
	for _, c := range next.Columns {
		if _, ok := prev.Column(c.Name); !ok {
			added[c.Name] = true
		}
	}

	for _, h := range hints {
		if h.Table != next.QualifiedName() {
			continue
		}
		if !removed[h.From] || !added[h.To] {
			return nil, &errdefs.PlanningConflictError{
				Reason: errdefs.ConflictUnknownRename,
				Object: object,
				Detail: fmt.Sprintf("column rename %s=%s does not name a dropped column and an added column", h.From, h.To),
			}
		}
		if err := set.add(h.From, h.To, true); err != nil {
			return nil, err
		}
	}

	for _, c := range next.Columns {
		if c.RenamedFrom == "" || !added[c.Name] || set.hinted[c.Name] {
			continue
		}
		if !removed[c.RenamedFrom] || set.hinted[c.RenamedFrom] {
			continue
		}
		if err := set.add(c.RenamedFrom, c.Name, false); err != nil {
			return nil, err
		}
	}
	return set.byTo, nil
}
