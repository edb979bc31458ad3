package plan

import (
	"chschema/internal/schema"
	"fmt"

	"github.com/mitchellh/hashstructure/v2"
)

// columnSignature is everything about a column except its name, comment
// and rename metadata.
type columnSignature struct {
	Type        string
	Nullable    bool
	DefaultKind string
	Default     string
	Codec       string
}

func signatureOf(c schema.Column) columnSignature {
	return columnSignature{
		Type:        c.Type,
		Nullable:    c.Nullable,
		DefaultKind: c.DefaultKind,
		Default:     c.Default,
		Codec:       c.Codec,
	}
}

func signatureHash(c schema.Column) (uint64, error) {
	h, err := hashstructure.Hash(signatureOf(c), hashstructure.FormatV2, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to hash column %s: %w", c.Name, err)
	}
	return h, nil
}

// diffColumns emits add, drop, modify, comment and rename operations for
// one table and returns heuristic rename suggestions for the dropped and
// added columns that are left.
func (p *Planner) diffColumns(prev, next schema.Definition, renames map[string]string) ([]Operation, []RenameSuggestion, error) {
	id := next.Identity()
	renamedOld := make(map[string]bool, len(renames))
	for _, old := range renames {
		renamedOld[old] = true
	}

	var ops []Operation
	var added []schema.Column
	for i, col := range next.Columns {
		col := col
		oldName := col.Name
		if from, ok := renames[col.Name]; ok {
			oldName = from
			ops = append(ops, p.op(RenameColumn, subKey(id, "column_rename", col.Name), id, func(op *Operation) {
				op.From = from
				op.Column = &col
				op.position = i
			}))
		}

		old, ok := prev.Column(oldName)
		if !ok {
			added = append(added, col)
			after := ""
			if i > 0 {
				after = next.Columns[i-1].Name
			}
			ops = append(ops, p.op(AddColumn, subKey(id, "column", col.Name), id, func(op *Operation) {
				op.Column = &col
				op.After = after
				op.position = i
			}))
			continue
		}

		switch {
		case signatureOf(old) != signatureOf(col):
			ops = append(ops, p.op(ModifyColumn, subKey(id, "column", col.Name), id, func(op *Operation) {
				op.Column = &col
				op.position = i
			}))
		case old.Comment != col.Comment:
			ops = append(ops, p.op(CommentColumn, subKey(id, "column", col.Name), id, func(op *Operation) {
				op.Column = &col
				op.position = i
			}))
		}
	}

	var dropped []schema.Column
	for i, col := range prev.Columns {
		col := col
		if _, ok := next.Column(col.Name); ok || renamedOld[col.Name] {
			continue
		}
		dropped = append(dropped, col)
		ops = append(ops, p.op(DropColumn, subKey(id, "column", col.Name), id, func(op *Operation) {
			op.Column = &col
			op.position = i
		}))
	}

	suggestions, err := suggestRenames(id.Key(), dropped, added)
	if err != nil {
		return nil, nil, err
	}
	return ops, suggestions, nil
}

// suggestRenames pairs dropped and added columns with identical signatures.
// Dropped columns are visited in their previous declared order and each
// takes the first unpaired added column in new declared order.
func suggestRenames(object string, dropped, added []schema.Column) ([]RenameSuggestion, error) {
	if len(dropped) == 0 || len(added) == 0 {
		return nil, nil
	}
	addedHashes := make([]uint64, len(added))
	for i, c := range added {
		h, err := signatureHash(c)
		if err != nil {
			return nil, err
		}
		addedHashes[i] = h
	}

	paired := make([]bool, len(added))
	var out []RenameSuggestion
	for _, d := range dropped {
		h, err := signatureHash(d)
		if err != nil {
			return nil, err
		}
		for i, a := range added {
			if paired[i] || addedHashes[i] != h || signatureOf(a) != signatureOf(d) {
				continue
			}
			paired[i] = true
			out = append(out, RenameSuggestion{
				Object: object,
				From:   d.Name,
				To:     a.Name,
				Reason: fmt.Sprintf("dropped column %s and added column %s have identical definitions (%s); declare renamed_from: %s on %s to rename instead", d.Name, a.Name, describeSignature(a), d.Name, a.Name),
			})
			break
		}
	}
	return out, nil
}

func describeSignature(c schema.Column) string {
	s := c.Type
	if c.Nullable {
		s = "Nullable(" + s + ")"
	}
	if c.DefaultKind != "" {
		s += " " + c.DefaultKind
		if c.Default != "" {
			s += " " + c.Default
		}
	}
	if c.Codec != "" {
		s += " CODEC(" + c.Codec + ")"
	}
	return s
}
