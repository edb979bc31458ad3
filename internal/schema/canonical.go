package schema

import (
	"chschema/internal/errdefs"
	"sort"
	"strings"
)

// CanonicalOptions tunes canonicalization rules that are configurable.
type CanonicalOptions struct {
	// SortColumns orders table columns alphabetically instead of keeping
	// their declared order.
	SortColumns bool
}

// Canonicalize normalizes declarations into the canonical set: duplicates
// are resolved last-wins by identity, every expression is normalized and the
// result is ordered by kind, database and name. The input is not modified.
func Canonicalize(defs []Definition, opts CanonicalOptions) ([]Definition, error) {
	var issues []errdefs.Issue

	byIdentity := make(map[Identity]Definition, len(defs))
	kinds := make(map[string]Kind, len(defs))
	for _, def := range defs {
		def = normalizeDefinition(def.Clone(), opts)
		qualified := def.QualifiedName()
		if prev, ok := kinds[qualified]; ok && prev != def.Kind {
			first, second := prev, def.Kind
			if second.Rank() < first.Rank() {
				first, second = second, first
			}
			issues = append(issues, errdefs.Issue{
				Object:  qualified,
				Message: "declared as both " + string(first) + " and " + string(second),
			})
			continue
		}
		kinds[qualified] = def.Kind
		byIdentity[def.Identity()] = def
	}

	out := make([]Definition, 0, len(byIdentity))
	for _, def := range byIdentity {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Identity().Less(out[j].Identity())
	})

	for _, def := range out {
		issues = append(issues, validateDefinition(def)...)
	}
	if len(issues) > 0 {
		sortIssues(issues)
		return nil, &errdefs.ValidationError{Issues: issues}
	}
	return out, nil
}

func normalizeDefinition(def Definition, opts CanonicalOptions) Definition {
	def.Kind = Kind(strings.ToLower(strings.TrimSpace(string(def.Kind))))
	def.Database = strings.TrimSpace(def.Database)
	def.Name = strings.TrimSpace(def.Name)
	def.Comment = strings.TrimSpace(def.Comment)
	def.RenamedFrom = strings.TrimSpace(def.RenamedFrom)
	if def.RenamedFrom != "" {
		db, name := ParseQualified(def.RenamedFrom, def.Database)
		def.RenamedFrom = db + "." + name
	}

	for i := range def.Columns {
		def.Columns[i] = normalizeColumn(def.Columns[i])
	}
	if opts.SortColumns {
		sort.SliceStable(def.Columns, func(i, j int) bool {
			return def.Columns[i].Name < def.Columns[j].Name
		})
	}
	if len(def.Columns) == 0 {
		def.Columns = nil
	}

	def.Engine = NormalizeEngine(def.Engine)
	def.PrimaryKey = normalizeExprList(def.PrimaryKey)
	def.OrderBy = normalizeExprList(def.OrderBy)
	def.PartitionBy = CollapseWhitespace(def.PartitionBy)
	def.TTL = CollapseWhitespace(def.TTL)

	if len(def.Settings) > 0 {
		settings := make(map[string]string, len(def.Settings))
		for k, v := range def.Settings {
			k = strings.TrimSpace(k)
			v = CollapseWhitespace(v)
			if IsMergeTreeFamily(def.Engine) && mergeTreeDefaults[k] == v {
				continue
			}
			settings[k] = v
		}
		def.Settings = settings
	}
	if len(def.Settings) == 0 {
		def.Settings = nil
	}

	for i := range def.Indexes {
		idx := def.Indexes[i]
		idx.Name = strings.TrimSpace(idx.Name)
		idx.Expression = CollapseWhitespace(idx.Expression)
		idx.Type = NormalizeType(idx.Type)
		if idx.Granularity == 0 {
			idx.Granularity = 1
		}
		def.Indexes[i] = idx
	}
	sort.SliceStable(def.Indexes, func(i, j int) bool {
		return def.Indexes[i].Name < def.Indexes[j].Name
	})
	if len(def.Indexes) == 0 {
		def.Indexes = nil
	}

	def.Query = CollapseWhitespace(strings.TrimSuffix(strings.TrimSpace(def.Query), ";"))
	def.To = strings.TrimSpace(def.To)
	if def.To != "" {
		db, name := ParseQualified(def.To, def.Database)
		def.To = db + "." + name
	}
	deps := make([]string, 0, len(def.DependsOn))
	seen := make(map[string]bool, len(def.DependsOn))
	for _, dep := range def.DependsOn {
		db, name := ParseQualified(dep, def.Database)
		q := db + "." + name
		if name == "" || seen[q] {
			continue
		}
		seen[q] = true
		deps = append(deps, q)
	}
	sort.Strings(deps)
	def.DependsOn = nil
	if len(deps) > 0 {
		def.DependsOn = deps
	}
	return def
}

func normalizeColumn(c Column) Column {
	c.Name = strings.TrimSpace(c.Name)
	c.Type = NormalizeType(c.Type)
	if inner, ok := UnwrapNullable(c.Type); ok {
		c.Type = inner
		c.Nullable = true
	}
	c.Default = CollapseWhitespace(c.Default)
	c.DefaultKind = strings.ToUpper(strings.TrimSpace(c.DefaultKind))
	if c.Default == "" && c.DefaultKind != "EPHEMERAL" {
		c.DefaultKind = ""
	} else if c.DefaultKind == "" {
		c.DefaultKind = "DEFAULT"
	}
	c.Codec = NormalizeType(c.Codec)
	c.Comment = strings.TrimSpace(c.Comment)
	c.RenamedFrom = strings.TrimSpace(c.RenamedFrom)
	return c
}

func normalizeExprList(exprs []string) []string {
	var out []string
	for _, e := range exprs {
		e = CollapseWhitespace(e)
		if e == "" {
			continue
		}
		out = append(out, e)
	}
	return out
}

// IsCanonical reports whether defs is already in canonical form.
func IsCanonical(defs []Definition, opts CanonicalOptions) bool {
	canon, err := Canonicalize(defs, opts)
	if err != nil || len(canon) != len(defs) {
		return false
	}
	for i := range defs {
		if !Equal(defs[i], canon[i]) {
			return false
		}
	}
	return true
}

func sortIssues(issues []errdefs.Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Object != issues[j].Object {
			return issues[i].Object < issues[j].Object
		}
		return issues[i].Field < issues[j].Field
	})
}
