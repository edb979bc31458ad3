package schema

import (
	"chschema/internal/errdefs"
	"fmt"
	"regexp"
	"sort"
)

// settingName matches the names ClickHouse accepts in SETTINGS clauses.
var settingName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var defaultKinds = map[string]bool{
	"DEFAULT":      true,
	"MATERIALIZED": true,
	"ALIAS":        true,
	"EPHEMERAL":    true,
}

// validateDefinition checks one normalized definition and returns every
// problem found.
func validateDefinition(def Definition) []errdefs.Issue {
	object := def.Identity().Key()
	var issues []errdefs.Issue
	add := func(field, format string, args ...any) {
		issues = append(issues, errdefs.Issue{Object: object, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if !def.Kind.Valid() {
		add("kind", "unknown kind %q (want table, view or materialized_view)", def.Kind)
		return issues
	}
	if def.Database == "" {
		add("database", "database is required")
	}
	if def.Name == "" {
		add("name", "name is required")
	}

	switch def.Kind {
	case KindTable:
		if def.Query != "" {
			add("query", "tables do not take a query")
		}
		if def.To != "" || def.Populate {
			add("to", "tables do not take a target table")
		}
		if len(def.DependsOn) > 0 {
			add("depends_on", "tables do not take dependencies")
		}
		if len(def.Columns) == 0 {
			add("columns", "a table needs at least one column")
		}
		if def.Engine == "" {
			add("engine", "engine is required")
		}
		issues = append(issues, validateStorage(def, object)...)
	case KindView:
		if def.Query == "" {
			add("query", "query is required")
		}
		if def.Engine != "" || len(def.Columns) > 0 || len(def.OrderBy) > 0 || len(def.PrimaryKey) > 0 ||
			def.PartitionBy != "" || def.TTL != "" || len(def.Settings) > 0 || len(def.Indexes) > 0 {
			add("", "views take only a query, comment and dependencies")
		}
		if def.To != "" || def.Populate {
			add("to", "views do not take a target table")
		}
	case KindMaterializedView:
		if def.Query == "" {
			add("query", "query is required")
		}
		if def.To == "" && def.Engine == "" {
			add("to", "a materialized view needs either a target table or an engine")
		}
		if def.To != "" {
			if def.Engine != "" || len(def.Columns) > 0 || len(def.OrderBy) > 0 || len(def.PrimaryKey) > 0 ||
				def.PartitionBy != "" || def.TTL != "" || len(def.Settings) > 0 || len(def.Indexes) > 0 {
				add("to", "storage fields are not allowed when a target table is set")
			}
			if def.Populate {
				add("populate", "POPULATE cannot be combined with a target table")
			}
		} else {
			issues = append(issues, validateStorage(def, object)...)
		}
	}
	return issues
}

// validateStorage checks the table-like part of a definition: columns,
// keys and the engine-family restrictions.
func validateStorage(def Definition, object string) []errdefs.Issue {
	var issues []errdefs.Issue
	add := func(field, format string, args ...any) {
		issues = append(issues, errdefs.Issue{Object: object, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	seen := make(map[string]bool, len(def.Columns))
	for i, c := range def.Columns {
		field := fmt.Sprintf("columns[%d]", i)
		if c.Name == "" {
			add(field, "column name is required")
			continue
		}
		if seen[c.Name] {
			add(field, "duplicate column %q", c.Name)
		}
		seen[c.Name] = true
		if c.Type == "" {
			add(field, "column %q has no type", c.Name)
		}
		if c.DefaultKind != "" && !defaultKinds[c.DefaultKind] {
			add(field, "column %q has unknown default kind %q", c.Name, c.DefaultKind)
		}
	}

	for _, expr := range def.OrderBy {
		if IsIdentifier(expr) && !seen[Unquote(expr)] {
			add("order_by", "references unknown column %q", expr)
		}
	}
	for _, expr := range def.PrimaryKey {
		if IsIdentifier(expr) && !seen[Unquote(expr)] {
			add("primary_key", "references unknown column %q", expr)
		}
	}
	if len(def.PrimaryKey) > 0 {
		if len(def.PrimaryKey) > len(def.OrderBy) {
			add("primary_key", "primary key must be a prefix of the order-by key")
		} else {
			for i, expr := range def.PrimaryKey {
				if def.OrderBy[i] != expr {
					add("primary_key", "primary key must be a prefix of the order-by key")
					break
				}
			}
		}
	}

	mergeTree := IsMergeTreeFamily(def.Engine)
	if def.Engine != "" && !mergeTree {
		if len(def.OrderBy) > 0 || len(def.PrimaryKey) > 0 {
			add("order_by", "engine %s does not support ORDER BY or PRIMARY KEY", EngineName(def.Engine))
		}
		if def.PartitionBy != "" {
			add("partition_by", "engine %s does not support PARTITION BY", EngineName(def.Engine))
		}
		if def.TTL != "" {
			add("ttl", "engine %s does not support TTL", EngineName(def.Engine))
		}
		if len(def.Indexes) > 0 {
			add("indexes", "engine %s does not support data-skipping indexes", EngineName(def.Engine))
		}
		if len(def.Settings) > 0 {
			add("settings", "engine %s does not support table settings", EngineName(def.Engine))
		}
	}
	if mergeTree && len(def.OrderBy) == 0 {
		add("order_by", "%s tables need an order-by key (use tuple() for none)", EngineName(def.Engine))
	}

	names := make([]string, 0, len(def.Settings))
	for name := range def.Settings {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !settingName.MatchString(name) {
			add("settings", "invalid setting name %q", name)
		}
	}

	idxSeen := make(map[string]bool, len(def.Indexes))
	for i, idx := range def.Indexes {
		field := fmt.Sprintf("indexes[%d]", i)
		if idx.Name == "" {
			add(field, "index name is required")
			continue
		}
		if idxSeen[idx.Name] {
			add(field, "duplicate index %q", idx.Name)
		}
		idxSeen[idx.Name] = true
		if idx.Expression == "" {
			add(field, "index %q has no expression", idx.Name)
		}
		if idx.Type == "" {
			add(field, "index %q has no type", idx.Name)
		}
		if idx.Granularity < 1 {
			add(field, "index %q granularity must be positive", idx.Name)
		}
	}
	return issues
}
