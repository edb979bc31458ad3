// Package generators renders the dependency graph of canonical definitions
// as Mermaid, PlantUML or Graphviz.
package generators

import (
	"chschema/internal/schema"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Edge points from a definition to an object it depends on.
type Edge struct {
	From  string
	To    string
	Label string
}

type Graph struct {
	Nodes       []schema.Definition
	Edges       []Edge
	GeneratedAt time.Time
}

// BuildGraph links views and materialized views to the objects they read
// from (dependsOn) and write to (to). References to objects outside defs
// are dropped.
func BuildGraph(defs []schema.Definition, generatedAt time.Time) Graph {
	g := Graph{Nodes: defs, GeneratedAt: generatedAt}
	known := make(map[string]bool, len(defs))
	for _, d := range defs {
		known[d.QualifiedName()] = true
	}
	seen := make(map[Edge]bool)
	add := func(e Edge) {
		if known[e.To] && e.From != e.To && !seen[e] {
			seen[e] = true
			g.Edges = append(g.Edges, e)
		}
	}
	for _, d := range defs {
		for _, dep := range d.DependsOn {
			add(Edge{From: d.QualifiedName(), To: dep, Label: "reads"})
		}
		if d.To != "" {
			add(Edge{From: d.QualifiedName(), To: d.To, Label: "writes to"})
		}
	}
	sort.Slice(g.Edges, func(i, j int) bool {
		a, b := g.Edges[i], g.Edges[j]
		if a.From != b.From {
			return a.From < b.From
		}
		if a.To != b.To {
			return a.To < b.To
		}
		return a.Label < b.Label
	})
	return g
}

func (g Graph) count(kind schema.Kind) int {
	n := 0
	for _, d := range g.Nodes {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

func kindLabel(k schema.Kind) string {
	switch k {
	case schema.KindView:
		return "VIEW"
	case schema.KindMaterializedView:
		return "MATERIALIZED VIEW"
	default:
		return "TABLE"
	}
}

// keyColumns returns the primary key, falling back to the sorting key.
func keyColumns(d schema.Definition) map[string]bool {
	keys := d.PrimaryKey
	if len(keys) == 0 {
		keys = d.OrderBy
	}
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[k] = true
	}
	return out
}

func columnType(c schema.Column) string {
	if c.Nullable {
		return fmt.Sprintf("Nullable(%s)", c.Type)
	}
	return c.Type
}

var nonWord = regexp.MustCompile(`[^A-Za-z0-9_]+`)

func cleanName(name string) string {
	return strings.Trim(nonWord.ReplaceAllString(name, "_"), "_")
}

func summary(g Graph) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generated on: %s\n", g.GeneratedAt.UTC().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Total Tables: %d\n", g.count(schema.KindTable))
	fmt.Fprintf(&b, "Total Views: %d\n", g.count(schema.KindView))
	fmt.Fprintf(&b, "Total Materialized Views: %d\n", g.count(schema.KindMaterializedView))
	fmt.Fprintf(&b, "Total Dependencies: %d\n", len(g.Edges))
	return b.String()
}
