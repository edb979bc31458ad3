package generators

import (
	"chschema/internal/schema"
	"fmt"
	"strings"
)

var fillColors = map[schema.Kind]string{
	schema.KindTable:            "lightblue",
	schema.KindView:             "lightgreen",
	schema.KindMaterializedView: "lightyellow",
}

func GenerateGraphviz(g Graph) string {
	var builder strings.Builder

	builder.WriteString("digraph schema {\n")
	builder.WriteString("  rankdir=LR;\n")
	builder.WriteString("  node [shape=record, style=filled, fillcolor=lightblue];\n")
	builder.WriteString("  edge [color=gray];\n\n")

	for _, def := range g.Nodes {
		title := def.QualifiedName()
		if def.Kind != schema.KindTable {
			title += " (" + kindLabel(def.Kind) + ")"
		}
		builder.WriteString(fmt.Sprintf("  %s [label=\"{%s|", cleanName(def.QualifiedName()), escapeRecord(title)))

		keys := keyColumns(def)
		var fields []string
		for _, col := range def.Columns {
			field := col.Name + ": " + columnType(col)
			if keys[col.Name] {
				field = "+" + field
			}
			fields = append(fields, escapeRecord(field))
		}

		builder.WriteString(strings.Join(fields, "\\l"))
		builder.WriteString(fmt.Sprintf("\\l}\", fillcolor=%s];\n", fillColors[def.Kind]))
	}

	builder.WriteString("\n")

	for _, e := range g.Edges {
		style := ""
		if e.Label == "writes to" {
			style = ", style=bold"
		}
		builder.WriteString(fmt.Sprintf("  %s -> %s [label=\"%s\"%s];\n", cleanName(e.From), cleanName(e.To), e.Label, style))
	}

	builder.WriteString("}\n")

	return builder.String()
}

var recordEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "{", `\{`, "}", `\}`, "|", `\|`, "<", `\<`, ">", `\>`)

// escapeRecord escapes the characters that are structural in record labels.
func escapeRecord(s string) string {
	return recordEscaper.Replace(s)
}
