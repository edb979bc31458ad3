package generators

import (
	"fmt"
	"strings"
)

func GenerateMermaid(g Graph) string {
	var builder strings.Builder

	builder.WriteString("# Schema Dependency Diagram\n\n")
	builder.WriteString("```mermaid\nerDiagram\n")

	for _, def := range g.Nodes {
		builder.WriteString(fmt.Sprintf("    %s[\"%s %s\"] {\n", cleanName(def.QualifiedName()), kindLabel(def.Kind), def.QualifiedName()))
		keys := keyColumns(def)
		for _, col := range def.Columns {
			keyStr := ""
			if keys[col.Name] {
				keyStr = " PK"
			}
			builder.WriteString(fmt.Sprintf("        %s %s%s\n", formatMermaidType(columnType(col)), cleanName(col.Name), keyStr))
		}
		builder.WriteString("    }\n\n")
	}

	for _, e := range g.Edges {
		builder.WriteString(fmt.Sprintf("    %s ||--o{ %s : \"%s\"\n", cleanName(e.To), cleanName(e.From), e.Label))
	}

	builder.WriteString("```\n\n")
	builder.WriteString(summary(g))

	return builder.String()
}

// formatMermaidType flattens a ClickHouse type into a Mermaid attribute
// type, which may not contain parentheses or commas.
func formatMermaidType(t string) string {
	return cleanName(t)
}
