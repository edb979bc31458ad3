package generators

import (
	"fmt"
	"strings"
)

func GeneratePlantUML(g Graph) string {
	var builder strings.Builder

	builder.WriteString("@startuml\n")
	builder.WriteString("!theme plain\n")
	builder.WriteString("skinparam linetype ortho\n\n")

	for _, def := range g.Nodes {
		stereotype := ""
		if kind := kindLabel(def.Kind); kind != "TABLE" {
			stereotype = fmt.Sprintf(" <<%s>>", strings.ToLower(kind))
		}
		builder.WriteString(fmt.Sprintf("entity \"%s\" as %s%s {\n", def.QualifiedName(), cleanName(def.QualifiedName()), stereotype))

		keys := keyColumns(def)
		for _, col := range def.Columns {
			if keys[col.Name] {
				builder.WriteString(fmt.Sprintf("  * %s : %s <<key>>\n", col.Name, columnType(col)))
			}
		}

		builder.WriteString("  --\n")

		for _, col := range def.Columns {
			if !keys[col.Name] {
				builder.WriteString(fmt.Sprintf("  %s : %s\n", col.Name, columnType(col)))
			}
		}
		if def.Engine != "" {
			builder.WriteString(fmt.Sprintf("  ..\n  engine : %s\n", def.Engine))
		}

		builder.WriteString("}\n\n")
	}

	for _, e := range g.Edges {
		builder.WriteString(fmt.Sprintf("%s ||--o{ %s : %s\n", cleanName(e.To), cleanName(e.From), e.Label))
	}

	builder.WriteString("\n@enduml\n")

	return builder.String()
}
