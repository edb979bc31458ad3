package cmd

import (
	"chschema/internal/generators"
	"chschema/internal/report"
	"chschema/internal/schema"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

var graphFormats = map[string]string{
	"mermaid":  ".md",
	"plantuml": ".puml",
	"graphviz": ".dot",
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Render the declared schema and its view dependencies as a diagram",
	Long: `Generates a diagram of the declared tables and views, with an edge for
every table a view reads from or a materialized view writes to.

Examples:
  chschema graph -f mermaid
  chschema graph -f plantuml --file docs/schema.puml
  chschema graph -f graphviz --file schema.dot`,
	Args: cobra.NoArgs,
	RunE: runGraph,
}

func init() {
	rootCmd.AddCommand(graphCmd)

	graphCmd.Flags().StringP("format", "f", "mermaid", "Diagram format: mermaid, plantuml, graphviz")
	graphCmd.Flags().String("file", "", "Output file path (default: schema.<ext>)")
}

func runGraph(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	file, _ := cmd.Flags().GetString("file")

	ext, ok := graphFormats[format]
	if !ok {
		return fmt.Errorf("invalid format '%s'. Valid formats: mermaid, plantuml, graphviz", format)
	}
	if file == "" {
		file = "schema" + ext
	}

	raw, err := schemaSource().Definitions(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load schema: %w", err)
	}
	defs, err := schema.Canonicalize(raw, canonicalOptions())
	if err != nil {
		return err
	}

	g := generators.BuildGraph(defs, time.Now().UTC())
	var content string
	switch format {
	case "mermaid":
		content = generators.GenerateMermaid(g)
	case "plantuml":
		content = generators.GeneratePlantUML(g)
	case "graphviz":
		content = generators.GenerateGraphviz(g)
	}

	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(file, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	return reporter.Result(report.GraphResult{
		Format:  format,
		Output:  file,
		Objects: len(g.Nodes),
		Edges:   len(g.Edges),
	})
}
