package cmd

import (
	"chschema/internal/generate"
	"chschema/internal/plan"
	"chschema/internal/report"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Diff the schema files against the latest snapshot and write a migration",
	Long: `Loads the declarative schema, compares it with the snapshot of the last
generated migration and writes a new risk-annotated migration file plus a
fresh snapshot. Nothing is written when the schema is unchanged.

Renames cannot be inferred safely; declare them with --rename:
  --rename app.old_events=app.events
  --rename app.events:ts=timestamp`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringP("name", "n", "migration", "Migration name, used as the file slug")
	generateCmd.Flags().StringSlice("rename", nil, "Rename hint: db.old=db.new for objects, db.table:old=new for columns")
	generateCmd.Flags().Bool("dry-run", false, "Plan and render without writing anything")
	generateCmd.Flags().StringSlice("exclude", nil, "Operation key patterns to leave out of the plan")
	generateCmd.Flags().String("max-risk", "", "Fail when any operation is riskier than this level: safe, caution, danger")
	generateCmd.Flags().String("cluster", "", "Render statements with ON CLUSTER <name>")

	viper.BindPFlag("plan.renames", generateCmd.Flags().Lookup("rename"))
	viper.BindPFlag("plan.exclude", generateCmd.Flags().Lookup("exclude"))
	viper.BindPFlag("plan.max_risk", generateCmd.Flags().Lookup("max-risk"))
	viper.BindPFlag("render.cluster", generateCmd.Flags().Lookup("cluster"))
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name, _ := cmd.Flags().GetString("name")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	hints, err := plan.ParseRenameHints(cfg.Plan.Renames)
	if err != nil {
		return err
	}
	gen, err := newGenerator(ctx)
	if err != nil {
		return err
	}

	res, err := gen.Run(ctx, generate.Request{Name: name, Renames: hints, DryRun: dryRun})
	if err != nil {
		return err
	}

	suggestions := res.Plan.RenameSuggestions
	if suggestions == nil {
		suggestions = []plan.RenameSuggestion{}
	}
	return reporter.Result(report.GenerateResult{
		DryRun:            dryRun,
		Migration:         res.Migration,
		Location:          res.Location,
		Snapshot:          res.Snapshot,
		Previous:          res.Previous,
		Risk:              res.Plan.RiskSummary,
		Operations:        report.Operations(res.Plan, res.Rendered),
		RenameSuggestions: suggestions,
	})
}
