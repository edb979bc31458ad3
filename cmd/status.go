package cmd

import (
	"chschema/internal/errdefs"
	"chschema/internal/migrate"
	"chschema/internal/report"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show every migration and whether it is applied, pending or drifted",
	Long: `Joins the migration files with the journal. Applied migrations whose file
changed since they ran are reported as drifted and make the command fail;
journal entries whose file is gone are reported as missing.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := newController(ctx, false)
	if err != nil {
		return err
	}
	defer c.Close()

	statuses, err := c.Status(ctx)
	if err != nil {
		return err
	}

	var drifts []errdefs.Drift
	for _, st := range statuses {
		if st.State == migrate.StateDrifted {
			drifts = append(drifts, errdefs.Drift{Migration: st.Name, Recorded: st.RecordedChecksum, Actual: st.Checksum})
		}
	}
	if len(drifts) == 0 {
		return reporter.Result(report.NewStatusResult(statuses))
	}
	// the JSON envelope carries the drifts in its error payload
	if !reporter.JSON() {
		if err := reporter.Result(report.NewStatusResult(statuses)); err != nil {
			return err
		}
	}
	return &errdefs.ChecksumMismatchError{Drifts: drifts}
}
