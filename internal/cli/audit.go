package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"tracekeeper/internal/quality"
)

func newAuditCommand(root *RootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Scan the corpus for type drift, time gaps and field bloat",
		Long: `Audit runs the quality scans and prints the report. With --out the report is
also written to a file; a .zst suffix compresses it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.Auditor.Audit(cmd.Context())
			if err != nil {
				return err
			}
			if out != "" {
				if err := quality.WriteReportFile(out, report); err != nil {
					return err
				}
			}
			return root.formatter(cmd).Emit(report, func(w io.Writer) {
				fmt.Fprintf(w, "mixed types: %d\n", len(report.MixedTypes))
				for _, f := range report.MixedTypes {
					fmt.Fprintf(w, "  %s %v\n", f.Path, f.Types)
				}
				fmt.Fprintf(w, "time gaps over %.0fs: %d\n", report.TimeGapThresholdSeconds, len(report.TimeGaps))
				for _, f := range report.TimeGaps {
					fmt.Fprintf(w, "  %s %.0fs\n", f.RecordID, f.GapSeconds)
				}
				fmt.Fprintf(w, "distinct top-level fields: %d (max %d)\n", report.DistinctTopLevelFields, report.MaxFields)
				if out != "" {
					fmt.Fprintf(w, "report written to %s\n", out)
				}
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the JSON report to this file")
	return cmd
}
