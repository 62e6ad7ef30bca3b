package cli

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"tracekeeper/internal/migrator"
)

type migrateOptions struct {
	from      string
	to        string
	batchSize int
}

type migrateResult struct {
	From     string         `json:"from"`
	To       string         `json:"to"`
	Batches  int            `json:"batches"`
	Records  int            `json:"records"`
	Renamed  int            `json:"renamed"`
	Statuses map[string]int `json:"statuses"`
	Failures []string       `json:"failures,omitempty"`
}

func newMigrateCommand(root *RootOptions) *cobra.Command {
	opts := &migrateOptions{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate every record tagged --from to --to",
		Long: `Migrate pages through the records tagged with the source version and applies
the target version's attribute renames. Old paths are kept; re-running is a no-op.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			to := opts.to
			if to == "" {
				to = app.Schema.Current()
			}
			batch := opts.batchSize
			if batch <= 0 {
				batch = app.Pipeline.Migration.BatchSize
			}

			job, err := app.Migrator.MigrateVersion(cmd.Context(), opts.from, to, batch)
			if err != nil {
				return err
			}
			return root.formatter(cmd).Emit(toMigrateResult(job), func(w io.Writer) {
				fmt.Fprintf(w, "migrated %s -> %s: %d records in %d batches, %d renames\n",
					job.From, job.To, job.Records, job.Batches, job.Renamed)
				statuses := make([]string, 0, len(job.Statuses))
				for st := range job.Statuses {
					statuses = append(statuses, string(st))
				}
				slices.Sort(statuses)
				for _, st := range statuses {
					fmt.Fprintf(w, "  %-10s %d\n", st, job.Statuses[migrator.Status(st)])
				}
				for _, f := range job.Failures {
					fmt.Fprintf(w, "  failed %s: %v\n", f.ID, f.Err)
				}
			})
		},
	}
	cmd.Flags().StringVar(&opts.from, "from", "", "source version tag")
	cmd.Flags().StringVar(&opts.to, "to", "", "target version tag (defaults to the current version)")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "records per page (defaults to the pipeline setting)")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

func toMigrateResult(job *migrator.JobReport) migrateResult {
	out := migrateResult{
		From:     job.From,
		To:       job.To,
		Batches:  job.Batches,
		Records:  job.Records,
		Renamed:  job.Renamed,
		Statuses: make(map[string]int, len(job.Statuses)),
	}
	for st, n := range job.Statuses {
		out.Statuses[string(st)] = n
	}
	for _, f := range job.Failures {
		out.Failures = append(out.Failures, fmt.Sprintf("%s: %v", f.ID, f.Err))
	}
	return out
}
