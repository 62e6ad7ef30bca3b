package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

type schemaResult struct {
	Current string      `json:"current"`
	Known   []string    `json:"known"`
	Changes []renameRow `json:"changes,omitempty"`
}

type renameRow struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func newSchemaCommand(root *RootOptions) *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Show version tags and the renames between them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			res := schemaResult{Current: app.Schema.Current(), Known: app.Schema.Known()}
			if from != "" {
				renames, err := app.Schema.DescribeChanges(from, res.Current)
				if err != nil {
					return err
				}
				for _, r := range renames {
					res.Changes = append(res.Changes, renameRow{From: r.From, To: r.To})
				}
			}
			return root.formatter(cmd).Emit(res, func(w io.Writer) {
				fmt.Fprintf(w, "current: %s\nknown:   %v\n", res.Current, res.Known)
				for _, c := range res.Changes {
					fmt.Fprintf(w, "  %s -> %s\n", c.From, c.To)
				}
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "list the renames from this version to the current one")
	return cmd
}
