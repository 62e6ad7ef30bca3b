package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newIndexesCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "indexes",
		Short: "Create store indexes and seed the known version tags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Opening the app already ensures indexes; this makes it explicit.
			app, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Store.EnsureIndexes(cmd.Context(), app.Schema.Known()); err != nil {
				return err
			}
			if err := app.EnsureDiagnosticsTopic(cmd.Context()); err != nil {
				return err
			}
			known := app.Schema.Known()
			return root.formatter(cmd).Emit(map[string]any{"versions": known}, func(w io.Writer) {
				fmt.Fprintf(w, "indexes ensured, %d version tags seeded\n", len(known))
			})
		},
	}
}
