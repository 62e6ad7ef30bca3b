package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

type regionStatusResult struct {
	Region     string `json:"region"`
	Up         bool   `json:"up"`
	StatusCode int    `json:"status_code,omitempty"`
	LatencyMS  int64  `json:"latency_ms"`
	Error      string `json:"error,omitempty"`
}

func newRegionsCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regions",
		Short: "Inspect dispatch regions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Check every region that publishes a status URL",
		Long: `Status checks each region's status_url concurrently. A region is up when it
answers 2xx. The command fails when any checked region is down.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			statuses := app.Regions.CheckAll(cmd.Context())
			results := make([]regionStatusResult, 0, len(statuses))
			down := 0
			for _, st := range statuses {
				res := regionStatusResult{
					Region:     st.Region,
					Up:         st.Up,
					StatusCode: st.StatusCode,
					LatencyMS:  st.Latency.Milliseconds(),
				}
				if st.Err != nil {
					res.Error = st.Err.Error()
				}
				if !st.Up {
					down++
				}
				results = append(results, res)
			}

			err = root.formatter(cmd).Emit(results, func(w io.Writer) {
				if len(results) == 0 {
					fmt.Fprintln(w, "no region publishes a status_url")
					return
				}
				for _, r := range results {
					state := "up"
					if !r.Up {
						state = "DOWN"
					}
					fmt.Fprintf(w, "%-6s %-4s %4dms", r.Region, state, r.LatencyMS)
					if r.Error != "" {
						fmt.Fprintf(w, "  %s", r.Error)
					} else if !r.Up {
						fmt.Fprintf(w, "  status %d", r.StatusCode)
					}
					fmt.Fprintln(w)
				}
			})
			if err != nil {
				return err
			}
			if down > 0 {
				return fmt.Errorf("%d of %d region(s) down", down, len(results))
			}
			return nil
		},
	})
	return cmd
}
