// Package cli implements tracectl, the operator command line for migrations,
// audits and store maintenance.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"tracekeeper/internal/bootstrap"
	"tracekeeper/internal/platform/config"
	"tracekeeper/internal/platform/logger"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose      bool
	Format       string
	PipelinePath string
	Driver       string

	// OpenApp builds the pipeline; tests swap it for a preloaded one.
	OpenApp func(ctx context.Context, cfg config.Server, log *slog.Logger) (*bootstrap.App, error)
}

// NewRootCommand creates the root command for tracectl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{OpenApp: bootstrap.New})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tracectl",
		Short: "tracectl operates the trace integrity pipeline",
		Long:  "Run schema migrations, quality audits, attribute lookups and store maintenance against the configured trace store.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log to stderr")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.PipelinePath, "pipeline", "", "pipeline YAML (defaults to $PIPELINE_CONFIG)")
	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", "", "store driver override (memory|postgres|mongo)")

	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newAuditCommand(opts))
	cmd.AddCommand(newIndexesCommand(opts))
	cmd.AddCommand(newSchemaCommand(opts))
	cmd.AddCommand(newFindCommand(opts))
	cmd.AddCommand(newRegionsCommand(opts))
	return cmd
}

// open builds the app from the environment with flag overrides applied.
func (o *RootOptions) open(cmd *cobra.Command) (*bootstrap.App, error) {
	cfg := config.FromEnv()
	if o.PipelinePath != "" {
		cfg.PipelineConfigPath = o.PipelinePath
	}
	if o.Driver != "" {
		cfg.Store.Driver = o.Driver
	}

	log := slog.New(slog.DiscardHandler)
	if o.Verbose {
		log = logger.New(os.Stderr, "debug")
	}
	return o.OpenApp(cmd.Context(), cfg, log)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}
