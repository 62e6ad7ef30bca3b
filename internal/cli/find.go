package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"tracekeeper/internal/lookup"
	"tracekeeper/internal/trace/models"
)

type findOptions struct {
	version string
	where   []string
	limit   int
}

type findResult struct {
	Version  string           `json:"version"`
	Location string           `json:"location"`
	Match    map[string]any   `json:"match"`
	Records  []map[string]any `json:"records"`
}

func newFindCommand(root *RootOptions) *cobra.Command {
	opts := &findOptions{}
	cmd := &cobra.Command{
		Use:   "find",
		Short: "Find records by attribute value across schema versions",
		Long: `Find matches records whose attributes equal every --where path=value. Paths are
resolved at --version; when nothing matches there, the pre-rename paths are tried so
records that were never migrated are still found. Values are read as JSON when they
parse (numbers, true, false, "quoted") and as plain strings otherwise.`,
		Example: `  tracectl find --where trade.type=spot --where chain.id=8453`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			match, err := parseWhere(opts.where)
			if err != nil {
				return err
			}
			app, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Lookup.Find(cmd.Context(), lookup.Query{Version: opts.version, Match: match, Limit: opts.limit})
			if err != nil {
				return err
			}
			return root.formatter(cmd).Emit(toFindResult(res), func(w io.Writer) {
				fmt.Fprintf(w, "%d record(s) at version %s, %s location\n", len(res.Records), res.Version, res.Location)
				for _, rec := range res.Records {
					fmt.Fprintf(w, "  %s  %s  %s\n", rec.ID, rec.SemconvVersion, rec.Attributes[models.AttrTradeID])
				}
			})
		},
	}
	cmd.Flags().StringVar(&opts.version, "version", "", "version the paths are written for (defaults to the current version)")
	cmd.Flags().StringArrayVar(&opts.where, "where", nil, "path=value equality, repeatable")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "maximum records (defaults to 100)")
	_ = cmd.MarkFlagRequired("where")
	return cmd
}

func parseWhere(pairs []string) (models.AttributeMatch, error) {
	match := make(models.AttributeMatch, len(pairs))
	for _, pair := range pairs {
		path, raw, ok := strings.Cut(pair, "=")
		path = strings.TrimSpace(path)
		if !ok || path == "" {
			return nil, fmt.Errorf("invalid --where %q: expected path=value", pair)
		}
		if _, dup := match[path]; dup {
			return nil, fmt.Errorf("invalid --where: %q given twice", path)
		}
		match[path] = parseValue(raw)
	}
	return match, nil
}

// parseValue reads raw as a JSON scalar, keeping integers exact, or as a string.
func parseValue(raw string) any {
	doc, err := models.DecodeAttributes([]byte(`{"v":` + raw + `}`))
	if err != nil {
		return raw
	}
	return doc["v"]
}

func toFindResult(res *lookup.Result) findResult {
	out := findResult{
		Version:  res.Version,
		Location: string(res.Location),
		Match:    map[string]any(res.Match),
		Records:  make([]map[string]any, 0, len(res.Records)),
	}
	for _, rec := range res.Records {
		out.Records = append(out.Records, map[string]any{
			"id":         rec.ID.String(),
			"attributes": map[string]any(rec.StoredAttributes()),
		})
	}
	return out
}
