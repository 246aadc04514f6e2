package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quarrydocs/quarry/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit  int
	floor  float64
	format string // "text", "json"
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed documents",
		Long: `Search ranks indexed chunks by semantic similarity plus recency,
keyword, length, and source-type boosts. Priority highlights always
come first.

Examples:
  quarry search "machine learning basics"
  quarry search "deployment checklist" --limit 5 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if opts.limit == 0 {
				opts.limit = cfg.Search.DefaultLimit
			}
			if opts.floor < 0 {
				opts.floor = cfg.Search.SimilarityThreshold
			}

			app, err := newApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer app.Close()

			results, err := app.engine.Search(cmd.Context(), query, opts.limit, opts.floor)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			if len(results) == 0 {
				fmt.Fprintln(out, "No results.")
				return nil
			}
			for i, r := range results {
				marker := " "
				if r.IsHighlight {
					marker = "*"
				}
				fmt.Fprintf(out, "%2d.%s [%.3f] %s\n", i+1, marker, r.FinalScore, r.Source)
				fmt.Fprintf(out, "      %s\n", snippet(r.Content, 160))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results")
	cmd.Flags().Float64Var(&opts.floor, "threshold", -1, fmt.Sprintf("Similarity floor (default %.1f)", search.DefaultFloor))
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

// snippet returns the first line of text, truncated to max runes.
func snippet(text string, max int) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	runes := []rune(text)
	if len(runes) > max {
		return string(runes[:max]) + "..."
	}
	return text
}
