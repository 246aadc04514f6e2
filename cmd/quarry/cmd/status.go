package cmd

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/quarrydocs/quarry/internal/index"
)

func newStatusCmd() *cobra.Command {
	var format string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-file indexing state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			app, err := newApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer app.Close()

			files := app.coordinator.Status()
			counts := app.coordinator.Counts()

			out := cmd.OutOrStdout()
			if format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"files":        files,
					"counts":       counts,
					"total_chunks": app.vectors.Count(),
				})
			}

			fmt.Fprintf(out, "Files: %d tracked, %d chunks stored\n", len(files), app.vectors.Count())
			for _, state := range []index.State{
				index.StateIndexed, index.StatePending, index.StateIndexing,
				index.StateFailed, index.StateDiscovered,
			} {
				if n := counts[state]; n > 0 {
					fmt.Fprintf(out, "  %-10s %d\n", state, n)
				}
			}

			if verbose {
				paths := make([]string, 0, len(files))
				for path := range files {
					paths = append(paths, path)
				}
				sort.Strings(paths)
				for _, path := range paths {
					fs := files[path]
					fmt.Fprintf(out, "%-10s %s", fs.State, path)
					if fs.LastError != "" {
						fmt.Fprintf(out, " (%s)", fs.LastError)
					}
					fmt.Fprintln(out)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "List every tracked file")

	return cmd
}
