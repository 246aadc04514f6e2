package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Scan the roots once and index pending files",
		Long: `Scan walks the configured roots, diffs fingerprints against the
manifest, indexes changed files, and persists the index. Unchanged
files are never re-embedded.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			app, err := newApp(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer app.Close()

			scan, err := app.coordinator.Scan(cmd.Context(), cfg.Roots)
			if err != nil {
				return err
			}

			proc, err := app.coordinator.ProcessPending(cmd.Context())
			if err != nil {
				return err
			}

			if err := app.persistVectors(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Scanned: %d discovered, %d changed, %d unchanged, %d removed\n",
				scan.Discovered, scan.Changed, scan.Unchanged, scan.Removed)
			fmt.Fprintf(out, "Indexed: %d files (%d chunks stored, %d skipped), %d failed\n",
				proc.Indexed, proc.ChunksStored, proc.ChunksSkipped, proc.Failed)
			return nil
		},
	}
}
