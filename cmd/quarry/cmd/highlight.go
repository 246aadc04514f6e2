package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newHighlightCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "highlight",
		Short: "Manage captured highlights",
		Long: `Highlights are passages captured manually. They are embedded at
capture time, stored append-only, and never touched by the indexer.
Priority highlights surface above regular search results.`,
	}

	cmd.AddCommand(newHighlightAddCmd())
	cmd.AddCommand(newHighlightListCmd())
	cmd.AddCommand(newHighlightRmCmd())

	return cmd
}

func newHighlightAddCmd() *cobra.Command {
	var (
		source   string
		tags     []string
		note     string
		priority bool
	)

	cmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Capture a highlight",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			app, err := newApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer app.Close()

			h, err := app.highlights.Save(cmd.Context(), text, source, tags, note, priority)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Saved highlight %s\n", h.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "", "Source label, e.g. a filename or URL")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "Tag (repeatable)")
	cmd.Flags().StringVar(&note, "note", "", "Free-form note")
	cmd.Flags().BoolVarP(&priority, "priority", "p", false, "Surface above regular results")

	return cmd
}

func newHighlightListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List highlights, newest first",
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

			all, err := app.highlights.List(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(all) == 0 {
				fmt.Fprintln(out, "No highlights.")
				return nil
			}
			for _, h := range all {
				marker := " "
				if h.Priority {
					marker = "*"
				}
				fmt.Fprintf(out, "%s%s  %s  %s\n", marker, h.ID, h.CreatedAt.Format("2006-01-02 15:04"), snippet(h.Text, 100))
			}
			return nil
		},
	}
}

func newHighlightRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a highlight",
		Args:  cobra.ExactArgs(1),
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

			if err := app.highlights.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}
