package cmd

import (
	"fmt"

	"github.com/Adda-Baaj/feedsmith/internal/feed"

	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "inspect <feed.xml>",
		Short: "List the entries of a generated feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := feed.Inspect(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n%s (%s), %d entries\n\n", headingStyle.Render(s.Title), s.Link, s.Language, len(s.Entries))
			for i, e := range s.Entries {
				if limit > 0 && i == limit {
					fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("... %d more", len(s.Entries)-limit)))
					break
				}
				published := "-"
				if !e.Published.IsZero() {
					published = e.Published.UTC().Format("2006-01-02 15:04")
				}
				fmt.Fprintf(out, "%3d. %s  %s\n     %s\n", i+1, published, e.Title, dimStyle.Render(e.Link))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "entries to list, 0 for all")
	return cmd
}
