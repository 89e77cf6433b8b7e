package cmd

import (
	"fmt"
	"strconv"

	"github.com/Adda-Baaj/feedsmith/internal/app"
	"github.com/Adda-Baaj/feedsmith/internal/domain"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

func newCacheCmd(opts *rootOptions) *cobra.Command {
	cache := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the item caches",
	}
	cache.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show per-source cache size and date range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.load()
			if err != nil {
				return err
			}
			defer rt.close()

			a, err := app.New(cmd.Context(), rt.cfg, rt.log)
			if err != nil {
				return err
			}
			defer a.Close()

			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("SOURCE", "BACKEND", "ITEMS", "OLDEST", "NEWEST")
			for _, src := range rt.cfg.Sources {
				items, err := a.StoreFor(src).Load(cmd.Context())
				if err != nil {
					return fmt.Errorf("source %s: %w", src.ID, err)
				}
				oldest, newest := dateRange(items)
				t.Row(src.ID, rt.cfg.Cache.Backend, strconv.Itoa(len(items)), oldest, newest)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return nil
		},
	})
	return cache
}

func dateRange(items []domain.Item) (string, string) {
	if len(items) == 0 {
		return "-", "-"
	}
	oldest, newest := items[0].PublishedAt, items[0].PublishedAt
	for _, it := range items[1:] {
		if it.PublishedAt.Before(oldest) {
			oldest = it.PublishedAt
		}
		if it.PublishedAt.After(newest) {
			newest = it.PublishedAt
		}
	}
	const layout = "2006-01-02"
	return oldest.UTC().Format(layout), newest.UTC().Format(layout)
}
