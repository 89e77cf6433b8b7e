package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adda-Baaj/feedsmith/internal/app"
	"github.com/Adda-Baaj/feedsmith/internal/pipeline"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// maxListedTitles bounds the console listing of new items per source.
const maxListedTitles = 10

var (
	bannerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Border(lipgloss.RoundedBorder()).Padding(0, 2)
	headingStyle = lipgloss.NewStyle().Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	var (
		recrawl bool
		sources []string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Crawl every enabled source and rewrite its cache and feed",
		Long: `Run the source pipelines one after another. Each pipeline loads its cache, crawls the
listing until a stop rule fires, merges the new items, writes the cache and the RSS feed and
records the outcome in the run log.

A failing source does not stop the others; the command exits with status 1 if any failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.load()
			if err != nil {
				return err
			}
			defer rt.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return generate(ctx, cmd.OutOrStdout(), rt, sources, pipeline.Options{Recrawl: recrawl})
		},
	}
	cmd.Flags().BoolVar(&recrawl, "recrawl", false, "crawl up to max_pages even for sources that poll a single page after the first run")
	cmd.Flags().StringSliceVar(&sources, "source", nil, "limit the run to these source ids (repeatable)")
	return cmd
}

func generate(ctx context.Context, out io.Writer, rt *runtime, ids []string, opts pipeline.Options) error {
	a, err := app.New(ctx, rt.cfg, rt.log)
	if err != nil {
		return err
	}
	defer a.Close()

	runner, err := a.Runner(ids)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, bannerStyle.Render("feedsmith · RSS feed generator"))
	fmt.Fprintln(out)

	runner.OnReport = func(rep pipeline.Report) { printReport(out, rep) }
	_, err = runner.Run(ctx, opts)

	fmt.Fprintln(out)
	if interrupted(err) {
		fmt.Fprintln(out, failStyle.Render("✗ Interrupted"))
		return err
	}
	if err != nil {
		fmt.Fprintln(out, failStyle.Render("✗ Some feeds failed, see the run log: "+a.RunLog().Path()))
		return err
	}
	fmt.Fprintln(out, okStyle.Render("✓ All feeds generated"))
	return nil
}

func printReport(out io.Writer, rep pipeline.Report) {
	fmt.Fprintln(out, headingStyle.Render("🔹 "+rep.Name))
	if rep.Err != nil {
		fmt.Fprintln(out, failStyle.Render("  error: "+rep.Err.Error()))
		fmt.Fprintln(out)
		return
	}

	mode := "incremental"
	if rep.FirstRun {
		mode = "first run"
	}
	fmt.Fprintf(out, "  %s, %d page(s) fetched, stopped: %s\n", mode, rep.Crawl.PagesFetched(), rep.Crawl.StopReason)
	if rep.Crawl.Err != nil {
		fmt.Fprintln(out, failStyle.Render("  crawl ended early: "+rep.Crawl.Err.Error()))
	}
	if skipped := rep.Crawl.Totals().Skipped; skipped > 0 {
		fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("  %d listing entries skipped", skipped)))
	}

	if len(rep.New) == 0 {
		fmt.Fprintln(out, "  No new items.")
	} else {
		fmt.Fprintf(out, "  %d new item(s):\n", len(rep.New))
		for i, it := range rep.New {
			if i == maxListedTitles {
				fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("    (showing first %d of %d)", maxListedTitles, len(rep.New))))
				break
			}
			fmt.Fprintf(out, "    - %s\n", it.Title)
		}
	}
	if rep.Expired > 0 {
		fmt.Fprintf(out, "  Removed %d expired item(s).\n", rep.Expired)
	}
	if rep.Evicted > 0 {
		fmt.Fprintf(out, "  Evicted %d item(s) over the cache limit.\n", rep.Evicted)
	}
	fmt.Fprintf(out, "  Cache: %d item(s), feed: %d entr%s\n\n", rep.StoredSize, rep.FeedEntries, plural(rep.FeedEntries, "y", "ies"))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// interrupted reports whether err came from a signal rather than a failure.
func interrupted(err error) bool {
	return errors.Is(err, context.Canceled)
}
