package crawl

import (
	"context"
	"fmt"

	"github.com/Adda-Baaj/feedsmith/internal/domain"
	"github.com/Adda-Baaj/feedsmith/internal/logger"
)

// PageSource fetches and extracts one listing page. Page numbers start at 1.
type PageSource interface {
	FetchPage(ctx context.Context, number int) (domain.Page, error)
}

// Result is what a crawl accumulated before it stopped.
type Result struct {
	Items      []domain.Item
	Pages      []PageStats
	StopReason string
	// Err is set when a page could not be fetched or parsed. Items still holds everything
	// collected from the pages before it.
	Err error
}

// PagesFetched is the number of pages successfully fetched.
func (r Result) PagesFetched() int { return len(r.Pages) }

// Totals sums the per page counters.
func (r Result) Totals() PageStats {
	var t PageStats
	for _, p := range r.Pages {
		t.Total += p.Total
		t.Kept += p.Kept
		t.Cached += p.Cached
		t.Old += p.Old
		t.Skipped += p.Skipped
		t.Behind += p.Behind
	}
	return t
}

// Crawler walks listing pages one at a time.
type Crawler struct {
	src PageSource
	log logger.Logger
}

// New creates a Crawler over src.
func New(src PageSource, log logger.Logger) *Crawler {
	return &Crawler{src: src, log: logger.Ensure(log)}
}

// Run fetches pages 1..policy.MaxPages, skipping items whose url is in known, until a stop
// rule fires, the page limit is reached, or a fetch fails.
func (c *Crawler) Run(ctx context.Context, known map[string]struct{}, policy Policy) Result {
	var res Result
	seen := make(map[string]struct{})

	for number := 1; number <= policy.MaxPages; number++ {
		if err := ctx.Err(); err != nil {
			res.Err = err
			res.StopReason = "cancelled"
			return res
		}

		page, err := c.src.FetchPage(ctx, number)
		if err != nil {
			c.log.WarnObj("listing page fetch failed, keeping partial results", "crawl_fetch_error", map[string]any{
				"page":  number,
				"kept":  len(res.Items),
				"error": err.Error(),
			})
			res.Err = fmt.Errorf("page %d: %w", number, err)
			res.StopReason = "fetch failed"
			return res
		}
		if !page.ContainerFound {
			c.log.WarnObj("listing container not found", "crawl_container_missing", map[string]any{
				"page": number,
				"url":  page.URL,
			})
		}

		stats := PageStats{Number: number, HasNext: page.HasNext}
		boundary := false
		for _, entry := range page.Entries {
			if !entry.OK() {
				stats.Skipped++
				continue
			}
			stats.Total++
			item := entry.Item
			if _, ok := known[item.URL]; ok {
				stats.Cached++
				boundary = true
				continue
			}
			// Entries listed after a cached one are older than it.
			if boundary {
				stats.Behind++
				continue
			}
			if !policy.Cutoff.IsZero() && item.PublishedAt.Before(policy.Cutoff) {
				stats.Old++
				continue
			}
			stats.Kept++
			if _, dup := seen[item.URL]; dup {
				continue
			}
			seen[item.URL] = struct{}{}
			res.Items = append(res.Items, item)
		}
		res.Pages = append(res.Pages, stats)

		c.log.InfoObj("listing page processed", "crawl_page", map[string]any{
			"page":    number,
			"kept":    stats.Kept,
			"cached":  stats.Cached,
			"old":     stats.Old,
			"behind":  stats.Behind,
			"skipped": stats.Skipped,
		})

		if reason, stop := policy.shouldStop(stats); stop {
			res.StopReason = reason
			return res
		}
	}

	res.StopReason = ReasonPageLimit
	return res
}
