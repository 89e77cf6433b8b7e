package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Adda-Baaj/feedsmith/internal/domain"
	"github.com/Adda-Baaj/feedsmith/internal/logger"
)

// PageFetcher downloads and extracts listing pages of one provider.
type PageFetcher struct {
	client    HTTPClient
	cfg       Provider
	extractor Extractor
	log       logger.Logger
	now       func() time.Time
	sleep     func(context.Context, time.Duration) error
	fetched   int
}

// NewPageFetcher builds a PageFetcher for cfg.
func NewPageFetcher(client HTTPClient, cfg Provider, extractor Extractor, log logger.Logger) (*PageFetcher, error) {
	if extractor == nil {
		return nil, fmt.Errorf("provider %q has no extractor", cfg.ID)
	}
	if strings.TrimSpace(cfg.SourceURL) == "" {
		return nil, fmt.Errorf("provider %q source_url is empty", cfg.ID)
	}
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &PageFetcher{
		client:    client,
		cfg:       cfg,
		extractor: extractor,
		log:       logger.Ensure(log),
		now:       time.Now,
		sleep:     sleepCtx,
	}, nil
}

// WithClock replaces the observation clock.
func (f *PageFetcher) WithClock(now func() time.Time) *PageFetcher {
	if now != nil {
		f.now = now
	}
	return f
}

// FetchPage downloads page number and extracts its entries.
func (f *PageFetcher) FetchPage(ctx context.Context, number int) (domain.Page, error) {
	if f.fetched > 0 {
		if err := f.sleep(ctx, f.cfg.RequestDelay()); err != nil {
			return domain.Page{}, err
		}
	}
	f.fetched++

	pageURL := f.extractor.PageURL(f.cfg.SourceURL, number)

	f.log.DebugObj("fetching listing page", "listing_fetch_start", map[string]any{
		"provider_id": f.cfg.ID,
		"page":        number,
		"url":         pageURL,
	})

	body, err := fetchListing(ctx, f.client, pageURL, f.cfg.ID, Headers(f.cfg))
	if err != nil {
		return domain.Page{}, err
	}

	page, err := f.extractor.Extract(body, pageURL, f.now())
	if err != nil {
		return domain.Page{}, fmt.Errorf("extract %s page %d: %w", f.cfg.ID, number, err)
	}
	page.Number = number

	if skipped := page.Skipped(); skipped > 0 {
		f.log.DebugObj("listing entries skipped", "listing_entries_skipped", map[string]any{
			"provider_id": f.cfg.ID,
			"page":        number,
			"skipped":     skipped,
			"reasons":     skipReasons(page),
		})
	}
	return page, nil
}

func skipReasons(p domain.Page) map[string]int {
	out := make(map[string]int)
	for _, e := range p.Entries {
		if e.Err != nil {
			out[e.Err.Error()]++
		}
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
