// Package pipeline runs one source end to end: load cache, crawl, reconcile, save, emit the
// feed, record the run and announce new items.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Adda-Baaj/feedsmith/internal/crawl"
	"github.com/Adda-Baaj/feedsmith/internal/domain"
	"github.com/Adda-Baaj/feedsmith/internal/logger"
	"github.com/Adda-Baaj/feedsmith/internal/reconcile"
	"github.com/Adda-Baaj/feedsmith/internal/runlog"
	"github.com/Adda-Baaj/feedsmith/internal/store"
)

// FeedWriter replaces the feed file with the given item set.
type FeedWriter interface {
	Write(items []domain.Item) (int, error)
}

// RunLogger records the outcome of a run.
type RunLogger interface {
	LogRun(e runlog.Entry) error
}

// Notifier announces items that were not in the cache before this run.
type Notifier interface {
	Notify(ctx context.Context, sourceID string, items []domain.Item) error
}

// Enricher completes items the listing described only partially.
type Enricher interface {
	Enrich(ctx context.Context, items []domain.Item) []domain.Item
}

// Source holds the per-source crawl and cache limits.
type Source struct {
	ID   string
	Name string
	// MaxPages caps the crawl. Zero means a single page.
	MaxPages int
	// MaxAge drops cached items older than now-MaxAge and enables the age stop rules.
	MaxAge time.Duration
	// MaxItems keeps only the newest MaxItems cached items.
	MaxItems int
	// SinglePageAfterFirstRun limits runs with a non-empty cache to page 1.
	SinglePageAfterFirstRun bool
}

// Pipeline wires one source's collaborators. Enricher, RunLog and Notifier are optional.
type Pipeline struct {
	Source   Source
	Pages    crawl.PageSource
	Store    store.Store
	Feed     FeedWriter
	Enricher Enricher
	RunLog   RunLogger
	Notifier Notifier
	Log      logger.Logger
	Now      func() time.Time
}

// Options adjust a single run.
type Options struct {
	// Recrawl ignores SinglePageAfterFirstRun.
	Recrawl bool
}

// Report summarises a run.
type Report struct {
	SourceID    string
	Name        string
	FirstRun    bool
	MaxPages    int
	Crawl       crawl.Result
	New         []domain.Item
	CachedSize  int
	StoredSize  int
	Expired     int
	Evicted     int
	FeedEntries int
	Duration    time.Duration
	Err         error
}

// Run executes the pipeline once. Fetch failures end the crawl early but the run still
// completes with whatever was collected; cache and feed failures fail the run and are recorded
// in the run log.
func (p *Pipeline) Run(ctx context.Context, opts Options) (Report, error) {
	log := logger.Ensure(p.Log)
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	started := now()
	rep := Report{SourceID: p.Source.ID, Name: p.name()}

	fail := func(err error) (Report, error) {
		rep.Err = err
		rep.Duration = now().Sub(started)
		log.ErrorObj("pipeline failed", "pipeline_error", map[string]any{
			"source_id": p.Source.ID,
			"error":     err.Error(),
		})
		p.record(log, runlog.Entry{Source: rep.Name, Err: err})
		return rep, err
	}

	cached, err := p.Store.Load(ctx)
	if err != nil {
		return fail(fmt.Errorf("load cache: %w", err))
	}
	rep.CachedSize = len(cached)
	rep.FirstRun = len(cached) == 0
	rep.MaxPages = p.maxPages(rep.FirstRun, opts)

	var cutoff time.Time
	if p.Source.MaxAge > 0 {
		cutoff = started.Add(-p.Source.MaxAge)
	}

	log.InfoObj("pipeline started", "pipeline_start", map[string]any{
		"source_id":  p.Source.ID,
		"first_run":  rep.FirstRun,
		"cached":     rep.CachedSize,
		"max_pages":  rep.MaxPages,
		"age_cutoff": cutoff,
		"recrawl":    opts.Recrawl,
	})

	rep.Crawl = crawl.New(p.Pages, log).Run(ctx, reconcile.Keys(cached), crawl.NewPolicy(rep.MaxPages, cutoff))
	if err := rep.Crawl.Err; err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return fail(fmt.Errorf("crawl interrupted: %w", err))
	}

	// Crawl.Items never contains cached urls, so only new items are enriched.
	if p.Enricher != nil && len(rep.Crawl.Items) > 0 {
		rep.Crawl.Items = p.Enricher.Enrich(ctx, rep.Crawl.Items)
	}

	outcome := reconcile.Reconcile(cached, rep.Crawl.Items, reconcile.Bounds{
		MaxItems: p.Source.MaxItems,
		MaxAge:   p.Source.MaxAge,
	}, now())
	rep.New = outcome.New
	rep.Expired = outcome.Expired
	rep.Evicted = outcome.Evicted
	rep.StoredSize = len(outcome.Next)

	if err := p.Store.Save(ctx, outcome.Next); err != nil {
		return fail(fmt.Errorf("save cache: %w", err))
	}

	n, err := p.Feed.Write(outcome.Next)
	if err != nil {
		return fail(fmt.Errorf("emit feed: %w", err))
	}
	rep.FeedEntries = n

	p.record(log, runlog.Entry{Source: rep.Name, NewCount: len(rep.New), Titles: titles(rep.New)})

	if p.Notifier != nil && len(rep.New) > 0 {
		if err := p.Notifier.Notify(ctx, p.Source.ID, rep.New); err != nil {
			log.WarnObj("new item notification failed", "pipeline_notify_error", map[string]any{
				"source_id": p.Source.ID,
				"error":     err.Error(),
			})
		}
	}

	rep.Duration = now().Sub(started)
	log.InfoObj("pipeline finished", "pipeline_done", map[string]any{
		"source_id":    p.Source.ID,
		"pages":        rep.Crawl.PagesFetched(),
		"stop_reason":  rep.Crawl.StopReason,
		"new":          len(rep.New),
		"stored":       rep.StoredSize,
		"expired":      rep.Expired,
		"evicted":      rep.Evicted,
		"feed_entries": rep.FeedEntries,
		"duration_ms":  rep.Duration.Milliseconds(),
	})
	return rep, nil
}

func (p *Pipeline) name() string {
	if p.Source.Name != "" {
		return p.Source.Name
	}
	return p.Source.ID
}

func (p *Pipeline) maxPages(firstRun bool, opts Options) int {
	if !firstRun && p.Source.SinglePageAfterFirstRun && !opts.Recrawl {
		return 1
	}
	return max(p.Source.MaxPages, 1)
}

// record writes e to the run log. A run log failure never changes the run's outcome.
func (p *Pipeline) record(log logger.Logger, e runlog.Entry) {
	if p.RunLog == nil {
		return
	}
	if err := p.RunLog.LogRun(e); err != nil {
		log.WarnObj("run log write failed", "runlog_write_error", map[string]any{
			"source_id": p.Source.ID,
			"error":     err.Error(),
		})
	}
}

func titles(items []domain.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Title
	}
	return out
}
