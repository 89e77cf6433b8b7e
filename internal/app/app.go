// Package app turns a loaded configuration into runnable pipelines.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Adda-Baaj/feedsmith/internal/config"
	"github.com/Adda-Baaj/feedsmith/internal/enrich"
	"github.com/Adda-Baaj/feedsmith/internal/feed"
	"github.com/Adda-Baaj/feedsmith/internal/logger"
	"github.com/Adda-Baaj/feedsmith/internal/pipeline"
	"github.com/Adda-Baaj/feedsmith/internal/runlog"
	"github.com/Adda-Baaj/feedsmith/internal/store"
	"github.com/Adda-Baaj/feedsmith/pkg/httpclient"
	"github.com/Adda-Baaj/feedsmith/pkg/providers"
	"github.com/Adda-Baaj/feedsmith/pkg/publishers"
)

// App owns the long-lived resources shared by all pipelines of a run.
type App struct {
	cfg        *config.Config
	log        logger.Logger
	client     httpclient.Client
	extractors providers.ExtractorRegistry
	runLog     *runlog.Log

	bolt     *store.BoltDB
	notifier *publishers.Notifier
}

// Option customises an App.
type Option func(*App)

// WithHTTPClient replaces the resty client built from the http config.
func WithHTTPClient(c httpclient.Client) Option {
	return func(a *App) {
		if c != nil {
			a.client = c
		}
	}
}

// WithExtractors replaces the default extractor registry.
func WithExtractors(r providers.ExtractorRegistry) Option {
	return func(a *App) {
		if r != nil {
			a.extractors = r
		}
	}
}

// New prepares an App. The bolt database and the publishers are opened here; Close releases them.
func New(ctx context.Context, cfg *config.Config, log logger.Logger, opts ...Option) (*App, error) {
	a := &App{
		cfg:        cfg,
		log:        logger.Ensure(log),
		client:     httpclient.NewRestyClient(cfg.Timeout()),
		extractors: providers.DefaultExtractorRegistry(),
		runLog: runlog.New(cfg.RunLog.Path,
			runlog.WithRetention(cfg.RunLogRetention()),
			runlog.WithMaxTitles(cfg.RunLog.MaxTitles),
		),
	}
	for _, opt := range opts {
		opt(a)
	}

	if cfg.Cache.Backend == "bolt" {
		db, err := store.OpenBolt(cfg.Cache.BoltPath)
		if err != nil {
			return nil, err
		}
		a.bolt = db
	}

	if path := strings.TrimSpace(cfg.PublishersFile); path != "" {
		n, err := loadNotifier(ctx, path, a.log)
		if err != nil {
			return nil, errors.Join(err, a.bolt.Close())
		}
		a.notifier = n
	}
	return a, nil
}

func loadNotifier(ctx context.Context, path string, log logger.Logger) (*publishers.Notifier, error) {
	set, err := publishers.LoadConfigs(path)
	if err != nil {
		return nil, fmt.Errorf("publishers: %w", err)
	}
	pubs, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), set.Enabled(), log)
	if err != nil {
		return nil, fmt.Errorf("publishers: %w", err)
	}
	log.InfoObj("publishers ready", "publishers_loaded", map[string]any{
		"file":    path,
		"enabled": len(pubs),
	})
	return publishers.NewNotifier(pubs, log), nil
}

// Close releases the cache database and publisher clients.
func (a *App) Close() error {
	return errors.Join(a.notifier.Close(), a.bolt.Close())
}

// RunLog is the shared run log.
func (a *App) RunLog() *runlog.Log { return a.runLog }

// Sources returns the enabled sources, or the named ones when ids is non-empty. Naming a
// disabled source selects it anyway.
func (a *App) Sources(ids []string) ([]config.Source, error) {
	if len(ids) == 0 {
		return a.cfg.EnabledSources(), nil
	}
	out := make([]config.Source, 0, len(ids))
	for _, id := range ids {
		src, ok := a.cfg.SourceByID(strings.TrimSpace(id))
		if !ok {
			return nil, fmt.Errorf("unknown source %q", id)
		}
		out = append(out, src)
	}
	return out, nil
}

// StoreFor returns the cache of src on the configured backend.
func (a *App) StoreFor(src config.Source) store.Store {
	if a.bolt != nil {
		return a.bolt.Source(src.ID)
	}
	return store.NewJSONFile(src.CacheFile)
}

// Provider maps src onto the provider description the page fetcher needs.
func (a *App) Provider(src config.Source) providers.Provider {
	return providers.Provider{
		ID:        src.ID,
		Type:      src.Type,
		SourceURL: src.URL,
		UserAgent: a.cfg.HTTP.UserAgent,
		Delay:     a.cfg.RequestDelay(),
	}
}

// Pipeline assembles the pipeline of one source.
func (a *App) Pipeline(src config.Source) (*pipeline.Pipeline, error) {
	prov := a.Provider(src)
	extractor, err := a.extractors.ExtractorFor(prov)
	if err != nil {
		return nil, err
	}
	pages, err := providers.NewPageFetcher(a.client, prov, extractor, a.log)
	if err != nil {
		return nil, err
	}

	p := &pipeline.Pipeline{
		Source: pipeline.Source{
			ID:                      src.ID,
			Name:                    src.DisplayName(),
			MaxPages:                src.MaxPages,
			MaxAge:                  src.MaxAgeDuration(),
			MaxItems:                src.MaxItems,
			SinglePageAfterFirstRun: src.SinglePageAfterFirstRun,
		},
		Pages: pages,
		Store: a.StoreFor(src),
		Feed: &feed.Emitter{
			Channel: feed.Channel{
				Title:       src.Feed.Title,
				Link:        src.FeedLink(),
				Description: src.Feed.Description,
				Language:    src.Feed.Language,
			},
			Path:  src.FeedFile,
			Limit: src.FeedLimit,
		},
		RunLog: a.runLog,
		Log:    a.log,
	}
	if src.EnrichDescriptions {
		p.Enricher = enrich.New(a.client, providers.Headers(prov), prov.RequestDelay(), a.log)
	}
	if a.notifier.Len() > 0 {
		p.Notifier = a.notifier
	}
	return p, nil
}

// Runner builds a sequential runner over the selected sources.
func (a *App) Runner(ids []string) (*pipeline.Runner, error) {
	sources, err := a.Sources(ids)
	if err != nil {
		return nil, err
	}
	r := &pipeline.Runner{}
	for _, src := range sources {
		p, err := a.Pipeline(src)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.ID, err)
		}
		r.Pipelines = append(r.Pipelines, p)
	}
	return r, nil
}
