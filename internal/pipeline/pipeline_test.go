package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Adda-Baaj/feedsmith/internal/domain"
	"github.com/Adda-Baaj/feedsmith/internal/runlog"
	"github.com/Adda-Baaj/feedsmith/internal/store"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

// listing numbers items from newest (1) to oldest; item n is n hours old.
type listing struct {
	perPage int
	pages   int
	fetched []int
	failAt  int
}

func (l *listing) item(n int) domain.Item {
	return domain.Item{
		URL:         fmt.Sprintf("https://example.test/item/%d", n),
		Title:       fmt.Sprintf("Item %d", n),
		PublishedAt: now.Add(-time.Duration(n) * time.Hour),
	}
}

func (l *listing) FetchPage(_ context.Context, number int) (domain.Page, error) {
	l.fetched = append(l.fetched, number)
	if number == l.failAt {
		return domain.Page{}, errors.New("connection reset")
	}
	p := domain.Page{Number: number, ContainerFound: true, HasNext: number < l.pages}
	if number > l.pages {
		return p, nil
	}
	for i := 1; i <= l.perPage; i++ {
		p.Entries = append(p.Entries, domain.Entry{Item: l.item((number-1)*l.perPage + i)})
	}
	return p, nil
}

func (l *listing) items(from, to int) []domain.Item {
	var out []domain.Item
	for n := from; n <= to; n++ {
		out = append(out, l.item(n))
	}
	return out
}

type feedRecorder struct {
	items []domain.Item
	err   error
}

func (f *feedRecorder) Write(items []domain.Item) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.items = append([]domain.Item(nil), items...)
	return len(items), nil
}

type notifierRecorder struct {
	sourceID string
	items    []domain.Item
	err      error
}

func (n *notifierRecorder) Notify(_ context.Context, sourceID string, items []domain.Item) error {
	n.sourceID = sourceID
	n.items = items
	return n.err
}

type brokenStore struct{ store.Store }

func (brokenStore) Save(context.Context, []domain.Item) error { return errors.New("disk full") }

func newPipeline(t *testing.T, src Source, pages *listing, st store.Store) (*Pipeline, *feedRecorder, string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "run.md")
	fw := &feedRecorder{}
	return &Pipeline{
		Source: src,
		Pages:  pages,
		Store:  st,
		Feed:   fw,
		RunLog: runlog.New(logPath, runlog.WithClock(clock)),
		Now:    clock,
	}, fw, logPath
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	return string(raw)
}

func TestFirstRunKeepsEverything(t *testing.T) {
	pages := &listing{perPage: 10, pages: 3}
	mem := store.NewMemory()
	p, fw, logPath := newPipeline(t, Source{ID: "kosmas", Name: "Kosmas", MaxPages: 10, MaxItems: 200}, pages, mem)

	rep, err := p.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !rep.FirstRun || len(rep.New) != 30 || rep.StoredSize != 30 || rep.FeedEntries != 30 {
		t.Fatalf("report = first:%v new:%d stored:%d feed:%d", rep.FirstRun, len(rep.New), rep.StoredSize, rep.FeedEntries)
	}
	if len(fw.items) != 30 {
		t.Fatalf("feed got %d items", len(fw.items))
	}
	if got := readLog(t, logPath); !strings.Contains(got, "**New items:** 30") || !strings.Contains(got, "**Source:** Kosmas") {
		t.Fatalf("run log missing success entry:\n%s", got)
	}
}

func TestRestoresRemovedNewestItems(t *testing.T) {
	pages := &listing{perPage: 10, pages: 3}
	mem := store.NewMemory(pages.items(6, 30)...)
	p, _, _ := newPipeline(t, Source{ID: "kosmas", MaxPages: 10, MaxItems: 200}, pages, mem)

	rep, err := p.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(pages.fetched) != 1 {
		t.Fatalf("fetched pages %v, want only page 1", pages.fetched)
	}
	if len(rep.New) != 5 {
		t.Fatalf("new = %d, want 5", len(rep.New))
	}
	for i, it := range rep.New {
		if want := pages.item(i + 1).URL; it.URL != want {
			t.Fatalf("new[%d] = %s, want %s", i, it.URL, want)
		}
	}
	saved, _ := mem.Load(context.Background())
	if len(saved) != 30 {
		t.Fatalf("cache size = %d, want 30", len(saved))
	}
}

func TestMagazineAgeBound(t *testing.T) {
	pages := &listing{perPage: 5, pages: 1}
	stale := domain.Item{URL: "https://example.test/stale", Title: "Stale", PublishedAt: now.Add(-100 * 24 * time.Hour)}
	mem := store.NewMemory(append(pages.items(3, 5), stale)...)
	src := Source{ID: "h7o", MaxPages: 20, MaxAge: 90 * 24 * time.Hour, SinglePageAfterFirstRun: true}
	p, fw, _ := newPipeline(t, src, pages, mem)

	rep, err := p.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Expired != 1 || rep.StoredSize != 5 || len(rep.New) != 2 {
		t.Fatalf("expired=%d stored=%d new=%d", rep.Expired, rep.StoredSize, len(rep.New))
	}
	cutoff := now.Add(-src.MaxAge)
	for _, it := range fw.items {
		if it.PublishedAt.Before(cutoff) {
			t.Fatalf("feed carries expired item %s", it.URL)
		}
	}
}

func TestBookstoreSizeBound(t *testing.T) {
	pages := &listing{perPage: 10, pages: 21}
	mem := store.NewMemory(pages.items(11, 210)...)
	p, _, _ := newPipeline(t, Source{ID: "kosmas", MaxPages: 10, MaxItems: 200}, pages, mem)

	rep, err := p.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rep.New) != 10 || rep.Evicted != 10 {
		t.Fatalf("new=%d evicted=%d", len(rep.New), rep.Evicted)
	}
	saved, _ := mem.Load(context.Background())
	if len(saved) != 200 {
		t.Fatalf("cache size = %d, want 200", len(saved))
	}
	keep := make(map[string]bool, len(saved))
	for _, it := range saved {
		keep[it.URL] = true
	}
	for n := 1; n <= 200; n++ {
		if !keep[pages.item(n).URL] {
			t.Fatalf("item %d missing from the 200 newest", n)
		}
	}
}

func TestSinglePageAfterFirstRun(t *testing.T) {
	src := Source{ID: "h7o", MaxPages: 20, MaxAge: 90 * 24 * time.Hour, SinglePageAfterFirstRun: true}
	seed := domain.Item{URL: "https://example.test/elsewhere", Title: "Seed", PublishedAt: now.Add(-24 * time.Hour)}

	t.Run("polling", func(t *testing.T) {
		pages := &listing{perPage: 5, pages: 3}
		p, _, _ := newPipeline(t, src, pages, store.NewMemory(seed))
		rep, err := p.Run(context.Background(), Options{})
		if err != nil {
			t.Fatal(err)
		}
		if rep.MaxPages != 1 || len(pages.fetched) != 1 {
			t.Fatalf("max pages %d, fetched %v", rep.MaxPages, pages.fetched)
		}
	})

	t.Run("recrawl", func(t *testing.T) {
		pages := &listing{perPage: 5, pages: 3}
		p, _, _ := newPipeline(t, src, pages, store.NewMemory(seed))
		rep, err := p.Run(context.Background(), Options{Recrawl: true})
		if err != nil {
			t.Fatal(err)
		}
		if rep.MaxPages != 20 || len(pages.fetched) != 3 {
			t.Fatalf("max pages %d, fetched %v", rep.MaxPages, pages.fetched)
		}
	})
}

func TestFetchFailureIsNotFatal(t *testing.T) {
	pages := &listing{perPage: 10, pages: 3, failAt: 2}
	p, _, _ := newPipeline(t, Source{ID: "kosmas", MaxPages: 10}, pages, store.NewMemory())

	rep, err := p.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Crawl.Err == nil || len(rep.New) != 10 {
		t.Fatalf("crawl err=%v new=%d", rep.Crawl.Err, len(rep.New))
	}
}

func TestSaveFailureLogsErrorEntry(t *testing.T) {
	pages := &listing{perPage: 2, pages: 1}
	p, fw, logPath := newPipeline(t, Source{ID: "kosmas", Name: "Kosmas"}, pages, brokenStore{store.NewMemory()})

	rep, err := p.Run(context.Background(), Options{})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("err = %v", err)
	}
	if rep.Err == nil || fw.items != nil {
		t.Fatal("feed must not be written after a failed save")
	}
	got := readLog(t, logPath)
	if !strings.Contains(got, "❌ Error") || !strings.Contains(got, "save cache: disk full") {
		t.Fatalf("run log missing error entry:\n%s", got)
	}
}

func TestNotifierFailureIsNotFatal(t *testing.T) {
	pages := &listing{perPage: 3, pages: 1}
	p, _, _ := newPipeline(t, Source{ID: "h7o"}, pages, store.NewMemory())
	n := &notifierRecorder{err: errors.New("queue down")}
	p.Notifier = n

	rep, err := p.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n.sourceID != "h7o" || len(n.items) != len(rep.New) || len(rep.New) != 3 {
		t.Fatalf("notifier got %q/%d, new %d", n.sourceID, len(n.items), len(rep.New))
	}
}

func TestNotifierSkippedWithoutNewItems(t *testing.T) {
	pages := &listing{perPage: 3, pages: 1}
	p, _, _ := newPipeline(t, Source{ID: "h7o"}, pages, store.NewMemory(pages.items(1, 3)...))
	n := &notifierRecorder{}
	p.Notifier = n

	if _, err := p.Run(context.Background(), Options{}); err != nil {
		t.Fatal(err)
	}
	if n.sourceID != "" {
		t.Fatal("notifier called without new items")
	}
}

func TestCancelledRunFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p, _, _ := newPipeline(t, Source{ID: "h7o"}, &listing{perPage: 1, pages: 1}, store.NewMemory())

	if _, err := p.Run(ctx, Options{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestRunnerContinuesAfterFailure(t *testing.T) {
	failing, _, _ := newPipeline(t, Source{ID: "kosmas"}, &listing{perPage: 1, pages: 1}, brokenStore{store.NewMemory()})
	healthy, fw, _ := newPipeline(t, Source{ID: "h7o"}, &listing{perPage: 2, pages: 1}, store.NewMemory())

	var seen []string
	r := &Runner{Pipelines: []*Pipeline{failing, healthy}, OnReport: func(rep Report) { seen = append(seen, rep.SourceID) }}
	reports, err := r.Run(context.Background(), Options{})
	if err == nil || !strings.Contains(err.Error(), "kosmas: save cache") {
		t.Fatalf("err = %v", err)
	}
	if len(reports) != 2 || reports[1].Err != nil || len(fw.items) != 2 {
		t.Fatalf("second pipeline did not complete: %+v", reports)
	}
	if strings.Join(seen, ",") != "kosmas,h7o" {
		t.Fatalf("reports seen in order %v", seen)
	}
}

type prefixEnricher struct{ calls int }

func (e *prefixEnricher) Enrich(_ context.Context, items []domain.Item) []domain.Item {
	e.calls++
	out := append([]domain.Item(nil), items...)
	for i := range out {
		if out[i].Description == "" {
			out[i].Description = "about " + out[i].Title
		}
	}
	return out
}

func TestEnricherSeesOnlyNewItems(t *testing.T) {
	pages := &listing{perPage: 4, pages: 1}
	mem := store.NewMemory(pages.items(3, 4)...)
	p, fw, _ := newPipeline(t, Source{ID: "h7o"}, pages, mem)
	enr := &prefixEnricher{}
	p.Enricher = enr

	rep, err := p.Run(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if enr.calls != 1 || len(rep.New) != 2 || rep.New[0].Description != "about Item 1" {
		t.Fatalf("calls=%d new=%+v", enr.calls, rep.New)
	}
	for _, it := range fw.items {
		if it.URL == pages.item(3).URL && it.Description != "" {
			t.Fatal("cached item was enriched")
		}
	}
}
