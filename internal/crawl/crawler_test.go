package crawl

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Adda-Baaj/feedsmith/internal/domain"
)

type fakeSource struct {
	pages   map[int]domain.Page
	errs    map[int]error
	fetched []int
}

func (f *fakeSource) FetchPage(_ context.Context, number int) (domain.Page, error) {
	f.fetched = append(f.fetched, number)
	if err := f.errs[number]; err != nil {
		return domain.Page{}, err
	}
	p, ok := f.pages[number]
	if !ok {
		return domain.Page{Number: number, ContainerFound: false}, nil
	}
	return p, nil
}

var base = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func item(url string, age time.Duration) domain.Item {
	return domain.Item{URL: url, Title: "Title " + url, PublishedAt: base.Add(-age)}
}

func page(number int, hasNext bool, items ...domain.Item) domain.Page {
	p := domain.Page{Number: number, HasNext: hasNext, ContainerFound: true}
	for _, it := range items {
		p.Entries = append(p.Entries, domain.Entry{Item: it})
	}
	return p
}

// listing builds pages of perPage items with strictly decreasing dates, newest first.
func listing(pages, perPage int) map[int]domain.Page {
	out := make(map[int]domain.Page, pages)
	n := 0
	for p := 1; p <= pages; p++ {
		var items []domain.Item
		for i := 0; i < perPage; i++ {
			items = append(items, item(fmt.Sprintf("https://example.com/%03d", n), time.Duration(n)*time.Hour))
			n++
		}
		out[p] = page(p, p < pages, items...)
	}
	return out
}

func urls(items []domain.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.URL
	}
	return out
}

func keys(urls ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		out[u] = struct{}{}
	}
	return out
}

func TestFirstRunCrawlsAllPages(t *testing.T) {
	src := &fakeSource{pages: listing(3, 10)}
	res := New(src, nil).Run(context.Background(), nil, NewPolicy(10, time.Time{}))

	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if len(res.Items) != 30 {
		t.Fatalf("expected 30 items, got %d", len(res.Items))
	}
	if res.PagesFetched() != 3 {
		t.Errorf("expected 3 pages, got %d", res.PagesFetched())
	}
	if res.StopReason != StopWithoutNext.Reason {
		t.Errorf("stop reason = %q", res.StopReason)
	}
}

func TestStopsAfterPageWithCachedItem(t *testing.T) {
	src := &fakeSource{pages: map[int]domain.Page{
		1: page(1, true, item("A", 1*time.Hour), item("B", 2*time.Hour), item("X", 3*time.Hour), item("C", 4*time.Hour)),
		2: page(2, false, item("D", 5*time.Hour)),
	}}
	res := New(src, nil).Run(context.Background(), keys("X"), NewPolicy(10, time.Time{}))

	if got := urls(res.Items); len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Errorf("items = %v, want [A B]", got)
	}
	if len(src.fetched) != 1 {
		t.Errorf("fetched pages %v, want only page 1", src.fetched)
	}
	if res.StopReason != StopOnCached.Reason {
		t.Errorf("stop reason = %q", res.StopReason)
	}
	totals := res.Totals()
	if totals.Cached != 1 || totals.Behind != 1 {
		t.Errorf("cached=%d behind=%d, want 1/1", totals.Cached, totals.Behind)
	}
}

func TestRecoversExactlyMissingNewestItems(t *testing.T) {
	pages := listing(5, 10)
	var all []domain.Item
	for p := 1; p <= 5; p++ {
		all = append(all, pages[p].Items()...)
	}

	full := New(&fakeSource{pages: pages}, nil).Run(context.Background(), nil, NewPolicy(10, time.Time{}))

	known := make(map[string]struct{})
	for _, it := range all[5:] {
		known[it.URL] = struct{}{}
	}
	src := &fakeSource{pages: pages}
	res := New(src, nil).Run(context.Background(), known, NewPolicy(10, time.Time{}))

	if len(src.fetched) >= full.PagesFetched() {
		t.Errorf("incremental crawl fetched %d pages, full crawl %d", len(src.fetched), full.PagesFetched())
	}
	got := urls(res.Items)
	want := urls(all[:5])
	if len(got) != len(want) {
		t.Fatalf("recovered %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestFetchErrorKeepsPartialResults(t *testing.T) {
	boom := errors.New("connection reset")
	src := &fakeSource{
		pages: listing(3, 4),
		errs:  map[int]error{2: boom},
	}
	res := New(src, nil).Run(context.Background(), nil, NewPolicy(10, time.Time{}))

	if !errors.Is(res.Err, boom) {
		t.Fatalf("Err = %v, want wrapped %v", res.Err, boom)
	}
	if len(res.Items) != 4 {
		t.Errorf("kept %d items, want the 4 from page 1", len(res.Items))
	}
	if res.PagesFetched() != 1 {
		t.Errorf("pages fetched = %d", res.PagesFetched())
	}
}

func TestMissingContainerStops(t *testing.T) {
	src := &fakeSource{pages: map[int]domain.Page{}}
	res := New(src, nil).Run(context.Background(), nil, NewPolicy(10, time.Time{}))
	if res.StopReason != StopOnEmptyPage.Reason {
		t.Errorf("stop reason = %q", res.StopReason)
	}
	if len(res.Items) != 0 || res.Err != nil {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestPageLimit(t *testing.T) {
	src := &fakeSource{pages: listing(5, 2)}
	res := New(src, nil).Run(context.Background(), nil, NewPolicy(2, time.Time{}))
	if res.StopReason != ReasonPageLimit {
		t.Errorf("stop reason = %q", res.StopReason)
	}
	if len(res.Items) != 4 || len(src.fetched) != 2 {
		t.Errorf("items=%d fetched=%v", len(res.Items), src.fetched)
	}
}

func TestSkippedEntriesAreCounted(t *testing.T) {
	p := page(1, false, item("A", time.Hour))
	p.Entries = append(p.Entries, domain.Entry{Err: domain.ErrMissingTitle}, domain.Entry{Err: domain.ErrMissingLink})
	res := New(&fakeSource{pages: map[int]domain.Page{1: p}}, nil).Run(context.Background(), nil, NewPolicy(10, time.Time{}))
	if res.Totals().Skipped != 2 {
		t.Errorf("skipped = %d, want 2", res.Totals().Skipped)
	}
	if len(res.Items) != 1 {
		t.Errorf("items = %d", len(res.Items))
	}
}

func TestAgeWindowExcludesOldItems(t *testing.T) {
	cutoff := base.Add(-90 * 24 * time.Hour)
	src := &fakeSource{pages: map[int]domain.Page{
		1: page(1, true,
			item("new1", 24*time.Hour),
			item("new2", 48*time.Hour),
			item("old1", 100*24*time.Hour),
		),
		2: page(2, true,
			item("new3", 80*24*time.Hour),
			item("old2", 95*24*time.Hour),
			item("old3", 96*24*time.Hour),
		),
		3: page(3, false, item("new4", 85*24*time.Hour)),
	}}
	res := New(src, nil).Run(context.Background(), nil, NewPolicy(20, cutoff))

	if got := urls(res.Items); len(got) != 3 {
		t.Fatalf("items = %v, want new1 new2 new3", got)
	}
	if res.StopReason != StopWhenMostlyOld.Reason {
		t.Errorf("stop reason = %q", res.StopReason)
	}
	if res.Totals().Old != 3 {
		t.Errorf("old = %d, want 3", res.Totals().Old)
	}
}

func TestStopRules(t *testing.T) {
	cutoff := base.Add(-90 * 24 * time.Hour)
	tests := []struct {
		name   string
		stats  PageStats
		policy Policy
		want   string
	}{
		{"all old", PageStats{Total: 4, Old: 4, HasNext: true}, NewPolicy(20, cutoff), StopWhenNoneInWindow.Reason},
		{"exactly half old continues", PageStats{Total: 4, Kept: 2, Old: 2, HasNext: true}, NewPolicy(20, cutoff), ""},
		{"mostly old", PageStats{Total: 5, Kept: 2, Old: 3, HasNext: true}, NewPolicy(20, cutoff), StopWhenMostlyOld.Reason},
		{"age rules off without cutoff", PageStats{Total: 5, Kept: 0, Old: 5, HasNext: true}, NewPolicy(20, time.Time{}), ""},
		{"cached wins over age", PageStats{Total: 3, Cached: 1, Old: 2, HasNext: true}, NewPolicy(20, cutoff), StopOnCached.Reason},
		{"no next", PageStats{Total: 3, Kept: 3}, NewPolicy(20, time.Time{}), StopWithoutNext.Reason},
		{"empty", PageStats{HasNext: true}, NewPolicy(20, time.Time{}), StopOnEmptyPage.Reason},
	}
	for _, tt := range tests {
		reason, _ := tt.policy.shouldStop(tt.stats)
		if reason != tt.want {
			t.Errorf("%s: reason = %q, want %q", tt.name, reason, tt.want)
		}
	}
}

func TestNewPolicyClampsMaxPages(t *testing.T) {
	if p := NewPolicy(0, time.Time{}); p.MaxPages != 1 {
		t.Errorf("MaxPages = %d, want 1", p.MaxPages)
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &fakeSource{pages: listing(2, 2)}
	res := New(src, nil).Run(ctx, nil, NewPolicy(10, time.Time{}))
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("Err = %v", res.Err)
	}
	if len(src.fetched) != 0 {
		t.Errorf("fetched %v after cancel", src.fetched)
	}
}
