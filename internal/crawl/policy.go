package crawl

import "time"

// PageStats summarises how the entries of one page were classified.
type PageStats struct {
	Number  int
	Total   int // successfully extracted items
	Kept    int
	Cached  int
	Old     int
	Skipped int
	Behind  int // listed after a cached item on the same page
	HasNext bool
}

// StopRule is a named predicate evaluated after every page. The first matching rule ends the crawl.
type StopRule struct {
	Reason string
	Match  func(PageStats) bool
}

var (
	// StopOnEmptyPage fires when the page yielded no items at all, including a missing listing container.
	StopOnEmptyPage = StopRule{Reason: "page has no items", Match: func(s PageStats) bool { return s.Total == 0 }}

	// StopOnCached fires once any already cached item is seen. Listings are newest first,
	// so everything older is known.
	StopOnCached = StopRule{Reason: "cached item seen", Match: func(s PageStats) bool { return s.Cached > 0 }}

	// StopWhenNoneInWindow fires when no item on the page is inside the age window.
	StopWhenNoneInWindow = StopRule{Reason: "no items within age window", Match: func(s PageStats) bool { return s.Kept == 0 }}

	// StopWhenMostlyOld fires when more than half of the page is older than the cutoff.
	StopWhenMostlyOld = StopRule{Reason: "more than half of the page is older than the cutoff", Match: func(s PageStats) bool { return s.Old*2 > s.Total }}

	// StopWithoutNext fires when the page carries no link to a further page.
	StopWithoutNext = StopRule{Reason: "no next page", Match: func(s PageStats) bool { return !s.HasNext }}
)

// ReasonPageLimit is reported when the crawl ran through MaxPages without another rule firing.
const ReasonPageLimit = "page limit reached"

// Policy decides how far a crawl goes.
type Policy struct {
	MaxPages int
	// Cutoff excludes items published before it. Zero disables age filtering.
	Cutoff time.Time
	Rules  []StopRule
}

// NewPolicy builds the standard policy. With a zero cutoff only the empty page, cached item and
// next link rules apply; a non-zero cutoff adds the age window rules.
func NewPolicy(maxPages int, cutoff time.Time) Policy {
	rules := []StopRule{StopOnEmptyPage, StopOnCached}
	if !cutoff.IsZero() {
		rules = append(rules, StopWhenNoneInWindow, StopWhenMostlyOld)
	}
	rules = append(rules, StopWithoutNext)
	if maxPages < 1 {
		maxPages = 1
	}
	return Policy{MaxPages: maxPages, Cutoff: cutoff, Rules: rules}
}

// shouldStop returns the reason of the first matching rule.
func (p Policy) shouldStop(s PageStats) (string, bool) {
	for _, r := range p.Rules {
		if r.Match != nil && r.Match(s) {
			return r.Reason, true
		}
	}
	return "", false
}
