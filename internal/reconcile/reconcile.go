// Package reconcile merges freshly fetched items into a cached item set.
//
// Everything here is pure: callers load and persist the collections themselves.
package reconcile

import (
	"sort"
	"time"

	"github.com/Adda-Baaj/feedsmith/internal/domain"
)

// Bounds limits the size of the persisted set. Zero values disable a bound.
type Bounds struct {
	MaxItems int
	MaxAge   time.Duration
}

// Outcome is the result of one reconciliation.
type Outcome struct {
	// New holds fetched items whose url was not cached, in fetch order.
	New []domain.Item
	// Next is the set to persist.
	Next []domain.Item
	// Expired counts items dropped by the age bound, Evicted those dropped by the size bound.
	Expired int
	Evicted int
}

// Keys returns the identity keys of items.
func Keys(items []domain.Item) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, it := range items {
		out[it.URL] = struct{}{}
	}
	return out
}

// Reconcile merges fetched into cached. Duplicated urls collapse to their last occurrence,
// held at the position of their first one. With MaxAge the cutoff is now-MaxAge, so cached
// items age out even when they are never fetched again.
func Reconcile(cached, fetched []domain.Item, b Bounds, now time.Time) Outcome {
	known := Keys(cached)

	var fresh []domain.Item
	for _, it := range fetched {
		if _, ok := known[it.URL]; !ok {
			fresh = append(fresh, it)
		}
	}
	fresh = Dedupe(fresh)

	merged := make([]domain.Item, 0, len(cached)+len(fresh))
	merged = append(merged, cached...)
	merged = append(merged, fresh...)
	merged = Dedupe(merged)

	out := Outcome{New: fresh}

	if b.MaxAge > 0 {
		cutoff := now.Add(-b.MaxAge)
		kept := merged[:0]
		for _, it := range merged {
			if it.PublishedAt.Before(cutoff) {
				out.Expired++
				continue
			}
			kept = append(kept, it)
		}
		merged = kept
	}

	if b.MaxItems > 0 && len(merged) > b.MaxItems {
		SortNewestFirst(merged)
		out.Evicted = len(merged) - b.MaxItems
		merged = merged[:b.MaxItems]
	}

	out.Next = merged
	return out
}

// Dedupe collapses items sharing a url. The last occurrence wins and takes the position of the first.
func Dedupe(items []domain.Item) []domain.Item {
	if len(items) == 0 {
		return items
	}
	index := make(map[string]int, len(items))
	out := make([]domain.Item, 0, len(items))
	for _, it := range items {
		if i, ok := index[it.URL]; ok {
			out[i] = it
			continue
		}
		index[it.URL] = len(out)
		out = append(out, it)
	}
	return out
}

// SortNewestFirst orders items by PublishedAt descending. Equal timestamps keep their input order.
func SortNewestFirst(items []domain.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PublishedAt.After(items[j].PublishedAt)
	})
}
