package feed

import (
	"fmt"
	"time"

	"github.com/Adda-Baaj/feedsmith/internal/domain"
	"github.com/Adda-Baaj/feedsmith/internal/reconcile"
	"github.com/Adda-Baaj/feedsmith/internal/store"

	"github.com/gorilla/feeds"
)

// Channel holds the channel level fields of an RSS document.
type Channel struct {
	Title       string
	Link        string
	Description string
	Language    string
}

// Emitter renders an item set into an RSS 2.0 file.
type Emitter struct {
	Channel Channel
	Path    string
	// Limit caps the number of entries, newest first. Zero emits everything.
	Limit int
	Now   func() time.Time
}

// Select returns the entries a feed will carry: newest first, capped at limit when limit > 0.
// The input slice is not modified.
func Select(items []domain.Item, limit int) []domain.Item {
	out := make([]domain.Item, len(items))
	copy(out, items)
	reconcile.SortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Render builds the RSS document for items.
func (e *Emitter) Render(items []domain.Item) (string, int, error) {
	selected := Select(items, e.Limit)

	now := time.Now
	if e.Now != nil {
		now = e.Now
	}

	f := &feeds.Feed{
		Title:       e.Channel.Title,
		Link:        &feeds.Link{Href: e.Channel.Link},
		Description: e.Channel.Description,
		Created:     now().UTC(),
	}
	for _, it := range selected {
		entry := &feeds.Item{
			Title:       it.Title,
			Link:        &feeds.Link{Href: it.URL},
			Description: it.FeedDescription(),
			Id:          it.URL,
			Created:     it.PublishedAt.UTC(),
		}
		if it.Author != "" {
			entry.Author = &feeds.Author{Name: it.Author}
		}
		f.Items = append(f.Items, entry)
	}

	rss := (&feeds.Rss{Feed: f}).RssFeed()
	rss.Language = e.Channel.Language

	doc, err := feeds.ToXML(rss)
	if err != nil {
		return "", 0, fmt.Errorf("render rss: %w", err)
	}
	return doc, len(selected), nil
}

// Write renders items and replaces the feed file. It returns the number of entries written.
func (e *Emitter) Write(items []domain.Item) (int, error) {
	doc, n, err := e.Render(items)
	if err != nil {
		return 0, err
	}
	if err := store.WriteFileAtomic(e.Path, []byte(doc)); err != nil {
		return 0, fmt.Errorf("write feed: %w", err)
	}
	return n, nil
}
