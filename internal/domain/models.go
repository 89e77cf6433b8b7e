package domain

import (
	"errors"
	"strings"
	"time"
)

// Item is one listing entry. URL is its identity key across fetch, cache and log.
type Item struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	PublishedAt time.Time `json:"date"`
	Authors     []string  `json:"authors,omitempty"`
	Author      string    `json:"author,omitempty"`
	Category    string    `json:"category,omitempty"`
}

// FeedDescription is the description rendered into feeds: the item description followed by
// the author and category when the source provides them.
func (it Item) FeedDescription() string {
	parts := make([]string, 0, 3)
	if d := strings.TrimSpace(it.Description); d != "" {
		parts = append(parts, d)
	} else if t := strings.TrimSpace(it.Title); t != "" {
		parts = append(parts, t)
	}
	if it.Author != "" {
		parts = append(parts, "Author: "+it.Author)
	}
	if it.Category != "" {
		parts = append(parts, "Category: "+it.Category)
	}
	return strings.Join(parts, " | ")
}

// Extraction errors for a single listing entry.
var (
	ErrMissingTitle = errors.New("entry has no title")
	ErrMissingLink  = errors.New("entry has no link")
	ErrMissingDate  = errors.New("entry has no parseable date")
	ErrDuplicate    = errors.New("entry repeats a url already seen on this page")
)

// Entry is the outcome of extracting one listing entry: either an Item or the reason it was skipped.
type Entry struct {
	Item Item
	Err  error
}

// OK reports whether the entry produced an item.
func (e Entry) OK() bool { return e.Err == nil }

// Page is one fetched listing page after extraction.
type Page struct {
	Number         int
	URL            string
	Entries        []Entry
	HasNext        bool
	ContainerFound bool
}

// Items returns the successfully extracted items in page order.
func (p Page) Items() []Item {
	out := make([]Item, 0, len(p.Entries))
	for _, e := range p.Entries {
		if e.OK() {
			out = append(out, e.Item)
		}
	}
	return out
}

// Skipped counts entries that failed extraction.
func (p Page) Skipped() int {
	n := 0
	for _, e := range p.Entries {
		if !e.OK() {
			n++
		}
	}
	return n
}
