package feed

import (
	"fmt"
	"os"
	"time"

	"github.com/mmcdole/gofeed"
)

// Summary describes an emitted feed as a reader would see it.
type Summary struct {
	Title    string
	Link     string
	Language string
	Entries  []SummaryEntry
}

// SummaryEntry is one parsed feed entry.
type SummaryEntry struct {
	Title     string
	Link      string
	GUID      string
	Published time.Time
}

// Inspect parses the feed file at path.
func Inspect(path string) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, fmt.Errorf("open feed: %w", err)
	}
	defer f.Close()

	parsed, err := gofeed.NewParser().Parse(f)
	if err != nil {
		return Summary{}, fmt.Errorf("parse feed %s: %w", path, err)
	}

	s := Summary{Title: parsed.Title, Link: parsed.Link, Language: parsed.Language}
	for _, it := range parsed.Items {
		entry := SummaryEntry{Title: it.Title, Link: it.Link, GUID: it.GUID}
		if it.PublishedParsed != nil {
			entry.Published = *it.PublishedParsed
		}
		s.Entries = append(s.Entries, entry)
	}
	return s, nil
}
