// Package runlog keeps a Markdown log of pipeline runs, newest first, pruned to a retention window.
package runlog

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Adda-Baaj/feedsmith/internal/store"
)

const (
	// DefaultRetention is how long entries are kept.
	DefaultRetention = 7 * 24 * time.Hour
	// DefaultMaxTitles caps the titles listed per entry.
	DefaultMaxTitles = 20

	entryPrefix     = "## 🕐 "
	timestampLayout = "2006-01-02 15:04:05"
	separator       = "---"
)

const header = "# 📊 RSS Feed Update Log\n" +
	"\n" +
	"Automatically generated log of RSS feed updates.\n" +
	"Entries from the last week are kept.\n" +
	"\n" +
	separator + "\n" +
	"\n"

// Entry is one run outcome.
type Entry struct {
	Source   string
	NewCount int
	Titles   []string
	Err      error
}

// Log appends run entries to a Markdown file.
type Log struct {
	path      string
	retention time.Duration
	maxTitles int
	now       func() time.Time
}

// Option customises a Log.
type Option func(*Log)

// WithRetention overrides DefaultRetention.
func WithRetention(d time.Duration) Option {
	return func(l *Log) {
		if d > 0 {
			l.retention = d
		}
	}
}

// WithMaxTitles overrides DefaultMaxTitles.
func WithMaxTitles(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.maxTitles = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

// New returns a Log writing to path. Nothing touches the file until the first LogRun.
func New(path string, opts ...Option) *Log {
	l := &Log{path: path, retention: DefaultRetention, maxTitles: DefaultMaxTitles, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the log file path.
func (l *Log) Path() string { return l.path }

// LogRun prunes expired entries and inserts e directly below the header.
func (l *Log) LogRun(e Entry) error {
	now := l.now().UTC()

	raw, err := os.ReadFile(l.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read run log: %w", err)
	}

	doc := parse(string(raw))
	doc.prune(now.Add(-l.retention))

	var out strings.Builder
	out.WriteString(doc.header)
	out.WriteString(doc.preamble)
	out.WriteString(l.render(e, now))
	for _, section := range doc.entries {
		out.WriteString(section.text)
	}

	if err := store.WriteFileAtomic(l.path, []byte(out.String())); err != nil {
		return fmt.Errorf("write run log: %w", err)
	}
	return nil
}

func (l *Log) render(e Entry, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s UTC\n\n", entryPrefix, now.Format(timestampLayout))
	fmt.Fprintf(&b, "**Source:** %s\n\n", e.Source)

	if e.Err != nil {
		b.WriteString("**Status:** ❌ Error\n\n")
		fmt.Fprintf(&b, "**Error message:**\n```\n%s\n```\n\n", e.Err.Error())
	} else {
		b.WriteString("**Status:** ✅ Success\n\n")
		fmt.Fprintf(&b, "**New items:** %d\n\n", e.NewCount)
		if e.NewCount > 0 && len(e.Titles) > 0 {
			b.WriteString("**New item titles:**\n\n")
			for i, title := range e.Titles {
				if i == l.maxTitles {
					break
				}
				fmt.Fprintf(&b, "%d. %s\n", i+1, title)
			}
			if extra := len(e.Titles) - l.maxTitles; extra > 0 {
				fmt.Fprintf(&b, "\n... and %d more\n", extra)
			}
			b.WriteString("\n")
		}
	}
	b.WriteString(separator + "\n\n")
	return b.String()
}

type section struct {
	at    time.Time
	known bool // false when the heading timestamp could not be parsed
	text  string
}

type document struct {
	header   string
	preamble string
	entries  []section
}

// parse splits a log into the header (through the first separator line), anything before the
// first entry heading, and the entry sections. A file without a separator gets a fresh header.
func parse(raw string) document {
	var doc document

	lines := splitLines(raw)
	i := 0
	for ; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == separator {
			doc.header = strings.Join(lines[:i+1], "")
			i++
			break
		}
	}
	if doc.header == "" {
		doc.header = header
		i = 0
	}

	var pre strings.Builder
	var cur *section
	var body strings.Builder
	flush := func() {
		if cur != nil {
			cur.text = body.String()
			doc.entries = append(doc.entries, *cur)
			body.Reset()
		}
	}
	for ; i < len(lines); i++ {
		line := lines[i]
		if strings.HasPrefix(line, entryPrefix) {
			flush()
			at, ok := parseHeading(line)
			cur = &section{at: at, known: ok}
		}
		if cur == nil {
			pre.WriteString(line)
			continue
		}
		body.WriteString(line)
	}
	flush()

	doc.preamble = pre.String()
	return doc
}

// prune drops entries older than cutoff. Entries with unreadable timestamps are kept.
func (d *document) prune(cutoff time.Time) {
	kept := d.entries[:0]
	for _, s := range d.entries {
		if s.known && s.at.Before(cutoff) {
			continue
		}
		kept = append(kept, s)
	}
	d.entries = kept
}

func parseHeading(line string) (time.Time, bool) {
	ts := strings.TrimSpace(strings.TrimPrefix(line, entryPrefix))
	ts = strings.TrimSpace(strings.TrimSuffix(ts, "UTC"))
	at, err := time.Parse(timestampLayout, ts)
	if err != nil {
		return time.Time{}, false
	}
	return at, true
}

// splitLines splits s keeping line terminators.
func splitLines(s string) []string {
	lines := strings.SplitAfter(s, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}
