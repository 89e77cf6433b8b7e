package providers

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/Adda-Baaj/feedsmith/internal/domain"
)

// bookstoreExtractor reads the kosmas.cz "novinky" grid. The listing carries no publish date,
// so items are stamped with the time they were observed.
type bookstoreExtractor struct{}

// NewBookstoreExtractor builds the extractor for the bookstore news grid.
func NewBookstoreExtractor() Extractor {
	return bookstoreExtractor{}
}

func (bookstoreExtractor) Type() string {
	return TypeBookstore
}

func (bookstoreExtractor) PageURL(base string, n int) string {
	if n <= 1 {
		return base
	}
	return withQuery(base, "page", strconv.Itoa(n))
}

func (bookstoreExtractor) Extract(body []byte, pageURL string, observedAt time.Time) (domain.Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return domain.Page{}, fmt.Errorf("parse html: %w", err)
	}

	page := domain.Page{URL: pageURL, HasNext: hasLinkText(doc, "Další")}

	container := doc.Find("div.grid-items__pagenumber").First()
	if container.Length() == 0 {
		return page, nil
	}
	page.ContainerFound = true

	seen := make(map[string]struct{})
	container.Find("div.grid-item").Each(func(_ int, node *goquery.Selection) {
		page.Entries = append(page.Entries, bookstoreEntry(node, pageURL, observedAt, seen))
	})

	return page, nil
}

func bookstoreEntry(node *goquery.Selection, pageURL string, observedAt time.Time, seen map[string]struct{}) domain.Entry {
	heading := node.Find("h3.g-item__title").First()
	title := cleanText(heading.Text())
	if heading.Length() == 0 || title == "" {
		return domain.Entry{Err: domain.ErrMissingTitle}
	}

	href, ok := heading.Find("a[href]").First().Attr("href")
	link := resolveURL(href, pageURL)
	if !ok || link == "" {
		return domain.Entry{Err: domain.ErrMissingLink}
	}
	if _, dup := seen[link]; dup {
		return domain.Entry{Err: domain.ErrDuplicate}
	}
	seen[link] = struct{}{}

	var authors []string
	node.Find("span.titul-author a").Each(func(_ int, a *goquery.Selection) {
		if name := cleanText(a.Text()); name != "" {
			authors = append(authors, name)
		}
	})

	description := title
	if len(authors) > 0 {
		description = title + " - " + strings.Join(authors, ", ")
	}

	return domain.Entry{Item: domain.Item{
		URL:         link,
		Title:       title,
		Description: description,
		PublishedAt: observedAt.UTC(),
		Authors:     authors,
	}}
}
