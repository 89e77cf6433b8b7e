package providers

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/Adda-Baaj/feedsmith/internal/domain"
)

const magazinePageParam = "flexiArticles25-paginator-pageNumber"

// magazineExtractor reads the h7o.cz article listing.
type magazineExtractor struct{}

// NewMagazineExtractor builds the extractor for the magazine article listing.
func NewMagazineExtractor() Extractor {
	return magazineExtractor{}
}

func (magazineExtractor) Type() string {
	return TypeMagazine
}

func (magazineExtractor) PageURL(base string, n int) string {
	if n <= 1 {
		return base
	}
	return withQuery(base, magazinePageParam, strconv.Itoa(n))
}

func (magazineExtractor) Extract(body []byte, pageURL string, _ time.Time) (domain.Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return domain.Page{}, fmt.Errorf("parse html: %w", err)
	}

	page := domain.Page{URL: pageURL, HasNext: hasLinkText(doc, "Další", "›", "»")}

	articles := doc.Find("div.article")
	page.ContainerFound = articles.Length() > 0

	seen := make(map[string]struct{})
	articles.Each(func(_ int, node *goquery.Selection) {
		page.Entries = append(page.Entries, magazineEntry(node, pageURL, seen))
	})

	return page, nil
}

func magazineEntry(node *goquery.Selection, pageURL string, seen map[string]struct{}) domain.Entry {
	title := cleanText(node.Find("h3.article__heading").First().Text())
	if title == "" {
		return domain.Entry{Err: domain.ErrMissingTitle}
	}

	href, ok := node.Find("a.article__link[href]").First().Attr("href")
	link := resolveURL(href, pageURL)
	if !ok || link == "" {
		return domain.Entry{Err: domain.ErrMissingLink}
	}
	if _, dup := seen[link]; dup {
		return domain.Entry{Err: domain.ErrDuplicate}
	}

	published, ok := parseListingDate(node.Find("div.article__date").First().Text())
	if !ok {
		return domain.Entry{Err: domain.ErrMissingDate}
	}
	seen[link] = struct{}{}

	return domain.Entry{Item: domain.Item{
		URL:         link,
		Title:       title,
		Description: cleanText(node.Find("p.article__perex").First().Text()),
		PublishedAt: published,
		Author:      cleanText(node.Find("div.article__author").First().Text()),
		Category:    cleanText(node.Find("div.article__category").First().Text()),
	}}
}
