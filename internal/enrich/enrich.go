// Package enrich fills in descriptions the listing markup left empty by reading the item page's
// meta tags.
package enrich

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Adda-Baaj/feedsmith/internal/domain"
	"github.com/Adda-Baaj/feedsmith/internal/logger"
	"github.com/Adda-Baaj/feedsmith/pkg/httpclient"

	"github.com/PuerkitoBio/goquery"
)

const maxHTMLBodyBytes = 1 << 20 // 1 MiB

// Enricher fetches item pages one at a time.
type Enricher struct {
	client  httpclient.Client
	headers map[string]string
	delay   time.Duration
	log     logger.Logger
	sleep   func(context.Context, time.Duration) error
}

// New returns an Enricher that waits delay between two item requests.
func New(client httpclient.Client, headers map[string]string, delay time.Duration, log logger.Logger) *Enricher {
	if client == nil {
		client = httpclient.NewRestyClient(10 * time.Second)
	}
	return &Enricher{client: client, headers: headers, delay: delay, log: logger.Ensure(log), sleep: sleepCtx}
}

// Enrich returns items with empty descriptions filled from og:description or the description
// meta tag. Items whose page cannot be read are returned unchanged. On cancellation the rest
// are returned as they were.
func (e *Enricher) Enrich(ctx context.Context, items []domain.Item) []domain.Item {
	out := make([]domain.Item, len(items))
	copy(out, items)

	requests := 0
	for i, it := range out {
		if strings.TrimSpace(it.Description) != "" {
			continue
		}
		if requests > 0 {
			if err := e.sleep(ctx, e.delay); err != nil {
				return out
			}
		}
		requests++

		desc, err := e.describe(ctx, it.URL)
		if err != nil {
			e.log.WarnObj("item page metadata unavailable", "enrich_error", map[string]any{
				"url":   it.URL,
				"error": err.Error(),
			})
			continue
		}
		if desc != "" {
			out[i].Description = desc
		}
	}

	if requests > 0 {
		e.log.DebugObj("descriptions enriched", "enrich_done", map[string]any{
			"requests": requests,
			"items":    len(items),
		})
	}
	return out
}

func (e *Enricher) describe(ctx context.Context, pageURL string) (string, error) {
	resp, err := e.client.Get(ctx, pageURL, e.headers)
	if err != nil {
		return "", fmt.Errorf("http fetch: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode())
	}

	body := resp.Body()
	if len(body) > maxHTMLBodyBytes {
		body = body[:maxHTMLBodyBytes]
	}
	return parseDescription(body)
}

func parseDescription(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	for _, sel := range []string{`meta[property="og:description"]`, `meta[name="description"]`} {
		if v, ok := doc.Find(sel).First().Attr("content"); ok {
			if v = strings.Join(strings.Fields(v), " "); v != "" {
				return v, nil
			}
		}
	}
	return "", nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
