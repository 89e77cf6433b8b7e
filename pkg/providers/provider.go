package providers

import (
	"strings"
	"time"

	"github.com/Adda-Baaj/feedsmith/internal/domain"
	"github.com/Adda-Baaj/feedsmith/pkg/httpclient"
)

// Listing types understood by the registry.
const (
	TypeBookstore = "bookstore"
	TypeMagazine  = "magazine"
)

const defaultUserAgent = "Mozilla/5.0 (compatible; feedsmith/1.0; +https://github.com/Adda-Baaj/feedsmith)"

// HTTPClient is the client used to download listing pages.
type HTTPClient = httpclient.Client

// Provider describes one listing site.
type Provider struct {
	ID        string
	Type      string
	SourceURL string
	UserAgent string
	Headers   map[string]string
	Delay     time.Duration
}

// RequestDelay is the pause between two page requests.
func (p Provider) RequestDelay() time.Duration {
	if p.Delay < 0 {
		return 0
	}
	return p.Delay
}

// Headers returns the request headers for cfg.
func Headers(cfg Provider) map[string]string {
	out := make(map[string]string, len(cfg.Headers)+1)
	for k, v := range cfg.Headers {
		if k = strings.TrimSpace(k); k != "" {
			out[k] = strings.TrimSpace(v)
		}
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}
	out["User-Agent"] = ua
	return out
}

// Extractor turns the markup of one listing page into a page of entries.
type Extractor interface {
	// Type is the listing type the extractor handles.
	Type() string
	// PageURL returns the address of page number n (1-based) of the listing at base.
	PageURL(base string, n int) string
	// Extract parses body. observedAt stands in for the publish date on listings without one.
	Extract(body []byte, pageURL string, observedAt time.Time) (domain.Page, error)
}

// ExtractorRegistry resolves the extractor for a provider.
type ExtractorRegistry interface {
	ExtractorFor(cfg Provider) (Extractor, error)
}
