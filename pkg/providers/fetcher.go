package providers

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Adda-Baaj/feedsmith/pkg/httpclient"
)

type extractorRegistry struct {
	extractors map[string]Extractor
	mu         sync.RWMutex
}

// NewExtractorRegistry builds a registry for the provided extractor implementations.
func NewExtractorRegistry(extractors ...Extractor) ExtractorRegistry {
	reg := &extractorRegistry{
		extractors: make(map[string]Extractor, len(extractors)),
	}

	for _, e := range extractors {
		if e == nil {
			continue
		}
		reg.extractors[strings.ToLower(strings.TrimSpace(e.Type()))] = e
	}

	return reg
}

// ExtractorFor selects the extractor for the given provider based on its type.
func (r *extractorRegistry) ExtractorFor(cfg Provider) (Extractor, error) {
	if cfg.Type == "" {
		return nil, fmt.Errorf("provider %q has no type", cfg.ID)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	key := strings.ToLower(strings.TrimSpace(cfg.Type))
	if e, ok := r.extractors[key]; ok {
		return e, nil
	}

	return nil, fmt.Errorf("no extractor registered for provider type %q", cfg.Type)
}

// DefaultHTTPClient returns the client used when none is supplied.
func DefaultHTTPClient() HTTPClient { return httpclient.NewRestyClient(10 * time.Second) }

// DefaultExtractorRegistry wires up the known listing extractors.
func DefaultExtractorRegistry() ExtractorRegistry {
	return NewExtractorRegistry(
		NewBookstoreExtractor(),
		NewMagazineExtractor(),
	)
}
