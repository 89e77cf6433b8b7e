package publishers

import (
	"context"
	"time"

	"github.com/Adda-Baaj/feedsmith/internal/domain"
)

// Event announces one newly discovered listing item.
type Event struct {
	SourceID    string    `json:"source_id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	DetectedAt  time.Time `json:"detected_at"`
}

// NewEvent builds the event for item.
func NewEvent(sourceID string, item domain.Item, detectedAt time.Time) Event {
	return Event{
		SourceID:    sourceID,
		URL:         item.URL,
		Title:       item.Title,
		Description: item.FeedDescription(),
		PublishedAt: item.PublishedAt.UTC(),
		DetectedAt:  detectedAt.UTC(),
	}
}

// Publisher delivers events to one sink.
type Publisher interface {
	ID() string
	Type() string
	Publish(ctx context.Context, evt Event) error
}

// Logger is the logging surface publishers need.
type Logger interface {
	DebugObj(msg, event string, fields map[string]any)
	InfoObj(msg, event string, fields map[string]any)
	WarnObj(msg, event string, fields map[string]any)
	ErrorObj(msg, event string, fields map[string]any)
}

type nopLogger struct{}

func (nopLogger) DebugObj(string, string, map[string]any) {}
func (nopLogger) InfoObj(string, string, map[string]any)  {}
func (nopLogger) WarnObj(string, string, map[string]any)  {}
func (nopLogger) ErrorObj(string, string, map[string]any) {}

func ensureLogger(log Logger) Logger {
	if log == nil {
		return nopLogger{}
	}
	return log
}
