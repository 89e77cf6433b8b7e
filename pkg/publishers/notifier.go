package publishers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Adda-Baaj/feedsmith/internal/domain"
)

type sourceScoped interface {
	Accepts(sourceID string) bool
}

// Notifier fans new items out to every publisher.
type Notifier struct {
	pubs []Publisher
	log  Logger
	now  func() time.Time
}

// NewNotifier returns a Notifier over pubs.
func NewNotifier(pubs []Publisher, log Logger) *Notifier {
	return &Notifier{pubs: pubs, log: ensureLogger(log), now: time.Now}
}

// Len reports how many publishers are attached.
func (n *Notifier) Len() int {
	if n == nil {
		return 0
	}
	return len(n.pubs)
}

// Notify publishes one event per item to every publisher accepting sourceID. A failing
// publisher does not stop delivery to the others; failures are joined into the returned error.
func (n *Notifier) Notify(ctx context.Context, sourceID string, items []domain.Item) error {
	if n.Len() == 0 || len(items) == 0 {
		return nil
	}

	detected := n.now()
	var errs []error
	for _, pub := range n.pubs {
		if s, ok := pub.(sourceScoped); ok && !s.Accepts(sourceID) {
			continue
		}
		delivered := 0
		for _, it := range items {
			if err := ctx.Err(); err != nil {
				return errors.Join(append(errs, err)...)
			}
			if err := pub.Publish(ctx, NewEvent(sourceID, it, detected)); err != nil {
				errs = append(errs, fmt.Errorf("publisher %s: %w", pub.ID(), err))
				continue
			}
			delivered++
		}
		n.log.InfoObj("new items published", "publisher_delivery", map[string]any{
			"publisher_id": pub.ID(),
			"type":         pub.Type(),
			"source_id":    sourceID,
			"delivered":    delivered,
			"total":        len(items),
		})
	}
	return errors.Join(errs...)
}

// Close releases publisher clients.
func (n *Notifier) Close() error {
	if n == nil {
		return nil
	}
	return closeAll(n.pubs)
}
