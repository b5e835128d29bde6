package feed

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/CzarCx/qr-brain/internal/models"

	"github.com/pkg/errors"
)

// Publisher announces a change event
type Publisher interface {
	Publish(ctx context.Context, event models.ChangeEvent) error
}

// LoteSource produces the aggregated lote view
type LoteSource func(ctx context.Context) ([]models.LoteSummary, error)

// Message is what subscribers receive on every change
type Message struct {
	Event *models.ChangeEvent  `json:"event,omitempty"`
	Lotes []models.LoteSummary `json:"lotes"`
}

// Notifier pushes the refreshed lote view to the hub on every change
type Notifier struct {
	hub *Hub

	mu     sync.RWMutex
	source LoteSource
}

// NewNotifier creates a notifier for hub. Bind must be called before Publish.
func NewNotifier(hub *Hub) *Notifier {
	return &Notifier{hub: hub}
}

// Bind sets the lote view source
func (n *Notifier) Bind(source LoteSource) {
	n.mu.Lock()
	n.source = source
	n.mu.Unlock()
}

// Snapshot renders the current lote view without an event
func (n *Notifier) Snapshot(ctx context.Context) ([]byte, error) {
	return n.render(ctx, nil)
}

// Publish broadcasts the refreshed lote view along with event
func (n *Notifier) Publish(ctx context.Context, event models.ChangeEvent) error {
	if n.hub.Len() == 0 {
		return nil
	}
	msg, err := n.render(ctx, &event)
	if err != nil {
		return err
	}
	n.hub.Broadcast(msg)
	return nil
}

func (n *Notifier) render(ctx context.Context, event *models.ChangeEvent) ([]byte, error) {
	n.mu.RLock()
	source := n.source
	n.mu.RUnlock()
	if source == nil {
		return nil, errors.New("lote feed has no source")
	}

	lotes, err := source(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load lote view")
	}
	if lotes == nil {
		lotes = []models.LoteSummary{}
	}

	body, err := json.Marshal(Message{Event: event, Lotes: lotes})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal lote feed message")
	}
	return body, nil
}

// Fanout publishes to every publisher; all are attempted and the first error is returned
type Fanout []Publisher

// Publish implements Publisher
func (f Fanout) Publish(ctx context.Context, event models.ChangeEvent) error {
	var first error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
