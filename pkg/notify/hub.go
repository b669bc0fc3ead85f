package notify

import (
	"encoding/json"
	"sync"

	"github.com/dgreene/pulse/pkg/observability"
)

// Observer receives serialized change notifications. Implementations
// must tolerate concurrent Send calls.
type Observer interface {
	ID() string
	Send(payload []byte) error
}

// Hub is the observer registry for change notifications. Observers that
// fail delivery are removed; a slow or dead connection never blocks the
// rest of the fanout.
type Hub struct {
	mu        sync.RWMutex
	observers map[string]Observer
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// NewHub creates an empty observer registry.
func NewHub(logger *observability.Logger, metrics *observability.Metrics) *Hub {
	return &Hub{
		observers: make(map[string]Observer),
		logger:    logger,
		metrics:   metrics,
	}
}

// Register adds an observer. A second registration under the same ID
// replaces the first.
func (h *Hub) Register(o Observer) {
	h.mu.Lock()
	h.observers[o.ID()] = o
	n := len(h.observers)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.WSConnectionsActive.Set(float64(n))
	}
	h.logger.WithFields(map[string]interface{}{
		"observer_id": o.ID(),
		"observers":   n,
	}).Debug("observer registered")
}

// Unregister removes an observer. Unknown IDs are a no-op.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	_, found := h.observers[id]
	delete(h.observers, id)
	n := len(h.observers)
	h.mu.Unlock()

	if !found {
		return
	}
	if h.metrics != nil {
		h.metrics.WSConnectionsActive.Set(float64(n))
	}
	h.logger.WithFields(map[string]interface{}{
		"observer_id": id,
		"observers":   n,
	}).Debug("observer unregistered")
}

// Count returns the number of registered observers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// Broadcast serializes v as JSON and delivers it to every registered
// observer. Observers whose Send fails are dropped from the registry.
// Returns the number of successful deliveries.
func (h *Hub) Broadcast(v interface{}) int {
	payload, err := json.Marshal(v)
	if err != nil {
		h.logger.WithError(err).Error("failed to serialize broadcast payload")
		return 0
	}

	h.mu.RLock()
	targets := make([]Observer, 0, len(h.observers))
	for _, o := range h.observers {
		targets = append(targets, o)
	}
	h.mu.RUnlock()

	delivered := 0
	var failed []string
	for _, o := range targets {
		if err := o.Send(payload); err != nil {
			h.logger.WithError(err).WithField("observer_id", o.ID()).Debug("dropping observer after failed delivery")
			failed = append(failed, o.ID())
			continue
		}
		delivered++
	}

	for _, id := range failed {
		h.Unregister(id)
	}
	return delivered
}
