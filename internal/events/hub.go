// Package events provides the in-process pub/sub hub that fans decoded
// measurements and connection-state changes out to independent consumers
// (UI, history, storage adapters) without polling.
package events

import (
	"sync"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/bpmon/internal/bpm"
)

// Disconnect is the payload of a disconnected event. Unexpected is true for
// transport-level connection loss and false for a programmatic disconnect.
type Disconnect struct {
	Unexpected bool
}

// MeasurementFunc consumes a decoded measurement.
type MeasurementFunc func(*bpm.Measurement)

// DisconnectFunc consumes a disconnect notification.
type DisconnectFunc func(Disconnect)

// Hub is a typed publish/subscribe dispatcher with one registry per event
// kind. Dispatch is synchronous and runs subscribers in registration order;
// a panicking subscriber is logged and does not prevent delivery to the
// rest. Subscribing and unsubscribing are safe from within a dispatch
// callback because publishing iterates a snapshot, never the live registry.
type Hub struct {
	logger *logrus.Logger

	mu           sync.Mutex
	nextID       uint64
	measurement  *orderedmap.OrderedMap[uint64, MeasurementFunc]
	disconnected *orderedmap.OrderedMap[uint64, DisconnectFunc]
}

// NewHub creates an event hub. A nil logger is replaced with a default one.
func NewHub(logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.New()
	}
	return &Hub{
		logger:       logger,
		measurement:  orderedmap.New[uint64, MeasurementFunc](),
		disconnected: orderedmap.New[uint64, DisconnectFunc](),
	}
}

// OnMeasurement registers fn for measurement events and returns its
// unsubscribe function. Unsubscribing twice is harmless.
func (h *Hub) OnMeasurement(fn MeasurementFunc) (cancel func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	h.measurement.Set(id, fn)

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.measurement.Delete(id)
	}
}

// OnDisconnected registers fn for disconnected events and returns its
// unsubscribe function.
func (h *Hub) OnDisconnected(fn DisconnectFunc) (cancel func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	h.disconnected.Set(id, fn)

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.disconnected.Delete(id)
	}
}

// PublishMeasurement delivers m to every measurement subscriber.
func (h *Hub) PublishMeasurement(m *bpm.Measurement) {
	h.mu.Lock()
	subs := make([]MeasurementFunc, 0, h.measurement.Len())
	for pair := h.measurement.Oldest(); pair != nil; pair = pair.Next() {
		subs = append(subs, pair.Value)
	}
	h.mu.Unlock()

	for _, fn := range subs {
		h.dispatch("measurement", func() { fn(m) })
	}
}

// PublishDisconnected delivers d to every disconnected subscriber.
func (h *Hub) PublishDisconnected(d Disconnect) {
	h.mu.Lock()
	subs := make([]DisconnectFunc, 0, h.disconnected.Len())
	for pair := h.disconnected.Oldest(); pair != nil; pair = pair.Next() {
		subs = append(subs, pair.Value)
	}
	h.mu.Unlock()

	for _, fn := range subs {
		h.dispatch("disconnected", func() { fn(d) })
	}
}

func (h *Hub) dispatch(event string, call func()) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.WithFields(logrus.Fields{
				"event": event,
				"panic": r,
			}).Error("Event subscriber panicked")
		}
	}()
	call()
}
