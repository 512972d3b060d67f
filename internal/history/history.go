// Package history keeps a small most-recent-first window of decoded
// measurements for display. It is a consumer of the event hub, not part of
// the decoding core.
package history

import (
	"sync"

	"github.com/srg/bpmon/internal/bpm"
)

// DefaultCapacity matches the reading widget's window size.
const DefaultCapacity = 10

// History is a bounded most-recent-first list of measurements. Pushing past
// capacity evicts the oldest entry. Safe for concurrent use.
type History struct {
	mu       sync.Mutex
	capacity int
	entries  []*bpm.Measurement
}

// New creates a history bounded to capacity entries; capacity <= 0 falls
// back to DefaultCapacity.
func New(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &History{capacity: capacity}
}

// Push prepends m, evicting the oldest entry beyond capacity.
func (h *History) Push(m *bpm.Measurement) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append([]*bpm.Measurement{m}, h.entries...)
	if len(h.entries) > h.capacity {
		h.entries = h.entries[:h.capacity]
	}
}

// List returns a most-recent-first snapshot.
func (h *History) List() []*bpm.Measurement {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]*bpm.Measurement, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len reports the number of retained measurements.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Clear drops all retained measurements.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
}
