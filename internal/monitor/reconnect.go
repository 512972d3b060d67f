package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/bpmon/internal/events"
)

// DefaultReconnectDelay is how long the reconnector waits after an
// unexpected disconnect before retrying.
const DefaultReconnectDelay = 3 * time.Second

// Connector is the slice of Monitor the reconnector needs.
type Connector interface {
	Connect(ctx context.Context) (*DeviceInfo, error)
}

// Reconnector schedules exactly one reconnect attempt after each unexpected
// disconnect. Manual disconnects are ignored. Rapid repeated disconnects
// collapse onto the most recently scheduled attempt; this is a deliberate
// simplicity tradeoff, not an exactly-once guarantee under event storms.
type Reconnector struct {
	connector Connector
	logger    *logrus.Logger
	delay     time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	cancel func()
}

// NewReconnector subscribes to disconnect events on hub and retries
// connector.Connect after delay (DefaultReconnectDelay when delay <= 0).
// Call Stop to unsubscribe and drop any pending attempt.
func NewReconnector(connector Connector, hub *events.Hub, delay time.Duration, logger *logrus.Logger) *Reconnector {
	if logger == nil {
		logger = logrus.New()
	}
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	r := &Reconnector{
		connector: connector,
		logger:    logger,
		delay:     delay,
	}
	r.cancel = hub.OnDisconnected(r.handleDisconnect)
	return r
}

func (r *Reconnector) handleDisconnect(d events.Disconnect) {
	if !d.Unexpected {
		return
	}

	r.logger.WithField("delay", r.delay).Info("Unexpected disconnect, scheduling reconnect")

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.delay, r.attempt)
}

func (r *Reconnector) attempt() {
	r.logger.Info("Attempting to reconnect...")

	if _, err := r.connector.Connect(context.Background()); err != nil {
		r.logger.WithField("error", err).Warn("Reconnect attempt failed")
		return
	}
	r.logger.Info("Reconnected")
}

// Stop unsubscribes from disconnect events and cancels a pending attempt.
func (r *Reconnector) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
