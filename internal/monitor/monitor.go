// Package monitor owns the blood pressure cuff connection lifecycle:
// device selection, GATT service discovery with vendor fallback,
// measurement subscription, and disconnect handling. Decoded measurements
// and connection-state changes are published through the event hub.
package monitor

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/bpmon/internal/bpm"
	"github.com/srg/bpmon/internal/device"
	"github.com/srg/bpmon/internal/events"
	"github.com/srg/bpmon/internal/gattdb"
)

// State is the connection lifecycle state.
type State string

const (
	StateDisconnected  State = "disconnected"
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateDisconnecting State = "disconnecting"
)

// ServiceVariant records which GATT service variant discovery settled on.
type ServiceVariant string

const (
	VariantStandard ServiceVariant = "standard"
	VariantVendor   ServiceVariant = "vendor"
)

// DeviceInfo describes the connected cuff.
type DeviceInfo struct {
	ID             string
	Name           string
	ServiceVariant ServiceVariant
}

// Monitor manages exactly one cuff connection at a time. Construct with New
// and inject the transport and hub; there is no shared global instance, so
// independent monitors can coexist (and be tested) freely.
type Monitor struct {
	transport device.Transport
	hub       *events.Hub
	logger    *logrus.Logger

	mu       sync.Mutex
	state    State
	dev      device.Device
	gatt     device.GATTServer
	measChar device.Characteristic
	info     *DeviceInfo
	features *bpm.Features
}

// New creates a monitor bound to the given transport and hub. A nil logger
// is replaced with a default one.
func New(transport device.Transport, hub *events.Hub, logger *logrus.Logger) *Monitor {
	if logger == nil {
		logger = logrus.New()
	}
	return &Monitor{
		transport: transport,
		hub:       hub,
		logger:    logger,
		state:     StateDisconnected,
	}
}

// State returns the current lifecycle state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Device returns info about the connected cuff, or nil when disconnected.
func (m *Monitor) Device() *DeviceInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info
}

// Features returns the cuff's capability bitmap when the optional feature
// characteristic was readable during connect.
func (m *Monitor) Features() (bpm.Features, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.features == nil {
		return 0, false
	}
	return *m.features, true
}

// Connect selects a cuff, opens its GATT connection, discovers the blood
// pressure service (standard profile first, then exactly one vendor
// fallback), subscribes to measurement indications and registers the
// disconnect observer. Connecting while already connected fails with
// ErrAlreadyConnected.
func (m *Monitor) Connect(ctx context.Context) (*DeviceInfo, error) {
	if m.transport == nil {
		return nil, fmt.Errorf("%w: no bluetooth transport available", device.ErrNotSupported)
	}

	m.mu.Lock()
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: state is %s", device.ErrAlreadyConnected, m.state)
	}
	m.state = StateConnecting
	m.mu.Unlock()

	info, err := m.connect(ctx)
	if err != nil {
		m.clear()
		return nil, err
	}
	return info, nil
}

func (m *Monitor) connect(ctx context.Context) (*DeviceInfo, error) {
	dev, err := m.transport.RequestDevice(ctx, device.Filter{
		Services: []string{device.ServiceBloodPressure, device.ServiceVendorFallback},
	})
	if err != nil {
		if errors.Is(err, device.ErrUserCancelled) || errors.Is(err, device.ErrNotSupported) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: device selection: %v", device.ErrConnectionFailed, err)
	}

	m.logger.WithFields(logrus.Fields{
		"device": dev.Name(),
		"id":     dev.ID(),
	}).Info("Connecting to blood pressure cuff...")

	gatt, err := dev.ConnectGATT(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: GATT connect: %v", device.ErrConnectionFailed, err)
	}

	svc, variant, err := m.discoverService(gatt)
	if err != nil {
		m.abort(dev)
		return nil, err
	}

	measChar, err := svc.Characteristic(device.CharMeasurement)
	if err != nil {
		m.abort(dev)
		return nil, fmt.Errorf("%w: measurement characteristic: %v", device.ErrConnectionFailed, err)
	}

	props := measChar.Properties()
	if !props.Notify && !props.Indicate {
		m.abort(dev)
		return nil, fmt.Errorf("%w: characteristic %s supports neither notify nor indicate",
			device.ErrNotificationsUnsupported, measChar.UUID())
	}

	if err := measChar.StartNotifications(m.handleNotification); err != nil {
		m.abort(dev)
		return nil, fmt.Errorf("%w: subscribe: %v", device.ErrConnectionFailed, err)
	}
	m.logger.WithFields(logrus.Fields{
		"characteristic": measChar.UUID(),
		"name":           gattdb.LookupCharacteristic(measChar.UUID()),
	}).Debug("Subscribed to measurement notifications")

	// Optional capability bitmap; unreadable on plenty of real cuffs.
	features := m.readFeatures(ctx, svc)

	dev.SetDisconnectHandler(m.handleUnexpectedDisconnect)

	info := &DeviceInfo{
		ID:             dev.ID(),
		Name:           dev.Name(),
		ServiceVariant: variant,
	}

	m.mu.Lock()
	m.dev = dev
	m.gatt = gatt
	m.measChar = measChar
	m.info = info
	m.features = features
	m.state = StateConnected
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"device":  info.Name,
		"variant": variant,
	}).Info("Blood pressure cuff connected")

	return info, nil
}

// discoverService tries the standard Blood Pressure service and, if that
// fails, makes exactly one fallback attempt against the vendor service.
func (m *Monitor) discoverService(gatt device.GATTServer) (device.Service, ServiceVariant, error) {
	svc, err := gatt.PrimaryService(device.ServiceBloodPressure)
	if err == nil {
		return svc, VariantStandard, nil
	}

	m.logger.WithField("error", err).Debug("Standard blood pressure service not found, trying vendor fallback")

	svc, fbErr := gatt.PrimaryService(device.ServiceVendorFallback)
	if fbErr != nil {
		return nil, "", fmt.Errorf("%w: service discovery: standard=%v, vendor=%v",
			device.ErrConnectionFailed, err, fbErr)
	}
	return svc, VariantVendor, nil
}

// readFeatures opportunistically reads the BP Feature characteristic.
// Any failure is non-fatal: the bitmap is optional data.
func (m *Monitor) readFeatures(ctx context.Context, svc device.Service) *bpm.Features {
	fc, err := svc.Characteristic(device.CharFeature)
	if err != nil {
		m.logger.WithField("error", err).Debug("Feature characteristic not available")
		return nil
	}

	data, err := fc.ReadValue(ctx)
	if err != nil || len(data) < 2 {
		m.logger.WithField("error", err).Debug("Feature characteristic read failed")
		return nil
	}

	f := bpm.Features(binary.LittleEndian.Uint16(data))
	m.logger.WithField("features", f.String()).Debug("Cuff features")
	return &f
}

// abort tears down a half-built connection during a failed connect.
func (m *Monitor) abort(dev device.Device) {
	if err := dev.Disconnect(); err != nil {
		m.logger.WithField("error", err).Debug("Cleanup disconnect failed")
	}
}

// handleNotification decodes one measurement indication and publishes it.
// Decode failures are logged and swallowed so a malformed frame can never
// take down event dispatch.
func (m *Monitor) handleNotification(data []byte) {
	measurement, err := bpm.ParseMeasurement(data, time.Now())
	if err != nil {
		m.logger.WithFields(logrus.Fields{
			"error": err,
			"bytes": len(data),
		}).Error("Failed to decode blood pressure measurement")
		return
	}

	m.logger.WithFields(logrus.Fields{
		"reading": measurement.String(),
		"stage":   measurement.Stage().String(),
		"unit":    string(measurement.Unit),
	}).Info("Measurement received")

	if m.hub != nil {
		m.hub.PublishMeasurement(measurement)
	}
}

// handleUnexpectedDisconnect reacts to a transport-level connection loss.
func (m *Monitor) handleUnexpectedDisconnect() {
	m.mu.Lock()
	if m.state != StateConnected {
		// Programmatic disconnect in progress; it reports its own event.
		m.mu.Unlock()
		return
	}
	name := ""
	if m.info != nil {
		name = m.info.Name
	}
	m.reset()
	m.mu.Unlock()

	m.logger.WithField("device", name).Warn("Blood pressure cuff disconnected unexpectedly")

	if m.hub != nil {
		m.hub.PublishDisconnected(events.Disconnect{Unexpected: true})
	}
}

// Disconnect unsubscribes (best effort), drops the GATT connection and
// clears all connection state. Calling it while already disconnected is a
// no-op. The internal state returns to StateDisconnected regardless of
// partial failures.
func (m *Monitor) Disconnect() error {
	m.mu.Lock()
	if m.state == StateDisconnected {
		m.mu.Unlock()
		m.logger.Debug("Already disconnected")
		return nil
	}
	m.state = StateDisconnecting
	dev := m.dev
	measChar := m.measChar
	m.reset()
	m.mu.Unlock()

	if measChar != nil {
		// The device may already be gone; failure here is expected.
		if err := measChar.StopNotifications(); err != nil {
			m.logger.WithField("error", err).Warn("Failed to stop notifications during disconnect")
		}
	}

	var disconnectErr error
	if dev != nil {
		if err := dev.Disconnect(); err != nil {
			disconnectErr = fmt.Errorf("%w: %v", device.ErrConnectionFailed, err)
		}
	}

	if disconnectErr != nil {
		m.logger.WithField("error", disconnectErr).Warn("Cuff disconnected with errors")
	} else {
		m.logger.Info("Cuff disconnected")
	}

	if m.hub != nil {
		m.hub.PublishDisconnected(events.Disconnect{Unexpected: false})
	}

	return disconnectErr
}

// clear resets state after a failed connect attempt.
func (m *Monitor) clear() {
	m.mu.Lock()
	m.reset()
	m.mu.Unlock()
}

// reset drops all connection references. Caller holds m.mu.
func (m *Monitor) reset() {
	m.dev = nil
	m.gatt = nil
	m.measChar = nil
	m.info = nil
	m.features = nil
	m.state = StateDisconnected
}
