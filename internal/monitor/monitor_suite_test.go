package monitor

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/srg/bpmon/internal/device"
	"github.com/srg/bpmon/internal/events"
)

// ----------------------------
// Fake transport
// ----------------------------

type fakeCharacteristic struct {
	uuid      string
	props     device.Properties
	value     []byte
	readErr   error
	startErr  error
	stopErr   error
	notifyFn  func([]byte)
	stopCalls int
}

func (c *fakeCharacteristic) UUID() string                  { return c.uuid }
func (c *fakeCharacteristic) Properties() device.Properties { return c.props }

func (c *fakeCharacteristic) ReadValue(context.Context) ([]byte, error) {
	if c.readErr != nil {
		return nil, c.readErr
	}
	return c.value, nil
}

func (c *fakeCharacteristic) StartNotifications(fn func([]byte)) error {
	if c.startErr != nil {
		return c.startErr
	}
	c.notifyFn = fn
	return nil
}

func (c *fakeCharacteristic) StopNotifications() error {
	c.stopCalls++
	return c.stopErr
}

// notify simulates an inbound indication from the cuff.
func (c *fakeCharacteristic) notify(data []byte) {
	if c.notifyFn != nil {
		c.notifyFn(data)
	}
}

type fakeService struct {
	uuid  string
	chars map[string]*fakeCharacteristic
}

func (s *fakeService) UUID() string { return s.uuid }

func (s *fakeService) Characteristic(uuid string) (device.Characteristic, error) {
	c, ok := s.chars[uuid]
	if !ok {
		return nil, fmt.Errorf("characteristic %q not found in service %q", uuid, s.uuid)
	}
	return c, nil
}

type fakeGATT struct {
	services   map[string]*fakeService
	discovered []string // PrimaryService call log, in order
}

func (g *fakeGATT) PrimaryService(uuid string) (device.Service, error) {
	g.discovered = append(g.discovered, uuid)
	s, ok := g.services[uuid]
	if !ok {
		return nil, fmt.Errorf("service %q not found", uuid)
	}
	return s, nil
}

type fakeDevice struct {
	id, name        string
	gatt            *fakeGATT
	gattErr         error
	disconnectErr   error
	disconnectCalls int
	onDisconnect    func()
}

func (d *fakeDevice) ID() string   { return d.id }
func (d *fakeDevice) Name() string { return d.name }

func (d *fakeDevice) ConnectGATT(context.Context) (device.GATTServer, error) {
	if d.gattErr != nil {
		return nil, d.gattErr
	}
	return d.gatt, nil
}

func (d *fakeDevice) Disconnect() error {
	d.disconnectCalls++
	return d.disconnectErr
}

func (d *fakeDevice) SetDisconnectHandler(fn func()) { d.onDisconnect = fn }

// dropConnection simulates a transport-level connection loss.
func (d *fakeDevice) dropConnection() {
	if d.onDisconnect != nil {
		d.onDisconnect()
	}
}

type fakeTransport struct {
	dev        device.Device
	err        error
	requests   int
	lastFilter device.Filter
}

func (t *fakeTransport) RequestDevice(_ context.Context, filter device.Filter) (device.Device, error) {
	t.requests++
	t.lastFilter = filter
	if t.err != nil {
		return nil, t.err
	}
	return t.dev, nil
}

// ----------------------------
// Fixtures
// ----------------------------

// measurementPayload is a valid indication: flags 0x04 (pulse present),
// 120/80 mmHg with MAP 93, pulse 700*10^-1 = 70 bpm.
var measurementPayload = []byte{0x04, 0x78, 0x00, 0x50, 0x00, 0x5D, 0x00, 0xBC, 0xF2}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// newFixture wires a happy-path fake cuff: standard service, indicating
// measurement characteristic, readable feature bitmap.
func newFixture() (*Monitor, *events.Hub, *fakeTransport, *fakeDevice, *fakeGATT, *fakeCharacteristic) {
	measChar := &fakeCharacteristic{
		uuid:  device.CharMeasurement,
		props: device.Properties{Indicate: true},
	}
	featChar := &fakeCharacteristic{
		uuid:  device.CharFeature,
		props: device.Properties{Read: true},
		value: []byte{0x07, 0x00}, // body movement + cuff fit + irregular pulse
	}
	svc := &fakeService{
		uuid: device.ServiceBloodPressure,
		chars: map[string]*fakeCharacteristic{
			device.CharMeasurement: measChar,
			device.CharFeature:     featChar,
		},
	}
	gatt := &fakeGATT{services: map[string]*fakeService{device.ServiceBloodPressure: svc}}
	dev := &fakeDevice{id: "AA:BB:CC:DD:EE:FF", name: "BP Cuff A200", gatt: gatt}
	transport := &fakeTransport{dev: dev}
	hub := events.NewHub(quietLogger())

	return New(transport, hub, quietLogger()), hub, transport, dev, gatt, measChar
}
