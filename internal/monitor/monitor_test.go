package monitor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/srg/bpmon/internal/bpm"
	"github.com/srg/bpmon/internal/device"
	"github.com/srg/bpmon/internal/events"
)

type MonitorTestSuite struct {
	suite.Suite

	monitor   *Monitor
	hub       *events.Hub
	transport *fakeTransport
	dev       *fakeDevice
	gatt      *fakeGATT
	measChar  *fakeCharacteristic
}

func (suite *MonitorTestSuite) SetupTest() {
	suite.monitor, suite.hub, suite.transport, suite.dev, suite.gatt, suite.measChar = newFixture()
}

func TestMonitorTestSuite(t *testing.T) {
	suite.Run(t, new(MonitorTestSuite))
}

func (suite *MonitorTestSuite) TestConnectStandardService() {
	// GOAL: Verify the happy path connects via the standard profile
	//
	// TEST SCENARIO: Cuff exposes service 1810 → connect → subscribed, features read, state Connected

	info, err := suite.monitor.Connect(context.Background())

	suite.Require().NoError(err)
	suite.Require().NotNil(info)
	suite.Assert().Equal("BP Cuff A200", info.Name)
	suite.Assert().Equal("AA:BB:CC:DD:EE:FF", info.ID)
	suite.Assert().Equal(VariantStandard, info.ServiceVariant, "standard service MUST win when present")
	suite.Assert().Equal(StateConnected, suite.monitor.State())
	suite.Assert().NotNil(suite.measChar.notifyFn, "measurement characteristic MUST be subscribed")
	suite.Assert().Equal([]string{device.ServiceBloodPressure}, suite.gatt.discovered,
		"no fallback attempt when the standard service resolves")

	features, ok := suite.monitor.Features()
	suite.Require().True(ok, "feature bitmap MUST be captured when readable")
	suite.Assert().True(features.Has(bpm.FeatureBodyMovementDetection | bpm.FeatureCuffFitDetection | bpm.FeatureIrregularPulseDetection))
	suite.Assert().False(features.Has(bpm.FeatureMultipleBond))
}

func (suite *MonitorTestSuite) TestConnectVendorFallback() {
	// GOAL: Verify exactly one fallback attempt against the vendor service
	//
	// TEST SCENARIO: No standard service → vendor service found → connected with vendor variant

	svc := suite.gatt.services[device.ServiceBloodPressure]
	delete(suite.gatt.services, device.ServiceBloodPressure)
	svc.uuid = device.ServiceVendorFallback
	suite.gatt.services[device.ServiceVendorFallback] = svc

	info, err := suite.monitor.Connect(context.Background())

	suite.Require().NoError(err)
	suite.Assert().Equal(VariantVendor, info.ServiceVariant)
	suite.Assert().Equal([]string{device.ServiceBloodPressure, device.ServiceVendorFallback},
		suite.gatt.discovered, "standard MUST be tried first, vendor exactly once after")
}

func (suite *MonitorTestSuite) TestConnectNoServiceFound() {
	// GOAL: Verify discovery stops after the single vendor fallback
	//
	// TEST SCENARIO: Neither service present → ConnectionFailed → exactly two discovery attempts

	suite.gatt.services = map[string]*fakeService{}

	info, err := suite.monitor.Connect(context.Background())

	suite.Assert().Nil(info)
	suite.Assert().ErrorIs(err, device.ErrConnectionFailed)
	suite.Assert().Equal([]string{device.ServiceBloodPressure, device.ServiceVendorFallback},
		suite.gatt.discovered, "MUST NOT attempt a second fallback")
	suite.Assert().Equal(StateDisconnected, suite.monitor.State())
	suite.Assert().Equal(1, suite.dev.disconnectCalls, "half-open connection MUST be torn down")
}

func (suite *MonitorTestSuite) TestConnectUserCancelled() {
	// GOAL: Verify chooser dismissal surfaces as UserCancelled, untouched
	//
	// TEST SCENARIO: Transport reports cancellation → error passes through → state Disconnected

	suite.transport.err = device.ErrUserCancelled

	info, err := suite.monitor.Connect(context.Background())

	suite.Assert().Nil(info)
	suite.Assert().ErrorIs(err, device.ErrUserCancelled)
	suite.Assert().Equal(StateDisconnected, suite.monitor.State())
}

func (suite *MonitorTestSuite) TestConnectWithoutTransport() {
	// GOAL: Verify a monitor without a transport capability fails typed
	//
	// TEST SCENARIO: nil transport → NotSupported

	m := New(nil, suite.hub, quietLogger())

	info, err := m.Connect(context.Background())

	suite.Assert().Nil(info)
	suite.Assert().ErrorIs(err, device.ErrNotSupported)
}

func (suite *MonitorTestSuite) TestConnectNotificationsUnsupported() {
	// GOAL: Verify incompatible hardware is rejected with a distinct error
	//
	// TEST SCENARIO: Measurement characteristic is read-only → NotificationsUnsupported → cleanup

	suite.measChar.props = device.Properties{Read: true}

	info, err := suite.monitor.Connect(context.Background())

	suite.Assert().Nil(info)
	suite.Assert().ErrorIs(err, device.ErrNotificationsUnsupported)
	suite.Assert().Equal(1, suite.dev.disconnectCalls)
	suite.Assert().Equal(StateDisconnected, suite.monitor.State())
}

func (suite *MonitorTestSuite) TestConnectFeatureReadFailureIsSwallowed() {
	// GOAL: Verify the feature bitmap is optional data
	//
	// TEST SCENARIO: Feature characteristic read fails → connect succeeds → Features reports absent

	svc := suite.gatt.services[device.ServiceBloodPressure]
	svc.chars[device.CharFeature].readErr = errors.New("read not permitted")

	info, err := suite.monitor.Connect(context.Background())

	suite.Require().NoError(err, "feature read failure MUST NOT fail connect")
	suite.Require().NotNil(info)

	_, ok := suite.monitor.Features()
	suite.Assert().False(ok)
}

func (suite *MonitorTestSuite) TestConnectWhileConnected() {
	// GOAL: Verify double connect is rejected instead of silently reconnecting
	//
	// TEST SCENARIO: Connect twice → second fails with AlreadyConnected → first connection untouched

	_, err := suite.monitor.Connect(context.Background())
	suite.Require().NoError(err)

	info, err := suite.monitor.Connect(context.Background())

	suite.Assert().Nil(info)
	suite.Assert().ErrorIs(err, device.ErrAlreadyConnected)
	suite.Assert().Equal(StateConnected, suite.monitor.State())
	suite.Assert().Equal(1, suite.transport.requests, "second connect MUST NOT reach the transport")
}

func (suite *MonitorTestSuite) TestNotificationPublishesMeasurement() {
	// GOAL: Verify inbound indications flow through parsing into the hub
	//
	// TEST SCENARIO: Valid payload arrives → measurement event with decoded values and stage

	var got *bpm.Measurement
	suite.hub.OnMeasurement(func(m *bpm.Measurement) { got = m })

	_, err := suite.monitor.Connect(context.Background())
	suite.Require().NoError(err)

	suite.measChar.notify(measurementPayload)

	suite.Require().NotNil(got, "measurement event MUST be published")
	suite.Assert().Equal(120.0, got.Systolic)
	suite.Assert().Equal(80.0, got.Diastolic)
	suite.Assert().Equal(93.0, got.MeanArterial)
	suite.Require().NotNil(got.PulseRate)
	suite.Assert().Equal(70.0, *got.PulseRate)
	suite.Assert().Equal(bpm.StageNormal, got.Stage())
	suite.Assert().False(got.ReceivedAt.IsZero(), "host capture time MUST be set")
}

func (suite *MonitorTestSuite) TestMalformedNotificationIsIsolated() {
	// GOAL: Verify a malformed frame cannot break event dispatch
	//
	// TEST SCENARIO: Truncated payload arrives → no event, no panic → later valid payloads still flow

	var count int
	suite.hub.OnMeasurement(func(*bpm.Measurement) { count++ })

	_, err := suite.monitor.Connect(context.Background())
	suite.Require().NoError(err)

	suite.measChar.notify([]byte{0x1F, 0x78}) // flags demand far more bytes
	suite.Assert().Equal(0, count, "malformed payload MUST NOT produce an event")

	suite.measChar.notify(measurementPayload)
	suite.Assert().Equal(1, count, "decoding MUST keep working after a bad frame")
}

func (suite *MonitorTestSuite) TestUnexpectedDisconnect() {
	// GOAL: Verify transport-level loss is published tagged unexpected
	//
	// TEST SCENARIO: Device drops → disconnected{unexpected:true} → state cleared

	var got []events.Disconnect
	suite.hub.OnDisconnected(func(d events.Disconnect) { got = append(got, d) })

	_, err := suite.monitor.Connect(context.Background())
	suite.Require().NoError(err)

	suite.dev.dropConnection()

	suite.Require().Len(got, 1)
	suite.Assert().True(got[0].Unexpected)
	suite.Assert().Equal(StateDisconnected, suite.monitor.State())
	suite.Assert().Nil(suite.monitor.Device(), "device info MUST be cleared")
}

func (suite *MonitorTestSuite) TestManualDisconnect() {
	// GOAL: Verify programmatic disconnect unsubscribes and reports expected
	//
	// TEST SCENARIO: Disconnect() → stop-notifications + GATT disconnect → disconnected{unexpected:false}

	var got []events.Disconnect
	suite.hub.OnDisconnected(func(d events.Disconnect) { got = append(got, d) })

	_, err := suite.monitor.Connect(context.Background())
	suite.Require().NoError(err)

	suite.Require().NoError(suite.monitor.Disconnect())

	suite.Assert().Equal(1, suite.measChar.stopCalls, "notifications MUST be stopped")
	suite.Assert().Equal(1, suite.dev.disconnectCalls)
	suite.Assert().Equal(StateDisconnected, suite.monitor.State())
	suite.Require().Len(got, 1)
	suite.Assert().False(got[0].Unexpected)
}

func (suite *MonitorTestSuite) TestDisconnectIsIdempotent() {
	// GOAL: Verify disconnect when already disconnected is harmless
	//
	// TEST SCENARIO: Disconnect twice → second is a no-op → no extra events

	var count int
	suite.hub.OnDisconnected(func(events.Disconnect) { count++ })

	_, err := suite.monitor.Connect(context.Background())
	suite.Require().NoError(err)

	suite.Require().NoError(suite.monitor.Disconnect())
	suite.Require().NoError(suite.monitor.Disconnect())

	suite.Assert().Equal(1, count, "repeated disconnect MUST NOT emit another event")
	suite.Assert().Equal(StateDisconnected, suite.monitor.State())
}

func (suite *MonitorTestSuite) TestDisconnectSwallowsStopNotificationsFailure() {
	// GOAL: Verify stop-notifications failure does not abort disconnect
	//
	// TEST SCENARIO: StopNotifications errors (device gone) → disconnect proceeds, state cleared

	suite.measChar.stopErr = errors.New("device unreachable")

	_, err := suite.monitor.Connect(context.Background())
	suite.Require().NoError(err)

	suite.Assert().NoError(suite.monitor.Disconnect(),
		"stop-notifications failure MUST be swallowed")
	suite.Assert().Equal(1, suite.dev.disconnectCalls, "GATT disconnect MUST still run")
	suite.Assert().Equal(StateDisconnected, suite.monitor.State())
}

func (suite *MonitorTestSuite) TestDisconnectReportsGATTFailureButClearsState() {
	// GOAL: Verify state is cleared deterministically even on GATT failure
	//
	// TEST SCENARIO: Device disconnect errors → error surfaced → state still Disconnected

	suite.dev.disconnectErr = errors.New("link timeout")

	_, err := suite.monitor.Connect(context.Background())
	suite.Require().NoError(err)

	err = suite.monitor.Disconnect()

	suite.Assert().ErrorIs(err, device.ErrConnectionFailed)
	suite.Assert().Equal(StateDisconnected, suite.monitor.State())
}

func (suite *MonitorTestSuite) TestRequestFilterCoversBothServices() {
	// GOAL: Verify device selection filters on standard and fallback UUIDs
	//
	// TEST SCENARIO: Connect → transport receives both service UUIDs in the filter

	_, err := suite.monitor.Connect(context.Background())
	suite.Require().NoError(err)

	suite.Assert().Equal([]string{device.ServiceBloodPressure, device.ServiceVendorFallback},
		suite.transport.lastFilter.Services)
}
