// Package device defines the Bluetooth transport capability the blood
// pressure core consumes, and the typed failure taxonomy of connection
// operations. The host platform supplies an implementation (see goble);
// tests supply fakes.
package device

import "context"

// Blood Pressure Profile UUIDs (Bluetooth SIG assigned numbers, short form).
const (
	ServiceBloodPressure = "1810"
	// ServiceVendorFallback is the vendor-specific service some cuffs expose
	// instead of the standard profile. Exactly one fallback attempt is made
	// against it during discovery.
	ServiceVendorFallback = "fe4a"

	CharMeasurement = "2a35"
	CharFeature     = "2a49"
)

// Filter restricts device selection to peripherals advertising at least one
// of the listed service UUIDs.
type Filter struct {
	Services []string
}

// Transport is the entry point to the platform Bluetooth stack: it selects
// a device, possibly interactively. Implementations return ErrUserCancelled
// when the user dismisses the chooser and ErrNotSupported when no Bluetooth
// capability is available.
type Transport interface {
	RequestDevice(ctx context.Context, filter Filter) (Device, error)
}

// Device is a selected peripheral handle. At most one GATT connection is
// held per device at a time; the caller owns sequencing.
type Device interface {
	ID() string
	Name() string

	ConnectGATT(ctx context.Context) (GATTServer, error)
	Disconnect() error

	// SetDisconnectHandler registers fn to be invoked on a transport-level
	// (unsolicited) disconnect. Programmatic Disconnect does not fire it.
	SetDisconnectHandler(fn func())
}

// GATTServer is an open GATT connection.
type GATTServer interface {
	PrimaryService(uuid string) (Service, error)
}

// Service is a discovered GATT service.
type Service interface {
	UUID() string
	Characteristic(uuid string) (Characteristic, error)
}

// Properties describes which operations a characteristic supports.
type Properties struct {
	Read     bool
	Notify   bool
	Indicate bool
}

// Characteristic is a discovered GATT characteristic handle.
type Characteristic interface {
	UUID() string
	Properties() Properties

	ReadValue(ctx context.Context) ([]byte, error)

	// StartNotifications subscribes to value changes; fn runs synchronously
	// on the transport's notification callback. Only one outstanding
	// subscription per characteristic is modeled.
	StartNotifications(fn func(data []byte)) error
	StopNotifications() error
}
