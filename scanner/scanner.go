package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cornelk/hashmap"
	blelib "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
)

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// ErrDeviceInit marks a failure to obtain the host BLE adapter.
var ErrDeviceInit = errors.New("failed to create BLE device")

// EventType marks if the cuff was newly discovered or updated
type EventType int

const (
	EventNew EventType = iota
	EventUpdated
)

// Event is emitted for every advertisement accepted by the filters.
type Event struct {
	Type EventType
	Cuff Cuff
}

// Cuff is a discovered blood pressure peripheral.
type Cuff struct {
	Address  string
	Name     string
	RSSI     int
	Services []string
	LastSeen time.Time
}

// Scanner handles BLE cuff discovery
type Scanner struct {
	devices *hashmap.Map[string, Cuff]
	events  chan Event
	logger  *logrus.Logger

	scanOptions *Options
	scanDevice  blelib.Device
}

// Options configures scanning behavior
type Options struct {
	Duration        time.Duration
	DuplicateFilter bool
	ServiceUUIDs    []blelib.UUID
	AllowList       []string
	BlockList       []string
}

// DefaultOptions returns scanning options restricted to the blood pressure
// profile: the standard 0x1810 service plus the vendor service some cuffs
// advertise instead.
func DefaultOptions() *Options {
	return &Options{
		Duration:        10 * time.Second,
		DuplicateFilter: true,
		ServiceUUIDs: []blelib.UUID{
			blelib.UUID16(0x1810),
			blelib.UUID16(0xfe4a),
		},
	}
}

// New creates a new BLE scanner
func New(logger *logrus.Logger) (*Scanner, error) {
	if logger == nil {
		logger = logrus.New()
	}

	return &Scanner{
		events: make(chan Event, 100),
		logger: logger,
	}, nil
}

// Scan performs BLE discovery with the provided options and returns the
// accepted cuffs sorted by signal strength, strongest first.
func (s *Scanner) Scan(ctx context.Context, opts *Options, progressCallback ProgressCallback) ([]Cuff, error) {
	s.devices = hashmap.New[string, Cuff]()

	if opts == nil {
		opts = DefaultOptions()
	}
	if progressCallback == nil {
		progressCallback = func(string) {} // No-op callback
	}

	s.logger.WithField("duration", opts.Duration).Info("Starting BLE scan...")

	// Report scanning phase
	progressCallback("Scanning")

	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceInit, err)
	}
	// Register the adapter as the package default so callers can dial the
	// discovered cuffs without opening a second host handle.
	blelib.SetDefaultDevice(dev)
	s.scanDevice = dev

	scanCtx := ctx
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	s.scanOptions = opts
	defer func() {
		s.scanOptions = nil
	}()
	err = s.scanDevice.Scan(scanCtx, opts.DuplicateFilter, s.handleAdvertisement)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	s.logger.WithField("device_count", s.devices.Len()).Info("BLE scan completed")

	// Report processing phase
	progressCallback("Processing results")

	return s.makeCuffList(), nil
}

// handleAdvertisement updates an existing cuff or records a new one
func (s *Scanner) handleAdvertisement(adv blelib.Advertisement) {
	address := adv.Addr().String()

	prev, existing := s.devices.Get(address)
	if !existing && !s.shouldIncludeDevice(adv, s.scanOptions) {
		return
	}

	cuff := Cuff{
		Address:  address,
		Name:     adv.LocalName(),
		RSSI:     adv.RSSI(),
		LastSeen: time.Now(),
	}
	for _, u := range adv.Services() {
		cuff.Services = append(cuff.Services, u.String())
	}
	if cuff.Name == "" && existing {
		// Scan responses without a local name must not erase one we saw earlier
		cuff.Name = prev.Name
	}
	s.devices.Set(address, cuff)

	event := Event{Cuff: cuff}
	if existing {
		event.Type = EventUpdated
	} else {
		s.logger.WithFields(logrus.Fields{
			"device":  cuff.Name,
			"address": cuff.Address,
			"rssi":    cuff.RSSI,
		}).Info("Discovered blood pressure cuff")
		event.Type = EventNew
	}

	select {
	case s.events <- event:
	default:
		// Slow consumer, drop rather than stall the advertisement handler
	}
}

// shouldIncludeDevice applies allow/block/service filters
func (s *Scanner) shouldIncludeDevice(adv blelib.Advertisement, opts *Options) bool {
	addr := adv.Addr().String()

	for _, blocked := range opts.BlockList {
		if addr == blocked {
			return false
		}
	}

	if len(opts.AllowList) > 0 {
		allowed := false
		for _, a := range opts.AllowList {
			if addr == a {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if len(opts.ServiceUUIDs) > 0 {
		hasRequired := false
		for _, required := range opts.ServiceUUIDs {
			for _, advUUID := range adv.Services() {
				if required.Equal(advUUID) {
					hasRequired = true
					break
				}
			}
			if hasRequired {
				break
			}
		}
		if !hasRequired {
			return false
		}
	}

	return true
}

// makeCuffList returns a snapshot of discovered cuffs sorted by RSSI
func (s *Scanner) makeCuffList() []Cuff {
	cuffs := make([]Cuff, 0, s.devices.Len())

	s.devices.Range(func(key string, value Cuff) bool {
		cuffs = append(cuffs, value)
		return true
	})

	sort.Slice(cuffs, func(i, j int) bool {
		if cuffs[i].RSSI != cuffs[j].RSSI {
			return cuffs[i].RSSI > cuffs[j].RSSI
		}
		return cuffs[i].Address < cuffs[j].Address
	})

	return cuffs
}

// Events returns a read-only channel of discovery events
func (s *Scanner) Events() <-chan Event {
	return s.events
}
