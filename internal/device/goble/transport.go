// Package goble backs the device interfaces with the go-ble host stack.
// Discovery delegates to the scanner package; connection, service lookup
// and notification plumbing wrap a live ble.Client.
package goble

import (
	"context"
	"errors"
	"fmt"
	"time"

	blelib "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/bpmon/internal/device"
	"github.com/srg/bpmon/scanner"
)

const (
	// DefaultScanTimeout bounds cuff discovery during device selection.
	DefaultScanTimeout = 10 * time.Second

	// DefaultConnectTimeout bounds the GATT dial plus profile discovery.
	DefaultConnectTimeout = 15 * time.Second
)

// Chooser selects one cuff from the scan results and returns its index.
// Returning an error aborts selection; device.ErrUserCancelled marks an
// explicit dismissal. A nil Chooser picks the strongest signal.
type Chooser func(cuffs []scanner.Cuff) (int, error)

// Transport implements device.Transport on top of the go-ble stack.
type Transport struct {
	ScanTimeout    time.Duration
	ConnectTimeout time.Duration
	Choose         Chooser

	logger *logrus.Logger
}

// NewTransport creates a Transport with default timeouts.
func NewTransport(logger *logrus.Logger) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	return &Transport{
		ScanTimeout:    DefaultScanTimeout,
		ConnectTimeout: DefaultConnectTimeout,
		logger:         logger,
	}
}

// RequestDevice scans for cuffs matching the filter and lets the chooser pick
// one. The returned handle is not yet connected.
func (t *Transport) RequestDevice(ctx context.Context, filter device.Filter) (device.Device, error) {
	opts := scanner.DefaultOptions()
	opts.Duration = t.ScanTimeout
	if uuids := parseServiceFilter(filter, t.logger); len(uuids) > 0 {
		opts.ServiceUUIDs = uuids
	}

	s, err := scanner.New(t.logger)
	if err != nil {
		return nil, err
	}

	// The scanner opens the host adapter and registers it as the go-ble
	// default, so the later dial in ConnectGATT reuses the same handle.
	cuffs, err := s.Scan(ctx, opts, nil)
	if err != nil {
		if errors.Is(err, scanner.ErrDeviceInit) {
			return nil, fmt.Errorf("%w: %v", device.ErrNotSupported, err)
		}
		if normalized := NormalizeError(err); errors.Is(normalized, device.ErrNotSupported) {
			return nil, normalized
		}
		return nil, fmt.Errorf("%w: %v", device.ErrConnectionFailed, err)
	}
	if len(cuffs) == 0 {
		return nil, fmt.Errorf("%w: no blood pressure cuffs found", device.ErrConnectionFailed)
	}

	idx := 0
	if t.Choose != nil {
		idx, err = t.Choose(cuffs)
		if err != nil {
			var cerr *device.ConnectionError
			if errors.As(err, &cerr) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", device.ErrUserCancelled, err)
		}
		if idx < 0 || idx >= len(cuffs) {
			return nil, fmt.Errorf("%w: selection out of range", device.ErrUserCancelled)
		}
	}

	cuff := cuffs[idx]
	t.logger.WithFields(logrus.Fields{
		"device":  cuff.Name,
		"address": cuff.Address,
		"rssi":    cuff.RSSI,
	}).Info("Selected blood pressure cuff")

	return newPeripheral(cuff, t.ConnectTimeout, t.logger), nil
}

// parseServiceFilter converts the filter's short-form UUIDs, dropping any
// that do not parse.
func parseServiceFilter(filter device.Filter, logger *logrus.Logger) []blelib.UUID {
	uuids := make([]blelib.UUID, 0, len(filter.Services))
	for _, s := range filter.Services {
		u, err := blelib.Parse(s)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"uuid":  s,
				"error": err,
			}).Warn("Ignoring unparseable service UUID in filter")
			continue
		}
		uuids = append(uuids, u)
	}
	return uuids
}
