package main

import (
	"context"
	"errors"

	"github.com/srg/bpmon/internal/device"
)

// FormatUserError turns the connection failure taxonomy into messages a user
// can act on; anything unrecognized is printed as-is.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, device.ErrNotSupported):
		return "Bluetooth is not available. Check that the adapter is present and powered on."
	case errors.Is(err, device.ErrUserCancelled):
		return "Device selection cancelled."
	case errors.Is(err, device.ErrNotificationsUnsupported):
		return "This cuff does not support measurement notifications and cannot be monitored."
	case errors.Is(err, device.ErrAlreadyConnected):
		return "Already connected to a cuff. Disconnect first."
	case errors.Is(err, device.ErrConnectionFailed):
		return "Could not connect to the cuff. Make sure it is awake and in range, then try again."
	case errors.Is(err, context.DeadlineExceeded):
		return "Operation timed out."
	default:
		return err.Error()
	}
}
