package device

import (
	"errors"
	"fmt"
)

// FailureKind identifies the category of a connection failure.
type FailureKind string

const (
	// NotSupported: no Bluetooth transport capability is available. Fatal to
	// the operation, not to the process.
	NotSupported FailureKind = "not_supported"
	// UserCancelled: the user dismissed the device chooser. Expected flow,
	// not logged as an error.
	UserCancelled FailureKind = "user_cancelled"
	// ConnectionFailed: a GATT-level failure. Retryable by the caller, never
	// retried automatically here.
	ConnectionFailed FailureKind = "connection_failed"
	// NotificationsUnsupported: the measurement characteristic supports
	// neither notify nor indicate. Fatal for that device.
	NotificationsUnsupported FailureKind = "notifications_unsupported"
	// AlreadyConnected: Connect was called while a connection is active.
	AlreadyConnected FailureKind = "already_connected"
	// NotConnected: an operation that requires an active connection was
	// attempted without one.
	NotConnected FailureKind = "not_connected"
)

// ConnectionError is a typed connection failure.
type ConnectionError struct {
	Kind FailureKind
	Msg  string
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by Kind.
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel errors for the connection failure taxonomy. Wrap with %w and a
// message to add context while keeping errors.Is matching.
var (
	ErrNotSupported             = &ConnectionError{Kind: NotSupported}
	ErrUserCancelled            = &ConnectionError{Kind: UserCancelled}
	ErrConnectionFailed         = &ConnectionError{Kind: ConnectionFailed}
	ErrNotificationsUnsupported = &ConnectionError{Kind: NotificationsUnsupported}
	ErrAlreadyConnected         = &ConnectionError{Kind: AlreadyConnected}
	ErrNotConnected             = &ConnectionError{Kind: NotConnected}
)

// IsFailure reports whether err is a ConnectionError of the given kind.
func IsFailure(err error, kind FailureKind) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.Kind == kind
	}
	return false
}
