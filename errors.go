package abd

import "fmt"

// ProtocolError is fatal for the transport it occurred on: framing failures,
// bad magic, oversize payloads, or (protocol v1 only) checksum mismatches.
// The transport that surfaces one always kicks.
type ProtocolError struct{ error }

func newProtocolError(format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{fmt.Errorf(format, args...)}
}

// AuthError leaves the transport in Unauthorized; the peer may retry with a
// fresh AUTH packet.
type AuthError struct{ error }

func newAuthError(format string, args ...interface{}) *AuthError {
	return &AuthError{fmt.Errorf(format, args...)}
}

// ServiceError never touches transport state: it only produces a CLSE back
// to whoever sent the OPEN.
type ServiceError struct{ error }

func newServiceError(format string, args ...interface{}) *ServiceError {
	return &ServiceError{fmt.Errorf(format, args...)}
}

// TransientIOError comes from a Connection's on_error callback and always
// results in a kick; there is no retry at this layer.
type TransientIOError struct{ error }

func newTransientIOError(err error) *TransientIOError {
	return &TransientIOError{err}
}

// PolicyError refuses a service start (e.g. trade-in or locked mode
// forbids the requested command) without otherwise touching the transport.
type PolicyError struct{ error }

func newPolicyError(format string, args ...interface{}) *PolicyError {
	return &PolicyError{fmt.Errorf(format, args...)}
}

// StateError marks an operation attempted on an already-closed socket; the
// caller should silently no-op rather than propagate it further.
type StateError struct{ error }

func newStateError(format string, args ...interface{}) *StateError {
	return &StateError{fmt.Errorf(format, args...)}
}

var (
	ErrUnknownService  = newServiceError("unknown or unroutable service")
	ErrSocketClosed    = newStateError("operation on a closed local socket")
	ErrTransportOffline = newStateError("transport is offline")
	ErrNoCredit        = newStateError("socket is not ready to send")
)
