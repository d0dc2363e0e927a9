package rpc

import (
	"errors"
	"fmt"
	"strings"
)

// DeviceCodeAccessDenied is the ubus status the device answers with when a
// session token is unknown or expired.
const DeviceCodeAccessDenied = 6

// TransportError wraps a connection-level failure (dial, timeout, non-2xx).
// These are retried at the transport layer before they surface.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RPCError is a JSON-RPC level error reported in the response envelope
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC Error %d: %s", e.Code, e.Message)
}

// DeviceError is an inner ubus return code other than 0
type DeviceError struct {
	Code int
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("ubus call error: code=%d", e.Code)
}

// MalformedResponseError indicates a response that does not follow the
// [returnCode, payload] convention. Never retried.
type MalformedResponseError struct {
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed RPC response: %s", e.Reason)
}

// IsSessionExpired reports whether err looks like a session-expiry failure.
// The device has no documented contract for this; detection matches the
// known access-denied code and the error text markers it is known to emit.
func IsSessionExpired(err error) bool {
	if err == nil {
		return false
	}

	var devErr *DeviceError
	if errors.As(err, &devErr) && devErr.Code == DeviceCodeAccessDenied {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "access denied") ||
		strings.Contains(msg, "session expired") ||
		strings.Contains(msg, "code=6")
}

// IsTransport reports whether err originated below the RPC envelope
func IsTransport(err error) bool {
	var tErr *TransportError
	return errors.As(err, &tErr)
}
