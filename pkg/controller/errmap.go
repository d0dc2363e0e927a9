package controller

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/oasis-home/oasisctl/pkg/oasis"
	"github.com/oasis-home/oasisctl/pkg/rpc"
)

// User-facing error strings, one per failure category
const (
	msgNetwork      = "Could not reach the device. Check the network connection."
	msgTimeout      = "The device did not respond in time."
	msgAccessDenied = "Access denied by the device."
	msgAuth         = "Session expired. Please log in again."
	msgUnknownPfx   = "Unexpected error: "
)

// MapError converts any failure into the single user-facing string the UI
// shows. Categories: network, timeout, access-denied, auth, unknown.
func MapError(err error) string {
	if err == nil {
		return ""
	}

	var authErr *oasis.AuthError
	if errors.As(err, &authErr) {
		return msgAuth
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return msgTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return msgTimeout
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") {
		return msgTimeout
	}

	if rpc.IsTransport(err) ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "failed to connect") {
		return msgNetwork
	}

	// An explicit "session expired" asks for a fresh login; the broader
	// heuristic (code 6, "access denied") is a plain authorization failure.
	if strings.Contains(msg, "session expired") {
		return msgAuth
	}
	if rpc.IsSessionExpired(err) {
		return msgAccessDenied
	}

	return msgUnknownPfx + err.Error()
}
