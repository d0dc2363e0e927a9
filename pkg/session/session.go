// Package session owns the authenticated device session: login, the stored
// credentials behind silent re-authentication, and the retry-once policy
// for session-expiry failures.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/oasis-home/oasisctl/internal/models"
	"github.com/oasis-home/oasisctl/pkg/oasis"
	"github.com/oasis-home/oasisctl/pkg/rpc"
	"github.com/sirupsen/logrus"
)

// PlaceholderHost is the unconfigured default host value; logins against it
// are rejected before any network traffic.
const PlaceholderHost = "oasis-device-ip"

// ErrorClass partitions failures into the two recovery flows the UI knows
type ErrorClass int

const (
	// ClassOther is an ordinary failure, surfaced to the user
	ClassOther ErrorClass = iota
	// ClassSessionExpired asks for a silent reconnect attempt
	ClassSessionExpired
)

// ErrNotAuthenticated is returned for operations that need a session before
// any login succeeded
var ErrNotAuthenticated = fmt.Errorf("not authenticated")

// Manager holds at most one active session per process. A session id is
// replaced wholesale on re-login and never reused after logout.
type Manager struct {
	api    *oasis.API
	logger *logrus.Logger

	mu        sync.Mutex
	sessionID string
	creds     models.Credentials
}

// NewManager creates a session manager over the typed API
func NewManager(api *oasis.API, logger *logrus.Logger) *Manager {
	return &Manager{api: api, logger: logger}
}

// Login authenticates against host and stores the credentials for later
// silent re-login. The RPC client is re-pointed at the host first.
func (m *Manager) Login(ctx context.Context, host, username, password string) (string, error) {
	if strings.Contains(host, PlaceholderHost) || strings.TrimSpace(host) == "" {
		return "", fmt.Errorf("device host is not configured")
	}

	m.api.Client().SetBaseURL(host)

	sessionID, err := m.api.Login(ctx, username, password)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.sessionID = sessionID
	m.creds = models.Credentials{Host: host, Username: username, Password: password}
	m.mu.Unlock()

	m.logger.WithField("host", host).Info("Logged in to device")
	return sessionID, nil
}

// SessionID returns the current session id, empty when logged out
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Authenticated reports whether a login has succeeded since the last logout
func (m *Manager) Authenticated() bool {
	return m.SessionID() != ""
}

// Credentials returns the stored credentials, if any
func (m *Manager) Credentials() (models.Credentials, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds, m.creds.Valid()
}

// WithRetryOnExpiry runs op with the current session id. When op fails and
// credentials are stored, one silent re-login and one retry with the fresh
// session id are attempted; the second failure (or the first, without
// credentials) propagates unchanged. Never more than one retry per call.
func (m *Manager) WithRetryOnExpiry(ctx context.Context, op func(ctx context.Context, sessionID string) error) error {
	sid := m.SessionID()
	if sid == "" {
		return ErrNotAuthenticated
	}

	firstErr := op(ctx, sid)
	if firstErr == nil {
		return nil
	}

	creds, ok := m.Credentials()
	if !ok {
		return firstErr
	}

	m.logger.WithError(firstErr).Debug("Operation failed, attempting silent re-login")
	newSID, err := m.Login(ctx, creds.Host, creds.Username, creds.Password)
	if err != nil {
		return firstErr
	}

	if err := op(ctx, newSID); err != nil {
		return err
	}
	return nil
}

// Classify buckets err into the recovery flow it should drive
func (m *Manager) Classify(err error) ErrorClass {
	if rpc.IsSessionExpired(err) {
		return ClassSessionExpired
	}
	return ClassOther
}

// Logout drops the session and credentials locally; the device is not
// contacted.
func (m *Manager) Logout() {
	m.mu.Lock()
	m.sessionID = ""
	m.creds = models.Credentials{}
	m.mu.Unlock()
	m.logger.Info("Logged out")
}
