package session_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oasis-home/oasisctl/pkg/config"
	"github.com/oasis-home/oasisctl/pkg/devicesim"
	"github.com/oasis-home/oasisctl/pkg/oasis"
	"github.com/oasis-home/oasisctl/pkg/rpc"
	"github.com/oasis-home/oasisctl/pkg/session"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func setupManager(t *testing.T) (*session.Manager, *oasis.API, *devicesim.Server, string) {
	cfg := &config.Config{
		Sim: config.SimConfig{
			Port:          8080,
			Username:      "root",
			Password:      "secret",
			SessionTTLSec: 300,
		},
	}
	sim, err := devicesim.New(cfg, testLogger())
	require.NoError(t, err)

	ts := httptest.NewServer(sim.Engine())
	t.Cleanup(ts.Close)

	client := rpc.New(testLogger(), rpc.WithRetry(2, time.Millisecond))
	api := oasis.NewAPI(client)
	return session.NewManager(api, testLogger()), api, sim, ts.URL
}

func TestLogin_PlaceholderHostRejected(t *testing.T) {
	mgr, _, _, _ := setupManager(t)

	_, err := mgr.Login(context.Background(), "oasis-device-ip", "root", "secret")
	require.Error(t, err)
	assert.False(t, mgr.Authenticated())

	_, err = mgr.Login(context.Background(), "http://oasis-device-ip/", "root", "secret")
	require.Error(t, err)

	_, err = mgr.Login(context.Background(), "   ", "root", "secret")
	require.Error(t, err)
}

func TestLogin_StoresSessionAndCredentials(t *testing.T) {
	mgr, _, _, url := setupManager(t)

	sid, err := mgr.Login(context.Background(), url, "root", "secret")
	require.NoError(t, err)
	assert.Len(t, sid, 32)
	assert.Equal(t, sid, mgr.SessionID())
	assert.True(t, mgr.Authenticated())

	creds, ok := mgr.Credentials()
	require.True(t, ok)
	assert.Equal(t, "root", creds.Username)
}

func TestLogin_BadCredentials(t *testing.T) {
	mgr, _, _, url := setupManager(t)

	_, err := mgr.Login(context.Background(), url, "root", "wrong")
	require.Error(t, err)
	assert.False(t, mgr.Authenticated())
}

func TestWithRetryOnExpiry_NotAuthenticated(t *testing.T) {
	mgr, _, _, _ := setupManager(t)

	err := mgr.WithRetryOnExpiry(context.Background(), func(ctx context.Context, sid string) error {
		t.Fatal("op must not run without a session")
		return nil
	})
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)
}

func TestWithRetryOnExpiry_RecoversExpiredSession(t *testing.T) {
	mgr, api, sim, url := setupManager(t)
	ctx := context.Background()

	first, err := mgr.Login(ctx, url, "root", "secret")
	require.NoError(t, err)

	sim.ExpireSessions()

	var calls atomic.Int32
	err = mgr.WithRetryOnExpiry(ctx, func(ctx context.Context, sid string) error {
		calls.Add(1)
		_, opErr := api.BaseInfo(ctx, sid)
		return opErr
	})
	require.NoError(t, err)

	// One failed attempt, one silent re-login, one successful retry
	assert.Equal(t, int32(2), calls.Load())
	assert.NotEqual(t, first, mgr.SessionID())
}

func TestWithRetryOnExpiry_SecondFailurePropagates(t *testing.T) {
	mgr, _, _, url := setupManager(t)
	ctx := context.Background()

	_, err := mgr.Login(ctx, url, "root", "secret")
	require.NoError(t, err)

	var calls atomic.Int32
	opErr := fmt.Errorf("tool rejected")
	err = mgr.WithRetryOnExpiry(ctx, func(ctx context.Context, sid string) error {
		calls.Add(1)
		return opErr
	})
	assert.ErrorIs(t, err, opErr)

	// Never more than one retry per call
	assert.Equal(t, int32(2), calls.Load())
}

func TestClassify(t *testing.T) {
	mgr, _, _, _ := setupManager(t)

	assert.Equal(t, session.ClassSessionExpired, mgr.Classify(&rpc.DeviceError{Code: 6}))
	assert.Equal(t, session.ClassSessionExpired, mgr.Classify(fmt.Errorf("device said: access denied")))
	assert.Equal(t, session.ClassOther, mgr.Classify(fmt.Errorf("boom")))
}

func TestLogout_ClearsState(t *testing.T) {
	mgr, _, _, url := setupManager(t)

	_, err := mgr.Login(context.Background(), url, "root", "secret")
	require.NoError(t, err)

	mgr.Logout()
	assert.False(t, mgr.Authenticated())
	_, ok := mgr.Credentials()
	assert.False(t, ok)
}
