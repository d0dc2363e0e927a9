package rpc_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oasis-home/oasisctl/internal/models"
	"github.com/oasis-home/oasisctl/pkg/rpc"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func newClientFor(url string) *rpc.Client {
	client := rpc.New(testLogger(), rpc.WithRetry(2, time.Millisecond))
	client.SetBaseURL(url)
	return client
}

func respond(t *testing.T, w http.ResponseWriter, result ...any) {
	t.Helper()
	raw := make([]json.RawMessage, 0, len(result))
	for _, r := range result {
		encoded, err := json.Marshal(r)
		require.NoError(t, err)
		raw = append(raw, encoded)
	}
	id := int64(1)
	resp := models.JSONRPCResponse{JSONRPC: models.JSONRPCVersion, ID: &id, Result: raw}
	require.NoError(t, json.NewEncoder(w).Encode(resp))
}

func TestNormalizeBaseURL(t *testing.T) {
	assert.Equal(t, "http://192.168.1.1/", rpc.NormalizeBaseURL("192.168.1.1"))
	assert.Equal(t, "http://192.168.1.1:8080/", rpc.NormalizeBaseURL(" 192.168.1.1:8080 "))
	assert.Equal(t, "https://device.local/", rpc.NormalizeBaseURL("https://device.local"))
	assert.Equal(t, "http://device.local/", rpc.NormalizeBaseURL("http://device.local/"))
}

func TestCall_EnvelopeShape(t *testing.T) {
	var captured models.JSONRPCRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ubus", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		respond(t, w, 0, map[string]string{"ok": "yes"})
	}))
	defer srv.Close()

	client := newClientFor(srv.URL)
	payload, err := client.Call(context.Background(), rpc.NullSessionID, "session", "login",
		map[string]string{"username": "root"})
	require.NoError(t, err)

	assert.Equal(t, models.JSONRPCVersion, captured.JSONRPC)
	assert.Equal(t, models.RPCMethodCall, captured.Method)
	require.Len(t, captured.Params, 4)

	var sessionID, object, method string
	require.NoError(t, json.Unmarshal(captured.Params[0], &sessionID))
	require.NoError(t, json.Unmarshal(captured.Params[1], &object))
	require.NoError(t, json.Unmarshal(captured.Params[2], &method))
	assert.Equal(t, rpc.NullSessionID, sessionID)
	assert.Equal(t, "session", object)
	assert.Equal(t, "login", method)

	var decoded map[string]string
	require.NoError(t, rpc.DecodePayload(payload, &decoded))
	assert.Equal(t, "yes", decoded["ok"])
}

func TestCall_IDsIncrease(t *testing.T) {
	var ids []int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req models.JSONRPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		ids = append(ids, req.ID)
		respond(t, w, 0)
	}))
	defer srv.Close()

	client := newClientFor(srv.URL)
	for i := 0; i < 3; i++ {
		_, err := client.Call(context.Background(), rpc.NullSessionID, "oasis", "base_info", nil)
		require.NoError(t, err)
	}

	require.Len(t, ids, 3)
	assert.Less(t, ids[0], ids[1])
	assert.Less(t, ids[1], ids[2])
}

func TestCall_VoidResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond(t, w, 0)
	}))
	defer srv.Close()

	client := newClientFor(srv.URL)
	payload, err := client.Call(context.Background(), "abc", "oasis", "select_ai_service", nil)
	require.NoError(t, err)
	assert.Nil(t, payload)
}

func TestCall_DeviceErrorNumericCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond(t, w, 6)
	}))
	defer srv.Close()

	client := newClientFor(srv.URL)
	_, err := client.Call(context.Background(), "abc", "oasis", "base_info", nil)
	require.Error(t, err)

	var devErr *rpc.DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, 6, devErr.Code)
	assert.True(t, rpc.IsSessionExpired(err))
}

func TestCall_DeviceErrorStringCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond(t, w, "6")
	}))
	defer srv.Close()

	client := newClientFor(srv.URL)
	_, err := client.Call(context.Background(), "abc", "oasis", "base_info", nil)

	var devErr *rpc.DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, 6, devErr.Code)
}

func TestCall_StringReturnCodeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond(t, w, "0", map[string]string{"ok": "yes"})
	}))
	defer srv.Close()

	client := newClientFor(srv.URL)
	payload, err := client.Call(context.Background(), "abc", "oasis", "base_info", nil)
	require.NoError(t, err)
	assert.NotNil(t, payload)
}

func TestCall_RPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := int64(1)
		resp := models.JSONRPCResponse{
			JSONRPC: models.JSONRPCVersion,
			ID:      &id,
			Error:   &models.JSONRPCError{Code: -32602, Message: "invalid params"},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	client := newClientFor(srv.URL)
	_, err := client.Call(context.Background(), "abc", "oasis", "base_info", nil)

	var rpcErr *rpc.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32602, rpcErr.Code)
	assert.False(t, rpc.IsTransport(err))
}

func TestCall_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	client := newClientFor(srv.URL)
	_, err := client.Call(context.Background(), "abc", "oasis", "base_info", nil)

	var malformed *rpc.MalformedResponseError
	require.ErrorAs(t, err, &malformed)
}

func TestCall_MalformedEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := int64(1)
		resp := models.JSONRPCResponse{JSONRPC: models.JSONRPCVersion, ID: &id, Result: []json.RawMessage{}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	client := newClientFor(srv.URL)
	_, err := client.Call(context.Background(), "abc", "oasis", "base_info", nil)

	var malformed *rpc.MalformedResponseError
	require.ErrorAs(t, err, &malformed)
}

func TestCall_TransportRetriedOnce(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		respond(t, w, 0, map[string]string{"ok": "yes"})
	}))
	defer srv.Close()

	client := newClientFor(srv.URL)
	_, err := client.Call(context.Background(), "abc", "oasis", "base_info", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestCall_TransportExhausted(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newClientFor(srv.URL)
	_, err := client.Call(context.Background(), "abc", "oasis", "base_info", nil)
	require.Error(t, err)
	assert.True(t, rpc.IsTransport(err))
	assert.Equal(t, int32(2), attempts.Load())
}

func TestCall_ProtocolErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		respond(t, w, 6)
	}))
	defer srv.Close()

	client := newClientFor(srv.URL)
	_, err := client.Call(context.Background(), "abc", "oasis", "base_info", nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestWithTimeouts_CallDeadlineEnforced(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := rpc.New(testLogger(),
		rpc.WithTimeouts(time.Second, 50*time.Millisecond),
		rpc.WithRetry(1, time.Millisecond),
	)
	client.SetBaseURL(srv.URL)

	start := time.Now()
	_, err := client.Call(context.Background(), "abc", "oasis", "base_info", nil)
	require.Error(t, err)
	assert.True(t, rpc.IsTransport(err))
	assert.Less(t, time.Since(start), time.Second, "configured call timeout not applied")
}

func TestCall_NoBaseURL(t *testing.T) {
	client := rpc.New(testLogger())
	_, err := client.Call(context.Background(), "abc", "oasis", "base_info", nil)
	require.Error(t, err)
}

func TestDecodePayload_DirectAndStringEncoded(t *testing.T) {
	type item struct {
		ID string `json:"id"`
	}

	var direct item
	require.NoError(t, rpc.DecodePayload(json.RawMessage(`{"id":"a"}`), &direct))
	assert.Equal(t, "a", direct.ID)

	var wrapped item
	require.NoError(t, rpc.DecodePayload(json.RawMessage(`"{\"id\":\"b\"}"`), &wrapped))
	assert.Equal(t, "b", wrapped.ID)

	var bad item
	err := rpc.DecodePayload(json.RawMessage(`"not json"`), &bad)
	var malformed *rpc.MalformedResponseError
	require.ErrorAs(t, err, &malformed)
}
