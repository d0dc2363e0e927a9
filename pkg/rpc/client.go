package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/oasis-home/oasisctl/internal/models"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// NullSessionID is the well-known unauthenticated session id used for the
// login call itself.
const NullSessionID = "00000000000000000000000000000000"

// EndpointPath is the single HTTP endpoint the device exposes
const EndpointPath = "ubus"

const (
	defaultConnectTimeout = 10 * time.Second
	defaultCallTimeout    = 60 * time.Second
	defaultRetryDelay     = 300 * time.Millisecond
	defaultMaxTries       = 2
)

// Client speaks the device's JSON-RPC-over-HTTP envelope. The base URL is
// mutable at runtime: it is re-pointed on every login attempt.
type Client struct {
	logger     *logrus.Logger
	httpClient *http.Client
	retryDelay time.Duration
	maxTries   uint

	mu      sync.RWMutex
	baseURL string

	nextID atomic.Int64
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (used by tests)
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeouts overrides the connect and overall call timeouts. Zero or
// negative values keep the defaults.
func WithTimeouts(connect, call time.Duration) Option {
	return func(c *Client) {
		if connect <= 0 {
			connect = defaultConnectTimeout
		}
		if call <= 0 {
			call = defaultCallTimeout
		}
		c.httpClient = &http.Client{
			Timeout: call,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connect}).DialContext,
			},
		}
	}
}

// WithRetry overrides the transport retry policy
func WithRetry(maxTries uint, delay time.Duration) Option {
	return func(c *Client) {
		c.maxTries = maxTries
		c.retryDelay = delay
	}
}

// New creates a client with no base URL; SetBaseURL must be called before
// the first Call.
func New(logger *logrus.Logger, opts ...Option) *Client {
	c := &Client{
		logger: logger,
		httpClient: &http.Client{
			Timeout: defaultCallTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: defaultConnectTimeout}).DialContext,
			},
		},
		retryDelay: defaultRetryDelay,
		maxTries:   defaultMaxTries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NormalizeBaseURL applies the device addressing convention: prefix http://
// when no scheme is given and always terminate with a slash.
func NormalizeBaseURL(raw string) string {
	u := strings.TrimSpace(raw)
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = "http://" + u
	}
	if !strings.HasSuffix(u, "/") {
		u += "/"
	}
	return u
}

// SetBaseURL re-points the client at a new device
func (c *Client) SetBaseURL(raw string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = NormalizeBaseURL(raw)
}

// BaseURL returns the current normalized base URL
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// Call performs one ubus invocation and returns the method-specific payload
// (result[1]), which may be empty for void methods. Transport failures are
// retried with a fixed delay; protocol failures are not.
func (c *Client) Call(ctx context.Context, sessionID, object, method string, args any) (json.RawMessage, error) {
	tracer := otel.Tracer("oasisctl")
	ctx, span := tracer.Start(ctx, "ubus_call")
	defer span.End()
	span.SetAttributes(
		attribute.String("ubus.object", object),
		attribute.String("ubus.method", method),
	)

	req, err := c.buildRequest(sessionID, object, method, args)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode RPC request: %w", err)
	}

	resp, err := backoff.Retry(ctx, func() (*models.JSONRPCResponse, error) {
		return c.roundTrip(ctx, body)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(c.retryDelay)),
		backoff.WithMaxTries(c.maxTries),
	)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return decodeResult(resp)
}

func (c *Client) buildRequest(sessionID, object, method string, args any) (*models.JSONRPCRequest, error) {
	if args == nil {
		args = struct{}{}
	}
	params := make([]json.RawMessage, 0, 4)
	for _, p := range []any{sessionID, object, method, args} {
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to encode RPC params: %w", err)
		}
		params = append(params, raw)
	}
	return &models.JSONRPCRequest{
		JSONRPC: models.JSONRPCVersion,
		ID:      c.nextID.Add(1),
		Method:  models.RPCMethodCall,
		Params:  params,
	}, nil
}

// roundTrip performs a single HTTP exchange. Transport-class failures are
// returned retryable; everything past a decoded envelope is permanent.
func (c *Client) roundTrip(ctx context.Context, body []byte) (*models.JSONRPCResponse, error) {
	base := c.BaseURL()
	if base == "" {
		return nil, backoff.Permanent(fmt.Errorf("rpc client has no base URL"))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+EndpointPath, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.WithError(err).Debug("ubus call transport failure")
		return nil, &TransportError{Err: err}
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode != http.StatusOK {
		return nil, &TransportError{Err: fmt.Errorf("unexpected HTTP status %d", httpResp.StatusCode)}
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	c.logger.WithFields(logrus.Fields{
		"latency": time.Since(start),
		"bytes":   len(respBody),
	}).Debug("ubus call completed")

	var resp models.JSONRPCResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, backoff.Permanent(&MalformedResponseError{Reason: "response is not valid JSON-RPC"})
	}
	return &resp, nil
}

// decodeResult applies the device's [returnCode, payload] convention
func decodeResult(resp *models.JSONRPCResponse) (json.RawMessage, error) {
	if resp.Error != nil {
		return nil, &RPCError{Code: resp.Error.Code, Message: resp.Error.Message}
	}
	if resp.Result == nil {
		return nil, &MalformedResponseError{Reason: "missing result"}
	}
	if len(resp.Result) < 1 {
		return nil, &MalformedResponseError{Reason: "empty result array"}
	}

	code, err := parseReturnCode(resp.Result[0])
	if err != nil {
		return nil, &MalformedResponseError{Reason: "unreadable return code"}
	}
	if code != 0 {
		return nil, &DeviceError{Code: code}
	}

	if len(resp.Result) < 2 {
		return nil, nil
	}
	return resp.Result[1], nil
}

// parseReturnCode accepts the return code as either a JSON number or a
// string containing a number
func parseReturnCode(raw json.RawMessage) (int, error) {
	var asNumber int
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return asNumber, nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return strconv.Atoi(asString)
	}
	return 0, fmt.Errorf("return code is neither number nor string")
}

// DecodePayload unmarshals a method payload into out. The device sometimes
// double-encodes payloads as JSON strings, so both representations are
// attempted before giving up.
func DecodePayload(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return &MalformedResponseError{Reason: "empty payload"}
	}
	directErr := json.Unmarshal(raw, out)
	if directErr == nil {
		return nil
	}

	var inner string
	if err := json.Unmarshal(raw, &inner); err == nil {
		if err := json.Unmarshal([]byte(inner), out); err == nil {
			return nil
		}
	}
	return &MalformedResponseError{Reason: fmt.Sprintf("payload shape mismatch: %v", directErr)}
}
