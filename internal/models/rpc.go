package models

import "encoding/json"

// RPCMethodCall is the only JSON-RPC method the device understands; the real
// operation is carried inside params.
const RPCMethodCall = "call"

// JSONRPCVersion is the envelope version sent on every request.
const JSONRPCVersion = "2.0"

// JSONRPCRequest represents the outer JSON-RPC 2.0 request envelope.
// Params is always the 4-element array [sessionID, object, method, args].
type JSONRPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      int64             `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

// JSONRPCError represents a JSON-RPC level error
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// JSONRPCResponse represents the outer JSON-RPC 2.0 response envelope.
// On success Result is [returnCode, payload]; returnCode may be encoded as
// a number or as a string containing a number.
type JSONRPCResponse struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      *int64            `json:"id"`
	Result  []json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError     `json:"error,omitempty"`
}
