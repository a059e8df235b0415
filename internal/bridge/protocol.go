package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
)

// JSONRPCVersion is the only protocol version spoken.
const JSONRPCVersion = "2.0"

// Request methods
const (
	MethodConnect                  = "connect"
	MethodDisconnect               = "disconnect"
	MethodAccount                  = "account"
	MethodSignTransaction          = "signTransaction"
	MethodSignAndSubmitTransaction = "signAndSubmitTransaction"
	MethodSignMessage              = "signMessage"
	MethodNetwork                  = "network"
	MethodOnAccountChange          = "onAccountChange"
	MethodOnNetworkChange          = "onNetworkChange"
)

// Notification methods
const (
	NotifyAccountChanged = "accountChanged"
	NotifyNetworkChanged = "networkChanged"
)

// JSON-RPC error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeProviderError  = -32000
)

// ErrClosed is returned for calls on a closed connection.
var ErrClosed = errors.New("bridge: connection closed")

// message is the envelope of every frame in either direction.
type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

func (m *message) isNotification() bool {
	return m.ID == nil && m.Method != ""
}

// transactionParams are the params of signTransaction and signAndSubmitTransaction.
type transactionParams struct {
	Transaction json.RawMessage `json:"transaction"`
	Options     json.RawMessage `json:"options,omitempty"`
}

// RPCError is an error answered by the remote end. Provider failures keep
// the provider's own numeric code.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// ProviderCode exposes the numeric code to adapter.NormalizeProviderError.
func (e *RPCError) ProviderCode() int {
	return e.Code
}

// toRPCError converts a provider failure for the wire.
func toRPCError(err error) *RPCError {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	code := CodeProviderError
	var coded interface{ ProviderCode() int }
	if errors.As(err, &coded) {
		code = coded.ProviderCode()
	}
	return &RPCError{Code: code, Message: err.Error()}
}

func invalidParams(method string, err error) *RPCError {
	return &RPCError{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid params for %s: %v", method, err)}
}

// isNull reports whether a result carries no value.
func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
