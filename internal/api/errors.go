package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/wallet-adapter/connector/internal/adapter"
)

// API error codes.
const (
	CodeBadRequest    = "BAD_REQUEST"
	CodeUnavailable   = "UNAVAILABLE"
	CodeRejected      = "REJECTED"
	CodeNoAccount     = "NO_ACCOUNT"
	CodeEmptyResponse = "EMPTY_RESPONSE"
	CodeTimeout       = "TIMEOUT"
	CodeWalletError   = "WALLET_ERROR"
	CodeInternal      = "INTERNAL"
)

// ToAPIError maps err to an HTTP status and an error envelope.
func ToAPIError(err error) (int, *Response) {
	if err == nil {
		return http.StatusOK, nil
	}

	var details map[string]interface{}
	var ce *adapter.ConnectorError
	if errors.As(err, &ce) {
		details = map[string]interface{}{
			"op":     ce.Op,
			"reason": ce.Reason,
		}
		if ce.ProviderCode != 0 {
			details["providerCode"] = ce.ProviderCode
		}
	}

	status, code := mapConnectorError(err)
	if ce == nil && code == CodeInternal {
		return status, ErrorResponse(code, "Internal server error", map[string]interface{}{"original": err.Error()})
	}
	return status, ErrorResponse(code, errorMessage(err, ce), details)
}

// mapConnectorError picks the status and code for err. Order matters: a
// missing wallet and a deadline are reported as such whatever the operation.
func mapConnectorError(err error) (int, string) {
	switch {
	case errors.Is(err, adapter.ErrProviderNotFound):
		return http.StatusServiceUnavailable, CodeUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout
	case errors.Is(err, adapter.ErrInvalidPayload), errors.Is(err, adapter.ErrInvalidNetwork):
		return http.StatusBadRequest, CodeBadRequest
	case errors.Is(err, adapter.ErrRejected):
		return http.StatusConflict, CodeRejected
	case errors.Is(err, adapter.ErrNoAccount):
		return http.StatusConflict, CodeNoAccount
	case errors.Is(err, adapter.ErrEmptyResponse):
		return http.StatusBadGateway, CodeEmptyResponse
	case adapter.CodeOf(err) != nil:
		return http.StatusBadGateway, CodeWalletError
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func errorMessage(err error, ce *adapter.ConnectorError) string {
	if ce != nil && ce.Message != "" {
		return ce.Message
	}
	return err.Error()
}

// writeAPIError writes the envelope for err.
func writeAPIError(w http.ResponseWriter, err error) {
	status, response := ToAPIError(err)
	writeResponse(w, status, response)
}
