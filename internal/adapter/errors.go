package adapter

import (
	"errors"
	"fmt"
	"strings"
)

// Operation error codes. Every connector failure unwraps to one of these.
var (
	ErrConnection        = errors.New("CONNECTION")
	ErrNoAccount         = errors.New("NO_ACCOUNT")
	ErrDisconnect        = errors.New("DISCONNECT")
	ErrEmptyResponse     = errors.New("EMPTY_RESPONSE")
	ErrSignMessage       = errors.New("SIGN_MESSAGE")
	ErrNetworkQuery      = errors.New("NETWORK_QUERY")
	ErrEventSubscription = errors.New("EVENT_SUBSCRIPTION")
	ErrInvalidPayload    = errors.New("INVALID_PAYLOAD")
	ErrTransaction       = errors.New("TRANSACTION")
	ErrRejected          = errors.New("REJECTED")
	ErrInvalidNetwork    = errors.New("INVALID_NETWORK")
)

// ErrProviderNotFound is the original error recorded when no provider resolves.
var ErrProviderNotFound = errors.New("wallet provider not installed")

// Normalized reasons for provider-side failures.
const (
	ReasonUserRejected = "USER_REJECTED"
	ReasonUnauthorized = "UNAUTHORIZED"
	ReasonUnsupported  = "UNSUPPORTED"
	ReasonDisconnected = "DISCONNECTED"
	ReasonNotInstalled = "NOT_INSTALLED"
	ReasonEmpty        = "EMPTY"
	ReasonInternal     = "INTERNAL"
)

// ReasonMap defines how provider codes and message tokens map to reasons.
type ReasonMap struct {
	Codes        map[int]string
	UserRejected []string // Tokens that map to USER_REJECTED
	Unauthorized []string // Tokens that map to UNAUTHORIZED
	Unsupported  []string // Tokens that map to UNSUPPORTED
	Disconnected []string // Tokens that map to DISCONNECTED
}

// ProviderReasonMap is the mapping table applied to provider failures.
//
// Numeric codes follow the wallet provider convention shared by most
// extension wallets (4001 user rejection, 4100 unauthorized, 4200 unsupported
// method, 4900 disconnected). Codes are checked first; message tokens are the
// fallback for providers that only return text. Anything else is INTERNAL.
var ProviderReasonMap = ReasonMap{
	Codes: map[int]string{
		4000: ReasonUserRejected,
		4001: ReasonUserRejected,
		4100: ReasonUnauthorized,
		4200: ReasonUnsupported,
		4900: ReasonDisconnected,
		4901: ReasonDisconnected,
	},
	UserRejected: []string{
		"USER REJECTED",
		"USER_REJECTED",
		"REJECTED",
		"CANCELLED",
		"CANCELED",
		"DENIED",
	},
	Unauthorized: []string{
		"UNAUTHORIZED",
		"NOT AUTHORIZED",
		"NOT CONNECTED",
		"LOCKED",
	},
	Unsupported: []string{
		"UNSUPPORTED",
		"NOT SUPPORTED",
		"METHOD NOT FOUND",
	},
	Disconnected: []string{
		"DISCONNECTED",
		"CONNECTION CLOSED",
		"CLOSE SENT",
	},
}

// ConnectorError carries the operation code together with the provider's own error.
type ConnectorError struct {
	Op           string // Connector operation, e.g. "connect"
	Code         error  // Operation code sentinel
	Reason       string // Normalized provider reason
	ProviderCode int    // Provider numeric code, 0 when absent
	Message      string // Provider or connector message
	Original     error  // Provider error, if any
}

func (e *ConnectorError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %v", e.Op, e.Code)
	if e.Reason != "" {
		fmt.Fprintf(&b, " [%s]", e.Reason)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.ProviderCode != 0 {
		fmt.Fprintf(&b, " (code %d)", e.ProviderCode)
	}
	return b.String()
}

// Unwrap exposes both the code and the provider error to errors.Is / errors.As.
func (e *ConnectorError) Unwrap() []error {
	if e.Original == nil {
		return []error{e.Code}
	}
	return []error{e.Code, e.Original}
}

// CodeOf returns the operation code of err, or nil when err is not a connector failure.
func CodeOf(err error) error {
	var ce *ConnectorError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return nil
}

// NormalizeProviderError wraps a provider failure for operation op under code.
// Errors exposing ProviderCode() int contribute their numeric code to the reason lookup.
func NormalizeProviderError(op string, code error, providerErr error) error {
	if providerErr == nil {
		return nil
	}

	providerCode := 0
	var coded interface{ ProviderCode() int }
	if errors.As(providerErr, &coded) {
		providerCode = coded.ProviderCode()
	}

	msg := providerErr.Error()
	return &ConnectorError{
		Op:           op,
		Code:         code,
		Reason:       mapProviderReason(providerCode, msg, ProviderReasonMap),
		ProviderCode: providerCode,
		Message:      msg,
		Original:     providerErr,
	}
}

// rejectedError builds the failure for a provider that answered with an error result.
func rejectedError(op string, providerCode int, msg string) error {
	return &ConnectorError{
		Op:           op,
		Code:         ErrRejected,
		Reason:       mapProviderReason(providerCode, msg, ProviderReasonMap),
		ProviderCode: providerCode,
		Message:      msg,
	}
}

// emptyError builds the failure for a provider that answered with nothing.
func emptyError(op string, code error, msg string) error {
	return &ConnectorError{
		Op:      op,
		Code:    code,
		Reason:  ReasonEmpty,
		Message: msg,
	}
}

// absentError builds the failure for an operation attempted with no provider installed.
func absentError(op string, code error, walletName string) error {
	return &ConnectorError{
		Op:       op,
		Code:     code,
		Reason:   ReasonNotInstalled,
		Message:  fmt.Sprintf("%s wallet not installed", walletName),
		Original: ErrProviderNotFound,
	}
}

// mapProviderReason maps a provider code or message to a normalized reason.
func mapProviderReason(providerCode int, msg string, table ReasonMap) string {
	if reason, ok := table.Codes[providerCode]; ok {
		return reason
	}

	upperMsg := strings.ToUpper(msg)

	for _, token := range table.UserRejected {
		if strings.Contains(upperMsg, token) {
			return ReasonUserRejected
		}
	}

	for _, token := range table.Unauthorized {
		if strings.Contains(upperMsg, token) {
			return ReasonUnauthorized
		}
	}

	for _, token := range table.Unsupported {
		if strings.Contains(upperMsg, token) {
			return ReasonUnsupported
		}
	}

	for _, token := range table.Disconnected {
		if strings.Contains(upperMsg, token) {
			return ReasonDisconnected
		}
	}

	return ReasonInternal
}
