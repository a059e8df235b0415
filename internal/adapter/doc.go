// Package adapter defines the wallet connector for host applications.
//
// A wallet exposes its native operations through a Provider. Providers differ
// in naming, response shape and event payloads; Connector wraps any Provider
// behind the fixed Plugin contract so hosts can connect, sign and submit
// without knowing which wallet is installed.
//
// The provider is never looked up from ambient state. It is resolved through
// a ProviderResolver on every call, so an absent wallet is an ordinary
// condition: construction succeeds and each operation fails with a typed
// *ConnectorError.
//
// Error normalization:
//   - Every failure carries an operation code (ErrConnection, ErrNoAccount, ...)
//   - Provider error codes and messages are mapped to a normalized Reason
//   - The provider's original error is preserved for errors.Is / errors.As
package adapter
