// Package api implements the host-facing HTTP gateway of the wallet connector.
//
// The gateway exposes the connector operations as HTTP/JSON commands under
// /api/v1 and streams normalized account and network changes as Server-Sent
// Events. Every response uses the same envelope; failures carry a stable
// error code derived from the connector error.
package api
