// Package bridge carries the wallet provider interface over a WebSocket.
//
// Messages are JSON-RPC 2.0 text frames. The host side dials with a Client,
// which implements adapter.Provider, so a Connector can drive a wallet that
// lives in another process. The wallet side mounts a Server in front of any
// adapter.Provider. Provider events travel as server notifications
// (accountChanged, networkChanged) after the client asked for them with
// onAccountChange or onNetworkChange.
//
// A JSON null result means the provider answered with nothing; the client
// returns a nil response and the Connector applies its usual handling.
package bridge
