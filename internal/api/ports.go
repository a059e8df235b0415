package api

import (
	"context"

	"github.com/wallet-adapter/connector/internal/adapter"
	"github.com/wallet-adapter/connector/internal/telemetry"
)

// WalletPort is what the gateway needs from the connector.
type WalletPort interface {
	adapter.Plugin
	ProviderName() string
	NetworkSelection() adapter.NetworkName
	ReadyState() adapter.ReadyState
}

// EventPort is what the gateway needs from the event hub.
type EventPort interface {
	Subscribe(ctx context.Context, stream string, lastID int64) (*telemetry.Subscriber, error)
	PublishJSON(stream, eventType string, data interface{}) (telemetry.Event, error)
}

// Compile-time assertions for port conformance
var _ WalletPort = (*adapter.Connector)(nil)
var _ EventPort = (*telemetry.Hub)(nil)
