package adapter

import (
	"context"
	"fmt"
	"log"
)

// Config configures a Connector.
type Config struct {
	// Network is passed on every connect; defaults to mainnet
	Network NetworkName

	// Metadata describes the wallet; zero value means DefaultMetadata
	Metadata Metadata
}

// AuditLogger records connector actions.
type AuditLogger interface {
	LogAction(ctx context.Context, action, network string, params map[string]interface{}, err error)
}

// Connector implements Plugin on top of any Provider.
//
// A Connector holds no mutable state after construction and may be used
// from multiple goroutines. It adds no locking or ordering around provider
// calls, and never retries.
type Connector struct {
	meta    Metadata
	network NetworkName
	resolve ProviderResolver
	audit   AuditLogger
}

var _ Plugin = (*Connector)(nil)

// NewConnector creates a connector. A nil resolver is valid and means no
// provider is installed.
func NewConnector(cfg Config, resolve ProviderResolver) (*Connector, error) {
	network := cfg.Network
	if network == "" {
		network = NetworkMainnet
	}
	if !network.IsValid() {
		return nil, &ConnectorError{
			Op:      "new",
			Code:    ErrInvalidNetwork,
			Message: fmt.Sprintf("network %q is not one of %v", network, SupportedNetworks),
		}
	}

	meta := cfg.Metadata
	if meta == (Metadata{}) {
		meta = DefaultMetadata
	}

	return &Connector{
		meta:    meta,
		network: network,
		resolve: resolve,
	}, nil
}

// SetAuditLogger attaches an audit logger. Call before the connector is shared.
func (c *Connector) SetAuditLogger(logger AuditLogger) {
	c.audit = logger
}

// Name returns the wallet name.
func (c *Connector) Name() string {
	return c.meta.Name
}

// URL returns the wallet installation page.
func (c *Connector) URL() string {
	return c.meta.URL
}

// Icon returns the wallet logo as a PNG data URI.
func (c *Connector) Icon() string {
	return iconDataURI
}

// ProviderName returns the name the wallet registers its provider under.
func (c *Connector) ProviderName() string {
	return c.meta.ProviderName
}

// NetworkSelection returns the network chosen at construction.
func (c *Connector) NetworkSelection() NetworkName {
	return c.network
}

// ReadyState reports whether a provider currently resolves.
func (c *Connector) ReadyState() ReadyState {
	if c.provider() == nil {
		return ReadyStateNotDetected
	}
	return ReadyStateInstalled
}

// Connect connects the wallet on the configured network and returns the
// provider's account unchanged.
func (c *Connector) Connect(ctx context.Context) (*AccountInfo, error) {
	account, err := c.connect(ctx)
	c.record(ctx, "connect", nil, err)
	return account, err
}

func (c *Connector) connect(ctx context.Context) (*AccountInfo, error) {
	p := c.provider()
	if p == nil {
		return nil, absentError("connect", ErrConnection, c.meta.Name)
	}

	account, err := p.Connect(ctx, ConnectRequest{Network: c.network})
	if err != nil {
		return nil, NormalizeProviderError("connect", ErrConnection, err)
	}
	if account == nil {
		return nil, emptyError("connect", ErrConnection, fmt.Sprintf("%s address info error", c.meta.Name))
	}
	return account, nil
}

// Disconnect drops the wallet session. Provider failures are returned as-is
// under ErrDisconnect.
func (c *Connector) Disconnect(ctx context.Context) error {
	err := c.disconnect(ctx)
	c.record(ctx, "disconnect", nil, err)
	return err
}

func (c *Connector) disconnect(ctx context.Context) error {
	p := c.provider()
	if p == nil {
		return absentError("disconnect", ErrDisconnect, c.meta.Name)
	}
	if err := p.Disconnect(ctx); err != nil {
		return NormalizeProviderError("disconnect", ErrDisconnect, err)
	}
	return nil
}

// Account returns the currently selected account.
func (c *Connector) Account(ctx context.Context) (*AccountInfo, error) {
	account, err := c.account(ctx)
	c.record(ctx, "account", nil, err)
	return account, err
}

func (c *Connector) account(ctx context.Context) (*AccountInfo, error) {
	p := c.provider()
	if p == nil {
		return nil, absentError("account", ErrNoAccount, c.meta.Name)
	}

	account, err := p.Account(ctx)
	if err != nil {
		return nil, NormalizeProviderError("account", ErrNoAccount, err)
	}
	if account == nil {
		return nil, emptyError("account", ErrNoAccount, fmt.Sprintf("%s account error", c.meta.Name))
	}
	return account, nil
}

// SignAndSubmitTransaction forwards tx to the provider. A response carrying a
// non-zero code fails with ErrRejected and the provider's message; otherwise
// the response is returned unchanged.
func (c *Connector) SignAndSubmitTransaction(ctx context.Context, tx TransactionPayload, opts SignOptions) (*SubmitResponse, error) {
	resp, err := c.signAndSubmitTransaction(ctx, tx, opts)
	params := map[string]interface{}{"payloadBytes": len(tx)}
	if resp != nil {
		params["hash"] = resp.Hash
	}
	c.record(ctx, "signAndSubmitTransaction", params, err)
	return resp, err
}

func (c *Connector) signAndSubmitTransaction(ctx context.Context, tx TransactionPayload, opts SignOptions) (*SubmitResponse, error) {
	const op = "signAndSubmitTransaction"

	p := c.provider()
	if p == nil {
		return nil, absentError(op, ErrTransaction, c.meta.Name)
	}

	resp, err := p.SignAndSubmitTransaction(ctx, tx, opts)
	if err != nil {
		return nil, NormalizeProviderError(op, ErrTransaction, err)
	}
	if resp == nil {
		return nil, emptyError(op, ErrEmptyResponse, "no response")
	}
	if resp.Code != 0 {
		return nil, rejectedError(op, resp.Code, resp.Message)
	}
	return resp, nil
}

// SignTransaction signs tx without submitting and returns the signed bytes.
func (c *Connector) SignTransaction(ctx context.Context, tx TransactionPayload, opts SignOptions) ([]byte, error) {
	signed, err := c.signTransaction(ctx, tx, opts)
	c.record(ctx, "signTransaction", map[string]interface{}{"payloadBytes": len(tx)}, err)
	return signed, err
}

func (c *Connector) signTransaction(ctx context.Context, tx TransactionPayload, opts SignOptions) ([]byte, error) {
	const op = "signTransaction"

	p := c.provider()
	if p == nil {
		return nil, absentError(op, ErrTransaction, c.meta.Name)
	}

	resp, err := p.SignTransaction(ctx, tx, opts)
	if err != nil {
		return nil, NormalizeProviderError(op, ErrTransaction, err)
	}
	if resp == nil {
		return nil, emptyError(op, ErrEmptyResponse, "no response")
	}
	if resp.Error != nil {
		return nil, rejectedError(op, resp.Error.Code, resp.Error.Message)
	}
	if len(resp.Signature) == 0 {
		return nil, emptyError(op, ErrEmptyResponse, "no response")
	}
	return resp.Signature, nil
}

// SignMessage signs payload. A payload without a nonce is rejected before the
// provider is called.
func (c *Connector) SignMessage(ctx context.Context, payload SignMessagePayload) (*SignMessageResponse, error) {
	resp, err := c.signMessage(ctx, payload)
	c.record(ctx, "signMessage", map[string]interface{}{"nonce": payload.Nonce}, err)
	return resp, err
}

func (c *Connector) signMessage(ctx context.Context, payload SignMessagePayload) (*SignMessageResponse, error) {
	const op = "signMessage"

	if payload.Nonce == "" {
		return nil, &ConnectorError{
			Op:      op,
			Code:    ErrInvalidPayload,
			Message: fmt.Sprintf("%s invalid signMessage payload: nonce is required", c.meta.Name),
		}
	}

	p := c.provider()
	if p == nil {
		return nil, absentError(op, ErrSignMessage, c.meta.Name)
	}

	resp, err := p.SignMessage(ctx, payload)
	if err != nil {
		return nil, NormalizeProviderError(op, ErrSignMessage, err)
	}
	if resp == nil {
		return nil, emptyError(op, ErrSignMessage, fmt.Sprintf("%s sign message failed", c.meta.Name))
	}
	return resp, nil
}

// Network returns the provider's network with the name lowercased.
func (c *Connector) Network(ctx context.Context) (*NetworkInfo, error) {
	network, err := c.networkInfo(ctx)
	c.record(ctx, "network", nil, err)
	return network, err
}

func (c *Connector) networkInfo(ctx context.Context) (*NetworkInfo, error) {
	p := c.provider()
	if p == nil {
		return nil, absentError("network", ErrNetworkQuery, c.meta.Name)
	}

	resp, err := p.Network(ctx)
	if err != nil {
		return nil, NormalizeProviderError("network", ErrNetworkQuery, err)
	}
	if resp == nil {
		return nil, emptyError("network", ErrNetworkQuery, fmt.Sprintf("%s network error", c.meta.Name))
	}

	return &NetworkInfo{
		Name:    ParseNetworkName(string(resp.Name)),
		ChainID: resp.ChainID,
		API:     resp.API,
	}, nil
}

// OnAccountChange subscribes handler to account changes.
//
// Some wallets signal a lock or disconnect by emitting an account without a
// public key. In that case the connector calls Connect and hands its result
// to handler instead of the incomplete payload. Reconnects run on ctx without
// its cancellation, since they happen long after the subscription returns.
func (c *Connector) OnAccountChange(ctx context.Context, handler AccountHandler) error {
	const op = "onAccountChange"

	if handler == nil {
		return &ConnectorError{Op: op, Code: ErrInvalidPayload, Message: "handler is required"}
	}

	p := c.provider()
	if p == nil {
		return absentError(op, ErrEventSubscription, c.meta.Name)
	}

	reconnectCtx := context.WithoutCancel(ctx)
	wrapped := func(account AccountInfo) {
		if account.PublicKey != "" {
			handler(AccountInfo{Address: account.Address, PublicKey: account.PublicKey}, nil)
			return
		}

		log.Printf("%s: account change without public key, reconnecting", c.meta.Name)
		fresh, err := c.Connect(reconnectCtx)
		if err != nil {
			handler(AccountInfo{}, err)
			return
		}
		handler(AccountInfo{Address: fresh.Address, PublicKey: fresh.PublicKey}, nil)
	}

	err := p.OnAccountChange(ctx, wrapped)
	if err != nil {
		err = NormalizeProviderError(op, ErrEventSubscription, err)
	}
	c.record(ctx, op, nil, err)
	return err
}

// OnNetworkChange subscribes handler to network changes, reshaping the native
// payload into a NetworkInfo. ChainID and API stay empty when the wallet does
// not report them.
func (c *Connector) OnNetworkChange(ctx context.Context, handler NetworkHandler) error {
	const op = "onNetworkChange"

	if handler == nil {
		return &ConnectorError{Op: op, Code: ErrInvalidPayload, Message: "handler is required"}
	}

	p := c.provider()
	if p == nil {
		return absentError(op, ErrEventSubscription, c.meta.Name)
	}

	wrapped := func(event NetworkChangeEvent) {
		handler(NetworkInfo{
			Name:    ParseNetworkName(string(event.NetworkName.Name)),
			ChainID: event.NetworkName.ChainID,
			API:     event.NetworkName.API,
		})
	}

	err := p.OnNetworkChange(ctx, wrapped)
	if err != nil {
		err = NormalizeProviderError(op, ErrEventSubscription, err)
	}
	c.record(ctx, op, nil, err)
	return err
}

// provider resolves the current provider, nil when none is installed.
func (c *Connector) provider() Provider {
	if c.resolve == nil {
		return nil
	}
	return c.resolve()
}

func (c *Connector) record(ctx context.Context, action string, params map[string]interface{}, err error) {
	if c.audit == nil {
		return
	}
	c.audit.LogAction(ctx, action, c.network.String(), params, err)
}
