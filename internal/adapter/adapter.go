package adapter

import (
	"context"
	"encoding/json"
	"strings"
)

// NetworkName identifies the blockchain network a connector operates on.
type NetworkName string

const (
	NetworkMainnet NetworkName = "mainnet"
	NetworkTestnet NetworkName = "testnet"
	NetworkDevnet  NetworkName = "devnet"
)

// SupportedNetworks lists every network a connector can be constructed with.
var SupportedNetworks = []NetworkName{
	NetworkMainnet,
	NetworkTestnet,
	NetworkDevnet,
}

// IsValid reports whether n is one of SupportedNetworks.
func (n NetworkName) IsValid() bool {
	for _, valid := range SupportedNetworks {
		if n == valid {
			return true
		}
	}
	return false
}

func (n NetworkName) String() string {
	return string(n)
}

// ParseNetworkName maps a provider or config spelling onto a NetworkName.
// The result is lowercased but not validated.
func ParseNetworkName(s string) NetworkName {
	return NetworkName(strings.ToLower(strings.TrimSpace(s)))
}

// AccountInfo identifies a wallet account.
type AccountInfo struct {
	Address   string `json:"address"`
	PublicKey string `json:"publicKey"`
}

// NetworkInfo describes the network a provider is pointed at.
type NetworkInfo struct {
	Name    NetworkName `json:"name"`
	ChainID string      `json:"chainId,omitempty"`
	API     string      `json:"api,omitempty"`
}

// NetworkChangeEvent is the native payload a provider emits on network switch.
type NetworkChangeEvent struct {
	NetworkName NetworkInfo `json:"networkName"`
}

// ConnectRequest carries the parameters of a provider connect call.
type ConnectRequest struct {
	Network NetworkName `json:"network"`
}

// TransactionPayload is an opaque transaction handed through to the provider.
type TransactionPayload = json.RawMessage

// SignOptions are opaque provider-specific signing options.
type SignOptions = json.RawMessage

// ErrorResult is the error shape some providers return in place of a value.
type ErrorResult struct {
	Code    int    `json:"code"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message"`
}

// SubmitResponse is the provider reply to signAndSubmitTransaction.
// A non-zero Code means the provider refused the transaction.
type SubmitResponse struct {
	Hash    string `json:"hash,omitempty"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// SignTransactionResponse is the provider reply to signTransaction:
// either signed bytes or an error result.
type SignTransactionResponse struct {
	Signature []byte       `json:"signature,omitempty"`
	Error     *ErrorResult `json:"error,omitempty"`
}

// SignMessagePayload is the message-signing request.
type SignMessagePayload struct {
	Address     bool   `json:"address,omitempty"`
	Application bool   `json:"application,omitempty"`
	ChainID     bool   `json:"chainId,omitempty"`
	Message     string `json:"message"`
	Nonce       string `json:"nonce"`
}

// SignMessageResponse is the provider reply to signMessage.
type SignMessageResponse struct {
	Address     string `json:"address,omitempty"`
	Application string `json:"application,omitempty"`
	ChainID     int    `json:"chainId,omitempty"`
	FullMessage string `json:"fullMessage"`
	Message     string `json:"message"`
	Nonce       string `json:"nonce"`
	Prefix      string `json:"prefix"`
	Signature   string `json:"signature"`
}

// AccountChangeFunc receives native account-change payloads from a provider.
type AccountChangeFunc func(account AccountInfo)

// NetworkChangeFunc receives native network-change payloads from a provider.
type NetworkChangeFunc func(event NetworkChangeEvent)

// Provider is the capability set an externally supplied wallet exposes.
//
// A method returning a nil value and a nil error models a provider that
// answered with nothing; the connector turns that into a typed failure.
type Provider interface {
	// Connect asks the wallet to connect on the requested network.
	// Side-effect: may show a user prompt in the wallet.
	Connect(ctx context.Context, req ConnectRequest) (*AccountInfo, error)

	// Disconnect drops the wallet session.
	Disconnect(ctx context.Context) error

	// Account returns the currently selected account.
	Account(ctx context.Context) (*AccountInfo, error)

	// SignTransaction signs without submitting.
	SignTransaction(ctx context.Context, tx TransactionPayload, opts SignOptions) (*SignTransactionResponse, error)

	// SignAndSubmitTransaction signs and submits to the network.
	SignAndSubmitTransaction(ctx context.Context, tx TransactionPayload, opts SignOptions) (*SubmitResponse, error)

	// SignMessage signs an arbitrary message.
	SignMessage(ctx context.Context, payload SignMessagePayload) (*SignMessageResponse, error)

	// Network returns the network the wallet is pointed at.
	Network(ctx context.Context) (*NetworkInfo, error)

	// OnAccountChange registers a native account-change callback.
	OnAccountChange(ctx context.Context, cb AccountChangeFunc) error

	// OnNetworkChange registers a native network-change callback.
	OnNetworkChange(ctx context.Context, cb NetworkChangeFunc) error
}

// ProviderResolver returns the current provider, or nil when none is installed.
type ProviderResolver func() Provider

// StaticProvider returns a resolver that always yields p.
func StaticProvider(p Provider) ProviderResolver {
	return func() Provider { return p }
}

// AccountHandler receives normalized account changes.
// err is set when the connector had to reconnect and that failed.
type AccountHandler func(account AccountInfo, err error)

// NetworkHandler receives normalized network changes.
type NetworkHandler func(network NetworkInfo)

// ReadyState reports whether a provider is reachable.
type ReadyState string

const (
	ReadyStateInstalled   ReadyState = "Installed"
	ReadyStateNotDetected ReadyState = "NotDetected"
)

// Plugin is the stable host-facing wallet adapter contract.
type Plugin interface {
	Name() string
	URL() string
	Icon() string

	Connect(ctx context.Context) (*AccountInfo, error)
	Disconnect(ctx context.Context) error
	Account(ctx context.Context) (*AccountInfo, error)
	SignAndSubmitTransaction(ctx context.Context, tx TransactionPayload, opts SignOptions) (*SubmitResponse, error)
	SignTransaction(ctx context.Context, tx TransactionPayload, opts SignOptions) ([]byte, error)
	SignMessage(ctx context.Context, payload SignMessagePayload) (*SignMessageResponse, error)
	Network(ctx context.Context) (*NetworkInfo, error)
	OnAccountChange(ctx context.Context, handler AccountHandler) error
	OnNetworkChange(ctx context.Context, handler NetworkHandler) error
}

// Metadata is the static description of the wrapped wallet.
type Metadata struct {
	// Name is the wallet name shown by host applications
	Name string

	// URL is the installation page
	URL string

	// ProviderName is the name the wallet registers its provider under
	ProviderName string
}

// DefaultMetadata describes the Coin98 wallet extension.
var DefaultMetadata = Metadata{
	Name:         "Coin98",
	URL:          "https://chrome.google.com/webstore/detail/coin98-wallet/aeachknmefphepccionboohckonoeemg",
	ProviderName: "coin98Aptos",
}
