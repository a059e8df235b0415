// Package fake provides an in-memory wallet provider for tests and the mock wallet.
package fake

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/wallet-adapter/connector/internal/adapter"
)

// Fault modes accepted by SetFaultMode.
const (
	FaultNone     = ""
	FaultError    = "ReturnError"    // provider raises an error
	FaultEmpty    = "ReturnEmpty"    // provider answers with nothing
	FaultRejected = "ReturnRejected" // provider answers with an error result
)

// RejectedCode is the code returned in FaultRejected mode.
const RejectedCode = 4001

// Provider implements adapter.Provider in memory.
type Provider struct {
	mu sync.RWMutex

	account          adapter.AccountInfo
	network          adapter.NetworkInfo
	connected        bool
	requestedNetwork adapter.NetworkName

	accountCallbacks []adapter.AccountChangeFunc
	networkCallbacks []adapter.NetworkChangeFunc

	// Fault injection
	faultMode string
}

// NewProvider creates a fake provider holding account, reporting network.
func NewProvider(account adapter.AccountInfo, network adapter.NetworkInfo) *Provider {
	return &Provider{
		account: account,
		network: network,
	}
}

// NewDefaultProvider creates a fake provider with a fixed test account on a
// mainnet that reports its name in upper case, as some wallets do.
func NewDefaultProvider() *Provider {
	return NewProvider(
		adapter.AccountInfo{
			Address:   "0x5af503f8b4b6d8a1c7e36e29fcd8d7f3b0dc3c5e0fa1c6bd3e0b4d6e8f7a9c21",
			PublicKey: "0x1f1c3fbbd2c66d64a5a7ab2b5d8e1a3f0b5a9c7e2d4f6a8b0c1d3e5f7a9b2c4d",
		},
		adapter.NetworkInfo{Name: "MAINNET", ChainID: "1", API: "https://fullnode.mainnet.aptoslabs.com/v1"},
	)
}

// Connect marks the wallet connected and returns its account.
func (f *Provider) Connect(ctx context.Context, req adapter.ConnectRequest) (*adapter.AccountInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if empty, err := f.checkFaultMode("Connect"); empty || err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.connected = true
	f.requestedNetwork = req.Network
	account := f.account
	return &account, nil
}

// Disconnect marks the wallet disconnected.
func (f *Provider) Disconnect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := f.checkFaultMode("Disconnect"); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

// Account returns the account, or nothing while disconnected.
func (f *Provider) Account(ctx context.Context) (*adapter.AccountInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if empty, err := f.checkFaultMode("Account"); empty || err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.connected {
		return nil, nil
	}
	account := f.account
	return &account, nil
}

// SignTransaction returns a deterministic digest of tx as its signature.
func (f *Provider) SignTransaction(ctx context.Context, tx adapter.TransactionPayload, opts adapter.SignOptions) (*adapter.SignTransactionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if empty, err := f.checkFaultMode("SignTransaction"); empty || err != nil {
		return nil, err
	}
	if f.isFault(FaultRejected) {
		return &adapter.SignTransactionResponse{
			Error: &adapter.ErrorResult{Code: RejectedCode, Name: "UserRejected", Message: "User rejected the request"},
		}, nil
	}
	if !f.Connected() {
		return &adapter.SignTransactionResponse{
			Error: &adapter.ErrorResult{Code: 4100, Name: "Unauthorized", Message: "wallet not connected"},
		}, nil
	}

	digest := sha256.Sum256(tx)
	return &adapter.SignTransactionResponse{Signature: digest[:]}, nil
}

// SignAndSubmitTransaction returns a deterministic hash of tx.
func (f *Provider) SignAndSubmitTransaction(ctx context.Context, tx adapter.TransactionPayload, opts adapter.SignOptions) (*adapter.SubmitResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if empty, err := f.checkFaultMode("SignAndSubmitTransaction"); empty || err != nil {
		return nil, err
	}
	if f.isFault(FaultRejected) {
		return &adapter.SubmitResponse{Code: RejectedCode, Message: "rejected"}, nil
	}
	if !f.Connected() {
		return &adapter.SubmitResponse{Code: 4100, Message: "wallet not connected"}, nil
	}

	digest := sha256.Sum256(tx)
	return &adapter.SubmitResponse{Hash: "0x" + hex.EncodeToString(digest[:])}, nil
}

// SignMessage signs payload with the same digest scheme.
func (f *Provider) SignMessage(ctx context.Context, payload adapter.SignMessagePayload) (*adapter.SignMessageResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if empty, err := f.checkFaultMode("SignMessage"); empty || err != nil {
		return nil, err
	}
	if f.isFault(FaultRejected) {
		return nil, errors.New("User rejected the request")
	}

	f.mu.RLock()
	account := f.account
	f.mu.RUnlock()

	const prefix = "APTOS"
	full := fmt.Sprintf("%s\nmessage: %s\nnonce: %s", prefix, payload.Message, payload.Nonce)
	digest := sha256.Sum256([]byte(full))

	resp := &adapter.SignMessageResponse{
		FullMessage: full,
		Message:     payload.Message,
		Nonce:       payload.Nonce,
		Prefix:      prefix,
		Signature:   "0x" + hex.EncodeToString(digest[:]),
	}
	if payload.Address {
		resp.Address = account.Address
	}
	return resp, nil
}

// Network returns the network as configured, without normalizing it.
func (f *Provider) Network(ctx context.Context) (*adapter.NetworkInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if empty, err := f.checkFaultMode("Network"); empty || err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	network := f.network
	return &network, nil
}

// OnAccountChange registers cb for SwitchAccount and Lock.
func (f *Provider) OnAccountChange(ctx context.Context, cb adapter.AccountChangeFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := f.checkFaultMode("OnAccountChange"); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.accountCallbacks = append(f.accountCallbacks, cb)
	return nil
}

// OnNetworkChange registers cb for SwitchNetwork.
func (f *Provider) OnNetworkChange(ctx context.Context, cb adapter.NetworkChangeFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := f.checkFaultMode("OnNetworkChange"); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.networkCallbacks = append(f.networkCallbacks, cb)
	return nil
}

// Event simulation

// SwitchAccount changes the account and notifies subscribers with it.
func (f *Provider) SwitchAccount(account adapter.AccountInfo) {
	f.mu.Lock()
	f.account = account
	callbacks := append([]adapter.AccountChangeFunc(nil), f.accountCallbacks...)
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(account)
	}
}

// Lock simulates the wallet locking: subscribers get an account without a
// public key, and the session drops until the next Connect.
func (f *Provider) Lock() {
	f.mu.Lock()
	f.connected = false
	stale := adapter.AccountInfo{Address: f.account.Address}
	callbacks := append([]adapter.AccountChangeFunc(nil), f.accountCallbacks...)
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(stale)
	}
}

// SwitchNetwork changes the network and notifies subscribers with the native payload.
func (f *Provider) SwitchNetwork(network adapter.NetworkInfo) {
	f.mu.Lock()
	f.network = network
	callbacks := append([]adapter.NetworkChangeFunc(nil), f.networkCallbacks...)
	f.mu.Unlock()

	event := adapter.NetworkChangeEvent{NetworkName: network}
	for _, cb := range callbacks {
		cb(event)
	}
}

// Fault injection methods

// SetFaultMode sets the fault injection mode.
func (f *Provider) SetFaultMode(mode string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faultMode = mode
}

// ClearFaultMode clears the fault injection mode.
func (f *Provider) ClearFaultMode() {
	f.SetFaultMode(FaultNone)
}

// checkFaultMode reports whether operation should answer with nothing, or the
// error it should raise.
func (f *Provider) checkFaultMode(operation string) (bool, error) {
	f.mu.RLock()
	mode := f.faultMode
	f.mu.RUnlock()

	switch mode {
	case FaultError:
		return false, fmt.Errorf("fake wallet: simulated failure for %s", operation)
	case FaultEmpty:
		return true, nil
	default:
		return false, nil
	}
}

func (f *Provider) isFault(mode string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.faultMode == mode
}

// Helper methods for testing

// Connected reports whether the wallet session is open.
func (f *Provider) Connected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

// RequestedNetwork returns the network passed to the last Connect.
func (f *Provider) RequestedNetwork() adapter.NetworkName {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.requestedNetwork
}

// CurrentAccount returns the account regardless of session state.
func (f *Provider) CurrentAccount() adapter.AccountInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.account
}

// SubscriberCounts returns the number of account and network callbacks.
func (f *Provider) SubscriberCounts() (int, int) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.accountCallbacks), len(f.networkCallbacks)
}
