package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
)

// stubProvider implements Provider with overridable behavior per method.
type stubProvider struct {
	mu sync.Mutex

	connectFn    func(req ConnectRequest) (*AccountInfo, error)
	disconnectFn func() error
	accountFn    func() (*AccountInfo, error)
	signTxFn     func(tx TransactionPayload) (*SignTransactionResponse, error)
	submitFn     func(tx TransactionPayload) (*SubmitResponse, error)
	signMsgFn    func(payload SignMessagePayload) (*SignMessageResponse, error)
	networkFn    func() (*NetworkInfo, error)
	subscribeErr error

	connectCalls int
	lastConnect  ConnectRequest
	signMsgCalls int
	accountCb    AccountChangeFunc
	networkCb    NetworkChangeFunc
}

func (s *stubProvider) Connect(ctx context.Context, req ConnectRequest) (*AccountInfo, error) {
	s.mu.Lock()
	s.connectCalls++
	s.lastConnect = req
	fn := s.connectFn
	s.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(req)
}

func (s *stubProvider) Disconnect(ctx context.Context) error {
	if s.disconnectFn == nil {
		return nil
	}
	return s.disconnectFn()
}

func (s *stubProvider) Account(ctx context.Context) (*AccountInfo, error) {
	if s.accountFn == nil {
		return nil, nil
	}
	return s.accountFn()
}

func (s *stubProvider) SignTransaction(ctx context.Context, tx TransactionPayload, opts SignOptions) (*SignTransactionResponse, error) {
	if s.signTxFn == nil {
		return nil, nil
	}
	return s.signTxFn(tx)
}

func (s *stubProvider) SignAndSubmitTransaction(ctx context.Context, tx TransactionPayload, opts SignOptions) (*SubmitResponse, error) {
	if s.submitFn == nil {
		return nil, nil
	}
	return s.submitFn(tx)
}

func (s *stubProvider) SignMessage(ctx context.Context, payload SignMessagePayload) (*SignMessageResponse, error) {
	s.mu.Lock()
	s.signMsgCalls++
	s.mu.Unlock()
	if s.signMsgFn == nil {
		return nil, nil
	}
	return s.signMsgFn(payload)
}

func (s *stubProvider) Network(ctx context.Context) (*NetworkInfo, error) {
	if s.networkFn == nil {
		return nil, nil
	}
	return s.networkFn()
}

func (s *stubProvider) OnAccountChange(ctx context.Context, cb AccountChangeFunc) error {
	if s.subscribeErr != nil {
		return s.subscribeErr
	}
	s.accountCb = cb
	return nil
}

func (s *stubProvider) OnNetworkChange(ctx context.Context, cb NetworkChangeFunc) error {
	if s.subscribeErr != nil {
		return s.subscribeErr
	}
	s.networkCb = cb
	return nil
}

// recordingAudit captures LogAction calls.
type recordingAudit struct {
	mu      sync.Mutex
	actions []string
	errs    []error
}

func (r *recordingAudit) LogAction(ctx context.Context, action, network string, params map[string]interface{}, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action+"@"+network)
	r.errs = append(r.errs, err)
}

var testAccount = AccountInfo{Address: "0xa11ce", PublicKey: "0xpub"}

func newTestConnector(t *testing.T, p Provider) *Connector {
	t.Helper()
	c, err := NewConnector(Config{}, StaticProvider(p))
	if err != nil {
		t.Fatalf("NewConnector failed: %v", err)
	}
	return c
}

func TestNewConnector_DefaultsToMainnet(t *testing.T) {
	c, err := NewConnector(Config{}, nil)
	if err != nil {
		t.Fatalf("NewConnector failed: %v", err)
	}
	if c.NetworkSelection() != NetworkMainnet {
		t.Errorf("Expected mainnet, got %s", c.NetworkSelection())
	}
	if c.Name() != "Coin98" {
		t.Errorf("Expected default name Coin98, got %s", c.Name())
	}
	if c.ProviderName() != "coin98Aptos" {
		t.Errorf("Expected provider name coin98Aptos, got %s", c.ProviderName())
	}
	if !strings.HasPrefix(c.URL(), "https://chrome.google.com/webstore/") {
		t.Errorf("Unexpected URL %s", c.URL())
	}
	if !strings.HasPrefix(c.Icon(), "data:image/png;base64,iVBORw0KGgo") {
		t.Errorf("Icon should be a PNG data URI, got %.40s", c.Icon())
	}
}

func TestNewConnector_Networks(t *testing.T) {
	for _, network := range SupportedNetworks {
		c, err := NewConnector(Config{Network: network}, nil)
		if err != nil {
			t.Fatalf("NewConnector(%s) failed: %v", network, err)
		}
		if c.NetworkSelection() != network {
			t.Errorf("Expected %s, got %s", network, c.NetworkSelection())
		}
	}

	_, err := NewConnector(Config{Network: "localnet"}, nil)
	if !errors.Is(err, ErrInvalidNetwork) {
		t.Errorf("Expected ErrInvalidNetwork, got %v", err)
	}
}

func TestConnector_ReadyState(t *testing.T) {
	var current Provider
	c, err := NewConnector(Config{}, func() Provider { return current })
	if err != nil {
		t.Fatalf("NewConnector failed: %v", err)
	}

	if c.ReadyState() != ReadyStateNotDetected {
		t.Errorf("Expected NotDetected, got %s", c.ReadyState())
	}

	current = &stubProvider{}
	if c.ReadyState() != ReadyStateInstalled {
		t.Errorf("Expected Installed, got %s", c.ReadyState())
	}
}

func TestConnector_NoProvider(t *testing.T) {
	c, err := NewConnector(Config{}, nil)
	if err != nil {
		t.Fatalf("NewConnector failed: %v", err)
	}
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		code error
	}{
		{"connect", func() error { _, err := c.Connect(ctx); return err }, ErrConnection},
		{"disconnect", func() error { return c.Disconnect(ctx) }, ErrDisconnect},
		{"account", func() error { _, err := c.Account(ctx); return err }, ErrNoAccount},
		{"signTransaction", func() error { _, err := c.SignTransaction(ctx, nil, nil); return err }, ErrTransaction},
		{"signAndSubmitTransaction", func() error { _, err := c.SignAndSubmitTransaction(ctx, nil, nil); return err }, ErrTransaction},
		{"signMessage", func() error {
			_, err := c.SignMessage(ctx, SignMessagePayload{Message: "hi", Nonce: "1"})
			return err
		}, ErrSignMessage},
		{"network", func() error { _, err := c.Network(ctx); return err }, ErrNetworkQuery},
		{"onAccountChange", func() error {
			return c.OnAccountChange(ctx, func(AccountInfo, error) {})
		}, ErrEventSubscription},
		{"onNetworkChange", func() error {
			return c.OnNetworkChange(ctx, func(NetworkInfo) {})
		}, ErrEventSubscription},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if err == nil {
				t.Fatal("Expected error with no provider installed")
			}
			if !errors.Is(err, tt.code) {
				t.Errorf("Expected %v, got %v", tt.code, err)
			}
			if !errors.Is(err, ErrProviderNotFound) {
				t.Errorf("Expected ErrProviderNotFound, got %v", err)
			}
		})
	}
}

func TestConnector_Connect(t *testing.T) {
	account := testAccount
	p := &stubProvider{connectFn: func(req ConnectRequest) (*AccountInfo, error) {
		return &account, nil
	}}
	c, err := NewConnector(Config{Network: NetworkTestnet}, StaticProvider(p))
	if err != nil {
		t.Fatalf("NewConnector failed: %v", err)
	}

	got, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if got != &account {
		t.Error("Connect should return the provider's account unchanged")
	}
	if p.lastConnect.Network != NetworkTestnet {
		t.Errorf("Expected connect on testnet, got %s", p.lastConnect.Network)
	}
}

func TestConnector_ConnectFailures(t *testing.T) {
	providerErr := errors.New("User rejected the request")

	tests := []struct {
		name   string
		fn     func(ConnectRequest) (*AccountInfo, error)
		reason string
	}{
		{"nil account", func(ConnectRequest) (*AccountInfo, error) { return nil, nil }, ReasonEmpty},
		{"provider error", func(ConnectRequest) (*AccountInfo, error) { return nil, providerErr }, ReasonUserRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestConnector(t, &stubProvider{connectFn: tt.fn})

			_, err := c.Connect(context.Background())
			if !errors.Is(err, ErrConnection) {
				t.Fatalf("Expected ErrConnection, got %v", err)
			}
			var ce *ConnectorError
			if !errors.As(err, &ce) {
				t.Fatalf("Expected *ConnectorError, got %T", err)
			}
			if ce.Reason != tt.reason {
				t.Errorf("Expected reason %s, got %s", tt.reason, ce.Reason)
			}
		})
	}
}

func TestConnector_Disconnect(t *testing.T) {
	c := newTestConnector(t, &stubProvider{})
	if err := c.Disconnect(context.Background()); err != nil {
		t.Errorf("Disconnect failed: %v", err)
	}

	providerErr := errors.New("boom")
	c = newTestConnector(t, &stubProvider{disconnectFn: func() error { return providerErr }})
	err := c.Disconnect(context.Background())
	if !errors.Is(err, ErrDisconnect) || !errors.Is(err, providerErr) {
		t.Errorf("Expected ErrDisconnect wrapping provider error, got %v", err)
	}
}

func TestConnector_Account(t *testing.T) {
	c := newTestConnector(t, &stubProvider{accountFn: func() (*AccountInfo, error) {
		a := testAccount
		return &a, nil
	}})

	got, err := c.Account(context.Background())
	if err != nil {
		t.Fatalf("Account failed: %v", err)
	}
	if *got != testAccount {
		t.Errorf("Expected %+v, got %+v", testAccount, *got)
	}

	c = newTestConnector(t, &stubProvider{})
	if _, err := c.Account(context.Background()); !errors.Is(err, ErrNoAccount) {
		t.Errorf("Expected ErrNoAccount, got %v", err)
	}
}

func TestConnector_SignAndSubmitTransaction(t *testing.T) {
	tx := TransactionPayload(`{"function":"0x1::coin::transfer","arguments":["0xb0b","100"]}`)

	t.Run("hash returned unchanged", func(t *testing.T) {
		resp := &SubmitResponse{Hash: "0xhash"}
		var seen TransactionPayload
		c := newTestConnector(t, &stubProvider{submitFn: func(got TransactionPayload) (*SubmitResponse, error) {
			seen = got
			return resp, nil
		}})

		got, err := c.SignAndSubmitTransaction(context.Background(), tx, nil)
		if err != nil {
			t.Fatalf("SignAndSubmitTransaction failed: %v", err)
		}
		if got != resp {
			t.Error("Response should be returned unchanged")
		}
		if string(seen) != string(tx) {
			t.Errorf("Payload not forwarded verbatim: %s", seen)
		}
	})

	t.Run("code field becomes error", func(t *testing.T) {
		c := newTestConnector(t, &stubProvider{submitFn: func(TransactionPayload) (*SubmitResponse, error) {
			return &SubmitResponse{Code: 4001, Message: "rejected"}, nil
		}})

		_, err := c.SignAndSubmitTransaction(context.Background(), tx, nil)
		if !errors.Is(err, ErrRejected) {
			t.Fatalf("Expected ErrRejected, got %v", err)
		}
		var ce *ConnectorError
		if !errors.As(err, &ce) {
			t.Fatalf("Expected *ConnectorError, got %T", err)
		}
		if ce.Message != "rejected" {
			t.Errorf("Expected message %q, got %q", "rejected", ce.Message)
		}
		if ce.ProviderCode != 4001 || ce.Reason != ReasonUserRejected {
			t.Errorf("Expected code 4001/USER_REJECTED, got %d/%s", ce.ProviderCode, ce.Reason)
		}
	})

	t.Run("nil response", func(t *testing.T) {
		c := newTestConnector(t, &stubProvider{})
		if _, err := c.SignAndSubmitTransaction(context.Background(), tx, nil); !errors.Is(err, ErrEmptyResponse) {
			t.Errorf("Expected ErrEmptyResponse, got %v", err)
		}
	})

	t.Run("provider error keeps structure", func(t *testing.T) {
		providerErr := &codedError{code: 4100, msg: "not authorized"}
		c := newTestConnector(t, &stubProvider{submitFn: func(TransactionPayload) (*SubmitResponse, error) {
			return nil, providerErr
		}})

		_, err := c.SignAndSubmitTransaction(context.Background(), tx, nil)
		var target *codedError
		if !errors.As(err, &target) {
			t.Fatalf("Provider error type lost: %v", err)
		}
		if !errors.Is(err, ErrTransaction) {
			t.Errorf("Expected ErrTransaction, got %v", err)
		}
	})
}

func TestConnector_SignTransaction(t *testing.T) {
	tx := TransactionPayload(`{"type":"entry_function_payload"}`)

	t.Run("signature bytes", func(t *testing.T) {
		c := newTestConnector(t, &stubProvider{signTxFn: func(TransactionPayload) (*SignTransactionResponse, error) {
			return &SignTransactionResponse{Signature: []byte{0xde, 0xad}}, nil
		}})

		sig, err := c.SignTransaction(context.Background(), tx, nil)
		if err != nil {
			t.Fatalf("SignTransaction failed: %v", err)
		}
		if len(sig) != 2 || sig[0] != 0xde {
			t.Errorf("Unexpected signature %x", sig)
		}
	})

	t.Run("nil response", func(t *testing.T) {
		c := newTestConnector(t, &stubProvider{})
		if _, err := c.SignTransaction(context.Background(), tx, nil); !errors.Is(err, ErrEmptyResponse) {
			t.Errorf("Expected ErrEmptyResponse, got %v", err)
		}
	})

	t.Run("empty signature", func(t *testing.T) {
		c := newTestConnector(t, &stubProvider{signTxFn: func(TransactionPayload) (*SignTransactionResponse, error) {
			return &SignTransactionResponse{}, nil
		}})
		if _, err := c.SignTransaction(context.Background(), tx, nil); !errors.Is(err, ErrEmptyResponse) {
			t.Errorf("Expected ErrEmptyResponse, got %v", err)
		}
	})

	t.Run("error result", func(t *testing.T) {
		c := newTestConnector(t, &stubProvider{signTxFn: func(TransactionPayload) (*SignTransactionResponse, error) {
			return &SignTransactionResponse{Error: &ErrorResult{Code: 4001, Message: "User rejected"}}, nil
		}})

		_, err := c.SignTransaction(context.Background(), tx, nil)
		if !errors.Is(err, ErrRejected) {
			t.Fatalf("Expected ErrRejected, got %v", err)
		}
		if !strings.Contains(err.Error(), "User rejected") {
			t.Errorf("Expected provider message in %q", err.Error())
		}
	})
}

func TestConnector_SignMessage(t *testing.T) {
	t.Run("missing nonce rejected before provider", func(t *testing.T) {
		p := &stubProvider{}
		c := newTestConnector(t, p)

		_, err := c.SignMessage(context.Background(), SignMessagePayload{Message: "hello"})
		if !errors.Is(err, ErrInvalidPayload) {
			t.Fatalf("Expected ErrInvalidPayload, got %v", err)
		}
		if p.signMsgCalls != 0 {
			t.Errorf("Provider should not be called, got %d calls", p.signMsgCalls)
		}
	})

	t.Run("response relayed", func(t *testing.T) {
		c := newTestConnector(t, &stubProvider{signMsgFn: func(payload SignMessagePayload) (*SignMessageResponse, error) {
			return &SignMessageResponse{Message: payload.Message, Nonce: payload.Nonce, Signature: "0xsig"}, nil
		}})

		resp, err := c.SignMessage(context.Background(), SignMessagePayload{Message: "hello", Nonce: "42"})
		if err != nil {
			t.Fatalf("SignMessage failed: %v", err)
		}
		if resp.Signature != "0xsig" || resp.Nonce != "42" {
			t.Errorf("Unexpected response %+v", resp)
		}
	})

	t.Run("nil response", func(t *testing.T) {
		c := newTestConnector(t, &stubProvider{})
		_, err := c.SignMessage(context.Background(), SignMessagePayload{Message: "hello", Nonce: "42"})
		if !errors.Is(err, ErrSignMessage) {
			t.Errorf("Expected ErrSignMessage, got %v", err)
		}
	})
}

func TestConnector_Network(t *testing.T) {
	c := newTestConnector(t, &stubProvider{networkFn: func() (*NetworkInfo, error) {
		return &NetworkInfo{Name: "MAINNET"}, nil
	}})
	ctx := context.Background()

	first, err := c.Network(ctx)
	if err != nil {
		t.Fatalf("Network failed: %v", err)
	}
	if first.Name != NetworkMainnet {
		t.Errorf("Expected mainnet, got %s", first.Name)
	}

	second, err := c.Network(ctx)
	if err != nil {
		t.Fatalf("Second Network failed: %v", err)
	}
	if *first != *second {
		t.Errorf("Network should be idempotent: %+v vs %+v", first, second)
	}

	c = newTestConnector(t, &stubProvider{})
	if _, err := c.Network(ctx); !errors.Is(err, ErrNetworkQuery) {
		t.Errorf("Expected ErrNetworkQuery, got %v", err)
	}
}

func TestConnector_OnAccountChange(t *testing.T) {
	reconnected := AccountInfo{Address: "0xre", PublicKey: "0xrepub"}
	p := &stubProvider{connectFn: func(ConnectRequest) (*AccountInfo, error) {
		a := reconnected
		return &a, nil
	}}
	c := newTestConnector(t, p)

	var got []AccountInfo
	err := c.OnAccountChange(context.Background(), func(account AccountInfo, err error) {
		if err != nil {
			t.Errorf("Unexpected handler error: %v", err)
		}
		got = append(got, account)
	})
	if err != nil {
		t.Fatalf("OnAccountChange failed: %v", err)
	}
	if p.accountCb == nil {
		t.Fatal("Native callback was not registered")
	}

	p.accountCb(testAccount)
	if p.connectCalls != 0 {
		t.Errorf("Complete account should not trigger connect, got %d calls", p.connectCalls)
	}

	p.accountCb(AccountInfo{Address: "0xstale"})
	if p.connectCalls != 1 {
		t.Errorf("Account without public key should trigger connect, got %d calls", p.connectCalls)
	}

	if len(got) != 2 {
		t.Fatalf("Expected 2 deliveries, got %d", len(got))
	}
	if got[0] != testAccount {
		t.Errorf("Expected %+v, got %+v", testAccount, got[0])
	}
	if got[1] != reconnected {
		t.Errorf("Expected reconnected account %+v, got %+v", reconnected, got[1])
	}
}

func TestConnector_OnAccountChange_ReconnectFailure(t *testing.T) {
	p := &stubProvider{connectFn: func(ConnectRequest) (*AccountInfo, error) {
		return nil, errors.New("wallet is locked")
	}}
	c := newTestConnector(t, p)

	var handlerErr error
	ctx, cancel := context.WithCancel(context.Background())
	if err := c.OnAccountChange(ctx, func(_ AccountInfo, err error) { handlerErr = err }); err != nil {
		t.Fatalf("OnAccountChange failed: %v", err)
	}
	cancel()

	p.accountCb(AccountInfo{})
	if !errors.Is(handlerErr, ErrConnection) {
		t.Errorf("Expected ErrConnection delivered to handler, got %v", handlerErr)
	}
	if errors.Is(handlerErr, context.Canceled) {
		t.Error("Reconnect should not inherit subscription cancellation")
	}
}

func TestConnector_OnNetworkChange(t *testing.T) {
	p := &stubProvider{}
	c := newTestConnector(t, p)

	var got []NetworkInfo
	if err := c.OnNetworkChange(context.Background(), func(n NetworkInfo) { got = append(got, n) }); err != nil {
		t.Fatalf("OnNetworkChange failed: %v", err)
	}

	var event NetworkChangeEvent
	if err := json.Unmarshal([]byte(`{"networkName":{"name":"testnet"}}`), &event); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	p.networkCb(event)

	if len(got) != 1 {
		t.Fatalf("Expected 1 delivery, got %d", len(got))
	}
	want := NetworkInfo{Name: NetworkTestnet}
	if got[0] != want {
		t.Errorf("Expected %+v, got %+v", want, got[0])
	}
}

func TestConnector_OnNetworkChangeNormalizesFullPayload(t *testing.T) {
	p := &stubProvider{}
	c := newTestConnector(t, p)

	var got []NetworkInfo
	if err := c.OnNetworkChange(context.Background(), func(n NetworkInfo) { got = append(got, n) }); err != nil {
		t.Fatalf("OnNetworkChange failed: %v", err)
	}

	p.networkCb(NetworkChangeEvent{NetworkName: NetworkInfo{Name: "DevNet", ChainID: "34", API: "https://fullnode.devnet.aptoslabs.com/v1"}})

	want := NetworkInfo{Name: NetworkDevnet, ChainID: "34", API: "https://fullnode.devnet.aptoslabs.com/v1"}
	if len(got) != 1 || got[0] != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
}

func TestConnector_SubscriptionErrors(t *testing.T) {
	c := newTestConnector(t, &stubProvider{subscribeErr: errors.New("event not supported")})
	ctx := context.Background()

	err := c.OnAccountChange(ctx, func(AccountInfo, error) {})
	if !errors.Is(err, ErrEventSubscription) {
		t.Errorf("Expected ErrEventSubscription, got %v", err)
	}

	err = c.OnNetworkChange(ctx, func(NetworkInfo) {})
	if !errors.Is(err, ErrEventSubscription) {
		t.Errorf("Expected ErrEventSubscription, got %v", err)
	}

	if err := c.OnAccountChange(ctx, nil); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("Expected ErrInvalidPayload for nil handler, got %v", err)
	}
}

func TestConnector_AuditRecording(t *testing.T) {
	audit := &recordingAudit{}
	c, err := NewConnector(Config{Network: NetworkDevnet}, nil)
	if err != nil {
		t.Fatalf("NewConnector failed: %v", err)
	}
	c.SetAuditLogger(audit)

	_, _ = c.Connect(context.Background())
	_, _ = c.Network(context.Background())

	if len(audit.actions) != 2 {
		t.Fatalf("Expected 2 audit records, got %d", len(audit.actions))
	}
	if audit.actions[0] != "connect@devnet" || audit.actions[1] != "network@devnet" {
		t.Errorf("Unexpected audit actions %v", audit.actions)
	}
	if !errors.Is(audit.errs[0], ErrConnection) {
		t.Errorf("Expected connect failure recorded, got %v", audit.errs[0])
	}
}
