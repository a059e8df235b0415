package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wallet-adapter/connector/internal/adapter"
	"github.com/wallet-adapter/connector/internal/auth"
)

// notificationQueue bounds notifications waiting for their callbacks.
const notificationQueue = 64

// ClientConfig configures Dial.
type ClientConfig struct {
	URL string

	// Signer, when set, issues the bearer token for Subject
	Signer  *auth.Signer
	Subject string

	// HandshakeTimeout bounds the WebSocket handshake; zero means none
	HandshakeTimeout time.Duration
}

// Client is an adapter.Provider reached over the bridge.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	nextID  atomic.Int64

	mu               sync.Mutex
	pending          map[int64]chan *message
	accountCallbacks []*adapter.AccountChangeFunc
	networkCallbacks []*adapter.NetworkChangeFunc

	notifications chan *message

	closeOnce sync.Once
	closed    atomic.Bool // set by Close
	done      chan struct{}
}

var _ adapter.Provider = (*Client)(nil)

// Dial connects to a bridge server.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	header := http.Header{}
	if cfg.Signer != nil {
		token, err := cfg.Signer.Sign(cfg.Subject, auth.ScopeConnect)
		if err != nil {
			return nil, fmt.Errorf("failed to issue bridge token: %w", err)
		}
		header.Set("Authorization", "Bearer "+token)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, cfg.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial %s: %w (status %d)", cfg.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.URL, err)
	}

	c := &Client{
		conn:          conn,
		pending:       make(map[int64]chan *message),
		notifications: make(chan *message, notificationQueue),
		done:          make(chan struct{}),
	}

	go c.readLoop()
	go c.dispatchLoop()

	return c, nil
}

// Resolver returns a resolver yielding c while the connection is open and
// nothing once it has closed.
func (c *Client) Resolver() adapter.ProviderResolver {
	return func() adapter.Provider {
		if c.Closed() {
			return nil
		}
		return c
	}
}

// Closed reports whether the connection has ended.
func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection and waits for the read loop to stop. Pending
// calls fail with ErrClosed.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		if cerr := c.conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	})
	<-c.done
	return err
}

// Connect asks the wallet to connect on req.Network.
func (c *Client) Connect(ctx context.Context, req adapter.ConnectRequest) (*adapter.AccountInfo, error) {
	var account adapter.AccountInfo
	found, err := c.call(ctx, MethodConnect, req, &account)
	if err != nil || !found {
		return nil, err
	}
	return &account, nil
}

// Disconnect asks the wallet to drop the session.
func (c *Client) Disconnect(ctx context.Context) error {
	_, err := c.call(ctx, MethodDisconnect, nil, nil)
	return err
}

// Account returns the wallet's account.
func (c *Client) Account(ctx context.Context) (*adapter.AccountInfo, error) {
	var account adapter.AccountInfo
	found, err := c.call(ctx, MethodAccount, nil, &account)
	if err != nil || !found {
		return nil, err
	}
	return &account, nil
}

// SignTransaction asks the wallet to sign tx.
func (c *Client) SignTransaction(ctx context.Context, tx adapter.TransactionPayload, opts adapter.SignOptions) (*adapter.SignTransactionResponse, error) {
	var resp adapter.SignTransactionResponse
	found, err := c.call(ctx, MethodSignTransaction, transactionParams{Transaction: tx, Options: opts}, &resp)
	if err != nil || !found {
		return nil, err
	}
	return &resp, nil
}

// SignAndSubmitTransaction asks the wallet to sign and submit tx.
func (c *Client) SignAndSubmitTransaction(ctx context.Context, tx adapter.TransactionPayload, opts adapter.SignOptions) (*adapter.SubmitResponse, error) {
	var resp adapter.SubmitResponse
	found, err := c.call(ctx, MethodSignAndSubmitTransaction, transactionParams{Transaction: tx, Options: opts}, &resp)
	if err != nil || !found {
		return nil, err
	}
	return &resp, nil
}

// SignMessage asks the wallet to sign payload.
func (c *Client) SignMessage(ctx context.Context, payload adapter.SignMessagePayload) (*adapter.SignMessageResponse, error) {
	var resp adapter.SignMessageResponse
	found, err := c.call(ctx, MethodSignMessage, payload, &resp)
	if err != nil || !found {
		return nil, err
	}
	return &resp, nil
}

// Network returns the wallet's network as reported.
func (c *Client) Network(ctx context.Context) (*adapter.NetworkInfo, error) {
	var network adapter.NetworkInfo
	found, err := c.call(ctx, MethodNetwork, nil, &network)
	if err != nil || !found {
		return nil, err
	}
	return &network, nil
}

// OnAccountChange subscribes cb to accountChanged notifications. cb is
// registered before the request goes out, so an event the wallet emits while
// subscribing is not lost.
func (c *Client) OnAccountChange(ctx context.Context, cb adapter.AccountChangeFunc) error {
	entry := &cb
	c.mu.Lock()
	c.accountCallbacks = append(c.accountCallbacks, entry)
	c.mu.Unlock()

	if _, err := c.call(ctx, MethodOnAccountChange, nil, nil); err != nil {
		c.mu.Lock()
		c.accountCallbacks = removeCallback(c.accountCallbacks, entry)
		c.mu.Unlock()
		return err
	}
	return nil
}

// OnNetworkChange subscribes cb to networkChanged notifications, registering
// it before the request goes out.
func (c *Client) OnNetworkChange(ctx context.Context, cb adapter.NetworkChangeFunc) error {
	entry := &cb
	c.mu.Lock()
	c.networkCallbacks = append(c.networkCallbacks, entry)
	c.mu.Unlock()

	if _, err := c.call(ctx, MethodOnNetworkChange, nil, nil); err != nil {
		c.mu.Lock()
		c.networkCallbacks = removeCallback(c.networkCallbacks, entry)
		c.mu.Unlock()
		return err
	}
	return nil
}

func removeCallback[T any](callbacks []*T, entry *T) []*T {
	for i, cb := range callbacks {
		if cb == entry {
			return append(callbacks[:i:i], callbacks[i+1:]...)
		}
	}
	return callbacks
}

// call sends a request and waits for its response. It reports false when
// the result is null. result may be nil when the caller ignores it.
func (c *Client) call(ctx context.Context, method string, params interface{}, result interface{}) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	id := c.nextID.Add(1)
	req := message{JSONRPC: JSONRPCVersion, ID: &id, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return false, fmt.Errorf("failed to marshal %s params: %w", method, err)
		}
		req.Params = raw
	}

	ch := make(chan *message, 1)
	c.mu.Lock()
	if c.Closed() {
		c.mu.Unlock()
		return false, ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.write(&req); err != nil {
		c.forget(id)
		return false, fmt.Errorf("failed to send %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		c.forget(id)
		return false, ctx.Err()
	case <-c.done:
		return false, ErrClosed
	case resp := <-ch:
		if resp.Error != nil {
			return false, resp.Error
		}
		if isNull(resp.Result) {
			return false, nil
		}
		if result != nil {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return false, fmt.Errorf("failed to decode %s result: %w", method, err)
			}
		}
		return true, nil
	}
}

func (c *Client) write(msg *message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// readLoop routes responses to their callers and queues notifications.
func (c *Client) readLoop() {
	defer c.shutdown()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !c.closed.Load() {
				log.Printf("bridge: client read failed: %v", err)
			}
			return
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("bridge: dropping malformed frame: %v", err)
			continue
		}

		if msg.isNotification() {
			select {
			case c.notifications <- &msg:
			default:
				log.Printf("bridge: notification queue full, dropping %s", msg.Method)
			}
			continue
		}
		if msg.ID == nil {
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[*msg.ID]
		delete(c.pending, *msg.ID)
		c.mu.Unlock()

		if ok {
			ch <- &msg
		}
	}
}

// dispatchLoop runs callbacks in arrival order, off the read loop so a
// callback may itself call the provider.
func (c *Client) dispatchLoop() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.notifications:
			c.dispatch(msg)
		}
	}
}

func (c *Client) dispatch(msg *message) {
	switch msg.Method {
	case NotifyAccountChanged:
		var account adapter.AccountInfo
		if err := json.Unmarshal(msg.Params, &account); err != nil {
			log.Printf("bridge: malformed %s: %v", msg.Method, err)
			return
		}
		c.mu.Lock()
		callbacks := append([]*adapter.AccountChangeFunc(nil), c.accountCallbacks...)
		c.mu.Unlock()
		for _, cb := range callbacks {
			(*cb)(account)
		}

	case NotifyNetworkChanged:
		var event adapter.NetworkChangeEvent
		if err := json.Unmarshal(msg.Params, &event); err != nil {
			log.Printf("bridge: malformed %s: %v", msg.Method, err)
			return
		}
		c.mu.Lock()
		callbacks := append([]*adapter.NetworkChangeFunc(nil), c.networkCallbacks...)
		c.mu.Unlock()
		for _, cb := range callbacks {
			(*cb)(event)
		}

	default:
		log.Printf("bridge: ignoring notification %s", msg.Method)
	}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	close(c.done)
	c.pending = make(map[int64]chan *message)
	c.mu.Unlock()
	_ = c.conn.Close()
}
