package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wallet-adapter/connector/internal/adapter"
	"github.com/wallet-adapter/connector/internal/auth"
	"github.com/wallet-adapter/connector/internal/config"
	"github.com/wallet-adapter/connector/internal/telemetry"
)

// DefaultStream is the hub stream wallet events are published on.
const DefaultStream = "wallet"

// ServerConfig configures a Server.
type ServerConfig struct {
	// Verifier checks bearer tokens; nil admits every connection
	Verifier *auth.Verifier

	// Hub carries provider events; nil means a private hub
	Hub    *telemetry.Hub
	Stream string

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	// CheckOrigin overrides the upgrader's origin check; nil allows any origin
	CheckOrigin func(r *http.Request) bool
}

// Server serves a provider to bridge clients.
type Server struct {
	provider adapter.Provider
	config   ServerConfig
	upgrader websocket.Upgrader
	handler  http.Handler
	ownHub   bool

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	hooked map[string]bool // provider subscriptions already forwarding to the hub
	conns  map[*serverConn]struct{}
	wg     sync.WaitGroup
}

// NewServer creates a bridge server in front of provider.
func NewServer(provider adapter.Provider, cfg ServerConfig) *Server {
	defaults := config.Defaults()
	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaults.Bridge.HeartbeatInterval
	}
	if cfg.HeartbeatTimeout < cfg.HeartbeatInterval {
		cfg.HeartbeatTimeout = 3 * cfg.HeartbeatInterval
	}

	s := &Server{
		provider: provider,
		config:   cfg,
		hooked:   make(map[string]bool),
		conns:    make(map[*serverConn]struct{}),
	}
	if s.config.Hub == nil {
		s.config.Hub = telemetry.NewHub(defaults.Events)
		s.ownHub = true
	}

	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: checkOrigin}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.handler = auth.NewMiddleware(cfg.Verifier).RequireScope(http.HandlerFunc(s.serveWS), auth.ScopeConnect)
	return s
}

// ServeHTTP authenticates and upgrades the request, then serves it until the connection ends.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close ends every connection and stops a private hub.
func (s *Server) Close() error {
	s.cancel()

	s.mu.Lock()
	for c := range s.conns {
		c.close()
	}
	s.mu.Unlock()

	s.wg.Wait()

	if s.ownHub {
		s.config.Hub.Stop()
	}
	return nil
}

// ConnectionCount returns the number of open connections.
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.ctx.Done():
		http.Error(w, "server closed", http.StatusServiceUnavailable)
		return
	default:
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("bridge: upgrade failed: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		select {
		case <-s.ctx.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	sub, err := s.config.Hub.Subscribe(ctx, s.config.Stream, 0)
	if err != nil {
		log.Printf("bridge: event subscription failed: %v", err)
		_ = ws.Close()
		return
	}

	c := &serverConn{
		server: s,
		ws:     ws,
		wants:  make(map[string]bool),
	}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		c.close()
		return
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		s.wg.Done()
	}()

	subject := "anonymous"
	if claims := auth.ClaimsFromContext(ctx); claims != nil {
		subject = claims.Subject
	}
	log.Printf("bridge: %s connected from %s", subject, r.RemoteAddr)

	go c.pump(ctx, sub)
	go c.heartbeat(ctx)
	c.readLoop(ctx)

	log.Printf("bridge: %s disconnected", subject)
}

// hook subscribes once to a provider event kind and forwards it to the hub.
func (s *Server) hook(ctx context.Context, method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hooked[method] {
		return nil
	}

	hub, stream := s.config.Hub, s.config.Stream
	var err error
	switch method {
	case MethodOnAccountChange:
		err = s.provider.OnAccountChange(ctx, func(account adapter.AccountInfo) {
			if _, err := hub.PublishJSON(stream, NotifyAccountChanged, account); err != nil {
				log.Printf("bridge: failed to publish %s: %v", NotifyAccountChanged, err)
			}
		})
	case MethodOnNetworkChange:
		err = s.provider.OnNetworkChange(ctx, func(event adapter.NetworkChangeEvent) {
			if _, err := hub.PublishJSON(stream, NotifyNetworkChanged, event); err != nil {
				log.Printf("bridge: failed to publish %s: %v", NotifyNetworkChanged, err)
			}
		})
	default:
		return fmt.Errorf("unknown subscription %s", method)
	}
	if err != nil {
		return err
	}

	s.hooked[method] = true
	return nil
}

// dispatch runs one request against the provider. A nil provider response
// is returned as a typed nil and goes out as a JSON null.
func (s *Server) dispatch(ctx context.Context, c *serverConn, method string, params json.RawMessage) (interface{}, *RPCError) {
	var result interface{}
	var err error

	switch method {
	case MethodConnect:
		var req adapter.ConnectRequest
		if len(params) > 0 {
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, invalidParams(method, err)
			}
		}
		result, err = s.provider.Connect(ctx, req)

	case MethodDisconnect:
		err = s.provider.Disconnect(ctx)

	case MethodAccount:
		result, err = s.provider.Account(ctx)

	case MethodSignTransaction, MethodSignAndSubmitTransaction:
		var tp transactionParams
		if err := json.Unmarshal(params, &tp); err != nil {
			return nil, invalidParams(method, err)
		}
		if method == MethodSignTransaction {
			result, err = s.provider.SignTransaction(ctx, tp.Transaction, tp.Options)
		} else {
			result, err = s.provider.SignAndSubmitTransaction(ctx, tp.Transaction, tp.Options)
		}

	case MethodSignMessage:
		var payload adapter.SignMessagePayload
		if err := json.Unmarshal(params, &payload); err != nil {
			return nil, invalidParams(method, err)
		}
		result, err = s.provider.SignMessage(ctx, payload)

	case MethodNetwork:
		result, err = s.provider.Network(ctx)

	case MethodOnAccountChange, MethodOnNetworkChange:
		// Wanted before hooking: a wallet may emit while the hook registers
		added := c.subscribe(method)
		if err = s.hook(s.ctx, method); err != nil && added {
			c.unsubscribe(method)
		}

	default:
		return nil, &RPCError{Code: CodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", method)}
	}

	if err != nil {
		return nil, toRPCError(err)
	}
	return result, nil
}

// serverConn is one bridge connection.
type serverConn struct {
	server *Server
	ws     *websocket.Conn

	writeMu sync.Mutex

	mu    sync.Mutex
	wants map[string]bool // notification methods this connection subscribed to

	closeOnce sync.Once
}

// subscribe marks the notification for method as wanted. It reports
// whether it was not wanted before.
func (c *serverConn) subscribe(method string) bool {
	notification := notificationFor(method)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wants[notification] {
		return false
	}
	c.wants[notification] = true
	return true
}

func (c *serverConn) unsubscribe(method string) {
	c.mu.Lock()
	delete(c.wants, notificationFor(method))
	c.mu.Unlock()
}

func notificationFor(method string) string {
	if method == MethodOnNetworkChange {
		return NotifyNetworkChanged
	}
	return NotifyAccountChanged
}

func (c *serverConn) wantsEvent(eventType string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wants[eventType]
}

func (c *serverConn) readLoop(ctx context.Context) {
	defer c.close()

	timeout := c.server.config.HeartbeatTimeout
	_ = c.ws.SetReadDeadline(time.Now().Add(timeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(timeout))
	})

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				log.Printf("bridge: server read failed: %v", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(timeout))

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.writeResponse(nil, nil, &RPCError{Code: CodeParseError, Message: err.Error()})
			continue
		}
		if msg.JSONRPC != JSONRPCVersion || msg.Method == "" {
			c.writeResponse(msg.ID, nil, &RPCError{Code: CodeInvalidRequest, Message: "invalid request"})
			continue
		}
		if msg.ID == nil {
			// Clients send no notifications
			continue
		}

		wg.Add(1)
		go func(msg message) {
			defer wg.Done()
			result, rpcErr := c.server.dispatch(ctx, c, msg.Method, msg.Params)
			c.writeResponse(msg.ID, result, rpcErr)
		}(msg)
	}
}

func (c *serverConn) writeResponse(id *int64, result interface{}, rpcErr *RPCError) {
	resp := message{JSONRPC: JSONRPCVersion, ID: id, Error: rpcErr}
	if rpcErr == nil {
		raw, err := json.Marshal(result)
		if err != nil {
			resp.Error = &RPCError{Code: CodeProviderError, Message: fmt.Sprintf("failed to encode result: %v", err)}
		} else {
			resp.Result = raw
		}
	}
	if id == nil {
		// Unattributable errors go out with id 0, which no client request uses
		resp.ID = new(int64)
	}
	c.write(&resp)
}

// pump forwards hub events this connection subscribed to as notifications.
func (c *serverConn) pump(ctx context.Context, sub *telemetry.Subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			c.close()
			return
		case event := <-sub.Events():
			if !c.wantsEvent(event.Type) {
				continue
			}
			c.write(&message{JSONRPC: JSONRPCVersion, Method: event.Type, Params: event.Data})
		}
	}
}

func (c *serverConn) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(c.server.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *serverConn) write(msg *message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("bridge: failed to encode frame: %v", err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("bridge: write failed: %v", err)
	}
}

func (c *serverConn) close() {
	c.closeOnce.Do(func() {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(time.Second))
		_ = c.ws.Close()
	})
}
