package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wallet-adapter/connector/internal/adapter"
	"github.com/wallet-adapter/connector/internal/auth"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

const maxBodyBytes = 1 << 20

// RegisterRoutes registers all v1 endpoints.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	apiV1 := "/api/v1"

	// Health endpoint (no auth required)
	mux.HandleFunc(apiV1+"/health", s.handleHealth)

	mux.Handle(apiV1+"/wallet", s.auth.RequireScope(http.HandlerFunc(s.handleWallet), auth.ScopeRead))
	mux.Handle(apiV1+"/account", s.auth.RequireScope(http.HandlerFunc(s.handleAccount), auth.ScopeRead))
	mux.Handle(apiV1+"/network", s.auth.RequireScope(http.HandlerFunc(s.handleNetwork), auth.ScopeRead))
	mux.Handle(apiV1+"/events", s.auth.RequireScope(http.HandlerFunc(s.handleEvents), auth.ScopeRead))

	mux.Handle(apiV1+"/connect", s.auth.RequireScope(http.HandlerFunc(s.handleConnect), auth.ScopeConnect))
	mux.Handle(apiV1+"/disconnect", s.auth.RequireScope(http.HandlerFunc(s.handleDisconnect), auth.ScopeConnect))

	mux.Handle(apiV1+"/transactions/sign", s.auth.RequireScope(http.HandlerFunc(s.handleSignTransaction), auth.ScopeSign))
	mux.Handle(apiV1+"/transactions/submit", s.auth.RequireScope(http.HandlerFunc(s.handleSubmitTransaction), auth.ScopeSign))
	mux.Handle(apiV1+"/messages/sign", s.auth.RequireScope(http.HandlerFunc(s.handleSignMessage), auth.ScopeSign))
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	readyState := s.wallet.ReadyState()
	subsystems := map[string]bool{
		"wallet": readyState == adapter.ReadyStateInstalled,
		"events": s.events != nil,
	}

	health := map[string]interface{}{
		"status":     "ok",
		"uptimeSec":  time.Since(s.startTime).Seconds(),
		"version":    Version,
		"network":    s.wallet.NetworkSelection(),
		"readyState": readyState,
		"subsystems": subsystems,
	}

	if !subsystems["wallet"] {
		health["status"] = "degraded"
		WriteError(w, http.StatusServiceUnavailable, "SERVICE_DEGRADED",
			"Wallet is not reachable", health)
		return
	}
	WriteSuccess(w, health)
}

// handleWallet handles GET /wallet
func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	WriteSuccess(w, map[string]interface{}{
		"name":         s.wallet.Name(),
		"url":          s.wallet.URL(),
		"icon":         s.wallet.Icon(),
		"providerName": s.wallet.ProviderName(),
		"network":      s.wallet.NetworkSelection(),
		"readyState":   s.wallet.ReadyState(),
	})
}

// handleConnect handles POST /connect
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	account, err := s.wallet.Connect(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	WriteSuccess(w, account)
}

// handleDisconnect handles POST /disconnect
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	if err := s.wallet.Disconnect(r.Context()); err != nil {
		writeAPIError(w, err)
		return
	}
	WriteSuccess(w, map[string]bool{"disconnected": true})
}

// handleAccount handles GET /account
func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	account, err := s.wallet.Account(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	WriteSuccess(w, account)
}

// handleNetwork handles GET /network
func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	network, err := s.wallet.Network(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	WriteSuccess(w, network)
}

// transactionRequest is the body of the transaction endpoints.
type transactionRequest struct {
	Transaction json.RawMessage `json:"transaction"`
	Options     json.RawMessage `json:"options,omitempty"`
}

// handleSignTransaction handles POST /transactions/sign
func (s *Server) handleSignTransaction(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTransaction(w, r)
	if !ok {
		return
	}

	signed, err := s.wallet.SignTransaction(r.Context(), adapter.TransactionPayload(req.Transaction), adapter.SignOptions(req.Options))
	if err != nil {
		writeAPIError(w, err)
		return
	}
	WriteSuccess(w, map[string]string{"signature": "0x" + hex.EncodeToString(signed)})
}

// handleSubmitTransaction handles POST /transactions/submit
func (s *Server) handleSubmitTransaction(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTransaction(w, r)
	if !ok {
		return
	}

	resp, err := s.wallet.SignAndSubmitTransaction(r.Context(), adapter.TransactionPayload(req.Transaction), adapter.SignOptions(req.Options))
	if err != nil {
		writeAPIError(w, err)
		return
	}
	WriteSuccess(w, resp)
}

// handleSignMessage handles POST /messages/sign
func (s *Server) handleSignMessage(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var payload adapter.SignMessagePayload
	if err := decodeStrict(w, r, &payload); err != nil {
		WriteError(w, http.StatusBadRequest, CodeBadRequest, err.Error(), nil)
		return
	}

	resp, err := s.wallet.SignMessage(r.Context(), payload)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	WriteSuccess(w, resp)
}

func decodeTransaction(w http.ResponseWriter, r *http.Request) (*transactionRequest, bool) {
	if !allowMethod(w, r, http.MethodPost) {
		return nil, false
	}

	var req transactionRequest
	if err := decodeStrict(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, CodeBadRequest, err.Error(), nil)
		return nil, false
	}
	if len(req.Transaction) == 0 || string(req.Transaction) == "null" {
		WriteError(w, http.StatusBadRequest, CodeBadRequest, "transaction is required", nil)
		return nil, false
	}
	if string(req.Options) == "null" {
		req.Options = nil
	}
	return &req, true
}

// decodeStrict decodes a single JSON object, rejecting unknown fields and trailing data.
func decodeStrict(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("malformed JSON or unknown fields: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("trailing data after JSON object")
	}
	return nil
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
		fmt.Sprintf("Only %s method is allowed", method), nil)
	return false
}
