// Package main is a command-line host for the wallet connector. It reaches
// the wallet through the bridge and runs one connector operation per call:
//
//	connector [status|connect|disconnect|account|network|sign <tx>|submit <tx>|sign-message <message> <nonce>|watch|serve]
//
// serve exposes the same operations over the HTTP gateway until interrupted.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/wallet-adapter/connector/internal/adapter"
	"github.com/wallet-adapter/connector/internal/api"
	"github.com/wallet-adapter/connector/internal/audit"
	"github.com/wallet-adapter/connector/internal/auth"
	"github.com/wallet-adapter/connector/internal/bridge"
	"github.com/wallet-adapter/connector/internal/config"
	"github.com/wallet-adapter/connector/internal/telemetry"
)

// Version is the connector release.
const Version = "1.0.0"

func main() {
	log.Printf("Starting wallet connector v%s", Version)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	ctx = audit.WithUser(ctx, cfg.Auth.Subject)

	code := run(ctx, cfg, os.Args[1:])
	stop()
	os.Exit(code)
}

func run(ctx context.Context, cfg *config.Config, args []string) int {
	var auditLogger *audit.Logger
	if cfg.Audit.Path != "" {
		var err error
		auditLogger, err = audit.NewLogger(cfg.Audit)
		if err != nil {
			log.Printf("Failed to initialize audit logger: %v", err)
			return 1
		}
		defer func() {
			if err := auditLogger.Close(); err != nil {
				log.Printf("Error closing audit logger: %v", err)
			}
		}()
	}

	signer, err := auth.NewSignerFromConfig(cfg.Auth)
	if err != nil {
		log.Printf("Failed to initialize token signer: %v", err)
		return 1
	}

	// An unreachable wallet is not fatal; the connector reports it as not installed
	var resolve adapter.ProviderResolver
	client, err := dialBridge(ctx, cfg, signer)
	if err != nil {
		log.Printf("Wallet bridge unavailable: %v", err)
	} else {
		resolve = client.Resolver()
		defer func() { _ = client.Close() }()
	}

	connector, err := adapter.NewConnector(adapter.Config{
		Network:  adapter.NetworkName(cfg.Network),
		Metadata: metadataFromConfig(cfg.Wallet),
	}, resolve)
	if err != nil {
		log.Printf("Failed to create connector: %v", err)
		return 1
	}
	if auditLogger != nil {
		connector.SetAuditLogger(auditLogger)
	}

	verb := "status"
	if len(args) > 0 {
		verb, args = args[0], args[1:]
	}

	if err := execute(ctx, cfg, connector, client, verb, args); err != nil {
		log.Printf("%s failed: %v", verb, err)
		return 1
	}
	return 0
}

// dialBridge connects to the wallet. A zero dial timeout means no bound.
func dialBridge(ctx context.Context, cfg *config.Config, signer *auth.Signer) (*bridge.Client, error) {
	if cfg.Bridge.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Bridge.DialTimeout)
		defer cancel()
	}
	return bridge.Dial(ctx, bridge.ClientConfig{
		URL:              cfg.Bridge.URL,
		Signer:           signer,
		Subject:          cfg.Auth.Subject,
		HandshakeTimeout: cfg.Bridge.DialTimeout,
	})
}

// metadataFromConfig overlays configured wallet fields on the defaults.
func metadataFromConfig(wallet config.WalletConfig) adapter.Metadata {
	meta := adapter.DefaultMetadata
	if wallet.Name != "" {
		meta.Name = wallet.Name
	}
	if wallet.URL != "" {
		meta.URL = wallet.URL
	}
	if wallet.ProviderName != "" {
		meta.ProviderName = wallet.ProviderName
	}
	return meta
}

func execute(ctx context.Context, cfg *config.Config, c *adapter.Connector, client *bridge.Client, verb string, args []string) error {
	switch verb {
	case "status":
		return printJSON(map[string]interface{}{
			"name":       c.Name(),
			"url":        c.URL(),
			"provider":   c.ProviderName(),
			"network":    c.NetworkSelection(),
			"readyState": c.ReadyState(),
		})

	case "connect":
		account, err := c.Connect(ctx)
		if err != nil {
			return err
		}
		return printJSON(account)

	case "disconnect":
		return c.Disconnect(ctx)

	case "account":
		account, err := c.Account(ctx)
		if err != nil {
			return err
		}
		return printJSON(account)

	case "network":
		network, err := c.Network(ctx)
		if err != nil {
			return err
		}
		return printJSON(network)

	case "sign", "submit":
		if len(args) < 1 {
			return fmt.Errorf("usage: connector %s <transaction-json> [options-json]", verb)
		}
		tx := adapter.TransactionPayload(args[0])
		var opts adapter.SignOptions
		if len(args) > 1 {
			opts = adapter.SignOptions(args[1])
		}
		if !json.Valid(tx) || (opts != nil && !json.Valid(opts)) {
			return fmt.Errorf("transaction and options must be JSON")
		}
		if verb == "sign" {
			signed, err := c.SignTransaction(ctx, tx, opts)
			if err != nil {
				return err
			}
			return printJSON(map[string]string{"signed": hex.EncodeToString(signed)})
		}
		resp, err := c.SignAndSubmitTransaction(ctx, tx, opts)
		if err != nil {
			return err
		}
		return printJSON(resp)

	case "sign-message":
		if len(args) < 1 {
			return fmt.Errorf("usage: connector sign-message <message> <nonce>")
		}
		payload := adapter.SignMessagePayload{Address: true, Message: args[0]}
		if len(args) > 1 {
			payload.Nonce = args[1]
		}
		resp, err := c.SignMessage(ctx, payload)
		if err != nil {
			return err
		}
		return printJSON(resp)

	case "watch":
		return watch(ctx, c, client)

	case "serve":
		return serve(ctx, cfg, c)

	default:
		return fmt.Errorf("unknown command %q", verb)
	}
}

// watch connects, then prints account and network changes until interrupted
// or the wallet goes away.
func watch(ctx context.Context, c *adapter.Connector, client *bridge.Client) error {
	account, err := c.Connect(ctx)
	if err != nil {
		return err
	}
	log.Printf("Connected as %s", account.Address)

	if err := c.OnAccountChange(ctx, func(account adapter.AccountInfo, err error) {
		if err != nil {
			log.Printf("Account change: %v", err)
			return
		}
		_ = printJSON(map[string]interface{}{"accountChanged": account})
	}); err != nil {
		return err
	}

	if err := c.OnNetworkChange(ctx, func(network adapter.NetworkInfo) {
		_ = printJSON(map[string]interface{}{"networkChanged": network})
	}); err != nil {
		return err
	}

	var closed <-chan struct{}
	if client != nil {
		closed = client.Done()
	}

	select {
	case <-ctx.Done():
	case <-closed:
		log.Println("Wallet bridge closed")
	}
	return nil
}

// serve runs the HTTP gateway in front of c until ctx is done.
func serve(ctx context.Context, cfg *config.Config, c *adapter.Connector) error {
	verifier, err := auth.NewVerifierFromConfig(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize token verifier: %w", err)
	}

	hub := telemetry.NewHub(cfg.Events)
	server := api.NewServer(c, api.ServerConfigFromConfig(cfg.API, auth.NewMiddleware(verifier), hub))

	if err := server.Watch(ctx); err != nil {
		log.Printf("Wallet events unavailable: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("API listening on http://%s/api/v1", cfg.API.ListenAddr)
		errCh <- server.Start(cfg.API.ListenAddr)
	}()

	select {
	case err := <-errCh:
		hub.Stop()
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down API server...")

	// Ends open event streams so Shutdown does not wait on them
	hub.Stop()
	return server.Stop(context.Background())
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
