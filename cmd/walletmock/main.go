// Package main runs a mock wallet: an in-memory provider behind the bridge,
// with control endpoints that trigger wallet-side events.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wallet-adapter/connector/internal/adapter/fake"
	"github.com/wallet-adapter/connector/internal/auth"
	"github.com/wallet-adapter/connector/internal/bridge"
	"github.com/wallet-adapter/connector/internal/config"
	"github.com/wallet-adapter/connector/internal/telemetry"
)

func main() {
	log.Println("Starting mock wallet...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	verifier, err := auth.NewVerifierFromConfig(cfg.Auth)
	if err != nil {
		log.Fatalf("Failed to initialize token verifier: %v", err)
	}
	if verifier == nil {
		log.Println("Auth disabled: no secret or public key configured")
	}

	wallet := fake.NewDefaultProvider()

	hub := telemetry.NewHub(cfg.Events)
	bridgeServer := bridge.NewServer(wallet, bridge.ServerConfig{
		Verifier:          verifier,
		Hub:               hub,
		HeartbeatInterval: cfg.Bridge.HeartbeatInterval,
		HeartbeatTimeout:  cfg.Bridge.HeartbeatTimeout,
	})

	control := auth.NewMiddleware(verifier).RequireScope(fake.NewControlHandler(wallet), auth.ScopeControl)

	mux := http.NewServeMux()
	mux.Handle(cfg.Bridge.Path, bridgeServer)
	mux.Handle("/control/", control)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	httpServer := &http.Server{
		Addr:              cfg.Bridge.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Bridge listening on ws://%s%s", cfg.Bridge.ListenAddr, cfg.Bridge.Path)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down mock wallet...")

	// Hijacked bridge connections are not tracked by Shutdown
	if err := bridgeServer.Close(); err != nil {
		log.Printf("Bridge shutdown error: %v", err)
	}
	hub.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Mock wallet stopped")
}
