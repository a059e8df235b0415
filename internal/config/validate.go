package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/wallet-adapter/connector/internal/adapter"
)

// Validate checks the merged configuration and normalizes the network name.
func Validate(config *Config) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	network := adapter.ParseNetworkName(config.Network)
	if !network.IsValid() {
		return fmt.Errorf("network %q is not one of %v", config.Network, adapter.SupportedNetworks)
	}
	config.Network = network.String()

	if err := validateBridge(&config.Bridge); err != nil {
		return fmt.Errorf("bridge validation failed: %w", err)
	}

	if err := validateAPI(&config.API); err != nil {
		return fmt.Errorf("api validation failed: %w", err)
	}

	if err := validateAuth(&config.Auth); err != nil {
		return fmt.Errorf("auth validation failed: %w", err)
	}

	if err := validateAudit(&config.Audit); err != nil {
		return fmt.Errorf("audit validation failed: %w", err)
	}

	if err := validateEvents(&config.Events); err != nil {
		return fmt.Errorf("event validation failed: %w", err)
	}

	return nil
}

func validateBridge(bridge *BridgeConfig) error {
	if bridge.URL != "" {
		u, err := url.Parse(bridge.URL)
		if err != nil {
			return fmt.Errorf("invalid url %q: %w", bridge.URL, err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("url scheme must be ws or wss, got %q", u.Scheme)
		}
	}

	if !strings.HasPrefix(bridge.Path, "/") {
		return fmt.Errorf("path must start with /, got %q", bridge.Path)
	}

	if bridge.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive, got %v", bridge.HeartbeatInterval)
	}

	// Heartbeat timeout must be ≥ interval
	if bridge.HeartbeatTimeout < bridge.HeartbeatInterval {
		return fmt.Errorf("heartbeat timeout %v must be >= interval %v", bridge.HeartbeatTimeout, bridge.HeartbeatInterval)
	}

	if bridge.DialTimeout < 0 {
		return fmt.Errorf("dial timeout must be non-negative, got %v", bridge.DialTimeout)
	}

	return nil
}

func validateAPI(api *APIConfig) error {
	if api.ListenAddr == "" {
		return fmt.Errorf("listen address is required")
	}
	// Zero disables a timeout, as with http.Server
	if api.ReadTimeout < 0 || api.WriteTimeout < 0 || api.IdleTimeout < 0 {
		return fmt.Errorf("timeouts must be non-negative")
	}
	return nil
}

func validateAuth(auth *AuthConfig) error {
	if auth.Secret != "" && auth.PublicKeyFile != "" {
		return fmt.Errorf("secret and publicKeyFile are mutually exclusive")
	}
	if auth.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive, got %v", auth.TokenTTL)
	}
	return nil
}

func validateAudit(audit *AuditConfig) error {
	if audit.Path == "" {
		return nil
	}
	if audit.MaxSizeMB <= 0 {
		return fmt.Errorf("max size must be positive, got %d", audit.MaxSizeMB)
	}
	if audit.MaxBackups < 0 {
		return fmt.Errorf("max backups must be non-negative, got %d", audit.MaxBackups)
	}
	if audit.MaxAgeDays < 0 {
		return fmt.Errorf("max age must be non-negative, got %d", audit.MaxAgeDays)
	}
	return nil
}

func validateEvents(events *EventConfig) error {
	if events.BufferSize <= 0 {
		return fmt.Errorf("event buffer size must be positive, got %d", events.BufferSize)
	}
	if events.QueueSize <= 0 {
		return fmt.Errorf("event queue size must be positive, got %d", events.QueueSize)
	}
	if events.PublishTimeout <= 0 {
		return fmt.Errorf("publish timeout must be positive, got %v", events.PublishTimeout)
	}
	return nil
}
