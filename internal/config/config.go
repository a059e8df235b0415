package config

import "time"

// DefaultConfigPath is read when WCC_CONFIG is not set. A missing file is not an error.
const DefaultConfigPath = "config/connector.yaml"

// Config is the complete connector configuration.
type Config struct {
	// Network selection passed to the wallet on connect
	Network string `yaml:"network"`

	Wallet WalletConfig `yaml:"wallet"`
	Bridge BridgeConfig `yaml:"bridge"`
	API    APIConfig    `yaml:"api"`
	Auth   AuthConfig   `yaml:"auth"`
	Audit  AuditConfig  `yaml:"audit"`
	Events EventConfig  `yaml:"events"`
}

// WalletConfig overrides the wallet metadata shown to hosts.
type WalletConfig struct {
	Name         string `yaml:"name"`
	URL          string `yaml:"url"`
	ProviderName string `yaml:"providerName"`
}

// BridgeConfig configures the provider bridge on both ends.
type BridgeConfig struct {
	URL               string        `yaml:"url"`    // client dial target
	ListenAddr        string        `yaml:"listen"` // server listen address
	Path              string        `yaml:"path"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
	HeartbeatTimeout  time.Duration `yaml:"heartbeatTimeout"`
	DialTimeout       time.Duration `yaml:"dialTimeout"`
}

// APIConfig configures the host-facing HTTP gateway served by "connector serve".
type APIConfig struct {
	ListenAddr   string        `yaml:"listen"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// AuthConfig configures bridge tokens. An empty Secret and PublicKeyFile disables auth.
type AuthConfig struct {
	Secret        string        `yaml:"secret"`
	PublicKeyFile string        `yaml:"publicKeyFile"`
	Issuer        string        `yaml:"issuer"`
	Subject       string        `yaml:"subject"`
	TokenTTL      time.Duration `yaml:"tokenTTL"`
}

// AuditConfig configures the rotating audit trail. An empty Path disables it.
type AuditConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// EventConfig sizes the event hub.
type EventConfig struct {
	BufferSize     int           `yaml:"bufferSize"`
	QueueSize      int           `yaml:"queueSize"`
	PublishTimeout time.Duration `yaml:"publishTimeout"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Network: "mainnet",
		Bridge: BridgeConfig{
			URL:               "ws://127.0.0.1:8547/wallet",
			ListenAddr:        "127.0.0.1:8547",
			Path:              "/wallet",
			HeartbeatInterval: 15 * time.Second,
			HeartbeatTimeout:  45 * time.Second,
			DialTimeout:       5 * time.Second,
		},
		API: APIConfig{
			ListenAddr:   "127.0.0.1:8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Auth: AuthConfig{
			Issuer:   "wallet-connector",
			Subject:  "connector",
			TokenTTL: time.Hour,
		},
		Audit: AuditConfig{
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Events: EventConfig{
			BufferSize:     50,
			QueueSize:      100,
			PublishTimeout: 100 * time.Millisecond,
		},
	}
}
