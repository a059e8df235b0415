package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Load builds the configuration from defaults, .env, the YAML file and WCC_* variables.
func Load() (*Config, error) {
	// .env never overrides variables already set in the environment
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	config := Defaults()

	path := os.Getenv("WCC_CONFIG")
	required := path != ""
	if !required {
		path = DefaultConfigPath
	}

	found, err := loadFromFile(config, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	if required && !found {
		return nil, fmt.Errorf("config file %s not found", path)
	}

	applyEnvOverrides(config)

	if err := Validate(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// LoadFile builds the configuration from defaults and the YAML file at path only.
func LoadFile(path string) (*Config, error) {
	config := Defaults()
	found, err := loadFromFile(config, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	if !found {
		return nil, fmt.Errorf("config file %s not found", path)
	}
	if err := Validate(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// loadFromFile decodes the YAML file at path over config. Keys absent from
// the file keep their current values. Reports false when the file does not exist.
func loadFromFile(config *Config, path string) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := yaml.UnmarshalStrict(data, config); err != nil {
		return true, err
	}
	return true, nil
}

// applyEnvOverrides applies WCC_* environment variables to the config.
// Unparseable values are ignored.
func applyEnvOverrides(config *Config) {
	config.Network = GetEnvVar("WCC_NETWORK", config.Network)

	config.Wallet.Name = GetEnvVar("WCC_WALLET_NAME", config.Wallet.Name)
	config.Wallet.URL = GetEnvVar("WCC_WALLET_URL", config.Wallet.URL)
	config.Wallet.ProviderName = GetEnvVar("WCC_WALLET_PROVIDER_NAME", config.Wallet.ProviderName)

	config.Bridge.URL = GetEnvVar("WCC_BRIDGE_URL", config.Bridge.URL)
	config.Bridge.ListenAddr = GetEnvVar("WCC_BRIDGE_LISTEN", config.Bridge.ListenAddr)
	config.Bridge.Path = GetEnvVar("WCC_BRIDGE_PATH", config.Bridge.Path)
	config.Bridge.HeartbeatInterval = GetEnvDuration("WCC_BRIDGE_HEARTBEAT_INTERVAL", config.Bridge.HeartbeatInterval)
	config.Bridge.HeartbeatTimeout = GetEnvDuration("WCC_BRIDGE_HEARTBEAT_TIMEOUT", config.Bridge.HeartbeatTimeout)
	config.Bridge.DialTimeout = GetEnvDuration("WCC_BRIDGE_DIAL_TIMEOUT", config.Bridge.DialTimeout)

	config.API.ListenAddr = GetEnvVar("WCC_API_LISTEN", config.API.ListenAddr)
	config.API.ReadTimeout = GetEnvDuration("WCC_API_READ_TIMEOUT", config.API.ReadTimeout)
	config.API.WriteTimeout = GetEnvDuration("WCC_API_WRITE_TIMEOUT", config.API.WriteTimeout)
	config.API.IdleTimeout = GetEnvDuration("WCC_API_IDLE_TIMEOUT", config.API.IdleTimeout)

	config.Auth.Secret = GetEnvVar("WCC_AUTH_SECRET", config.Auth.Secret)
	config.Auth.PublicKeyFile = GetEnvVar("WCC_AUTH_PUBLIC_KEY_FILE", config.Auth.PublicKeyFile)
	config.Auth.Issuer = GetEnvVar("WCC_AUTH_ISSUER", config.Auth.Issuer)
	config.Auth.Subject = GetEnvVar("WCC_AUTH_SUBJECT", config.Auth.Subject)
	config.Auth.TokenTTL = GetEnvDuration("WCC_AUTH_TOKEN_TTL", config.Auth.TokenTTL)

	config.Audit.Path = GetEnvVar("WCC_AUDIT_PATH", config.Audit.Path)
	config.Audit.MaxSizeMB = GetEnvInt("WCC_AUDIT_MAX_SIZE_MB", config.Audit.MaxSizeMB)
	config.Audit.MaxBackups = GetEnvInt("WCC_AUDIT_MAX_BACKUPS", config.Audit.MaxBackups)
	config.Audit.MaxAgeDays = GetEnvInt("WCC_AUDIT_MAX_AGE_DAYS", config.Audit.MaxAgeDays)
	config.Audit.Compress = GetEnvBool("WCC_AUDIT_COMPRESS", config.Audit.Compress)

	config.Events.BufferSize = GetEnvInt("WCC_EVENTS_BUFFER_SIZE", config.Events.BufferSize)
	config.Events.QueueSize = GetEnvInt("WCC_EVENTS_QUEUE_SIZE", config.Events.QueueSize)
	config.Events.PublishTimeout = GetEnvDuration("WCC_EVENTS_PUBLISH_TIMEOUT", config.Events.PublishTimeout)
}

// GetEnvVar returns the value of an environment variable with a default.
func GetEnvVar(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvDuration returns the value of an environment variable as a duration with a default.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GetEnvInt returns the value of an environment variable as an int with a default.
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// GetEnvBool returns the value of an environment variable as a bool with a default.
func GetEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
