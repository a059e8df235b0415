// Package config loads connector configuration.
//
// Values are layered: built-in defaults, then a .env file, then a YAML file
// (WCC_CONFIG, or config/connector.yaml when present), then WCC_* environment
// variables. The merged result is validated before it is returned.
package config
