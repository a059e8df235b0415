package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/wallet-adapter/connector/internal/adapter"
	"github.com/wallet-adapter/connector/internal/auth"
	"github.com/wallet-adapter/connector/internal/config"
)

func newTestLogger(t *testing.T) (*Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logs", "audit.jsonl")
	logger, err := NewLogger(config.AuditConfig{Path: path, MaxSizeMB: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewLogger() failed: %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })
	return logger, path
}

func readEntries(t *testing.T, path string) []AuditEntry {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = file.Close() }()

	var entries []AuditEntry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("invalid JSON line %q: %v", scanner.Text(), err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestNewLogger(t *testing.T) {
	logger, path := newTestLogger(t)

	if logger.GetFilePath() != path {
		t.Errorf("Expected file path %s, got %s", path, logger.GetFilePath())
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Errorf("Log directory was not created: %v", err)
	}

	if _, err := NewLogger(config.AuditConfig{}); err == nil {
		t.Error("Expected error for empty path")
	}
}

func TestLogActionSuccess(t *testing.T) {
	logger, path := newTestLogger(t)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	logger.now = func() time.Time { return fixed }

	ctx := WithUser(context.Background(), "alice")
	logger.LogAction(ctx, "signAndSubmitTransaction", "testnet", map[string]interface{}{"hash": "0xabc"}, nil)

	entries := readEntries(t, path)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if !entry.Timestamp.Equal(fixed) {
		t.Errorf("Expected timestamp %v, got %v", fixed, entry.Timestamp)
	}
	if entry.User != "alice" || entry.Network != "testnet" || entry.Action != "signAndSubmitTransaction" {
		t.Errorf("Unexpected entry %+v", entry)
	}
	if entry.Outcome != OutcomeSuccess || entry.Code != CodeSuccess {
		t.Errorf("Expected success, got %s/%s", entry.Outcome, entry.Code)
	}
	if entry.Params["hash"] != "0xabc" {
		t.Errorf("Expected hash param, got %v", entry.Params)
	}
}

func TestLogActionFailureCodes(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   string
		wantReason string
	}{
		{
			name:       "connector error",
			err:        adapter.NormalizeProviderError("connect", adapter.ErrConnection, errors.New("User rejected the request")),
			wantCode:   "CONNECTION",
			wantReason: adapter.ReasonUserRejected,
		},
		{
			name:     "wrapped connector error",
			err:      fmt.Errorf("bridge: %w", &adapter.ConnectorError{Op: "network", Code: adapter.ErrNetworkQuery}),
			wantCode: "NETWORK_QUERY",
		},
		{
			name:     "cancelled",
			err:      context.Canceled,
			wantCode: "CANCELLED",
		},
		{
			name:     "plain error",
			err:      errors.New("boom"),
			wantCode: "ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, path := newTestLogger(t)
			logger.LogAction(context.Background(), "connect", "mainnet", nil, tt.err)

			entries := readEntries(t, path)
			if len(entries) != 1 {
				t.Fatalf("Expected 1 entry, got %d", len(entries))
			}
			if entries[0].Outcome != OutcomeFailure {
				t.Errorf("Expected failure outcome, got %s", entries[0].Outcome)
			}
			if entries[0].Code != tt.wantCode {
				t.Errorf("Expected code %s, got %s", tt.wantCode, entries[0].Code)
			}
			if entries[0].Reason != tt.wantReason {
				t.Errorf("Expected reason %q, got %q", tt.wantReason, entries[0].Reason)
			}
		})
	}
}

func TestUserFromContext(t *testing.T) {
	claimsCtx := auth.WithClaims(context.Background(), &auth.Claims{Subject: "dapp-1", Scopes: []string{auth.ScopeConnect}})

	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"no user", context.Background(), "unknown"},
		{"explicit user", WithUser(context.Background(), "alice"), "alice"},
		{"bridge claims", claimsCtx, "dapp-1"},
		{"explicit wins over claims", WithUser(claimsCtx, "alice"), "alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserFromContext(tt.ctx); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRotate(t *testing.T) {
	logger, path := newTestLogger(t)

	logger.LogAction(context.Background(), "connect", "mainnet", nil, nil)
	if err := logger.Rotate(); err != nil {
		t.Fatalf("Rotate() failed: %v", err)
	}
	logger.LogAction(context.Background(), "disconnect", "mainnet", nil, nil)

	entries := readEntries(t, path)
	if len(entries) != 1 || entries[0].Action != "disconnect" {
		t.Errorf("Expected only the post-rotation entry, got %+v", entries)
	}

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), "audit-*.jsonl"))
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	if len(matches) != 1 {
		t.Errorf("Expected 1 backup file, got %v", matches)
	}
}

func TestClose(t *testing.T) {
	logger, path := newTestLogger(t)

	logger.LogAction(context.Background(), "connect", "mainnet", nil, nil)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Second Close() failed: %v", err)
	}

	// Entries after close are dropped
	logger.LogAction(context.Background(), "account", "mainnet", nil, nil)
	if len(readEntries(t, path)) != 1 {
		t.Error("Expected entry written after Close to be discarded")
	}
	if err := logger.Rotate(); err == nil {
		t.Error("Expected Rotate() to fail after Close")
	}
}

func TestConcurrentLogging(t *testing.T) {
	logger, path := newTestLogger(t)

	const goroutines, perGoroutine = 8, 25
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				logger.LogAction(context.Background(), "network", "mainnet", map[string]interface{}{"worker": i}, nil)
			}
		}(i)
	}
	wg.Wait()

	if got := len(readEntries(t, path)); got != goroutines*perGoroutine {
		t.Errorf("Expected %d entries, got %d", goroutines*perGoroutine, got)
	}
}

func TestConnectorWritesAudit(t *testing.T) {
	logger, path := newTestLogger(t)

	c, err := adapter.NewConnector(adapter.Config{Network: adapter.NetworkDevnet}, nil)
	if err != nil {
		t.Fatalf("NewConnector failed: %v", err)
	}
	c.SetAuditLogger(logger)

	_, _ = c.Connect(WithUser(context.Background(), "bob"))

	entries := readEntries(t, path)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.User != "bob" || entry.Network != "devnet" || entry.Action != "connect" {
		t.Errorf("Unexpected entry %+v", entry)
	}
	if entry.Code != "CONNECTION" || entry.Reason != adapter.ReasonNotInstalled {
		t.Errorf("Expected CONNECTION/NOT_INSTALLED, got %s/%s", entry.Code, entry.Reason)
	}
}
