// Package adaptertest provides provider-agnostic conformance testing for wallet providers.
//
// Every check drives an adapter.Connector over a fresh provider, so a provider
// passes when the connector built on it honors the host-facing contract.
package adaptertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/wallet-adapter/connector/internal/adapter"
)

// Controller drives wallet-side behavior the connector cannot trigger itself.
type Controller interface {
	SwitchAccount(account adapter.AccountInfo)
	Lock()
	SwitchNetwork(network adapter.NetworkInfo)
	SetFaultMode(mode string)
	ClearFaultMode()
}

// Capabilities defines what the provider under test is expected to do.
type Capabilities struct {
	// Network is the selection the connector is built with
	Network adapter.NetworkName

	// ExpectedNetwork is the normalized name Network() must report
	ExpectedNetwork adapter.NetworkName

	// Controller returns the controller of the most recently created provider.
	// Nil skips the event and failure-mapping checks.
	Controller func() Controller

	// Fault modes understood by the controller
	Faults FaultModes

	// EventTimeout bounds the wait for asynchronous event delivery
	EventTimeout time.Duration
}

// FaultModes names the controller fault modes for each failure shape.
type FaultModes struct {
	Error    string
	Empty    string
	Rejected string
}

// ConformanceResult represents the result of a conformance test.
type ConformanceResult struct {
	TestName string
	Passed   bool
	Error    string
	Duration time.Duration
	Details  map[string]interface{}
}

// ConformanceReport represents the complete conformance test report.
type ConformanceReport struct {
	ProviderName  string
	TotalTests    int
	PassedTests   int
	FailedTests   int
	Results       []ConformanceResult
	OverallPassed bool
	Duration      time.Duration
}

// RunConformance runs the complete conformance test suite for a provider.
func RunConformance(t *testing.T, newProvider func() adapter.Provider, caps Capabilities) {
	startTime := time.Now()

	if caps.EventTimeout == 0 {
		caps.EventTimeout = 2 * time.Second
	}

	report := &ConformanceReport{
		ProviderName:  fmt.Sprintf("%T", newProvider()),
		Results:       []ConformanceResult{},
		OverallPassed: true,
	}

	runConnectTests(t, newProvider, caps, report)
	runNetworkTests(t, newProvider, caps, report)
	runSignTests(t, newProvider, caps, report)
	runDisconnectTests(t, newProvider, caps, report)
	if caps.Controller != nil {
		runFailureMappingTests(t, newProvider, caps, report)
		runEventTests(t, newProvider, caps, report)
	}

	report.Duration = time.Since(startTime)

	printConformanceReport(t, report)

	if !report.OverallPassed {
		t.Fatalf("Provider conformance test failed: %d/%d tests passed", report.PassedTests, report.TotalTests)
	}
}

func newConnector(newProvider func() adapter.Provider, caps Capabilities) (*adapter.Connector, error) {
	return adapter.NewConnector(adapter.Config{Network: caps.Network}, adapter.StaticProvider(newProvider()))
}

// check runs fn and records the outcome under name.
func check(report *ConformanceReport, name string, fn func(details map[string]interface{}) error) {
	result := ConformanceResult{
		TestName: name,
		Details:  make(map[string]interface{}),
	}
	start := time.Now()

	err := fn(result.Details)
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err.Error()
	} else {
		result.Passed = true
	}

	report.addResult(result)
}

// runConnectTests tests Connect and Account.
func runConnectTests(t *testing.T, newProvider func() adapter.Provider, caps Capabilities, report *ConformanceReport) {
	ctx := context.Background()

	check(report, "Connect_Basic", func(details map[string]interface{}) error {
		c, err := newConnector(newProvider, caps)
		if err != nil {
			return err
		}
		account, err := c.Connect(ctx)
		if err != nil {
			return fmt.Errorf("Connect failed: %v", err)
		}
		if account.Address == "" || account.PublicKey == "" {
			return fmt.Errorf("Connect returned incomplete account %+v", account)
		}
		details["address"] = account.Address
		return nil
	})

	check(report, "Account_AfterConnect", func(details map[string]interface{}) error {
		c, err := newConnector(newProvider, caps)
		if err != nil {
			return err
		}
		connected, err := c.Connect(ctx)
		if err != nil {
			return fmt.Errorf("Connect failed: %v", err)
		}
		account, err := c.Account(ctx)
		if err != nil {
			return fmt.Errorf("Account failed: %v", err)
		}
		if *account != *connected {
			return fmt.Errorf("Account %+v differs from connected %+v", account, connected)
		}
		return nil
	})
}

// runNetworkTests tests normalization and idempotency of Network.
func runNetworkTests(t *testing.T, newProvider func() adapter.Provider, caps Capabilities, report *ConformanceReport) {
	ctx := context.Background()

	check(report, "Network_Normalized", func(details map[string]interface{}) error {
		c, err := newConnector(newProvider, caps)
		if err != nil {
			return err
		}
		network, err := c.Network(ctx)
		if err != nil {
			return fmt.Errorf("Network failed: %v", err)
		}
		if network.Name != caps.ExpectedNetwork {
			return fmt.Errorf("expected network %q, got %q", caps.ExpectedNetwork, network.Name)
		}
		if strings.ToLower(string(network.Name)) != string(network.Name) {
			return fmt.Errorf("network name %q is not lowercase", network.Name)
		}
		details["name"] = network.Name
		return nil
	})

	check(report, "Network_Idempotent", func(details map[string]interface{}) error {
		c, err := newConnector(newProvider, caps)
		if err != nil {
			return err
		}
		first, err := c.Network(ctx)
		if err != nil {
			return fmt.Errorf("first Network failed: %v", err)
		}
		second, err := c.Network(ctx)
		if err != nil {
			return fmt.Errorf("second Network failed: %v", err)
		}
		if *first != *second {
			return fmt.Errorf("Network not idempotent: %+v vs %+v", first, second)
		}
		return nil
	})
}

// runSignTests tests the three signing flows after a connect.
func runSignTests(t *testing.T, newProvider func() adapter.Provider, caps Capabilities, report *ConformanceReport) {
	ctx := context.Background()
	tx := adapter.TransactionPayload(`{"type":"entry_function_payload","function":"0x1::coin::transfer","arguments":["0xb0b","1000"]}`)

	check(report, "SignTransaction_Connected", func(details map[string]interface{}) error {
		c, err := newConnector(newProvider, caps)
		if err != nil {
			return err
		}
		if _, err := c.Connect(ctx); err != nil {
			return fmt.Errorf("Connect failed: %v", err)
		}
		sig, err := c.SignTransaction(ctx, tx, nil)
		if err != nil {
			return fmt.Errorf("SignTransaction failed: %v", err)
		}
		details["signatureBytes"] = len(sig)
		return nil
	})

	check(report, "SignAndSubmit_Connected", func(details map[string]interface{}) error {
		c, err := newConnector(newProvider, caps)
		if err != nil {
			return err
		}
		if _, err := c.Connect(ctx); err != nil {
			return fmt.Errorf("Connect failed: %v", err)
		}
		resp, err := c.SignAndSubmitTransaction(ctx, tx, nil)
		if err != nil {
			return fmt.Errorf("SignAndSubmitTransaction failed: %v", err)
		}
		if resp.Hash == "" {
			return fmt.Errorf("empty transaction hash")
		}
		details["hash"] = resp.Hash
		return nil
	})

	check(report, "SignMessage_Valid", func(details map[string]interface{}) error {
		c, err := newConnector(newProvider, caps)
		if err != nil {
			return err
		}
		if _, err := c.Connect(ctx); err != nil {
			return fmt.Errorf("Connect failed: %v", err)
		}
		resp, err := c.SignMessage(ctx, adapter.SignMessagePayload{Message: "conformance", Nonce: "7"})
		if err != nil {
			return fmt.Errorf("SignMessage failed: %v", err)
		}
		if resp.Signature == "" {
			return fmt.Errorf("empty signature")
		}
		return nil
	})

	check(report, "SignMessage_MissingNonce", func(details map[string]interface{}) error {
		c, err := newConnector(newProvider, caps)
		if err != nil {
			return err
		}
		_, err = c.SignMessage(ctx, adapter.SignMessagePayload{Message: "conformance"})
		if !errors.Is(err, adapter.ErrInvalidPayload) {
			return fmt.Errorf("expected ErrInvalidPayload, got %v", err)
		}
		return nil
	})
}

// runDisconnectTests tests that Disconnect ends the session.
func runDisconnectTests(t *testing.T, newProvider func() adapter.Provider, caps Capabilities, report *ConformanceReport) {
	ctx := context.Background()

	check(report, "Disconnect_AfterConnect", func(details map[string]interface{}) error {
		c, err := newConnector(newProvider, caps)
		if err != nil {
			return err
		}
		if _, err := c.Connect(ctx); err != nil {
			return fmt.Errorf("Connect failed: %v", err)
		}
		if err := c.Disconnect(ctx); err != nil {
			return fmt.Errorf("Disconnect failed: %v", err)
		}
		if _, err := c.Account(ctx); !errors.Is(err, adapter.ErrNoAccount) {
			return fmt.Errorf("expected ErrNoAccount after disconnect, got %v", err)
		}
		return nil
	})
}

// runFailureMappingTests tests that provider faults surface with the right codes.
func runFailureMappingTests(t *testing.T, newProvider func() adapter.Provider, caps Capabilities, report *ConformanceReport) {
	ctx := context.Background()

	faults := []struct {
		name string
		mode string
		call func(c *adapter.Connector) error
		code error
	}{
		{"Empty_Connect", caps.Faults.Empty, func(c *adapter.Connector) error { _, err := c.Connect(ctx); return err }, adapter.ErrConnection},
		{"Empty_Account", caps.Faults.Empty, func(c *adapter.Connector) error { _, err := c.Account(ctx); return err }, adapter.ErrNoAccount},
		{"Empty_Network", caps.Faults.Empty, func(c *adapter.Connector) error { _, err := c.Network(ctx); return err }, adapter.ErrNetworkQuery},
		{"Empty_SignTransaction", caps.Faults.Empty, func(c *adapter.Connector) error { _, err := c.SignTransaction(ctx, nil, nil); return err }, adapter.ErrEmptyResponse},
		{"Empty_SignMessage", caps.Faults.Empty, func(c *adapter.Connector) error {
			_, err := c.SignMessage(ctx, adapter.SignMessagePayload{Message: "m", Nonce: "1"})
			return err
		}, adapter.ErrSignMessage},
		{"Error_Connect", caps.Faults.Error, func(c *adapter.Connector) error { _, err := c.Connect(ctx); return err }, adapter.ErrConnection},
		{"Error_Disconnect", caps.Faults.Error, func(c *adapter.Connector) error { return c.Disconnect(ctx) }, adapter.ErrDisconnect},
		{"Error_Subscribe", caps.Faults.Error, func(c *adapter.Connector) error {
			return c.OnNetworkChange(ctx, func(adapter.NetworkInfo) {})
		}, adapter.ErrEventSubscription},
		{"Rejected_Submit", caps.Faults.Rejected, func(c *adapter.Connector) error {
			_, err := c.SignAndSubmitTransaction(ctx, adapter.TransactionPayload(`{}`), nil)
			return err
		}, adapter.ErrRejected},
		{"Rejected_SignTransaction", caps.Faults.Rejected, func(c *adapter.Connector) error {
			_, err := c.SignTransaction(ctx, adapter.TransactionPayload(`{}`), nil)
			return err
		}, adapter.ErrRejected},
	}

	for _, fault := range faults {
		if fault.mode == "" {
			continue
		}
		fault := fault
		check(report, "Failure_"+fault.name, func(details map[string]interface{}) error {
			c, err := newConnector(newProvider, caps)
			if err != nil {
				return err
			}
			ctrl := caps.Controller()
			ctrl.SetFaultMode(fault.mode)
			defer ctrl.ClearFaultMode()

			err = fault.call(c)
			if err == nil {
				return fmt.Errorf("expected %v, got success", fault.code)
			}
			if !errors.Is(err, fault.code) {
				return fmt.Errorf("expected %v, got %v", fault.code, err)
			}
			details["code"] = adapter.CodeOf(err)
			return nil
		})
	}
}

// runEventTests tests account and network change normalization.
func runEventTests(t *testing.T, newProvider func() adapter.Provider, caps Capabilities, report *ConformanceReport) {
	ctx := context.Background()

	check(report, "Event_AccountSwitch", func(details map[string]interface{}) error {
		c, err := newConnector(newProvider, caps)
		if err != nil {
			return err
		}
		ctrl := caps.Controller()

		received := make(chan adapter.AccountInfo, 4)
		if err := c.OnAccountChange(ctx, func(account adapter.AccountInfo, err error) {
			if err == nil {
				received <- account
			}
		}); err != nil {
			return fmt.Errorf("OnAccountChange failed: %v", err)
		}

		next := adapter.AccountInfo{Address: "0xc0ffee", PublicKey: "0xc0ffeepub"}
		ctrl.SwitchAccount(next)

		select {
		case got := <-received:
			if got != next {
				return fmt.Errorf("expected %+v, got %+v", next, got)
			}
		case <-time.After(caps.EventTimeout):
			return fmt.Errorf("account change not delivered within %v", caps.EventTimeout)
		}
		return nil
	})

	check(report, "Event_LockReconnects", func(details map[string]interface{}) error {
		c, err := newConnector(newProvider, caps)
		if err != nil {
			return err
		}
		ctrl := caps.Controller()

		received := make(chan adapter.AccountInfo, 4)
		failures := make(chan error, 4)
		if err := c.OnAccountChange(ctx, func(account adapter.AccountInfo, err error) {
			if err != nil {
				failures <- err
				return
			}
			received <- account
		}); err != nil {
			return fmt.Errorf("OnAccountChange failed: %v", err)
		}

		ctrl.Lock()

		select {
		case got := <-received:
			if got.PublicKey == "" {
				return fmt.Errorf("reconnect delivered account without public key: %+v", got)
			}
			details["address"] = got.Address
		case err := <-failures:
			return fmt.Errorf("reconnect failed: %v", err)
		case <-time.After(caps.EventTimeout):
			return fmt.Errorf("lock event not delivered within %v", caps.EventTimeout)
		}
		return nil
	})

	check(report, "Event_NetworkSwitch", func(details map[string]interface{}) error {
		c, err := newConnector(newProvider, caps)
		if err != nil {
			return err
		}
		ctrl := caps.Controller()

		received := make(chan adapter.NetworkInfo, 4)
		if err := c.OnNetworkChange(ctx, func(network adapter.NetworkInfo) {
			received <- network
		}); err != nil {
			return fmt.Errorf("OnNetworkChange failed: %v", err)
		}

		ctrl.SwitchNetwork(adapter.NetworkInfo{Name: "Testnet"})

		select {
		case got := <-received:
			want := adapter.NetworkInfo{Name: adapter.NetworkTestnet}
			if got != want {
				return fmt.Errorf("expected %+v, got %+v", want, got)
			}
		case <-time.After(caps.EventTimeout):
			return fmt.Errorf("network change not delivered within %v", caps.EventTimeout)
		}
		return nil
	})
}

// addResult adds a test result to the conformance report.
func (r *ConformanceReport) addResult(result ConformanceResult) {
	r.TotalTests++
	if result.Passed {
		r.PassedTests++
	} else {
		r.FailedTests++
		r.OverallPassed = false
	}
	r.Results = append(r.Results, result)
}

// printConformanceReport prints a formatted conformance report.
func printConformanceReport(t *testing.T, report *ConformanceReport) {
	t.Logf("\n%s", strings.Repeat("=", 80))
	t.Logf("PROVIDER CONFORMANCE REPORT")
	t.Logf("%s", strings.Repeat("=", 80))
	t.Logf("Provider: %s", report.ProviderName)
	t.Logf("Total Tests: %d", report.TotalTests)
	t.Logf("Passed: %d", report.PassedTests)
	t.Logf("Failed: %d", report.FailedTests)
	t.Logf("Overall: %s", map[bool]string{true: "PASS", false: "FAIL"}[report.OverallPassed])
	t.Logf("Duration: %v", report.Duration)
	t.Logf("%s", strings.Repeat("-", 80))

	t.Logf("%-30s %-8s %-12s %-s", "TEST NAME", "RESULT", "DURATION", "DETAILS")
	t.Logf("%s", strings.Repeat("-", 80))

	for _, result := range report.Results {
		status := "PASS"
		if !result.Passed {
			status = "FAIL"
		}

		details := ""
		if result.Error != "" {
			details = result.Error
		} else if len(result.Details) > 0 {
			var detailParts []string
			for k, v := range result.Details {
				detailParts = append(detailParts, fmt.Sprintf("%s=%v", k, v))
			}
			details = strings.Join(detailParts, ", ")
		}

		t.Logf("%-30s %-8s %-12s %-s",
			result.TestName,
			status,
			result.Duration.String(),
			details)
	}

	t.Logf("%s", strings.Repeat("=", 80))
}
