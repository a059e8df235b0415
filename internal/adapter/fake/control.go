package fake

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/wallet-adapter/connector/internal/adapter"
)

// knownNetworks fills in chain id and API for SwitchNetwork requests by name.
var knownNetworks = map[adapter.NetworkName]adapter.NetworkInfo{
	adapter.NetworkMainnet: {ChainID: "1", API: "https://fullnode.mainnet.aptoslabs.com/v1"},
	adapter.NetworkTestnet: {ChainID: "2", API: "https://fullnode.testnet.aptoslabs.com/v1"},
	adapter.NetworkDevnet:  {API: "https://fullnode.devnet.aptoslabs.com/v1"},
}

// NewControlHandler exposes the event and fault helpers of p over HTTP:
//
//	POST /control/account   body: {"address":..,"publicKey":..}
//	POST /control/lock
//	POST /control/network?name=testnet
//	POST /control/fault?mode=ReturnError   (empty mode clears)
//	GET  /control/state
func NewControlHandler(p *Provider) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /control/account", func(w http.ResponseWriter, r *http.Request) {
		var account adapter.AccountInfo
		if err := json.NewDecoder(r.Body).Decode(&account); err != nil {
			writeControlError(w, http.StatusBadRequest, fmt.Sprintf("invalid account: %v", err))
			return
		}
		if account.Address == "" {
			writeControlError(w, http.StatusBadRequest, "address is required")
			return
		}
		p.SwitchAccount(account)
		writeControlJSON(w, account)
	})

	mux.HandleFunc("POST /control/lock", func(w http.ResponseWriter, r *http.Request) {
		p.Lock()
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /control/network", func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimSpace(r.URL.Query().Get("name"))
		if name == "" {
			writeControlError(w, http.StatusBadRequest, "name is required")
			return
		}
		// The name is passed on as given so clients see the wallet's own spelling
		network := knownNetworks[adapter.ParseNetworkName(name)]
		network.Name = adapter.NetworkName(name)
		p.SwitchNetwork(network)
		writeControlJSON(w, network)
	})

	mux.HandleFunc("POST /control/fault", func(w http.ResponseWriter, r *http.Request) {
		mode := r.URL.Query().Get("mode")
		switch mode {
		case FaultNone, FaultError, FaultEmpty, FaultRejected:
		default:
			writeControlError(w, http.StatusBadRequest, fmt.Sprintf("unknown fault mode %q", mode))
			return
		}
		p.SetFaultMode(mode)
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /control/state", func(w http.ResponseWriter, r *http.Request) {
		accounts, networks := p.SubscriberCounts()
		p.mu.RLock()
		state := map[string]interface{}{
			"account":            p.account,
			"network":            p.network,
			"connected":          p.connected,
			"faultMode":          p.faultMode,
			"accountSubscribers": accounts,
			"networkSubscribers": networks,
		}
		p.mu.RUnlock()
		writeControlJSON(w, state)
	})

	return mux
}

func writeControlJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeControlError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
