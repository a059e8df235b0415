package api

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/wallet-adapter/connector/internal/adapter"
	"github.com/wallet-adapter/connector/internal/telemetry"
)

// Event types on the host stream.
const (
	EventAccountChanged = "accountChanged"
	EventAccountError   = "accountError"
	EventNetworkChanged = "networkChanged"
)

func (s *Server) publishAccount(account adapter.AccountInfo, err error) {
	if err != nil {
		status, response := ToAPIError(err)
		_, pubErr := s.events.PublishJSON(s.stream, EventAccountError, map[string]interface{}{
			"status":  status,
			"code":    response.Code,
			"message": response.Message,
		})
		if pubErr != nil {
			log.Printf("api: failed to publish account error: %v", pubErr)
		}
		return
	}

	if _, pubErr := s.events.PublishJSON(s.stream, EventAccountChanged, account); pubErr != nil {
		log.Printf("api: failed to publish account change: %v", pubErr)
	}
}

func (s *Server) publishNetwork(network adapter.NetworkInfo) {
	if _, err := s.events.PublishJSON(s.stream, EventNetworkChanged, network); err != nil {
		log.Printf("api: failed to publish network change: %v", err)
	}
}

// handleEvents handles GET /events (SSE). Clients resume with Last-Event-ID.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	if s.events == nil {
		WriteError(w, http.StatusServiceUnavailable, CodeUnavailable,
			"Event stream not available", nil)
		return
	}

	lastID, err := parseLastEventID(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, CodeBadRequest, err.Error(), nil)
		return
	}

	ctx := r.Context()
	sub, err := s.events.Subscribe(ctx, s.stream, lastID)
	if err != nil {
		WriteError(w, http.StatusServiceUnavailable, CodeUnavailable,
			"Failed to subscribe to event stream", nil)
		return
	}

	rc := http.NewResponseController(w)
	// The stream outlives the server write timeout
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		log.Printf("api: event stream not flushable: %v", err)
		return
	}

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case event := <-sub.Events():
			if err := writeSSE(w, event); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := io.WriteString(w, ": heartbeat\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeSSE(w io.Writer, event telemetry.Event) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.ID, event.Type, event.Data)
	return err
}

func parseLastEventID(r *http.Request) (int64, error) {
	value := r.Header.Get("Last-Event-ID")
	if value == "" {
		value = r.URL.Query().Get("lastEventId")
	}
	if value == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid Last-Event-ID %q", value)
	}
	return id, nil
}
