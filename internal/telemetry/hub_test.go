package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wallet-adapter/connector/internal/config"
)

func testConfig() config.EventConfig {
	return config.EventConfig{
		BufferSize:     5,
		QueueSize:      10,
		PublishTimeout: 20 * time.Millisecond,
	}
}

func receive(t *testing.T, sub *Subscriber) Event {
	t.Helper()
	select {
	case event := <-sub.Events():
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub(testConfig())
	defer hub.Stop()

	if hub.subscribers == nil || hub.streamIDs == nil || hub.buffers == nil {
		t.Fatal("Hub maps not initialized")
	}
	if hub.SubscriberCount() != 0 {
		t.Errorf("Expected no subscribers, got %d", hub.SubscriberCount())
	}
}

func TestHubPublishAssignsMonotonicIDsPerStream(t *testing.T) {
	hub := NewHub(testConfig())
	defer hub.Stop()

	for i := int64(1); i <= 3; i++ {
		event, err := hub.Publish(Event{Type: "accountChanged", Stream: "wallet"})
		if err != nil {
			t.Fatalf("Publish() failed: %v", err)
		}
		if event.ID != i {
			t.Errorf("Expected ID %d, got %d", i, event.ID)
		}
	}

	other, err := hub.Publish(Event{Type: "networkChanged", Stream: "other"})
	if err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}
	if other.ID != 1 {
		t.Errorf("Expected independent sequence starting at 1, got %d", other.ID)
	}

	unnamed, err := hub.Publish(Event{Type: "ping"})
	if err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}
	if unnamed.Stream != DefaultStream {
		t.Errorf("Expected stream %q, got %q", DefaultStream, unnamed.Stream)
	}
}

func TestHubDeliversToStreamSubscribers(t *testing.T) {
	hub := NewHub(testConfig())
	defer hub.Stop()

	ctx := context.Background()
	wallet, err := hub.Subscribe(ctx, "wallet", 0)
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	other, err := hub.Subscribe(ctx, "other", 0)
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}

	if _, err := hub.PublishJSON("wallet", "networkChanged", map[string]string{"name": "testnet"}); err != nil {
		t.Fatalf("PublishJSON() failed: %v", err)
	}

	event := receive(t, wallet)
	if event.Type != "networkChanged" {
		t.Errorf("Expected networkChanged, got %s", event.Type)
	}
	var data map[string]string
	if err := json.Unmarshal(event.Data, &data); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if data["name"] != "testnet" {
		t.Errorf("Expected name testnet, got %v", data)
	}

	select {
	case event := <-other.Events():
		t.Errorf("Subscriber on another stream received %+v", event)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHubReplayAfterLastID(t *testing.T) {
	hub := NewHub(testConfig())
	defer hub.Stop()

	for i := 0; i < 4; i++ {
		if _, err := hub.Publish(Event{Type: "accountChanged", Stream: "wallet"}); err != nil {
			t.Fatalf("Publish() failed: %v", err)
		}
	}

	sub, err := hub.Subscribe(context.Background(), "wallet", 2)
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}

	for _, want := range []int64{3, 4} {
		if got := receive(t, sub).ID; got != want {
			t.Errorf("Expected replayed ID %d, got %d", want, got)
		}
	}
}

func TestHubResumeDuringPublishIsGapless(t *testing.T) {
	hub := NewHub(config.EventConfig{BufferSize: 1000, QueueSize: 1000, PublishTimeout: time.Second})
	defer hub.Stop()

	const total = 500
	started := make(chan struct{})
	go func() {
		for i := 1; i <= total; i++ {
			if i == 50 {
				close(started)
			}
			if _, err := hub.PublishJSON("wallet", "tick", i); err != nil {
				return
			}
		}
	}()

	<-started
	sub, err := hub.Subscribe(context.Background(), "wallet", 10)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// Every ID after the resume point arrives exactly once, in order
	for want := int64(11); want <= total; want++ {
		if event := receive(t, sub); event.ID != want {
			t.Fatalf("Expected event %d, got %d", want, event.ID)
		}
	}
}

func TestHubReplayLimitedByBuffer(t *testing.T) {
	hub := NewHub(testConfig())
	defer hub.Stop()

	for i := 0; i < 8; i++ {
		if _, err := hub.Publish(Event{Type: "accountChanged", Stream: "wallet"}); err != nil {
			t.Fatalf("Publish() failed: %v", err)
		}
	}

	sub, err := hub.Subscribe(context.Background(), "wallet", 1)
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}

	// Buffer holds the last 5 events: IDs 4..8
	first := receive(t, sub)
	if first.ID != 4 {
		t.Errorf("Expected oldest buffered ID 4, got %d", first.ID)
	}
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	cfg := testConfig()
	cfg.QueueSize = 1
	hub := NewHub(cfg)
	defer hub.Stop()

	sub, err := hub.Subscribe(context.Background(), "wallet", 0)
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := hub.Publish(Event{Type: "accountChanged", Stream: "wallet"}); err != nil {
			t.Fatalf("Publish() failed: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Publish blocked on slow subscriber for %v", elapsed)
	}

	if sub.Dropped() != 2 {
		t.Errorf("Expected 2 dropped events, got %d", sub.Dropped())
	}
	if got := receive(t, sub).ID; got != 1 {
		t.Errorf("Expected queued ID 1, got %d", got)
	}
}

func TestHubContextCancelUnsubscribes(t *testing.T) {
	hub := NewHub(testConfig())
	defer hub.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := hub.Subscribe(ctx, "wallet", 0)
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}

	cancel()

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("Subscription not ended after context cancel")
	}
	if hub.SubscriberCount() != 0 {
		t.Errorf("Expected no subscribers, got %d", hub.SubscriberCount())
	}
}

func TestHubUnsubscribeTwice(t *testing.T) {
	hub := NewHub(testConfig())
	defer hub.Stop()

	sub, err := hub.Subscribe(context.Background(), "wallet", 0)
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}

	hub.Unsubscribe(sub.ID)
	hub.Unsubscribe(sub.ID)

	select {
	case <-sub.Done():
	default:
		t.Error("Expected Done to be closed")
	}
}

func TestHubStop(t *testing.T) {
	hub := NewHub(testConfig())

	sub, err := hub.Subscribe(context.Background(), "wallet", 0)
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}

	hub.Stop()
	hub.Stop()

	select {
	case <-sub.Done():
	default:
		t.Error("Expected subscription to end on Stop")
	}

	if _, err := hub.Publish(Event{Type: "accountChanged"}); !errors.Is(err, ErrHubStopped) {
		t.Errorf("Expected ErrHubStopped from Publish, got %v", err)
	}
	if _, err := hub.Subscribe(context.Background(), "wallet", 0); !errors.Is(err, ErrHubStopped) {
		t.Errorf("Expected ErrHubStopped from Subscribe, got %v", err)
	}
}

func TestHubConcurrentPublish(t *testing.T) {
	cfg := testConfig()
	cfg.QueueSize = 1000
	hub := NewHub(cfg)
	defer hub.Stop()

	sub, err := hub.Subscribe(context.Background(), "wallet", 0)
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}

	const publishers, perPublisher = 10, 20
	var wg sync.WaitGroup
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perPublisher; j++ {
				_, _ = hub.Publish(Event{Type: "accountChanged", Stream: "wallet"})
			}
		}()
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for i := 0; i < publishers*perPublisher; i++ {
		event := receive(t, sub)
		if seen[event.ID] {
			t.Fatalf("Duplicate event ID %d", event.ID)
		}
		seen[event.ID] = true
	}
}

func TestEventBuffer(t *testing.T) {
	buffer := NewEventBuffer(3)

	for i := int64(1); i <= 5; i++ {
		buffer.AddEvent(Event{ID: i, Type: "test"})
	}

	if buffer.GetCapacity() != 3 {
		t.Errorf("Expected capacity 3, got %d", buffer.GetCapacity())
	}
	if buffer.GetSize() != 3 {
		t.Errorf("Expected size 3, got %d", buffer.GetSize())
	}

	events := buffer.GetEventsAfter(3)
	if len(events) != 2 || events[0].ID != 4 || events[1].ID != 5 {
		t.Errorf("Expected IDs 4 and 5, got %+v", events)
	}
	if got := buffer.GetEventsAfter(5); len(got) != 0 {
		t.Errorf("Expected no events after 5, got %+v", got)
	}
}
