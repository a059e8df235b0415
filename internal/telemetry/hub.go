package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wallet-adapter/connector/internal/config"
)

// ErrHubStopped is returned by Publish and Subscribe after Stop.
var ErrHubStopped = errors.New("telemetry hub stopped")

// DefaultStream is used for events published without a stream.
const DefaultStream = "global"

// Event is a single wallet event.
type Event struct {
	ID     int64           `json:"id,omitempty"`
	Type   string          `json:"type"`
	Stream string          `json:"stream,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Subscriber receives the events of one stream.
type Subscriber struct {
	ID     string
	Stream string
	LastID int64

	events  chan Event
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
}

// Events returns the delivery channel. It is never closed; select on Done.
func (s *Subscriber) Events() <-chan Event {
	return s.events
}

// Done is closed when the subscription ends.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Dropped returns the number of events this subscriber missed for being slow.
func (s *Subscriber) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Subscriber) close() {
	s.once.Do(func() {
		close(s.done)
	})
}

// Hub distributes events with per-stream buffering.
//
// h.mu protects subscribers, streamIDs and buffers. EventBuffer has its own
// mutex. Subscriber.once guards the done channel.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	streamIDs   map[string]*int64 // Monotonic event IDs per stream (atomic counters)

	// Per-stream event buffers
	buffers map[string]*EventBuffer

	config config.EventConfig
	nextID atomic.Int64 // subscriber IDs

	done     chan struct{}
	stopOnce sync.Once
}

// NewHub creates a new hub with the specified configuration.
func NewHub(cfg config.EventConfig) *Hub {
	return &Hub{
		subscribers: make(map[string]*Subscriber),
		streamIDs:   make(map[string]*int64),
		buffers:     make(map[string]*EventBuffer),
		config:      cfg,
		done:        make(chan struct{}),
	}
}

// Subscribe registers a subscriber on stream. Buffered events with an ID
// greater than lastID are queued first. The subscription ends when ctx is
// done, on Unsubscribe, or on Stop.
func (h *Hub) Subscribe(ctx context.Context, stream string, lastID int64) (*Subscriber, error) {
	if stream == "" {
		stream = DefaultStream
	}

	sub := &Subscriber{
		ID:     fmt.Sprintf("sub_%d", h.nextID.Add(1)),
		Stream: stream,
		LastID: lastID,
		done:   make(chan struct{}),
	}

	// Replay and registration share one critical section with Publish, so
	// every event is either replayed or delivered, never both or neither.
	h.mu.Lock()
	select {
	case <-h.done:
		h.mu.Unlock()
		return nil, ErrHubStopped
	default:
	}

	var replay []Event
	if buffer, exists := h.buffers[stream]; exists && lastID > 0 {
		replay = buffer.GetEventsAfter(lastID)
	}

	queue := h.config.QueueSize
	if len(replay) > queue {
		queue = len(replay)
	}
	sub.events = make(chan Event, queue)
	for _, event := range replay {
		sub.events <- event
	}

	h.subscribers[sub.ID] = sub
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			h.Unsubscribe(sub.ID)
		case <-sub.done:
		}
	}()

	return sub, nil
}

// Unsubscribe ends a subscription.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, exists := h.subscribers[id]
	delete(h.subscribers, id)
	h.mu.Unlock()

	if exists {
		sub.close()
	}
}

// Publish assigns the event an ID when it has none, buffers it and delivers
// it to every subscriber of its stream. It returns the event as published.
func (h *Hub) Publish(event Event) (Event, error) {
	select {
	case <-h.done:
		return event, ErrHubStopped
	default:
	}

	if event.Stream == "" {
		event.Stream = DefaultStream
	}
	if event.ID == 0 {
		event.ID = h.getNextEventID(event.Stream)
	}

	h.mu.Lock()
	h.bufferLocked(event)
	subscribers := make([]*Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		if sub.Stream == event.Stream {
			subscribers = append(subscribers, sub)
		}
	}
	h.mu.Unlock()

	// Send without holding the lock
	for _, sub := range subscribers {
		h.deliver(sub, event)
	}

	return event, nil
}

// PublishJSON marshals data and publishes it as an event of type eventType on stream.
func (h *Hub) PublishJSON(stream, eventType string, data interface{}) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal event data: %w", err)
	}
	return h.Publish(Event{Type: eventType, Stream: stream, Data: raw})
}

// deliver hands event to sub, dropping it when sub stays full past the publish timeout.
func (h *Hub) deliver(sub *Subscriber, event Event) {
	select {
	case sub.events <- event:
		return
	default:
	}

	timer := time.NewTimer(h.config.PublishTimeout)
	defer timer.Stop()

	select {
	case <-sub.done:
	case <-h.done:
	case sub.events <- event:
	case <-timer.C:
		sub.dropped.Add(1)
	}
}

// getNextEventID returns the next monotonic event ID for a stream.
func (h *Hub) getNextEventID(stream string) int64 {
	h.mu.RLock()
	counter, exists := h.streamIDs[stream]
	h.mu.RUnlock()

	if exists {
		return atomic.AddInt64(counter, 1)
	}

	h.mu.Lock()
	// Another goroutine might have created it
	counter, exists = h.streamIDs[stream]
	if !exists {
		var initial int64
		counter = &initial
		h.streamIDs[stream] = counter
	}
	h.mu.Unlock()

	return atomic.AddInt64(counter, 1)
}

// bufferLocked adds an event to its stream buffer. Caller holds h.mu.
func (h *Hub) bufferLocked(event Event) {
	buffer, exists := h.buffers[event.Stream]
	if !exists {
		buffer = NewEventBuffer(h.config.BufferSize)
		h.buffers[event.Stream] = buffer
	}
	buffer.AddEvent(event)
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Stop ends every subscription and rejects further publishes. It is safe to call twice.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		subscribers := h.subscribers
		h.subscribers = make(map[string]*Subscriber)
		h.mu.Unlock()

		for _, sub := range subscribers {
			sub.close()
		}
	})
}

// EventBuffer maintains a circular buffer of events for one stream.
type EventBuffer struct {
	mu       sync.RWMutex
	events   []Event
	capacity int
}

// NewEventBuffer creates a new event buffer with the specified capacity.
func NewEventBuffer(capacity int) *EventBuffer {
	return &EventBuffer{
		events:   make([]Event, 0, capacity),
		capacity: capacity,
	}
}

// AddEvent adds an event to the buffer, evicting the oldest when full.
func (b *EventBuffer) AddEvent(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, event)
	if len(b.events) > b.capacity {
		b.events = b.events[1:]
	}
}

// GetEventsAfter returns events after the specified ID.
func (b *EventBuffer) GetEventsAfter(lastID int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []Event
	for _, event := range b.events {
		if event.ID > lastID {
			result = append(result, event)
		}
	}

	return result
}

// GetCapacity returns the buffer capacity.
func (b *EventBuffer) GetCapacity() int {
	return b.capacity
}

// GetSize returns the current buffer size.
func (b *EventBuffer) GetSize() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}
