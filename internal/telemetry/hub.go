//
//
package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/radio-control/rfcontrol/internal/device"
)

// Event types published by the server.
const (
	EventReady           = "ready"
	EventSettingsApplied = "settingsApplied"
	EventFault           = "fault"
	EventState           = "state"
	EventHeartbeat       = "heartbeat"
)

// Event represents a telemetry event with SSE formatting.
type Event struct {
	ID        int64                  `json:"id,omitempty"`
	Type      string                 `json:"type"`
	DeviceID  string                 `json:"deviceId,omitempty"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"ts"`
}

// Sink receives every event after it has been fanned out to subscribers.
// Each sink is fed from its own goroutine, so Deliver may block.
type Sink interface {
	Deliver(event Event)
}

// ErrEncode is returned by WriteEvent when the event cannot be encoded.
var ErrEncode = errors.New("event not encodable")

// Options configures a Hub.
type Options struct {
	// HeartbeatInterval of zero disables heartbeats.
	HeartbeatInterval time.Duration
	ReplayBuffer      int
	SubscriberBuffer  int
	// SinkBuffer bounds the events queued per sink; defaults to SubscriberBuffer.
	SinkBuffer int
	// Snapshot, when set, provides the payload of the ready event.
	Snapshot func() interface{}
}

// Subscription is a registered event consumer.
type Subscription struct {
	ID     int64
	Events <-chan Event
	// Replay holds buffered events newer than the requested last ID.
	Replay []Event

	events chan Event
}

// Hub distributes events to subscribers and sinks.
type Hub struct {
	mu          sync.Mutex
	nextEventID int64
	nextSubID   int64
	subscribers map[int64]*Subscription
	buffer      *EventBuffer
	sinks       []*sinkQueue
	dropped     int64
	sinkDropped int64

	opts Options
	log  zerolog.Logger

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewHub creates a hub and starts its heartbeat.
func NewHub(opts Options, log zerolog.Logger) *Hub {
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = 100
	}
	if opts.SinkBuffer <= 0 {
		opts.SinkBuffer = opts.SubscriberBuffer
	}
	if opts.ReplayBuffer < 0 {
		opts.ReplayBuffer = 0
	}

	h := &Hub{
		subscribers: make(map[int64]*Subscription),
		buffer:      NewEventBuffer(opts.ReplayBuffer),
		opts:        opts,
		log:         log.With().Str("component", "telemetry").Logger(),
		done:        make(chan struct{}),
	}

	if opts.HeartbeatInterval > 0 {
		h.wg.Add(1)
		go h.heartbeat(opts.HeartbeatInterval)
	}
	return h
}

type sinkQueue struct {
	sink   Sink
	events chan Event
}

// AddSink registers a sink for all subsequent events. Events that find the
// sink's queue full are dropped. Adding a sink after Stop is a no-op.
func (h *Hub) AddSink(s Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()

	select {
	case <-h.done:
		return
	default:
	}

	q := &sinkQueue{sink: s, events: make(chan Event, h.opts.SinkBuffer)}
	h.sinks = append(h.sinks, q)
	h.wg.Add(1)
	go h.runSink(q)
}

func (h *Hub) runSink(q *sinkQueue) {
	defer h.wg.Done()
	for e := range q.events {
		q.sink.Deliver(e)
	}
}

// Publish assigns the event an ID and timestamp, buffers it for replay and
// delivers it. Heartbeats are not buffered. Publishing after Stop is a no-op.
func (h *Hub) Publish(event Event) Event {
	h.mu.Lock()
	select {
	case <-h.done:
		h.mu.Unlock()
		return event
	default:
	}

	h.nextEventID++
	event.ID = h.nextEventID
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.Data = finiteData(event.Data)
	if event.Type != EventHeartbeat {
		h.buffer.AddEvent(event)
	}

	for _, sub := range h.subscribers {
		select {
		case sub.events <- event:
		default:
			h.dropped++
			h.log.Debug().Int64("subscriber", sub.ID).Int64("event", event.ID).Msg("dropping event for slow subscriber")
		}
	}
	for _, q := range h.sinks {
		select {
		case q.events <- event:
		default:
			h.sinkDropped++
			h.log.Warn().Int64("event", event.ID).Str("type", event.Type).Msg("sink queue full, dropping event")
		}
	}
	h.mu.Unlock()
	return event
}

// finiteData copies data, rendering non-finite floats as text.
func finiteData(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		if f, ok := v.(float64); ok {
			out[k] = device.JSONNumber(f)
			continue
		}
		out[k] = v
	}
	return out
}

// PublishDevice publishes an event of the given type for a device.
func (h *Hub) PublishDevice(deviceID, eventType string, data map[string]interface{}) Event {
	return h.Publish(Event{Type: eventType, DeviceID: deviceID, Data: data})
}

// Subscribe registers a subscriber. Buffered events with an ID greater than
// lastID are returned in Replay; lastID <= 0 skips replay.
func (h *Hub) Subscribe(lastID int64) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextSubID++
	ch := make(chan Event, h.opts.SubscriberBuffer)
	sub := &Subscription{ID: h.nextSubID, Events: ch, events: ch}
	if lastID > 0 {
		sub.Replay = h.buffer.GetEventsAfter(lastID)
	}

	select {
	case <-h.done:
		close(ch)
		return sub
	default:
	}
	h.subscribers[sub.ID] = sub
	return sub
}

// Unsubscribe removes the subscriber and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subscribers[sub.ID]; ok {
		delete(h.subscribers, sub.ID)
		close(sub.events)
	}
}

// SubscriberCount returns the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func (h *Hub) Dropped() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// SinkDropped returns how many events were dropped for full sink queues.
func (h *Hub) SinkDropped() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sinkDropped
}

// Done is closed when the hub stops.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) heartbeat(interval time.Duration) {
	defer h.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.Publish(Event{Type: EventHeartbeat})
		case <-h.done:
			return
		}
	}
}

// Stop stops the heartbeat, closes every subscription and waits for the
// sinks to drain their queues.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		h.mu.Lock()
		close(h.done)
		for id, sub := range h.subscribers {
			close(sub.events)
			delete(h.subscribers, id)
		}
		for _, q := range h.sinks {
			close(q.events)
		}
		h.sinks = nil
		h.mu.Unlock()

		h.wg.Wait()
	})
}

// ServeSSE streams events to an HTTP client until it disconnects or the hub
// stops. The optional "device" query parameter filters by device ID.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	lastID := int64(0)
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			lastID = id
		}
	}
	deviceFilter := r.URL.Query().Get("device")

	sub := h.Subscribe(lastID)
	defer h.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ready := Event{Type: EventReady, Data: map[string]interface{}{"subscriber": sub.ID}, Timestamp: time.Now().UTC()}
	if h.opts.Snapshot != nil {
		ready.Data["snapshot"] = h.opts.Snapshot()
	}
	err := WriteEvent(w, ready)
	if errors.Is(err, ErrEncode) {
		h.log.Warn().Err(err).Msg("snapshot not encodable, sending ready without it")
		delete(ready.Data, "snapshot")
		err = WriteEvent(w, ready)
	}
	if err != nil {
		return
	}
	for _, e := range sub.Replay {
		if !matches(e, deviceFilter) {
			continue
		}
		if !h.writeSSE(w, sub, e) {
			return
		}
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-sub.Events:
			if !ok {
				return
			}
			if !matches(e, deviceFilter) {
				continue
			}
			if !h.writeSSE(w, sub, e) {
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSE writes e and reports whether the stream is still usable. Events
// that cannot be encoded are skipped.
func (h *Hub) writeSSE(w io.Writer, sub *Subscription, e Event) bool {
	err := WriteEvent(w, e)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrEncode):
		h.log.Warn().Err(err).Int64("event", e.ID).Str("type", e.Type).Msg("skipping event")
		return true
	default:
		h.log.Debug().Err(err).Int64("subscriber", sub.ID).Msg("SSE write failed")
		return false
	}
}

func matches(e Event, deviceID string) bool {
	return deviceID == "" || e.DeviceID == "" || e.DeviceID == deviceID
}

// WriteEvent writes one event in SSE framing. Events without an ID carry no
// id line. An event that cannot be encoded yields ErrEncode and writes nothing.
func WriteEvent(w io.Writer, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}

	if e.ID > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", e.ID); err != nil {
			return fmt.Errorf("failed to write event ID: %w", err)
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", e.Type); err != nil {
		return fmt.Errorf("failed to write event type: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write event data: %w", err)
	}
	return nil
}

// EventBuffer is a bounded ring of recent events. It is not safe for
// concurrent use; the hub guards it.
type EventBuffer struct {
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

// AddEvent appends an event, evicting the oldest beyond capacity.
func (b *EventBuffer) AddEvent(event Event) {
	if b.capacity == 0 {
		return
	}
	b.events = append(b.events, event)
	if len(b.events) > b.capacity {
		b.events = b.events[1:]
	}
}

// GetEventsAfter returns events after the specified ID.
func (b *EventBuffer) GetEventsAfter(lastID int64) []Event {
	var result []Event
	for _, event := range b.events {
		if event.ID > lastID {
			result = append(result, event)
		}
	}
	return result
}

// Len returns the current buffer size.
func (b *EventBuffer) Len() int {
	return len(b.events)
}
