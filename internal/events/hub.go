package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// DefaultSubscriberBuffer is the per-subscriber channel capacity. Sixteen
// comfortably holds a full lifecycle plus per-factor progress.
const DefaultSubscriberBuffer = 16

// Sink receives every published event for external distribution. The Kafka
// producer satisfies it.
type Sink interface {
	Produce(ctx context.Context, key string, value []byte)
}

type subscriber struct {
	ch     chan Event
	closed bool
}

// Hub fans lifecycle events out to per-request subscribers. Delivery is
// non-blocking: when a subscriber's buffer is full, progress events are
// dropped, while a final event evicts the oldest buffered event to make
// room, so every subscriber always learns how the request ended.
type Hub struct {
	mu     sync.Mutex
	subs   map[string][]*subscriber
	sink   Sink
	logger *slog.Logger
}

// NewHub builds a hub. sink may be nil when Kafka is not configured.
func NewHub(sink Sink, logger *slog.Logger) *Hub {
	return &Hub{
		subs:   make(map[string][]*subscriber),
		sink:   sink,
		logger: logger,
	}
}

// Subscribe registers for one request's events. The returned cancel func
// releases the subscription; it is safe to call more than once. After the
// request's final event the channel is closed by the hub.
func (h *Hub) Subscribe(requestID string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, DefaultSubscriberBuffer)}

	h.mu.Lock()
	h.subs[requestID] = append(h.subs[requestID], sub)
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		remaining := h.subs[requestID][:0]
		for _, s := range h.subs[requestID] {
			if s != sub {
				remaining = append(remaining, s)
			}
		}
		if len(remaining) == 0 {
			delete(h.subs, requestID)
		} else {
			h.subs[requestID] = remaining
		}
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
	}
	return sub.ch, cancel
}

// Publish delivers an event to the request's subscribers and the sink.
// Never blocks. A final event closes the request's subscriptions.
func (h *Hub) Publish(ctx context.Context, e Event) {
	h.mu.Lock()
	for _, sub := range h.subs[e.RequestID] {
		if sub.closed {
			continue
		}
		h.deliver(sub, e)
	}
	if e.Final() {
		for _, sub := range h.subs[e.RequestID] {
			if !sub.closed {
				sub.closed = true
				close(sub.ch)
			}
		}
		delete(h.subs, e.RequestID)
	}
	h.mu.Unlock()

	if h.sink != nil {
		payload, err := json.Marshal(e)
		if err != nil {
			h.logger.ErrorContext(ctx, "failed to marshal lifecycle event",
				"request_id", e.RequestID,
				"stage", e.Stage,
				"error", err,
			)
			return
		}
		h.sink.Produce(ctx, e.RequestID, payload)
	}
}

// deliver pushes the event into the subscriber's buffer. Called under h.mu,
// and the hub is the only writer, so evicting one entry always makes room.
func (h *Hub) deliver(sub *subscriber, e Event) {
	select {
	case sub.ch <- e:
		return
	default:
	}
	if !e.Final() {
		h.logger.DebugContext(context.Background(), "dropped progress event for slow subscriber",
			"request_id", e.RequestID,
			"stage", e.Stage,
		)
		return
	}
	select {
	case <-sub.ch:
	default:
	}
	select {
	case sub.ch <- e:
	default:
	}
}

// SubscriberCount reports active subscriptions for a request, for tests and
// the in-flight gauge.
func (h *Hub) SubscriberCount(requestID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[requestID])
}
