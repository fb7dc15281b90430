// Package broadcast fans admitted bids and lifecycle events out to viewers.
// Delivery is best effort: a subscriber that falls behind misses events, but
// the events it does get for one auction arrive in publish order.
package broadcast

import (
	"log"
	"sync"

	"github.com/goali/auctions/internal/models"
)

// DefaultBuffer is the per-subscriber backlog before events are dropped
const DefaultBuffer = 64

// Subscription receives the events of one auction
type Subscription struct {
	topic  string
	ch     chan models.AuctionEvent
	hub    *Hub
	closed bool // guarded by hub.mu
}

// C returns the event stream; it is closed when the subscription is closed
func (s *Subscription) C() <-chan models.AuctionEvent { return s.ch }

// Topic returns the auction id this subscription follows
func (s *Subscription) Topic() string { return s.topic }

// Close stops delivery. Calling it more than once is harmless.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if subs, ok := s.hub.topics[s.topic]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(s.hub.topics, s.topic)
		}
	}
	close(s.ch)
}

// Hub is the in-process topic registry
type Hub struct {
	mu      sync.Mutex
	topics  map[string]map[*Subscription]struct{}
	highest map[string]float64 // last new_bid amount delivered per auction
	buffer  int
	dropped int
	stale   int
}

// NewHub creates a hub with the given per-subscriber buffer
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		topics:  make(map[string]map[*Subscription]struct{}),
		highest: make(map[string]float64),
		buffer:  buffer,
	}
}

// Subscribe starts following topic
func (h *Hub) Subscribe(topic string) *Subscription {
	sub := &Subscription{
		topic: topic,
		ch:    make(chan models.AuctionEvent, h.buffer),
		hub:   h,
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*Subscription]struct{})
	}
	h.topics[topic][sub] = struct{}{}
	return sub
}

// Deliver hands event to every subscriber of its auction without blocking.
// Calls are serialized so concurrent callers cannot reorder a topic. A new_bid
// at or below the last one delivered for its auction is stale and skipped, so
// viewers never see the price go down.
func (h *Hub) Deliver(event models.AuctionEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch event.Type {
	case models.EventNewBid:
		if last, seen := h.highest[event.ItemID]; seen && event.Amount <= last {
			h.stale++
			return
		}
		h.highest[event.ItemID] = event.Amount
	case models.EventAuctionRemoved:
		delete(h.highest, event.ItemID)
	}

	for sub := range h.topics[event.ItemID] {
		select {
		case sub.ch <- event:
		default:
			// Slow viewer; it reconciles with a fresh read
			h.dropped++
			log.Printf("broadcast: dropped %s for a slow subscriber of auction %s", event.Type, event.ItemID)
		}
	}
}

// Count returns the number of live subscribers of topic
func (h *Hub) Count(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}

// Dropped returns how many deliveries were skipped because a buffer was full
func (h *Hub) Dropped() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Stale returns how many new_bid events were skipped for arriving out of order
func (h *Hub) Stale() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stale
}
