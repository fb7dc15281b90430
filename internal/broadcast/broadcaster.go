package broadcast

import (
	"context"
	"log"
	"time"

	"github.com/goali/auctions/internal/models"
)

const (
	defaultQueueSize = 1024
	relayTimeout     = 2 * time.Second
	listenMinBackoff = 100 * time.Millisecond
	listenMaxBackoff = 5 * time.Second
)

// Relay carries events between server instances. Every instance publishes
// into the relay and delivers what the relay hands back, so all instances
// observe one order per auction.
type Relay interface {
	Publish(ctx context.Context, event models.AuctionEvent) error
	// Listen blocks until ctx is done, calling deliver for every received event
	Listen(ctx context.Context, deliver func(models.AuctionEvent)) error
	Close() error
}

// Broadcaster is the publish side of the channel. Publish never blocks the
// caller; a single goroutine forwards events in order.
type Broadcaster struct {
	hub   *Hub
	relay Relay
	queue chan models.AuctionEvent

	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewBroadcaster creates a broadcaster. relay may be nil for a single instance.
func NewBroadcaster(hub *Hub, relay Relay) *Broadcaster {
	return &Broadcaster{
		hub:   hub,
		relay: relay,
		queue: make(chan models.AuctionEvent, defaultQueueSize),

		minBackoff: listenMinBackoff,
		maxBackoff: listenMaxBackoff,
	}
}

// Publish enqueues event for fan-out. It drops the event if the queue is full.
func (b *Broadcaster) Publish(event models.AuctionEvent) {
	select {
	case b.queue <- event:
	default:
		log.Printf("broadcast: queue full, dropped %s for auction %s", event.Type, event.ItemID)
	}
}

// Subscribe follows the events of one auction on this instance
func (b *Broadcaster) Subscribe(auctionID string) *Subscription {
	return b.hub.Subscribe(auctionID)
}

// Hub exposes the local registry
func (b *Broadcaster) Hub() *Hub { return b.hub }

// Run forwards queued events until ctx is done
func (b *Broadcaster) Run(ctx context.Context) {
	if b.relay != nil {
		go b.listen(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-b.queue:
			b.forward(ctx, event)
		}
	}
}

// listen keeps the relay subscription alive until ctx is done. Events
// published meanwhile still reach the relay; only this instance's
// subscribers miss them until the listener is back.
func (b *Broadcaster) listen(ctx context.Context) {
	backoff := b.minBackoff
	for {
		start := time.Now()
		err := b.relay.Listen(ctx, b.hub.Deliver)
		if ctx.Err() != nil {
			return
		}
		if time.Since(start) > b.maxBackoff {
			backoff = b.minBackoff
		}
		log.Printf("broadcast: relay listener stopped, retrying in %s: %v", backoff, err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > b.maxBackoff {
			backoff = b.maxBackoff
		}
	}
}

func (b *Broadcaster) forward(ctx context.Context, event models.AuctionEvent) {
	if b.relay == nil {
		b.hub.Deliver(event)
		return
	}
	relayCtx, cancel := context.WithTimeout(ctx, relayTimeout)
	defer cancel()
	if err := b.relay.Publish(relayCtx, event); err != nil {
		log.Printf("broadcast: relay publish of %s for auction %s failed: %v", event.Type, event.ItemID, err)
	}
}
