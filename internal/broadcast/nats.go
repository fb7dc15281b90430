package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/goali/auctions/internal/models"

	"github.com/nats-io/nats.go"
)

const natsSubjectPrefix = "auction.events."

// NATSRelay fans events out through core NATS subjects, one per auction
type NATSRelay struct {
	conn      *nats.Conn
	ready     chan struct{}
	readyOnce sync.Once
}

// NewNATSRelay connects to a NATS server
func NewNATSRelay(url string) (*NATSRelay, error) {
	conn, err := nats.Connect(url, nats.Name("goali-auctions"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSRelay{conn: conn, ready: make(chan struct{})}, nil
}

// Publish sends event on the auction's subject
func (n *NATSRelay) Publish(ctx context.Context, event models.AuctionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return n.conn.Publish(natsSubjectPrefix+event.ItemID, payload)
}

// Listen subscribes to every auction subject. NATS runs one subscription's
// handler sequentially, which keeps per-auction order.
func (n *NATSRelay) Listen(ctx context.Context, deliver func(models.AuctionEvent)) error {
	sub, err := n.conn.Subscribe(natsSubjectPrefix+"*", func(msg *nats.Msg) {
		var event models.AuctionEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Printf("broadcast: ignoring malformed message on %s: %v", msg.Subject, err)
			return
		}
		if event.ItemID == "" {
			event.ItemID = strings.TrimPrefix(msg.Subject, natsSubjectPrefix)
		}
		deliver(event)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	if err := n.conn.Flush(); err != nil {
		return fmt.Errorf("failed to flush subscription: %w", err)
	}
	n.readyOnce.Do(func() { close(n.ready) })

	<-ctx.Done()
	return ctx.Err()
}

// Ready is closed once Listen's subscription is live
func (n *NATSRelay) Ready() <-chan struct{} { return n.ready }

// Close drains and closes the NATS connection
func (n *NATSRelay) Close() error {
	return n.conn.Drain()
}
