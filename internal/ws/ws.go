// Package ws serves the broadcast channel over WebSocket. A connection starts
// with no auction joined; the client joins and leaves auctions by id.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/goali/auctions/internal/auction"
	"github.com/goali/auctions/internal/broadcast"
	"github.com/goali/auctions/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
	sendBuffer     = 256
)

// Snapshotter reads the authoritative auction state
type Snapshotter interface {
	GetAuction(ctx context.Context, id uuid.UUID) (*models.AuctionItem, error)
}

// Frame is a message exchanged with the client. Events use models.AuctionEvent.
type Frame struct {
	Action string  `json:"action,omitempty"`
	Type   string  `json:"type,omitempty"`
	ItemID string  `json:"item_id,omitempty"`
	Amount float64 `json:"amount,omitempty"`
	Phase  string  `json:"phase,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// Handler upgrades requests to WebSocket connections
type Handler struct {
	broadcaster *broadcast.Broadcaster
	auctions    Snapshotter
	endingSoon  time.Duration
	upgrader    websocket.Upgrader
}

// NewHandler creates a WebSocket handler
func NewHandler(b *broadcast.Broadcaster, auctions Snapshotter, endingSoon time.Duration) *Handler {
	return &Handler{
		broadcaster: b,
		auctions:    auctions,
		endingSoon:  endingSoon,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Origins are enforced by the CORS layer
			},
		},
	}
}

type client struct {
	id   string
	h    *Handler
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	mu   sync.Mutex
	subs map[string]*broadcast.Subscription
}

// ServeHTTP handles one connection until the client goes away
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	c := &client{
		id:   uuid.NewString(),
		h:    h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
		subs: make(map[string]*broadcast.Subscription),
	}
	go c.writePump()

	if itemID := r.URL.Query().Get("item_id"); itemID != "" {
		c.join(r.Context(), itemID)
	}
	c.readPump()
}

func (c *client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket client %s error: %v", c.id, err)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.reply(Frame{Type: "error", Error: "invalid message"})
			continue
		}
		switch frame.Action {
		case "join":
			c.join(context.Background(), frame.ItemID)
		case "leave":
			c.leave(frame.ItemID)
		default:
			c.reply(Frame{Type: "error", ItemID: frame.ItemID, Error: "unknown action"})
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) join(ctx context.Context, itemID string) {
	id, err := uuid.Parse(itemID)
	if err != nil {
		c.reply(Frame{Type: "error", ItemID: itemID, Error: "invalid item_id"})
		return
	}
	itemID = id.String()

	c.mu.Lock()
	sub, joined := c.subs[itemID]
	if !joined {
		sub = c.h.broadcaster.Subscribe(itemID)
		c.subs[itemID] = sub
		go c.forward(sub)
	}
	c.mu.Unlock()

	// Subscribe before reading so no admission between the two goes unseen
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	item, err := c.h.auctions.GetAuction(ctx, id)
	if err != nil {
		c.leaveQuietly(itemID)
		if errors.Is(err, auction.ErrAuctionNotFound) {
			c.reply(Frame{Type: "error", ItemID: itemID, Error: "Auction item not found"})
			return
		}
		c.reply(Frame{Type: "error", ItemID: itemID, Error: "Failed to fetch auction item"})
		return
	}

	phase := auction.Classify(time.Now(), item.StartTime, item.EndTime, c.h.endingSoon)
	c.reply(Frame{Type: "joined", ItemID: itemID, Amount: item.CurrentPrice, Phase: string(phase)})
}

func (c *client) leave(itemID string) {
	if id, err := uuid.Parse(itemID); err == nil {
		itemID = id.String()
	}
	c.leaveQuietly(itemID)
	c.reply(Frame{Type: "left", ItemID: itemID})
}

func (c *client) leaveQuietly(itemID string) {
	c.mu.Lock()
	sub, ok := c.subs[itemID]
	delete(c.subs, itemID)
	c.mu.Unlock()
	if ok {
		sub.Close()
	}
}

// forward copies one subscription's events to the socket until it is closed
func (c *client) forward(sub *broadcast.Subscription) {
	for event := range sub.C() {
		data, err := json.Marshal(event)
		if err != nil {
			log.Printf("Failed to marshal event: %v", err)
			continue
		}
		c.enqueue(data)
	}
}

func (c *client) reply(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		log.Printf("Failed to marshal frame: %v", err)
		return
	}
	c.enqueue(data)
}

func (c *client) enqueue(data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		log.Printf("WebSocket client %s is too slow, dropping message", c.id)
	}
}

func (c *client) close() {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]*broadcast.Subscription)
	c.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
	close(c.done)
}
