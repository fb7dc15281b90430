package models

import (
	"time"

	"github.com/google/uuid"
)

// Roles a user can hold
const (
	RoleClient = "client"
	RoleAdmin  = "admin"
)

// User represents a registered user
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	Role         string    `json:"role"` // "client" or "admin"
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuctionItem represents one auctioned lot
type AuctionItem struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	ImageURL        string     `json:"image_url"`
	OwnerID         uuid.UUID  `json:"owner_id"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         time.Time  `json:"end_time"`
	CurrentPrice    float64    `json:"current_bid"`                 // Initial price until the first bid
	HighestBidderID *uuid.UUID `json:"highest_bidder_id,omitempty"` // Moves in lockstep with CurrentPrice
	CreatedAt       time.Time  `json:"created_at"`
}

// Bid represents an admitted bid; it is never mutated afterwards
type Bid struct {
	ID        uuid.UUID `json:"id"`
	AuctionID uuid.UUID `json:"item_id"`
	BidderID  uuid.UUID `json:"user_id"`
	Amount    float64   `json:"amount"`
	BidTime   time.Time `json:"bid_time"` // Server-assigned at admission
}

// Event types pushed over the broadcast channel
const (
	EventNewBid         = "new_bid"
	EventAuctionStarted = "auction_started"
	EventAuctionEnded   = "auction_ended"
	EventAuctionRemoved = "auction_removed"
)

// AuctionEvent is the payload fanned out to viewers of an auction
type AuctionEvent struct {
	Type           string    `json:"type"`
	EventID        string    `json:"event_id"`
	ItemID         string    `json:"item_id"`
	Amount         float64   `json:"amount"`
	PreviousAmount float64   `json:"previous_amount,omitempty"`
	BidderID       string    `json:"bidder_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
