package auction

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/goali/auctions/internal/models"
	"github.com/google/uuid"
)

// DefaultMaxAttempts bounds the optimistic-concurrency restarts of PlaceBid
const DefaultMaxAttempts = 5

// Store is the auction record store and bid ledger the controller writes to
type Store interface {
	GetAuction(ctx context.Context, id uuid.UUID) (*models.AuctionItem, error)
	// AdmitBid sets the auction price to bid.Amount and the highest bidder to
	// bid.BidderID, and appends bid to the ledger, as one atomic step. The write
	// only happens if the stored price still equals expected and bid.BidTime lies
	// inside [start_time, end_time); otherwise it returns false and changes nothing.
	AdmitBid(ctx context.Context, bid models.Bid, expected float64) (bool, error)
}

// Publisher receives admitted bids for fan-out. Publish must not block.
type Publisher interface {
	Publish(event models.AuctionEvent)
}

// Service admits bids. It is the only writer of an auction's price.
type Service struct {
	store       Store
	publisher   Publisher
	maxAttempts int
	now         func() time.Time
}

// NewService creates a bid admission service
func NewService(store Store, publisher Publisher, maxAttempts int) *Service {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Service{
		store:       store,
		publisher:   publisher,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// PlaceBid admits amount from bidderID on auctionID or returns a tagged error:
// ErrAuthenticationRequired, *ValidationError, ErrAuctionNotFound, *ClosedError,
// *BidTooLowError, ErrContention or ErrStoreUnavailable.
func (s *Service) PlaceBid(ctx context.Context, auctionID, bidderID uuid.UUID, amount float64) (*models.Bid, error) {
	if bidderID == uuid.Nil {
		return nil, ErrAuthenticationRequired
	}
	normalized, ok := normalizeAmount(amount)
	if !ok || normalized <= 0 {
		return nil, &ValidationError{Message: "Bid amount must be a positive number"}
	}
	if !withinLimit(normalized) {
		return nil, &ValidationError{Message: "Bid amount must not exceed 999999999999.99"}
	}

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		item, err := s.store.GetAuction(ctx, auctionID)
		if err != nil {
			if errors.Is(err, ErrAuctionNotFound) {
				return nil, ErrAuctionNotFound
			}
			return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}

		// Window and price are judged against the same read
		now := s.now().UTC()
		if !CanAcceptBid(now, item.StartTime, item.EndTime) {
			return nil, &ClosedError{Phase: Classify(now, item.StartTime, item.EndTime, 0)}
		}
		if !exceeds(normalized, item.CurrentPrice) {
			return nil, &BidTooLowError{CurrentPrice: item.CurrentPrice}
		}

		bid := models.Bid{
			ID:        uuid.New(),
			AuctionID: auctionID,
			BidderID:  bidderID,
			Amount:    normalized,
			BidTime:   now,
		}
		admitted, err := s.store.AdmitBid(ctx, bid, item.CurrentPrice)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		if !admitted {
			// Another bid moved the price or the window closed; re-read
			continue
		}

		s.announce(bid, item.CurrentPrice)
		return &bid, nil
	}

	log.Printf("bid on auction %s gave up after %d attempts", auctionID, s.maxAttempts)
	return nil, ErrContention
}

func (s *Service) announce(bid models.Bid, previous float64) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(models.AuctionEvent{
		Type:           models.EventNewBid,
		EventID:        uuid.NewString(),
		ItemID:         bid.AuctionID.String(),
		Amount:         bid.Amount,
		PreviousAmount: previous,
		BidderID:       bid.BidderID.String(),
		Timestamp:      bid.BidTime,
	})
}
