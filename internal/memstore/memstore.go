// Package memstore keeps auctions, bids and users in process memory. It has the
// same semantics as the PostgreSQL store and backs dev mode and tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goali/auctions/internal/auction"
	"github.com/goali/auctions/internal/auth"
	"github.com/goali/auctions/internal/models"
	"github.com/google/uuid"
)

// Store is a mutex-guarded in-memory store
type Store struct {
	mu       sync.RWMutex
	auctions map[uuid.UUID]models.AuctionItem
	bids     map[uuid.UUID][]models.Bid // append order == admission order
	users    map[uuid.UUID]models.User
}

// New creates an empty store
func New() *Store {
	return &Store{
		auctions: make(map[uuid.UUID]models.AuctionItem),
		bids:     make(map[uuid.UUID][]models.Bid),
		users:    make(map[uuid.UUID]models.User),
	}
}

// CreateAuction inserts a new auction item
func (s *Store) CreateAuction(ctx context.Context, item *models.AuctionItem) (*models.AuctionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.auctions[item.ID]; exists {
		return nil, fmt.Errorf("auction %s already exists", item.ID)
	}
	stored := *item
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.auctions[stored.ID] = stored
	return &stored, nil
}

// GetAuction retrieves an auction by id
func (s *Store) GetAuction(ctx context.Context, id uuid.UUID) (*models.AuctionItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.auctions[id]
	if !ok {
		return nil, auction.ErrAuctionNotFound
	}
	return &item, nil
}

// ListAuctions returns every auction, newest first
func (s *Store) ListAuctions(ctx context.Context) ([]models.AuctionItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]models.AuctionItem, 0, len(s.auctions))
	for _, item := range s.auctions {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

// ListBids returns the bids of an auction, newest first
func (s *Store) ListBids(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ledger := s.bids[auctionID]
	bids := make([]models.Bid, len(ledger))
	for i, b := range ledger {
		bids[len(ledger)-1-i] = b
	}
	return bids, nil
}

// AdmitBid performs the compare-and-swap on the price and appends the bid
func (s *Store) AdmitBid(ctx context.Context, bid models.Bid, expected float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.auctions[bid.AuctionID]
	if !ok {
		return false, auction.ErrAuctionNotFound
	}
	if item.CurrentPrice != expected || !auction.CanAcceptBid(bid.BidTime, item.StartTime, item.EndTime) {
		return false, nil
	}

	bidder := bid.BidderID
	item.CurrentPrice = bid.Amount
	item.HighestBidderID = &bidder
	s.auctions[item.ID] = item
	s.bids[item.ID] = append(s.bids[item.ID], bid)
	return true, nil
}

// DeleteAuction removes an auction and its bids
func (s *Store) DeleteAuction(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.auctions[id]; !ok {
		return auction.ErrAuctionNotFound
	}
	delete(s.auctions, id)
	delete(s.bids, id)
	return nil
}

// CreateUser inserts a new user
func (s *Store) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return nil, auth.ErrEmailTaken
		}
	}
	stored := *user
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.users[stored.ID] = stored
	return &stored, nil
}

// GetUserByEmail retrieves a user by email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, auth.ErrUserNotFound
}

// GetUserByID retrieves a user by id
func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return &u, nil
}

// ListUsers returns every user, newest first
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, nil
}

// UpdateUserRole changes a user's role
func (s *Store) UpdateUserRole(ctx context.Context, id uuid.UUID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.ErrUserNotFound
	}
	u.Role = role
	s.users[id] = u
	return nil
}
