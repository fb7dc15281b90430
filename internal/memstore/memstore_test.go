package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goali/auctions/internal/auction"
	"github.com/goali/auctions/internal/auth"
	"github.com/goali/auctions/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openItem(t *testing.T, s *Store, price float64) *models.AuctionItem {
	t.Helper()
	now := time.Now().UTC()
	item, err := s.CreateAuction(context.Background(), &models.AuctionItem{
		ID:           uuid.New(),
		Title:        "Art Class Bundle",
		OwnerID:      uuid.New(),
		StartTime:    now.Add(-time.Hour),
		EndTime:      now.Add(time.Hour),
		CurrentPrice: price,
	})
	require.NoError(t, err)
	return item
}

func TestStore_AuctionCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()
	item := openItem(t, s, 60)
	assert.False(t, item.CreatedAt.IsZero())

	got, err := s.GetAuction(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Art Class Bundle", got.Title)

	_, err = s.CreateAuction(ctx, item)
	assert.Error(t, err)

	require.NoError(t, s.DeleteAuction(ctx, item.ID))
	_, err = s.GetAuction(ctx, item.ID)
	assert.ErrorIs(t, err, auction.ErrAuctionNotFound)
	assert.ErrorIs(t, s.DeleteAuction(ctx, item.ID), auction.ErrAuctionNotFound)
}

func TestStore_ListAuctionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		_, err := s.CreateAuction(ctx, &models.AuctionItem{
			ID:        uuid.New(),
			Title:     string(rune('A' + i)),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	items, err := s.ListAuctions(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "C", items[0].Title)
	assert.Equal(t, "A", items[2].Title)
}

func TestStore_AdmitBid(t *testing.T) {
	ctx := context.Background()
	s := New()
	item := openItem(t, s, 100)
	bidder := uuid.New()
	bid := models.Bid{ID: uuid.New(), AuctionID: item.ID, BidderID: bidder, Amount: 150, BidTime: time.Now().UTC()}

	ok, err := s.AdmitBid(ctx, bid, 100)
	require.NoError(t, err)
	assert.True(t, ok)

	got, _ := s.GetAuction(ctx, item.ID)
	assert.Equal(t, 150.0, got.CurrentPrice)
	assert.Equal(t, bidder, *got.HighestBidderID)

	// Stale expectation changes nothing
	stale := bid
	stale.ID = uuid.New()
	stale.Amount = 170
	ok, err = s.AdmitBid(ctx, stale, 100)
	require.NoError(t, err)
	assert.False(t, ok)

	bids, err := s.ListBids(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, bid.ID, bids[0].ID)
}

func TestStore_AdmitBid_OutsideWindow(t *testing.T) {
	ctx := context.Background()
	s := New()
	item := openItem(t, s, 100)

	late := models.Bid{ID: uuid.New(), AuctionID: item.ID, BidderID: uuid.New(), Amount: 150, BidTime: item.EndTime}
	ok, err := s.AdmitBid(ctx, late, 100)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.AdmitBid(ctx, models.Bid{AuctionID: uuid.New()}, 0)
	assert.ErrorIs(t, err, auction.ErrAuctionNotFound)
}

func TestStore_ListBidsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	item := openItem(t, s, 100)

	price := 100.0
	for _, amount := range []float64{110, 120, 130} {
		ok, err := s.AdmitBid(ctx, models.Bid{ID: uuid.New(), AuctionID: item.ID, BidderID: uuid.New(), Amount: amount, BidTime: time.Now().UTC()}, price)
		require.NoError(t, err)
		require.True(t, ok)
		price = amount
	}

	bids, err := s.ListBids(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, bids, 3)
	assert.Equal(t, 130.0, bids[0].Amount)
	assert.Equal(t, 110.0, bids[2].Amount)

	require.NoError(t, s.DeleteAuction(ctx, item.ID))
	bids, err = s.ListBids(ctx, item.ID)
	require.NoError(t, err)
	assert.Empty(t, bids)
}

func TestStore_ConcurrentPlaceBid(t *testing.T) {
	s := New()
	item := openItem(t, s, 0)
	svc := auction.NewService(s, nil, 200)

	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(amount float64) {
			defer wg.Done()
			_, _ = svc.PlaceBid(context.Background(), item.ID, uuid.New(), amount)
		}(float64(i))
	}
	wg.Wait()

	got, _ := s.GetAuction(context.Background(), item.ID)
	assert.Equal(t, 100.0, got.CurrentPrice)

	bids, _ := s.ListBids(context.Background(), item.ID)
	for i := 1; i < len(bids); i++ {
		assert.Less(t, bids[i].Amount, bids[i-1].Amount)
	}
}

func TestStore_Users(t *testing.T) {
	ctx := context.Background()
	s := New()

	created, err := s.CreateUser(ctx, &models.User{Email: "Alice@goali.test", Role: models.RoleClient})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)

	_, err = s.CreateUser(ctx, &models.User{Email: "alice@GOALI.test"})
	assert.ErrorIs(t, err, auth.ErrEmailTaken)

	byEmail, err := s.GetUserByEmail(ctx, "ALICE@goali.test")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	require.NoError(t, s.UpdateUserRole(ctx, created.ID, models.RoleAdmin))
	byID, err := s.GetUserByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, byID.Role)

	assert.ErrorIs(t, s.UpdateUserRole(ctx, uuid.New(), models.RoleAdmin), auth.ErrUserNotFound)
	_, err = s.GetUserByID(ctx, uuid.New())
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
	_, err = s.GetUserByEmail(ctx, "nobody@goali.test")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}
