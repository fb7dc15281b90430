package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/goali/auctions/internal/auction"
	"github.com/goali/auctions/internal/auth"
	"github.com/goali/auctions/internal/config"
	"github.com/goali/auctions/internal/db"
	"github.com/goali/auctions/internal/models"
)

const seedPassword = "goali-demo"

// Seed the database with demo users, auctions and bids
func main() {
	ctx := context.Background()
	cfg := config.Load()

	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(ctx)

	// First check if we already have auctions
	existing, err := database.ListAuctions(ctx)
	if err != nil {
		log.Fatalf("Failed to check auctions: %v", err)
	}
	if len(existing) > 0 {
		fmt.Printf("Database already has %d auctions. No need to seed.\n", len(existing))
		os.Exit(0)
	}

	authService := auth.NewAuthService(database, cfg.JWTSecret, cfg.TokenTTL)
	admin := ensureUser(ctx, database, authService, "admin@goali.test", "GOALI Admin", true)
	alice := ensureUser(ctx, database, authService, "alice@goali.test", "Alice Bidder", false)
	bob := ensureUser(ctx, database, authService, "bob@goali.test", "Bob Bidder", false)

	now := time.Now().UTC()
	lots := []struct {
		title, description string
		price              float64
		start, end         time.Time
	}{
		{"Signed Team Jersey", "Game-worn jersey signed by the whole squad.", 100, now.Add(-time.Hour), now.Add(72 * time.Hour)},
		{"Weekend Cabin Stay", "Two nights at the lakeside cabin, donated by a sponsor.", 250, now.Add(-2 * time.Hour), now.Add(6 * time.Hour)},
		{"Art Class Bundle", "Five evening painting classes.", 60, now.Add(24 * time.Hour), now.Add(96 * time.Hour)},
	}

	var created []*models.AuctionItem
	for _, lot := range lots {
		price := lot.price
		item, err := auction.BuildAuction(auction.NewAuctionInput{
			Title:        lot.title,
			Description:  lot.description,
			ImageURL:     "https://images.goali.test/placeholder.jpg",
			InitialPrice: &price,
			StartTime:    lot.start.Format(time.RFC3339),
			EndTime:      lot.end.Format(time.RFC3339),
		}, admin.ID, now)
		if err != nil {
			log.Fatalf("Invalid seed auction %q: %v", lot.title, err)
		}
		stored, err := database.CreateAuction(ctx, item)
		if err != nil {
			log.Fatalf("Failed to create auction %q: %v", lot.title, err)
		}
		created = append(created, stored)
	}

	// Bids go through the admission controller like any other bid
	bidding := auction.NewService(database, nil, auction.DefaultMaxAttempts)
	for i, amount := range []float64{120, 135, 150} {
		bidder := alice
		if i%2 == 1 {
			bidder = bob
		}
		if _, err := bidding.PlaceBid(ctx, created[0].ID, bidder.ID, amount); err != nil {
			log.Fatalf("Failed to place seed bid %.2f: %v", amount, err)
		}
	}

	fmt.Printf("Successfully seeded %d auctions. Users share the password %q.\n", len(created), seedPassword)
}

func ensureUser(ctx context.Context, database *db.DB, s *auth.AuthService, email, name string, admin bool) *models.User {
	if user, err := database.GetUserByEmail(ctx, email); err == nil {
		return user
	} else if !errors.Is(err, auth.ErrUserNotFound) {
		log.Fatalf("Failed to look up %s: %v", email, err)
	}

	register := s.Register
	if admin {
		register = s.RegisterAdmin
	}
	user, err := register(ctx, email, seedPassword, name)
	if err != nil {
		log.Fatalf("Failed to create %s: %v", email, err)
	}
	return user
}
