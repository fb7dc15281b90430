package auction

import (
	"strings"
	"time"

	"github.com/goali/auctions/internal/models"
	"github.com/google/uuid"
)

// NewAuctionInput is the owner-supplied part of an auction
type NewAuctionInput struct {
	Title        string
	Description  string
	ImageURL     string
	InitialPrice *float64
	StartTime    string // RFC 3339
	EndTime      string // RFC 3339
}

// BuildAuction validates input and returns the item to insert
func BuildAuction(in NewAuctionInput, ownerID uuid.UUID, now time.Time) (*models.AuctionItem, error) {
	if ownerID == uuid.Nil {
		return nil, ErrAuthenticationRequired
	}

	var missing []string
	if strings.TrimSpace(in.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(in.Description) == "" {
		missing = append(missing, "description")
	}
	if in.InitialPrice == nil {
		missing = append(missing, "current_bid")
	}
	if in.EndTime == "" {
		missing = append(missing, "end_time")
	}
	if in.StartTime == "" {
		missing = append(missing, "start_time")
	}
	if strings.TrimSpace(in.ImageURL) == "" {
		missing = append(missing, "image_url")
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Fields: missing, Message: "Missing required fields"}
	}

	start, errStart := time.Parse(time.RFC3339, in.StartTime)
	end, errEnd := time.Parse(time.RFC3339, in.EndTime)
	if errStart != nil || errEnd != nil {
		return nil, &ValidationError{Message: "Invalid datetime format for start_time or end_time"}
	}
	if !start.Before(end) {
		return nil, &ValidationError{Message: "end_time must be after start_time"}
	}

	price, ok := normalizeAmount(*in.InitialPrice)
	if !ok || price < 0 {
		return nil, &ValidationError{Message: "Initial price must be a non-negative number"}
	}
	if !withinLimit(price) {
		return nil, &ValidationError{Message: "Initial price must not exceed 999999999999.99"}
	}

	return &models.AuctionItem{
		ID:           uuid.New(),
		Title:        strings.TrimSpace(in.Title),
		Description:  strings.TrimSpace(in.Description),
		ImageURL:     strings.TrimSpace(in.ImageURL),
		OwnerID:      ownerID,
		StartTime:    start.UTC(),
		EndTime:      end.UTC(),
		CurrentPrice: price,
		CreatedAt:    now.UTC(),
	}, nil
}
