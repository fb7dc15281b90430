package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goali/auctions/internal/auction"
	"github.com/goali/auctions/internal/auth"
	"github.com/goali/auctions/internal/models"
	"github.com/google/uuid"
)

// AuctionStore is the read/write surface the handlers need besides bidding
type AuctionStore interface {
	CreateAuction(ctx context.Context, item *models.AuctionItem) (*models.AuctionItem, error)
	GetAuction(ctx context.Context, id uuid.UUID) (*models.AuctionItem, error)
	ListAuctions(ctx context.Context) ([]models.AuctionItem, error)
	ListBids(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error)
	DeleteAuction(ctx context.Context, id uuid.UUID) error
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Auctions    AuctionStore
	Bidding     *auction.Service
	AuthService *auth.AuthService
	Scheduler   *auction.Scheduler // optional
	Events      auction.Publisher  // optional
	EndingSoon  time.Duration

	now func() time.Time
}

// NewHandler creates a new handler
func NewHandler(auctions AuctionStore, bidding *auction.Service, authService *auth.AuthService,
	scheduler *auction.Scheduler, events auction.Publisher, endingSoon time.Duration) *Handler {
	return &Handler{
		Auctions:    auctions,
		Bidding:     bidding,
		AuthService: authService,
		Scheduler:   scheduler,
		Events:      events,
		EndingSoon:  endingSoon,
		now:         time.Now,
	}
}

// Mount registers every REST route on r
func (h *Handler) Mount(r chi.Router) {
	r.Get("/health", h.Health)

	// Public endpoints
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
	r.Post("/auth/logout", h.Logout)
	r.Get("/auction", h.ListAuctions)
	r.Get("/auction/{id}", h.GetAuction)

	// Protected endpoints (require JWT)
	r.Group(func(r chi.Router) {
		r.Use(h.JWTAuthMiddleware)
		r.Get("/auth/me", h.Me)
		r.Post("/auction", h.CreateAuction)
		r.Post("/auction/{id}/bid", h.PlaceBid)

		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/auction/admin", h.AdminListAuctions)
			r.Delete("/auction/admin/{id}", h.AdminDeleteAuction)
			r.Get("/users/admin", h.AdminListUsers)
			r.Patch("/users/admin/{id}", h.AdminUpdateRole)
		})
	})
}

type auctionView struct {
	models.AuctionItem
	Phase auction.Phase `json:"phase"`
}

func (h *Handler) view(item models.AuctionItem, now time.Time) auctionView {
	return auctionView{
		AuctionItem: item,
		Phase:       auction.Classify(now, item.StartTime, item.EndTime, h.EndingSoon),
	}
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// CreateAuction handles auction creation by the authenticated owner
func (h *Handler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		CurrentBid  *float64 `json:"current_bid"`
		StartTime   string   `json:"start_time"`
		EndTime     string   `json:"end_time"`
		ImageURL    string   `json:"image_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	item, err := auction.BuildAuction(auction.NewAuctionInput{
		Title:        req.Title,
		Description:  req.Description,
		ImageURL:     req.ImageURL,
		InitialPrice: req.CurrentBid,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
	}, identity.UserID, h.now())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.Auctions.CreateAuction(r.Context(), item)
	if err != nil {
		log.Printf("Error inserting auction item: %v", err)
		respondError(w, http.StatusInternalServerError, "Server error while creating auction item")
		return
	}
	if h.Scheduler != nil {
		h.Scheduler.Track(*created)
	}

	respondJSON(w, http.StatusCreated, h.view(*created, h.now()))
}

// ListAuctions lists auctions with open ones first, soonest ending first
func (h *Handler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	items, err := h.Auctions.ListAuctions(r.Context())
	if err != nil {
		log.Printf("Error listing auctions: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch auctions")
		return
	}

	now := h.now()
	views := make([]auctionView, 0, len(items))
	for _, item := range items {
		views = append(views, h.view(item, now))
	}
	sort.SliceStable(views, func(i, j int) bool {
		iEnded, jEnded := views[i].Phase == auction.PhaseEnded, views[j].Phase == auction.PhaseEnded
		if iEnded != jEnded {
			return jEnded
		}
		return views[i].EndTime.Before(views[j].EndTime)
	})

	respondJSON(w, http.StatusOK, views)
}

// GetAuction returns an auction with its highest bid and full bid history
func (h *Handler) GetAuction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "Auction item not found")
		return
	}

	item, err := h.Auctions.GetAuction(r.Context(), id)
	if err != nil {
		if errors.Is(err, auction.ErrAuctionNotFound) {
			respondError(w, http.StatusNotFound, "Auction item not found")
			return
		}
		log.Printf("Auction fetch error: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch auction item")
		return
	}

	bids, err := h.Auctions.ListBids(r.Context(), id)
	if err != nil {
		log.Printf("Bid history fetch error: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch auction item")
		return
	}

	// Bids strictly increase, so the newest is the highest
	var highest *models.Bid
	if len(bids) > 0 {
		highest = &bids[0]
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"auctionItem": h.view(*item, h.now()),
		"highestBid":  highest,
		"allBids":     bids,
	})
}

// PlaceBid handles bid placement on an auction
func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	auctionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "Auction item not found")
		return
	}

	var req struct {
		BidAmount *float64 `json:"bid_amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.BidAmount == nil {
		respondError(w, http.StatusBadRequest, "Missing required fields: bid_amount")
		return
	}

	bid, err := h.Bidding.PlaceBid(r.Context(), auctionID, identity.UserID, *req.BidAmount)
	if err != nil {
		respondBidError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":     "Bid placed successfully",
		"current_bid": bid.Amount,
		"bid":         bid,
	})
}

func respondBidError(w http.ResponseWriter, err error) {
	var tooLow *auction.BidTooLowError
	var closed *auction.ClosedError
	var invalid *auction.ValidationError

	switch {
	case errors.As(err, &tooLow):
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":         "Bid must be higher than current bid",
			"current_price": tooLow.CurrentPrice,
		})
	case errors.As(err, &closed):
		if closed.Phase == auction.PhaseScheduled {
			respondError(w, http.StatusBadRequest, "Auction has not started yet")
			return
		}
		respondError(w, http.StatusBadRequest, "Auction has already ended")
	case errors.As(err, &invalid):
		respondError(w, http.StatusBadRequest, invalid.Error())
	case errors.Is(err, auction.ErrAuthenticationRequired):
		respondError(w, http.StatusUnauthorized, "Authentication required")
	case errors.Is(err, auction.ErrAuctionNotFound):
		respondError(w, http.StatusNotFound, "Auction item not found")
	case errors.Is(err, auction.ErrContention):
		w.Header().Set("Retry-After", "1")
		respondError(w, http.StatusConflict, "Too many simultaneous bids, please retry")
	default:
		log.Printf("Bid placement failed: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to place bid")
	}
}

// AdminListAuctions lists every auction, newest first
func (h *Handler) AdminListAuctions(w http.ResponseWriter, r *http.Request) {
	items, err := h.Auctions.ListAuctions(r.Context())
	if err != nil {
		log.Printf("Error listing auctions: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch auctions")
		return
	}
	now := h.now()
	views := make([]auctionView, 0, len(items))
	for _, item := range items {
		views = append(views, h.view(item, now))
	}
	respondJSON(w, http.StatusOK, views)
}

// AdminDeleteAuction removes an auction and its bids
func (h *Handler) AdminDeleteAuction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "Auction item not found")
		return
	}

	if err := h.Auctions.DeleteAuction(r.Context(), id); err != nil {
		if errors.Is(err, auction.ErrAuctionNotFound) {
			respondError(w, http.StatusNotFound, "Auction item not found")
			return
		}
		log.Printf("Error deleting auction %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "Failed to delete auction item")
		return
	}

	if h.Scheduler != nil {
		h.Scheduler.Forget(id)
	}
	if h.Events != nil {
		h.Events.Publish(models.AuctionEvent{
			Type:      models.EventAuctionRemoved,
			EventID:   uuid.NewString(),
			ItemID:    id.String(),
			Timestamp: h.now().UTC(),
		})
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Auction item deleted"})
}

func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{"error": message})
}
