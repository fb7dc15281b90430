package auction

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/goali/auctions/internal/models"
	"github.com/google/uuid"
)

// ScheduleStore is what the scheduler reads; it never writes auction state
type ScheduleStore interface {
	GetAuction(ctx context.Context, id uuid.UUID) (*models.AuctionItem, error)
	ListAuctions(ctx context.Context) ([]models.AuctionItem, error)
}

// Scheduler announces start and end transitions of auctions over the broadcast channel
type Scheduler struct {
	store     ScheduleStore
	publisher Publisher
	now       func() time.Time

	mu      sync.Mutex
	timers  map[uuid.UUID][]*time.Timer
	stopped bool
}

// NewScheduler creates a lifecycle scheduler
func NewScheduler(store ScheduleStore, publisher Publisher) *Scheduler {
	return &Scheduler{
		store:     store,
		publisher: publisher,
		now:       time.Now,
		timers:    make(map[uuid.UUID][]*time.Timer),
	}
}

// Start arms timers for every auction that has not ended yet
func (s *Scheduler) Start(ctx context.Context) error {
	items, err := s.store.ListAuctions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load auctions: %w", err)
	}
	for _, item := range items {
		s.Track(item)
	}
	log.Printf("Lifecycle scheduler tracking %d auctions", s.Pending())
	return nil
}

// Track arms start and end timers for item, replacing any previous ones
func (s *Scheduler) Track(item models.AuctionItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.disarm(item.ID)

	now := s.now()
	if Classify(now, item.StartTime, item.EndTime, 0) == PhaseEnded {
		return
	}

	var timers []*time.Timer
	if now.Before(item.StartTime) {
		timers = append(timers, time.AfterFunc(item.StartTime.Sub(now), func() {
			s.fire(item.ID, models.EventAuctionStarted)
		}))
	}
	var end *time.Timer
	end = time.AfterFunc(item.EndTime.Sub(now), func() {
		s.fire(item.ID, models.EventAuctionEnded)
		s.mu.Lock()
		defer s.mu.Unlock()
		// A Track that ran while firing owns the entry now
		for _, t := range s.timers[item.ID] {
			if t == end {
				delete(s.timers, item.ID)
				return
			}
		}
	})
	s.timers[item.ID] = append(timers, end)
}

// Forget disarms the timers of a removed auction
func (s *Scheduler) Forget(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarm(id)
}

// Pending returns the number of auctions with armed timers
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop disarms everything; later Track calls are ignored
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.timers {
		s.disarm(id)
	}
	s.stopped = true
}

func (s *Scheduler) disarm(id uuid.UUID) {
	for _, t := range s.timers[id] {
		t.Stop()
	}
	delete(s.timers, id)
}

func (s *Scheduler) fire(id uuid.UUID, eventType string) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Announce the authoritative state, not what was known when the timer was armed
	item, err := s.store.GetAuction(ctx, id)
	if err != nil {
		log.Printf("Lifecycle event %s for auction %s skipped: %v", eventType, id, err)
		return
	}

	event := models.AuctionEvent{
		Type:      eventType,
		EventID:   uuid.NewString(),
		ItemID:    id.String(),
		Amount:    item.CurrentPrice,
		Timestamp: s.now().UTC(),
	}
	if eventType == models.EventAuctionEnded && item.HighestBidderID != nil {
		event.BidderID = item.HighestBidderID.String()
	}
	s.publisher.Publish(event)
	log.Printf("Auction %s: %s at %.2f", id, eventType, item.CurrentPrice)
}
