package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goali/auctions/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopbackRelay hands every published event back to its listener
type loopbackRelay struct {
	mu        sync.Mutex
	published []models.AuctionEvent
	ch        chan models.AuctionEvent
	failNext  bool
}

func newLoopbackRelay() *loopbackRelay {
	return &loopbackRelay{ch: make(chan models.AuctionEvent, 16)}
}

func (l *loopbackRelay) Publish(ctx context.Context, event models.AuctionEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failNext {
		l.failNext = false
		return errors.New("relay down")
	}
	l.published = append(l.published, event)
	l.ch <- event
	return nil
}

func (l *loopbackRelay) Listen(ctx context.Context, deliver func(models.AuctionEvent)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-l.ch:
			deliver(event)
		}
	}
}

func (l *loopbackRelay) Close() error { return nil }

// flakyRelay fails its first Listen calls before behaving like loopbackRelay
type flakyRelay struct {
	*loopbackRelay
	mu       sync.Mutex
	failures int
	listens  int
}

func (f *flakyRelay) Listen(ctx context.Context, deliver func(models.AuctionEvent)) error {
	f.mu.Lock()
	f.listens++
	fail := f.listens <= f.failures
	f.mu.Unlock()
	if fail {
		return errors.New("subscription lost")
	}
	return f.loopbackRelay.Listen(ctx, deliver)
}

func (f *flakyRelay) attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listens
}

func receive(t *testing.T, sub *Subscription) models.AuctionEvent {
	t.Helper()
	select {
	case event := <-sub.C():
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return models.AuctionEvent{}
	}
}

func TestBroadcaster_LocalDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewBroadcaster(NewHub(DefaultBuffer), nil)
	go b.Run(ctx)

	sub := b.Subscribe("lot-1")
	defer sub.Close()
	other := b.Subscribe("lot-2")
	defer other.Close()

	for i := 1; i <= 10; i++ {
		b.Publish(bidEvent("lot-1", float64(i)))
	}
	for i := 1; i <= 10; i++ {
		assert.Equal(t, float64(i), receive(t, sub).Amount)
	}
	assert.Len(t, other.C(), 0)
}

func TestBroadcaster_PublishNeverBlocks(t *testing.T) {
	// Nothing drains the queue; Publish must still return
	b := NewBroadcaster(NewHub(1), nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultQueueSize+10; i++ {
			b.Publish(bidEvent("lot", float64(i)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full queue")
	}
	assert.Len(t, b.queue, defaultQueueSize)
}

func TestBroadcaster_ThroughRelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relay := newLoopbackRelay()
	b := NewBroadcaster(NewHub(DefaultBuffer), relay)
	go b.Run(ctx)

	sub := b.Subscribe("lot")
	defer sub.Close()

	relay.mu.Lock()
	relay.failNext = true
	relay.mu.Unlock()

	b.Publish(bidEvent("lot", 1))
	b.Publish(bidEvent("lot", 2))
	b.Publish(bidEvent("lot", 3))

	// The failed publish is lost; the rest arrive in order
	assert.Equal(t, 2.0, receive(t, sub).Amount)
	assert.Equal(t, 3.0, receive(t, sub).Amount)

	relay.mu.Lock()
	defer relay.mu.Unlock()
	require.Len(t, relay.published, 2)
}

func TestBroadcaster_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := NewBroadcaster(NewHub(DefaultBuffer), newLoopbackRelay())

	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestBroadcaster_RetriesRelayListener(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relay := &flakyRelay{loopbackRelay: newLoopbackRelay(), failures: 3}
	b := NewBroadcaster(NewHub(DefaultBuffer), relay)
	b.minBackoff = time.Millisecond
	b.maxBackoff = 4 * time.Millisecond
	go b.Run(ctx)

	sub := b.Subscribe("lot-1")
	defer sub.Close()

	require.Eventually(t, func() bool { return relay.attempts() == 4 }, 2*time.Second, time.Millisecond)
	b.Publish(bidEvent("lot-1", 10))
	assert.Equal(t, 10.0, receive(t, sub).Amount)
}
