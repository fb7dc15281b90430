package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/goali/auctions/internal/models"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNATSRelay(t *testing.T) *NATSRelay {
	t.Helper()
	srv := natsserver.RunRandClientPortServer()
	t.Cleanup(srv.Shutdown)

	relay, err := NewNATSRelay(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(func() { relay.Close() })
	return relay
}

func waitNATSReady(t *testing.T, relay *NATSRelay) {
	t.Helper()
	select {
	case <-relay.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("nats relay never subscribed")
	}
}

func TestNewNATSRelay_Unreachable(t *testing.T) {
	_, err := NewNATSRelay("nats://127.0.0.1:1")
	assert.Error(t, err)
}

func TestNATSRelay_FillsItemFromSubject(t *testing.T) {
	relay := newTestNATSRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan models.AuctionEvent, 2)
	go relay.Listen(ctx, func(e models.AuctionEvent) { received <- e })
	waitNATSReady(t, relay)

	require.NoError(t, relay.conn.Publish(natsSubjectPrefix+"item-9", []byte("not json")))
	require.NoError(t, relay.conn.Publish(natsSubjectPrefix+"item-9", []byte(`{"type":"new_bid","amount":12.5}`)))

	select {
	case e := <-received:
		assert.Equal(t, "item-9", e.ItemID)
		assert.Equal(t, 12.5, e.Amount)
	case <-time.After(2 * time.Second):
		t.Fatal("event not relayed")
	}
}

func TestNATSRelay_BroadcasterRoundTrip(t *testing.T) {
	relay := newTestNATSRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewBroadcaster(NewHub(DefaultBuffer), relay)
	sub := b.Subscribe("lot")
	defer sub.Close()
	other := b.Subscribe("other-lot")
	defer other.Close()
	go b.Run(ctx)
	waitNATSReady(t, relay)

	for i := 1; i <= 5; i++ {
		b.Publish(bidEvent("lot", float64(i)))
		b.Publish(bidEvent("other-lot", float64(i*10)))
	}
	for i := 1; i <= 5; i++ {
		assert.Equal(t, float64(i), receive(t, sub).Amount)
	}
	for i := 1; i <= 5; i++ {
		assert.Equal(t, float64(i*10), receive(t, other).Amount)
	}
}
