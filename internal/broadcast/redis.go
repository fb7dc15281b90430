package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/goali/auctions/internal/models"

	"github.com/redis/go-redis/v9"
)

const redisChannelPrefix = "bid_events:"

// RedisRelay fans events out through Redis Pub/Sub, one channel per auction
type RedisRelay struct {
	client    *redis.Client
	ready     chan struct{}
	readyOnce sync.Once
}

// NewRedisRelay connects to Redis
func NewRedisRelay(addr, password string, db int) (*RedisRelay, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return newRedisRelay(rdb), nil
}

func newRedisRelay(rdb *redis.Client) *RedisRelay {
	return &RedisRelay{client: rdb, ready: make(chan struct{})}
}

// Publish sends event on the auction's channel
func (r *RedisRelay) Publish(ctx context.Context, event models.AuctionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return r.client.Publish(ctx, redisChannelPrefix+event.ItemID, payload).Err()
}

// Listen pattern-subscribes to every auction channel
func (r *RedisRelay) Listen(ctx context.Context, deliver func(models.AuctionEvent)) error {
	pubsub := r.client.PSubscribe(ctx, redisChannelPrefix+"*")
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reporting ready
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	r.readyOnce.Do(func() { close(r.ready) })

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event models.AuctionEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("broadcast: ignoring malformed message on %s: %v", msg.Channel, err)
				continue
			}
			if event.ItemID == "" {
				event.ItemID = strings.TrimPrefix(msg.Channel, redisChannelPrefix)
			}
			deliver(event)
		}
	}
}

// Ready is closed once Listen's subscription is live
func (r *RedisRelay) Ready() <-chan struct{} { return r.ready }

// Close closes the Redis connection
func (r *RedisRelay) Close() error {
	return r.client.Close()
}
