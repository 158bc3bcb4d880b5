package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

// Notifier publishes change events for an auction. The write path calls it
// after every lock/auction mutation.
type Notifier interface {
	Publish(ctx context.Context, event ChangeEvent) error
}

const (
	channelPrefix = "auction_events:"
	seqKeyPrefix  = "auction_events_seq:"
)

// RedisNotifier publishes change events to a per-auction Redis pub/sub
// channel. Seq numbers come from a Redis counter per auction, so they survive
// restarts and stay monotonic across server instances.
type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(addr, password string, db int) (*RedisNotifier, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("error connecting to redis: %w", err)
	}

	return &RedisNotifier{client: client}, nil
}

func (n *RedisNotifier) Publish(ctx context.Context, event ChangeEvent) error {
	seq, err := n.client.Incr(ctx, seqKeyPrefix+event.AuctionID).Result()
	if err != nil {
		return fmt.Errorf("error allocating event seq: %w", err)
	}
	event.Seq = uint64(seq)

	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("error marshalling change event: %w", err)
	}

	channel := channelPrefix + event.AuctionID
	if err := n.client.Publish(ctx, channel, raw).Err(); err != nil {
		return fmt.Errorf("error publishing change event: %w", err)
	}
	return nil
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

// Subscribe listens on all auction event channels and hands each decoded
// event to deliver. It returns when ctx is cancelled. Run it in a goroutine
// next to the websocket hub.
func (n *RedisNotifier) Subscribe(ctx context.Context, deliver func(ChangeEvent)) error {
	pubsub := n.client.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Errorf("Discarding malformed change event: %v", err)
				continue
			}
			deliver(event)
		}
	}
}
