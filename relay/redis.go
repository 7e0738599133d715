package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"collabtext/core"
	"github.com/redis/go-redis/v9"
)

// RedisBroker fans frames out through Redis pub/sub so several relay processes
// can serve the same room. Presence counts live in Redis as well.
type RedisBroker struct {
	rdb *redis.Client
}

var _ Broker = &RedisBroker{}

// NewRedisBroker connects to the Redis server at addr.
func NewRedisBroker(ctx context.Context, addr string) (*RedisBroker, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return &RedisBroker{rdb: rdb}, nil
}

func (b *RedisBroker) String() string {
	return "RedisBroker"
}

func channelName(room string) string {
	return "collabtext:room:" + room
}

func presenceKey(room string) string {
	return "collabtext:presence:" + room
}

type redisSubscription struct {
	pubsub *redis.PubSub
	frames chan Frame
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) Frames() <-chan Frame {
	return s.frames
}

func (s *redisSubscription) Close() error {
	s.once.Do(func() { close(s.done) })
	return s.pubsub.Close()
}

// Subscribe listens on the room's channel. It returns once Redis has confirmed
// the subscription, so nothing published afterwards is missed.
func (b *RedisBroker) Subscribe(ctx context.Context, room string) (Subscription, error) {
	pubsub := b.rdb.Subscribe(ctx, channelName(room))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe to room %s: %w", room, err)
	}
	s := &redisSubscription{
		pubsub: pubsub,
		frames: make(chan Frame, subscriptionBuffer),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.frames)
		for msg := range pubsub.Channel() {
			var f Frame
			if err := json.Unmarshal([]byte(msg.Payload), &f); err != nil {
				core.LogWarn(b, "Ignoring malformed frame on ", msg.Channel, ": ", err)
				continue
			}
			select {
			case s.frames <- f:
			case <-s.done:
				return
			}
		}
	}()
	return s, nil
}

// Publish sends f to every subscriber of room on any relay process.
func (b *RedisBroker) Publish(ctx context.Context, room string, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channelName(room), data).Err()
}

// Join increments the room's connection count.
func (b *RedisBroker) Join(ctx context.Context, room string) (int64, error) {
	return b.rdb.Incr(ctx, presenceKey(room)).Result()
}

// Leave decrements the room's connection count.
func (b *RedisBroker) Leave(ctx context.Context, room string) (int64, error) {
	return b.rdb.Decr(ctx, presenceKey(room)).Result()
}

// Close closes the Redis client.
func (b *RedisBroker) Close() error {
	return b.rdb.Close()
}
