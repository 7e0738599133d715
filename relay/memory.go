package relay

import (
	"context"
	"sync"

	"collabtext/core"
	"github.com/cornelk/hashmap"
)

const subscriptionBuffer = 256

// MemoryBroker fans frames out inside a single relay process.
type MemoryBroker struct {
	mu       sync.Mutex
	closed   bool
	rooms    map[string]map[*memorySubscription]bool
	presence *hashmap.HashMap
}

var _ Broker = &MemoryBroker{}

// NewMemoryBroker creates an empty broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		rooms:    make(map[string]map[*memorySubscription]bool),
		presence: hashmap.New(64),
	}
}

func (b *MemoryBroker) String() string {
	return "MemoryBroker"
}

type memorySubscription struct {
	b      *MemoryBroker
	room   string
	frames chan Frame
	closed bool
}

func (s *memorySubscription) Frames() <-chan Frame {
	return s.frames
}

func (s *memorySubscription) Close() error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.dropLocked(s)
	return nil
}

// Subscribe registers a new subscriber for room.
func (b *MemoryBroker) Subscribe(_ context.Context, room string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrokerClosed
	}
	s := &memorySubscription{b: b, room: room, frames: make(chan Frame, subscriptionBuffer)}
	if b.rooms[room] == nil {
		b.rooms[room] = make(map[*memorySubscription]bool)
	}
	b.rooms[room][s] = true
	return s, nil
}

// Publish delivers f to every subscriber of room. A subscriber whose buffer is
// full is dropped rather than allowed to stall the room.
func (b *MemoryBroker) Publish(_ context.Context, room string, f Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBrokerClosed
	}
	for s := range b.rooms[room] {
		select {
		case s.frames <- f:
		default:
			core.LogWarn(b, "Subscriber of room ", room, " is too slow - DROP")
			b.dropLocked(s)
		}
	}
	return nil
}

func (b *MemoryBroker) dropLocked(s *memorySubscription) {
	if s.closed {
		return
	}
	s.closed = true
	close(s.frames)
	delete(b.rooms[s.room], s)
	if len(b.rooms[s.room]) == 0 {
		delete(b.rooms, s.room)
	}
}

// Join counts a new connection in room and returns the new count.
func (b *MemoryBroker) Join(_ context.Context, room string) (int64, error) {
	return b.addPresence(room, 1), nil
}

// Leave removes a connection from room and returns the new count.
func (b *MemoryBroker) Leave(_ context.Context, room string) (int64, error) {
	return b.addPresence(room, -1), nil
}

func (b *MemoryBroker) addPresence(room string, delta int64) int64 {
	for {
		expected, ok := b.presence.GetStringKey(room)
		if !ok {
			if _, loaded := b.presence.GetOrInsert(room, delta); !loaded {
				return delta
			}
			continue
		}
		next := expected.(int64) + delta
		if b.presence.Cas(room, expected, next) {
			return next
		}
	}
}

// Close ends every subscription.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, subs := range b.rooms {
		for s := range subs {
			b.dropLocked(s)
		}
	}
	return nil
}
