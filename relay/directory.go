package relay

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// Room describes a room the relay has served. It holds no document content.
type Room struct {
	ID              string    `json:"id"`
	FirstSeen       time.Time `json:"firstSeen"`
	LastSeen        time.Time `json:"lastSeen"`
	PeakConnections int64     `json:"peakConnections"`
}

// Directory records which rooms are in use.
type Directory interface {
	// Touch marks room as active with the given number of connections.
	Touch(ctx context.Context, room string, connections int64) error
	// Rooms lists rooms, most recently active first.
	Rooms(ctx context.Context) ([]Room, error)
	Close()
}

// MemoryDirectory keeps the room list in process memory.
type MemoryDirectory struct {
	mu    sync.Mutex
	rooms map[string]*Room
	now   func() time.Time
}

var _ Directory = &MemoryDirectory{}

// NewMemoryDirectory creates an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{rooms: make(map[string]*Room), now: time.Now}
}

func (d *MemoryDirectory) Touch(_ context.Context, room string, connections int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	r, ok := d.rooms[room]
	if !ok {
		r = &Room{ID: room, FirstSeen: now}
		d.rooms[room] = r
	}
	r.LastSeen = now
	r.PeakConnections = max(r.PeakConnections, connections)
	return nil
}

func (d *MemoryDirectory) Rooms(context.Context) ([]Room, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		out = append(out, *r)
	}
	slices.SortFunc(out, func(a, b Room) int {
		if c := b.LastSeen.Compare(a.LastSeen); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (d *MemoryDirectory) Close() {}
