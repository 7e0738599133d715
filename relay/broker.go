// Package relay forwards protocol messages between the connections of a room.
// It never looks inside a document: a message received from one connection is
// broadcast verbatim to every other connection in the same room.
package relay

import (
	"context"
	"errors"
)

// ErrBrokerClosed is returned once a broker has been closed.
var ErrBrokerClosed = errors.New("broker closed")

// Frame is a message in flight through a broker. Origin names the connection
// that sent it so the sender can skip its own frames.
type Frame struct {
	Origin string `json:"origin"`
	Data   []byte `json:"data"`
}

// Subscription delivers the frames published to one room.
type Subscription interface {
	// Frames is closed when the subscription ends.
	Frames() <-chan Frame
	Close() error
}

// Broker fans frames out to every subscriber of a room and keeps a
// per-room connection count.
type Broker interface {
	Subscribe(ctx context.Context, room string) (Subscription, error)
	Publish(ctx context.Context, room string, f Frame) error
	Join(ctx context.Context, room string) (int64, error)
	Leave(ctx context.Context, room string) (int64, error)
	Close() error
}
