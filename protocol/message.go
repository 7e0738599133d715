// Package protocol defines the messages exchanged between replicas, the relay
// and the editing surface.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Message types carried by the relay.
const (
	TypeDocUpdate  = "doc-update"
	TypeUserJoined = "user-joined"
	TypeUserLeft   = "user-left"
)

// Error definitions
var (
	ErrUnknownType = errors.New("unknown message type")
	ErrMissingRoom = errors.New("message has no room id")
)

// Message is the envelope the relay forwards between the connections of a
// room. Content is opaque to the relay: a serialized store or delta for
// doc-update, the room's connection count for presence messages.
type Message struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	RoomID  string `json:"roomId"`
}

// DocUpdate wraps a serialized store or delta for room.
func DocUpdate(room string, payload []byte) Message {
	return Message{Type: TypeDocUpdate, Content: string(payload), RoomID: room}
}

// Presence builds a user-joined or user-left message carrying count.
func Presence(typ, room string, count int64) Message {
	return Message{Type: typ, Content: strconv.FormatInt(count, 10), RoomID: room}
}

// Count parses the connection count of a presence message.
func (m Message) Count() (int64, error) {
	if m.Type != TypeUserJoined && m.Type != TypeUserLeft {
		return 0, fmt.Errorf("%s message carries no presence count", m.Type)
	}
	return strconv.ParseInt(m.Content, 10, 64)
}

// Validate checks the type and room of m.
func (m Message) Validate() error {
	switch m.Type {
	case TypeDocUpdate, TypeUserJoined, TypeUserLeft:
	default:
		return fmt.Errorf("%w %q", ErrUnknownType, m.Type)
	}
	if m.RoomID == "" {
		return ErrMissingRoom
	}
	return nil
}

// Encode marshals m.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Decode unmarshals and validates a message.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
