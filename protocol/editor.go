package protocol

import (
	"collabtext/crdt"
)

// Editor command actions.
const (
	ActionInsert = "insert"
	ActionDelete = "delete"
	ActionFormat = "format"
)

// Command is sent by the editing surface to its local agent.
type Command struct {
	Action string `json:"action"`
	// insert
	Value  string `json:"value,omitempty"`
	PrevID string `json:"prevId,omitempty"`
	NextID string `json:"nextId,omitempty"`
	// delete, format
	ID string `json:"id,omitempty"`
	// insert, format
	Bold   *bool `json:"bold,omitempty"`
	Italic *bool `json:"italic,omitempty"`
}

// Patch returns the formatting part of c.
func (c Command) Patch() crdt.MetadataPatch {
	return crdt.MetadataPatch{Bold: c.Bold, Italic: c.Italic}
}

// Span is one visible character as the editing surface renders it.
type Span struct {
	ID     string `json:"id"`
	Value  string `json:"value"`
	Bold   bool   `json:"bold"`
	Italic bool   `json:"italic"`
}

// Render is pushed to the editing surface after every local or merged change.
type Render struct {
	Room   string `json:"room"`
	Site   string `json:"site"`
	Peers  int64  `json:"peers"`
	Digest uint64 `json:"digest"`
	Spans  []Span `json:"spans"`
	Error  string `json:"error,omitempty"`
}

// Spans converts visible characters into render spans.
func Spans(text []crdt.Character) []Span {
	out := make([]Span, len(text))
	for i, c := range text {
		out[i] = Span{ID: c.ID, Value: c.Value, Bold: c.Meta.Bold, Italic: c.Meta.Italic}
	}
	return out
}
