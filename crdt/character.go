package crdt

import (
	"github.com/google/uuid"
	"github.com/rivo/uniseg"
)

// Metadata holds the mutable formatting state of a character. Deleted is a
// tombstone flag: once set it is never cleared.
type Metadata struct {
	Bold    bool `json:"bold"`
	Italic  bool `json:"italic"`
	Deleted bool `json:"deleted"`
}

// MetadataPatch is a partial Metadata update. Nil fields are left untouched.
type MetadataPatch struct {
	Bold    *bool `json:"bold,omitempty"`
	Italic  *bool `json:"italic,omitempty"`
	Deleted *bool `json:"deleted,omitempty"`
}

func (m Metadata) apply(p MetadataPatch) Metadata {
	if p.Bold != nil {
		m.Bold = *p.Bold
	}
	if p.Italic != nil {
		m.Italic = *p.Italic
	}
	if p.Deleted != nil && *p.Deleted {
		m.Deleted = true
	}
	return m
}

// formatBits packs the formatting flags, leaving out the tombstone.
func (m Metadata) formatBits() int {
	b := 0
	if m.Bold {
		b |= 1
	}
	if m.Italic {
		b |= 2
	}
	return b
}

// Stamp versions a character's metadata. It is ordered by clock, then site.
type Stamp struct {
	Clock uint64 `json:"clock"`
	Site  string `json:"site"`
}

// Less reports whether s is an older version than t.
func (s Stamp) Less(t Stamp) bool {
	if s.Clock != t.Clock {
		return s.Clock < t.Clock
	}
	return s.Site < t.Site
}

// Character is a single text unit in the document. Its ID is a random UUID
// and is unrelated to its Position, which alone decides where it renders.
type Character struct {
	ID       string   `json:"id"`
	Value    string   `json:"value"`
	Position Position `json:"position"`
	Meta     Metadata `json:"meta"`
	Version  Stamp    `json:"version"`
}

// Deleted reports whether c is a tombstone.
func (c Character) Deleted() bool {
	return c.Meta.Deleted
}

func (c Character) clone() *Character {
	c.Position.Digits = cloneDigits(c.Position.Digits)
	return &c
}

func newCharacterID() string {
	return uuid.NewString()
}

// validValue reports whether v is exactly one user-perceived character.
func validValue(v string) bool {
	return v != "" && uniseg.GraphemeClusterCount(v) == 1
}
