// Package crdt implements a sequence CRDT for collaborative text.
//
// Every character carries a Position drawn from a dense total order, so a new
// character can always be placed between two existing ones without touching
// its neighbours. Deleted characters stay in the store as tombstones, which
// lets replicas that saw operations in different orders merge into the same
// document.
//
// A Store is not safe for concurrent use; a replica hosting one must serialise
// its calls.
package crdt

import (
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Store owns the characters of one replica, visible and tombstoned, keyed by
// character ID.
type Store struct {
	alloc *Allocator
	chars map[string]*Character
}

// NewStore returns an empty store whose positions are stamped with site.
func NewStore(site string) *Store {
	return &Store{
		alloc: NewAllocator(site, 0),
		chars: make(map[string]*Character),
	}
}

// Site returns the replica's site identifier.
func (s *Store) Site() string {
	return s.alloc.Site()
}

// Clock returns the replica's logical clock.
func (s *Store) Clock() uint64 {
	return s.alloc.Clock()
}

// Observe advances the logical clock to at least clock, e.g. when a replica
// restarts with a persisted high-water mark.
func (s *Store) Observe(clock uint64) {
	s.alloc.Observe(clock)
}

// Len returns the number of records, tombstones included.
func (s *Store) Len() int {
	return len(s.chars)
}

// Get returns the character with the given id, tombstones included.
func (s *Store) Get(id string) (Character, bool) {
	c, ok := s.chars[id]
	if !ok {
		return Character{}, false
	}
	return *c.clone(), true
}

// Insert places value between the characters prevID and nextID and returns the
// new character. When only one neighbour is known, the character goes right
// next to it; an empty or unknown id on both sides stands for an empty
// document.
func (s *Store) Insert(value, prevID, nextID string, patches ...MetadataPatch) (Character, error) {
	if !validValue(value) {
		return Character{}, ErrInvalidValue
	}
	prev := s.position(prevID)
	next := s.position(nextID)
	switch {
	case prev != nil && next == nil:
		next = s.successor(*prev)
	case prev == nil && next != nil:
		prev = s.predecessor(*next)
	}

	pos := s.alloc.Between(prev, next)
	// prev and next could not be split; settle right after next instead.
	for next != nil && !pos.Less(*next) {
		prev = next
		next = s.successor(*prev)
		pos = s.alloc.Between(prev, next)
	}

	var meta Metadata
	for _, p := range patches {
		meta = meta.apply(p)
	}
	c := &Character{
		ID:       newCharacterID(),
		Value:    value,
		Position: pos,
		Meta:     meta,
		Version:  Stamp{Clock: pos.Clock, Site: pos.Site},
	}
	s.chars[c.ID] = c
	return *c.clone(), nil
}

// Delete tombstones the character with the given id. Deleting a tombstone is a
// no-op.
func (s *Store) Delete(id string) error {
	c, ok := s.chars[id]
	if !ok {
		return unknownCharacter(id)
	}
	if c.Meta.Deleted {
		return nil
	}
	c.Meta.Deleted = true
	c.Version = s.stamp()
	return nil
}

// UpdateMetadata merges the non-nil fields of patch into the character's
// metadata. A tombstone stays deleted whatever the patch says.
func (s *Store) UpdateMetadata(id string, patch MetadataPatch) error {
	c, ok := s.chars[id]
	if !ok {
		return unknownCharacter(id)
	}
	meta := c.Meta.apply(patch)
	if meta == c.Meta {
		return nil
	}
	c.Meta = meta
	c.Version = s.stamp()
	return nil
}

// Text returns the visible characters in document order.
func (s *Store) Text() []Character {
	out := make([]Character, 0, len(s.chars))
	for _, c := range s.chars {
		if !c.Meta.Deleted {
			out = append(out, *c.clone())
		}
	}
	sortCharacters(out)
	return out
}

// Characters returns every record, tombstones included, in document order.
func (s *Store) Characters() []Character {
	out := make([]Character, 0, len(s.chars))
	for _, c := range s.chars {
		out = append(out, *c.clone())
	}
	sortCharacters(out)
	return out
}

// String renders the visible text.
func (s *Store) String() string {
	var sb strings.Builder
	for _, c := range s.Text() {
		sb.WriteString(c.Value)
	}
	return sb.String()
}

// Digest hashes the visible text together with its formatting. Two stores with
// the same rendered output have the same digest.
func (s *Store) Digest() uint64 {
	h := xxhash.New()
	for _, c := range s.Text() {
		_, _ = h.WriteString(c.Value)
		_, _ = h.Write([]byte{0, byte(c.Meta.formatBits())})
	}
	return h.Sum64()
}

func (s *Store) stamp() Stamp {
	return Stamp{Clock: s.alloc.tick(), Site: s.alloc.Site()}
}

func (s *Store) position(id string) *Position {
	if id == "" {
		return nil
	}
	c, ok := s.chars[id]
	if !ok {
		return nil
	}
	p := c.Position
	return &p
}

// successor returns the smallest position strictly after p, or nil.
func (s *Store) successor(p Position) *Position {
	var best *Position
	for _, c := range s.chars {
		if !p.Less(c.Position) {
			continue
		}
		if best == nil || c.Position.Less(*best) {
			q := c.Position
			best = &q
		}
	}
	return best
}

// predecessor returns the greatest position strictly before p, or nil.
func (s *Store) predecessor(p Position) *Position {
	var best *Position
	for _, c := range s.chars {
		if !c.Position.Less(p) {
			continue
		}
		if best == nil || best.Less(c.Position) {
			q := c.Position
			best = &q
		}
	}
	return best
}

func sortCharacters(cs []Character) {
	slices.SortFunc(cs, func(a, b Character) int {
		return Compare(a.Position, b.Position)
	})
}
