package crdt

import (
	"encoding/json"
	"errors"
	"fmt"
)

// entry is one (id, character) pair of a serialized store.
type entry struct {
	ID   string    `json:"id"`
	Char Character `json:"char"`
}

// Serialize encodes every record, tombstones included, as an ordered list of
// (id, character) pairs.
func (s *Store) Serialize() ([]byte, error) {
	return EncodeDelta(s.Characters()...)
}

// Deserialize rebuilds a store for site from a payload produced by Serialize
// or EncodeDelta. The clock starts past every clock seen in the payload.
func Deserialize(data []byte, site string) (*Store, error) {
	chars, err := DecodeDelta(data)
	if err != nil {
		return nil, err
	}
	s := NewStore(site)
	s.Join(chars...)
	return s, nil
}

// EncodeDelta encodes a handful of characters in the same format as Serialize,
// so a receiver can treat deltas and snapshots alike.
func EncodeDelta(chars ...Character) ([]byte, error) {
	entries := make([]entry, len(chars))
	for i, c := range chars {
		entries[i] = entry{ID: c.ID, Char: c}
	}
	return json.Marshal(entries)
}

// DecodeDelta parses and validates a payload. Any problem is reported as a
// *DeserializationError.
func DecodeDelta(data []byte) ([]Character, error) {
	var entries []entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &DeserializationError{Reason: "malformed payload", Err: err}
	}
	if entries == nil {
		return nil, malformed("payload is not a list")
	}
	chars := make([]Character, len(entries))
	for i, e := range entries {
		switch {
		case e.ID == "":
			return nil, malformed("entry %d: missing id", i)
		case e.ID != e.Char.ID:
			return nil, malformed("entry %d: id %q does not match character %q", i, e.ID, e.Char.ID)
		case len(e.Char.Position.Digits) == 0:
			return nil, malformed("entry %d: empty position", i)
		case !validValue(e.Char.Value):
			return nil, malformed("entry %d: invalid value %q", i, e.Char.Value)
		case e.Char.Position.Clock > MaxClock || e.Char.Version.Clock > MaxClock:
			return nil, malformed("entry %d: clock out of range", i)
		}
		if err := checkDigits(e.Char.Position.Digits); err != nil {
			return nil, malformed("entry %d: %v", i, err)
		}
		chars[i] = e.Char
	}
	return chars, nil
}

// checkDigits enforces the shape Between relies on: every digit after the
// leading one lies in [0, Base] and a multi-digit path never ends in 0.
func checkDigits(d []int) error {
	for _, v := range d[1:] {
		if v < 0 || v > Base {
			return fmt.Errorf("digit %d out of range", v)
		}
	}
	if len(d) > 1 && d[len(d)-1] == 0 {
		return errors.New("position ends in 0")
	}
	return nil
}
