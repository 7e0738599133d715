package crdt

// Merge joins local and remote into a new store that keeps local's site. The
// result depends only on the union of records, never on which side they came
// from or in what order stores were merged.
func Merge(local, remote *Store) *Store {
	out := NewStore(local.Site())
	out.Observe(local.Clock())
	out.Join(local.records()...)
	out.Join(remote.records()...)
	return out
}

// Join folds remote records into s and returns how many records were added or
// changed. It accepts a single delta or a full snapshot alike.
func (s *Store) Join(chars ...Character) int {
	changed := 0
	for _, c := range chars {
		s.alloc.Observe(c.Position.Clock)
		s.alloc.Observe(c.Version.Clock)

		cur, ok := s.chars[c.ID]
		if !ok {
			s.chars[c.ID] = c.clone()
			changed++
			continue
		}
		w := resolve(*cur, c)
		if !sameRecord(w, *cur) {
			s.chars[c.ID] = w.clone()
			changed++
		}
	}
	return changed
}

func (s *Store) records() []Character {
	out := make([]Character, 0, len(s.chars))
	for _, c := range s.chars {
		out = append(out, *c)
	}
	return out
}

// resolve picks between two records with the same id. The greater position
// wins outright. Equal positions are the same character seen twice and the
// formatting comes from the newer version. Either way the tombstone flag is
// OR-ed.
func resolve(a, b Character) Character {
	w := a
	switch c := Compare(a.Position, b.Position); {
	case c < 0:
		w = b
	case c == 0 && newer(b, a):
		w = b
	}
	w.Meta.Deleted = a.Meta.Deleted || b.Meta.Deleted
	return w
}

// newer reports whether b's metadata supersedes a's. Ties on the version fall
// through to the formatting bits and then the value so the choice is total.
func newer(b, a Character) bool {
	if a.Version != b.Version {
		return a.Version.Less(b.Version)
	}
	if fa, fb := a.Meta.formatBits(), b.Meta.formatBits(); fa != fb {
		return fa < fb
	}
	return a.Value < b.Value
}

func sameRecord(a, b Character) bool {
	return a.ID == b.ID &&
		a.Value == b.Value &&
		a.Meta == b.Meta &&
		a.Version == b.Version &&
		Compare(a.Position, b.Position) == 0
}
