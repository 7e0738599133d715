package crdt

// BoundaryStep is how far the leading digit moves when an insertion at either
// end of the document finds it already at the edge of the digit range.
const BoundaryStep = 8

// MaxClock is the largest clock value a replica accepts from a peer. It leaves
// room to keep ticking without wrapping around.
const MaxClock = 1 << 62

// Allocator mints positions for one site. Every position it returns carries a
// fresh, strictly increasing clock value, so two positions from the same
// allocator are never equal.
type Allocator struct {
	site  string
	clock uint64
}

// NewAllocator returns an allocator for site whose next tick will be clock+1.
func NewAllocator(site string, clock uint64) *Allocator {
	return &Allocator{site: site, clock: clock}
}

// Site returns the site identifier stamped on every allocated position.
func (a *Allocator) Site() string {
	return a.site
}

// Clock returns the last clock value handed out.
func (a *Allocator) Clock() uint64 {
	return a.clock
}

// Observe advances the clock past a value seen on a remote replica. The clock
// never moves backwards.
func (a *Allocator) Observe(clock uint64) {
	if clock > a.clock {
		a.clock = clock
	}
}

func (a *Allocator) tick() uint64 {
	a.clock++
	return a.clock
}

// Between returns a position that sorts strictly after prev and strictly
// before next. A nil prev stands for the start of the document and a nil next
// for its end.
//
// When prev and next share the same digits and differ only by site and clock,
// nothing with a different digit path fits between them. Between then tries
// the allocator's own stamp on the shared digits; if that does not fit either,
// the result sorts after next and callers must check it with Less.
func (a *Allocator) Between(prev, next *Position) Position {
	if prev != nil && len(prev.Digits) == 0 {
		prev = nil
	}
	if next != nil && len(next.Digits) == 0 {
		next = nil
	}

	var digits []int
	switch {
	case prev == nil && next == nil:
		digits = []int{Base / 2}
	case prev == nil:
		digits = []int{decrementLead(next.Digits[0])}
	case next == nil:
		digits = []int{incrementLead(prev.Digits[0])}
	case prev.SameDigits(*next):
		p := Position{Digits: cloneDigits(prev.Digits), Site: a.site, Clock: a.tick()}
		if prev.Less(p) && p.Less(*next) {
			return p
		}
		digits = midpoint(prev.Digits, nil)
	default:
		digits = midpoint(prev.Digits, next.Digits)
	}
	return Position{Digits: digits, Site: a.site, Clock: a.tick()}
}

func decrementLead(d int) int {
	if d <= 1 {
		return d - BoundaryStep
	}
	return d - 1
}

func incrementLead(d int) int {
	if d >= Base-1 {
		return d + BoundaryStep
	}
	return d + 1
}

// midpoint walks prev and next level by level. An exhausted prev reads as 0 and
// an exhausted next as Base. The first level with room for a digit strictly
// between the two ends the walk; otherwise prev's digit is kept and the walk
// goes one level deeper. Once the kept prefix already sorts below next, only
// prev constrains the remaining levels.
func midpoint(prev, next []int) []int {
	digits := make([]int, 0, len(prev)+1)
	bounded := true
	for i := 0; ; i++ {
		lo := 0
		if i < len(prev) {
			lo = prev[i]
		}
		hi := Base
		if bounded && i < len(next) {
			hi = next[i]
		}
		if hi-lo > 1 {
			return append(digits, lo+(hi-lo)/2)
		}
		digits = append(digits, lo)
		if lo < hi {
			bounded = false
		}
	}
}

func cloneDigits(d []int) []int {
	out := make([]int, len(d))
	copy(out, d)
	return out
}
