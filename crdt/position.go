package crdt

import (
	"strconv"
	"strings"
)

// Base is the number of digit values available at each level of a Position.
// Digits below the leading one always fall in [0, Base].
const Base = 32

// Position is the sortable identifier that determines a character's place in
// the document. It is a path of digits plus the site and clock of the replica
// that allocated it. The site and clock only break ties between equal digit
// paths. A Position is never modified once it has been allocated.
type Position struct {
	Digits []int  `json:"digits"`
	Site   string `json:"site"`
	Clock  uint64 `json:"clock"`
}

// Compare returns -1, 0 or +1 depending on whether a sorts before, equal to or
// after b. Digits are compared element by element and a strict prefix sorts
// first; equal digit paths fall back to the site, then the clock.
func Compare(a, b Position) int {
	n := len(a.Digits)
	if len(b.Digits) < n {
		n = len(b.Digits)
	}
	for i := 0; i < n; i++ {
		switch {
		case a.Digits[i] < b.Digits[i]:
			return -1
		case a.Digits[i] > b.Digits[i]:
			return 1
		}
	}
	switch {
	case len(a.Digits) < len(b.Digits):
		return -1
	case len(a.Digits) > len(b.Digits):
		return 1
	}
	if c := strings.Compare(a.Site, b.Site); c != 0 {
		return c
	}
	switch {
	case a.Clock < b.Clock:
		return -1
	case a.Clock > b.Clock:
		return 1
	}
	return 0
}

// Less reports whether p sorts strictly before q.
func (p Position) Less(q Position) bool {
	return Compare(p, q) < 0
}

// SameDigits reports whether p and q share the same digit path, i.e. they are
// ordered only by their site and clock.
func (p Position) SameDigits(q Position) bool {
	if len(p.Digits) != len(q.Digits) {
		return false
	}
	for i := range p.Digits {
		if p.Digits[i] != q.Digits[i] {
			return false
		}
	}
	return true
}

func (p Position) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, d := range p.Digits {
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(strconv.Itoa(d))
	}
	sb.WriteString("]@")
	sb.WriteString(p.Site)
	sb.WriteByte(':')
	sb.WriteString(strconv.FormatUint(p.Clock, 10))
	return sb.String()
}
