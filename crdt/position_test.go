package crdt_test

import (
	"math/rand"
	"slices"
	"testing"

	"collabtext/crdt"
	"github.com/stretchr/testify/require"
)

func pos(site string, clock uint64, digits ...int) crdt.Position {
	return crdt.Position{Digits: digits, Site: site, Clock: clock}
}

func TestCompare(t *testing.T) {
	// first differing digit decides
	require.Equal(t, -1, crdt.Compare(pos("B", 9, 1, 2), pos("A", 1, 1, 3)))
	require.Equal(t, 1, crdt.Compare(pos("A", 1, 2), pos("Z", 9, 1, 31)))

	// strict prefix sorts first
	require.Equal(t, -1, crdt.Compare(pos("Z", 9, 4), pos("A", 1, 4, 0)))
	require.Equal(t, 1, crdt.Compare(pos("A", 1, 4, 0), pos("Z", 9, 4)))

	// equal digits: site, then clock
	require.Equal(t, -1, crdt.Compare(pos("A", 9, 16), pos("B", 1, 16)))
	require.Equal(t, -1, crdt.Compare(pos("A", 1, 16), pos("A", 2, 16)))
	require.Equal(t, 0, crdt.Compare(pos("A", 2, 16, 3), pos("A", 2, 16, 3)))

	require.True(t, pos("A", 1, 3).Less(pos("A", 1, 3, 1)))
	require.False(t, pos("A", 1, 3).Less(pos("A", 1, 3)))
	require.True(t, pos("A", 1, 3, 1).SameDigits(pos("B", 7, 3, 1)))
	require.False(t, pos("A", 1, 3).SameDigits(pos("A", 1, 3, 1)))
	require.Equal(t, "[3.-1]@A:7", pos("A", 7, 3, -1).String())
}

func TestCompareTotalOrder(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	sites := []string{"A", "B", "C"}
	ps := make([]crdt.Position, 150)
	for i := range ps {
		digits := make([]int, 1+r.Intn(3))
		for j := range digits {
			digits[j] = r.Intn(4)
		}
		ps[i] = pos(sites[r.Intn(len(sites))], uint64(r.Intn(3)), digits...)
	}

	for _, a := range ps {
		require.Equal(t, 0, crdt.Compare(a, a))
		for _, b := range ps {
			require.Equal(t, crdt.Compare(a, b), -crdt.Compare(b, a))
		}
	}

	sorted := slices.Clone(ps)
	slices.SortFunc(sorted, crdt.Compare)
	for i := range sorted {
		for j := i + 1; j < len(sorted); j++ {
			require.LessOrEqual(t, crdt.Compare(sorted[i], sorted[j]), 0)
		}
	}
}
