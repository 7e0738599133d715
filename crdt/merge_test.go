package crdt_test

import (
	"fmt"
	"math/rand"
	"testing"

	"collabtext/crdt"
	"github.com/stretchr/testify/require"
)

// view renders the visible document with its formatting flags.
func view(s *crdt.Store) []string {
	text := s.Text()
	out := make([]string, len(text))
	for i, c := range text {
		out[i] = fmt.Sprintf("%s%t%t", c.Value, c.Meta.Bold, c.Meta.Italic)
	}
	return out
}

// randomEdits performs n random inserts, deletes and formatting changes on s.
func randomEdits(t *testing.T, r *rand.Rand, s *crdt.Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		text := s.Text()
		switch op := r.Intn(10); {
		case op < 6 || len(text) == 0:
			k := r.Intn(len(text) + 1)
			prev, next := "", ""
			if k > 0 {
				prev = text[k-1].ID
			}
			if k < len(text) {
				next = text[k].ID
			}
			_, err := s.Insert(string(rune('a'+r.Intn(26))), prev, next)
			require.NoError(t, err)
		case op < 8:
			require.NoError(t, s.Delete(text[r.Intn(len(text))].ID))
		default:
			patch := crdt.MetadataPatch{Bold: ptr(r.Intn(2) == 0), Italic: ptr(r.Intn(2) == 0)}
			require.NoError(t, s.UpdateMetadata(text[r.Intn(len(text))].ID, patch))
		}
	}
}

// replicas builds n replicas that share some history and then diverge.
func replicas(t *testing.T, seed int64, n int) []*crdt.Store {
	r := rand.New(rand.NewSource(seed))
	stores := make([]*crdt.Store, n)
	for i := range stores {
		stores[i] = crdt.NewStore(fmt.Sprintf("site-%d", i))
		randomEdits(t, r, stores[i], 20)
	}
	// partial sync: everyone learns replica 0's state
	for i := 1; i < n; i++ {
		stores[i] = crdt.Merge(stores[i], stores[0])
	}
	for i := range stores {
		randomEdits(t, r, stores[i], 30)
	}
	return stores
}

func TestMergeSemilattice(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		rs := replicas(t, seed, 3)
		a, b, c := rs[0], rs[1], rs[2]

		// commutative
		ab, ba := crdt.Merge(a, b), crdt.Merge(b, a)
		require.Equal(t, view(ab), view(ba), "seed %d", seed)
		require.Equal(t, ab.Characters(), ba.Characters(), "seed %d", seed)

		// associative
		left := crdt.Merge(crdt.Merge(a, b), c)
		right := crdt.Merge(a, crdt.Merge(b, c))
		require.Equal(t, view(left), view(right), "seed %d", seed)
		require.Equal(t, left.Characters(), right.Characters(), "seed %d", seed)

		// idempotent
		require.Equal(t, view(a), view(crdt.Merge(a, a)), "seed %d", seed)
		require.Equal(t, a.Characters(), crdt.Merge(a, a).Characters(), "seed %d", seed)
		require.Equal(t, view(ab), view(crdt.Merge(ab, b)), "seed %d", seed)
	}
}

func TestMergeKeepsLocalSite(t *testing.T) {
	a := crdt.NewStore("A")
	b := crdt.NewStore("B")
	typeText(t, a, "abc")
	typeText(t, b, "de")

	m := crdt.Merge(a, b)
	require.Equal(t, "A", m.Site())
	require.Equal(t, uint64(3), m.Clock())
	require.Equal(t, 5, m.Len())

	// the inputs are untouched
	require.Equal(t, "abc", a.String())
	require.Equal(t, "de", b.String())
}

func TestConvergence(t *testing.T) {
	r := rand.New(rand.NewSource(99))
	const n = 4
	stores := make([]*crdt.Store, n)
	for i := range stores {
		stores[i] = crdt.NewStore(fmt.Sprintf("r%d", i))
		randomEdits(t, r, stores[i], 25)
	}

	var all []crdt.Character
	for _, s := range stores {
		all = append(all, s.Characters()...)
	}

	// each replica joins everyone's records in its own shuffled order
	var want []string
	for i, s := range stores {
		shuffled := append([]crdt.Character(nil), all...)
		r.Shuffle(len(shuffled), func(x, y int) { shuffled[x], shuffled[y] = shuffled[y], shuffled[x] })
		s.Join(shuffled...)
		if i == 0 {
			want = view(s)
			continue
		}
		require.Equal(t, want, view(s))
	}

	// pairwise merges in either direction land on the same document
	fresh := make([]*crdt.Store, n)
	for i := range fresh {
		fresh[i] = crdt.NewStore(fmt.Sprintf("f%d", i))
		randomEdits(t, r, fresh[i], 25)
	}
	forward := fresh[0]
	for _, s := range fresh[1:] {
		forward = crdt.Merge(forward, s)
	}
	backward := fresh[n-1]
	for i := n - 2; i >= 0; i-- {
		backward = crdt.Merge(fresh[i], backward)
	}
	require.Equal(t, view(forward), view(backward))
	require.Equal(t, forward.Digest(), backward.Digest())
}

func TestTombstoneSurvivesMerge(t *testing.T) {
	a := crdt.NewStore("A")
	cs := typeText(t, a, "abc")

	b := crdt.Merge(crdt.NewStore("B"), a)
	c := crdt.Merge(crdt.NewStore("C"), a)
	require.Equal(t, "abc", b.String())

	// B deletes after syncing while A concurrently formats the same character
	require.NoError(t, b.Delete(cs[1].ID))
	require.NoError(t, a.UpdateMetadata(cs[1].ID, crdt.MetadataPatch{Bold: ptr(true)}))

	for _, s := range []*crdt.Store{crdt.Merge(a, b), crdt.Merge(b, a), crdt.Merge(c, b), crdt.Merge(crdt.Merge(c, a), b)} {
		require.Equal(t, "ac", s.String())
		got, ok := s.Get(cs[1].ID)
		require.True(t, ok)
		require.True(t, got.Deleted())
	}

	// an older copy never resurrects the character
	stale := crdt.Merge(crdt.NewStore("D"), a)
	require.Equal(t, 1, stale.Join(mustGet(t, b, cs[1].ID)))
	require.Equal(t, 0, stale.Join(cs[1]))
	require.Equal(t, "ac", stale.String())
}

func TestTombstoneSurvivesConflictingPositions(t *testing.T) {
	a := crdt.NewStore("A")
	c := typeText(t, a, "c")[0]
	require.NoError(t, a.Delete(c.ID))
	dead := mustGet(t, a, c.ID)

	// a forged live copy with a greater position must not bring it back
	live := c
	live.Position = crdt.Position{Digits: []int{30}, Site: "Z", Clock: 99}
	for _, order := range [][]crdt.Character{{dead, live}, {live, dead}} {
		s := crdt.NewStore("B")
		s.Join(order...)
		got := mustGet(t, s, c.ID)
		require.True(t, got.Deleted())
		require.Equal(t, live.Position, got.Position)
		require.Empty(t, s.String())
	}
}

func TestMetadataLastWriterWins(t *testing.T) {
	a := crdt.NewStore("A")
	cs := typeText(t, a, "x")
	b := crdt.Merge(crdt.NewStore("B"), a)

	require.NoError(t, a.UpdateMetadata(cs[0].ID, crdt.MetadataPatch{Bold: ptr(true)}))
	b = crdt.Merge(b, a)
	require.True(t, b.Text()[0].Meta.Bold)

	// B saw the bold and removes it: the later version wins everywhere
	require.NoError(t, b.UpdateMetadata(cs[0].ID, crdt.MetadataPatch{Bold: ptr(false)}))
	require.False(t, crdt.Merge(a, b).Text()[0].Meta.Bold)
	require.False(t, crdt.Merge(b, a).Text()[0].Meta.Bold)

	// concurrent changes resolve the same way in both directions
	require.NoError(t, a.UpdateMetadata(cs[0].ID, crdt.MetadataPatch{Italic: ptr(true)}))
	require.NoError(t, b.UpdateMetadata(cs[0].ID, crdt.MetadataPatch{Bold: ptr(true)}))
	require.Equal(t, view(crdt.Merge(a, b)), view(crdt.Merge(b, a)))
}

func TestJoinCountsChanges(t *testing.T) {
	a := crdt.NewStore("A")
	cs := typeText(t, a, "ab")
	b := crdt.NewStore("B")

	require.Equal(t, 2, b.Join(a.Characters()...))
	require.Equal(t, 0, b.Join(a.Characters()...))
	require.Equal(t, "ab", b.String())
	require.Equal(t, a.Clock(), b.Clock())

	require.NoError(t, a.Delete(cs[0].ID))
	require.Equal(t, 1, b.Join(a.Characters()...))
	require.Equal(t, "b", b.String())

	// the local clock moved past everything seen, so new positions stay unique
	c, err := b.Insert("c", cs[1].ID, "")
	require.NoError(t, err)
	require.Greater(t, c.Position.Clock, a.Clock())
}

func TestConcreteScenario(t *testing.T) {
	a := crdt.NewStore("A")
	h, err := a.Insert("h", "", "")
	require.NoError(t, err)
	i, err := a.Insert("i", h.ID, "")
	require.NoError(t, err)
	require.True(t, h.Position.Less(i.Position))

	b := crdt.NewStore("B")
	_, err = b.Insert("x", "", "")
	require.NoError(t, err)

	ab := crdt.Merge(a, b)
	ba := crdt.Merge(b, a)
	require.Equal(t, ab.String(), ba.String())
	require.Equal(t, view(ab), view(ba))
	// h and x tie on digits and are ordered by site; i was placed after h
	require.Equal(t, "hxi", ab.String())
}

func mustGet(t *testing.T, s *crdt.Store, id string) crdt.Character {
	t.Helper()
	c, ok := s.Get(id)
	require.True(t, ok)
	return c
}
