package replica_test

import (
	"math"
	"path/filepath"
	"testing"

	"collabtext/replica"
	"github.com/stretchr/testify/require"
)

func TestStateSite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	st, err := replica.OpenState(path)
	require.NoError(t, err)

	site, err := st.Site("")
	require.NoError(t, err)
	require.NotEmpty(t, site)
	again, err := st.Site("")
	require.NoError(t, err)
	require.Equal(t, site, again)
	require.NoError(t, st.Close())

	st, err = replica.OpenState(path)
	require.NoError(t, err)
	defer st.Close()
	again, err = st.Site("")
	require.NoError(t, err)
	require.Equal(t, site, again)

	forced, err := st.Site("laptop")
	require.NoError(t, err)
	require.Equal(t, "laptop", forced)
	again, err = st.Site("")
	require.NoError(t, err)
	require.Equal(t, "laptop", again)
}

func TestClockLease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	st, err := replica.OpenState(path)
	require.NoError(t, err)

	lease, start, err := replica.NewLease(st, "A", 10)
	require.NoError(t, err)
	require.Equal(t, uint64(0), start)
	require.Equal(t, uint64(10), lease.Limit())

	require.NoError(t, lease.Ensure(9))
	require.Equal(t, uint64(10), lease.Limit())
	require.NoError(t, lease.Ensure(12))
	require.Equal(t, uint64(22), lease.Limit())
	require.NoError(t, st.Close())

	// a restart resumes past everything the lease covered
	st, err = replica.OpenState(path)
	require.NoError(t, err)
	defer st.Close()
	lease, start, err = replica.NewLease(st, "A", 10)
	require.NoError(t, err)
	require.Equal(t, uint64(22), start)
	require.Equal(t, uint64(32), lease.Limit())

	// stored marks never move backwards
	require.NoError(t, st.SaveClock("A", 5))
	clock, err := st.Clock("A")
	require.NoError(t, err)
	require.Equal(t, uint64(32), clock)

	// a clock at the top of the range cannot be leased
	require.Error(t, lease.Ensure(math.MaxUint64-5))
	require.Equal(t, uint64(32), lease.Limit())

	other, err := st.Clock("B")
	require.NoError(t, err)
	require.Equal(t, uint64(0), other)
}
