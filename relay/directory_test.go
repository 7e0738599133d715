package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryDirectory(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDirectory()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return clock }

	require.NoError(t, d.Touch(ctx, "a", 1))
	clock = clock.Add(time.Minute)
	require.NoError(t, d.Touch(ctx, "b", 3))
	clock = clock.Add(time.Minute)
	require.NoError(t, d.Touch(ctx, "a", 2))
	require.NoError(t, d.Touch(ctx, "a", 0))

	rooms, err := d.Rooms(ctx)
	require.NoError(t, err)
	require.Equal(t, []Room{
		{ID: "a", FirstSeen: clock.Add(-2 * time.Minute), LastSeen: clock, PeakConnections: 2},
		{ID: "b", FirstSeen: clock.Add(-time.Minute), LastSeen: clock.Add(-time.Minute), PeakConnections: 3},
	}, rooms)
}
