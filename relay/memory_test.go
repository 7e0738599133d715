package relay_test

import (
	"context"
	"sync"
	"testing"

	"collabtext/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBrokerFanOut(t *testing.T) {
	ctx := context.Background()
	b := relay.NewMemoryBroker()
	defer b.Close()

	s1, err := b.Subscribe(ctx, "r")
	require.NoError(t, err)
	s2, err := b.Subscribe(ctx, "r")
	require.NoError(t, err)
	other, err := b.Subscribe(ctx, "x")
	require.NoError(t, err)

	f := relay.Frame{Origin: "c1", Data: []byte("hello")}
	require.NoError(t, b.Publish(ctx, "r", f))
	require.Equal(t, f, <-s1.Frames())
	require.Equal(t, f, <-s2.Frames())
	require.Len(t, other.Frames(), 0)

	require.NoError(t, s1.Close())
	_, ok := <-s1.Frames()
	require.False(t, ok)
	require.NoError(t, s1.Close())

	require.NoError(t, b.Close())
	_, ok = <-s2.Frames()
	require.False(t, ok)
	require.ErrorIs(t, b.Publish(ctx, "r", f), relay.ErrBrokerClosed)
	_, err = b.Subscribe(ctx, "r")
	require.ErrorIs(t, err, relay.ErrBrokerClosed)
}

func TestMemoryBrokerDropsSlowSubscriber(t *testing.T) {
	ctx := context.Background()
	b := relay.NewMemoryBroker()
	defer b.Close()

	slow, err := b.Subscribe(ctx, "r")
	require.NoError(t, err)
	for i := 0; i < 300; i++ {
		require.NoError(t, b.Publish(ctx, "r", relay.Frame{Data: []byte{byte(i)}}))
	}
	n := 0
	for range slow.Frames() {
		n++
	}
	require.Equal(t, 256, n)
}

func TestMemoryBrokerPresence(t *testing.T) {
	ctx := context.Background()
	b := relay.NewMemoryBroker()
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.Join(ctx, "r")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := b.Join(ctx, "r")
	require.NoError(t, err)
	require.Equal(t, int64(51), n)

	n, err = b.Leave(ctx, "r")
	require.NoError(t, err)
	require.Equal(t, int64(50), n)

	n, err = b.Join(ctx, "other")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}
