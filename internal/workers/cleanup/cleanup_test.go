package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"racepass/internal/nonce"
)

func TestRunOnceRemovesExpired(t *testing.T) {
	store := nonce.NewMemoryStore()
	now := time.Now()

	_, err := nonce.Issue(context.Background(), store, now, time.Second)
	require.NoError(t, err)
	live, err := nonce.Issue(context.Background(), store, now, time.Hour)
	require.NoError(t, err)

	w := New(store, WithClock(func() time.Time { return now.Add(time.Minute) }))

	removed, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, ok := store.Get(live.Value)
	assert.True(t, ok)
}

func TestStartStopsOnCancel(t *testing.T) {
	store := nonce.NewMemoryStore()
	w := New(store, WithInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestStartSweepsPeriodically(t *testing.T) {
	store := nonce.NewMemoryStore()
	now := time.Now()

	_, err := nonce.Issue(context.Background(), store, now.Add(-time.Hour), time.Second)
	require.NoError(t, err)

	w := New(store, WithInterval(10*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = w.Start(ctx)

	removed, err := store.DeleteExpired(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed, "expired nonce should have been swept already")
}
