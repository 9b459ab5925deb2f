package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bnema/formflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T) (*Store, *manualClock) {
	t.Helper()

	clock := &manualClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := New(Options{Clock: clock})
	t.Cleanup(func() { _ = store.Close() })
	return store, clock
}

func TestStoreSaveRestoreExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, clock := newTestStore(t)

	require.NoError(t, store.Save(ctx, "k", domain.Payload{"a": 1}, time.Second))

	clock.Advance(500 * time.Millisecond)
	got, ok, err := store.Restore(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.Payload{"a": 1}, got)

	clock.Advance(501 * time.Millisecond)
	_, ok, err = store.Restore(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	// lazy deletion leaves nothing for the sweeper
	assert.Equal(t, 0, store.Sweep())
}

func TestStoreExpiryBoundaryIsInclusive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, clock := newTestStore(t)

	require.NoError(t, store.Save(ctx, "k", domain.Payload{"a": 1}, time.Second))
	clock.Advance(time.Second)

	_, ok, err := store.Restore(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStoreNonPositiveTTLUsesDefault(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, clock := newTestStore(t)

	require.NoError(t, store.Save(ctx, "k", domain.Payload{"a": 1}, 0))

	meta, ok, err := store.Describe(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, DefaultTTL, meta.ExpiresIn)

	clock.Advance(DefaultTTL + time.Nanosecond)
	_, ok, err = store.Restore(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreRestoreReturnsCopy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newTestStore(t)

	input := domain.Payload{"name": "Oak"}
	require.NoError(t, store.Save(ctx, "k", input, time.Minute))
	input["name"] = "Elm"

	got, ok, err := store.Restore(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	got["name"] = "Pine"

	again, _, err := store.Restore(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "Oak", again.String("name"))
}

func TestStoreClearIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.Save(ctx, "k", domain.Payload{"a": 1}, time.Minute))
	require.NoError(t, store.Clear(ctx, "k"))
	require.NoError(t, store.Clear(ctx, "k"))

	_, ok, err := store.Restore(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreUpdateMergesAndRefreshesTTL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, clock := newTestStore(t)

	require.NoError(t, store.Save(ctx, "k", domain.Payload{"a": 1, "b": 2}, time.Second))
	require.NoError(t, store.Update(ctx, "k", domain.Payload{"b": 3, "c": 4}))

	clock.Advance(time.Minute)
	got, ok, err := store.Restore(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.Payload{"a": 1, "b": 3, "c": 4}, got)
}

func TestStoreUpdateOnExpiredEntryStartsFresh(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, clock := newTestStore(t)

	require.NoError(t, store.Save(ctx, "k", domain.Payload{"a": 1}, time.Second))
	clock.Advance(2 * time.Second)
	require.NoError(t, store.Update(ctx, "k", domain.Payload{"b": 2}))

	got, ok, err := store.Restore(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.Payload{"b": 2}, got)
}

func TestStoreConcurrentUpdatesAreAtomic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newTestStore(t)

	const writers = 32
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Update(ctx, "k", domain.Payload{fmt.Sprintf("f%d", i): i})
		}()
	}
	wg.Wait()

	got, ok, err := store.Restore(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, got, writers)
}

func TestStoreClearPrefixKeysAndLen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, clock := newTestStore(t)

	require.NoError(t, store.Save(ctx, "s1:a", domain.Payload{"x": 1}, time.Minute))
	require.NoError(t, store.Save(ctx, "s1:b", domain.Payload{"x": 1}, time.Minute))
	require.NoError(t, store.Save(ctx, "s1:c", domain.Payload{"x": 1}, time.Second))
	require.NoError(t, store.Save(ctx, "s2:a", domain.Payload{"x": 1}, time.Minute))

	clock.Advance(2 * time.Second)

	keys, err := store.Keys(ctx, "s1:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1:a", "s1:b"}, keys)

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	removed, err := store.ClearPrefix(ctx, "s1:")
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	keys, err = store.Keys(ctx, "s1:")
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, ok, err := store.Restore(ctx, "s2:a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStoreDescribe(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, clock := newTestStore(t)

	require.NoError(t, store.Save(ctx, "k", domain.Payload{"b": 1, "a": 2}, time.Minute))
	clock.Advance(15 * time.Second)

	meta, ok, err := store.Describe(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "k", meta.Key)
	assert.Equal(t, 45*time.Second, meta.ExpiresIn)
	assert.Equal(t, 2, meta.Size)
	assert.Equal(t, []string{"a", "b"}, meta.Fields)

	_, ok, err = store.Describe(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreSweepReportsRemoved(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := &manualClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	var reported []int
	store := New(Options{Clock: clock, OnSweep: func(n int) { reported = append(reported, n) }})
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Save(ctx, "a", domain.Payload{}, time.Second))
	require.NoError(t, store.Save(ctx, "b", domain.Payload{}, time.Second))
	require.NoError(t, store.Save(ctx, "c", domain.Payload{}, time.Hour))

	clock.Advance(time.Minute)
	assert.Equal(t, 2, store.Sweep())
	assert.Equal(t, 0, store.Sweep())
	assert.Equal(t, []int{2, 0}, reported)
}

func TestStoreBackgroundSweeper(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := &manualClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	swept := make(chan int, 16)
	store := New(Options{
		Clock:         clock,
		SweepInterval: 5 * time.Millisecond,
		OnSweep: func(n int) {
			if n > 0 {
				swept <- n
			}
		},
	})
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Save(ctx, "a", domain.Payload{}, time.Second))
	clock.Advance(time.Minute)
	store.Start()
	store.Start()

	select {
	case n := <-swept:
		assert.Equal(t, 1, n)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not run")
	}
}

func TestStoreSnapshotAndLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, clock := newTestStore(t)

	require.NoError(t, store.Save(ctx, "live", domain.Payload{"a": 1}, time.Minute))
	require.NoError(t, store.Save(ctx, "dead", domain.Payload{"a": 1}, time.Second))
	clock.Advance(2 * time.Second)

	snapshot := store.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "live", snapshot[0].Key)

	other, _ := newTestStore(t)
	other.clock = clock
	snapshot = append(snapshot, domain.StateEntry{Key: "old", ExpiresAt: clock.Now().Add(-time.Second)})
	assert.Equal(t, 1, other.Load(snapshot))

	got, ok, err := other.Restore(ctx, "live")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.Payload{"a": 1}, got)
}

func TestStoreCloseIsIdempotentAndClears(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := New(Options{SweepInterval: time.Millisecond})
	store.Start()

	require.NoError(t, store.Save(ctx, "k", domain.Payload{"a": 1}, time.Minute))
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStoreCloseWithoutStart(t *testing.T) {
	t.Parallel()

	store := New(Options{})
	require.NoError(t, store.Close())
	store.Start()
	require.NoError(t, store.Close())
}
