package redis

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bnema/formflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client, err := NewClient(context.Background(), Options{Address: server.Addr()})
	require.NoError(t, err)

	store := NewStore(client, "", 0, nil)
	t.Cleanup(func() { _ = store.Close() })
	return store, server
}

func TestStoreSaveRestoreExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, server := newTestStore(t)

	require.NoError(t, store.Save(ctx, "s1:timeout_recovery", domain.Payload{"name": "Oak", "count": 3}, time.Second))
	assert.True(t, server.Exists(DefaultKeyPrefix+"s1:timeout_recovery"))

	got, ok, err := store.Restore(ctx, "s1:timeout_recovery")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Oak", got.String("name"))
	assert.Equal(t, float64(3), got["count"])

	server.FastForward(2 * time.Second)
	assert.False(t, server.Exists(DefaultKeyPrefix+"s1:timeout_recovery"))
	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, ok, err = store.Restore(ctx, "s1:timeout_recovery")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreNonPositiveTTLUsesDefault(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, server := newTestStore(t)

	require.NoError(t, store.Save(ctx, "k", domain.Payload{"a": "b"}, 0))
	assert.Equal(t, fallbackTTL, server.TTL(DefaultKeyPrefix+"k"))
}

func TestStoreClearIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.Save(ctx, "k", domain.Payload{"a": "b"}, time.Minute))
	require.NoError(t, store.Clear(ctx, "k"))
	require.NoError(t, store.Clear(ctx, "k"))

	_, ok, err := store.Restore(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreUpdateMerges(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, server := newTestStore(t)

	require.NoError(t, store.Save(ctx, "k", domain.Payload{"a": "1", "b": "2"}, time.Second))
	require.NoError(t, store.Update(ctx, "k", domain.Payload{"b": "3", "c": "4"}))
	require.NoError(t, store.Update(ctx, "fresh", domain.Payload{"x": "y"}))

	got, ok, err := store.Restore(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.Payload{"a": "1", "b": "3", "c": "4"}, got)
	assert.Equal(t, fallbackTTL, server.TTL(DefaultKeyPrefix+"k"))

	got, ok, err = store.Restore(ctx, "fresh")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.Payload{"x": "y"}, got)
}

func TestStoreConcurrentUpdatesKeepEveryField(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newTestStore(t)

	const writers = 4
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.Update(ctx, "k", domain.Payload{fmt.Sprintf("f%d", i): "v"})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, ok, err := store.Restore(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, got, writers)
}

func TestStorePrefixOperations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, server := newTestStore(t)

	require.NoError(t, store.Save(ctx, "s1:a", domain.Payload{"x": "1"}, time.Minute))
	require.NoError(t, store.Save(ctx, "s1:b", domain.Payload{"x": "1"}, time.Minute))
	require.NoError(t, store.Save(ctx, "s2:a", domain.Payload{"x": "1"}, time.Minute))
	require.NoError(t, server.Set("unrelated", "value"))

	keys, err := store.Keys(ctx, "s1:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1:a", "s1:b"}, keys)

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	removed, err := store.ClearPrefix(ctx, "s1:")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	removed, err = store.ClearPrefix(ctx, "s1:")
	require.NoError(t, err)
	assert.Zero(t, removed)

	assert.True(t, server.Exists("unrelated"))
	assert.True(t, server.Exists(DefaultKeyPrefix+"s2:a"))
}

func TestStoreDescribe(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.Save(ctx, "k", domain.Payload{"b": "1", "a": "2"}, time.Minute))

	meta, ok, err := store.Describe(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "k", meta.Key)
	assert.Equal(t, time.Minute, meta.ExpiresIn)
	assert.Equal(t, 2, meta.Size)
	assert.Equal(t, []string{"a", "b"}, meta.Fields)

	_, ok, err = store.Describe(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreWrapsBackendErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, server := newTestStore(t)
	server.Close()

	err := store.Save(ctx, "k", domain.Payload{"a": "b"}, time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `save state "k"`)
}

func TestNewClientFailsWhenUnreachable(t *testing.T) {
	t.Parallel()

	server := miniredis.RunT(t)
	addr := server.Addr()
	server.Close()

	_, err := NewClient(context.Background(), Options{Address: addr, DialTimeout: 200 * time.Millisecond})
	require.Error(t, err)
}

func TestEscapeGlob(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `a\*b\?c\[d\]`, escapeGlob("a*b?c[d]"))
}
