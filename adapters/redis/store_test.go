package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidvault/auction"
)

// countingStore 記錄對內層 Store 的 Get 次數
type countingStore struct {
	*auction.MemoryStore
	gets int
}

func (s *countingStore) Get(ctx context.Context, id string) (*auction.Auction, error) {
	s.gets++
	return s.MemoryStore.Get(ctx, id)
}

func newCachedStore(t *testing.T) (*CachedStore, *countingStore, func()) {
	_, client, cleanup := setupMiniredis(t)
	inner := &countingStore{MemoryStore: auction.NewMemoryStore()}
	store, err := NewCachedStore(inner, client, WithStorePrefix("test:"), WithStoreTTL(time.Minute))
	require.NoError(t, err)
	return store, inner, cleanup
}

func TestNewCachedStore(t *testing.T) {
	client, _, cleanup := setupTest(t)
	defer cleanup()

	_, err := NewCachedStore(nil, client)
	assert.Error(t, err)
	_, err = NewCachedStore(auction.NewMemoryStore(), nil)
	assert.Error(t, err)
}

func TestCachedStore_ReadThrough(t *testing.T) {
	store, inner, cleanup := newCachedStore(t)
	defer cleanup()
	ctx := context.Background()

	a := sampleAuction()
	require.NoError(t, store.Create(ctx, a))

	got, err := store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Version)
	assert.Zero(t, inner.gets, "snapshot written on create should serve reads")

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, auction.ErrNotFound)
	assert.Equal(t, 1, inner.gets)
}

func TestCachedStore_WriteThrough(t *testing.T) {
	store, inner, cleanup := newCachedStore(t)
	defer cleanup()
	ctx := context.Background()

	a := sampleAuction()
	require.NoError(t, store.Create(ctx, a))

	updated := a.Clone()
	updated.Title = "Rangefinder camera"
	require.NoError(t, store.Update(ctx, updated))

	got, err := store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rangefinder camera", got.Title)
	assert.Equal(t, uint64(2), got.Version)
	assert.Zero(t, inner.gets)
}

func TestCachedStore_ConflictInvalidates(t *testing.T) {
	store, inner, cleanup := newCachedStore(t)
	defer cleanup()
	ctx := context.Background()

	a := sampleAuction()
	require.NoError(t, store.Create(ctx, a))

	// 繞過快取直接更新內層，快取變成過時
	bypass := a.Clone()
	require.NoError(t, inner.MemoryStore.Update(ctx, bypass))

	stale := a.Clone()
	err := store.Update(ctx, stale)
	assert.Equal(t, auction.KindConflict, auction.KindOf(err))

	got, err := store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Version)
	assert.Equal(t, 1, inner.gets)
}

func TestCachedStore_RedisDown(t *testing.T) {
	mr, client, cleanup := setupMiniredis(t)
	defer cleanup()
	ctx := context.Background()

	inner := auction.NewMemoryStore()
	store, err := NewCachedStore(inner, client)
	require.NoError(t, err)

	a := sampleAuction()
	require.NoError(t, store.Create(ctx, a))

	mr.Close()

	got, err := store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	got.Title = "offline edit"
	assert.NoError(t, store.Update(ctx, got))
}

func TestCachedStore_List(t *testing.T) {
	store, _, cleanup := newCachedStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, sampleAuction()))
	list, err := store.List(ctx, auction.ListFilter{Status: auction.StatusActive})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
