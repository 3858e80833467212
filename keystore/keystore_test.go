package keystore

import (
	"testing"

	"github.com/scigolib/abvkey"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsNonPositiveCapacity(t *testing.T) {
	_, err := New(0)
	require.Error(t, err)
}

func TestGetPut_RoundTrip(t *testing.T) {
	store, err := New(4)
	require.NoError(t, err)

	s := abvkey.NewSingleton(42)
	key, err := s.Encode()
	require.NoError(t, err)

	_, ok := store.Get(key)
	require.False(t, ok)

	store.Put(key, s)
	got, ok := store.Get(key)
	require.True(t, ok)
	require.Same(t, s, got)
}

func TestAdopt_StoresUnderCanonicalKey(t *testing.T) {
	store, err := New(4)
	require.NoError(t, err)

	s := abvkey.NewSingleton(7)
	key, err := store.Adopt(s)
	require.NoError(t, err)

	wantKey, err := s.Encode()
	require.NoError(t, err)
	require.Equal(t, wantKey, key)

	got, ok := store.Get(key)
	require.True(t, ok)
	require.Same(t, s, got)
}

func TestStore_EvictsLeastRecentlyUsed(t *testing.T) {
	store, err := New(2)
	require.NoError(t, err)

	a := abvkey.NewSingleton(1)
	b := abvkey.NewSingleton(2)
	c := abvkey.NewSingleton(3)

	ka, _ := a.Encode()
	kb, _ := b.Encode()
	kc, _ := c.Encode()

	store.Put(ka, a)
	store.Put(kb, b)
	require.Equal(t, 2, store.Len())

	store.Put(kc, c)
	require.Equal(t, 2, store.Len())

	_, ok := store.Get(ka)
	require.False(t, ok, "oldest entry should have been evicted")
}

func TestPurge_ClearsStore(t *testing.T) {
	store, err := New(4)
	require.NoError(t, err)

	s := abvkey.NewSingleton(1)
	key, _ := s.Encode()
	store.Put(key, s)
	require.Equal(t, 1, store.Len())

	store.Purge()
	require.Equal(t, 0, store.Len())
}
