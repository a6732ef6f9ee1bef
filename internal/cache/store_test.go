package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID   string `json:"id"`
	Size int    `json:"size"`
}

func TestNewSnapshotAndDecode(t *testing.T) {
	s, err := NewSnapshot("d:visits", []item{{"a", 1}, {"b", 2}}, now)
	require.NoError(t, err)
	assert.Equal(t, 2, s.ItemCount)
	assert.Equal(t, now, s.FetchedAt)

	got, err := Decode[item](s)
	require.NoError(t, err)
	assert.Equal(t, []item{{"a", 1}, {"b", 2}}, got)

	empty, err := NewSnapshot[item]("d:visits", nil, now)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(empty.Data))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "demo:visits", Key("demo", "visits"))
}

// storeContract exercises the Store behavior every backend must share.
func storeContract(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()

	got, err := st.Get(ctx, "demo:visits")
	require.NoError(t, err)
	assert.Nil(t, got, "missing key returns nil")

	first, err := NewSnapshot("demo:visits", []item{{"a", 1}}, now.Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, st.Put(ctx, first))

	second, err := NewSnapshot("demo:visits", []item{{"a", 1}, {"b", 2}}, now)
	require.NoError(t, err)
	require.NoError(t, st.Put(ctx, second))

	got, err = st.Get(ctx, "demo:visits")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.ItemCount, "newer snapshot replaces the old one")
	assert.True(t, now.Equal(got.FetchedAt))
	items, err := Decode[item](got)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	other, err := NewSnapshot("demo:registrations", []item{{"r", 1}}, now)
	require.NoError(t, err)
	require.NoError(t, st.Put(ctx, other))
	elsewhere, err := NewSnapshot("prod:visits", []item{}, now)
	require.NoError(t, err)
	require.NoError(t, st.Put(ctx, elsewhere))

	infos, err := st.List(ctx, "demo:")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "demo:registrations", infos[0].Key)
	assert.Equal(t, "demo:visits", infos[1].Key)

	require.NoError(t, st.Delete(ctx, "demo:visits"))
	got, err = st.Get(ctx, "demo:visits")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemory())
}

func TestMemoryStore_PutCopies(t *testing.T) {
	st := NewMemory()
	s, err := NewSnapshot("k", []item{{"a", 1}}, now)
	require.NoError(t, err)
	require.NoError(t, st.Put(context.Background(), s))

	s.ItemCount = 99
	got, _ := st.Get(context.Background(), "k")
	assert.Equal(t, 1, got.ItemCount)
}

// prefixContract checks that List matches multi-byte prefixes exactly.
func prefixContract(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()
	for _, key := range []string{"ñandú:visits", "ñandú:registrations", "ñandúes:visits", "other:visits", "nandu:visits"} {
		s, err := NewSnapshot(key, []item{{"a", 1}}, now)
		require.NoError(t, err)
		require.NoError(t, st.Put(ctx, s))
	}

	infos, err := st.List(ctx, "ñandú:")
	require.NoError(t, err)
	keys := make([]string, 0, len(infos))
	for _, info := range infos {
		keys = append(keys, info.Key)
	}
	assert.Equal(t, []string{"ñandú:registrations", "ñandú:visits"}, keys)

	all, err := st.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestMemoryStore_NonASCIIPrefix(t *testing.T) {
	prefixContract(t, NewMemory())
}
