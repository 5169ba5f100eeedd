// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package testsuite contains tests every kvstore.Store must pass.
package testsuite

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"
	"storj.io/jcrstore/private/kvstore"
)

// RunTests runs common kvstore.Store tests.
func RunTests(t *testing.T, store kvstore.Store) {
	t.Run("CRUD", func(t *testing.T) { testCRUD(t, store) })
	t.Run("EmptyKey", func(t *testing.T) { testEmptyKey(t, store) })
	t.Run("Range", func(t *testing.T) { testRange(t, store) })
	t.Run("RangeStop", func(t *testing.T) { testRangeStop(t, store) })
	t.Run("ValueIsCopied", func(t *testing.T) { testValueIsCopied(t, store) })
	t.Run("NeighbourKeys", func(t *testing.T) { testNeighbourKeys(t, store) })
}

func testNeighbourKeys(t *testing.T, store kvstore.Store) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	defer putItems(ctx, t, store, newItem("neighbour/ab", "ab"), newItem("neighbour/b", "b"))()

	for _, missing := range []string{"neighbour/a", "neighbour/aa", "neighbour/abc", "neighbour/c"} {
		_, err := store.Get(ctx, kvstore.Key(missing))
		require.True(t, kvstore.ErrKeyNotFound.Has(err), missing)
	}

	value, err := store.Get(ctx, kvstore.Key("neighbour/ab"))
	require.NoError(t, err)
	require.Equal(t, "ab", string(value))
}

func testValueIsCopied(t *testing.T, store kvstore.Store) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	key := kvstore.Key("copied/a")
	value := kvstore.Value("original")
	defer putItems(ctx, t, store, item{key: key, value: value})()

	copy(value, "mutated!")

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "original", string(got))
}

func testCRUD(t *testing.T, store kvstore.Store) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	items := []item{
		newItem("blob\x00a/b/c", "1"),
		newItem("file\x00/tmp/swap.1_1", "2"),
		newItem("blob\x00a/b/c.1700000000000_1", ""),
	}
	defer putItems(ctx, t, store, items...)()

	for _, item := range items {
		value, err := store.Get(ctx, item.key)
		require.NoError(t, err)
		require.Equal(t, string(item.value), string(value))
	}

	require.NoError(t, store.Put(ctx, items[0].key, kvstore.Value("3")))
	value, err := store.Get(ctx, items[0].key)
	require.NoError(t, err)
	require.Equal(t, "3", string(value))

	require.NoError(t, store.Delete(ctx, items[0].key))
	_, err = store.Get(ctx, items[0].key)
	require.True(t, kvstore.ErrKeyNotFound.Has(err), "%+v", err)

	require.NoError(t, store.Delete(ctx, items[0].key))
}

func testEmptyKey(t *testing.T, store kvstore.Store) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	require.True(t, kvstore.ErrEmptyKey.Has(store.Put(ctx, nil, kvstore.Value("x"))))
	_, err := store.Get(ctx, kvstore.Key{})
	require.True(t, kvstore.ErrEmptyKey.Has(err))
	require.True(t, kvstore.ErrEmptyKey.Has(store.Delete(ctx, nil)))
}

func testRange(t *testing.T, store kvstore.Store) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	var items []item
	for i := 0; i < 25; i++ {
		items = append(items, newItem("range/"+strconv.Itoa(i), strconv.Itoa(i*i)))
	}
	defer putItems(ctx, t, store, items...)()

	var got []string
	err := store.Range(ctx, func(ctx context.Context, key kvstore.Key, value kvstore.Value) error {
		got = append(got, string(key)+"="+string(value))
		return nil
	})
	require.NoError(t, err)

	var expected []string
	for _, item := range items {
		expected = append(expected, string(item.key)+"="+string(item.value))
	}
	sort.Strings(expected)
	sort.Strings(got)
	require.Equal(t, expected, got)

	count, err := kvstore.Count(ctx, store)
	require.NoError(t, err)
	require.Equal(t, len(items), count)
}

func testRangeStop(t *testing.T, store kvstore.Store) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	items := []item{newItem("stop/a", "a"), newItem("stop/b", "b")}
	defer putItems(ctx, t, store, items...)()

	stop := errors.New("stop")
	calls := 0
	err := store.Range(ctx, func(context.Context, kvstore.Key, kvstore.Value) error {
		calls++
		return stop
	})
	require.ErrorIs(t, err, stop)
	require.Equal(t, 1, calls)
}

// RunBenchmarks runs common kvstore.Store benchmarks.
func RunBenchmarks(b *testing.B, store kvstore.Store) {
	ctx := context.Background()

	b.Run("PutDelete", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			key := kvstore.Key("bench/" + strconv.Itoa(i))
			if err := store.Put(ctx, key, kvstore.Value("v")); err != nil {
				b.Fatal(err)
			}
			if err := store.Delete(ctx, key); err != nil {
				b.Fatal(err)
			}
		}
	})
}
