// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package testsuite contains tests every blob driver must pass.
package testsuite

import (
	"bytes"
	"io"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"
	"storj.io/common/testrand"
	"storj.io/jcrstore/blobstore"
)

// RunTests runs common blobstore.Driver tests. Keys are created under
// prefix, which must be unique for the run.
func RunTests(t *testing.T, driver blobstore.Driver, prefix string) {
	t.Run("PutGet", func(t *testing.T) { testPutGet(t, driver, prefix+"putget/") })
	t.Run("Overwrite", func(t *testing.T) { testOverwrite(t, driver, prefix+"overwrite/") })
	t.Run("Missing", func(t *testing.T) { testMissing(t, driver, prefix+"missing/") })
	t.Run("List", func(t *testing.T) { testList(t, driver, prefix+"list/") })
	t.Run("Copy", func(t *testing.T) { testCopy(t, driver, prefix+"copy/") })
	t.Run("BatchDelete", func(t *testing.T) { testBatchDelete(t, driver, prefix+"batch/") })
	t.Run("Move", func(t *testing.T) { testMove(t, driver, prefix+"move/") })
	t.Run("ShortReader", func(t *testing.T) { testShortReader(t, driver, prefix+"short/") })
}

func testShortReader(t *testing.T, driver blobstore.Driver, prefix string) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	previous := testrand.BytesInt(100)
	put(ctx, t, driver, prefix+"a", previous)

	truncated := testrand.BytesInt(10)
	require.Error(t, driver.Put(ctx, prefix+"a", bytes.NewReader(truncated), 50))
	require.Equal(t, previous, get(ctx, t, driver, prefix+"a"))

	require.Error(t, driver.Put(ctx, prefix+"b", bytes.NewReader(truncated), 50))
	ok, err := driver.Exists(ctx, prefix+"b")
	require.NoError(t, err)
	require.False(t, ok)

	require.True(t, driver.Delete(ctx, prefix+"a"))
}

func put(ctx *testcontext.Context, t *testing.T, driver blobstore.Driver, key string, data []byte) {
	require.NoError(t, driver.Put(ctx, key, bytes.NewReader(data), int64(len(data))))
}

func get(ctx *testcontext.Context, t *testing.T, driver blobstore.Driver, key string) []byte {
	rc, length, err := driver.Get(ctx, key)
	require.NoError(t, err)
	defer ctx.Check(rc.Close)

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.EqualValues(t, len(data), length)
	return data
}

func testPutGet(t *testing.T, driver blobstore.Driver, prefix string) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	data := testrand.BytesInt(1 << 10)
	put(ctx, t, driver, prefix+"a", data)

	ok, err := driver.Exists(ctx, prefix+"a")
	require.NoError(t, err)
	require.True(t, ok)

	require.Equal(t, data, get(ctx, t, driver, prefix+"a"))

	size, err := driver.Size(ctx, prefix+"a")
	require.NoError(t, err)
	require.EqualValues(t, len(data), size)

	empty := prefix + "empty"
	put(ctx, t, driver, empty, nil)
	require.Empty(t, get(ctx, t, driver, empty))

	err = driver.Put(ctx, prefix+"b", bytes.NewReader(data), -1)
	require.Error(t, err)
}

func testOverwrite(t *testing.T, driver blobstore.Driver, prefix string) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	put(ctx, t, driver, prefix+"a", []byte("first"))
	put(ctx, t, driver, prefix+"a", []byte("second"))
	require.Equal(t, []byte("second"), get(ctx, t, driver, prefix+"a"))
}

func testMissing(t *testing.T, driver blobstore.Driver, prefix string) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	ok, err := driver.Exists(ctx, prefix+"none")
	require.NoError(t, err)
	require.False(t, ok)

	_, _, err = driver.Get(ctx, prefix+"none")
	require.True(t, blobstore.ErrNotFound.Has(err), "%+v", err)

	size, err := driver.Size(ctx, prefix+"none")
	require.NoError(t, err)
	require.EqualValues(t, -1, size)

	keys, err := driver.List(ctx, prefix)
	require.NoError(t, err)
	require.Empty(t, keys)
}

func testList(t *testing.T, driver blobstore.Driver, prefix string) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	var expected []string
	for i := 0; i < 12; i++ {
		key := prefix + "p/" + strconv.Itoa(100+i)
		put(ctx, t, driver, key, []byte{byte(i)})
		expected = append(expected, key)
	}
	put(ctx, t, driver, prefix+"other", []byte{1})

	keys, err := driver.List(ctx, prefix+"p/")
	require.NoError(t, err)
	require.Equal(t, expected, keys)
}

func testCopy(t *testing.T, driver blobstore.Driver, prefix string) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	data := testrand.BytesInt(100)
	put(ctx, t, driver, prefix+"src", data)
	require.NoError(t, driver.Copy(ctx, prefix+"src", prefix+"dst"))

	require.Equal(t, data, get(ctx, t, driver, prefix+"src"))
	require.Equal(t, data, get(ctx, t, driver, prefix+"dst"))
}

func testBatchDelete(t *testing.T, driver blobstore.Driver, prefix string) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	var keys []string
	for i := 0; i < 5; i++ {
		key := prefix + strconv.Itoa(i)
		put(ctx, t, driver, key, []byte{byte(i)})
		keys = append(keys, key)
	}

	failed, err := driver.BatchDelete(ctx, keys)
	require.NoError(t, err)
	require.Empty(t, failed)

	for _, key := range keys {
		ok, err := driver.Exists(ctx, key)
		require.NoError(t, err)
		require.False(t, ok)
	}

	require.True(t, driver.Delete(ctx, prefix+"never-existed"))
}

func testMove(t *testing.T, driver blobstore.Driver, prefix string) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	data := testrand.BytesInt(10)
	put(ctx, t, driver, prefix+"src", data)

	orphaned, err := blobstore.Move(ctx, driver, prefix+"src", prefix+"dst")
	require.NoError(t, err)
	require.False(t, orphaned)

	ok, err := driver.Exists(ctx, prefix+"src")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, data, get(ctx, t, driver, prefix+"dst"))
}
