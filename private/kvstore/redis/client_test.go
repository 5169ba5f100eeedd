// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package redis

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"
	"storj.io/jcrstore/private/kvstore"
	"storj.io/jcrstore/private/kvstore/testsuite"
)

func TestSuite(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client, err := Open(ctx, Config{Address: server.Addr(), Prefix: "orphans/"})
	require.NoError(t, err)
	defer ctx.Check(client.Close)

	testsuite.RunTests(t, client)
}

func TestParseURL(t *testing.T) {
	config, err := ParseURL("redis://localhost:6379?db=2&password=secret&prefix=orphans/")
	require.NoError(t, err)
	require.Equal(t, Config{Address: "localhost:6379", Password: "secret", DB: 2, Prefix: "orphans/"}, config)

	config, err = ParseURL("redis://10.0.0.1:7000")
	require.NoError(t, err)
	require.Equal(t, Config{Address: "10.0.0.1:7000"}, config)

	for _, address := range []string{
		"http://localhost",
		"redis://localhost?db=first",
		"redis://%zz",
	} {
		_, err := ParseURL(address)
		require.Error(t, err, address)
	}
}

func TestPrefixIsolation(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	first, err := OpenURL(ctx, "redis://"+server.Addr()+"?db=0&prefix=first/")
	require.NoError(t, err)
	defer ctx.Check(first.Close)

	second, err := OpenURL(ctx, "redis://"+server.Addr()+"?prefix=second/")
	require.NoError(t, err)
	defer ctx.Check(second.Close)

	require.NoError(t, first.Put(ctx, kvstore.Key("a"), kvstore.Value("1")))
	require.NoError(t, second.Put(ctx, kvstore.Key("b"), kvstore.Value("2")))

	count, err := kvstore.Count(ctx, first)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	_, err = second.Get(ctx, kvstore.Key("a"))
	require.True(t, kvstore.ErrKeyNotFound.Has(err))
}

func TestRangeManyBatches(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client, err := Open(ctx, Config{Address: server.Addr(), Prefix: "j/"})
	require.NoError(t, err)
	defer ctx.Check(client.Close)

	const n = 3*scanBatch + 7
	for i := 0; i < n; i++ {
		require.NoError(t, client.Put(ctx, kvstore.Key(strconv.Itoa(i)), kvstore.Value("v")))
	}
	require.NoError(t, server.Set("unrelated", "x"))

	seen := map[string]bool{}
	require.NoError(t, client.Range(ctx, func(ctx context.Context, key kvstore.Key, value kvstore.Value) error {
		require.False(t, seen[string(key)], string(key))
		seen[string(key)] = true
		require.Equal(t, kvstore.Value("v"), value)
		return nil
	}))
	require.Len(t, seen, n)
}

func TestInvalidConnection(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	_, err := Open(ctx, Config{Address: "127.0.0.1:1", DB: 1})
	require.Error(t, err)

	_, err = OpenURL(ctx, "http://localhost")
	require.Error(t, err)
}
