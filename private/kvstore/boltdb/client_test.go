// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package boltdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"
	"storj.io/jcrstore/private/kvstore"
	"storj.io/jcrstore/private/kvstore/testsuite"
)

func TestSuite(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	client, err := New(filepath.Join(ctx.Dir("bolt"), "orphans.db"), "orphans")
	require.NoError(t, err)
	defer ctx.Check(client.Close)

	testsuite.RunTests(t, client)
}

func TestReopen(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	path := filepath.Join(ctx.Dir("bolt"), "orphans.db")

	client, err := New(path, "orphans")
	require.NoError(t, err)
	require.NoError(t, client.Put(ctx, kvstore.Key("k"), kvstore.Value("v")))
	require.NoError(t, client.Close())

	client, err = New(path, "orphans")
	require.NoError(t, err)
	defer ctx.Check(client.Close)

	value, err := client.Get(ctx, kvstore.Key("k"))
	require.NoError(t, err)
	require.Equal(t, "v", string(value))
}

func BenchmarkSuite(b *testing.B) {
	client, err := New(filepath.Join(b.TempDir(), "bench.db"), "bench")
	if err != nil {
		b.Fatal(err)
	}
	defer func() { _ = client.Close() }()

	testsuite.RunBenchmarks(b, client)
}
