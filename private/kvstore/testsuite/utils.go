// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package testsuite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/jcrstore/private/kvstore"
)

type item struct {
	key   kvstore.Key
	value kvstore.Value
}

func newItem(key, value string) item {
	return item{key: kvstore.Key(key), value: kvstore.Value(value)}
}

// putItems journals items and returns a func that forgets them again, so
// suites can share one store.
func putItems(ctx context.Context, t testing.TB, store kvstore.Store, items ...item) (forget func()) {
	for _, item := range items {
		require.NoError(t, store.Put(ctx, item.key, item.value))
	}
	return func() {
		for _, item := range items {
			_ = store.Delete(ctx, item.key)
		}
	}
}
