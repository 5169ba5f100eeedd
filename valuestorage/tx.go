// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package valuestorage

import (
	"context"

	"storj.io/jcrstore/blobstore"
)

// Tx binds blob operations to an enclosing transaction. A document storage
// that can enlist blob operations in its own native transaction returns a
// context that carries it.
type Tx interface {
	// Bind returns the context operations on driver must use.
	Bind(ctx context.Context, driver blobstore.Driver) context.Context
}

// NoTx runs blob operations outside of any transaction.
var NoTx Tx = noTx{}

type noTx struct{}

func (noTx) Bind(ctx context.Context, driver blobstore.Driver) context.Context { return ctx }
