// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package mongostore

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"

	"storj.io/jcrstore/blobstore"
	"storj.io/jcrstore/valuestorage"
)

var _ valuestorage.Tx = (*sessionTx)(nil)

// clientDriver is implemented by blob drivers that store their blobs with a
// MongoDB client, such as the GridFS driver.
type clientDriver interface {
	Client() *mongo.Client
}

// sessionTx enlists blob operations in the connection transaction when the
// driver shares the connection client.
type sessionTx struct {
	client  *mongo.Client
	session mongo.Session
}

func (tx *sessionTx) Bind(ctx context.Context, driver blobstore.Driver) context.Context {
	if d, ok := driver.(clientDriver); ok && d.Client() == tx.client {
		return mongo.NewSessionContext(ctx, tx.session)
	}
	return ctx
}
