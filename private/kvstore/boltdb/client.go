// Copyright (C) 2018 Storj Labs, Inc.
// See LICENSE for copying information.

// Package boltdb implements kvstore.Store on a bolt database file.
package boltdb

import (
	"bytes"
	"context"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.etcd.io/bbolt"

	"storj.io/jcrstore/private/kvstore"
)

var (
	// Error is the default boltdb errs class.
	Error = errs.Class("boltdb")

	mon = monkit.Package()

	_ kvstore.Store = (*Client)(nil)
)

const (
	// fileMode sets permissions so owner can read and write.
	fileMode       = 0600
	defaultTimeout = 1 * time.Second
)

// Client is the entrypoint into a bolt data store.
type Client struct {
	db     *bbolt.DB
	Path   string
	Bucket []byte
}

// New instantiates a new BoltDB client given db file path and bucket name.
func New(path, bucket string) (*Client, error) {
	db, err := bbolt.Open(path, fileMode, &bbolt.Options{Timeout: defaultTimeout})
	if err != nil {
		return nil, Error.Wrap(err)
	}

	err = Error.Wrap(db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	}))
	if err != nil {
		return nil, errs.Combine(err, Error.Wrap(db.Close()))
	}

	return &Client{
		db:     db,
		Path:   path,
		Bucket: []byte(bucket),
	}, nil
}

// Put adds a key/value to boltDB in a batch, where boltDB commits the batch to disk every
// 1000 operations or 10ms, whichever is first. The MaxBatchDelay are using default settings.
// Ref: https://github.com/boltdb/bolt/blob/master/db.go#L160
func (client *Client) Put(ctx context.Context, key kvstore.Key, value kvstore.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return kvstore.ErrEmptyKey.New("")
	}

	return Error.Wrap(client.db.Batch(func(tx *bbolt.Tx) error {
		return tx.Bucket(client.Bucket).Put(key, value)
	}))
}

// Get looks up the provided key from boltdb returning either an error or the result.
func (client *Client) Get(ctx context.Context, key kvstore.Key) (_ kvstore.Value, err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return nil, kvstore.ErrEmptyKey.New("")
	}

	var value kvstore.Value
	err = client.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(client.Bucket).Cursor()
		k, v := cursor.Seek(key)
		if k == nil || !bytes.Equal(k, key) {
			return kvstore.ErrKeyNotFound.New("%q", key)
		}
		value = kvstore.Value(v).Clone()
		if value == nil {
			value = kvstore.Value{}
		}
		return nil
	})
	if kvstore.ErrKeyNotFound.Has(err) {
		return nil, err
	}
	return value, Error.Wrap(err)
}

// Delete deletes a key/value pair from boltdb, for a given the key.
func (client *Client) Delete(ctx context.Context, key kvstore.Key) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return kvstore.ErrEmptyKey.New("")
	}

	return Error.Wrap(client.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(client.Bucket).Delete(key)
	}))
}

// Range iterates over all items in key order.
func (client *Client) Range(ctx context.Context, fn func(context.Context, kvstore.Key, kvstore.Value) error) (err error) {
	defer mon.Task()(&ctx)(&err)

	return client.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(client.Bucket).ForEach(func(k, v []byte) error {
			return fn(ctx, kvstore.Key(k), kvstore.Value(v))
		})
	})
}

// Close closes a BoltDB client.
func (client *Client) Close() error {
	return Error.Wrap(client.db.Close())
}
