// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package badgerdb implements kvstore.Store on a badger database.
package badgerdb

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/jcrstore/private/kvstore"
)

var (
	// Error is the default badgerdb errs class.
	Error = errs.Class("badgerdb")

	mon = monkit.Package()

	_ kvstore.Store = (*Client)(nil)
)

// Client is a badger backed store.
type Client struct {
	db *badger.DB
}

// Open opens the badger database in dir. An empty dir keeps the database in
// memory.
func Open(log *zap.Logger, dir string) (*Client, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = &logger{log: log.Sugar()}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &Client{db: db}, nil
}

// Put adds a value to store.
func (client *Client) Put(ctx context.Context, key kvstore.Key, value kvstore.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return kvstore.ErrEmptyKey.New("")
	}

	return Error.Wrap(client.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key.Clone(), value.Clone())
	}))
}

// Get gets a value to store.
func (client *Client) Get(ctx context.Context, key kvstore.Key) (_ kvstore.Value, err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return nil, kvstore.ErrEmptyKey.New("")
	}

	var value kvstore.Value
	err = client.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, kvstore.ErrKeyNotFound.New("%q", key)
	}
	if value == nil && err == nil {
		value = kvstore.Value{}
	}
	return value, Error.Wrap(err)
}

// Delete deletes key and the value.
func (client *Client) Delete(ctx context.Context, key kvstore.Key) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return kvstore.ErrEmptyKey.New("")
	}

	return Error.Wrap(client.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	}))
}

// Range iterates over all items in key order.
func (client *Client) Range(ctx context.Context, fn func(context.Context, kvstore.Key, kvstore.Value) error) (err error) {
	defer mon.Task()(&ctx)(&err)

	return client.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(value []byte) error {
				return fn(ctx, kvstore.Key(item.Key()), kvstore.Value(value))
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the database.
func (client *Client) Close() error {
	return Error.Wrap(client.db.Close())
}

// logger adapts zap to the badger.Logger interface.
type logger struct {
	log *zap.SugaredLogger
}

var _ badger.Logger = (*logger)(nil)

func (l *logger) Errorf(msg string, args ...interface{})   { l.log.Errorf(msg, args...) }
func (l *logger) Warningf(msg string, args ...interface{}) { l.log.Warnf(msg, args...) }
func (l *logger) Infof(msg string, args ...interface{})    { l.log.Debugf(msg, args...) }
func (l *logger) Debugf(msg string, args ...interface{})   { l.log.Debugf(msg, args...) }
