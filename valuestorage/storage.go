// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package valuestorage stores property values outside of the document
// collection, in a blob backend, and applies their changes with a staged two
// phase commit.
package valuestorage

import (
	"bytes"
	"context"
	"strings"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/jcrstore/blobstore"
	"storj.io/jcrstore/itemdata"
	"storj.io/jcrstore/orphans"
)

var (
	// Error is the default valuestorage error class.
	Error = errs.Class("valuestorage")

	// ErrIO wraps backend failures of channel operations.
	ErrIO = errs.Class("value storage i/o")

	// ErrStorageNotFound is returned for an unknown storage id.
	ErrStorageNotFound = errs.Class("value storage not found")

	mon = monkit.Package()
)

// Storage is one configured value storage: a blob driver, the layout of its
// keys and the reclaimer that removes what could not be deleted in time.
type Storage struct {
	log       *zap.Logger
	id        string
	driver    blobstore.Driver
	layout    blobstore.Layout
	reclaimer *orphans.Reclaimer
	spooler   *blobstore.Spooler
}

// New creates a storage. The storage owns driver and closes it on Close.
// Blobs orphaned by the storage are reclaimed in the namespace id.
func New(log *zap.Logger, id string, driver blobstore.Driver, layout blobstore.Layout, reclaimer *orphans.Reclaimer, spool blobstore.SpoolConfig) *Storage {
	storage := &Storage{
		log:       log,
		id:        id,
		driver:    driver,
		layout:    layout,
		reclaimer: reclaimer,
	}
	storage.spooler = blobstore.NewSpooler(log.Named("spool"), spool, func(path string) {
		reclaimer.Add(context.Background(), orphans.Handle{Namespace: orphans.FileNamespace, Key: path})
	})
	reclaimer.Register(id, storage.reclaim)
	return storage
}

// ID returns the storage id.
func (storage *Storage) ID() string { return storage.id }

// Driver returns the blob driver.
func (storage *Storage) Driver() blobstore.Driver { return storage.driver }

// Layout returns the key layout.
func (storage *Storage) Layout() blobstore.Layout { return storage.layout }

// Channel opens a new channel.
func (storage *Storage) Channel() *Channel {
	return &Channel{storage: storage}
}

func (storage *Storage) handle(key string) orphans.Handle {
	return orphans.Handle{Namespace: storage.id, Key: key}
}

func (storage *Storage) orphan(ctx context.Context, key string) {
	storage.log.Warn("blob handed to reclaimer", zap.String("key", key))
	storage.reclaimer.Add(ctx, storage.handle(key))
}

func (storage *Storage) reclaim(ctx context.Context, key string) error {
	if !storage.driver.Delete(ctx, key) {
		return Error.New("unable to delete %q", key)
	}
	return nil
}

// valueKeys lists the value keys of a property. Backups of staged deletes
// share the prefix and are skipped.
func (storage *Storage) valueKeys(ctx context.Context, propertyID string) ([]string, error) {
	prefix := storage.layout.PropertyPrefix(propertyID)
	keys, err := storage.driver.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	values := keys[:0]
	for _, key := range keys {
		if isOrderNumber(strings.TrimPrefix(key, prefix)) {
			values = append(values, key)
		}
	}
	return values, nil
}

func isOrderNumber(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Check verifies that value order of the property exists.
func (storage *Storage) Check(ctx context.Context, propertyID string, order int) (err error) {
	defer mon.Task()(&ctx)(&err)

	key := storage.layout.Key(propertyID, order)
	exists, err := storage.driver.Exists(ctx, key)
	if err != nil {
		return ErrIO.Wrap(err)
	}
	if !exists {
		return itemdata.ErrValueNotFound.New("%q in %q", key, storage.id)
	}
	return nil
}

// Repair replaces a missing value with empty content.
func (storage *Storage) Repair(ctx context.Context, propertyID string, order int) (err error) {
	defer mon.Task()(&ctx)(&err)

	key := storage.layout.Key(propertyID, order)
	exists, err := storage.driver.Exists(ctx, key)
	if err != nil {
		return ErrIO.Wrap(err)
	}
	if exists {
		return nil
	}

	storage.log.Info("repairing missing value", zap.String("key", key))
	return ErrIO.Wrap(storage.driver.Put(ctx, key, bytes.NewReader(nil), 0))
}

// Clean deletes every blob of the storage.
func (storage *Storage) Clean(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	keys, err := storage.driver.List(ctx, storage.layout.Root())
	if err != nil {
		return ErrIO.Wrap(err)
	}
	failed, err := storage.driver.BatchDelete(ctx, keys)
	if err != nil {
		return ErrIO.Wrap(err)
	}
	if len(failed) > 0 {
		return ErrIO.New("unable to delete %d of %d blobs", len(failed), len(keys))
	}
	storage.log.Info("cleaned value storage", zap.String("id", storage.id), zap.Int("deleted", len(keys)))
	return nil
}

// Close closes the driver.
func (storage *Storage) Close() error {
	return Error.Wrap(storage.driver.Close())
}
