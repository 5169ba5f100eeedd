// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package testblobs

import (
	"context"
	"io"
	"sync"

	"go.uber.org/zap"

	"storj.io/jcrstore/blobstore"
)

var _ blobstore.Driver = (*Bad)(nil)

// Bad implements a bad blob driver.
// Use SetError, SetKeyError and SetDeleteError to configure which operations fail.
type Bad struct {
	mu        sync.Mutex
	err       error
	keyErrs   map[string]error
	deleteErr map[string]error

	blobs blobstore.Driver
	log   *zap.Logger
}

// NewBad creates a new bad blob driver wrapping the provided driver.
func NewBad(log *zap.Logger, blobs blobstore.Driver) *Bad {
	return &Bad{
		log:       log,
		blobs:     blobs,
		keyErrs:   map[string]error{},
		deleteErr: map[string]error{},
	}
}

func (bad *Bad) check(keys ...string) error {
	bad.mu.Lock()
	defer bad.mu.Unlock()
	if bad.err != nil {
		return bad.err
	}
	for _, key := range keys {
		if err := bad.keyErrs[key]; err != nil {
			return err
		}
	}
	return nil
}

func (bad *Bad) checkDelete(key string) error {
	if err := bad.check(key); err != nil {
		return err
	}
	bad.mu.Lock()
	defer bad.mu.Unlock()
	return bad.deleteErr[key]
}

// Exists reports whether a blob is stored under key.
func (bad *Bad) Exists(ctx context.Context, key string) (bool, error) {
	if err := bad.check(key); err != nil {
		return false, err
	}
	return bad.blobs.Exists(ctx, key)
}

// Get opens the blob stored under key.
func (bad *Bad) Get(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	if err := bad.check(key); err != nil {
		return nil, 0, err
	}
	return bad.blobs.Get(ctx, key)
}

// Put stores a blob.
func (bad *Bad) Put(ctx context.Context, key string, r io.Reader, length int64) error {
	if err := bad.check(key); err != nil {
		return err
	}
	return bad.blobs.Put(ctx, key, r, length)
}

// Delete removes the blob.
func (bad *Bad) Delete(ctx context.Context, key string) bool {
	if err := bad.checkDelete(key); err != nil {
		bad.log.Warn("delete failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return bad.blobs.Delete(ctx, key)
}

// BatchDelete removes every key that is not configured to fail and returns
// the ones that are.
func (bad *Bad) BatchDelete(ctx context.Context, keys []string) ([]string, error) {
	bad.mu.Lock()
	err := bad.err
	bad.mu.Unlock()
	if err != nil {
		return keys, err
	}

	var failed, deletable []string
	for _, key := range keys {
		if bad.checkDelete(key) != nil {
			failed = append(failed, key)
			continue
		}
		deletable = append(deletable, key)
	}

	notDeleted, err := bad.blobs.BatchDelete(ctx, deletable)
	return append(failed, notDeleted...), err
}

// List returns every key starting with prefix.
func (bad *Bad) List(ctx context.Context, prefix string) ([]string, error) {
	if err := bad.check(); err != nil {
		return nil, err
	}
	return bad.blobs.List(ctx, prefix)
}

// Copy copies src to dst.
func (bad *Bad) Copy(ctx context.Context, src, dst string) error {
	if err := bad.check(src, dst); err != nil {
		return err
	}
	return bad.blobs.Copy(ctx, src, dst)
}

// Size returns the length of the blob.
func (bad *Bad) Size(ctx context.Context, key string) (int64, error) {
	if err := bad.check(key); err != nil {
		return 0, err
	}
	return bad.blobs.Size(ctx, key)
}

// Close closes the wrapped driver.
func (bad *Bad) Close() error {
	if err := bad.check(); err != nil {
		return err
	}
	return bad.blobs.Close()
}

// SetError configures the driver to return a specific error for all operations.
func (bad *Bad) SetError(err error) {
	bad.mu.Lock()
	defer bad.mu.Unlock()
	bad.err = err
}

// SetKeyError configures every operation touching key to fail with err.
// A nil err clears the fault.
func (bad *Bad) SetKeyError(key string, err error) {
	bad.mu.Lock()
	defer bad.mu.Unlock()
	if err == nil {
		delete(bad.keyErrs, key)
		return
	}
	bad.keyErrs[key] = err
}

// SetDeleteError configures deletes of key to fail with err.
// A nil err clears the fault.
func (bad *Bad) SetDeleteError(key string, err error) {
	bad.mu.Lock()
	defer bad.mu.Unlock()
	if err == nil {
		delete(bad.deleteErr, key)
		return
	}
	bad.deleteErr[key] = err
}
