// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package blobstore defines the primitive key-value operations every blob
// backend offers to value storages, together with the key layouts and the
// read-side spooling shared by them.
package blobstore

import (
	"context"
	"io"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
)

var (
	// Error is the default blobstore error class.
	Error = errs.Class("blobstore")

	// ErrNotFound is returned when a blob does not exist.
	ErrNotFound = errs.Class("blob not found")

	// ErrInvalidLength is returned when a blob is written without an exact length.
	ErrInvalidLength = errs.Class("invalid blob length")

	mon = monkit.Package()
)

// Driver is the primitive interface of a blob backend. Keys are opaque,
// slash separated strings relative to the bucket or collection the driver
// was opened with.
//
// Expected "absent" conditions never fail: Exists returns false, Size
// returns -1 and Delete returns false.
type Driver interface {
	// Exists reports whether a blob is stored under key.
	Exists(ctx context.Context, key string) (bool, error)
	// Get opens the blob stored under key and returns its length.
	// It fails with ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) (io.ReadCloser, int64, error)
	// Put stores exactly length bytes from r under key, overwriting any
	// existing blob.
	Put(ctx context.Context, key string, r io.Reader, length int64) error
	// Delete removes the blob and reports whether it succeeded.
	Delete(ctx context.Context, key string) bool
	// BatchDelete removes keys and returns the keys that could not be
	// removed. An error is returned only for failures that affected the
	// whole batch, in which case every key is returned as well.
	BatchDelete(ctx context.Context, keys []string) ([]string, error)
	// List returns every key starting with prefix, in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
	// Copy copies the blob stored under src to dst.
	Copy(ctx context.Context, src, dst string) error
	// Size returns the length of the blob, or -1 when it does not exist.
	Size(ctx context.Context, key string) (int64, error)
	// Close releases the backend client.
	Close() error
}

// Renamer is implemented by drivers that can atomically rename a blob.
type Renamer interface {
	// Rename moves the blob stored under src to dst.
	Rename(ctx context.Context, src, dst string) error
}

// Move moves src to dst. Drivers without an atomic rename copy the blob and
// delete the source afterwards; orphaned is true when the copy succeeded but
// the source could not be removed.
func Move(ctx context.Context, driver Driver, src, dst string) (orphaned bool, err error) {
	defer mon.Task()(&ctx)(&err)

	if renamer, ok := driver.(Renamer); ok {
		return false, renamer.Rename(ctx, src, dst)
	}

	if err := driver.Copy(ctx, src, dst); err != nil {
		return false, err
	}
	return !driver.Delete(ctx, src), nil
}

// CheckLength verifies that a blob length is usable by Put.
func CheckLength(length int64) error {
	if length < 0 {
		return ErrInvalidLength.New("%d", length)
	}
	return nil
}
