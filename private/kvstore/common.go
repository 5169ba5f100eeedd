// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package kvstore defines the persistent journal of pending orphan
// deletions. The journal survives restarts, so a value renamed to a backup
// before a crash is still reclaimed afterwards.
package kvstore

import (
	"context"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
)

var mon = monkit.Package()

var (
	// ErrKeyNotFound is returned by Get for a key that is not journaled.
	ErrKeyNotFound = errs.Class("key not found")

	// ErrEmptyKey is returned when a call is made with an empty key.
	ErrEmptyKey = errs.Class("empty key")
)

// Key identifies a journal entry, usually the namespace and name of an
// orphaned resource.
type Key []byte

// Value is the payload of a journal entry.
type Value []byte

// Store is a journal backend.
//
// Implementations must be safe for concurrent use. Range may be called
// while other goroutines Put or Delete, in which case entries changed during
// the iteration may or may not be visited.
type Store interface {
	// Put journals value under key, replacing an earlier entry.
	Put(context.Context, Key, Value) error
	// Get returns the entry of key or ErrKeyNotFound.
	Get(context.Context, Key) (Value, error)
	// Delete forgets key. Forgetting a missing key succeeds.
	Delete(context.Context, Key) error
	// Range visits every entry once, stopping at the first error fn
	// returns. Key and Value must not be retained after fn returns.
	Range(ctx context.Context, fn func(context.Context, Key, Value) error) error
	// Close releases the backend.
	Close() error
}

// IsZero reports whether key is empty.
func (key Key) IsZero() bool { return len(key) == 0 }

// Clone returns a copy of key that may be retained.
func (key Key) Clone() Key { return append(Key(nil), key...) }

// Clone returns a copy of value that may be retained. A nil value stays
// nil, an empty one stays empty.
func (value Value) Clone() Value {
	if value == nil {
		return nil
	}
	return append(Value{}, value...)
}

// Count returns the number of journaled entries.
func Count(ctx context.Context, store Store) (n int, err error) {
	defer mon.Task()(&ctx)(&err)
	err = store.Range(ctx, func(context.Context, Key, Value) error {
		n++
		return nil
	})
	return n, err
}
