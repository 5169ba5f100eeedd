// Copyright (C) 2018 Storj Labs, Inc.
// See LICENSE for copying information.

// Package teststore implements an in-memory kvstore.Store.
package teststore

import (
	"context"
	"sort"
	"sync"

	"storj.io/jcrstore/private/kvstore"
)

var _ kvstore.Store = (*Client)(nil)

// Client implements in-memory key value store.
type Client struct {
	mu        sync.Mutex
	items     map[string]kvstore.Value
	forcedErr error

	CallCount struct {
		Get    int
		Put    int
		Delete int
		Range  int
		Close  int
	}
}

// New creates a new in-memory key-value store.
func New() *Client { return &Client{items: map[string]kvstore.Value{}} }

// ForceError makes every following call fail with err until it is cleared
// with nil.
func (store *Client) ForceError(err error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.forcedErr = err
}

// Put adds a value to store.
func (store *Client) Put(ctx context.Context, key kvstore.Key, value kvstore.Value) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.Put++
	if store.forcedErr != nil {
		return store.forcedErr
	}
	if key.IsZero() {
		return kvstore.ErrEmptyKey.New("")
	}
	store.items[string(key)] = value.Clone()
	return nil
}

// Get gets a value to store.
func (store *Client) Get(ctx context.Context, key kvstore.Key) (kvstore.Value, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.Get++
	if store.forcedErr != nil {
		return nil, store.forcedErr
	}
	if key.IsZero() {
		return nil, kvstore.ErrEmptyKey.New("")
	}
	value, ok := store.items[string(key)]
	if !ok {
		return nil, kvstore.ErrKeyNotFound.New("%q", key)
	}
	return value.Clone(), nil
}

// Delete deletes key and the value.
func (store *Client) Delete(ctx context.Context, key kvstore.Key) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.Delete++
	if store.forcedErr != nil {
		return store.forcedErr
	}
	if key.IsZero() {
		return kvstore.ErrEmptyKey.New("")
	}
	delete(store.items, string(key))
	return nil
}

// Range iterates over all items in key order.
func (store *Client) Range(ctx context.Context, fn func(context.Context, kvstore.Key, kvstore.Value) error) error {
	store.mu.Lock()
	store.CallCount.Range++
	if store.forcedErr != nil {
		store.mu.Unlock()
		return store.forcedErr
	}
	keys := make([]string, 0, len(store.items))
	for key := range store.items {
		keys = append(keys, key)
	}
	values := make(map[string]kvstore.Value, len(keys))
	for _, key := range keys {
		values[key] = store.items[key].Clone()
	}
	store.mu.Unlock()

	sort.Strings(keys)
	for _, key := range keys {
		if err := fn(ctx, kvstore.Key(key), values[key]); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the store.
func (store *Client) Close() error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.Close++
	return nil
}
