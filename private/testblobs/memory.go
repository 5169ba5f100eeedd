// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package testblobs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"

	"storj.io/jcrstore/blobstore"
)

var _ blobstore.Driver = (*Memory)(nil)

// Memory is an in-memory blob driver.
type Memory struct {
	mu    sync.Mutex
	blobs map[string][]byte

	CallCount struct {
		Put    int
		Get    int
		Delete int
		Copy   int
	}
}

// NewMemory creates an empty in-memory blob driver.
func NewMemory() *Memory {
	return &Memory{blobs: map[string][]byte{}}
}

// Exists reports whether a blob is stored under key.
func (store *Memory) Exists(ctx context.Context, key string) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	_, ok := store.blobs[key]
	return ok, nil
}

// Get returns a reader over a copy of the blob.
func (store *Memory) Get(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.Get++

	data, ok := store.blobs[key]
	if !ok {
		return nil, 0, blobstore.ErrNotFound.New("%q", key)
	}
	data = append([]byte(nil), data...)
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

// Put stores exactly length bytes from r.
func (store *Memory) Put(ctx context.Context, key string, r io.Reader, length int64) error {
	if err := blobstore.CheckLength(length); err != nil {
		return err
	}
	data := make([]byte, length)
	if n, err := io.ReadFull(r, data); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return blobstore.ErrInvalidLength.New("expected %d bytes, read %d", length, n)
		}
		return blobstore.Error.Wrap(err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.Put++
	store.blobs[key] = data
	return nil
}

// Delete removes the blob.
func (store *Memory) Delete(ctx context.Context, key string) bool {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.Delete++
	delete(store.blobs, key)
	return true
}

// BatchDelete removes every key.
func (store *Memory) BatchDelete(ctx context.Context, keys []string) ([]string, error) {
	for _, key := range keys {
		store.Delete(ctx, key)
	}
	return nil, nil
}

// List returns the keys starting with prefix in lexical order.
func (store *Memory) List(ctx context.Context, prefix string) ([]string, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	var keys []string
	for key := range store.blobs {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Copy copies src to dst.
func (store *Memory) Copy(ctx context.Context, src, dst string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.Copy++

	data, ok := store.blobs[src]
	if !ok {
		return blobstore.ErrNotFound.New("%q", src)
	}
	store.blobs[dst] = append([]byte(nil), data...)
	return nil
}

// Size returns the length of the blob or -1.
func (store *Memory) Size(ctx context.Context, key string) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	data, ok := store.blobs[key]
	if !ok {
		return -1, nil
	}
	return int64(len(data)), nil
}

// Keys returns every stored key.
func (store *Memory) Keys() []string {
	keys, _ := store.List(context.Background(), "")
	return keys
}

// Close does nothing.
func (store *Memory) Close() error { return nil }
