// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package valuestorage

import (
	"context"
	"sort"
	"sync"

	"github.com/zeebo/errs"
)

// Provider looks value storages up by id.
type Provider struct {
	mu       sync.RWMutex
	storages map[string]*Storage
}

// NewProvider creates a provider holding storages.
func NewProvider(storages ...*Storage) (*Provider, error) {
	provider := &Provider{storages: map[string]*Storage{}}
	for _, storage := range storages {
		if err := provider.Add(storage); err != nil {
			return nil, err
		}
	}
	return provider, nil
}

// Add registers storage under its id.
func (provider *Provider) Add(storage *Storage) error {
	provider.mu.Lock()
	defer provider.mu.Unlock()

	if _, exists := provider.storages[storage.ID()]; exists {
		return Error.New("duplicate value storage %q", storage.ID())
	}
	provider.storages[storage.ID()] = storage
	return nil
}

// Storage returns the storage with id.
func (provider *Provider) Storage(id string) (*Storage, error) {
	provider.mu.RLock()
	defer provider.mu.RUnlock()

	storage, ok := provider.storages[id]
	if !ok {
		return nil, ErrStorageNotFound.New("%q", id)
	}
	return storage, nil
}

// Channel opens a channel on the storage with id.
func (provider *Provider) Channel(ctx context.Context, id string) (*Channel, error) {
	storage, err := provider.Storage(id)
	if err != nil {
		return nil, err
	}
	return storage.Channel(), nil
}

// IDs returns the registered storage ids in order.
func (provider *Provider) IDs() []string {
	provider.mu.RLock()
	defer provider.mu.RUnlock()

	ids := make([]string, 0, len(provider.storages))
	for id := range provider.storages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close closes every storage.
func (provider *Provider) Close() error {
	provider.mu.Lock()
	defer provider.mu.Unlock()

	var group errs.Group
	for _, storage := range provider.storages {
		group.Add(storage.Close())
	}
	provider.storages = map[string]*Storage{}
	return group.Err()
}
