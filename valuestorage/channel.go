// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package valuestorage

import (
	"context"
	"io"

	"go.uber.org/zap"

	"storj.io/jcrstore/blobstore"
	"storj.io/jcrstore/itemdata"
)

// Channel stages writes and deletes against one value storage and applies
// them with a two phase commit. A channel belongs to a single connection and
// must not be used concurrently.
//
// Once Commit or Rollback returns the pending operations are gone, whether
// or not an error was returned.
type Channel struct {
	storage *Storage
	pending []operation
}

// Storage returns the storage the channel writes to.
func (channel *Channel) Storage() *Storage { return channel.storage }

// Pending returns the number of staged operations.
func (channel *Channel) Pending() int { return len(channel.pending) }

// Write stages storing exactly length bytes of content as value order of the
// property. content is consumed during Prepare.
func (channel *Channel) Write(propertyID string, order int, content io.Reader, length int64) error {
	if err := blobstore.CheckLength(length); err != nil {
		return err
	}
	channel.pending = append(channel.pending, &writeOperation{
		storage: channel.storage,
		key:     channel.storage.layout.Key(propertyID, order),
		content: content,
		length:  length,
	})
	return nil
}

// Delete stages removing every value of the property.
func (channel *Channel) Delete(propertyID string) {
	channel.pending = append(channel.pending, &deleteOperation{
		storage:    channel.storage,
		propertyID: propertyID,
	})
}

// Prepare applies the staged operations in a reversible form. Every
// operation is attempted, the last failure is returned.
func (channel *Channel) Prepare(ctx context.Context, tx Tx) (err error) {
	defer mon.Task()(&ctx)(&err)
	ctx = tx.Bind(ctx, channel.storage.driver)

	var lastErr error
	for _, op := range channel.pending {
		if err := op.execute(ctx); err != nil {
			lastErr = err
			continue
		}
		if err := op.prepare(ctx); err != nil {
			lastErr = err
		}
	}
	return wrapIO(lastErr)
}

// TwoPhaseCommit makes prepared operations permanent and clears them.
func (channel *Channel) TwoPhaseCommit(ctx context.Context, tx Tx) (err error) {
	defer mon.Task()(&ctx)(&err)
	defer channel.clear()
	ctx = tx.Bind(ctx, channel.storage.driver)

	var lastErr error
	for _, op := range channel.pending {
		if err := op.twoPhaseCommit(ctx); err != nil {
			lastErr = err
		}
	}
	return wrapIO(lastErr)
}

// Commit prepares and then commits the staged operations. The commit phase
// runs even when prepare fails, and a prepare failure takes precedence.
func (channel *Channel) Commit(ctx context.Context, tx Tx) (err error) {
	defer mon.Task()(&ctx)(&err)
	defer func() {
		if commitErr := channel.TwoPhaseCommit(ctx, tx); err == nil {
			err = commitErr
		}
	}()
	return channel.Prepare(ctx, tx)
}

// Rollback reverts prepared operations, last staged first, and clears them.
func (channel *Channel) Rollback(ctx context.Context, tx Tx) (err error) {
	defer mon.Task()(&ctx)(&err)
	defer channel.clear()
	ctx = tx.Bind(ctx, channel.storage.driver)

	var lastErr error
	for i := len(channel.pending) - 1; i >= 0; i-- {
		if err := channel.pending[i].rollback(ctx); err != nil {
			lastErr = err
		}
	}
	return wrapIO(lastErr)
}

func (channel *Channel) clear() { channel.pending = nil }

// Read returns value order of the property. It fails with
// itemdata.ErrValueNotFound when the value does not exist.
func (channel *Channel) Read(ctx context.Context, propertyID string, order int) (_ blobstore.Payload, err error) {
	defer mon.Task()(&ctx)(&err)

	key := channel.storage.layout.Key(propertyID, order)
	payload, err := channel.storage.spooler.Read(ctx, channel.storage.driver, key)
	if err != nil {
		if blobstore.ErrNotFound.Has(err) {
			return nil, itemdata.ErrValueNotFound.New("%s/%d in %q", propertyID, order, channel.storage.id)
		}
		return nil, wrapIO(err)
	}
	return payload, nil
}

// Size returns the length of value order of the property, or -1 when it does
// not exist.
func (channel *Channel) Size(ctx context.Context, propertyID string, order int) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)

	size, err := channel.storage.driver.Size(ctx, channel.storage.layout.Key(propertyID, order))
	return size, wrapIO(err)
}

// TotalSize returns the length of all values of the property, or -1 when it
// has none.
func (channel *Channel) TotalSize(ctx context.Context, propertyID string) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)

	keys, err := channel.storage.valueKeys(ctx, propertyID)
	if err != nil {
		return 0, wrapIO(err)
	}
	if len(keys) == 0 {
		return -1, nil
	}

	var total int64
	for _, key := range keys {
		size, err := channel.storage.driver.Size(ctx, key)
		if err != nil {
			return 0, wrapIO(err)
		}
		if size > 0 {
			total += size
		}
	}
	return total, nil
}

// Close drops operations that were never committed or rolled back.
func (channel *Channel) Close() error {
	if len(channel.pending) > 0 {
		channel.storage.log.Warn("closing channel with pending operations", zap.Int("pending", len(channel.pending)))
		channel.clear()
	}
	return nil
}

func wrapIO(err error) error {
	if err == nil {
		return nil
	}
	return ErrIO.Wrap(err)
}
